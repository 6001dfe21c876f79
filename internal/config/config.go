package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"APP_ENV" env-default:"local" json:"-"`
	API       APIConfig       `yaml:"api" json:"api"`
	Channel   ChannelConfig   `yaml:"channel" json:"channel"`
	Sync      SyncConfig      `yaml:"sync" json:"sync"`
	State     StateConfig     `yaml:"state" json:"-"`
	DevServer DevServerConfig `yaml:"dev_server" json:"-"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"API_BASE_URL" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" env-default:"10s" json:"timeout"`
}

type ChannelConfig struct {
	URL              string        `yaml:"url" env:"CHANNEL_URL" json:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env-default:"10s" json:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval" env-default:"30s" json:"ping_interval"`
	WriteTimeout     time.Duration `yaml:"write_timeout" env-default:"10s" json:"write_timeout"`
	ReconnectMin     time.Duration `yaml:"reconnect_min" env-default:"1s" json:"reconnect_min"`
	ReconnectMax     time.Duration `yaml:"reconnect_max" env-default:"30s" json:"reconnect_max"`
}

type SyncConfig struct {
	MessageHighlight      time.Duration `yaml:"message_highlight" env-default:"3s" json:"message_highlight"`
	ConversationHighlight time.Duration `yaml:"conversation_highlight" env-default:"5s" json:"conversation_highlight"`
	NoticeTTL             time.Duration `yaml:"notice_ttl" env-default:"5s" json:"notice_ttl"`
	EmptyRefreshRetry     time.Duration `yaml:"empty_refresh_retry" env-default:"5s" json:"empty_refresh_retry"`
}

type StateConfig struct {
	Path string `yaml:"path" env:"STATE_PATH" env-default:"hodatay-client.db"`
}

type DevServerConfig struct {
	Enabled bool   `yaml:"enabled" env-default:"false"`
	Address string `yaml:"address" env-default:"localhost:8082"`
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config %s", err)
	}

	return &cfg
}
