package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kgellert/hodatay-client/internal/api"
	"github.com/kgellert/hodatay-client/internal/channel"
	"github.com/kgellert/hodatay-client/internal/config"
	"github.com/kgellert/hodatay-client/internal/directory"
	"github.com/kgellert/hodatay-client/internal/engine"
	"github.com/kgellert/hodatay-client/internal/store"
)

// Session is the explicit, constructor-built service graph for one signed-in
// user: api client, directory cache, store, channel, engine. It replaces any
// ambient singletons; the application root creates it on sign-in and closes
// it on sign-out.
type Session struct {
	UserID string

	API       *api.Client
	Channel   *channel.Client
	Directory *directory.Cache
	Store     *store.Store
	Engine    *engine.Engine

	log *slog.Logger
}

// Open wires and starts the graph. restored marks a session loaded from
// durable state rather than a fresh sign-in; the engine uses it to decide
// whether an empty first refresh deserves a retry.
func Open(ctx context.Context, cfg *config.Config, st State, restored bool, log *slog.Logger) (*Session, error) {
	const op = "session.Open"

	apiClient := api.New(cfg.API.BaseURL, st.Token, cfg.API.Timeout)
	dir := directory.NewCache(apiClient, log)
	convStore := store.New(st.UserID, apiClient, dir, log)
	ch := channel.New(cfg.Channel, st.Token, log)
	eng := engine.New(convStore, ch, apiClient, dir, cfg.Sync, restored, log)

	if err := ch.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := eng.Start(ctx); err != nil {
		ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Session{
		UserID:    st.UserID,
		API:       apiClient,
		Channel:   ch,
		Directory: dir,
		Store:     convStore,
		Engine:    eng,
		log:       log,
	}, nil
}

// Close tears the graph down in reverse order: engine first so no handler
// fires into a dying channel.
func (s *Session) Close() {
	s.Engine.Close()
	s.Channel.Close()
	s.log.Info("session closed", slog.String("user_id", s.UserID))
}
