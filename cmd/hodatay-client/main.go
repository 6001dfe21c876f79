package main

import (
	"context"
	"errors"
	stdlog "log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appConfig "github.com/kgellert/hodatay-client/internal/config"
	"github.com/kgellert/hodatay-client/internal/devserver"
	"github.com/kgellert/hodatay-client/internal/domain/conversation"
	"github.com/kgellert/hodatay-client/internal/domain/user"
	"github.com/kgellert/hodatay-client/internal/lib/logger/handlers/slogpretty"
	"github.com/kgellert/hodatay-client/internal/lib/logger/sl"
	"github.com/kgellert/hodatay-client/internal/session"
)

const (
	envLocal = "local"
	envDev   = "dev"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		stdlog.Println("No .env file found, skipping...")
	}

	cfg := appConfig.MustLoad()

	log := setupLogger(cfg.Env)
	log.Info("starting hodatay-client", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DevServer.Enabled {
		startDevServer(cfg, log)
	}

	states, err := session.OpenState(cfg.State.Path)
	if err != nil {
		log.Error("failed to open state store", sl.Err(err))
		os.Exit(1)
	}
	defer states.Close()

	st, restored, err := loadOrSignIn(ctx, states)
	if err != nil {
		log.Error("no session available", sl.Err(err))
		os.Exit(1)
	}

	log.Info("session ready",
		slog.String("user_id", st.UserID),
		slog.Bool("restored", restored),
	)

	sess, err := session.Open(ctx, cfg, st, restored, log)
	if err != nil {
		log.Error("failed to open session", sl.Err(err))
		os.Exit(1)
	}
	defer sess.Close()

	run(ctx, sess, log)

	log.Info("shutting down")
}

// loadOrSignIn restores the durable session, falling back to env credentials
// for a first sign-in (and persisting them for the next run).
func loadOrSignIn(ctx context.Context, states *session.StateStore) (session.State, bool, error) {
	st, err := states.Load(ctx)
	if err == nil {
		return st, true, nil
	}
	if !errors.Is(err, session.ErrNoSession) {
		return session.State{}, false, err
	}

	st = session.State{
		UserID: os.Getenv("HODATAY_USER_ID"),
		Token:  os.Getenv("HODATAY_TOKEN"),
	}
	if st.UserID == "" {
		return session.State{}, false, errors.New("HODATAY_USER_ID is not set and no stored session")
	}
	if st.Token == "" {
		st.Token = st.UserID
	}

	if err := states.Save(ctx, st); err != nil {
		return session.State{}, false, err
	}

	return st, false, nil
}

// run prints the rendered conversation list whenever something could have
// changed. It is a stand-in UI: read accessors only, intents via the engine.
func run(ctx context.Context, sess *session.Session, log *slog.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, conv := range sess.Store.Visible() {
				log.Info("conversation",
					slog.String("id", conv.ID),
					slog.String("title", sess.Store.DisplayTitle(conv)),
					slog.Int64("unread", conv.UnreadFor(sess.UserID)),
					slog.String("highlight", string(sess.Engine.Highlight(conv.ID))),
				)
			}
			for _, n := range sess.Engine.Notices() {
				log.Info("notice", slog.String("text", n.Text))
			}
		}
	}
}

func startDevServer(cfg *appConfig.Config, log *slog.Logger) {
	srv := devserver.New(log)

	srv.SeedUser(user.Profile{ID: "u1", Fullname: "Роман Потапов"})
	srv.SeedUser(user.Profile{ID: "u2", Fullname: "Иван Иванов"})
	srv.SeedConversation(conversation.Conversation{
		ID:         "conv-1",
		CreatorID:  "u1",
		ReceiverID: "u2",
		LastChange: time.Now(),
	})

	go func() {
		httpSrv := &http.Server{
			Addr:    cfg.DevServer.Address,
			Handler: srv.Routes(),
		}
		if err := httpSrv.ListenAndServe(); err != nil {
			log.Error("dev server stopped", sl.Err(err))
		}
	}()

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://" + cfg.DevServer.Address
	}
	if cfg.Channel.URL == "" {
		cfg.Channel.URL = "ws://" + cfg.DevServer.Address + "/ws"
	}

	log.Info("dev server listening", slog.String("address", cfg.DevServer.Address))
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return setupPrettySlog()
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}
