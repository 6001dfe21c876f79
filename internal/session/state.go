package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNoSession = errors.New("no stored session")

// State is the only thing persisted across reloads: who is signed in and
// with what token. Conversation data is never persisted; a fresh refresh
// rebuilds it.
type State struct {
	UserID  string    `db:"user_id"`
	Token   string    `db:"token"`
	SavedAt time.Time `db:"saved_at"`
}

type StateStore struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS session_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	user_id TEXT NOT NULL,
	token TEXT NOT NULL,
	saved_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func OpenState(path string) (*StateStore, error) {
	const op = "session.OpenState"

	db, err := sqlx.Open("sqlite3", path+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: apply schema: %w", op, err)
	}

	return &StateStore{db: db}, nil
}

func (s *StateStore) Load(ctx context.Context) (State, error) {
	const op = "session.StateStore.Load"

	var st State
	err := s.db.GetContext(ctx, &st,
		`SELECT user_id, token, saved_at FROM session_state WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrNoSession
	}
	if err != nil {
		return State{}, fmt.Errorf("%s: %w", op, err)
	}

	return st, nil
}

func (s *StateStore) Save(ctx context.Context, st State) error {
	const op = "session.StateStore.Save"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_state (id, user_id, token, saved_at)
		VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			token = excluded.token,
			saved_at = excluded.saved_at
	`, st.UserID, st.Token)

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *StateStore) Clear(ctx context.Context) error {
	const op = "session.StateStore.Clear"

	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE id = 1`); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *StateStore) Close() error {
	return s.db.Close()
}
