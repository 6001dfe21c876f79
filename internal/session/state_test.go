package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestState(t *testing.T) *StateStore {
	t.Helper()

	s, err := OpenState(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenState() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStateStoreRoundTrip(t *testing.T) {
	s := openTestState(t)
	ctx := context.Background()

	if _, err := s.Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load() on empty store = %v, want ErrNoSession", err)
	}

	if err := s.Save(ctx, State{UserID: "me", Token: "tok"}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	st, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if st.UserID != "me" || st.Token != "tok" {
		t.Errorf("Load() = %+v", st)
	}
	if st.SavedAt.IsZero() {
		t.Error("saved_at should be set")
	}
}

func TestStateStoreSaveOverwrites(t *testing.T) {
	s := openTestState(t)
	ctx := context.Background()

	if err := s.Save(ctx, State{UserID: "me", Token: "old"}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := s.Save(ctx, State{UserID: "me", Token: "new"}); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}

	st, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if st.Token != "new" {
		t.Errorf("token = %q, want new", st.Token)
	}
}

func TestStateStoreClear(t *testing.T) {
	s := openTestState(t)
	ctx := context.Background()

	if err := s.Save(ctx, State{UserID: "me", Token: "tok"}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}

	if _, err := s.Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("Load() after Clear = %v, want ErrNoSession", err)
	}
}
