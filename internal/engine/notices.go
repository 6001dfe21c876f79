package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Notice struct {
	ID       string
	Text     string
	PostedAt time.Time
}

// noticeBoard holds best-effort, auto-dismissing user notifications (group
// dissolved, removed from group). Nothing here blocks: posting to a closed
// board is a no-op and every notice dismisses itself.
type noticeBoard struct {
	ttl time.Duration

	mu      sync.Mutex
	notices []Notice
	timers  map[string]*time.Timer
	closed  bool
}

func newNoticeBoard(ttl time.Duration) *noticeBoard {
	return &noticeBoard{
		ttl:    ttl,
		timers: make(map[string]*time.Timer),
	}
}

func (b *noticeBoard) post(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	n := Notice{
		ID:       uuid.NewString(),
		Text:     text,
		PostedAt: time.Now(),
	}
	b.notices = append(b.notices, n)
	b.timers[n.ID] = time.AfterFunc(b.ttl, func() {
		b.dismiss(n.ID)
	})
}

func (b *noticeBoard) dismiss(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, n := range b.notices {
		if n.ID == id {
			b.notices = append(b.notices[:i], b.notices[i+1:]...)
			break
		}
	}

	if t, ok := b.timers[id]; ok {
		t.Stop()
		delete(b.timers, id)
	}
}

func (b *noticeBoard) active() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Notice, len(b.notices))
	copy(out, b.notices)
	return out
}

func (b *noticeBoard) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	b.notices = nil
}
