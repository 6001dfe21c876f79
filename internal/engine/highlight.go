package engine

import (
	"sync"
	"time"
)

type HighlightKind string

const (
	HighlightNone            HighlightKind = ""
	HighlightMessage         HighlightKind = "message"
	HighlightNewConversation HighlightKind = "new_conversation"
)

type highlightEntry struct {
	kind  HighlightKind
	timer *time.Timer
}

// highlightSet is the per-conversation transient highlight state machine:
// NONE -> HIGHLIGHTED -> NONE. A qualifying event while highlighted resets
// the running timer instead of stacking a second one, so expiry fires at
// most once per highlight.
type highlightSet struct {
	mu      sync.Mutex
	entries map[string]*highlightEntry
	closed  bool
}

func newHighlightSet() *highlightSet {
	return &highlightSet{entries: make(map[string]*highlightEntry)}
}

func (h *highlightSet) set(conversationID string, kind HighlightKind, ttl time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	if e, ok := h.entries[conversationID]; ok {
		e.timer.Stop()
	}

	e := &highlightEntry{kind: kind}
	e.timer = time.AfterFunc(ttl, func() {
		h.expire(conversationID, e)
	})
	h.entries[conversationID] = e
}

// expire only clears if the entry is still the one the timer was armed for;
// a reset in between leaves the newer highlight alone.
func (h *highlightSet) expire(conversationID string, e *highlightEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.entries[conversationID]; ok && cur == e {
		delete(h.entries, conversationID)
	}
}

func (h *highlightSet) clear(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.entries[conversationID]; ok {
		e.timer.Stop()
		delete(h.entries, conversationID)
	}
}

func (h *highlightSet) kind(conversationID string) HighlightKind {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.entries[conversationID]; ok {
		return e.kind
	}
	return HighlightNone
}

func (h *highlightSet) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, e := range h.entries {
		e.timer.Stop()
		delete(h.entries, id)
	}
}
