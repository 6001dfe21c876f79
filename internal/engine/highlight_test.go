package engine

import (
	"testing"
	"time"
)

func TestHighlightAutoExpiry(t *testing.T) {
	h := newHighlightSet()
	defer h.closeAll()

	h.set("c", HighlightMessage, 30*time.Millisecond)

	if got := h.kind("c"); got != HighlightMessage {
		t.Fatalf("kind right after set = %q, want message", got)
	}

	time.Sleep(80 * time.Millisecond)

	if got := h.kind("c"); got != HighlightNone {
		t.Errorf("kind after expiry = %q, want none", got)
	}
}

func TestHighlightResetDoesNotStackTimers(t *testing.T) {
	h := newHighlightSet()
	defer h.closeAll()

	h.set("c", HighlightMessage, 50*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	// Second qualifying event: the first timer must be superseded, so the
	// highlight survives past the first deadline.
	h.set("c", HighlightMessage, 50*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if got := h.kind("c"); got != HighlightMessage {
		t.Fatalf("highlight expired early, kind = %q", got)
	}

	time.Sleep(50 * time.Millisecond)

	if got := h.kind("c"); got != HighlightNone {
		t.Errorf("kind after final expiry = %q, want none", got)
	}
}

func TestHighlightClear(t *testing.T) {
	h := newHighlightSet()
	defer h.closeAll()

	h.set("c", HighlightNewConversation, time.Minute)
	h.clear("c")

	if got := h.kind("c"); got != HighlightNone {
		t.Errorf("kind after clear = %q, want none", got)
	}
}

func TestHighlightSetAfterCloseIsNoOp(t *testing.T) {
	h := newHighlightSet()
	h.closeAll()

	h.set("c", HighlightMessage, time.Minute)

	if got := h.kind("c"); got != HighlightNone {
		t.Errorf("closed set accepted a highlight: %q", got)
	}
}

func TestNoticeAutoDismiss(t *testing.T) {
	b := newNoticeBoard(30 * time.Millisecond)
	defer b.closeAll()

	b.post("group deleted")

	if got := len(b.active()); got != 1 {
		t.Fatalf("active notices = %d, want 1", got)
	}

	time.Sleep(80 * time.Millisecond)

	if got := len(b.active()); got != 0 {
		t.Errorf("notice did not auto-dismiss, %d left", got)
	}
}
