package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kgellert/hodatay-client/internal/api"
	"github.com/kgellert/hodatay-client/internal/channel"
	"github.com/kgellert/hodatay-client/internal/config"
	"github.com/kgellert/hodatay-client/internal/directory"
	"github.com/kgellert/hodatay-client/internal/domain/conversation"
	"github.com/kgellert/hodatay-client/internal/lib/logger/sl"
	"github.com/kgellert/hodatay-client/internal/store"
)

// Detailer backfills a single conversation after a membership-add event for
// an id the store has never seen.
type Detailer interface {
	GetConversation(ctx context.Context, conversationID string) (*conversation.Conversation, error)
}

// Engine is the single dispatcher between channel callbacks and store
// mutators. It owns the transient side effects the store must not know
// about: highlights, notices, room joins, and the self-healing refreshes
// that absorb stale or out-of-order events.
type Engine struct {
	store     *store.Store
	channel   *channel.Client
	api       Detailer
	directory *directory.Cache
	cfg       config.SyncConfig
	log       *slog.Logger

	highlights *highlightSet
	notices    *noticeBoard

	mu             sync.Mutex
	subs           []sub
	refreshPending bool
	retryUsed      bool
	hadHistory     bool
	closed         bool
	timers         []*time.Timer
}

type sub struct {
	t  channel.EventType
	id int
}

func New(
	st *store.Store,
	ch *channel.Client,
	apiClient Detailer,
	dir *directory.Cache,
	cfg config.SyncConfig,
	restoredSession bool,
	log *slog.Logger,
) *Engine {
	return &Engine{
		store:      st,
		channel:    ch,
		api:        apiClient,
		directory:  dir,
		cfg:        cfg,
		log:        log,
		highlights: newHighlightSet(),
		notices:    newNoticeBoard(cfg.NoticeTTL),
		hadHistory: restoredSession,
	}
}

// Start registers the channel handlers and performs the initial refresh.
func (e *Engine) Start(ctx context.Context) error {
	e.register(channel.EventNewMessage, e.onNewMessage)
	e.register(channel.EventNewConversation, e.onNewConversation)
	e.register(channel.EventMemberAdded, e.onMemberAdded)
	e.register(channel.EventMemberRemoved, e.onMemberRemoved)
	e.register(channel.EventGroupDeleted, e.onGroupDeleted)
	e.register(channel.EventUserUpdated, e.onUserUpdated)

	if err := e.Refresh(ctx); err != nil {
		// A failed initial load is a transport error, not a fatal one: the
		// retry timer and later events will converge the state.
		e.log.Warn("initial refresh failed", sl.Err(err))
		e.afterFunc(e.cfg.EmptyRefreshRetry, func() {
			e.backgroundRefresh()
		})
	}

	return nil
}

func (e *Engine) register(t channel.EventType, fn func(channel.Event)) {
	id := e.channel.On(t, fn)

	e.mu.Lock()
	e.subs = append(e.subs, sub{t: t, id: id})
	e.mu.Unlock()
}

// Refresh reloads the full list, joins any newly discovered rooms, and arms
// the one-shot empty-result retry when the session plausibly has history.
func (e *Engine) Refresh(ctx context.Context) error {
	const op = "engine.Refresh"

	count, err := e.store.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	e.channel.JoinConversations(e.store.IDs())

	e.mu.Lock()
	armRetry := count == 0 && e.hadHistory && !e.retryUsed && !e.closed
	if armRetry {
		e.retryUsed = true
	}
	if count > 0 {
		e.hadHistory = true
	}
	e.mu.Unlock()

	if armRetry {
		e.log.Info("empty refresh for a session with history, retrying once",
			slog.Duration("delay", e.cfg.EmptyRefreshRetry))
		e.afterFunc(e.cfg.EmptyRefreshRetry, func() {
			e.backgroundRefresh()
		})
	}

	return nil
}

func (e *Engine) onNewMessage(ev channel.Event) {
	if ok := e.store.ApplyNewMessage(ev.ConversationID, *ev.Message); !ok {
		e.scheduleRefresh()
		return
	}

	if ev.Message.SenderID != e.store.UserID() {
		e.highlights.set(ev.ConversationID, HighlightMessage, e.cfg.MessageHighlight)
	}
}

func (e *Engine) onNewConversation(ev channel.Event) {
	conv := *ev.Conversation

	if inserted := e.store.ApplyNewConversation(conv); !inserted {
		// Duplicate delivery from overlapping channels: first insert wins.
		return
	}

	e.channel.JoinConversation(conv.ID)
	e.highlights.set(conv.ID, HighlightNewConversation, e.cfg.ConversationHighlight)
}

func (e *Engine) onMemberAdded(ev channel.Event) {
	if ok := e.store.ApplyMembershipChange(ev.ConversationID, ev.AddedUserID, store.MemberAdded); ok {
		return
	}

	// Unknown conversation. If we are the one who was added, backfill the
	// detail instead of reloading everything; otherwise fall back to a
	// refresh.
	if ev.AddedUserID != e.store.UserID() {
		e.scheduleRefresh()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conv, err := e.api.GetConversation(ctx, ev.ConversationID)
	if err != nil {
		if !errors.Is(err, api.ErrNotFound) {
			e.log.Warn("conversation backfill failed", sl.Err(err))
		}
		e.scheduleRefresh()
		return
	}

	if e.store.ApplyNewConversation(*conv) {
		e.channel.JoinConversation(conv.ID)
		e.highlights.set(conv.ID, HighlightNewConversation, e.cfg.ConversationHighlight)
	}
}

func (e *Engine) onMemberRemoved(ev channel.Event) {
	ok := e.store.ApplyMembershipChange(ev.ConversationID, ev.UserID, store.MemberRemoved)
	if !ok {
		// Already unknown locally: nothing to hide, but re-sync in case the
		// event raced a refresh.
		e.scheduleRefresh()
		return
	}

	if ev.UserID == e.store.UserID() {
		e.notices.post("You were removed from the group")
	}
}

func (e *Engine) onGroupDeleted(ev channel.Event) {
	if removed := e.store.ApplyGroupDeleted(ev.ConversationID); removed {
		e.highlights.clear(ev.ConversationID)
		e.notices.post("Group was deleted")
	}
}

func (e *Engine) onUserUpdated(ev channel.Event) {
	e.directory.Update(*ev.User)
}

// scheduleRefresh runs one background refresh; while one is pending further
// stale events collapse into it.
func (e *Engine) scheduleRefresh() {
	e.mu.Lock()
	if e.refreshPending || e.closed {
		e.mu.Unlock()
		return
	}
	e.refreshPending = true
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			e.refreshPending = false
			e.mu.Unlock()
		}()

		e.backgroundRefresh()
	}()
}

func (e *Engine) backgroundRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Refresh(ctx); err != nil {
		e.log.Warn("background refresh failed", sl.Err(err))
	}
}

func (e *Engine) afterFunc(d time.Duration, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.timers = append(e.timers, time.AfterFunc(d, fn))
}

// MarkRead clears the current user's unread counter for one conversation.
func (e *Engine) MarkRead(conversationID string) {
	if ok := e.store.MarkRead(conversationID); !ok {
		e.scheduleRefresh()
	}
}

// Select is the UI intent for opening a conversation: it reads as marked and
// any transient highlight is dropped immediately.
func (e *Engine) Select(conversationID string) {
	e.highlights.clear(conversationID)
	e.MarkRead(conversationID)
}

// LeaveGroup applies the local membership change right away (hiding the
// conversation) and re-syncs against the server's authoritative answer.
func (e *Engine) LeaveGroup(conversationID string) error {
	if !e.store.ApplyMembershipChange(conversationID, e.store.UserID(), store.MemberRemoved) {
		return store.ErrConversationNotFound
	}

	e.scheduleRefresh()

	return nil
}

func (e *Engine) Highlight(conversationID string) HighlightKind {
	return e.highlights.kind(conversationID)
}

func (e *Engine) Notices() []Notice {
	return e.notices.active()
}

// Close unregisters every channel listener and stops all pending timers.
// Events or expiries racing Close become no-ops; nothing mutates state after
// teardown.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	subs := e.subs
	e.subs = nil
	timers := e.timers
	e.timers = nil
	e.mu.Unlock()

	for _, s := range subs {
		e.channel.Off(s.t, s.id)
	}
	for _, t := range timers {
		t.Stop()
	}

	e.highlights.closeAll()
	e.notices.closeAll()
}
