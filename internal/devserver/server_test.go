package devserver

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kgellert/hodatay-client/internal/api"
	"github.com/kgellert/hodatay-client/internal/channel"
	"github.com/kgellert/hodatay-client/internal/config"
	"github.com/kgellert/hodatay-client/internal/directory"
	"github.com/kgellert/hodatay-client/internal/domain/conversation"
	"github.com/kgellert/hodatay-client/internal/domain/message"
	"github.com/kgellert/hodatay-client/internal/domain/user"
	"github.com/kgellert/hodatay-client/internal/engine"
	"github.com/kgellert/hodatay-client/internal/lib/logger/handlers/slogdiscard"
	"github.com/kgellert/hodatay-client/internal/store"
)

type fixture struct {
	srv     *Server
	httpSrv *httptest.Server
	store   *store.Store
	engine  *engine.Engine
	channel *channel.Client
}

// startFixture wires the full client graph against an in-process dev server,
// signed in as "me".
func startFixture(t *testing.T) *fixture {
	t.Helper()

	log := slogdiscard.NewDiscardLogger()

	srv := New(log)
	srv.SeedUser(user.Profile{ID: "me", Fullname: "Current User"})
	srv.SeedUser(user.Profile{ID: "u2", Fullname: "Other User"})
	srv.SeedConversation(conversation.Conversation{
		ID:         "c1",
		CreatorID:  "me",
		ReceiverID: "u2",
		LastChange: time.Now(),
	})

	httpSrv := httptest.NewServer(srv.Routes())
	t.Cleanup(httpSrv.Close)

	apiClient := api.New(httpSrv.URL, "me", 5*time.Second)
	dir := directory.NewCache(apiClient, log)
	st := store.New("me", apiClient, dir, log)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	ch := channel.New(config.ChannelConfig{
		URL:              wsURL,
		HandshakeTimeout: 5 * time.Second,
		PingInterval:     time.Minute,
		WriteTimeout:     5 * time.Second,
		ReconnectMin:     10 * time.Millisecond,
		ReconnectMax:     100 * time.Millisecond,
	}, "me", log)

	eng := engine.New(st, ch, apiClient, dir, config.SyncConfig{
		MessageHighlight:      200 * time.Millisecond,
		ConversationHighlight: 200 * time.Millisecond,
		NoticeTTL:             200 * time.Millisecond,
		EmptyRefreshRetry:     50 * time.Millisecond,
	}, false, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	if err := ch.Connect(ctx); err != nil {
		t.Fatalf("channel connect failed: %v", err)
	}
	t.Cleanup(ch.Close)

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("engine start failed: %v", err)
	}
	t.Cleanup(eng.Close)

	// Give the initial subscribe frame time to reach the hub so broadcasts
	// in the test body are not dropped.
	time.Sleep(50 * time.Millisecond)

	return &fixture{srv: srv, httpSrv: httpSrv, store: st, engine: eng, channel: ch}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInitialRefreshLoadsConversations(t *testing.T) {
	f := startFixture(t)

	if got := f.store.Len(); got != 1 {
		t.Fatalf("store holds %d conversations after refresh, want 1", got)
	}
	if _, ok := f.store.Get("c1"); !ok {
		t.Error("seeded conversation missing")
	}
}

func TestNewMessageEventReachesStore(t *testing.T) {
	f := startFixture(t)

	msg := message.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "u2",
		Content:        "hello over the wire",
		Type:           "text",
		CreatedAt:      time.Now().Add(time.Second),
	}
	f.srv.PushNewMessage("c1", msg)

	waitFor(t, func() bool {
		conv, ok := f.store.Get("c1")
		return ok && conv.LastMessage != nil && conv.LastMessage.ID == "m1"
	}, "newMessage event never reached the store")

	conv, _ := f.store.Get("c1")
	if got := conv.UnreadFor("me"); got != 1 {
		t.Errorf("unread for me = %d, want 1", got)
	}

	waitFor(t, func() bool {
		return f.engine.Highlight("c1") == engine.HighlightMessage
	}, "remote message did not highlight")
}

func TestNewConversationEventInsertsAndJoins(t *testing.T) {
	f := startFixture(t)

	conv := conversation.Conversation{
		ID:           "g1",
		IsGroup:      true,
		CreatorID:    "u2",
		GroupMembers: []string{"u2", "me"},
		GroupName:    "new group",
		LastChange:   time.Now().Add(time.Second),
	}
	f.srv.PushNewConversation(conv)

	waitFor(t, func() bool {
		_, ok := f.store.Get("g1")
		return ok
	}, "newConversation event never reached the store")

	// The engine joins the new room; a follow-up message must arrive too.
	waitFor(t, func() bool {
		return f.engine.Highlight("g1") == engine.HighlightNewConversation
	}, "new conversation did not highlight")

	// Let the subscribe frame settle in the hub before broadcasting to the
	// new room.
	time.Sleep(50 * time.Millisecond)

	f.srv.PushNewMessage("g1", message.Message{
		ID:             "m2",
		ConversationID: "g1",
		SenderID:       "u2",
		Content:        "first group message",
		CreatedAt:      time.Now().Add(2 * time.Second),
	})

	waitFor(t, func() bool {
		c, ok := f.store.Get("g1")
		return ok && c.LastMessage != nil && c.LastMessage.ID == "m2"
	}, "message in joined room never arrived")
}

func TestMemberRemovedEventHidesConversation(t *testing.T) {
	f := startFixture(t)

	conv := conversation.Conversation{
		ID:           "g2",
		IsGroup:      true,
		CreatorID:    "u2",
		GroupMembers: []string{"u2", "me"},
		LastChange:   time.Now().Add(time.Second),
	}
	f.srv.PushNewConversation(conv)

	waitFor(t, func() bool {
		_, ok := f.store.Get("g2")
		return ok
	}, "conversation never arrived")

	time.Sleep(50 * time.Millisecond)

	f.srv.PushMemberRemoved("g2", "me")

	waitFor(t, func() bool {
		for _, c := range f.store.Visible() {
			if c.ID == "g2" {
				return false
			}
		}
		return true
	}, "removed conversation still visible")

	waitFor(t, func() bool {
		return len(f.engine.Notices()) > 0
	}, "removal notice never posted")
}

func TestGroupDeletedEventRemovesConversation(t *testing.T) {
	f := startFixture(t)

	conv := conversation.Conversation{
		ID:           "g3",
		IsGroup:      true,
		CreatorID:    "u2",
		GroupMembers: []string{"u2", "me"},
		LastChange:   time.Now().Add(time.Second),
	}
	f.srv.PushNewConversation(conv)

	waitFor(t, func() bool {
		_, ok := f.store.Get("g3")
		return ok
	}, "conversation never arrived")

	time.Sleep(50 * time.Millisecond)

	f.srv.PushGroupDeleted("g3")

	waitFor(t, func() bool {
		_, ok := f.store.Get("g3")
		return !ok
	}, "deleted group still in store")
}

func TestRestEndpoints(t *testing.T) {
	f := startFixture(t)

	apiClient := api.New(f.httpSrv.URL, "me", 5*time.Second)
	ctx := context.Background()

	conv, err := apiClient.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation() failed: %v", err)
	}
	if conv.ID != "c1" {
		t.Errorf("conversation id = %q", conv.ID)
	}

	if _, err := apiClient.GetConversation(ctx, "missing"); err == nil {
		t.Error("missing conversation should 404")
	}

	p, err := apiClient.GetUser(ctx, "u2")
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if p.Fullname != "Other User" {
		t.Errorf("fullname = %q", p.Fullname)
	}
}
