package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/kgellert/hodatay-client/internal/channel"
	"github.com/kgellert/hodatay-client/internal/domain/conversation"
	"github.com/kgellert/hodatay-client/internal/domain/message"
	"github.com/kgellert/hodatay-client/internal/domain/user"
	resp "github.com/kgellert/hodatay-client/internal/lib/api/response"
	"github.com/kgellert/hodatay-client/internal/lib/logger/sl"
)

// Server emulates the backend collaborator in-process: the three REST reads
// the sync core consumes plus the event channel. Local runs and integration
// tests drive it through the Push* methods.
type Server struct {
	log *slog.Logger
	hub *Hub

	mu            sync.Mutex
	conversations map[string]conversation.Conversation
	users         map[string]user.Profile
}

func New(log *slog.Logger) *Server {
	s := &Server{
		log:           log,
		hub:           NewHub(),
		conversations: make(map[string]conversation.Conversation),
		users:         make(map[string]user.Profile),
	}

	go s.hub.Run()

	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/conversations", s.getConversations())
	r.Get("/conversations/{conversationId}", s.getConversation())
	r.Get("/users/{userId}", s.getUser())
	r.Get("/ws", s.wsHandler())

	return r
}

func (s *Server) SeedUser(p user.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[p.ID] = p
}

func (s *Server) SeedConversation(conv conversation.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
}

// userOf reads the dev auth convention: the bearer token is the user id.
func userOf(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok && after != "" {
		return after
	}
	return r.URL.Query().Get("user_id")
}

func (s *Server) getConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "devserver.getConversations"

		log := s.log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID := userOf(r)
		if userID == "" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("missing user"))
			return
		}

		s.mu.Lock()
		list := make([]conversation.Conversation, 0, len(s.conversations))
		for _, conv := range s.conversations {
			if conv.IsMember(userID) || conv.IsFormerMember(userID) {
				list = append(list, conv.Clone())
			}
		}
		s.mu.Unlock()

		log.Debug("conversations served", slog.Int("count", len(list)))

		render.JSON(w, r, map[string]any{
			"status":        resp.StatusOK,
			"conversations": list,
		})
	}
}

func (s *Server) getConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "conversationId")

		s.mu.Lock()
		conv, ok := s.conversations[id]
		s.mu.Unlock()

		if !ok {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("conversation not found"))
			return
		}

		render.JSON(w, r, map[string]any{
			"status":       resp.StatusOK,
			"conversation": conv.Clone(),
		})
	}
}

func (s *Server) getUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "userId")

		s.mu.Lock()
		p, ok := s.users[id]
		s.mu.Unlock()

		if !ok {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("user not found"))
			return
		}

		render.JSON(w, r, map[string]any{
			"status": resp.StatusOK,
			"user":   p,
		})
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type clientFrame struct {
	Type            string   `json:"type"`
	ConversationIDs []string `json:"conversation_ids"`
}

func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "devserver.wsHandler"

		log := s.log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("ws upgrade error", sl.Err(err))
			return
		}
		defer conn.Close()

		hc := NewConnection(conn, userOf(r))
		go hc.WritePump()

		s.hub.Register(hc)
		defer s.hub.Unregister(hc)

		hello, _ := json.Marshal(map[string]any{"type": "hello", "ok": true})
		hc.Send(hello)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var frame clientFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				log.Error("ws bad json", sl.Err(err))
				continue
			}

			switch frame.Type {
			case "subscribe":
				s.hub.Subscribe(hc, frame.ConversationIDs)
			default:
				log.Info("ws unknown frame type", slog.String("frame_type", frame.Type))
			}
		}
	}
}

func (s *Server) emit(conversationID string, ev channel.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("emit marshal failed", sl.Err(err))
		return
	}
	s.hub.Broadcast(conversationID, payload)
}

// PushNewMessage applies a message to the fixture state and broadcasts the
// newMessage event to the conversation room.
func (s *Server) PushNewMessage(conversationID string, msg message.Message) {
	s.mu.Lock()
	if conv, ok := s.conversations[conversationID]; ok {
		m := msg
		conv.LastMessage = &m
		if msg.CreatedAt.After(conv.LastChange) {
			conv.LastChange = msg.CreatedAt
		}
		s.conversations[conversationID] = conv
	}
	s.mu.Unlock()

	s.emit(conversationID, channel.Event{
		Type:           channel.EventNewMessage,
		ConversationID: conversationID,
		Message:        &msg,
	})
}

func (s *Server) PushNewConversation(conv conversation.Conversation) {
	s.SeedConversation(conv)

	payload, err := json.Marshal(channel.Event{
		Type:         channel.EventNewConversation,
		Conversation: &conv,
	})
	if err != nil {
		s.log.Error("emit marshal failed", sl.Err(err))
		return
	}

	s.hub.BroadcastAll(payload)
}

func (s *Server) PushMemberAdded(conversationID, addedUserID, addedByID string) {
	s.emit(conversationID, channel.Event{
		Type:           channel.EventMemberAdded,
		ConversationID: conversationID,
		AddedUserID:    addedUserID,
		AddedByID:      addedByID,
	})
}

func (s *Server) PushMemberRemoved(conversationID, userID string) {
	s.mu.Lock()
	if conv, ok := s.conversations[conversationID]; ok {
		members := conv.GroupMembers[:0:0]
		for _, m := range conv.GroupMembers {
			if m != userID {
				members = append(members, m)
			}
		}
		conv.GroupMembers = members
		conv.FormerMembers = append(conv.FormerMembers, userID)
		s.conversations[conversationID] = conv
	}
	s.mu.Unlock()

	s.emit(conversationID, channel.Event{
		Type:           channel.EventMemberRemoved,
		ConversationID: conversationID,
		UserID:         userID,
	})
}

func (s *Server) PushGroupDeleted(conversationID string) {
	s.mu.Lock()
	delete(s.conversations, conversationID)
	s.mu.Unlock()

	s.emit(conversationID, channel.Event{
		Type:           channel.EventGroupDeleted,
		ConversationID: conversationID,
	})
}
