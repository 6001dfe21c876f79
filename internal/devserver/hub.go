package devserver

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

type Connection struct {
	conn            *websocket.Conn
	send            chan []byte
	conversationIDs map[string]struct{}
	userID          string
	closeOnce       sync.Once
}

func (c *Connection) UserID() string { return c.userID }

type SubscribeCmd struct {
	c               *Connection
	conversationIDs []string
}

type BroadcastCmd struct {
	ConversationID string
	Payload        []byte
	ExcludeUser    string
}

// Hub routes event frames to the connections subscribed to a conversation
// room. One goroutine owns all the maps; everything else talks to it over
// the command channels.
type Hub struct {
	register     chan *Connection
	unregister   chan *Connection
	subscribe    chan SubscribeCmd
	broadcast    chan BroadcastCmd
	broadcastAll chan []byte
	rooms        map[string]map[*Connection]struct{}
	conns        map[*Connection]struct{}
}

func NewConnection(conn *websocket.Conn, userID string) *Connection {
	return &Connection{
		conn:            conn,
		send:            make(chan []byte, 128),
		conversationIDs: make(map[string]struct{}),
		userID:          userID,
	}
}

func NewHub() *Hub {
	return &Hub{
		register:     make(chan *Connection, 64),
		unregister:   make(chan *Connection, 64),
		subscribe:    make(chan SubscribeCmd, 64),
		broadcast:    make(chan BroadcastCmd, 256),
		broadcastAll: make(chan []byte, 256),
		rooms:        make(map[string]map[*Connection]struct{}),
		conns:        make(map[*Connection]struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.conns[c] = struct{}{}

		case c := <-h.unregister:
			delete(h.conns, c)
			for id := range c.conversationIDs {
				room := h.rooms[id]
				if room == nil {
					continue
				}
				delete(room, c)
				if len(room) == 0 {
					delete(h.rooms, id)
				}
			}
			c.CloseSend()

		case cmd := <-h.subscribe:
			for _, id := range cmd.conversationIDs {
				room := h.rooms[id]
				if room == nil {
					room = make(map[*Connection]struct{})
					h.rooms[id] = room
				}
				room[cmd.c] = struct{}{}
				cmd.c.conversationIDs[id] = struct{}{}
			}

		case b := <-h.broadcast:
			room := h.rooms[b.ConversationID]
			if room == nil {
				continue
			}

			for c := range room {
				if b.ExcludeUser != "" && c.userID == b.ExcludeUser {
					continue
				}
				c.Send(b.Payload)
			}

		case payload := <-h.broadcastAll:
			for c := range h.conns {
				c.Send(payload)
			}
		}
	}
}

// BroadcastAll fans a frame out to every connection regardless of room;
// newConversation has to reach clients that could not have joined yet.
func (h *Hub) BroadcastAll(payload []byte) {
	h.broadcastAll <- payload
}

func (h *Hub) Register(c *Connection) {
	h.register <- c
}

func (h *Hub) Unregister(c *Connection) {
	h.unregister <- c
}

func (h *Hub) Subscribe(c *Connection, conversationIDs []string) {
	h.subscribe <- SubscribeCmd{
		c:               c,
		conversationIDs: conversationIDs,
	}
}

func (h *Hub) Broadcast(conversationID string, payload []byte) {
	h.broadcast <- BroadcastCmd{
		ConversationID: conversationID,
		Payload:        payload,
	}
}

func (h *Hub) BroadcastExceptUser(conversationID string, payload []byte, excludeUserID string) {
	h.broadcast <- BroadcastCmd{
		ConversationID: conversationID,
		Payload:        payload,
		ExcludeUser:    excludeUserID,
	}
}

func (c *Connection) Send(b []byte) {
	select {
	case c.send <- b:
	default:
	}
}

func (c *Connection) CloseSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
