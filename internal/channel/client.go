package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kgellert/hodatay-client/internal/config"
	"github.com/kgellert/hodatay-client/internal/lib/logger/sl"
)

const pongWait = 60 * time.Second

type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Client holds the single logical event-channel connection for a signed-in
// session. It reconnects on its own and replays the subscribe frame for
// every joined room before delivering further events. Missed events are not
// replayed; the engine compensates with a refresh.
type Client struct {
	cfg   config.ChannelConfig
	token string
	log   *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	joined   map[string]struct{}
	handlers map[EventType][]subscription
	nextSub  int
	closed   bool

	done chan struct{}
	wg   sync.WaitGroup
}

func New(cfg config.ChannelConfig, token string, log *slog.Logger) *Client {
	return &Client{
		cfg:      cfg,
		token:    token,
		log:      log,
		joined:   make(map[string]struct{}),
		handlers: make(map[EventType][]subscription),
		done:     make(chan struct{}),
	}
}

// Connect dials the channel and starts the read loop. It returns once the
// first connection attempt resolves; later disconnects are handled
// internally with backoff.
func (c *Client) Connect(ctx context.Context) error {
	const op = "channel.Connect"

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("%s: client is closed", op)
	}
	c.conn = conn
	c.wg.Add(2)
	c.mu.Unlock()

	if err := c.resubscribe(conn); err != nil {
		c.log.Error("initial subscribe failed", sl.Err(err))
	}

	go c.readLoop(conn)
	go c.pingLoop(conn)

	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	return conn, nil
}

// JoinConversations subscribes to the given rooms. Already-joined ids are
// skipped, so repeated calls are no-ops.
func (c *Client) JoinConversations(ids []string) {
	c.mu.Lock()

	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := c.joined[id]; ok {
			continue
		}
		c.joined[id] = struct{}{}
		fresh = append(fresh, id)
	}

	conn := c.conn
	c.mu.Unlock()

	if len(fresh) == 0 || conn == nil {
		return
	}

	if err := c.writeJSON(conn, subscribeFrame{Type: "subscribe", ConversationIDs: fresh}); err != nil {
		c.log.Error("subscribe write failed", sl.Err(err))
	}
}

func (c *Client) JoinConversation(id string) {
	c.JoinConversations([]string{id})
}

// On registers a handler for one event type and returns a token for Off.
func (c *Client) On(t EventType, fn Handler) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSub++
	c.handlers[t] = append(c.handlers[t], subscription{id: c.nextSub, fn: fn})

	return c.nextSub
}

func (c *Client) Off(t EventType, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := c.handlers[t]
	for i, s := range subs {
		if s.id == id {
			c.handlers[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (c *Client) OnNewMessage(fn Handler) int      { return c.On(EventNewMessage, fn) }
func (c *Client) OnNewConversation(fn Handler) int { return c.On(EventNewConversation, fn) }
func (c *Client) OnMemberAdded(fn Handler) int     { return c.On(EventMemberAdded, fn) }
func (c *Client) OnMemberRemoved(fn Handler) int   { return c.On(EventMemberRemoved, fn) }
func (c *Client) OnGroupDeleted(fn Handler) int    { return c.On(EventGroupDeleted, fn) }

// Close tears the channel down: no reconnects, no further dispatch.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.handlers = make(map[EventType][]subscription)
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
		_ = conn.Close()
	}

	c.wg.Wait()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()

			if !closed {
				c.log.Warn("channel read failed, reconnecting", sl.Err(err))
				go c.reconnect()
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Error("channel bad json", sl.Err(err))
			continue
		}

		if ev.Type == "hello" {
			continue
		}

		if err := ev.Validate(); err != nil {
			c.log.Error("channel dropped event", sl.Err(err))
			continue
		}

		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev Event) {
	c.mu.Lock()
	subs := make([]subscription, len(c.handlers[ev.Type]))
	copy(subs, c.handlers[ev.Type])
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// reconnect redials with capped exponential backoff and re-joins every room
// before the new read loop starts, so subscriptions survive the drop.
func (c *Client) reconnect() {
	backoff := c.cfg.ReconnectMin

	for {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.dial(context.Background())
		if err != nil {
			c.log.Warn("channel redial failed", sl.Err(err))
			backoff *= 2
			if backoff > c.cfg.ReconnectMax {
				backoff = c.cfg.ReconnectMax
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.wg.Add(2)
		c.mu.Unlock()

		if err := c.resubscribe(conn); err != nil {
			c.log.Error("resubscribe failed", sl.Err(err))
		}

		go c.readLoop(conn)
		go c.pingLoop(conn)

		c.log.Info("channel reconnected")
		return
	}
}

func (c *Client) resubscribe(conn *websocket.Conn) error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.joined))
	for id := range c.joined {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	return c.writeJSON(conn, subscribeFrame{Type: "subscribe", ConversationIDs: ids})
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteJSON(v)
}
