package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kanbanhq/kanban/internal/eventbus"
)

// State is a connection's lifecycle position.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateReady
	StateDraining
	StateClosed
)

const writeWait = 10 * time.Second

// clientMessage is the inbound message shape. Unknown types are
// answered with an error message rather than a close.
type clientMessage struct {
	Type    string   `json:"type"`
	Key     string   `json:"key,omitempty"`
	BoardID int64    `json:"board_id,omitempty"`
	Events  []string `json:"events,omitempty"`
}

type conn struct {
	g    *Gateway
	ws   *websocket.Conn
	log  zerolog.Logger
	send chan []byte
	stop chan struct{}

	mu       sync.Mutex
	state    State
	draining bool
	subs     map[int64]*eventbus.Subscription

	// inbound message budget, one minute window
	msgCount   int
	msgWindow  time.Time
	closeOnce  sync.Once
	forwarders sync.WaitGroup
}

func newConn(g *Gateway, ws *websocket.Conn) *conn {
	return &conn{
		g:    g,
		ws:   ws,
		log:  g.log.With().Str("remote", ws.RemoteAddr().String()).Logger(),
		send: make(chan []byte, g.cfg.WriteQueueSize),
		stop: make(chan struct{}),
		subs: make(map[int64]*eventbus.Subscription),
	}
}

func (c *conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *conn) getState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// readLoop owns the socket's read side. It enforces the auth deadline,
// the pong deadline, and the inbound message budget.
func (c *conn) readLoop() {
	defer c.closeWith(websocket.CloseNormalClosure, "")

	if c.getState() == StateAuthenticating {
		timer := time.AfterFunc(c.g.cfg.AuthTimeout, func() {
			if c.getState() == StateAuthenticating {
				c.closeWith(CloseAuthTimeout, "authentication timeout")
			}
		})
		defer timer.Stop()
	}

	c.ws.SetReadDeadline(time.Now().Add(c.g.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.g.cfg.PongTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.g.cfg.PongTimeout))
		if !c.allowInbound() {
			c.closeWith(websocket.ClosePolicyViolation, "message rate exceeded")
			return
		}
		if !c.handle(data) {
			return
		}
	}
}

// allowInbound counts one inbound message against the minute budget.
func (c *conn) allowInbound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.Sub(c.msgWindow) >= time.Minute {
		c.msgWindow = now
		c.msgCount = 0
	}
	c.msgCount++
	return c.msgCount <= c.g.cfg.InboundPerMinute
}

// handle processes one client message. It returns false when the
// connection should stop reading.
func (c *conn) handle(data []byte) bool {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendControl(map[string]any{"type": "error", "message": "invalid JSON"})
		return true
	}

	if c.getState() == StateAuthenticating {
		if msg.Type != "auth" {
			c.closeWith(websocket.ClosePolicyViolation, "authenticate first")
			return false
		}
		if !c.g.auth.Verify(msg.Key) {
			c.closeWith(websocket.ClosePolicyViolation, "invalid API key")
			return false
		}
		c.setState(StateReady)
		c.sendControl(map[string]any{"type": "auth_ok"})
		return true
	}

	switch msg.Type {
	case "auth":
		c.sendControl(map[string]any{"type": "auth_ok"})
	case "subscribe":
		c.subscribe(msg.BoardID, msg.Events)
	case "unsubscribe":
		c.unsubscribe(msg.BoardID)
	case "ping":
		c.sendControl(map[string]any{"type": "pong"})
	default:
		c.sendControl(map[string]any{"type": "error", "message": "unknown message type"})
	}
	return true
}

func (c *conn) subscribe(boardID int64, events []string) {
	c.mu.Lock()
	if len(c.subs) >= c.g.cfg.MaxSubscriptions {
		c.mu.Unlock()
		c.sendControl(map[string]any{"type": "error", "message": "subscription limit reached"})
		return
	}
	if old, ok := c.subs[boardID]; ok {
		old.Close()
		delete(c.subs, boardID)
	}
	mask := make([]eventbus.EventType, 0, len(events))
	for _, e := range events {
		mask = append(mask, eventbus.EventType(e))
	}
	sub := c.g.hub.Subscribe(boardID, mask...)
	c.subs[boardID] = sub
	c.mu.Unlock()

	c.forwarders.Add(1)
	go c.forward(sub)
	c.sendControl(map[string]any{"type": "subscribed", "board_id": boardID})
}

func (c *conn) unsubscribe(boardID int64) {
	c.mu.Lock()
	sub, ok := c.subs[boardID]
	if ok {
		delete(c.subs, boardID)
	}
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
	c.sendControl(map[string]any{"type": "unsubscribed", "board_id": boardID})
}

// forward pumps one subscription into the write queue.
func (c *conn) forward(sub *eventbus.Subscription) {
	defer c.forwarders.Done()
	for ev := range sub.C {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		c.enqueue(data)
	}
}

// enqueue appends to the write queue; a full queue means the client
// cannot keep up and the connection is closed with 1013.
func (c *conn) enqueue(data []byte) {
	select {
	case c.send <- data:
	case <-c.stop:
	default:
		c.closeWith(websocket.CloseTryAgainLater, "write queue overflow")
	}
}

func (c *conn) sendControl(body map[string]any) {
	data, err := json.Marshal(body)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// writeLoop owns the socket's write side: queued messages, heartbeat
// pings, and the drain-then-close sequence.
func (c *conn) writeLoop() {
	heartbeat := time.NewTicker(c.g.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.stop:
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.closeWith(websocket.CloseNormalClosure, "")
				return
			}
			c.mu.Lock()
			done := c.draining && len(c.send) == 0
			c.mu.Unlock()
			if done {
				c.closeWith(websocket.CloseNormalClosure, "server shutdown")
				return
			}
		case <-heartbeat.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseNormalClosure, "")
				return
			}
		}
	}
}

// drain flips the connection into DRAINING: queued events still go
// out, then the writer closes with 1000. An idle queue closes at once.
func (c *conn) drain() {
	c.mu.Lock()
	c.draining = true
	c.state = StateDraining
	empty := len(c.send) == 0
	c.mu.Unlock()
	if empty {
		c.closeWith(websocket.CloseNormalClosure, "server shutdown")
	}
}

// closeWith sends a close frame, tears down subscriptions, and
// releases both loops. Safe to call from any goroutine, once wins.
func (c *conn) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		subs := make([]*eventbus.Subscription, 0, len(c.subs))
		for _, sub := range c.subs {
			subs = append(subs, sub)
		}
		c.subs = make(map[int64]*eventbus.Subscription)
		c.mu.Unlock()

		for _, sub := range subs {
			sub.Close()
		}

		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		close(c.stop)
		_ = c.ws.Close()
		c.log.Debug().Int("code", code).Str("reason", reason).Msg("connection closed")
	})
}
