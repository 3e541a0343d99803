// Package ws fans hub events out to WebSocket subscribers.
//
// Each connection walks a small state machine: CONNECTING on upgrade,
// AUTHENTICATING until a valid key arrives (first message or request
// header), READY while serving, DRAINING during shutdown, CLOSED at
// the end. Close codes: 1000 normal, 1008 policy, 1013 backpressure,
// 4001 authentication timeout.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kanbanhq/kanban/internal/config"
	"github.com/kanbanhq/kanban/internal/eventbus"
)

// CloseAuthTimeout is the close code for connections that never
// authenticate.
const CloseAuthTimeout = 4001

// Gateway upgrades HTTP connections and bridges them to the hub.
type Gateway struct {
	hub  *eventbus.Hub
	cfg  config.WebSocketConfig
	auth config.AuthConfig
	log  zerolog.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// New builds a gateway serving cfg.Path.
func New(hub *eventbus.Hub, cfg config.WebSocketConfig, auth config.AuthConfig, logger zerolog.Logger) *Gateway {
	return &Gateway{
		hub:  hub,
		cfg:  cfg,
		auth: auth,
		log:  logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
}

// ServeHTTP upgrades the request and runs the connection until close.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	full := len(g.conns) >= g.cfg.MaxConnections
	g.mu.Unlock()
	if full {
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	c := newConn(g, sock)
	g.track(c)
	defer g.untrack(c)

	// A valid key on the upgrade request authenticates immediately.
	if !g.auth.Enabled() || g.auth.Verify(requestKey(r)) {
		c.setState(StateReady)
		c.sendControl(map[string]any{"type": "auth_ok"})
	} else {
		c.setState(StateAuthenticating)
	}

	go c.writeLoop()
	c.readLoop()
}

func (g *Gateway) track(c *conn) {
	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()
}

func (g *Gateway) untrack(c *conn) {
	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()
}

// ConnectionCount reports live connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Shutdown drains every connection, waiting up to the context deadline
// for outbound queues to flush before forcing close.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.mu.Lock()
	conns := make([]*conn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.drain()
	}

	deadline := time.NewTimer(5 * time.Second)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if g.ConnectionCount() == 0 {
			return
		}
		select {
		case <-ctx.Done():
		case <-deadline.C:
		case <-ticker.C:
			continue
		}
		break
	}
	for _, c := range conns {
		c.closeWith(websocket.CloseNormalClosure, "server shutdown")
	}
}

func requestKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	return r.Header.Get("X-API-Key")
}
