// Package ws implements the admin WebSocket channel broadcasting device
// state-transition events, at-least-once best-effort delivery with drop
// counting for slow consumers.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetops/devicecontrol/internal/models"
)

// clientSendBuffer bounds how many undelivered events a single connection
// will queue before it's considered slow and events start dropping for it.
const clientSendBuffer = 256

// writeTimeout bounds a single outbound frame write.
const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub broadcasts device state-transition events to every connected admin
// WebSocket client.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}

	dropped atomic.Int64
}

type client struct {
	conn *websocket.Conn
	send chan models.StateTransitionEvent
}

// NewHub constructs an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*client]struct{})}
}

// Run drains the given event source and broadcasts every event to connected
// clients until the channel closes.
func (h *Hub) Run(events <-chan models.StateTransitionEvent) {
	for evt := range events {
		h.broadcast(evt)
	}
}

func (h *Hub) broadcast(evt models.StateTransitionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- evt:
		default:
			h.dropped.Add(1)
			h.logger.Warn("ws: dropping event for slow client", slog.String("type", evt.Type))
		}
	}
}

// DroppedCount reports the cumulative number of events dropped for slow
// consumers.
func (h *Hub) DroppedCount() int64 {
	return h.dropped.Load()
}

// ServeHTTP upgrades the connection and registers it as a broadcast
// recipient until it disconnects. Mount behind middleware.AdminAuth.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{conn: conn, send: make(chan models.StateTransitionEvent, clientSendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.readLoop(c)
	h.writeLoop(c)
}

// readLoop discards inbound frames but is required to surface disconnects
// and respond to control frames (gorilla/websocket's documented pattern).
func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for evt := range c.send {
		payload, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
