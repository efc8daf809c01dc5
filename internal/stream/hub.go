// Package stream pushes telemetry snapshots to websocket subscribers as
// JSON. It is a machine-readable feed for dashboards and loggers, not a UI.
package stream

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/uavlink/gcs/internal/telemetry"
)

// clientQueueSize bounds the per-subscriber backlog. A subscriber that
// cannot keep up is dropped rather than allowed to stall the poll loop.
const clientQueueSize = 16

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger.With(slog.String("component", "stream"))
	}
}

// Hub fans telemetry snapshots out to websocket subscribers.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(options ...Option) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(h)
	}

	return h
}

// Handler returns the subscription endpoint to mount on a mux.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		c := &client{
			conn: conn,
			send: make(chan []byte, clientQueueSize),
		}

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			_ = conn.Close()
			return
		}
		h.clients[c] = struct{}{}
		n := len(h.clients)
		h.mu.Unlock()

		h.logger.Info("subscriber connected",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.Int("subscribers", n))

		go h.writeLoop(c)
		h.readLoop(c)
	})
}

// Publish broadcasts one snapshot. It never blocks: a subscriber whose
// queue is full is disconnected.
func (h *Hub) Publish(snap telemetry.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		h.logger.Error("encoding snapshot", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("dropping slow subscriber",
				slog.String("remote", c.conn.RemoteAddr().String()))
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) writeLoop(c *client) {
	defer func() { _ = c.conn.Close() }()

	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readLoop drains and discards inbound frames so pings and close frames
// are processed; it returns when the subscriber goes away.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}
