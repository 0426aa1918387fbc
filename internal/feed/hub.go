package feed

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/osadchyi/cansat-ground/internal/session"
	"github.com/osadchyi/cansat-ground/internal/telemetry"
)

// writeWait bounds a single push to one client; a stuck client is
// dropped rather than stalling the broadcast.
const writeWait = time.Second

// Hub pushes session events to connected dashboard clients over
// WebSocket. It implements session.Observer.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

var _ session.Observer = (*Hub)(nil)

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			// The dashboard is served from anywhere on the local net
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.With(slog.String("component", "feed.hub")),
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades the connection and keeps it registered until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", slog.Int("clients", count))

	// Inbound messages are not part of the protocol; reading only
	// detects the close.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close drops every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	return nil
}

// OnSample pushes an accepted sample to every client.
func (h *Hub) OnSample(sample telemetry.Sample, logged bool) {
	h.broadcast(map[string]any{
		"type":   "sample",
		"logged": logged,
		"sample": sample,
	})
}

// OnStatus pushes a session status snapshot to every client.
func (h *Hub) OnStatus(status session.Status) {
	h.broadcast(map[string]any{
		"type":   "status",
		"status": status,
	})
}

func (h *Hub) broadcast(event map[string]any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshalling event", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Info("dropping client", slog.String("error", err.Error()))
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	conn.Close()

	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		h.logger.Info("client disconnected", slog.Int("clients", len(h.clients)))
	}
	h.mu.Unlock()
}
