package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// clientBufferSize bounds per-client queues; a stalled observer drops
	// events rather than stalling the runtime.
	clientBufferSize = 256

	writeTimeout = 10 * time.Second
)

// Hub broadcasts runtime events to WebSocket observers. It implements both
// Emitter (runtime side) and http.Handler (observer side); events are
// forwarded verbatim as JSON.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
	closed  bool
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub with no connected observers.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
	}
}

// Emit implements Emitter. Marshal failures and full client buffers are
// logged and dropped; the runtime never waits on an observer.
func (h *Hub) Emit(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("Failed to marshal event for broadcast", "kind", string(event.Kind), "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("Dropping event for slow observer", "kind", string(event.Kind))
		}
	}
}

// ServeHTTP upgrades the request and streams events until the observer
// disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &hubClient{
		conn: conn,
		send: make(chan []byte, clientBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Observer connected", "remote", r.RemoteAddr, "observers", count)

	go h.readLoop(client)
	h.writeLoop(client)
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all observers. The hub accepts no connections afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// readLoop drains inbound frames so pings are answered and disconnects are
// detected. Observers are read-only; payloads are discarded.
func (h *Hub) readLoop(client *hubClient) {
	defer h.remove(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(client *hubClient) {
	defer func() { _ = client.conn.Close() }()
	for data := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(client)
			return
		}
	}
}

func (h *Hub) remove(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}
