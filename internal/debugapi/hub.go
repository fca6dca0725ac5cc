package debugapi

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/switchsentry/internal/infrastructure/logging"
)

// wsSendBufferSize is the per-client outbound message buffer size.
const wsSendBufferSize = 256

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

// fireEvent is broadcast to every connected client on each rule fire.
type fireEvent struct {
	Type      string `json:"type"`
	Rule      string `json:"rule"`
	Entity    string `json:"entity"`
	Timestamp string `json:"timestamp"`
}

// Hub fans out rule-fire events to every connected debug WebSocket client,
// trimmed from the core's subscribe/unsubscribe channel model down to a
// single always-on feed: the debug surface has one audience (whoever is
// watching live), not per-client channel selection.
type Hub struct {
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub returns an empty Hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*client]struct{})}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("debug websocket client connected", "clients", h.clientCount())
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if existed {
		close(c.send)
	}
	h.logger.Debug("debug websocket client disconnected", "clients", h.clientCount())
}

// WriteRuleFire implements automation.HistoryWriter, broadcasting the fire
// to every connected client. Satisfies the interface by name only — the
// automation package never imports this one.
func (h *Hub) WriteRuleFire(ruleName, entityKey string) {
	data, err := json.Marshal(fireEvent{
		Type:      "rule.fire",
		Rule:      ruleName,
		Entity:    entityKey,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Close disconnects every client, used during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
	}
	h.clients = make(map[*client]struct{})
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
