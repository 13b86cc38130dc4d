package registry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"p2p-chat/core"
)

const writeWait = 5 * time.Second

// Hub fans presence events out to WebSocket subscribers. A subscriber that
// cannot keep up is dropped; the hub never blocks the registry.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*websocket.Conn
	log     *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[string]*websocket.Conn),
		log:     log,
	}
}

// Add registers a subscriber under id.
func (h *Hub) Add(id string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = conn
	h.log.Infow("presence subscriber connected", "id", id, "total", len(h.clients))
}

// Remove drops a subscriber. Safe to call twice.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		h.log.Infow("presence subscriber disconnected", "id", id, "total", len(h.clients))
	}
}

// Broadcast sends the event to every subscriber. Write failures disconnect
// the subscriber.
func (h *Hub) Broadcast(ev core.PresenceEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warnw("presence event marshal failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Warnw("dropping presence subscriber", "id", id, "error", err)
			conn.Close()
			delete(h.clients, id)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.clients {
		conn.Close()
		delete(h.clients, id)
	}
}
