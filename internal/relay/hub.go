// Package relay is a local stand-in for the backend's event channel: a
// WebSocket endpoint that groups connections into per-household rooms and
// broadcasts domain events to every member. It exists for development and
// integration testing of the sync client; production clients talk to the
// real backend.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/trackerhq/tracker-core/internal/event"
)

// Hub maintains per-household rooms of connected clients.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a client to its household room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.household]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.household] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from its room, dropping the room when empty.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.household]; ok {
		if _, member := room[c]; member {
			delete(room, c)
			close(c.send)
			if len(room) == 0 {
				delete(h.rooms, c.household)
			}
		}
	}
	h.mu.Unlock()
}

// Broadcast sends an event frame to every member of the household's room.
func (h *Hub) Broadcast(householdID string, kind event.Kind, data map[string]any) {
	frame, err := json.Marshal(event.Message{Event: kind, Data: data})
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[householdID] {
		select {
		case c.send <- frame:
		default:
			// Client buffer full — drop the frame rather than block the room
		}
	}
}

// ActiveCount returns the number of clients in the household's room.
func (h *Hub) ActiveCount(householdID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[householdID])
}
