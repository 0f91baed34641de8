package event

import (
	"log/slog"
	"sync"

	"github.com/chatforge/chatforge/pkg/utils"
)

// sendBuffer is the per-connection frame queue. A connection that
// falls this far behind starts dropping frames instead of blocking
// the hub.
const sendBuffer = 64

type client struct {
	send chan Frame
}

// Hub fans frames out to every socket joined to a conversation.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*client]bool
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[string]map[*client]bool),
		logger: utils.GetLogger(),
	}
}

// join registers a new client in the conversation's room.
func (h *Hub) join(conversationID string) *client {
	c := &client{send: make(chan Frame, sendBuffer)}
	h.mu.Lock()
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[*client]bool)
		h.rooms[conversationID] = room
	}
	room[c] = true
	h.mu.Unlock()
	return c
}

// leave removes the client and drops empty rooms.
func (h *Hub) leave(conversationID string, c *client) {
	h.mu.Lock()
	if room, ok := h.rooms[conversationID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	h.mu.Unlock()
}

// Broadcast queues the frame for every client in the conversation's
// room. Frames to slow consumers are dropped, never blocked on.
func (h *Hub) Broadcast(conversationID string, f Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		select {
		case c.send <- f:
		default:
			h.logger.Warn("Dropped frame for slow consumer",
				"conversation", conversationID, "type", f.Type)
		}
	}
}

// RoomSize reports the number of clients joined to a conversation.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}
