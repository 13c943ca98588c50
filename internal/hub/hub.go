// Package hub tracks live connections and provides the broadcast and
// unicast delivery primitives the rest of the server builds on.
package hub

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Outbound frames are buffered per client; a client that cannot drain its
// buffer has frames dropped rather than stalling delivery to others.
const sendBuffer = 64

// Client is one live connection. The transport (websocket write pump)
// drains Outbound; the hub owns the channel's lifecycle.
type Client struct {
	ID   uuid.UUID
	send chan []byte
}

func NewClient() *Client {
	return &Client{
		ID:   uuid.New(),
		send: make(chan []byte, sendBuffer),
	}
}

// Outbound is the stream of frames queued for this client. It is closed
// when the client is unregistered.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Hub is the connection registry. Register/Unregister take the write lock;
// Broadcast and Unicast run under the read lock, so a channel is never
// closed while a delivery is in flight.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

func New() *Hub {
	return &Hub{clients: make(map[uuid.UUID]*Client)}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	log.Debug("client registered", "id", c.ID, "clients", len(h.clients))
}

// Unregister removes the client and closes its outbound channel. Safe to
// call for a client that was never registered or was already removed.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	close(c.send)
	log.Debug("client unregistered", "id", c.ID, "clients", len(h.clients))
}

// Broadcast queues the frame for every connected client, best effort. A
// client with a full buffer misses the frame; others are unaffected.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			log.Warn("dropping frame for slow client", "id", c.ID)
		}
	}
}

// Unicast queues the frame for exactly one client. Returns false if the
// client is gone or its buffer is full.
func (h *Hub) Unicast(id uuid.UUID, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		log.Warn("dropping frame for slow client", "id", id)
		return false
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
