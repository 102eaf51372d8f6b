package realtime

import (
	"encoding/json"
	"sync"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/pkg/logger"
	"github.com/jwalitptl/task-notifier/pkg/metrics"
)

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func encode(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: payload})
}

// Hub indexes live sessions by socket id and by room. Emission never blocks: a client
// whose send buffer is full is disconnected.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[*Client]struct{}

	metrics *metrics.Metrics
	logger  *logger.Logger
}

func NewHub(m *metrics.Metrics, log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]struct{}),
		metrics: m,
		logger:  log.With("component", "hub"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.metrics.ActiveConnections.Inc()
}

// Unregister drops the client from every room and reports whether it was the user's last
// session on this node.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.clients, c.id)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	last := len(h.rooms[model.UserRoom(c.session.UserID)]) == 0
	h.mu.Unlock()

	h.metrics.ActiveConnections.Dec()
	c.close()
	return last
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

func (h *Hub) EmitToRoom(room, event string, payload interface{}) int {
	return h.emitToRoom(room, event, payload, nil)
}

// EmitToRoomExcept skips the sending client.
func (h *Hub) EmitToRoomExcept(room, event string, payload interface{}, except *Client) int {
	return h.emitToRoom(room, event, payload, except)
}

// EmitToRoomExceptUser skips every session of userID; an empty id skips nobody.
func (h *Hub) EmitToRoomExceptUser(room, event string, payload interface{}, userID string) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if userID != "" && c.session.UserID == userID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	return h.deliver(targets, event, payload)
}

func (h *Hub) emitToRoom(room, event string, payload interface{}, except *Client) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, event, payload)
}

// Broadcast reaches every session except those belonging to exceptUserID.
func (h *Hub) Broadcast(event string, payload interface{}, exceptUserID string) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if exceptUserID != "" && c.session.UserID == exceptUserID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	return h.deliver(targets, event, payload)
}

func (h *Hub) deliver(targets []*Client, event string, payload interface{}) int {
	if len(targets) == 0 {
		return 0
	}

	data, err := encode(event, payload)
	if err != nil {
		h.logger.Error(err, "Failed to encode outbound event", "event", event)
		return 0
	}

	sent := 0
	for _, c := range targets {
		if c.enqueue(data) {
			sent++
			continue
		}
		h.logger.Warn("Client too slow, disconnecting", "socket_id", c.id, "user_id", c.session.UserID)
	}
	return sent
}
