package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is a change notification pushed to the clients of one family.
// Type is "<entity>_<action>", e.g. "packing_list_item_added".
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   entity + "_" + action,
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub keeps connected clients grouped by family. A message never leaves
// the family it was sent to.
type Hub struct {
	mu       sync.RWMutex
	families map[int64]map[*Client]struct{}
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		families: make(map[int64]map[*Client]struct{}),
		logger:   logger.With("component", "websocket"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.families[c.familyID]
	if !ok {
		members = make(map[*Client]struct{})
		h.families[c.familyID] = members
	}
	members[c] = struct{}{}
}

// Unregister drops c and closes its outbox. Calling it twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.families[c.familyID]
	if _, ok := members[c]; !ok {
		return
	}
	delete(members, c)
	close(c.outbox)
	if len(members) == 0 {
		delete(h.families, c.familyID)
	}
}

// Broadcast queues msg for every client of familyID. A client whose outbox
// is full misses the message.
func (h *Hub) Broadcast(familyID int64, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode message", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.families[familyID] {
		select {
		case c.outbox <- payload:
		default:
			h.logger.Debug("outbox full, message dropped", "family_id", familyID, "type", msg.Type)
		}
	}
}

// Notify lets the hub serve as the packing service's notifier.
func (h *Hub) Notify(familyID int64, entity, action string, id int64, extra map[string]any) {
	h.Broadcast(familyID, NewMessage(entity, action, id, extra))
}

// ClientCount counts connections across all families.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, members := range h.families {
		n += len(members)
	}
	return n
}

// FamilyClientCount counts the connections of one family.
func (h *Hub) FamilyClientCount(familyID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.families[familyID])
}
