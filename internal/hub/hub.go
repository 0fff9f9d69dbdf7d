// Package hub tracks which live connections are subscribed to which
// chat rooms and fans payloads out to them.
package hub

import (
	"sync"

	"go.uber.org/zap"
)

// Conn is a live connection handle. Send must never block; it reports
// whether the payload was accepted (a slow or closed connection drops
// the payload and returns false).
type Conn interface {
	ID() string
	UserID() string
	Send(payload []byte) bool
}

// Hub maps connections to the chat rooms they are watching. A
// connection is a member of a room only while its owning user is a
// participant and the connection is live; the websocket handler keeps
// that in step with connect/disconnect and chat-creation events.
type Hub struct {
	mu     sync.RWMutex
	byChat map[string]map[string]Conn     // chat id -> conn id -> conn
	byConn map[string]map[string]struct{} // conn id -> chat ids
	log    *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		byChat: make(map[string]map[string]Conn),
		byConn: make(map[string]map[string]struct{}),
		log:    log,
	}
}

// Join subscribes the connection to a single chat room.
func (h *Hub) Join(c Conn, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.join(c, chatID)
}

// JoinAll subscribes the connection to every chat in chatIDs. Called at
// connection establishment with the user's chat list.
func (h *Hub) JoinAll(c Conn, chatIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range chatIDs {
		h.join(c, id)
	}
}

func (h *Hub) join(c Conn, chatID string) {
	if _, ok := h.byChat[chatID]; !ok {
		h.byChat[chatID] = make(map[string]Conn)
	}
	h.byChat[chatID][c.ID()] = c
	if _, ok := h.byConn[c.ID()]; !ok {
		h.byConn[c.ID()] = make(map[string]struct{})
	}
	h.byConn[c.ID()][chatID] = struct{}{}
}

// Leave unsubscribes the connection from one chat room.
func (h *Hub) Leave(c Conn, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.byChat[chatID]; ok {
		delete(set, c.ID())
		if len(set) == 0 {
			delete(h.byChat, chatID)
		}
	}
	if set, ok := h.byConn[c.ID()]; ok {
		delete(set, chatID)
	}
}

// Remove drops the connection from every room. Called on disconnect.
func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for chatID := range h.byConn[c.ID()] {
		if set, ok := h.byChat[chatID]; ok {
			delete(set, c.ID())
			if len(set) == 0 {
				delete(h.byChat, chatID)
			}
		}
	}
	delete(h.byConn, c.ID())
}

// IsSubscribed reports whether the connection currently watches chatID.
func (h *Hub) IsSubscribed(connID, chatID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.byConn[connID][chatID]
	return ok
}

// Broadcast delivers payload to every connection subscribed to chatID,
// skipping excludeConnID when non-empty. Delivery is fire-and-forget:
// a connection that cannot accept the payload is skipped, never fails
// the caller.
func (h *Hub) Broadcast(chatID string, payload []byte, excludeConnID string) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.byChat[chatID]))
	for id, c := range h.byChat[chatID] {
		if id == excludeConnID {
			continue
		}
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if !c.Send(payload) {
			h.log.Debugw("broadcast dropped", "chat_id", chatID, "conn_id", c.ID())
		}
	}
}
