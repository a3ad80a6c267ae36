package notify

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/technosupport/ts-evcam/internal/metrics"
)

const sessionQueueDepth = 64

// Session is one live push connection. Its queue is bounded; a reader
// that cannot keep up loses signals rather than stalling the hub.
type Session struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Send   chan *Signal
}

// Hub tracks push sessions by user and fans signals into their queues.
// It knows nothing about websockets; the transport drains Session.Send.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[uuid.UUID]*Session // user -> session ID -> session
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[uuid.UUID]map[uuid.UUID]*Session)}
}

func (h *Hub) Connect(userID uuid.UUID) *Session {
	s := &Session{
		ID:     uuid.New(),
		UserID: userID,
		Send:   make(chan *Signal, sessionQueueDepth),
	}
	h.mu.Lock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[uuid.UUID]*Session)
	}
	h.sessions[userID][s.ID] = s
	h.mu.Unlock()
	metrics.PushSessions.Inc()
	return s
}

func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	if byID, ok := h.sessions[s.UserID]; ok {
		if _, ok := byID[s.ID]; ok {
			delete(byID, s.ID)
			close(s.Send)
			metrics.PushSessions.Dec()
		}
		if len(byID) == 0 {
			delete(h.sessions, s.UserID)
		}
	}
	h.mu.Unlock()
}

// Deliver pushes a signal to every session of one user. Full queues
// drop; delivery is at-most-once per session.
func (h *Hub) Deliver(userID uuid.UUID, sig *Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions[userID] {
		select {
		case s.Send <- sig:
			metrics.NotificationsTotal.WithLabelValues("push", "ok").Inc()
		default:
			log.Printf("[WARN] notify: dropping %s signal for slow session %s (user %s)", sig.Kind, s.ID, userID)
			metrics.NotificationsTotal.WithLabelValues("push", "dropped").Inc()
		}
	}
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, byID := range h.sessions {
		n += len(byID)
	}
	return n
}
