// Package broadcast owns the live viewer session registry and fans newly
// persisted events and counter updates out to every connected session.
package broadcast

import (
	"sync"

	"github.com/freightwatch/doomfeed/internal/event/domain"
	"github.com/freightwatch/doomfeed/internal/observability/metrics"
	"github.com/google/uuid"
	"go.uber.org/fx"
)

const (
	TypeNewEvent    = "new_event"
	TypeStatsUpdate = "stats_update"
)

const sessionBuffer = 16

var Module = fx.Module("broadcast",
	fx.Provide(NewHub),
	fx.Provide(func(h *Hub) domain.Broadcaster { return h }),
)

// Message is one fan-out unit. Event is set for TypeNewEvent, TotalEvents
// for TypeStatsUpdate.
type Message struct {
	Type        string        `json:"type"`
	Event       *domain.Event `json:"event,omitempty"`
	TotalEvents int64         `json:"total_events,omitempty"`
}

// Hub is the process-scoped session registry. Sends are non-blocking: a
// session that cannot keep up simply misses messages.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]chan Message
	obs      *metrics.Metrics
}

// Session is one live viewer connection, identified by an opaque handle.
type Session struct {
	hub  *Hub
	id   string
	ch   chan Message
	once sync.Once
}

func NewHub(obs *metrics.Metrics) *Hub {
	return &Hub{
		sessions: make(map[string]chan Message),
		obs:      obs,
	}
}

// Subscribe registers a new session. The caller must Close it on disconnect.
func (h *Hub) Subscribe() *Session {
	ch := make(chan Message, sessionBuffer)
	id := uuid.NewString()

	h.mu.Lock()
	h.sessions[id] = ch
	h.mu.Unlock()

	if h.obs != nil {
		h.obs.LiveSessions.Inc()
	}
	return &Session{hub: h, id: id, ch: ch}
}

// BroadcastNewEvent pushes the persisted record to every session.
func (h *Hub) BroadcastNewEvent(event domain.Event) {
	h.publish(Message{Type: TypeNewEvent, Event: &event})
}

// BroadcastStatsUpdate pushes the refreshed total count to every session.
func (h *Hub) BroadcastStatsUpdate(total int64) {
	h.publish(Message{Type: TypeStatsUpdate, TotalEvents: total})
}

func (h *Hub) publish(msg Message) {
	h.mu.RLock()
	targets := make([]chan Message, 0, len(h.sessions))
	for _, ch := range h.sessions {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
		}
	}
	if h.obs != nil {
		h.obs.BroadcastMessages.WithLabelValues(msg.Type).Inc()
	}
}

// SessionCount returns the number of currently connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	if _, ok := h.sessions[id]; ok {
		delete(h.sessions, id)
		if h.obs != nil {
			h.obs.LiveSessions.Dec()
		}
	}
	h.mu.Unlock()
}

// ID returns the session's opaque handle.
func (s *Session) ID() string { return s.id }

// Messages is the session's receive stream.
func (s *Session) Messages() <-chan Message {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close removes the session from the registry. Safe to call more than once.
func (s *Session) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.id)
	})
}
