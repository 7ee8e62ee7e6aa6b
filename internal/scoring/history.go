// internal/scoring/history.go
package scoring

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryCapacity bounds the in-memory score-event log. The reference
// behavior kept the log unbounded for the process lifetime; we evict the
// oldest events past this cap instead.
const DefaultHistoryCapacity = 10000

// HistoryFilter narrows a GetPlayerHistory query. Nil time bounds are open;
// an empty EventTypes list admits every type.
type HistoryFilter struct {
	From       *time.Time
	To         *time.Time
	EventTypes []EventType
}

// History is the append-only ordered log of score events. It is the only
// state the scoring package owns.
type History struct {
	mu       sync.Mutex
	events   []ScoreEvent
	capacity int
}

// NewHistory creates a History bounded to capacity events; capacity <= 0
// falls back to DefaultHistoryCapacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{capacity: capacity}
}

// RegisterScoreEvent appends ev to the log. A zero ID is assigned a fresh
// uuid and a zero timestamp is stamped with the current time, so callers can
// pass minimally-filled events. Returns the stored event.
func (h *History) RegisterScoreEvent(ev ScoreEvent) ScoreEvent {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
	if len(h.events) > h.capacity {
		h.events = h.events[len(h.events)-h.capacity:]
	}
	return ev
}

// GetPlayerHistory returns the events for playerID matching the filter, in
// registration order. The result is a copy; mutating it does not touch the log.
func (h *History) GetPlayerHistory(playerID string, filter HistoryFilter) []ScoreEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []ScoreEvent
	for _, ev := range h.events {
		if ev.PlayerID != playerID {
			continue
		}
		if filter.From != nil && ev.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && ev.Timestamp.After(*filter.To) {
			continue
		}
		if len(filter.EventTypes) > 0 && !containsType(filter.EventTypes, ev.Type) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Len reports the number of events currently retained.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func containsType(types []EventType, t EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
