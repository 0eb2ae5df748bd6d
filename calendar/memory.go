package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/leave"
)

// Memory is an in-process calendar.
type Memory struct {
	mu     sync.RWMutex
	events map[string]leave.CalendarEvent
}

var _ leave.CalendarSync = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{events: make(map[string]leave.CalendarEvent)}
}

func (m *Memory) CreateEvent(ctx context.Context, event leave.CalendarEvent) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	m.events[id] = event
	m.mu.Unlock()
	return id, nil
}

// DeleteEvent fails for unknown IDs so that a lost event is noticed.
func (m *Memory) DeleteEvent(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; !ok {
		return fmt.Errorf("calendar event %s not found", eventID)
	}
	delete(m.events, eventID)
	return nil
}

// Events returns the stored events for owner, earliest first.
func (m *Memory) Events(owner string) []leave.CalendarEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []leave.CalendarEvent
	for _, e := range m.events {
		if e.OwnerEmail == owner {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
