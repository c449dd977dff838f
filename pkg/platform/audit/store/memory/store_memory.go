package memory

import (
	"context"
	"sync"

	audit "tml/pkg/platform/audit"
)

type entityKey struct {
	entityType string
	entityID   string
}

// InMemoryStore keeps audit events in process. Used by tests and as the
// default sink when no Kafka or Postgres backend is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	ordered  []audit.Event
	byEntity map[entityKey][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byEntity: make(map[entityKey][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{entityType: event.EntityType, entityID: event.EntityID}
	s.byEntity[key] = append(s.byEntity[key], event)
	s.ordered = append(s.ordered, event)
	return nil
}

func (s *InMemoryStore) ListByEntity(_ context.Context, entityType, entityID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := entityKey{entityType: entityType, entityID: entityID}
	return append([]audit.Event{}, s.byEntity[key]...), nil
}

// ListRecent returns the most recent events in insertion order.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.ordered) - limit
	if start < 0 {
		start = 0
	}
	return append([]audit.Event{}, s.ordered[start:]...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ordered = nil
	s.byEntity = make(map[entityKey][]audit.Event)
}
