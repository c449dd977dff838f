package webhook

import (
	"context"
	"sync"
	"time"

	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

// MemoryStore is an in-memory subscription store.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[id.SubscriptionID]*Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[id.SubscriptionID]*Subscription)}
}

func (s *MemoryStore) Create(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; ok {
		return dErrors.New(dErrors.CodeConflict, "subscription already exists")
	}
	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, subID id.SubscriptionID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[subID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "subscription not found")
	}
	cp := *sub
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		cp := *sub
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) ListActiveForEvent(_ context.Context, eventType string) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Subscription
	for _, sub := range s.subs {
		if sub.Matches(eventType) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "subscription not found")
	}
	sub.UpdatedAt = time.Now()
	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

// MemoryDeadLetters is a concurrent-safe in-memory dead letter sink.
type MemoryDeadLetters struct {
	mu      sync.Mutex
	letters []DeadLetter
}

func NewMemoryDeadLetters() *MemoryDeadLetters {
	return &MemoryDeadLetters{}
}

func (m *MemoryDeadLetters) Record(_ context.Context, letter DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters = append(m.letters, letter)
	return nil
}

func (m *MemoryDeadLetters) List(_ context.Context) ([]DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeadLetter, len(m.letters))
	copy(out, m.letters)
	return out, nil
}

func (m *MemoryDeadLetters) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters = nil
	return nil
}
