package actor

import (
	"context"
	"sync"

	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

type MemoryStore struct {
	mu     sync.RWMutex
	actors map[id.ActorID]*Actor
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actors: make(map[id.ActorID]*Actor)}
}

func (s *MemoryStore) Create(_ context.Context, actor *Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.actors[actor.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "actor already exists")
	}
	copied := *actor
	s.actors[actor.ID] = &copied
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, actorID id.ActorID) (*Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actor, ok := s.actors[actorID]
	if !ok || actor.DeletedAt != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "actor not found")
	}
	copied := *actor
	return &copied, nil
}

func (s *MemoryStore) ListByRole(_ context.Context, role Role) ([]*Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Actor
	for _, actor := range s.actors {
		if actor.Role == role && actor.DeletedAt == nil {
			copied := *actor
			out = append(out, &copied)
		}
	}
	return out, nil
}

type MemoryIssuerStore struct {
	mu      sync.RWMutex
	byDID   map[string]*TrustedIssuer
	byActor map[id.ActorID]string
}

func NewMemoryIssuerStore() *MemoryIssuerStore {
	return &MemoryIssuerStore{
		byDID:   make(map[string]*TrustedIssuer),
		byActor: make(map[id.ActorID]string),
	}
}

func (s *MemoryIssuerStore) Register(_ context.Context, issuer *TrustedIssuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byDID[issuer.DID]; exists {
		return dErrors.New(dErrors.CodeConflict, "issuer already registered")
	}
	copied := *issuer
	s.byDID[issuer.DID] = &copied
	s.byActor[issuer.ActorID] = issuer.DID
	return nil
}

func (s *MemoryIssuerStore) FindByDID(_ context.Context, did string) (*TrustedIssuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issuer, ok := s.byDID[did]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "trusted issuer not found")
	}
	copied := *issuer
	return &copied, nil
}

func (s *MemoryIssuerStore) FindByActor(_ context.Context, actorID id.ActorID) (*TrustedIssuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	did, ok := s.byActor[actorID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "trusted issuer not found")
	}
	copied := *s.byDID[did]
	return &copied, nil
}

func (s *MemoryIssuerStore) Update(_ context.Context, issuer *TrustedIssuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byDID[issuer.DID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "trusted issuer not found")
	}
	copied := *issuer
	s.byDID[issuer.DID] = &copied
	return nil
}

// ResolvePublicKey implements signing.KeyResolver: only active issuers
// resolve.
func (s *MemoryIssuerStore) ResolvePublicKey(_ context.Context, did string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	issuer, ok := s.byDID[did]
	if !ok || !issuer.Active {
		return nil, dErrors.New(dErrors.CodeNotFound, "trusted issuer not found or inactive")
	}
	return append([]byte{}, issuer.PublicKey...), nil
}
