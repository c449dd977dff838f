package dispute

import (
	"context"
	"sort"
	"sync"

	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

type MemoryStore struct {
	mu       sync.RWMutex
	disputes map[id.DisputeID]*Dispute
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{disputes: make(map[id.DisputeID]*Dispute)}
}

func (s *MemoryStore) Create(_ context.Context, d *Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disputes[d.ID]; ok {
		return dErrors.New(dErrors.CodeConflict, "dispute already exists")
	}
	cp := *d
	s.disputes[d.ID] = &cp
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, disputeID id.DisputeID) (*Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.disputes[disputeID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "dispute not found")
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) ListByMilestone(_ context.Context, milestoneID id.MilestoneID) ([]*Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Dispute
	for _, d := range s.disputes {
		if d.MilestoneID == milestoneID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiledAt.Before(out[j].FiledAt) })
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, d *Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disputes[d.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "dispute not found")
	}
	cp := *d
	s.disputes[d.ID] = &cp
	return nil
}
