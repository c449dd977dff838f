package assignment

import (
	"context"
	"sync"

	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

type MemoryAuditorStore struct {
	mu          sync.RWMutex
	assignments map[id.AssignmentID]*AuditorAssignment
}

func NewMemoryAuditorStore() *MemoryAuditorStore {
	return &MemoryAuditorStore{assignments: make(map[id.AssignmentID]*AuditorAssignment)}
}

func (s *MemoryAuditorStore) Create(_ context.Context, assignment *AuditorAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments {
		if existing.MilestoneID == assignment.MilestoneID &&
			existing.AuditorID == assignment.AuditorID && existing.Active() {
			return dErrors.New(dErrors.CodeConflict, "auditor already actively assigned to milestone")
		}
	}
	copied := *assignment
	s.assignments[assignment.ID] = &copied
	return nil
}

func (s *MemoryAuditorStore) FindByID(_ context.Context, assignmentID id.AssignmentID) (*AuditorAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assignment, ok := s.assignments[assignmentID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "auditor assignment not found")
	}
	copied := *assignment
	return &copied, nil
}

func (s *MemoryAuditorStore) FindActive(_ context.Context, milestoneID id.MilestoneID, auditorID id.ActorID) (*AuditorAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, assignment := range s.assignments {
		if assignment.MilestoneID == milestoneID && assignment.AuditorID == auditorID && assignment.Active() {
			copied := *assignment
			return &copied, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no active assignment for auditor on milestone")
}

func (s *MemoryAuditorStore) ListByMilestone(_ context.Context, milestoneID id.MilestoneID) ([]*AuditorAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*AuditorAssignment
	for _, assignment := range s.assignments {
		if assignment.MilestoneID == milestoneID {
			copied := *assignment
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryAuditorStore) ListByMilestones(_ context.Context, milestoneIDs []id.MilestoneID) ([]*AuditorAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[id.MilestoneID]bool, len(milestoneIDs))
	for _, milestoneID := range milestoneIDs {
		wanted[milestoneID] = true
	}
	var out []*AuditorAssignment
	for _, assignment := range s.assignments {
		if wanted[assignment.MilestoneID] {
			copied := *assignment
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryAuditorStore) Update(_ context.Context, assignment *AuditorAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[assignment.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "auditor assignment not found")
	}
	copied := *assignment
	s.assignments[assignment.ID] = &copied
	return nil
}

type poolKey struct {
	milestoneID id.MilestoneID
	citizenID   id.ActorID
}

type MemoryPoolStore struct {
	mu      sync.RWMutex
	entries map[id.PoolEntryID]*PoolEntry
	byPair  map[poolKey]id.PoolEntryID
	// insertion order per citizen, for latest-tier lookups
	history map[id.ActorID][]id.PoolEntryID
}

func NewMemoryPoolStore() *MemoryPoolStore {
	return &MemoryPoolStore{
		entries: make(map[id.PoolEntryID]*PoolEntry),
		byPair:  make(map[poolKey]id.PoolEntryID),
		history: make(map[id.ActorID][]id.PoolEntryID),
	}
}

func (s *MemoryPoolStore) Create(_ context.Context, entry *PoolEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := poolKey{milestoneID: entry.MilestoneID, citizenID: entry.CitizenID}
	if _, exists := s.byPair[key]; exists {
		return dErrors.New(dErrors.CodeConflict, "citizen already enrolled on milestone")
	}
	copied := *entry
	s.entries[entry.ID] = &copied
	s.byPair[key] = entry.ID
	s.history[entry.CitizenID] = append(s.history[entry.CitizenID], entry.ID)
	return nil
}

func (s *MemoryPoolStore) FindByMilestoneCitizen(_ context.Context, milestoneID id.MilestoneID, citizenID id.ActorID) (*PoolEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entryID, ok := s.byPair[poolKey{milestoneID: milestoneID, citizenID: citizenID}]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "citizen not enrolled on milestone")
	}
	copied := *s.entries[entryID]
	return &copied, nil
}

func (s *MemoryPoolStore) ListByMilestone(_ context.Context, milestoneID id.MilestoneID) ([]*PoolEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*PoolEntry
	for _, entry := range s.entries {
		if entry.MilestoneID == milestoneID {
			copied := *entry
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryPoolStore) CountActiveByCitizen(_ context.Context, citizenID id.ActorID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, entryID := range s.history[citizenID] {
		if s.entries[entryID].ActiveEnrollment() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryPoolStore) LatestTierByCitizen(_ context.Context, citizenID id.ActorID) (AssuranceTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.history[citizenID]
	if len(ids) == 0 {
		return "", nil
	}
	return s.entries[ids[len(ids)-1]].AssuranceTier, nil
}

func (s *MemoryPoolStore) Update(_ context.Context, entry *PoolEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "pool entry not found")
	}
	copied := *entry
	s.entries[entry.ID] = &copied
	return nil
}
