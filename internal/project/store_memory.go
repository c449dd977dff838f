package project

import (
	"context"
	"sort"
	"sync"

	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

type MemoryStore struct {
	mu       sync.RWMutex
	projects map[id.ProjectID]*Project
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{projects: make(map[id.ProjectID]*Project)}
}

func (s *MemoryStore) Create(_ context.Context, project *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[project.ID]; exists {
		return dErrors.New(dErrors.CodeConflict, "project already exists")
	}
	copied := *project
	s.projects[project.ID] = &copied
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, projectID id.ProjectID) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, ok := s.projects[projectID]
	if !ok || project.DeletedAt != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "project not found")
	}
	copied := *project
	return &copied, nil
}

type milestoneKey struct {
	projectID id.ProjectID
	sequence  int
}

type MemoryMilestoneStore struct {
	mu         sync.RWMutex
	milestones map[id.MilestoneID]*Milestone
	bySequence map[milestoneKey]id.MilestoneID
}

func NewMemoryMilestoneStore() *MemoryMilestoneStore {
	return &MemoryMilestoneStore{
		milestones: make(map[id.MilestoneID]*Milestone),
		bySequence: make(map[milestoneKey]id.MilestoneID),
	}
}

func (s *MemoryMilestoneStore) Create(_ context.Context, milestone *Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := milestoneKey{projectID: milestone.ProjectID, sequence: milestone.SequenceNumber}
	if _, exists := s.bySequence[key]; exists {
		return dErrors.Newf(dErrors.CodeConflict,
			"milestone sequence %d already exists for project", milestone.SequenceNumber)
	}
	copied := *milestone
	s.milestones[milestone.ID] = &copied
	s.bySequence[key] = milestone.ID
	return nil
}

func (s *MemoryMilestoneStore) FindByID(_ context.Context, milestoneID id.MilestoneID) (*Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	milestone, ok := s.milestones[milestoneID]
	if !ok || milestone.DeletedAt != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "milestone not found")
	}
	copied := *milestone
	return &copied, nil
}

func (s *MemoryMilestoneStore) ListByProject(_ context.Context, projectID id.ProjectID) ([]*Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Milestone
	for _, milestone := range s.milestones {
		if milestone.ProjectID == projectID && milestone.DeletedAt == nil {
			copied := *milestone
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (s *MemoryMilestoneStore) Update(_ context.Context, milestone *Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.milestones[milestone.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "milestone not found")
	}
	copied := *milestone
	s.milestones[milestone.ID] = &copied
	return nil
}
