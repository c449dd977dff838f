package attestation

import (
	"context"
	"sort"
	"sync"

	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

type tripleKey struct {
	milestoneID id.MilestoneID
	actorID     id.ActorID
	attType     Type
}

type deviceKey struct {
	milestoneID id.MilestoneID
	token       string
}

type MemoryStore struct {
	mu           sync.RWMutex
	attestations map[id.AttestationID]*Attestation
	byTriple     map[tripleKey]id.AttestationID
	citizenByDev map[deviceKey]id.AttestationID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attestations: make(map[id.AttestationID]*Attestation),
		byTriple:     make(map[tripleKey]id.AttestationID),
		citizenByDev: make(map[deviceKey]id.AttestationID),
	}
}

func (s *MemoryStore) Create(_ context.Context, att *Attestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	triple := tripleKey{milestoneID: att.MilestoneID, actorID: att.ActorID, attType: att.Type}
	if _, exists := s.byTriple[triple]; exists {
		return dErrors.New(dErrors.CodeConflict, "attestation already exists for actor and type on milestone")
	}
	var device deviceKey
	if att.Type == TypeCitizenApproval && att.DeviceToken != "" {
		device = deviceKey{milestoneID: att.MilestoneID, token: att.DeviceToken}
		if _, exists := s.citizenByDev[device]; exists {
			return dErrors.New(dErrors.CodeConflict, "device already used for a citizen approval on milestone")
		}
	}

	copied := *att
	s.attestations[att.ID] = &copied
	s.byTriple[triple] = att.ID
	if device.token != "" {
		s.citizenByDev[device] = att.ID
	}
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, attID id.AttestationID) (*Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	att, ok := s.attestations[attID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "attestation not found")
	}
	copied := *att
	return &copied, nil
}

func (s *MemoryStore) FindByMilestoneActorType(_ context.Context, milestoneID id.MilestoneID, actorID id.ActorID, t Type) (*Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attID, ok := s.byTriple[tripleKey{milestoneID: milestoneID, actorID: actorID, attType: t}]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "attestation not found")
	}
	copied := *s.attestations[attID]
	return &copied, nil
}

func (s *MemoryStore) ListByMilestone(_ context.Context, milestoneID id.MilestoneID) ([]*Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Attestation
	for _, att := range s.attestations {
		if att.MilestoneID == milestoneID {
			copied := *att
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Attestation
	for _, att := range s.attestations {
		if !filter.MilestoneID.IsNil() && att.MilestoneID != filter.MilestoneID {
			continue
		}
		if !filter.ActorID.IsNil() && att.ActorID != filter.ActorID {
			continue
		}
		if filter.Type != "" && att.Type != filter.Type {
			continue
		}
		if filter.Status != "" && att.Status != filter.Status {
			continue
		}
		copied := *att
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeviceTokenUsed(_ context.Context, milestoneID id.MilestoneID, deviceToken string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, used := s.citizenByDev[deviceKey{milestoneID: milestoneID, token: deviceToken}]
	return used, nil
}

func (s *MemoryStore) Update(_ context.Context, att *Attestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attestations[att.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "attestation not found")
	}
	copied := *att
	s.attestations[att.ID] = &copied
	return nil
}
