package certificate

import (
	"context"
	"sync"

	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

type MemoryStore struct {
	mu     sync.Mutex
	certs  map[id.CertificateID]*Certificate
	issued map[id.MilestoneID]id.CertificateID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		certs:  make(map[id.CertificateID]*Certificate),
		issued: make(map[id.MilestoneID]id.CertificateID),
	}
}

// CreateIssued inserts under the store mutex so the existence check and the
// insert cannot interleave with a concurrent finalization.
func (s *MemoryStore) CreateIssued(_ context.Context, cert *Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.issued[cert.MilestoneID]; exists {
		return dErrors.New(dErrors.CodeConflict, "milestone already has an issued certificate")
	}
	copied := *cert
	copied.Status = StatusIssued
	s.certs[cert.ID] = &copied
	s.issued[cert.MilestoneID] = cert.ID
	return nil
}

func (s *MemoryStore) FindIssuedByMilestone(_ context.Context, milestoneID id.MilestoneID) (*Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	certID, ok := s.issued[milestoneID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "no issued certificate for milestone")
	}
	copied := *s.certs[certID]
	return &copied, nil
}

func (s *MemoryStore) FindByID(_ context.Context, certID id.CertificateID) (*Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[certID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
	}
	copied := *cert
	return &copied, nil
}

func (s *MemoryStore) Update(_ context.Context, cert *Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.certs[cert.ID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "certificate not found")
	}
	// Revocation frees the issued slot so a reopened milestone can be
	// re-certified later.
	if existing.Status == StatusIssued && cert.Status == StatusRevoked {
		delete(s.issued, cert.MilestoneID)
	}
	copied := *cert
	s.certs[cert.ID] = &copied
	return nil
}

func (s *MemoryStore) ListByMilestone(_ context.Context, milestoneID id.MilestoneID) ([]*Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Certificate
	for _, cert := range s.certs {
		if cert.MilestoneID == milestoneID {
			copied := *cert
			out = append(out, &copied)
		}
	}
	return out, nil
}
