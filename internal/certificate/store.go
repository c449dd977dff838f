package certificate

import (
	"context"

	id "tml/pkg/domain"
)

// Store persists certificates. CreateIssued is the concurrency anchor for
// finalization: it must atomically reject a second issued certificate for
// the same milestone, the storage-level equivalent of a partial unique
// index on (milestone_id) WHERE status = 'issued'.
type Store interface {
	CreateIssued(ctx context.Context, cert *Certificate) error
	FindIssuedByMilestone(ctx context.Context, milestoneID id.MilestoneID) (*Certificate, error)
	FindByID(ctx context.Context, certID id.CertificateID) (*Certificate, error)
	Update(ctx context.Context, cert *Certificate) error
	ListByMilestone(ctx context.Context, milestoneID id.MilestoneID) ([]*Certificate, error)
}
