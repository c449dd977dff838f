package dispute

import (
	"context"

	id "tml/pkg/domain"
)

type Store interface {
	Create(ctx context.Context, d *Dispute) error
	FindByID(ctx context.Context, disputeID id.DisputeID) (*Dispute, error)
	ListByMilestone(ctx context.Context, milestoneID id.MilestoneID) ([]*Dispute, error)
	Update(ctx context.Context, d *Dispute) error
}
