package assignment

import (
	"context"

	id "tml/pkg/domain"
)

type AuditorStore interface {
	Create(ctx context.Context, assignment *AuditorAssignment) error
	FindByID(ctx context.Context, assignmentID id.AssignmentID) (*AuditorAssignment, error)
	// FindActive returns the single non-replaced, non-recused assignment for
	// the pair, if any.
	FindActive(ctx context.Context, milestoneID id.MilestoneID, auditorID id.ActorID) (*AuditorAssignment, error)
	ListByMilestone(ctx context.Context, milestoneID id.MilestoneID) ([]*AuditorAssignment, error)
	// ListByMilestones fans a project-wide rotation query across its
	// milestones.
	ListByMilestones(ctx context.Context, milestoneIDs []id.MilestoneID) ([]*AuditorAssignment, error)
	Update(ctx context.Context, assignment *AuditorAssignment) error
}

type PoolStore interface {
	Create(ctx context.Context, entry *PoolEntry) error
	FindByMilestoneCitizen(ctx context.Context, milestoneID id.MilestoneID, citizenID id.ActorID) (*PoolEntry, error)
	ListByMilestone(ctx context.Context, milestoneID id.MilestoneID) ([]*PoolEntry, error)
	// CountActiveByCitizen counts enrolled+attested entries across all
	// milestones; the SIM cap compares against this.
	CountActiveByCitizen(ctx context.Context, citizenID id.ActorID) (int, error)
	// LatestTierByCitizen returns the most recently observed assurance tier
	// for the citizen, or "" when none recorded.
	LatestTierByCitizen(ctx context.Context, citizenID id.ActorID) (AssuranceTier, error)
	Update(ctx context.Context, entry *PoolEntry) error
}
