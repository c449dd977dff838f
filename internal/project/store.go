package project

import (
	"context"

	id "tml/pkg/domain"
)

type Store interface {
	Create(ctx context.Context, project *Project) error
	FindByID(ctx context.Context, projectID id.ProjectID) (*Project, error)
}

type MilestoneStore interface {
	Create(ctx context.Context, milestone *Milestone) error
	FindByID(ctx context.Context, milestoneID id.MilestoneID) (*Milestone, error)
	ListByProject(ctx context.Context, projectID id.ProjectID) ([]*Milestone, error)
	// Update persists status, rotation round, and completion timestamps.
	Update(ctx context.Context, milestone *Milestone) error
}
