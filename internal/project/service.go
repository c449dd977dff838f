package project

import (
	"context"
	"log/slog"
	"time"

	"tml/internal/actor"
	"tml/internal/geofence"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

// CreateProjectInput carries a new project registration.
type CreateProjectInput struct {
	Name     string
	Boundary []geofence.Point
}

// CreateMilestoneInput carries a new milestone definition.
type CreateMilestoneInput struct {
	ProjectID              id.ProjectID
	SequenceNumber         int
	Title                  string
	RequiredInspectorCount int
	RequiredAuditorCount   int
	RequiredCitizenCount   int
}

// Service is the administrative surface for projects and milestones. Quorum
// and dispute transitions bypass it and talk to the stores directly.
type Service struct {
	projects   Store
	milestones MilestoneStore
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(projects Store, milestones MilestoneStore, logger *slog.Logger) *Service {
	return &Service{projects: projects, milestones: milestones, logger: logger, now: time.Now}
}

func (s *Service) CreateProject(ctx context.Context, input CreateProjectInput, caller actor.Identity) (*Project, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if input.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "project name is required")
	}
	if n := len(input.Boundary); n > 0 && n < 3 {
		return nil, dErrors.New(dErrors.CodeValidation, "boundary needs at least three points")
	}

	p := &Project{
		ID:        id.NewProjectID(),
		Name:      input.Name,
		Boundary:  input.Boundary,
		CreatedAt: s.now(),
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetProject(ctx context.Context, projectID id.ProjectID) (*Project, error) {
	return s.projects.FindByID(ctx, projectID)
}

func (s *Service) CreateMilestone(ctx context.Context, input CreateMilestoneInput, caller actor.Identity) (*Milestone, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if input.Title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "milestone title is required")
	}
	if input.SequenceNumber <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "sequence number must be positive")
	}
	if input.RequiredInspectorCount < 0 || input.RequiredAuditorCount < 0 || input.RequiredCitizenCount < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "quorum requirements cannot be negative")
	}
	if _, err := s.projects.FindByID(ctx, input.ProjectID); err != nil {
		return nil, err
	}

	m := &Milestone{
		ID:                     id.NewMilestoneID(),
		ProjectID:              input.ProjectID,
		SequenceNumber:         input.SequenceNumber,
		Title:                  input.Title,
		Status:                 StatusPending,
		RequiredInspectorCount: input.RequiredInspectorCount,
		RequiredAuditorCount:   input.RequiredAuditorCount,
		RequiredCitizenCount:   input.RequiredCitizenCount,
		CreatedAt:              s.now(),
	}
	if err := s.milestones.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) GetMilestone(ctx context.Context, milestoneID id.MilestoneID) (*Milestone, error) {
	return s.milestones.FindByID(ctx, milestoneID)
}

func (s *Service) ListMilestones(ctx context.Context, projectID id.ProjectID) ([]*Milestone, error) {
	return s.milestones.ListByProject(ctx, projectID)
}

// TransitionMilestone applies an externally driven status change. The
// completed and reopened edges are owned by the quorum resolver and dispute
// coordinator and are rejected here.
func (s *Service) TransitionMilestone(ctx context.Context, milestoneID id.MilestoneID, to MilestoneStatus, caller actor.Identity) (*Milestone, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	m, err := s.milestones.FindByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if !CanTransitionExternally(m.Status, to) {
		return nil, dErrors.Newf(dErrors.CodeConflict, "cannot transition milestone from %s to %s", m.Status, to)
	}
	m.Status = to
	if err := s.milestones.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func requireAdmin(caller actor.Identity) error {
	if caller.Role != actor.RoleAdmin && caller.Role != actor.RoleGovOfficial {
		return dErrors.New(dErrors.CodeAuthorization, "administrative role required")
	}
	return nil
}
