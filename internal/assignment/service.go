package assignment

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"tml/internal/actor"
	"tml/internal/platform/metrics"
	"tml/internal/project"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
	audit "tml/pkg/platform/audit"
	"tml/pkg/randsource"
)

// rotationWindow is how many recent rotation rounds an auditor must sit out
// of before becoming eligible again on the same project.
const rotationWindow = 3

// InspectorSource answers which contractor engineers submitted inspector
// verifications on any of the given milestones. Implemented by the
// attestation ledger; selection passes a project's full milestone set since
// conflict of interest spans the whole project.
type InspectorSource interface {
	InspectorActorIDs(ctx context.Context, milestoneIDs []id.MilestoneID) ([]id.ActorID, error)
}

// AuditPublisher mirrors the audit surface the engine needs.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Dispatcher is the webhook fan-out notified on selection.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload map[string]any) error
}

// Service is the randomized selection engine for auditor assignments and
// citizen approval pools.
type Service struct {
	auditors   AuditorStore
	pool       PoolStore
	actors     actor.Store
	issuers    actor.IssuerStore
	inspectors InspectorSource
	milestones project.MilestoneStore
	rand       randsource.Source
	dispatcher Dispatcher
	auditLog   AuditPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

type ServiceParams struct {
	Auditors   AuditorStore
	Pool       PoolStore
	Actors     actor.Store
	Issuers    actor.IssuerStore
	Inspectors InspectorSource
	Milestones project.MilestoneStore
	Rand       randsource.Source
	Dispatcher Dispatcher
	AuditLog   AuditPublisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

func NewService(p ServiceParams) *Service {
	r := p.Rand
	if r == nil {
		r = randsource.Crypto{}
	}
	return &Service{
		auditors:   p.Auditors,
		pool:       p.Pool,
		actors:     p.Actors,
		issuers:    p.Issuers,
		inspectors: p.Inspectors,
		milestones: p.Milestones,
		rand:       r,
		dispatcher: p.Dispatcher,
		auditLog:   p.AuditLog,
		metrics:    p.Metrics,
		logger:     p.Logger,
		tracer:     otel.Tracer("tml/assignment"),
		now:        time.Now,
	}
}

// Accept moves an assignment to accepted so the auditor may submit reviews.
func (s *Service) Accept(ctx context.Context, assignmentID id.AssignmentID, caller actor.Identity) (*AuditorAssignment, error) {
	assignment, err := s.auditors.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.AuditorID != caller.ActorID {
		return nil, dErrors.New(dErrors.CodeAuthorization, "assignment belongs to another auditor")
	}
	if assignment.Status != AuditorAssigned {
		return nil, dErrors.Newf(dErrors.CodeConflict, "cannot accept assignment in status %s", assignment.Status)
	}
	assignment.Status = AuditorAccepted
	assignment.UpdatedAt = s.now()
	if err := s.auditors.Update(ctx, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

// Recuse releases the auditor from an assignment; the slot is not refilled
// automatically.
func (s *Service) Recuse(ctx context.Context, assignmentID id.AssignmentID, caller actor.Identity) (*AuditorAssignment, error) {
	assignment, err := s.auditors.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.AuditorID != caller.ActorID && caller.Role != actor.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeAuthorization, "assignment belongs to another auditor")
	}
	if !assignment.Active() {
		return nil, dErrors.Newf(dErrors.CodeConflict, "cannot recuse assignment in status %s", assignment.Status)
	}
	assignment.Status = AuditorRecused
	assignment.UpdatedAt = s.now()
	if err := s.auditors.Update(ctx, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

// ListByMilestone returns the milestone's auditor assignments.
func (s *Service) ListByMilestone(ctx context.Context, milestoneID id.MilestoneID) ([]*AuditorAssignment, error) {
	return s.auditors.ListByMilestone(ctx, milestoneID)
}

// ListPool returns the milestone's citizen pool.
func (s *Service) ListPool(ctx context.Context, milestoneID id.MilestoneID) ([]*PoolEntry, error) {
	return s.pool.ListByMilestone(ctx, milestoneID)
}

func requireOfficial(caller actor.Identity) error {
	if caller.Role != actor.RoleAdmin && caller.Role != actor.RoleGovOfficial {
		return dErrors.New(dErrors.CodeAuthorization, "only officials may run selection")
	}
	return nil
}
