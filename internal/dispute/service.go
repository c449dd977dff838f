package dispute

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tml/internal/actor"
	"tml/internal/assignment"
	"tml/internal/certificate"
	"tml/internal/platform/locks"
	"tml/internal/platform/metrics"
	"tml/internal/project"
	"tml/internal/webhook"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
	audit "tml/pkg/platform/audit"
)

// AuditPublisher mirrors the audit surface the coordinator needs.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Dispatcher is the webhook fan-out notified on lifecycle transitions.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload map[string]any) error
}

// FileInput carries a new dispute.
type FileInput struct {
	MilestoneID  id.MilestoneID
	Reason       string
	EvidenceHash string
}

// ResolveInput closes a dispute under review.
type ResolveInput struct {
	Outcome             Outcome
	ResolutionNotes     string
	ReassignedAuditorID id.ActorID
}

// Service coordinates the dispute lifecycle and its side effects on
// certificates, milestones, and auditor assignments.
type Service struct {
	disputes     Store
	milestones   project.MilestoneStore
	certificates certificate.Store
	assignments  assignment.AuditorStore
	actors       actor.Store
	locker       locks.MilestoneLocker
	dispatcher   Dispatcher
	auditLog     AuditPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

type ServiceParams struct {
	Disputes     Store
	Milestones   project.MilestoneStore
	Certificates certificate.Store
	Assignments  assignment.AuditorStore
	Actors       actor.Store
	Locker       locks.MilestoneLocker
	Dispatcher   Dispatcher
	AuditLog     AuditPublisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

func NewService(p ServiceParams) *Service {
	return &Service{
		disputes:     p.Disputes,
		milestones:   p.Milestones,
		certificates: p.Certificates,
		assignments:  p.Assignments,
		actors:       p.Actors,
		locker:       p.Locker,
		dispatcher:   p.Dispatcher,
		auditLog:     p.AuditLog,
		metrics:      p.Metrics,
		logger:       p.Logger,
		tracer:       otel.Tracer("tml/dispute"),
		now:          time.Now,
	}
}

// File opens a dispute. Against a completed milestone this immediately
// revokes the issued certificate and reopens attestation, so the claim is
// investigated with the milestone in an unverified state.
func (s *Service) File(ctx context.Context, input FileInput, caller actor.Identity) (*Dispute, error) {
	ctx, span := s.tracer.Start(ctx, "dispute.File",
		trace.WithAttributes(attribute.String("milestone_id", input.MilestoneID.String())))
	defer span.End()

	if input.Reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "dispute reason is required")
	}

	release, err := s.locker.Acquire(ctx, input.MilestoneID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "acquire milestone lock", err)
	}
	defer release()

	milestone, err := s.milestones.FindByID(ctx, input.MilestoneID)
	if err != nil {
		return nil, err
	}
	if milestone.Status != project.StatusAttestationInProgress && milestone.Status != project.StatusCompleted {
		return nil, dErrors.Newf(dErrors.CodeConflict, "cannot dispute milestone in status %s", milestone.Status)
	}

	d := &Dispute{
		ID:           id.NewDisputeID(),
		MilestoneID:  input.MilestoneID,
		FiledBy:      caller.ActorID,
		Reason:       input.Reason,
		EvidenceHash: input.EvidenceHash,
		Status:       StatusOpen,
		FiledAt:      s.now(),
	}
	if err := s.disputes.Create(ctx, d); err != nil {
		return nil, err
	}

	if milestone.Status == project.StatusCompleted {
		if err := s.clawBack(ctx, milestone, d, caller); err != nil {
			return nil, err
		}
	}

	_ = s.auditLog.Emit(ctx, audit.Event{
		EntityType:    "dispute",
		EntityID:      d.ID.String(),
		Action:        audit.ActionDisputeFiled,
		ActorIdentity: caller.ActorID.String(),
		Payload:       map[string]any{"milestone_id": input.MilestoneID.String(), "reason": input.Reason},
	})
	_ = s.dispatcher.Dispatch(ctx, webhook.EventDisputeOpened, map[string]any{
		"disputeId":   d.ID.String(),
		"milestoneId": input.MilestoneID.String(),
		"filedBy":     caller.ActorID.String(),
	})
	return d, nil
}

// clawBack revokes the milestone's issued certificate and reopens
// attestation. Runs under the milestone lock taken by the caller.
func (s *Service) clawBack(ctx context.Context, milestone *project.Milestone, d *Dispute, caller actor.Identity) error {
	cert, err := s.certificates.FindIssuedByMilestone(ctx, milestone.ID)
	if err == nil {
		now := s.now()
		cert.Status = certificate.StatusRevoked
		cert.RevokedAt = &now
		cert.RevokedReason = "dispute " + d.ID.String()
		if err := s.certificates.Update(ctx, cert); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.CertificatesRevoked.Inc()
		}
		_ = s.auditLog.Emit(ctx, audit.Event{
			EntityType:    "certificate",
			EntityID:      cert.ID.String(),
			Action:        audit.ActionCertificateRevoked,
			ActorIdentity: caller.ActorID.String(),
			Payload:       map[string]any{"dispute_id": d.ID.String()},
		})
		_ = s.dispatcher.Dispatch(ctx, webhook.EventCertificateRevoked, map[string]any{
			"certificateId": cert.ID.String(),
			"milestoneId":   milestone.ID.String(),
			"disputeId":     d.ID.String(),
		})
	} else if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return err
	}

	milestone.Status = project.StatusAttestationInProgress
	milestone.CompletedAt = nil
	if err := s.milestones.Update(ctx, milestone); err != nil {
		return err
	}
	_ = s.auditLog.Emit(ctx, audit.Event{
		EntityType:    "milestone",
		EntityID:      milestone.ID.String(),
		Action:        audit.ActionMilestoneReopened,
		ActorIdentity: caller.ActorID.String(),
		Payload:       map[string]any{"dispute_id": d.ID.String()},
	})
	return nil
}

// Review moves an open dispute under review.
func (s *Service) Review(ctx context.Context, disputeID id.DisputeID, caller actor.Identity) (*Dispute, error) {
	if err := requireOfficial(caller); err != nil {
		return nil, err
	}
	d, err := s.disputes.FindByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusOpen {
		return nil, dErrors.Newf(dErrors.CodeConflict, "cannot review dispute in status %s", d.Status)
	}

	now := s.now()
	d.Status = StatusUnderReview
	d.ReviewedAt = &now
	if err := s.disputes.Update(ctx, d); err != nil {
		return nil, err
	}

	_ = s.auditLog.Emit(ctx, audit.Event{
		EntityType:    "dispute",
		EntityID:      d.ID.String(),
		Action:        audit.ActionDisputeUnderReview,
		ActorIdentity: caller.ActorID.String(),
	})
	return d, nil
}

// Resolve closes a dispute under review. A milestone that completed while
// the dispute was pending is clawed back so its verification is re-earned.
// When a resolved dispute names a replacement auditor, the prior active
// assignments are marked replaced and a fresh one is created at the next
// rotation round.
func (s *Service) Resolve(ctx context.Context, disputeID id.DisputeID, input ResolveInput, caller actor.Identity) (*Dispute, error) {
	if err := requireOfficial(caller); err != nil {
		return nil, err
	}
	if input.Outcome != OutcomeResolved && input.Outcome != OutcomeDismissed {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown dispute outcome %q", input.Outcome)
	}

	d, err := s.disputes.FindByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusUnderReview {
		return nil, dErrors.Newf(dErrors.CodeConflict, "cannot resolve dispute in status %s", d.Status)
	}

	release, err := s.locker.Acquire(ctx, d.MilestoneID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "acquire milestone lock", err)
	}
	defer release()

	milestone, err := s.milestones.FindByID(ctx, d.MilestoneID)
	if err != nil {
		return nil, err
	}
	if milestone.Status == project.StatusCompleted {
		if err := s.clawBack(ctx, milestone, d, caller); err != nil {
			return nil, err
		}
	}

	if input.Outcome == OutcomeResolved && !input.ReassignedAuditorID.IsNil() {
		if err := s.reassignAuditor(ctx, d, input.ReassignedAuditorID); err != nil {
			return nil, err
		}
		d.ReassignedAuditorID = input.ReassignedAuditorID
	}

	now := s.now()
	d.Status = Status(input.Outcome)
	d.ResolutionNotes = input.ResolutionNotes
	d.ResolvedAt = &now
	if err := s.disputes.Update(ctx, d); err != nil {
		return nil, err
	}

	action := audit.ActionDisputeResolved
	if input.Outcome == OutcomeDismissed {
		action = audit.ActionDisputeDismissed
	}
	_ = s.auditLog.Emit(ctx, audit.Event{
		EntityType:    "dispute",
		EntityID:      d.ID.String(),
		Action:        action,
		ActorIdentity: caller.ActorID.String(),
		Payload:       map[string]any{"milestone_id": d.MilestoneID.String(), "outcome": string(input.Outcome)},
	})
	_ = s.dispatcher.Dispatch(ctx, webhook.EventDisputeResolved, map[string]any{
		"disputeId":   d.ID.String(),
		"milestoneId": d.MilestoneID.String(),
		"outcome":     string(input.Outcome),
	})
	return d, nil
}

// Get returns one dispute.
func (s *Service) Get(ctx context.Context, disputeID id.DisputeID) (*Dispute, error) {
	return s.disputes.FindByID(ctx, disputeID)
}

// ListByMilestone returns the milestone's disputes in filing order.
func (s *Service) ListByMilestone(ctx context.Context, milestoneID id.MilestoneID) ([]*Dispute, error) {
	return s.disputes.ListByMilestone(ctx, milestoneID)
}

func (s *Service) reassignAuditor(ctx context.Context, d *Dispute, auditorID id.ActorID) error {
	auditor, err := s.actors.FindByID(ctx, auditorID)
	if err != nil {
		return err
	}
	if auditor.Role != actor.RoleIndependentAuditor {
		return dErrors.New(dErrors.CodeValidation, "replacement actor is not an independent auditor")
	}

	milestone, err := s.milestones.FindByID(ctx, d.MilestoneID)
	if err != nil {
		return err
	}

	existing, err := s.assignments.ListByMilestone(ctx, d.MilestoneID)
	if err != nil {
		return err
	}
	for _, a := range existing {
		if !a.Active() {
			continue
		}
		a.Status = assignment.AuditorReplaced
		if err := s.assignments.Update(ctx, a); err != nil {
			return err
		}
	}

	nextRound := milestone.CurrentRotationRound + 1
	if err := s.assignments.Create(ctx, &assignment.AuditorAssignment{
		ID:            id.NewAssignmentID(),
		MilestoneID:   d.MilestoneID,
		AuditorID:     auditorID,
		RotationRound: nextRound,
		Status:        assignment.AuditorAssigned,
		AssignedAt:    s.now(),
	}); err != nil {
		return err
	}

	milestone.CurrentRotationRound = nextRound
	return s.milestones.Update(ctx, milestone)
}

func requireOfficial(caller actor.Identity) error {
	if caller.Role != actor.RoleAdmin && caller.Role != actor.RoleGovOfficial {
		return dErrors.New(dErrors.CodeAuthorization, "only officials may manage disputes")
	}
	return nil
}
