package attestation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tml/internal/actor"
	"tml/internal/assignment"
	"tml/internal/geofence"
	"tml/internal/platform/locks"
	"tml/internal/platform/metrics"
	"tml/internal/project"
	"tml/internal/signing"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
	audit "tml/pkg/platform/audit"
)

// AuditPublisher is the fire-and-forget audit sink consumed by the service.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Finalizer recomputes quorum after an accepted submission or verification.
// Implemented by the quorum resolver; wired in main.
type Finalizer interface {
	CheckAndFinalize(ctx context.Context, milestoneID id.MilestoneID, caller actor.Identity) error
}

// SubmitInput carries one attestation submission.
type SubmitInput struct {
	MilestoneID  id.MilestoneID
	ActorID      id.ActorID
	Type         Type
	Location     geofence.Point
	EvidenceHash string
	DeviceToken  string
	Signature    string
	SignerDID    string
}

// Service is the attestation ledger: it owns the ordered, idempotent
// submission pipeline and the revoke/verify review actions.
type Service struct {
	attestations Store
	milestones   project.MilestoneStore
	projects     project.Store
	actors       actor.Store
	assignments  assignment.AuditorStore
	pool         assignment.PoolStore
	oracle       signing.Oracle
	finalizer    Finalizer
	locker       locks.MilestoneLocker
	auditLog     AuditPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

type ServiceParams struct {
	Attestations Store
	Milestones   project.MilestoneStore
	Projects     project.Store
	Actors       actor.Store
	Assignments  assignment.AuditorStore
	Pool         assignment.PoolStore
	Oracle       signing.Oracle
	Finalizer    Finalizer
	Locker       locks.MilestoneLocker
	AuditLog     AuditPublisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

func NewService(p ServiceParams) *Service {
	return &Service{
		attestations: p.Attestations,
		milestones:   p.Milestones,
		projects:     p.Projects,
		actors:       p.Actors,
		assignments:  p.Assignments,
		pool:         p.Pool,
		oracle:       p.Oracle,
		finalizer:    p.Finalizer,
		locker:       p.Locker,
		auditLog:     p.AuditLog,
		metrics:      p.Metrics,
		logger:       p.Logger,
		tracer:       otel.Tracer("tml/attestation"),
		now:          time.Now,
	}
}

// Submit runs the validation pipeline in order; every check is a hard stop.
// The milestone lock spans validation through finalization so two concurrent
// submissions cannot both observe a pre-finalization quorum state.
func (s *Service) Submit(ctx context.Context, input SubmitInput, caller actor.Identity) (*Attestation, error) {
	ctx, span := s.tracer.Start(ctx, "attestation.Submit",
		trace.WithAttributes(
			attribute.String("milestone_id", input.MilestoneID.String()),
			attribute.String("type", string(input.Type)),
		))
	defer span.End()

	start := s.now()

	if !input.Type.IsValid() {
		return nil, s.rejected(dErrors.New(dErrors.CodeValidation, "unknown attestation type"))
	}

	release, err := s.locker.Acquire(ctx, input.MilestoneID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "acquire milestone lock", err)
	}
	defer release()

	// 1. Milestone must exist and be accepting attestations.
	milestone, err := s.milestones.FindByID(ctx, input.MilestoneID)
	if err != nil {
		return nil, s.rejected(err)
	}
	if milestone.Status != project.StatusAttestationInProgress {
		return nil, s.rejected(dErrors.Newf(dErrors.CodeConflict,
			"milestone is %s, not accepting attestations", milestone.Status))
	}

	// 2. Actor must exist and match the authenticated caller.
	actorID := input.ActorID
	if actorID.IsNil() {
		actorID = caller.ActorID
	}
	submitter, err := s.actors.FindByID(ctx, actorID)
	if err != nil {
		return nil, s.rejected(err)
	}
	if submitter.ID != caller.ActorID && caller.Role != actor.RoleAdmin {
		return nil, s.rejected(dErrors.New(dErrors.CodeAuthorization,
			"submitting actor does not match authenticated caller"))
	}

	// 3. Role-for-type check.
	if !input.Type.RoleMaySubmit(submitter.Role) {
		return nil, s.rejected(dErrors.Newf(dErrors.CodeAuthorization,
			"role %s may not submit %s", submitter.Role, input.Type))
	}

	existing, err := s.attestations.ListByMilestone(ctx, input.MilestoneID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load milestone attestations", err)
	}

	// 4. Ordering invariant: each type requires an active predecessor.
	if predecessor := input.Type.Predecessor(); predecessor != "" {
		if !hasCountable(existing, predecessor) {
			return nil, s.rejected(dErrors.Newf(dErrors.CodeValidation,
				"%s requires an active %s on the milestone first", input.Type, predecessor))
		}
	}

	// 5. Auditor reviews require an accepted assignment.
	if input.Type == TypeAuditorReview {
		assigned, err := s.assignments.FindActive(ctx, input.MilestoneID, submitter.ID)
		if err != nil || assigned.Status != assignment.AuditorAccepted {
			return nil, s.rejected(dErrors.New(dErrors.CodeAuthorization,
				"auditor has no accepted assignment for milestone"))
		}
	}

	// 6. Citizen approvals require an enrolled pool entry.
	var poolEntry *assignment.PoolEntry
	if input.Type == TypeCitizenApproval {
		poolEntry, err = s.pool.FindByMilestoneCitizen(ctx, input.MilestoneID, submitter.ID)
		if err != nil || poolEntry.Status != assignment.PoolEnrolled {
			return nil, s.rejected(dErrors.New(dErrors.CodeAuthorization,
				"citizen is not enrolled in milestone pool"))
		}
	}

	// 7. Geofence: a usable project boundary must contain the GPS point.
	proj, err := s.projects.FindByID(ctx, milestone.ProjectID)
	if err != nil {
		return nil, s.rejected(err)
	}
	if !geofence.Contains(proj.Boundary, input.Location) {
		return nil, s.rejected(dErrors.New(dErrors.CodeValidation,
			"submission location outside project geofence boundary"))
	}

	// 8. Signature verification is attempted but not fatal: legacy clients
	// sign a payload the server cannot byte-reconstruct, so the verdict is
	// recorded for later audit instead of rejecting on-site evidence.
	signatureValid := s.verifySignature(ctx, input, submitter.DID)

	// 9+10. Uniqueness and device cap are rechecked by the store insert,
	// but explicit pre-checks produce precise error messages.
	if _, err := s.attestations.FindByMilestoneActorType(ctx, input.MilestoneID, submitter.ID, input.Type); err == nil {
		return nil, s.rejected(dErrors.New(dErrors.CodeConflict,
			"actor already submitted this attestation type for milestone"))
	}
	if input.Type == TypeCitizenApproval && input.DeviceToken != "" {
		used, err := s.attestations.DeviceTokenUsed(ctx, input.MilestoneID, input.DeviceToken)
		if err != nil {
			return nil, dErrors.Wrap(dErrors.CodeInternal, "check device token", err)
		}
		if used {
			return nil, s.rejected(dErrors.New(dErrors.CodeConflict,
				"device already used for a citizen approval on this milestone"))
		}
	}

	// 11. Persist, audit-log, then recompute quorum synchronously.
	att := &Attestation{
		ID:             id.NewAttestationID(),
		MilestoneID:    input.MilestoneID,
		ActorID:        submitter.ID,
		Type:           input.Type,
		Status:         StatusSubmitted,
		Location:       input.Location,
		EvidenceHash:   input.EvidenceHash,
		DeviceToken:    input.DeviceToken,
		Signature:      input.Signature,
		SignerDID:      input.SignerDID,
		SignatureValid: signatureValid,
		SubmittedAt:    s.now(),
	}
	if err := s.attestations.Create(ctx, att); err != nil {
		return nil, s.rejected(err)
	}

	if poolEntry != nil {
		poolEntry.Status = assignment.PoolAttested
		poolEntry.UpdatedAt = s.now()
		if err := s.pool.Update(ctx, poolEntry); err != nil {
			s.logger.WarnContext(ctx, "pool entry status update failed",
				"milestone_id", input.MilestoneID, "citizen_id", submitter.ID, "error", err)
		}
	}

	// The attestation is part of the ledger as soon as Create returns, so
	// its audit entry is written before quorum runs; a finalization error
	// must not leave a persisted attestation unaudited.
	s.emitAudit(ctx, att, caller, signatureValid)

	if err := s.finalizer.CheckAndFinalize(ctx, input.MilestoneID, caller); err != nil {
		// Finalization failure surfaces so the caller knows certification
		// did not run to completion.
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AttestationsSubmitted.WithLabelValues(string(att.Type)).Inc()
		s.metrics.SubmitDuration.Observe(s.now().Sub(start).Seconds())
	}
	return att, nil
}

// Revoke marks an attestation revoked so it stops counting toward future
// quorum recomputations. Revoking an already-revoked attestation conflicts;
// quorum is deliberately not recomputed downward here.
func (s *Service) Revoke(ctx context.Context, attID id.AttestationID, caller actor.Identity) (*Attestation, error) {
	att, err := s.attestations.FindByID(ctx, attID)
	if err != nil {
		return nil, err
	}
	if caller.Role != actor.RoleAdmin && caller.Role != actor.RoleGovOfficial && att.ActorID != caller.ActorID {
		return nil, dErrors.New(dErrors.CodeAuthorization, "caller may not revoke this attestation")
	}
	if att.Status == StatusRevoked {
		return nil, dErrors.New(dErrors.CodeConflict, "attestation already revoked")
	}

	now := s.now()
	att.Status = StatusRevoked
	att.RevokedAt = &now
	if err := s.attestations.Update(ctx, att); err != nil {
		return nil, err
	}

	_ = s.auditLog.Emit(ctx, audit.Event{
		EntityType:    "attestation",
		EntityID:      att.ID.String(),
		Action:        audit.ActionAttestationRevoked,
		ActorIdentity: caller.ActorID.String(),
		Payload:       map[string]any{"milestone_id": att.MilestoneID.String(), "type": string(att.Type)},
	})
	return att, nil
}

// Verify upgrades a submitted attestation to verified after off-site review,
// then re-runs quorum (verification is one of the two recomputation
// triggers).
func (s *Service) Verify(ctx context.Context, attID id.AttestationID, caller actor.Identity) (*Attestation, error) {
	if caller.Role != actor.RoleAdmin && caller.Role != actor.RoleGovOfficial {
		return nil, dErrors.New(dErrors.CodeAuthorization, "only officials may verify attestations")
	}
	att, err := s.attestations.FindByID(ctx, attID)
	if err != nil {
		return nil, err
	}
	if att.Status != StatusSubmitted {
		return nil, dErrors.Newf(dErrors.CodeConflict, "cannot verify attestation in status %s", att.Status)
	}

	now := s.now()
	att.Status = StatusVerified
	att.VerifiedAt = &now
	if err := s.attestations.Update(ctx, att); err != nil {
		return nil, err
	}

	if err := s.finalizer.CheckAndFinalize(ctx, att.MilestoneID, caller); err != nil {
		return nil, err
	}

	_ = s.auditLog.Emit(ctx, audit.Event{
		EntityType:    "attestation",
		EntityID:      att.ID.String(),
		Action:        audit.ActionAttestationVerified,
		ActorIdentity: caller.ActorID.String(),
		Payload:       map[string]any{"milestone_id": att.MilestoneID.String()},
	})
	return att, nil
}

// List returns attestations matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Attestation, error) {
	return s.attestations.List(ctx, filter)
}

func (s *Service) verifySignature(ctx context.Context, input SubmitInput, actorDID string) bool {
	if input.Signature == "" {
		return false
	}
	signerDID := input.SignerDID
	if signerDID == "" {
		signerDID = actorDID
	}
	payload, err := json.Marshal(map[string]string{
		"milestone_id":  input.MilestoneID.String(),
		"evidence_hash": input.EvidenceHash,
	})
	if err != nil {
		return false
	}
	valid, err := s.oracle.VerifyAttestationSignature(ctx, payload, input.Signature, signerDID)
	if err != nil || !valid {
		s.logger.WarnContext(ctx, "attestation signature did not verify, storing anyway",
			"milestone_id", input.MilestoneID, "signer_did", signerDID, "error", err)
		_ = s.auditLog.Emit(ctx, audit.Event{
			EntityType:    "attestation",
			EntityID:      input.MilestoneID.String(),
			Action:        audit.ActionSignatureMismatch,
			ActorIdentity: signerDID,
		})
		return false
	}
	return true
}

func (s *Service) emitAudit(ctx context.Context, att *Attestation, caller actor.Identity, signatureValid bool) {
	_ = s.auditLog.Emit(ctx, audit.Event{
		EntityType:    "attestation",
		EntityID:      att.ID.String(),
		Action:        audit.ActionAttestationSubmitted,
		ActorIdentity: caller.ActorID.String(),
		Payload: map[string]any{
			"milestone_id":    att.MilestoneID.String(),
			"type":            string(att.Type),
			"signature_valid": signatureValid,
		},
	})
}

func (s *Service) rejected(err error) error {
	if s.metrics != nil {
		code := string(dErrors.CodeInternal)
		for _, c := range []dErrors.Code{dErrors.CodeNotFound, dErrors.CodeValidation,
			dErrors.CodeAuthorization, dErrors.CodeConflict} {
			if dErrors.HasCode(err, c) {
				code = string(c)
				break
			}
		}
		s.metrics.AttestationsRejected.WithLabelValues(code).Inc()
	}
	return err
}

func hasCountable(attestations []*Attestation, t Type) bool {
	for _, att := range attestations {
		if att.Type == t && att.Countable() {
			return true
		}
	}
	return false
}
