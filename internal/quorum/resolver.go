// Package quorum computes milestone quorum and drives finalization: once
// every threshold is met it mints the compliance certificate, completes the
// milestone, and emits the downstream events.
package quorum

import (
	"context"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tml/internal/actor"
	"tml/internal/assignment"
	"tml/internal/attestation"
	"tml/internal/certificate"
	"tml/internal/platform/metrics"
	"tml/internal/project"
	"tml/internal/signing"
	"tml/internal/webhook"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
	audit "tml/pkg/platform/audit"
)

// Breakdown is the per-threshold quorum picture for one milestone.
type Breakdown struct {
	MilestoneID id.MilestoneID `json:"milestoneId"`

	InspectorCount    int `json:"inspectorCount"`
	RequiredInspector int `json:"requiredInspector"`
	InspectorMet      bool `json:"inspectorMet"`

	AuditorCount    int `json:"auditorCount"`
	RequiredAuditor int `json:"requiredAuditor"`
	AuditorMet      bool `json:"auditorMet"`

	CitizenScore    float64 `json:"citizenScore"`
	RequiredCitizen float64 `json:"requiredCitizen"`
	CitizenMet      bool    `json:"citizenMet"`

	Met bool `json:"met"`
}

// AuditPublisher mirrors the audit surface the resolver needs.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Dispatcher is the webhook fan-out consumed on finalization.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload map[string]any) error
}

// Resolver evaluates quorum and finalizes milestones. It implements the
// attestation service's Finalizer.
type Resolver struct {
	attestations attestation.Store
	milestones   project.MilestoneStore
	pool         assignment.PoolStore
	certificates certificate.Store
	oracle       signing.Oracle
	dispatcher   Dispatcher
	auditLog     AuditPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

type ResolverParams struct {
	Attestations attestation.Store
	Milestones   project.MilestoneStore
	Pool         assignment.PoolStore
	Certificates certificate.Store
	Oracle       signing.Oracle
	Dispatcher   Dispatcher
	AuditLog     AuditPublisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

func NewResolver(p ResolverParams) *Resolver {
	return &Resolver{
		attestations: p.Attestations,
		milestones:   p.Milestones,
		pool:         p.Pool,
		certificates: p.Certificates,
		oracle:       p.Oracle,
		dispatcher:   p.Dispatcher,
		auditLog:     p.AuditLog,
		metrics:      p.Metrics,
		logger:       p.Logger,
		tracer:       otel.Tracer("tml/quorum"),
		now:          time.Now,
	}
}

// Evaluate computes the current quorum breakdown from countable
// attestations. Revoked and rejected attestations never contribute.
func (r *Resolver) Evaluate(ctx context.Context, milestoneID id.MilestoneID) (*Breakdown, error) {
	milestone, err := r.milestones.FindByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	attestations, err := r.attestations.ListByMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	b := &Breakdown{
		MilestoneID:       milestoneID,
		RequiredInspector: milestone.RequiredInspectorCount,
		RequiredAuditor:   milestone.RequiredAuditorCount,
		RequiredCitizen:   float64(milestone.RequiredCitizenCount),
	}

	var citizenScore float64
	for _, att := range attestations {
		if !att.Countable() {
			continue
		}
		switch att.Type {
		case attestation.TypeInspectorVerification:
			b.InspectorCount++
		case attestation.TypeAuditorReview:
			b.AuditorCount++
		case attestation.TypeCitizenApproval:
			citizenScore += r.citizenWeight(ctx, milestoneID, att.ActorID)
		}
	}
	b.CitizenScore = math.Round(citizenScore*100) / 100

	b.InspectorMet = b.InspectorCount >= b.RequiredInspector
	b.AuditorMet = b.AuditorCount >= b.RequiredAuditor
	b.CitizenMet = b.CitizenScore >= b.RequiredCitizen
	b.Met = b.InspectorMet && b.AuditorMet && b.CitizenMet
	return b, nil
}

// citizenWeight resolves the citizen's assurance tier for the milestone.
// Missing or unknown tiers fall back to the weakest weight rather than
// inflating the score.
func (r *Resolver) citizenWeight(ctx context.Context, milestoneID id.MilestoneID, citizenID id.ActorID) float64 {
	tier := assignment.DefaultTier
	if entry, err := r.pool.FindByMilestoneCitizen(ctx, milestoneID, citizenID); err == nil && entry.AssuranceTier != "" {
		tier = entry.AssuranceTier
	}
	w, ok := assignment.TierWeights[tier]
	if !ok {
		return assignment.TierWeights[assignment.DefaultTier]
	}
	return w
}

// CheckAndFinalize evaluates quorum and, when every threshold is met, runs
// the finalization sequence: mint, persist the certificate, complete the
// milestone, emit events. A mint failure aborts before any state changes.
func (r *Resolver) CheckAndFinalize(ctx context.Context, milestoneID id.MilestoneID, caller actor.Identity) error {
	ctx, span := r.tracer.Start(ctx, "quorum.CheckAndFinalize",
		trace.WithAttributes(attribute.String("milestone_id", milestoneID.String())))
	defer span.End()

	milestone, err := r.milestones.FindByID(ctx, milestoneID)
	if err != nil {
		return err
	}
	if milestone.Status != project.StatusAttestationInProgress {
		return nil
	}
	if _, err := r.certificates.FindIssuedByMilestone(ctx, milestoneID); err == nil {
		return nil
	}

	breakdown, err := r.Evaluate(ctx, milestoneID)
	if err != nil {
		return err
	}
	if !breakdown.Met {
		return nil
	}

	minted, cert, err := r.mint(ctx, milestone)
	if err != nil {
		// Fail closed: quorum stands but nothing transitions until a
		// later recomputation retries the mint.
		r.logger.ErrorContext(ctx, "certificate mint failed, milestone left open",
			"milestone_id", milestoneID, "error", err)
		return dErrors.Wrap(dErrors.CodeInternal, "mint certificate", err)
	}

	if err := r.certificates.CreateIssued(ctx, cert); err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			// Lost the issuance race; the winner finalized the milestone.
			return nil
		}
		return err
	}

	now := r.now()
	milestone.Status = project.StatusCompleted
	milestone.CompletedAt = &now
	if err := r.milestones.Update(ctx, milestone); err != nil {
		return err
	}

	if r.metrics != nil {
		r.metrics.QuorumFinalized.Inc()
	}
	_ = r.auditLog.Emit(ctx, audit.Event{
		EntityType:    "milestone",
		EntityID:      milestoneID.String(),
		Action:        audit.ActionMilestoneCompleted,
		ActorIdentity: caller.ActorID.String(),
		Payload: map[string]any{
			"certificate_id": cert.ID.String(),
			"inspector":      breakdown.InspectorCount,
			"auditor":        breakdown.AuditorCount,
			"citizen_score":  breakdown.CitizenScore,
		},
	})

	// Completion fires before issuance so consumers see the transitions in
	// causal order.
	_ = r.dispatcher.Dispatch(ctx, webhook.EventMilestoneCompleted, map[string]any{
		"milestoneId": milestoneID.String(),
		"projectId":   milestone.ProjectID.String(),
		"completedAt": now.UTC().Format(time.RFC3339),
	})
	_ = r.dispatcher.Dispatch(ctx, webhook.EventCertificateIssued, map[string]any{
		"certificateId":   cert.ID.String(),
		"milestoneId":     milestoneID.String(),
		"certificateHash": minted.CertificateHash,
	})
	return nil
}

// VerifyCertificate re-checks a stored certificate's signature against the
// oracle. Used by the public verification endpoint.
func (r *Resolver) VerifyCertificate(ctx context.Context, certID id.CertificateID) (bool, *certificate.Certificate, error) {
	cert, err := r.certificates.FindByID(ctx, certID)
	if err != nil {
		return false, nil, err
	}
	if cert.Status != certificate.StatusIssued {
		return false, cert, nil
	}
	valid, err := r.oracle.VerifyCertificateSignature(ctx, cert.CertificateHash, cert.DigitalSignature)
	if err != nil {
		return false, cert, err
	}
	return valid, cert, nil
}

func (r *Resolver) mint(ctx context.Context, milestone *project.Milestone) (signing.Minted, *certificate.Certificate, error) {
	attestations, err := r.attestations.ListByMilestone(ctx, milestone.ID)
	if err != nil {
		return signing.Minted{}, nil, err
	}
	digests := make([]signing.AttestationDigest, 0, len(attestations))
	for _, att := range attestations {
		if !att.Countable() {
			continue
		}
		digests = append(digests, signing.AttestationDigest{
			AttestationID: att.ID,
			ActorID:       att.ActorID,
			Type:          string(att.Type),
			EvidenceHash:  att.EvidenceHash,
		})
	}

	minted, err := r.oracle.MintCertificate(ctx, signing.MintInput{
		MilestoneID:  milestone.ID,
		ProjectID:    milestone.ProjectID,
		Attestations: digests,
	})
	if err != nil {
		return signing.Minted{}, nil, err
	}

	return minted, &certificate.Certificate{
		ID:               id.NewCertificateID(),
		MilestoneID:      milestone.ID,
		ProjectID:        milestone.ProjectID,
		CertificateHash:  minted.CertificateHash,
		DigitalSignature: minted.DigitalSignature,
		Status:           certificate.StatusIssued,
		IssuedAt:         r.now(),
	}, nil
}
