// Package audit captures structured audit events emitted from domain logic.
// Events are transport-agnostic so stores and sinks can fan out.
package audit

import (
	"context"
	"time"
)

// Event records a single auditable action against an entity. ActorIdentity is
// a string to support multiple identification schemes (actor UUIDs, system
// identities, DIDs).
type Event struct {
	Timestamp     time.Time
	EntityType    string
	EntityID      string
	Action        string
	ActorIdentity string
	Payload       map[string]any
}

// Action names emitted by the core services. Keeping the full taxonomy in one
// place makes downstream consumers (SIEM routing, retention policies) easy to
// review.
const (
	ActionAttestationSubmitted = "attestation_submitted"
	ActionAttestationVerified  = "attestation_verified"
	ActionAttestationRevoked   = "attestation_revoked"

	ActionMilestoneCompleted  = "milestone_completed"
	ActionMilestoneReopened   = "milestone_reopened"
	ActionCertificateIssued   = "certificate_issued"
	ActionCertificateRevoked  = "certificate_revoked"
	ActionQuorumEvaluated     = "quorum_evaluated"
	ActionSignatureMismatch   = "attestation_signature_mismatch"
	ActionAuditorsSelected    = "auditors_selected"
	ActionCitizensSelected    = "citizens_selected"
	ActionAuditorRecused      = "auditor_recused"
	ActionIssuerRevoked       = "trusted_issuer_revoked"
	ActionDisputeFiled        = "dispute_filed"
	ActionDisputeUnderReview  = "dispute_under_review"
	ActionDisputeResolved     = "dispute_resolved"
	ActionDisputeDismissed    = "dispute_dismissed"
	ActionWebhookDelivered    = "webhook_delivered"
	ActionWebhookDeadLettered = "webhook_dead_lettered"
)

// Store is the persistence contract for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Sink is a write-only downstream (Kafka, SIEM forwarder). Sinks receive a
// copy of every event after it is stored; sink failures never surface to the
// emitting operation.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close()
}
