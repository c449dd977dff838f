package attestation

import (
	"context"

	id "tml/pkg/domain"
)

// ListFilter narrows List queries; zero values mean "any".
type ListFilter struct {
	MilestoneID id.MilestoneID
	ActorID     id.ActorID
	Type        Type
	Status      Status
	Limit       int
	Offset      int
}

// Store persists attestations. Implementations enforce the two uniqueness
// invariants at the storage layer: one non-revoked attestation per
// (milestone, actor, type), and one citizen approval per (milestone, device
// token).
type Store interface {
	Create(ctx context.Context, att *Attestation) error
	FindByID(ctx context.Context, attID id.AttestationID) (*Attestation, error)
	FindByMilestoneActorType(ctx context.Context, milestoneID id.MilestoneID, actorID id.ActorID, t Type) (*Attestation, error)
	ListByMilestone(ctx context.Context, milestoneID id.MilestoneID) ([]*Attestation, error)
	List(ctx context.Context, filter ListFilter) ([]*Attestation, error)
	// DeviceTokenUsed reports whether a citizen approval with this device
	// token already exists on the milestone.
	DeviceTokenUsed(ctx context.Context, milestoneID id.MilestoneID, deviceToken string) (bool, error)
	Update(ctx context.Context, att *Attestation) error
}
