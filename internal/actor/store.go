package actor

import (
	"context"

	id "tml/pkg/domain"
)

// Stores are interface-driven so domain logic stays testable and persistence
// can be swapped without rewiring business code.
type Store interface {
	Create(ctx context.Context, actor *Actor) error
	FindByID(ctx context.Context, actorID id.ActorID) (*Actor, error)
	ListByRole(ctx context.Context, role Role) ([]*Actor, error)
}

// IssuerStore is the trusted-issuer registry.
type IssuerStore interface {
	Register(ctx context.Context, issuer *TrustedIssuer) error
	FindByDID(ctx context.Context, did string) (*TrustedIssuer, error)
	FindByActor(ctx context.Context, actorID id.ActorID) (*TrustedIssuer, error)
	Update(ctx context.Context, issuer *TrustedIssuer) error
}
