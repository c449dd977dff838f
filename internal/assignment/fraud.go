package assignment

import (
	"context"

	"tml/internal/actor"
	dErrors "tml/pkg/domain-errors"
	audit "tml/pkg/platform/audit"
)

// RevokeIssuerForFraud deactivates a trusted issuer's DID binding. Signatures
// made under the DID stop verifying immediately; attestations already on the
// ledger keep their recorded verdicts and must be revoked individually.
func (s *Service) RevokeIssuerForFraud(ctx context.Context, did, reason string, caller actor.Identity) (*actor.TrustedIssuer, error) {
	if err := requireOfficial(caller); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "revocation reason is required")
	}

	issuer, err := s.issuers.FindByDID(ctx, did)
	if err != nil {
		return nil, err
	}
	if !issuer.Active {
		return nil, dErrors.New(dErrors.CodeConflict, "issuer already revoked")
	}

	now := s.now()
	issuer.Active = false
	issuer.RevokedReason = reason
	issuer.RevokedAt = &now
	if err := s.issuers.Update(ctx, issuer); err != nil {
		return nil, err
	}

	_ = s.auditLog.Emit(ctx, audit.Event{
		EntityType:    "trusted_issuer",
		EntityID:      did,
		Action:        audit.ActionIssuerRevoked,
		ActorIdentity: caller.ActorID.String(),
		Payload:       map[string]any{"reason": reason},
	})
	return issuer, nil
}
