// Package attestation is the append-only-per-key ledger of on-site
// attestations. It owns the ordered, idempotent submission pipeline that
// gates everything downstream.
package attestation

import (
	"time"

	"tml/internal/actor"
	"tml/internal/geofence"
	id "tml/pkg/domain"
)

// Type is the closed set of attestation kinds. Role checks, ordering checks,
// and the citizen-only device cap all dispatch off it.
type Type string

const (
	TypeInspectorVerification Type = "inspector_verification"
	TypeAuditorReview         Type = "auditor_review"
	TypeCitizenApproval       Type = "citizen_approval"
)

var validTypes = map[Type]bool{
	TypeInspectorVerification: true,
	TypeAuditorReview:         true,
	TypeCitizenApproval:       true,
}

func (t Type) IsValid() bool { return validTypes[t] }

// allowedRoles maps each attestation type to the roles that may submit it.
// Admin can always submit on behalf of field staff.
var allowedRoles = map[Type][]actor.Role{
	TypeInspectorVerification: {actor.RoleContractorEngineer, actor.RoleAdmin},
	TypeAuditorReview:         {actor.RoleIndependentAuditor, actor.RoleAdmin},
	TypeCitizenApproval:       {actor.RoleCitizen, actor.RoleAdmin},
}

// RoleMaySubmit reports whether the role may submit this attestation type.
func (t Type) RoleMaySubmit(role actor.Role) bool {
	for _, allowed := range allowedRoles[t] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Predecessor returns the attestation type that must be active on the
// milestone before this one is accepted, or "" for the chain head.
func (t Type) Predecessor() Type {
	switch t {
	case TypeAuditorReview:
		return TypeInspectorVerification
	case TypeCitizenApproval:
		return TypeAuditorReview
	default:
		return ""
	}
}

type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusVerified  Status = "verified"
	StatusRejected  Status = "rejected"
	StatusRevoked   Status = "revoked"
)

// Attestation is one actor's on-site statement about one milestone. Never
// deleted; revocation flips status and stops it counting.
type Attestation struct {
	ID          id.AttestationID
	MilestoneID id.MilestoneID
	ActorID     id.ActorID
	Type        Type
	Status      Status
	Location    geofence.Point
	// EvidenceHash fingerprints the captured evidence bundle; capture and
	// storage of the evidence itself live outside the core.
	EvidenceHash string
	// DeviceToken identifies the submitting device. Citizen approvals are
	// capped to one per device per milestone.
	DeviceToken string
	// Signature is the client-side signature over the submission payload.
	// Stored even when verification fails; see SignatureValid.
	Signature string
	SignerDID string
	// SignatureValid records the oracle's verdict at submission time. A
	// false value is not fatal: legacy clients sign a payload the server
	// cannot byte-reconstruct.
	SignatureValid bool
	SubmittedAt    time.Time
	VerifiedAt     *time.Time
	RevokedAt      *time.Time
}

// Countable reports whether the attestation counts toward ordering and
// quorum ("active" in ledger terms).
func (a Attestation) Countable() bool {
	return a.Status == StatusSubmitted || a.Status == StatusVerified
}
