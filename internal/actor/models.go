// Package actor holds the people and organizations that participate in
// milestone attestation, plus the trusted-issuer registry backing their
// decentralized identifiers.
package actor

import (
	"time"

	id "tml/pkg/domain"
)

// Role partitions what an actor may attest to.
type Role string

const (
	RoleAdmin              Role = "admin"
	RoleContractorEngineer Role = "contractor_engineer"
	RoleIndependentAuditor Role = "independent_auditor"
	RoleCitizen            Role = "citizen"
	RoleGovOfficial        Role = "gov_official"
)

var validRoles = map[Role]bool{
	RoleAdmin:              true,
	RoleContractorEngineer: true,
	RoleIndependentAuditor: true,
	RoleCitizen:            true,
	RoleGovOfficial:        true,
}

func (r Role) IsValid() bool { return validRoles[r] }

// Identity is the authenticated caller passed into every service operation.
type Identity struct {
	ActorID id.ActorID
	Role    Role
}

// Actor is a registered participant. OrganizationIDs drive the
// conflict-of-interest exclusion during auditor selection.
type Actor struct {
	ID              id.ActorID
	Name            string
	Phone           string
	Role            Role
	DID             string
	OrganizationIDs []id.OrganizationID
	CreatedAt       time.Time
	DeletedAt       *time.Time
}

// SharesOrganization reports whether two actors have any org in common.
func (a Actor) SharesOrganization(other Actor) bool {
	for _, mine := range a.OrganizationIDs {
		for _, theirs := range other.OrganizationIDs {
			if mine == theirs {
				return true
			}
		}
	}
	return false
}

// TrustedIssuer is a registry entry binding an actor's DID to its Ed25519
// public key. Flipping Active off is a credential-level kill switch
// independent of any specific assignment.
type TrustedIssuer struct {
	DID           string
	ActorID       id.ActorID
	PublicKey     []byte
	Active        bool
	RevokedReason string
	RevokedAt     *time.Time
}
