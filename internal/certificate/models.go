// Package certificate stores the compliance certificates minted when a
// milestone reaches full quorum.
package certificate

import (
	"time"

	id "tml/pkg/domain"
)

type Status string

const (
	StatusIssued  Status = "issued"
	StatusRevoked Status = "revoked"
)

type Certificate struct {
	ID               id.CertificateID
	MilestoneID      id.MilestoneID
	ProjectID        id.ProjectID
	CertificateHash  string
	DigitalSignature string
	Status           Status
	IssuedAt         time.Time
	RevokedAt        *time.Time
	RevokedReason    string
}
