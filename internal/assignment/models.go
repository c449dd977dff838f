// Package assignment populates the pools the attestation ledger's
// eligibility checks depend on: auditor assignments under rotation and
// conflict-of-interest rules, and citizen pools under SIM-cap and
// tier-stratification rules.
package assignment

import (
	"time"

	id "tml/pkg/domain"
)

// AuditorStatus enumerates the auditor assignment lifecycle.
type AuditorStatus string

const (
	AuditorAssigned  AuditorStatus = "assigned"
	AuditorAccepted  AuditorStatus = "accepted"
	AuditorCompleted AuditorStatus = "completed"
	AuditorRecused   AuditorStatus = "recused"
	AuditorReplaced  AuditorStatus = "replaced"
)

// AuditorAssignment links a milestone to an independent auditor for one
// rotation round. At most one active (non-replaced, non-recused) assignment
// exists per (milestone, auditor).
type AuditorAssignment struct {
	ID            id.AssignmentID
	MilestoneID   id.MilestoneID
	AuditorID     id.ActorID
	RotationRound int
	Status        AuditorStatus
	AssignedAt    time.Time
	UpdatedAt     time.Time
}

// Active reports whether this assignment still binds the auditor.
func (a AuditorAssignment) Active() bool {
	return a.Status != AuditorRecused && a.Status != AuditorReplaced
}

// AssuranceTier buckets how strongly a citizen's identity was verified.
// Stronger tiers carry more quorum weight.
type AssuranceTier string

const (
	TierBiometric   AssuranceTier = "biometric"
	TierUSSD        AssuranceTier = "ussd"
	TierCSOMediated AssuranceTier = "cso_mediated"
)

// TierWeights are the quorum contributions per tier.
var TierWeights = map[AssuranceTier]float64{
	TierBiometric:   1.0,
	TierUSSD:        0.6,
	TierCSOMediated: 0.4,
}

// DefaultTier applies when a citizen has no recorded tier.
const DefaultTier = TierCSOMediated

// PoolStatus enumerates the citizen pool entry lifecycle.
type PoolStatus string

const (
	PoolEnrolled  PoolStatus = "enrolled"
	PoolAttested  PoolStatus = "attested"
	PoolWithdrawn PoolStatus = "withdrawn"
	PoolExcluded  PoolStatus = "excluded"
)

// SIMCap is the maximum concurrent active (enrolled or attested) pool
// entries one citizen may hold across all milestones. It limits how many
// attestations a single SIM or identity can feed.
const SIMCap = 5

// PoolEntry enrolls a citizen into a milestone's approval pool.
type PoolEntry struct {
	ID                 id.PoolEntryID
	MilestoneID        id.MilestoneID
	CitizenID          id.ActorID
	ProximityProofHash string
	AssuranceTier      AssuranceTier
	Status             PoolStatus
	EnrolledAt         time.Time
	UpdatedAt          time.Time
}

// ActiveEnrollment reports whether the entry counts toward the SIM cap.
func (p PoolEntry) ActiveEnrollment() bool {
	return p.Status == PoolEnrolled || p.Status == PoolAttested
}
