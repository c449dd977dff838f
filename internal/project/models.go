// Package project holds infrastructure projects and their milestones. A
// milestone is the unit everything else attaches to: attestations, auditor
// assignments, citizen pools, certificates, and disputes.
package project

import (
	"time"

	"tml/internal/geofence"
	id "tml/pkg/domain"
)

// Project is a physical infrastructure undertaking with an optional boundary
// polygon used to geofence on-site attestations.
type Project struct {
	ID        id.ProjectID
	Name      string
	Boundary  []geofence.Point
	CreatedAt time.Time
	DeletedAt *time.Time
}

// MilestoneStatus enumerates the milestone lifecycle.
type MilestoneStatus string

const (
	StatusPending               MilestoneStatus = "pending"
	StatusInProgress            MilestoneStatus = "in_progress"
	StatusAttestationInProgress MilestoneStatus = "attestation_in_progress"
	StatusCompleted             MilestoneStatus = "completed"
	StatusFailed                MilestoneStatus = "failed"
)

// externalTransitions are the administratively driven status changes. The
// attestation_in_progress -> completed edge belongs to the quorum resolver
// alone, and completed -> attestation_in_progress to the dispute
// coordinator alone; neither appears here.
var externalTransitions = map[MilestoneStatus][]MilestoneStatus{
	StatusPending:               {StatusInProgress, StatusFailed},
	StatusInProgress:            {StatusAttestationInProgress, StatusFailed},
	StatusAttestationInProgress: {StatusFailed},
}

// CanTransitionExternally reports whether an administrative actor may move a
// milestone between the two statuses.
func CanTransitionExternally(from, to MilestoneStatus) bool {
	for _, allowed := range externalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Milestone is one verifiable stage of a project. RequiredCitizenCount is a
// weighted threshold, not a headcount: citizen attestations contribute
// fractional assurance-tier weights toward it.
type Milestone struct {
	ID                     id.MilestoneID
	ProjectID              id.ProjectID
	SequenceNumber         int
	Title                  string
	Status                 MilestoneStatus
	RequiredInspectorCount int
	RequiredAuditorCount   int
	RequiredCitizenCount   int
	// CurrentRotationRound is incremented on every auditor selection and
	// drives the reselection cooldown.
	CurrentRotationRound int
	CreatedAt            time.Time
	CompletedAt          *time.Time
	DeletedAt            *time.Time
}
