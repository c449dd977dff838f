// Package dispute runs the challenge lifecycle against completed or
// in-progress milestones. Filing a dispute against a completed milestone
// claws back its certificate and reopens attestation.
package dispute

import (
	"time"

	id "tml/pkg/domain"
)

type Status string

const (
	StatusOpen        Status = "open"
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
	StatusDismissed   Status = "dismissed"
)

// Outcome is the terminal status a reviewer assigns.
type Outcome string

const (
	OutcomeResolved  Outcome = "resolved"
	OutcomeDismissed Outcome = "dismissed"
)

// Dispute challenges the integrity of a milestone's attestation record.
type Dispute struct {
	ID              id.DisputeID
	MilestoneID     id.MilestoneID
	FiledBy         id.ActorID
	Reason          string
	EvidenceHash    string
	Status          Status
	ResolutionNotes string
	// ReassignedAuditorID is set when resolution swapped in a replacement
	// auditor at a fresh rotation round.
	ReassignedAuditorID id.ActorID
	FiledAt             time.Time
	ReviewedAt          *time.Time
	ResolvedAt          *time.Time
}

// Open reports whether the dispute still needs attention.
func (d Dispute) Open() bool {
	return d.Status == StatusOpen || d.Status == StatusUnderReview
}
