package webhook

import (
	"time"

	id "tml/pkg/domain"
)

// Event types emitted by the verification pipeline.
const (
	EventMilestoneCompleted = "milestone_completed"
	EventCertificateIssued  = "certificate_issued"
	EventCertificateRevoked = "certificate_revoked"
	EventDisputeOpened      = "dispute_opened"
	EventDisputeResolved    = "dispute_resolved"
	EventAuditorsAssigned   = "auditors_assigned"
)

// Subscription registers an HTTPS endpoint for a set of event types. The
// secret is used to HMAC-sign every delivery body.
type Subscription struct {
	ID         id.SubscriptionID
	URL        string
	Secret     string
	EventTypes []string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Matches reports whether the subscription wants the event type. An empty
// EventTypes list subscribes to everything.
func (s *Subscription) Matches(eventType string) bool {
	if !s.Active {
		return false
	}
	if len(s.EventTypes) == 0 {
		return true
	}
	for _, t := range s.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// DeadLetter records a delivery that exhausted all attempts.
type DeadLetter struct {
	SubscriptionID id.SubscriptionID
	EventType      string
	Payload        map[string]any
	Attempts       int
	LastError      string
	FailedAt       time.Time
}
