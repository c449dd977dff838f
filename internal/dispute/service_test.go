package dispute

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tml/internal/actor"
	"tml/internal/assignment"
	"tml/internal/certificate"
	"tml/internal/platform/locks"
	"tml/internal/platform/logger"
	"tml/internal/project"
	"tml/internal/webhook"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
	auditmem "tml/pkg/platform/audit/store/memory"
	"tml/pkg/platform/audit/publisher"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, eventType string, _ map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, eventType)
	return nil
}

func (d *recordingDispatcher) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.events))
	copy(out, d.events)
	return out
}

type DisputeSuite struct {
	suite.Suite

	disputes     *MemoryStore
	milestones   *project.MemoryMilestoneStore
	certificates *certificate.MemoryStore
	assignments  *assignment.MemoryAuditorStore
	actors       *actor.MemoryStore
	dispatcher   *recordingDispatcher
	service      *Service

	milestone *project.Milestone
	citizen   actor.Identity
	official  actor.Identity
}

func TestDisputeSuite(t *testing.T) {
	suite.Run(t, new(DisputeSuite))
}

func (s *DisputeSuite) SetupTest() {
	s.disputes = NewMemoryStore()
	s.milestones = project.NewMemoryMilestoneStore()
	s.certificates = certificate.NewMemoryStore()
	s.assignments = assignment.NewMemoryAuditorStore()
	s.actors = actor.NewMemoryStore()
	s.dispatcher = &recordingDispatcher{}

	s.service = NewService(ServiceParams{
		Disputes:     s.disputes,
		Milestones:   s.milestones,
		Certificates: s.certificates,
		Assignments:  s.assignments,
		Actors:       s.actors,
		Locker:       locks.NewMemory(),
		Dispatcher:   s.dispatcher,
		AuditLog:     publisher.NewPublisher(auditmem.NewInMemoryStore()),
		Logger:       logger.New(),
	})

	s.milestone = &project.Milestone{
		ID:                   id.NewMilestoneID(),
		ProjectID:            id.NewProjectID(),
		SequenceNumber:       1,
		Title:                "Drainage culverts",
		Status:               project.StatusAttestationInProgress,
		CurrentRotationRound: 2,
		CreatedAt:            time.Now(),
	}
	s.Require().NoError(s.milestones.Create(context.Background(), s.milestone))

	s.citizen = actor.Identity{ActorID: id.NewActorID(), Role: actor.RoleCitizen}
	s.official = actor.Identity{ActorID: id.NewActorID(), Role: actor.RoleGovOfficial}
}

func (s *DisputeSuite) completeMilestoneWithCertificate() *certificate.Certificate {
	now := time.Now()
	s.milestone.Status = project.StatusCompleted
	s.milestone.CompletedAt = &now
	s.Require().NoError(s.milestones.Update(context.Background(), s.milestone))

	cert := &certificate.Certificate{
		ID:               id.NewCertificateID(),
		MilestoneID:      s.milestone.ID,
		ProjectID:        s.milestone.ProjectID,
		CertificateHash:  "deadbeef",
		DigitalSignature: "c2ln",
		Status:           certificate.StatusIssued,
		IssuedAt:         now,
	}
	s.Require().NoError(s.certificates.CreateIssued(context.Background(), cert))
	return cert
}

func (s *DisputeSuite) TestFileAgainstOpenMilestone() {
	d, err := s.service.File(context.Background(), FileInput{
		MilestoneID: s.milestone.ID,
		Reason:      "culvert depth below design",
	}, s.citizen)
	s.Require().NoError(err)
	s.Equal(StatusOpen, d.Status)
	s.Equal(s.citizen.ActorID, d.FiledBy)
	s.Equal([]string{webhook.EventDisputeOpened}, s.dispatcher.Events())

	milestone, err := s.milestones.FindByID(context.Background(), s.milestone.ID)
	s.Require().NoError(err)
	s.Equal(project.StatusAttestationInProgress, milestone.Status)
}

func (s *DisputeSuite) TestFileClawsBackCompletedMilestone() {
	cert := s.completeMilestoneWithCertificate()

	d, err := s.service.File(context.Background(), FileInput{
		MilestoneID: s.milestone.ID,
		Reason:      "photos reused from another site",
	}, s.citizen)
	s.Require().NoError(err)

	revoked, err := s.certificates.FindByID(context.Background(), cert.ID)
	s.Require().NoError(err)
	s.Equal(certificate.StatusRevoked, revoked.Status)
	s.Contains(revoked.RevokedReason, d.ID.String())
	s.NotNil(revoked.RevokedAt)

	milestone, err := s.milestones.FindByID(context.Background(), s.milestone.ID)
	s.Require().NoError(err)
	s.Equal(project.StatusAttestationInProgress, milestone.Status)
	s.Nil(milestone.CompletedAt)

	s.Equal([]string{webhook.EventCertificateRevoked, webhook.EventDisputeOpened}, s.dispatcher.Events())
}

func (s *DisputeSuite) TestFileRequiresDisputableMilestone() {
	for _, status := range []project.MilestoneStatus{project.StatusPending, project.StatusInProgress, project.StatusFailed} {
		s.milestone.Status = status
		s.Require().NoError(s.milestones.Update(context.Background(), s.milestone))

		_, err := s.service.File(context.Background(), FileInput{
			MilestoneID: s.milestone.ID,
			Reason:      "work not started",
		}, s.citizen)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict), "status %s is not disputable", status)
	}

	disputes, err := s.disputes.ListByMilestone(context.Background(), s.milestone.ID)
	s.Require().NoError(err)
	s.Empty(disputes, "rejected filings leave no record")
}

func (s *DisputeSuite) TestFileRequiresReason() {
	_, err := s.service.File(context.Background(), FileInput{MilestoneID: s.milestone.ID}, s.citizen)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *DisputeSuite) TestFileUnknownMilestone() {
	_, err := s.service.File(context.Background(), FileInput{
		MilestoneID: id.NewMilestoneID(),
		Reason:      "anything",
	}, s.citizen)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DisputeSuite) file() *Dispute {
	d, err := s.service.File(context.Background(), FileInput{
		MilestoneID: s.milestone.ID,
		Reason:      "substandard materials",
	}, s.citizen)
	s.Require().NoError(err)
	return d
}

func (s *DisputeSuite) TestReviewTransition() {
	d := s.file()

	reviewed, err := s.service.Review(context.Background(), d.ID, s.official)
	s.Require().NoError(err)
	s.Equal(StatusUnderReview, reviewed.Status)
	s.NotNil(reviewed.ReviewedAt)

	// Reviewing twice conflicts.
	_, err = s.service.Review(context.Background(), d.ID, s.official)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *DisputeSuite) TestReviewRequiresOfficial() {
	d := s.file()
	_, err := s.service.Review(context.Background(), d.ID, s.citizen)
	s.True(dErrors.HasCode(err, dErrors.CodeAuthorization))
}

func (s *DisputeSuite) TestResolveBeforeReviewConflicts() {
	d := s.file()
	_, err := s.service.Resolve(context.Background(), d.ID, ResolveInput{Outcome: OutcomeResolved}, s.official)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *DisputeSuite) TestResolveWithReassignment() {
	replacement := &actor.Actor{
		ID:        id.NewActorID(),
		Name:      "Replacement",
		Role:      actor.RoleIndependentAuditor,
		CreatedAt: time.Now(),
	}
	s.Require().NoError(s.actors.Create(context.Background(), replacement))

	d := s.file()
	_, err := s.service.Review(context.Background(), d.ID, s.official)
	s.Require().NoError(err)

	resolved, err := s.service.Resolve(context.Background(), d.ID, ResolveInput{
		Outcome:             OutcomeResolved,
		ResolutionNotes:     "auditor replaced after collusion finding",
		ReassignedAuditorID: replacement.ID,
	}, s.official)
	s.Require().NoError(err)
	s.Equal(StatusResolved, resolved.Status)
	s.Equal(replacement.ID, resolved.ReassignedAuditorID)
	s.NotNil(resolved.ResolvedAt)

	active, err := s.assignments.FindActive(context.Background(), s.milestone.ID, replacement.ID)
	s.Require().NoError(err)
	s.Equal(3, active.RotationRound, "reassignment advances the rotation round")

	milestone, err := s.milestones.FindByID(context.Background(), s.milestone.ID)
	s.Require().NoError(err)
	s.Equal(3, milestone.CurrentRotationRound)

	s.Contains(s.dispatcher.Events(), webhook.EventDisputeResolved)
}

func (s *DisputeSuite) TestResolveReopensMilestoneCompletedMidReview() {
	d := s.file()
	_, err := s.service.Review(context.Background(), d.ID, s.official)
	s.Require().NoError(err)

	// Attestation kept going and the milestone finalized while the
	// dispute was under review.
	cert := s.completeMilestoneWithCertificate()

	resolved, err := s.service.Resolve(context.Background(), d.ID, ResolveInput{
		Outcome:         OutcomeResolved,
		ResolutionNotes: "claim upheld",
	}, s.official)
	s.Require().NoError(err)
	s.Equal(StatusResolved, resolved.Status)

	milestone, err := s.milestones.FindByID(context.Background(), s.milestone.ID)
	s.Require().NoError(err)
	s.Equal(project.StatusAttestationInProgress, milestone.Status)
	s.Nil(milestone.CompletedAt)

	revoked, err := s.certificates.FindByID(context.Background(), cert.ID)
	s.Require().NoError(err)
	s.Equal(certificate.StatusRevoked, revoked.Status)
}

func (s *DisputeSuite) TestResolveReplacesPriorAssignments() {
	outgoing := &assignment.AuditorAssignment{
		ID:            id.NewAssignmentID(),
		MilestoneID:   s.milestone.ID,
		AuditorID:     id.NewActorID(),
		RotationRound: 2,
		Status:        assignment.AuditorAccepted,
		AssignedAt:    time.Now(),
	}
	s.Require().NoError(s.assignments.Create(context.Background(), outgoing))

	replacement := &actor.Actor{
		ID:        id.NewActorID(),
		Name:      "Replacement",
		Role:      actor.RoleIndependentAuditor,
		CreatedAt: time.Now(),
	}
	s.Require().NoError(s.actors.Create(context.Background(), replacement))

	d := s.file()
	_, err := s.service.Review(context.Background(), d.ID, s.official)
	s.Require().NoError(err)

	_, err = s.service.Resolve(context.Background(), d.ID, ResolveInput{
		Outcome:             OutcomeResolved,
		ReassignedAuditorID: replacement.ID,
	}, s.official)
	s.Require().NoError(err)

	replaced, err := s.assignments.FindByID(context.Background(), outgoing.ID)
	s.Require().NoError(err)
	s.Equal(assignment.AuditorReplaced, replaced.Status)

	active, err := s.assignments.FindActive(context.Background(), s.milestone.ID, replacement.ID)
	s.Require().NoError(err)
	s.Equal(assignment.AuditorAssigned, active.Status)
}

func (s *DisputeSuite) TestResolveRejectsNonAuditorReplacement() {
	engineer := &actor.Actor{
		ID:        id.NewActorID(),
		Role:      actor.RoleContractorEngineer,
		CreatedAt: time.Now(),
	}
	s.Require().NoError(s.actors.Create(context.Background(), engineer))

	d := s.file()
	_, err := s.service.Review(context.Background(), d.ID, s.official)
	s.Require().NoError(err)

	_, err = s.service.Resolve(context.Background(), d.ID, ResolveInput{
		Outcome:             OutcomeResolved,
		ReassignedAuditorID: engineer.ID,
	}, s.official)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *DisputeSuite) TestDismiss() {
	d := s.file()
	_, err := s.service.Review(context.Background(), d.ID, s.official)
	s.Require().NoError(err)

	dismissed, err := s.service.Resolve(context.Background(), d.ID, ResolveInput{
		Outcome:         OutcomeDismissed,
		ResolutionNotes: "claim unsubstantiated",
	}, s.official)
	s.Require().NoError(err)
	s.Equal(StatusDismissed, dismissed.Status)
	s.False(dismissed.Open())
}

func (s *DisputeSuite) TestResolveUnknownOutcome() {
	d := s.file()
	_, err := s.service.Review(context.Background(), d.ID, s.official)
	s.Require().NoError(err)

	_, err = s.service.Resolve(context.Background(), d.ID, ResolveInput{Outcome: "escalated"}, s.official)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *DisputeSuite) TestListByMilestone() {
	s.file()
	s.file()

	disputes, err := s.service.ListByMilestone(context.Background(), s.milestone.ID)
	s.Require().NoError(err)
	s.Len(disputes, 2)
}
