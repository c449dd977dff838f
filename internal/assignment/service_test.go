package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tml/internal/actor"
	"tml/internal/platform/logger"
	"tml/internal/project"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
	auditmem "tml/pkg/platform/audit/store/memory"
	"tml/pkg/platform/audit/publisher"
)

// zeroSource makes the Fisher-Yates shuffle deterministic.
type zeroSource struct{}

func (zeroSource) Intn(int) (int, error) { return 0, nil }

// stubInspectors tracks inspector verifications per milestone and answers
// the union over whatever milestone set the engine asks about.
type stubInspectors struct {
	perMilestone map[id.MilestoneID][]id.ActorID
}

func (s *stubInspectors) record(milestoneID id.MilestoneID, actorIDs ...id.ActorID) {
	if s.perMilestone == nil {
		s.perMilestone = make(map[id.MilestoneID][]id.ActorID)
	}
	s.perMilestone[milestoneID] = append(s.perMilestone[milestoneID], actorIDs...)
}

func (s *stubInspectors) InspectorActorIDs(_ context.Context, milestoneIDs []id.MilestoneID) ([]id.ActorID, error) {
	var out []id.ActorID
	for _, milestoneID := range milestoneIDs {
		out = append(out, s.perMilestone[milestoneID]...)
	}
	return out, nil
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, string, map[string]any) error { return nil }

type EngineSuite struct {
	suite.Suite

	auditors   *MemoryAuditorStore
	pool       *MemoryPoolStore
	actors     *actor.MemoryStore
	issuers    *actor.MemoryIssuerStore
	milestones *project.MemoryMilestoneStore
	inspectors *stubInspectors
	service    *Service

	projectID id.ProjectID
	milestone *project.Milestone
	official  actor.Identity
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.auditors = NewMemoryAuditorStore()
	s.pool = NewMemoryPoolStore()
	s.actors = actor.NewMemoryStore()
	s.issuers = actor.NewMemoryIssuerStore()
	s.milestones = project.NewMemoryMilestoneStore()
	s.inspectors = &stubInspectors{}

	s.service = NewService(ServiceParams{
		Auditors:   s.auditors,
		Pool:       s.pool,
		Actors:     s.actors,
		Issuers:    s.issuers,
		Inspectors: s.inspectors,
		Milestones: s.milestones,
		Rand:       zeroSource{},
		Dispatcher: noopDispatcher{},
		AuditLog:   publisher.NewPublisher(auditmem.NewInMemoryStore()),
		Logger:     logger.New(),
	})

	s.projectID = id.NewProjectID()
	s.milestone = s.addMilestone(1)
	s.official = actor.Identity{ActorID: id.NewActorID(), Role: actor.RoleGovOfficial}
}

func (s *EngineSuite) addMilestone(seq int) *project.Milestone {
	m := &project.Milestone{
		ID:             id.NewMilestoneID(),
		ProjectID:      s.projectID,
		SequenceNumber: seq,
		Title:          "Milestone",
		Status:         project.StatusAttestationInProgress,
		CreatedAt:      time.Now(),
	}
	s.Require().NoError(s.milestones.Create(context.Background(), m))
	return m
}

func (s *EngineSuite) addActor(role actor.Role, orgs ...id.OrganizationID) *actor.Actor {
	a := &actor.Actor{
		ID:              id.NewActorID(),
		Name:            "Participant",
		Role:            role,
		OrganizationIDs: orgs,
		CreatedAt:       time.Now(),
	}
	s.Require().NoError(s.actors.Create(context.Background(), a))
	return a
}

func (s *EngineSuite) addAuditors(n int) []*actor.Actor {
	out := make([]*actor.Actor, n)
	for i := range out {
		out[i] = s.addActor(actor.RoleIndependentAuditor)
	}
	return out
}

func (s *EngineSuite) TestSelectAuditorsDrawsRequestedCount() {
	s.addAuditors(5)

	assignments, err := s.service.SelectAuditors(context.Background(), s.milestone.ID, 3, s.official)
	s.Require().NoError(err)
	s.Len(assignments, 3)

	seen := map[id.ActorID]bool{}
	for _, a := range assignments {
		s.False(seen[a.AuditorID], "no auditor drawn twice")
		seen[a.AuditorID] = true
		s.Equal(AuditorAssigned, a.Status)
		s.Equal(1, a.RotationRound)
	}

	milestone, err := s.milestones.FindByID(context.Background(), s.milestone.ID)
	s.Require().NoError(err)
	s.Equal(1, milestone.CurrentRotationRound)
}

func (s *EngineSuite) TestSelectAuditorsFailsClosed() {
	s.addAuditors(2)

	_, err := s.service.SelectAuditors(context.Background(), s.milestone.ID, 3, s.official)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(map[string]any{"available": 2, "requested": 3}, dErrors.Details(err))

	assignments, err := s.auditors.ListByMilestone(context.Background(), s.milestone.ID)
	s.Require().NoError(err)
	s.Empty(assignments, "nothing assigned on failure")
}

func (s *EngineSuite) TestSelectAuditorsRotationWindow() {
	s.addAuditors(4)

	first, err := s.service.SelectAuditors(context.Background(), s.milestone.ID, 2, s.official)
	s.Require().NoError(err)

	second := s.addMilestone(2)
	next, err := s.service.SelectAuditors(context.Background(), second.ID, 2, s.official)
	s.Require().NoError(err)

	assigned := map[id.ActorID]bool{}
	for _, a := range first {
		assigned[a.AuditorID] = true
	}
	for _, a := range next {
		s.False(assigned[a.AuditorID], "recently rotated auditors are excluded")
		s.Equal(2, a.RotationRound)
	}

	// All four auditors served within the window; a third draw has nobody.
	third := s.addMilestone(3)
	_, err = s.service.SelectAuditors(context.Background(), third.ID, 1, s.official)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *EngineSuite) TestSelectAuditorsConflictOfInterest() {
	org := id.NewOrganizationID()
	engineer := s.addActor(actor.RoleContractorEngineer, org)
	s.inspectors.record(s.milestone.ID, engineer.ID)

	conflicted := s.addActor(actor.RoleIndependentAuditor, org)
	clean := s.addAuditors(2)

	assignments, err := s.service.SelectAuditors(context.Background(), s.milestone.ID, 2, s.official)
	s.Require().NoError(err)

	chosen := map[id.ActorID]bool{}
	for _, a := range assignments {
		chosen[a.AuditorID] = true
	}
	s.False(chosen[conflicted.ID], "shared-organization auditor excluded")
	s.True(chosen[clean[0].ID])
	s.True(chosen[clean[1].ID])
}

func (s *EngineSuite) TestSelectAuditorsConflictOfInterestSpansProject() {
	org := id.NewOrganizationID()
	engineer := s.addActor(actor.RoleContractorEngineer, org)
	// Inspector verification lives on the first milestone only.
	s.inspectors.record(s.milestone.ID, engineer.ID)

	conflicted := s.addActor(actor.RoleIndependentAuditor, org)
	clean := s.addAuditors(2)

	// Selecting on a sibling milestone still excludes the shared-org auditor.
	sibling := s.addMilestone(2)
	assignments, err := s.service.SelectAuditors(context.Background(), sibling.ID, 2, s.official)
	s.Require().NoError(err)

	chosen := map[id.ActorID]bool{}
	for _, a := range assignments {
		chosen[a.AuditorID] = true
	}
	s.False(chosen[conflicted.ID], "conflict of interest applies across the whole project")
	s.True(chosen[clean[0].ID])
	s.True(chosen[clean[1].ID])
}

func (s *EngineSuite) TestSelectAuditorsRequiresOfficial() {
	s.addAuditors(3)
	citizen := actor.Identity{ActorID: id.NewActorID(), Role: actor.RoleCitizen}

	_, err := s.service.SelectAuditors(context.Background(), s.milestone.ID, 1, citizen)
	s.True(dErrors.HasCode(err, dErrors.CodeAuthorization))
}

func (s *EngineSuite) TestAcceptAndRecuse() {
	auditors := s.addAuditors(1)
	assignments, err := s.service.SelectAuditors(context.Background(), s.milestone.ID, 1, s.official)
	s.Require().NoError(err)

	me := actor.Identity{ActorID: auditors[0].ID, Role: actor.RoleIndependentAuditor}
	accepted, err := s.service.Accept(context.Background(), assignments[0].ID, me)
	s.Require().NoError(err)
	s.Equal(AuditorAccepted, accepted.Status)

	// Second accept conflicts.
	_, err = s.service.Accept(context.Background(), assignments[0].ID, me)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	recused, err := s.service.Recuse(context.Background(), assignments[0].ID, me)
	s.Require().NoError(err)
	s.Equal(AuditorRecused, recused.Status)
}

func (s *EngineSuite) TestAcceptByAnotherAuditorDenied() {
	s.addAuditors(1)
	assignments, err := s.service.SelectAuditors(context.Background(), s.milestone.ID, 1, s.official)
	s.Require().NoError(err)

	other := actor.Identity{ActorID: id.NewActorID(), Role: actor.RoleIndependentAuditor}
	_, err = s.service.Accept(context.Background(), assignments[0].ID, other)
	s.True(dErrors.HasCode(err, dErrors.CodeAuthorization))
}

func (s *EngineSuite) TestSelectCitizensEnforcesSIMCap() {
	capped := s.addActor(actor.RoleCitizen)
	free := s.addActor(actor.RoleCitizen)

	// The capped citizen already holds SIMCap active enrollments elsewhere.
	for i := 0; i < SIMCap; i++ {
		other := s.addMilestone(10 + i)
		s.Require().NoError(s.pool.Create(context.Background(), &PoolEntry{
			ID:          id.NewPoolEntryID(),
			MilestoneID: other.ID,
			CitizenID:   capped.ID,
			Status:      PoolEnrolled,
			EnrolledAt:  time.Now(),
		}))
	}

	entries, err := s.service.SelectCitizens(context.Background(), s.milestone.ID, 1, s.official)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(free.ID, entries[0].CitizenID, "capped citizen is not eligible")
}

func (s *EngineSuite) TestSelectCitizensBelowCapStillEligible() {
	citizen := s.addActor(actor.RoleCitizen)
	for i := 0; i < SIMCap-1; i++ {
		other := s.addMilestone(20 + i)
		s.Require().NoError(s.pool.Create(context.Background(), &PoolEntry{
			ID:          id.NewPoolEntryID(),
			MilestoneID: other.ID,
			CitizenID:   citizen.ID,
			Status:      PoolEnrolled,
			EnrolledAt:  time.Now(),
		}))
	}

	entries, err := s.service.SelectCitizens(context.Background(), s.milestone.ID, 1, s.official)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(citizen.ID, entries[0].CitizenID)
}

func (s *EngineSuite) TestSelectCitizensSkipsAlreadyEnrolled() {
	enrolled := s.addActor(actor.RoleCitizen)
	s.Require().NoError(s.pool.Create(context.Background(), &PoolEntry{
		ID:          id.NewPoolEntryID(),
		MilestoneID: s.milestone.ID,
		CitizenID:   enrolled.ID,
		Status:      PoolEnrolled,
		EnrolledAt:  time.Now(),
	}))
	fresh := s.addActor(actor.RoleCitizen)

	entries, err := s.service.SelectCitizens(context.Background(), s.milestone.ID, 1, s.official)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(fresh.ID, entries[0].CitizenID)
}

func (s *EngineSuite) TestSelectCitizensFailsClosed() {
	s.addActor(actor.RoleCitizen)

	_, err := s.service.SelectCitizens(context.Background(), s.milestone.ID, 2, s.official)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(map[string]any{"available": 1, "requested": 2}, dErrors.Details(err))
}

func (s *EngineSuite) TestSelectCitizensTierCarriesOver() {
	citizen := s.addActor(actor.RoleCitizen)
	prior := s.addMilestone(30)
	s.Require().NoError(s.pool.Create(context.Background(), &PoolEntry{
		ID:            id.NewPoolEntryID(),
		MilestoneID:   prior.ID,
		CitizenID:     citizen.ID,
		AssuranceTier: TierBiometric,
		Status:        PoolAttested,
		EnrolledAt:    time.Now(),
	}))

	entries, err := s.service.SelectCitizens(context.Background(), s.milestone.ID, 1, s.official)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(TierBiometric, entries[0].AssuranceTier)
	s.NotEmpty(entries[0].ProximityProofHash)
}

func (s *EngineSuite) TestRevokeIssuerForFraud() {
	engineer := s.addActor(actor.RoleContractorEngineer)
	issuer := &actor.TrustedIssuer{
		DID:       "did:key:z6MkTest",
		ActorID:   engineer.ID,
		PublicKey: make([]byte, 32),
		Active:    true,
	}
	s.Require().NoError(s.issuers.Register(context.Background(), issuer))

	revoked, err := s.service.RevokeIssuerForFraud(context.Background(), issuer.DID, "forged site photos", s.official)
	s.Require().NoError(err)
	s.False(revoked.Active)
	s.Equal("forged site photos", revoked.RevokedReason)
	s.NotNil(revoked.RevokedAt)

	// Second revocation conflicts.
	_, err = s.service.RevokeIssuerForFraud(context.Background(), issuer.DID, "again", s.official)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	// The key resolver no longer serves the revoked DID.
	_, err = s.issuers.ResolvePublicKey(context.Background(), issuer.DID)
	s.Error(err)
}

func (s *EngineSuite) TestRevokeIssuerRequiresReason() {
	_, err := s.service.RevokeIssuerForFraud(context.Background(), "did:key:x", "", s.official)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
