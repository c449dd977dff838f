package assignment

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tml/internal/actor"
	"tml/internal/project"
	"tml/internal/webhook"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
	audit "tml/pkg/platform/audit"
	"tml/pkg/randsource"
)

// SelectAuditors draws `count` independent auditors for the milestone using
// a cryptographic shuffle. Exclusions, applied in order:
//   - auditors already actively assigned to this milestone
//   - auditors assigned anywhere on the project within the rotation window
//   - auditors sharing an organization with any contractor engineer that
//     submitted an inspector verification anywhere on the project
//
// Selection fails closed: if fewer eligible auditors remain than requested,
// nothing is assigned.
func (s *Service) SelectAuditors(ctx context.Context, milestoneID id.MilestoneID, count int, caller actor.Identity) ([]*AuditorAssignment, error) {
	ctx, span := s.tracer.Start(ctx, "assignment.SelectAuditors",
		trace.WithAttributes(
			attribute.String("milestone_id", milestoneID.String()),
			attribute.Int("count", count),
		))
	defer span.End()

	if err := requireOfficial(caller); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "auditor count must be positive")
	}

	milestone, err := s.milestones.FindByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.actors.ListByRole(ctx, actor.RoleIndependentAuditor)
	if err != nil {
		return nil, err
	}

	excluded, inspectorOrgs, nextRound, err := s.auditorExclusions(ctx, milestone)
	if err != nil {
		return nil, err
	}

	eligible := make([]*actor.Actor, 0, len(candidates))
	for _, c := range candidates {
		if c.DeletedAt != nil || excluded[c.ID] || inOrgs(c, inspectorOrgs) {
			continue
		}
		eligible = append(eligible, c)
	}

	if len(eligible) < count {
		return nil, dErrors.New(dErrors.CodeConflict, "not enough eligible auditors").
			WithDetails(map[string]any{"available": len(eligible), "requested": count})
	}

	perm, err := randsource.Shuffle(s.rand, len(eligible))
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "shuffle auditor candidates", err)
	}

	now := s.now()
	assignments := make([]*AuditorAssignment, 0, count)
	auditorIDs := make([]string, 0, count)
	for _, idx := range perm[:count] {
		chosen := eligible[idx]
		assignment := &AuditorAssignment{
			ID:            id.NewAssignmentID(),
			MilestoneID:   milestoneID,
			AuditorID:     chosen.ID,
			RotationRound: nextRound,
			Status:        AuditorAssigned,
			AssignedAt:    now,
		}
		if err := s.auditors.Create(ctx, assignment); err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
		auditorIDs = append(auditorIDs, chosen.ID.String())
	}

	milestone.CurrentRotationRound = nextRound
	if err := s.milestones.Update(ctx, milestone); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SelectionDraws.WithLabelValues("auditor").Inc()
	}
	_ = s.auditLog.Emit(ctx, audit.Event{
		EntityType:    "milestone",
		EntityID:      milestoneID.String(),
		Action:        audit.ActionAuditorsSelected,
		ActorIdentity: caller.ActorID.String(),
		Payload:       map[string]any{"auditor_ids": auditorIDs, "rotation_round": nextRound},
	})
	_ = s.dispatcher.Dispatch(ctx, webhook.EventAuditorsAssigned, map[string]any{
		"milestoneId":   milestoneID.String(),
		"auditorIds":    auditorIDs,
		"rotationRound": nextRound,
	})
	return assignments, nil
}

// auditorExclusions computes the exclusion set, the organizations under
// conflict of interest, and the rotation round the draw will stamp. The
// rotation window covers the last rotationWindow rounds across the whole
// project, so an auditor rotates off before serving again.
func (s *Service) auditorExclusions(ctx context.Context, milestone *project.Milestone) (map[id.ActorID]bool, map[id.OrganizationID]bool, int, error) {
	milestones, err := s.milestones.ListByProject(ctx, milestone.ProjectID)
	if err != nil {
		return nil, nil, 0, err
	}
	milestoneIDs := make([]id.MilestoneID, 0, len(milestones))
	for _, m := range milestones {
		milestoneIDs = append(milestoneIDs, m.ID)
	}
	history, err := s.auditors.ListByMilestones(ctx, milestoneIDs)
	if err != nil {
		return nil, nil, 0, err
	}

	currentMax := 0
	for _, a := range history {
		if a.RotationRound > currentMax {
			currentMax = a.RotationRound
		}
	}
	windowStart := currentMax - (rotationWindow - 1)
	if windowStart < 1 {
		windowStart = 1
	}

	excluded := make(map[id.ActorID]bool)
	for _, a := range history {
		if a.RotationRound >= windowStart {
			excluded[a.AuditorID] = true
		}
		if a.MilestoneID == milestone.ID && a.Active() {
			excluded[a.AuditorID] = true
		}
	}

	inspectorOrgs := make(map[id.OrganizationID]bool)
	inspectorIDs, err := s.inspectors.InspectorActorIDs(ctx, milestoneIDs)
	if err != nil {
		return nil, nil, 0, err
	}
	for _, actorID := range inspectorIDs {
		inspector, err := s.actors.FindByID(ctx, actorID)
		if err != nil {
			continue
		}
		for _, orgID := range inspector.OrganizationIDs {
			inspectorOrgs[orgID] = true
		}
	}
	return excluded, inspectorOrgs, currentMax + 1, nil
}

func inOrgs(a *actor.Actor, orgs map[id.OrganizationID]bool) bool {
	for _, orgID := range a.OrganizationIDs {
		if orgs[orgID] {
			return true
		}
	}
	return false
}
