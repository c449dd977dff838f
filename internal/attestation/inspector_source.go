package attestation

import (
	"context"

	id "tml/pkg/domain"
)

// InspectorSource adapts the ledger to the assignment engine's
// conflict-of-interest query: the actors whose inspector verifications still
// count anywhere on a project. Callers pass the project's full milestone set
// because conflict of interest is project-scoped, not per milestone.
type InspectorSource struct {
	Store Store
}

func (s InspectorSource) InspectorActorIDs(ctx context.Context, milestoneIDs []id.MilestoneID) ([]id.ActorID, error) {
	seen := make(map[id.ActorID]bool)
	var out []id.ActorID
	for _, milestoneID := range milestoneIDs {
		attestations, err := s.Store.ListByMilestone(ctx, milestoneID)
		if err != nil {
			return nil, err
		}
		for _, att := range attestations {
			if att.Type == TypeInspectorVerification && att.Countable() && !seen[att.ActorID] {
				seen[att.ActorID] = true
				out = append(out, att.ActorID)
			}
		}
	}
	return out, nil
}
