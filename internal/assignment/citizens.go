package assignment

import (
	"context"
	"encoding/hex"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/sha3"

	"tml/internal/actor"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
	audit "tml/pkg/platform/audit"
	"tml/pkg/randsource"
)

// stratifyOrder is the round-robin visiting order across assurance tiers.
// Strong tiers are drawn first so small pools skew toward verified identities.
var stratifyOrder = []AssuranceTier{TierBiometric, TierUSSD, TierCSOMediated}

// SelectCitizens enrolls `count` citizens into the milestone's approval
// pool. Candidates already in the pool or at the SIM cap are filtered out,
// the rest are bucketed by their latest assurance tier, each bucket is
// shuffled, and enrollment round-robins across tiers until the pool is
// filled. Selection fails closed when too few candidates remain.
func (s *Service) SelectCitizens(ctx context.Context, milestoneID id.MilestoneID, count int, caller actor.Identity) ([]*PoolEntry, error) {
	ctx, span := s.tracer.Start(ctx, "assignment.SelectCitizens",
		trace.WithAttributes(
			attribute.String("milestone_id", milestoneID.String()),
			attribute.Int("count", count),
		))
	defer span.End()

	if err := requireOfficial(caller); err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "citizen count must be positive")
	}
	if _, err := s.milestones.FindByID(ctx, milestoneID); err != nil {
		return nil, err
	}

	candidates, err := s.actors.ListByRole(ctx, actor.RoleCitizen)
	if err != nil {
		return nil, err
	}

	buckets := make(map[AssuranceTier][]*actor.Actor, len(stratifyOrder))
	available := 0
	for _, c := range candidates {
		if c.DeletedAt != nil {
			continue
		}
		if _, err := s.pool.FindByMilestoneCitizen(ctx, milestoneID, c.ID); err == nil {
			continue
		}
		active, err := s.pool.CountActiveByCitizen(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if active >= SIMCap {
			continue
		}
		tier := s.latestTier(ctx, c.ID)
		buckets[tier] = append(buckets[tier], c)
		available++
	}

	if available < count {
		return nil, dErrors.New(dErrors.CodeConflict, "not enough eligible citizens").
			WithDetails(map[string]any{"available": available, "requested": count})
	}

	for _, tier := range stratifyOrder {
		bucket := buckets[tier]
		perm, err := randsource.Shuffle(s.rand, len(bucket))
		if err != nil {
			return nil, dErrors.Wrap(dErrors.CodeInternal, "shuffle citizen bucket", err)
		}
		shuffled := make([]*actor.Actor, len(bucket))
		for i, j := range perm {
			shuffled[i] = bucket[j]
		}
		buckets[tier] = shuffled
	}

	now := s.now()
	entries := make([]*PoolEntry, 0, count)
	citizenIDs := make([]string, 0, count)
	for len(entries) < count {
		progressed := false
		for _, tier := range stratifyOrder {
			if len(entries) == count {
				break
			}
			bucket := buckets[tier]
			if len(bucket) == 0 {
				continue
			}
			chosen := bucket[0]
			buckets[tier] = bucket[1:]
			progressed = true

			entry := &PoolEntry{
				ID:                 id.NewPoolEntryID(),
				MilestoneID:        milestoneID,
				CitizenID:          chosen.ID,
				ProximityProofHash: proximityProofHash(milestoneID, chosen.ID),
				AssuranceTier:      tier,
				Status:             PoolEnrolled,
				EnrolledAt:         now,
			}
			if err := s.pool.Create(ctx, entry); err != nil {
				return nil, err
			}
			entries = append(entries, entry)
			citizenIDs = append(citizenIDs, chosen.ID.String())
		}
		if !progressed {
			break
		}
	}

	if s.metrics != nil {
		s.metrics.SelectionDraws.WithLabelValues("citizen").Inc()
	}
	_ = s.auditLog.Emit(ctx, audit.Event{
		EntityType:    "milestone",
		EntityID:      milestoneID.String(),
		Action:        audit.ActionCitizensSelected,
		ActorIdentity: caller.ActorID.String(),
		Payload:       map[string]any{"citizen_ids": citizenIDs},
	})
	return entries, nil
}

func (s *Service) latestTier(ctx context.Context, citizenID id.ActorID) AssuranceTier {
	tier, err := s.pool.LatestTierByCitizen(ctx, citizenID)
	if err != nil || tier == "" {
		return DefaultTier
	}
	if _, ok := TierWeights[tier]; !ok {
		return DefaultTier
	}
	return tier
}

// proximityProofHash binds the enrollment to the (milestone, citizen) pair.
// Clients later replace it with a location-derived proof; the hash keeps the
// field non-guessable either way.
func proximityProofHash(milestoneID id.MilestoneID, citizenID id.ActorID) string {
	digest := sha3.Sum256(fmt.Appendf(nil, "%s|%s", milestoneID, citizenID))
	return hex.EncodeToString(digest[:])
}
