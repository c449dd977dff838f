package attestation

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"tml/internal/geofence"
	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("tml"),
		tcpostgres.WithUsername("tml"),
		tcpostgres.WithPassword("tml"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, Schema)
	require.NoError(t, err)
	return NewPostgresStore(pool)
}

func newTestAttestation(milestoneID id.MilestoneID, attType Type) *Attestation {
	return &Attestation{
		ID:           id.NewAttestationID(),
		MilestoneID:  milestoneID,
		ActorID:      id.NewActorID(),
		Type:         attType,
		Status:       StatusSubmitted,
		Location:     geofence.Point{Latitude: 0.31, Longitude: 32.58},
		EvidenceHash: "deadbeef",
		SubmittedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPostgresStore_CreateAndFind(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	att := newTestAttestation(id.NewMilestoneID(), TypeInspectorVerification)
	require.NoError(t, store.Create(ctx, att))

	found, err := store.FindByID(ctx, att.ID)
	require.NoError(t, err)
	assert.Equal(t, att.ID, found.ID)
	assert.Equal(t, att.MilestoneID, found.MilestoneID)
	assert.Equal(t, StatusSubmitted, found.Status)
	assert.Equal(t, att.Location, found.Location)
	assert.Equal(t, "deadbeef", found.EvidenceHash)

	byTriple, err := store.FindByMilestoneActorType(ctx, att.MilestoneID, att.ActorID, att.Type)
	require.NoError(t, err)
	assert.Equal(t, att.ID, byTriple.ID)

	_, err = store.FindByID(ctx, id.NewAttestationID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestPostgresStore_UniquePerActorAndType(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	att := newTestAttestation(id.NewMilestoneID(), TypeAuditorReview)
	require.NoError(t, store.Create(ctx, att))

	dup := newTestAttestation(att.MilestoneID, att.Type)
	dup.ActorID = att.ActorID
	err := store.Create(ctx, dup)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestPostgresStore_DeviceTokenUniquePerMilestone(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	milestoneID := id.NewMilestoneID()

	att := newTestAttestation(milestoneID, TypeCitizenApproval)
	att.DeviceToken = "sim-42"
	require.NoError(t, store.Create(ctx, att))

	used, err := store.DeviceTokenUsed(ctx, milestoneID, "sim-42")
	require.NoError(t, err)
	assert.True(t, used)

	used, err = store.DeviceTokenUsed(ctx, milestoneID, "sim-43")
	require.NoError(t, err)
	assert.False(t, used)

	// The partial index backstops the service-level check.
	other := newTestAttestation(milestoneID, TypeCitizenApproval)
	other.DeviceToken = "sim-42"
	err = store.Create(ctx, other)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	// Same token on a different milestone is allowed.
	elsewhere := newTestAttestation(id.NewMilestoneID(), TypeCitizenApproval)
	elsewhere.DeviceToken = "sim-42"
	assert.NoError(t, store.Create(ctx, elsewhere))
}

func TestPostgresStore_ListWithFilters(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	milestoneID := id.NewMilestoneID()

	first := newTestAttestation(milestoneID, TypeInspectorVerification)
	first.SubmittedAt = time.Now().UTC().Add(-2 * time.Minute).Truncate(time.Microsecond)
	second := newTestAttestation(milestoneID, TypeAuditorReview)
	second.SubmittedAt = time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond)
	second.Status = StatusRevoked
	second.RevokedAt = &second.SubmittedAt
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))
	require.NoError(t, store.Create(ctx, newTestAttestation(id.NewMilestoneID(), TypeInspectorVerification)))

	all, err := store.List(ctx, ListFilter{MilestoneID: milestoneID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)

	revoked, err := store.List(ctx, ListFilter{MilestoneID: milestoneID, Status: StatusRevoked})
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	assert.Equal(t, second.ID, revoked[0].ID)

	paged, err := store.List(ctx, ListFilter{MilestoneID: milestoneID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, second.ID, paged[0].ID)
}

func TestPostgresStore_Update(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	att := newTestAttestation(id.NewMilestoneID(), TypeInspectorVerification)
	require.NoError(t, store.Create(ctx, att))

	now := time.Now().UTC().Truncate(time.Microsecond)
	att.Status = StatusVerified
	att.VerifiedAt = &now
	require.NoError(t, store.Update(ctx, att))

	found, err := store.FindByID(ctx, att.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, found.Status)
	require.NotNil(t, found.VerifiedAt)
	assert.True(t, found.VerifiedAt.Equal(now))

	missing := newTestAttestation(id.NewMilestoneID(), TypeAuditorReview)
	err = store.Update(ctx, missing)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
