package attestation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	id "tml/pkg/domain"
	dErrors "tml/pkg/domain-errors"
)

// Schema is applied by deployment tooling and by integration tests. The two
// unique indexes are the storage-level source of truth for the ledger's
// uniqueness and device-cap invariants.
const Schema = `
CREATE TABLE IF NOT EXISTS attestations (
    id              UUID PRIMARY KEY,
    milestone_id    UUID NOT NULL,
    actor_id        UUID NOT NULL,
    type            TEXT NOT NULL,
    status          TEXT NOT NULL,
    latitude        DOUBLE PRECISION NOT NULL,
    longitude       DOUBLE PRECISION NOT NULL,
    evidence_hash   TEXT NOT NULL,
    device_token    TEXT NOT NULL DEFAULT '',
    signature       TEXT NOT NULL DEFAULT '',
    signer_did      TEXT NOT NULL DEFAULT '',
    signature_valid BOOLEAN NOT NULL DEFAULT FALSE,
    submitted_at    TIMESTAMPTZ NOT NULL,
    verified_at     TIMESTAMPTZ,
    revoked_at      TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS attestations_triple_idx
    ON attestations (milestone_id, actor_id, type);
CREATE UNIQUE INDEX IF NOT EXISTS attestations_device_idx
    ON attestations (milestone_id, device_token)
    WHERE type = 'citizen_approval' AND device_token <> '';
CREATE INDEX IF NOT EXISTS attestations_milestone_idx
    ON attestations (milestone_id, submitted_at);
`

const uniqueViolation = "23505"

// PostgresStore is the durable ledger backend.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, att *Attestation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attestations
		    (id, milestone_id, actor_id, type, status, latitude, longitude,
		     evidence_hash, device_token, signature, signer_did, signature_valid,
		     submitted_at, verified_at, revoked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		uuid.UUID(att.ID), uuid.UUID(att.MilestoneID), uuid.UUID(att.ActorID),
		string(att.Type), string(att.Status),
		att.Location.Latitude, att.Location.Longitude,
		att.EvidenceHash, att.DeviceToken, att.Signature, att.SignerDID,
		att.SignatureValid, att.SubmittedAt, att.VerifiedAt, att.RevokedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "attestations_device_idx" {
				return dErrors.New(dErrors.CodeConflict, "device already used for a citizen approval on milestone")
			}
			return dErrors.New(dErrors.CodeConflict, "attestation already exists for actor and type on milestone")
		}
		return fmt.Errorf("insert attestation: %w", err)
	}
	return nil
}

const selectColumns = `
	id, milestone_id, actor_id, type, status, latitude, longitude,
	evidence_hash, device_token, signature, signer_did, signature_valid,
	submitted_at, verified_at, revoked_at`

func (s *PostgresStore) FindByID(ctx context.Context, attID id.AttestationID) (*Attestation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM attestations WHERE id = $1`, uuid.UUID(attID))
	att, err := scanAttestation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "attestation not found")
	}
	return att, err
}

func (s *PostgresStore) FindByMilestoneActorType(ctx context.Context, milestoneID id.MilestoneID, actorID id.ActorID, t Type) (*Attestation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM attestations
		 WHERE milestone_id = $1 AND actor_id = $2 AND type = $3`,
		uuid.UUID(milestoneID), uuid.UUID(actorID), string(t))
	att, err := scanAttestation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "attestation not found")
	}
	return att, err
}

func (s *PostgresStore) ListByMilestone(ctx context.Context, milestoneID id.MilestoneID) ([]*Attestation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM attestations
		 WHERE milestone_id = $1 ORDER BY submitted_at`, uuid.UUID(milestoneID))
	if err != nil {
		return nil, fmt.Errorf("list attestations: %w", err)
	}
	defer rows.Close()
	return scanAttestations(rows)
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*Attestation, error) {
	query := `SELECT ` + selectColumns + ` FROM attestations WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !filter.MilestoneID.IsNil() {
		query += ` AND milestone_id = ` + arg(uuid.UUID(filter.MilestoneID))
	}
	if !filter.ActorID.IsNil() {
		query += ` AND actor_id = ` + arg(uuid.UUID(filter.ActorID))
	}
	if filter.Type != "" {
		query += ` AND type = ` + arg(string(filter.Type))
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	query += ` ORDER BY submitted_at`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attestations: %w", err)
	}
	defer rows.Close()
	return scanAttestations(rows)
}

func (s *PostgresStore) DeviceTokenUsed(ctx context.Context, milestoneID id.MilestoneID, deviceToken string) (bool, error) {
	var used bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
		    SELECT 1 FROM attestations
		    WHERE milestone_id = $1 AND device_token = $2 AND type = $3
		)`,
		uuid.UUID(milestoneID), deviceToken, string(TypeCitizenApproval),
	).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("check device token: %w", err)
	}
	return used, nil
}

func (s *PostgresStore) Update(ctx context.Context, att *Attestation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE attestations
		SET status = $2, signature_valid = $3, verified_at = $4, revoked_at = $5
		WHERE id = $1`,
		uuid.UUID(att.ID), string(att.Status), att.SignatureValid, att.VerifiedAt, att.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("update attestation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dErrors.New(dErrors.CodeNotFound, "attestation not found")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttestation(row rowScanner) (*Attestation, error) {
	var (
		att                           Attestation
		attID, milestoneID, actorID   uuid.UUID
		attType, status               string
	)
	err := row.Scan(&attID, &milestoneID, &actorID, &attType, &status,
		&att.Location.Latitude, &att.Location.Longitude,
		&att.EvidenceHash, &att.DeviceToken, &att.Signature, &att.SignerDID,
		&att.SignatureValid, &att.SubmittedAt, &att.VerifiedAt, &att.RevokedAt)
	if err != nil {
		return nil, err
	}
	att.ID = id.AttestationID(attID)
	att.MilestoneID = id.MilestoneID(milestoneID)
	att.ActorID = id.ActorID(actorID)
	att.Type = Type(attType)
	att.Status = Status(status)
	return &att, nil
}

func scanAttestations(rows pgx.Rows) ([]*Attestation, error) {
	var out []*Attestation
	for rows.Next() {
		att, err := scanAttestation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attestation: %w", err)
		}
		out = append(out, att)
	}
	return out, rows.Err()
}
