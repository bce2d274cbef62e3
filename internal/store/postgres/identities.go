package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/pawtrail/internal/identity"
	"github.com/kozaktomas/pawtrail/internal/store"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// IdentityRepository implements store.IdentityStore on PostgreSQL.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates the repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func (r *IdentityRepository) Insert(ctx context.Context, rec identity.Record) (identity.Record, error) {
	query := `
		INSERT INTO identities (key, external_id, name, embedding, frame_count, version, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6)
		RETURNING version
	`

	err := r.pool.QueryRow(ctx, query,
		rec.Key,
		rec.ExternalID,
		rec.Name,
		pgvector.NewVector(rec.Vector),
		rec.FrameCount,
		rec.EnrolledAt,
	).Scan(&rec.Version)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return identity.Record{}, store.ErrDuplicateIdentity
		}
		return identity.Record{}, fmt.Errorf("insert identity: %w", err)
	}
	return rec, nil
}

func (r *IdentityRepository) Replace(ctx context.Context, rec identity.Record) (identity.Record, error) {
	query := `
		INSERT INTO identities (key, external_id, name, embedding, frame_count, version, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6)
		ON CONFLICT (key) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			name = EXCLUDED.name,
			embedding = EXCLUDED.embedding,
			frame_count = EXCLUDED.frame_count,
			version = identities.version + 1,
			enrolled_at = EXCLUDED.enrolled_at
		RETURNING version
	`

	err := r.pool.QueryRow(ctx, query,
		rec.Key,
		rec.ExternalID,
		rec.Name,
		pgvector.NewVector(rec.Vector),
		rec.FrameCount,
		rec.EnrolledAt,
	).Scan(&rec.Version)
	if err != nil {
		return identity.Record{}, fmt.Errorf("replace identity: %w", err)
	}
	return rec, nil
}

func (r *IdentityRepository) Get(ctx context.Context, key string) (identity.Record, error) {
	query := `
		SELECT key, external_id, name, embedding, frame_count, version, enrolled_at
		FROM identities
		WHERE key = $1
	`

	var rec identity.Record
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&rec.Key,
		&rec.ExternalID,
		&rec.Name,
		&vec,
		&rec.FrameCount,
		&rec.Version,
		&rec.EnrolledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Record{}, store.ErrNotFound
	}
	if err != nil {
		return identity.Record{}, fmt.Errorf("query identity: %w", err)
	}

	rec.Vector = vec.Slice()
	return rec, nil
}

func (r *IdentityRepository) Delete(ctx context.Context, key string) error {
	res, err := r.pool.Exec(ctx, "DELETE FROM identities WHERE key = $1", key)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete identity rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *IdentityRepository) List(ctx context.Context) ([]identity.Record, error) {
	query := `
		SELECT key, external_id, name, embedding, frame_count, version, enrolled_at
		FROM identities
		ORDER BY key
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []identity.Record
	for rows.Next() {
		var rec identity.Record
		var vec pgvector.Vector
		if err := rows.Scan(
			&rec.Key,
			&rec.ExternalID,
			&rec.Name,
			&vec,
			&rec.FrameCount,
			&rec.Version,
			&rec.EnrolledAt,
		); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		rec.Vector = vec.Slice()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}
