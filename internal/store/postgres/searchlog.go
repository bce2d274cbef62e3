package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/kozaktomas/pawtrail/internal/store"
)

// SearchLogRepository implements store.SearchLog on PostgreSQL.
type SearchLogRepository struct {
	pool       *Pool
	identities *IdentityRepository
}

// NewSearchLogRepository creates the repository. The identity repository
// supplies the enrolled-identity count for Stats.
func NewSearchLogRepository(pool *Pool, identities *IdentityRepository) *SearchLogRepository {
	return &SearchLogRepository{pool: pool, identities: identities}
}

func (r *SearchLogRepository) Record(ctx context.Context, rec store.SearchRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	var bestKey sql.NullString
	if rec.BestKey != "" {
		bestKey = sql.NullString{String: rec.BestKey, Valid: true}
	}

	query := `
		INSERT INTO search_log (id, best_key, score, trail, elapsed_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.pool.Exec(ctx, query, rec.ID, bestKey, rec.Score, rec.Trail, rec.ElapsedMS, rec.CreatedAt); err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

func (r *SearchLogRepository) Stats(ctx context.Context) (store.Stats, error) {
	stats := store.Stats{ByTrail: make(map[string]int)}

	identities, err := r.identities.Count(ctx)
	if err != nil {
		return store.Stats{}, err
	}
	stats.Identities = identities

	rows, err := r.pool.Query(ctx, "SELECT trail, COUNT(*) FROM search_log GROUP BY trail")
	if err != nil {
		return store.Stats{}, fmt.Errorf("query search stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var trail string
		var count int
		if err := rows.Scan(&trail, &count); err != nil {
			return store.Stats{}, fmt.Errorf("scan search stats: %w", err)
		}
		stats.ByTrail[trail] = count
		stats.Searches += count
	}
	if err := rows.Err(); err != nil {
		return store.Stats{}, fmt.Errorf("iterate search stats: %w", err)
	}
	return stats, nil
}
