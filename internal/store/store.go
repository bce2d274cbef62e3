// Package store persists enrolled identities and the search log. The memory
// implementation backs single-node deployments and tests; store/postgres
// provides the durable variant.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/pawtrail/internal/identity"
)

var (
	// ErrDuplicateIdentity is returned by Insert when the key already exists.
	ErrDuplicateIdentity = errors.New("identity already enrolled")
	// ErrNotFound is returned when a key has no enrolled identity.
	ErrNotFound = errors.New("identity not found")
)

// IdentityStore persists canonical identity records.
type IdentityStore interface {
	// Insert stores a new identity at version 1. Fails with
	// ErrDuplicateIdentity when the key is taken.
	Insert(ctx context.Context, rec identity.Record) (identity.Record, error)
	// Replace overwrites the identity at rec.Key, bumping the stored
	// version. A missing key is stored as version 1.
	Replace(ctx context.Context, rec identity.Record) (identity.Record, error)
	// Get returns the identity for key or ErrNotFound.
	Get(ctx context.Context, key string) (identity.Record, error)
	// Delete removes the identity for key or returns ErrNotFound.
	Delete(ctx context.Context, key string) error
	// List returns all identities ordered by key.
	List(ctx context.Context) ([]identity.Record, error)
	// Count returns the number of enrolled identities.
	Count(ctx context.Context) (int, error)
}

// SearchRecord is one logged similarity search.
type SearchRecord struct {
	ID        uuid.UUID `json:"id"`
	BestKey   string    `json:"best_key,omitempty"`
	Score     float64   `json:"score"`
	Trail     string    `json:"trail"`
	ElapsedMS int64     `json:"elapsed_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats aggregates the search log for the stats endpoint.
type Stats struct {
	Identities int            `json:"identities"`
	Searches   int            `json:"searches"`
	ByTrail    map[string]int `json:"by_trail"`
}

// SearchLog records searches for later analysis. Logging is best-effort;
// a failed write never fails the search itself.
type SearchLog interface {
	Record(ctx context.Context, rec SearchRecord) error
	Stats(ctx context.Context) (Stats, error)
}
