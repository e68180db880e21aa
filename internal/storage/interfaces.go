// Package storage defines persistence interfaces for the token directory
// and the refresh run log. Implementations live in memory/ and postgres/.
package storage

import (
	"context"

	"token-aggregator/internal/domain"
)

// TokenDirectory records every token that has appeared in a snapshot.
// Addresses are matched case-insensitively.
type TokenDirectory interface {
	// RecordSightings upserts entries. New tokens keep FirstSeenAt; known
	// tokens get display fields and LastSeenAt refreshed and Sightings incremented.
	RecordSightings(ctx context.Context, entries []domain.TokenMetadata) error

	// Get retrieves a token by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.TokenMetadata, error)

	// Search returns tokens whose name, symbol or address contains query,
	// most recently seen first.
	Search(ctx context.Context, query string, limit int) ([]*domain.TokenMetadata, error)

	// Count returns the number of known tokens.
	Count(ctx context.Context) (int, error)
}

// RefreshRunStore is an append-only log of refresh cycles.
type RefreshRunStore interface {
	// Insert appends a run and sets its ID.
	Insert(ctx context.Context, run *domain.RefreshRun) error

	// Latest returns up to limit runs, newest first.
	Latest(ctx context.Context, limit int) ([]*domain.RefreshRun, error)
}
