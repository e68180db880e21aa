// Package sources contains the upstream trending-token adapters.
//
// Every adapter normalizes its provider's payload into domain.SourceRecord
// values and performs HTTP through a shared Transport, which owns retries,
// backoff, rate limiting and latency metrics.
package sources

import (
	"context"
	"errors"

	"token-aggregator/internal/domain"
)

// ErrNotFound is returned by Transport when the upstream answers 404.
var ErrNotFound = errors.New("upstream: not found")

// Source is one upstream provider of trending token data.
type Source interface {
	// Name identifies the provider; it doubles as the record's Source.
	Name() domain.Source
	// FetchCandidates returns the provider's current trending tokens.
	FetchCandidates(ctx context.Context) ([]domain.SourceRecord, error)
	// FetchByAddress returns the provider's record for one token,
	// or nil with no error when the provider does not know it.
	FetchByAddress(ctx context.Context, address string) (*domain.SourceRecord, error)
	// Search returns tokens matching a free-text query.
	Search(ctx context.Context, query string) ([]domain.SourceRecord, error)
}
