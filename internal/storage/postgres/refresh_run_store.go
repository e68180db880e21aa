package postgres

import (
	"context"
	"fmt"

	"token-aggregator/internal/domain"
	"token-aggregator/internal/storage"
)

// RefreshRunStore implements storage.RefreshRunStore using PostgreSQL.
type RefreshRunStore struct {
	pool *Pool
}

// NewRefreshRunStore creates a new RefreshRunStore.
func NewRefreshRunStore(pool *Pool) *RefreshRunStore {
	return &RefreshRunStore{pool: pool}
}

var _ storage.RefreshRunStore = (*RefreshRunStore)(nil)

// Insert appends a run and sets its ID.
func (s *RefreshRunStore) Insert(ctx context.Context, run *domain.RefreshRun) error {
	if run == nil || run.Status == "" {
		return storage.ErrInvalidInput
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO refresh_runs (
			started_at, finished_at, status, records, source_errors, price_alerts, volume_spikes
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		run.StartedAt,
		run.FinishedAt,
		run.Status,
		run.Records,
		run.SourceErrors,
		run.PriceAlerts,
		run.VolumeSpikes,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("insert refresh run: %w", err)
	}
	return nil
}

// Latest returns up to limit runs, newest first.
func (s *RefreshRunStore) Latest(ctx context.Context, limit int) ([]*domain.RefreshRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, finished_at, status, records, source_errors, price_alerts, volume_spikes
		FROM refresh_runs
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query refresh runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.RefreshRun
	for rows.Next() {
		var r domain.RefreshRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Records, &r.SourceErrors, &r.PriceAlerts, &r.VolumeSpikes); err != nil {
			return nil, fmt.Errorf("scan refresh run: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
