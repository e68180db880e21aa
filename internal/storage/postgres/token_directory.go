package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"token-aggregator/internal/domain"
	"token-aggregator/internal/observability"
	"token-aggregator/internal/storage"
)

// TokenDirectory implements storage.TokenDirectory using PostgreSQL.
type TokenDirectory struct {
	pool *Pool
}

// NewTokenDirectory creates a new TokenDirectory.
func NewTokenDirectory(pool *Pool) *TokenDirectory {
	return &TokenDirectory{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenDirectory = (*TokenDirectory)(nil)

const upsertSightingSQL = `
	INSERT INTO token_directory (
		address_key, address, name, symbol, protocol, first_seen_at, last_seen_at, sightings
	) VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
	ON CONFLICT (address_key) DO UPDATE
	SET address = EXCLUDED.address,
	    name = EXCLUDED.name,
	    symbol = EXCLUDED.symbol,
	    protocol = EXCLUDED.protocol,
	    last_seen_at = GREATEST(token_directory.last_seen_at, EXCLUDED.last_seen_at),
	    sightings = token_directory.sightings + 1,
	    updated_at = NOW()
`

// RecordSightings upserts all entries in one batch.
func (d *TokenDirectory) RecordSightings(ctx context.Context, entries []domain.TokenMetadata) (err error) {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.Key() == "" {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() { observability.RecordDBQuery("record_sightings", time.Since(start).Seconds(), err) }()

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(upsertSightingSQL, e.Key(), e.Address, e.Name, e.Symbol, e.Protocol, e.FirstSeenAt, e.LastSeenAt)
	}

	if err := d.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("record sightings: %w", err)
	}
	return nil
}

const selectTokenColumns = `address, name, symbol, protocol, first_seen_at, last_seen_at, sightings`

// Get retrieves a token by address. Returns ErrNotFound if not exists.
func (d *TokenDirectory) Get(ctx context.Context, address string) (*domain.TokenMetadata, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT `+selectTokenColumns+`
		FROM token_directory
		WHERE address_key = $1
	`, domain.AddressKey(address))

	m, err := scanTokenMetadata(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return m, nil
}

// Search returns tokens matching query, most recently seen first.
func (d *TokenDirectory) Search(ctx context.Context, query string, limit int) ([]*domain.TokenMetadata, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, storage.ErrInvalidInput
	}
	if limit <= 0 {
		limit = 50
	}

	pattern := "%" + escapeLike(q) + "%"
	rows, err := d.pool.Query(ctx, `
		SELECT `+selectTokenColumns+`
		FROM token_directory
		WHERE address_key LIKE $1 OR LOWER(name) LIKE $1 OR LOWER(symbol) LIKE $1
		ORDER BY last_seen_at DESC, address_key ASC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search tokens: %w", err)
	}
	defer rows.Close()

	var out []*domain.TokenMetadata
	for rows.Next() {
		m, err := scanTokenMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Count returns the number of known tokens.
func (d *TokenDirectory) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM token_directory`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return n, nil
}

// scanTokenMetadata scans a single row into TokenMetadata.
func scanTokenMetadata(row pgx.Row) (*domain.TokenMetadata, error) {
	var m domain.TokenMetadata

	err := row.Scan(
		&m.Address,
		&m.Name,
		&m.Symbol,
		&m.Protocol,
		&m.FirstSeenAt,
		&m.LastSeenAt,
		&m.Sightings,
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
