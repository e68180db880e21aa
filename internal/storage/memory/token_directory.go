package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"token-aggregator/internal/domain"
	"token-aggregator/internal/storage"
)

// TokenDirectory is an in-memory implementation of storage.TokenDirectory.
type TokenDirectory struct {
	mu     sync.RWMutex
	tokens map[string]*domain.TokenMetadata // keyed by lower-cased address
}

// NewTokenDirectory creates a new in-memory token directory.
func NewTokenDirectory() *TokenDirectory {
	return &TokenDirectory{tokens: make(map[string]*domain.TokenMetadata)}
}

var _ storage.TokenDirectory = (*TokenDirectory)(nil)

// RecordSightings upserts entries. Entries without an address are rejected.
func (d *TokenDirectory) RecordSightings(_ context.Context, entries []domain.TokenMetadata) error {
	for _, e := range entries {
		if e.Key() == "" {
			return storage.ErrInvalidInput
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range entries {
		key := e.Key()
		existing, ok := d.tokens[key]
		if !ok {
			entry := e
			if entry.Sightings < 1 {
				entry.Sightings = 1
			}
			d.tokens[key] = &entry
			continue
		}
		existing.Address = e.Address
		existing.Name = e.Name
		existing.Symbol = e.Symbol
		existing.Protocol = e.Protocol
		if e.LastSeenAt > existing.LastSeenAt {
			existing.LastSeenAt = e.LastSeenAt
		}
		existing.Sightings++
	}
	return nil
}

// Get retrieves a token by address. Returns ErrNotFound if not exists.
func (d *TokenDirectory) Get(_ context.Context, address string) (*domain.TokenMetadata, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.tokens[domain.AddressKey(address)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	entry := *m
	return &entry, nil
}

// Search returns matching tokens, most recently seen first.
func (d *TokenDirectory) Search(_ context.Context, query string, limit int) ([]*domain.TokenMetadata, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, storage.ErrInvalidInput
	}

	d.mu.RLock()
	var out []*domain.TokenMetadata
	for key, m := range d.tokens {
		if strings.Contains(key, q) ||
			strings.Contains(strings.ToLower(m.Name), q) ||
			strings.Contains(strings.ToLower(m.Symbol), q) {
			entry := *m
			out = append(out, &entry)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeenAt != out[j].LastSeenAt {
			return out[i].LastSeenAt > out[j].LastSeenAt
		}
		return out[i].Key() < out[j].Key()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of known tokens.
func (d *TokenDirectory) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tokens), nil
}
