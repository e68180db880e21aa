package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-aggregator/internal/domain"
	"token-aggregator/internal/storage"
)

func TestTokenDirectory_RecordSightingsUpserts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	dir := NewTokenDirectory(pool)

	err := dir.RecordSightings(ctx, []domain.TokenMetadata{
		{Address: "MintA", Name: "Alpha", Symbol: "A", Protocol: "raydium", FirstSeenAt: 1000, LastSeenAt: 1000},
		{Address: "MintB", Name: "Beta", Symbol: "B", FirstSeenAt: 1000, LastSeenAt: 1000},
	})
	require.NoError(t, err)

	err = dir.RecordSightings(ctx, []domain.TokenMetadata{
		{Address: "minta", Name: "Alpha 2", Symbol: "A2", Protocol: "orca", FirstSeenAt: 9000, LastSeenAt: 9000},
	})
	require.NoError(t, err)

	got, err := dir.Get(ctx, "MINTA")
	require.NoError(t, err)
	assert.Equal(t, "minta", got.Address)
	assert.Equal(t, "Alpha 2", got.Name)
	assert.Equal(t, "orca", got.Protocol)
	assert.Equal(t, int64(1000), got.FirstSeenAt)
	assert.Equal(t, int64(9000), got.LastSeenAt)
	assert.Equal(t, int64(2), got.Sightings)

	n, err := dir.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTokenDirectory_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewTokenDirectory(pool).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenDirectory_Search(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	dir := NewTokenDirectory(pool)

	require.NoError(t, dir.RecordSightings(ctx, []domain.TokenMetadata{
		{Address: "Mint1", Name: "Bonk", Symbol: "BONK", FirstSeenAt: 1, LastSeenAt: 10},
		{Address: "Mint2", Name: "Bonkers", Symbol: "BNKR", FirstSeenAt: 1, LastSeenAt: 30},
		{Address: "Mint3", Name: "100%_real", Symbol: "REAL", FirstSeenAt: 1, LastSeenAt: 20},
	}))

	got, err := dir.Search(ctx, "BONK", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Mint2", got[0].Address)

	// wildcards in the query are literal
	got, err = dir.Search(ctx, "%_", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Mint3", got[0].Address)

	_, err = dir.Search(ctx, "", 10)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestTokenDirectory_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	err := NewTokenDirectory(pool).RecordSightings(context.Background(), []domain.TokenMetadata{{Address: ""}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
