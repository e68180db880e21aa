package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-aggregator/internal/domain"
	"token-aggregator/internal/storage"
)

func TestRefreshRunStore_InsertAndLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRefreshRunStore(pool)

	for i := 1; i <= 3; i++ {
		run := &domain.RefreshRun{
			StartedAt:    int64(i) * 1000,
			FinishedAt:   int64(i)*1000 + 250,
			Status:       domain.RunStatusOK,
			Records:      i * 10,
			SourceErrors: i - 1,
		}
		require.NoError(t, store.Insert(ctx, run))
		assert.NotZero(t, run.ID)
	}

	runs, err := store.Latest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 30, runs[0].Records)
	assert.Equal(t, 2, runs[0].SourceErrors)
	assert.Equal(t, int64(250), runs[0].DurationMillis())
	assert.Equal(t, 20, runs[1].Records)
}

func TestRefreshRunStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	err := NewRefreshRunStore(pool).Insert(context.Background(), &domain.RefreshRun{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
