package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-aggregator/internal/domain"
)

func priced(addr string, price, volume float64) domain.AggregatedRecord {
	return domain.AggregatedRecord{SourceRecord: domain.SourceRecord{Address: addr, Price: price, Volume: volume}}
}

func TestDetectSignificantChanges_PriceMove(t *testing.T) {
	prev := []domain.AggregatedRecord{priced("T", 1.0, 100)}
	next := []domain.AggregatedRecord{priced("t", 1.1, 100)}

	got := DetectSignificantChanges(prev, next, 5, 50)

	require.Len(t, got.PriceChanges, 1)
	assert.InDelta(t, 10.0, got.PriceChanges[0].ChangePercent, 1e-6)
	assert.Equal(t, "t", got.PriceChanges[0].Token.Address)
	assert.Empty(t, got.VolumeSpikes)
}

func TestDetectSignificantChanges_PriceDropIsSigned(t *testing.T) {
	prev := []domain.AggregatedRecord{priced("t", 2.0, 0)}
	next := []domain.AggregatedRecord{priced("t", 1.0, 0)}

	got := DetectSignificantChanges(prev, next, 5, 50)

	require.Len(t, got.PriceChanges, 1)
	assert.InDelta(t, -50.0, got.PriceChanges[0].ChangePercent, 1e-6)
}

func TestDetectSignificantChanges_VolumeSpike(t *testing.T) {
	prev := []domain.AggregatedRecord{priced("t", 1, 100)}
	next := []domain.AggregatedRecord{priced("t", 1, 200)}

	got := DetectSignificantChanges(prev, next, 5, 50)

	require.Len(t, got.VolumeSpikes, 1)
	assert.InDelta(t, 100.0, got.VolumeSpikes[0].SpikePercent, 1e-6)
	assert.Empty(t, got.PriceChanges)
}

func TestDetectSignificantChanges_Skips(t *testing.T) {
	tests := []struct {
		name string
		prev []domain.AggregatedRecord
		next []domain.AggregatedRecord
	}{
		{"first seen", nil, []domain.AggregatedRecord{priced("t", 100, 1000)}},
		{"zero old price and volume", []domain.AggregatedRecord{priced("t", 0, 0)}, []domain.AggregatedRecord{priced("t", 5, 500)}},
		{"below thresholds", []domain.AggregatedRecord{priced("t", 1, 100)}, []domain.AggregatedRecord{priced("t", 1.01, 120)}},
		{"volume drop", []domain.AggregatedRecord{priced("t", 1, 100)}, []domain.AggregatedRecord{priced("t", 1, 10)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectSignificantChanges(tt.prev, tt.next, 5, 50)
			assert.True(t, got.Empty())
		})
	}
}
