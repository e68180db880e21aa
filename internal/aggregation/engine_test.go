package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-aggregator/internal/domain"
)

func rec(addr string, src domain.Source, price, volume float64) domain.SourceRecord {
	return domain.SourceRecord{
		Address:   addr,
		Name:      string(src) + "-name",
		Symbol:    "TKN",
		Price:     price,
		Volume:    volume,
		Liquidity: 10,
		TxCount:   5,
		Source:    src,
		Timestamp: 1000,
	}
}

func TestMerge_DistinctSourcesCombine(t *testing.T) {
	e := NewEngine(nil)

	out := e.Merge(
		[]domain.SourceRecord{rec("AbC", domain.SourceGeckoTerminal, 1.0, 100)},
		[]domain.SourceRecord{rec("abc", domain.SourceDexScreener, 2.0, 50)},
		[]domain.SourceRecord{rec("ABC", domain.SourceJupiter, 3.0, 25)},
	)

	require.Len(t, out, 1)
	got := out[0]
	assert.Len(t, got.Sources, 3)
	assert.Equal(t, []domain.Source{domain.SourceGeckoTerminal, domain.SourceDexScreener, domain.SourceJupiter}, got.Sources)
	assert.InDelta(t, 175.0, got.Volume, 1e-9)
	assert.InDelta(t, 30.0, got.Liquidity, 1e-9)
	assert.Equal(t, int64(15), got.TxCount)
	assert.InDelta(t, 2.0, got.Price, 1e-9)
	assert.Equal(t, 3, got.Contributions)

	// identity fields come from the highest-priority source
	assert.Equal(t, domain.SourceDexScreener, got.Source)
	assert.Equal(t, "dexscreener-name", got.Name)
	assert.Equal(t, "abc", got.Address)
}

func TestMerge_PriorityTieKeepsExisting(t *testing.T) {
	e := NewEngine(nil)

	a := rec("x", domain.SourceJupiter, 1, 1)
	a.Name = "first"
	b := rec("x", domain.SourceJupiter, 1, 1)
	b.Name = "second"

	out := e.Merge([]domain.SourceRecord{a, b})
	require.Len(t, out, 1)
	assert.Equal(t, "first", out[0].Name)
	assert.Equal(t, []domain.Source{domain.SourceJupiter}, out[0].Sources)
	assert.InDelta(t, 2.0, out[0].Volume, 1e-9)
}

func TestMerge_UnknownSourceRanksLowest(t *testing.T) {
	e := NewEngine(nil)

	unknown := rec("x", domain.Source("other"), 1, 1)
	unknown.Name = "unknown"
	gecko := rec("x", domain.SourceGeckoTerminal, 1, 1)
	gecko.Name = "gecko"

	out := e.Merge([]domain.SourceRecord{unknown}, []domain.SourceRecord{gecko})
	require.Len(t, out, 1)
	assert.Equal(t, "gecko", out[0].Name)
}

func TestMerge_RunningAverageWeightsByContributions(t *testing.T) {
	e := NewEngine(nil)

	out := e.Merge([]domain.SourceRecord{
		rec("x", domain.SourceGeckoTerminal, 3, 0),
		rec("x", domain.SourceJupiter, 6, 0),
		rec("x", domain.SourceDexScreener, 9, 0),
	})
	require.Len(t, out, 1)
	// (3*1+6)/2 = 4.5, then (4.5*2+9)/3 = 6
	assert.InDelta(t, 6.0, out[0].Price, 1e-9)
}

func TestMerge_PriceChanges(t *testing.T) {
	e := NewEngine(nil)

	a := rec("x", domain.SourceGeckoTerminal, 1, 1)
	a.PriceChange1h = domain.Float(10)
	a.PriceChange7d = domain.Float(70)
	b := rec("x", domain.SourceDexScreener, 1, 1)
	b.PriceChange1h = domain.Float(20)
	b.PriceChange24h = domain.Float(5)

	out := e.Merge([]domain.SourceRecord{a, b})
	require.Len(t, out, 1)
	got := out[0]

	require.NotNil(t, got.PriceChange1h)
	assert.InDelta(t, 15.0, *got.PriceChange1h, 1e-9)
	require.NotNil(t, got.PriceChange24h)
	assert.InDelta(t, 5.0, *got.PriceChange24h, 1e-9)
	// winner has no 7d value, fall back to the other side
	require.NotNil(t, got.PriceChange7d)
	assert.InDelta(t, 70.0, *got.PriceChange7d, 1e-9)
}

func TestMerge_MarketCapFallsBackToNonZero(t *testing.T) {
	e := NewEngine(nil)

	a := rec("x", domain.SourceGeckoTerminal, 1, 1)
	a.MarketCap = 500
	b := rec("x", domain.SourceDexScreener, 1, 1)

	out := e.Merge([]domain.SourceRecord{a, b})
	require.Len(t, out, 1)
	assert.InDelta(t, 500.0, out[0].MarketCap, 1e-9)
}

func TestMerge_LastUpdatedIsMax(t *testing.T) {
	e := NewEngine(nil)

	a := rec("x", domain.SourceDexScreener, 1, 1)
	a.Timestamp = 5000
	b := rec("x", domain.SourceGeckoTerminal, 1, 1)
	b.Timestamp = 9000

	out := e.Merge([]domain.SourceRecord{a, b})
	require.Len(t, out, 1)
	assert.Equal(t, int64(9000), out[0].LastUpdated)
}

func TestMerge_OrderAndEmptyAddress(t *testing.T) {
	e := NewEngine(nil)

	out := e.Merge(
		[]domain.SourceRecord{rec("b", domain.SourceJupiter, 1, 1), rec("", domain.SourceJupiter, 1, 1)},
		[]domain.SourceRecord{rec("a", domain.SourceDexScreener, 1, 1), rec("B", domain.SourceDexScreener, 1, 1)},
	)
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].Address)
	assert.Equal(t, "a", out[1].Address)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	e := NewEngine(nil)

	first := e.Merge([]domain.SourceRecord{rec("x", domain.SourceJupiter, 1, 1)})
	_ = e.Merge([]domain.SourceRecord{rec("x", domain.SourceJupiter, 1, 1), rec("x", domain.SourceDexScreener, 1, 1)})

	assert.Equal(t, []domain.Source{domain.SourceJupiter}, first[0].Sources)
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, NewEngine(nil).Merge())
	assert.Empty(t, NewEngine(nil).Merge(nil, []domain.SourceRecord{}))
}

func TestNewEngine_CustomPriorities(t *testing.T) {
	e := NewEngine(map[domain.Source]int{domain.SourceGeckoTerminal: 10})

	assert.Equal(t, 10, e.Priority(domain.SourceGeckoTerminal))
	assert.Equal(t, 0, e.Priority(domain.SourceDexScreener))
}
