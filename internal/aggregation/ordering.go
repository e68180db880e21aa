package aggregation

import (
	"sort"

	"token-aggregator/internal/domain"
)

// Thresholds are optional lower bounds; nil imposes no constraint.
type Thresholds struct {
	MinVolume       *float64
	MinLiquidity    *float64
	MinQualityScore *int
}

// Sort returns a new slice ordered descending by the selected metric.
// Equal keys keep their input order.
func Sort(records []domain.AggregatedRecord, by domain.SortKey, period domain.Period) []domain.AggregatedRecord {
	out := make([]domain.AggregatedRecord, len(records))
	copy(out, records)

	key := sortValue(by, period)
	sort.SliceStable(out, func(i, j int) bool {
		return key(out[i]) > key(out[j])
	})
	return out
}

func sortValue(by domain.SortKey, period domain.Period) func(domain.AggregatedRecord) float64 {
	switch by {
	case domain.SortByPriceChange:
		return func(r domain.AggregatedRecord) float64 { return r.PriceChange(period) }
	case domain.SortByMarketCap:
		return func(r domain.AggregatedRecord) float64 { return r.MarketCap }
	case domain.SortByLiquidity:
		return func(r domain.AggregatedRecord) float64 { return r.Liquidity }
	default:
		return func(r domain.AggregatedRecord) float64 { return r.Volume }
	}
}

// Filter returns the records satisfying every supplied threshold.
func Filter(records []domain.AggregatedRecord, t Thresholds) []domain.AggregatedRecord {
	out := make([]domain.AggregatedRecord, 0, len(records))
	for _, r := range records {
		if t.MinVolume != nil && r.Volume < *t.MinVolume {
			continue
		}
		if t.MinLiquidity != nil && r.Liquidity < *t.MinLiquidity {
			continue
		}
		if t.MinQualityScore != nil && r.QualityScore < *t.MinQualityScore {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Select applies a criterion's thresholds and ordering without truncating.
func Select(records []domain.AggregatedRecord, c domain.FilterCriterion) []domain.AggregatedRecord {
	filtered := Filter(records, Thresholds{MinVolume: c.MinVolume, MinLiquidity: c.MinLiquidity})
	return Sort(filtered, c.SortBy, c.Period)
}

// Slice filters, sorts and truncates records to the criterion's limit.
func Slice(records []domain.AggregatedRecord, c domain.FilterCriterion) []domain.AggregatedRecord {
	out := Select(records, c)
	if c.Limit > 0 && len(out) > c.Limit {
		out = out[:c.Limit]
	}
	return out
}
