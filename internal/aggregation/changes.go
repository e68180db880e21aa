package aggregation

import (
	"math"

	"token-aggregator/internal/domain"
)

// Changes holds the records that moved enough between two snapshots.
// A record may appear in both lists.
type Changes struct {
	PriceChanges []domain.PriceMove
	VolumeSpikes []domain.VolumeMove
}

// Empty reports whether nothing crossed a threshold.
func (c Changes) Empty() bool {
	return len(c.PriceChanges) == 0 && len(c.VolumeSpikes) == 0
}

// DetectSignificantChanges compares next against prev by address.
// Tokens absent from prev never fire. Price moves are measured in
// absolute percent and skipped when the old price is zero; volume spikes
// are growth percent and only computed when the old volume is positive.
func DetectSignificantChanges(prev, next []domain.AggregatedRecord, priceThresholdPct, volumeThresholdPct float64) Changes {
	old := make(map[string]domain.AggregatedRecord, len(prev))
	for _, r := range prev {
		old[r.Key()] = r
	}

	var out Changes
	for _, r := range next {
		o, ok := old[r.Key()]
		if !ok {
			continue
		}

		if o.Price != 0 {
			change := (r.Price - o.Price) / o.Price * 100
			if math.Abs(change) >= priceThresholdPct {
				out.PriceChanges = append(out.PriceChanges, domain.PriceMove{Token: r, ChangePercent: change})
			}
		}

		if o.Volume > 0 {
			spike := (r.Volume - o.Volume) / o.Volume * 100
			if spike >= volumeThresholdPct {
				out.VolumeSpikes = append(out.VolumeSpikes, domain.VolumeMove{Token: r, SpikePercent: spike})
			}
		}
	}
	return out
}
