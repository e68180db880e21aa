// Package aggregation reconciles per-source token records into one
// canonical record per address and provides the filter, sort and diff
// operations used by the refresh loop, the broadcaster and the read path.
package aggregation

import (
	"token-aggregator/internal/domain"
)

// DefaultPriorities ranks the built-in sources. Higher wins identity fields.
var DefaultPriorities = map[domain.Source]int{
	domain.SourceDexScreener:   3,
	domain.SourceJupiter:       2,
	domain.SourceGeckoTerminal: 1,
}

// Engine merges source records using a static source priority table.
type Engine struct {
	priorities map[domain.Source]int
}

// NewEngine creates an engine. A nil table uses DefaultPriorities.
func NewEngine(priorities map[domain.Source]int) *Engine {
	if priorities == nil {
		priorities = DefaultPriorities
	}
	table := make(map[domain.Source]int, len(priorities))
	for src, p := range priorities {
		table[src] = p
	}
	return &Engine{priorities: table}
}

// Priority returns the rank of src; unknown sources rank lowest.
func (e *Engine) Priority(src domain.Source) int {
	if p, ok := e.priorities[src]; ok {
		return p
	}
	return 0
}

// Merge flattens lists in arrival order and folds records sharing an
// address (case-insensitive) into one AggregatedRecord. Output order is
// the order in which each address was first seen. Records without an
// address are dropped.
func (e *Engine) Merge(lists ...[]domain.SourceRecord) []domain.AggregatedRecord {
	index := make(map[string]int)
	var out []domain.AggregatedRecord

	for _, list := range lists {
		for _, rec := range list {
			key := rec.Key()
			if key == "" {
				continue
			}
			i, ok := index[key]
			if !ok {
				index[key] = len(out)
				out = append(out, seed(rec))
				continue
			}
			out[i] = e.mergeInto(out[i], rec)
		}
	}

	return out
}

// seed builds a fresh aggregate from a single observation.
func seed(rec domain.SourceRecord) domain.AggregatedRecord {
	agg := domain.AggregatedRecord{
		SourceRecord:  rec,
		Sources:       []domain.Source{rec.Source},
		LastUpdated:   rec.Timestamp,
		Contributions: 1,
	}
	agg.QualityScore = QualityScore(agg)
	return agg
}

// mergeInto folds rec into existing and returns the new aggregate.
// existing is not modified.
func (e *Engine) mergeInto(existing domain.AggregatedRecord, rec domain.SourceRecord) domain.AggregatedRecord {
	n := existing.Contributions
	if n < 1 {
		n = 1
	}
	merged := existing

	// Identity/display fields follow the higher-priority source; ties keep existing.
	if e.Priority(rec.Source) > e.Priority(existing.Source) {
		merged.Address = rec.Address
		merged.Name = rec.Name
		merged.Symbol = rec.Symbol
		merged.Protocol = rec.Protocol
		merged.Source = rec.Source
		merged.Timestamp = rec.Timestamp
		if rec.MarketCap > 0 {
			merged.MarketCap = rec.MarketCap
		}
		merged.PriceChange7d = firstPresent(rec.PriceChange7d, existing.PriceChange7d)
	} else {
		if merged.MarketCap == 0 {
			merged.MarketCap = rec.MarketCap
		}
		merged.PriceChange7d = firstPresent(existing.PriceChange7d, rec.PriceChange7d)
	}

	merged.Price = runningAverage(existing.Price, rec.Price, n)
	merged.PriceChange1h = averageChange(existing.PriceChange1h, rec.PriceChange1h, n)
	merged.PriceChange24h = averageChange(existing.PriceChange24h, rec.PriceChange24h, n)

	merged.Volume = existing.Volume + rec.Volume
	merged.Liquidity = existing.Liquidity + rec.Liquidity
	merged.TxCount = existing.TxCount + rec.TxCount

	merged.Sources = make([]domain.Source, len(existing.Sources), len(existing.Sources)+1)
	copy(merged.Sources, existing.Sources)
	if !existing.HasSource(rec.Source) {
		merged.Sources = append(merged.Sources, rec.Source)
	}

	if rec.Timestamp > merged.LastUpdated {
		merged.LastUpdated = rec.Timestamp
	}
	merged.Contributions = n + 1
	merged.QualityScore = QualityScore(merged)
	return merged
}

func runningAverage(existing, incoming float64, n int) float64 {
	return (existing*float64(n) + incoming) / float64(n+1)
}

// averageChange averages two optional changes; a missing side yields the other.
func averageChange(existing, incoming *float64, n int) *float64 {
	switch {
	case existing == nil && incoming == nil:
		return nil
	case existing == nil:
		return domain.Float(*incoming)
	case incoming == nil:
		return domain.Float(*existing)
	}
	return domain.Float(runningAverage(*existing, *incoming, n))
}

func firstPresent(a, b *float64) *float64 {
	if a != nil {
		return domain.Float(*a)
	}
	if b != nil {
		return domain.Float(*b)
	}
	return nil
}
