package domain

import "strings"

// SourceRecord is one source's view of one token at a point in time.
// Metric fields are zero when the source cannot supply them; percentage
// changes are nil when absent.
type SourceRecord struct {
	Address        string   `json:"address"`
	Name           string   `json:"name"`
	Symbol         string   `json:"symbol"`
	Price          float64  `json:"price"`
	MarketCap      float64  `json:"marketCap"`
	Volume         float64  `json:"volume"`
	Liquidity      float64  `json:"liquidity"`
	TxCount        int64    `json:"txCount"`
	PriceChange1h  *float64 `json:"priceChange1h,omitempty"`
	PriceChange24h *float64 `json:"priceChange24h,omitempty"`
	PriceChange7d  *float64 `json:"priceChange7d,omitempty"`
	Protocol       string   `json:"protocol"`
	Source         Source   `json:"source"`
	Timestamp      int64    `json:"timestamp"` // epoch ms
}

// Key returns the case-insensitive identity of the token.
func (r SourceRecord) Key() string {
	return AddressKey(r.Address)
}

// AggregatedRecord is the canonical merged view of a token.
// Embedded SourceRecord fields hold identity/display values from the
// highest-priority contributor; Source names that contributor.
type AggregatedRecord struct {
	SourceRecord
	Sources      []Source `json:"sources"`
	QualityScore int      `json:"qualityScore"`
	LastUpdated  int64    `json:"lastUpdated"`

	// Contributions counts merged inputs and weights the running averages.
	Contributions int `json:"-"`
}

// Key returns the case-insensitive identity of the token.
func (r AggregatedRecord) Key() string {
	return AddressKey(r.Address)
}

// HasSource reports whether src already contributed to the record.
func (r AggregatedRecord) HasSource(src Source) bool {
	for _, s := range r.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// PriceChange returns the change for the given period, 0 when absent.
func (r AggregatedRecord) PriceChange(p Period) float64 {
	var v *float64
	switch p {
	case Period1h:
		v = r.PriceChange1h
	case Period7d:
		v = r.PriceChange7d
	default:
		v = r.PriceChange24h
	}
	if v == nil {
		return 0
	}
	return *v
}

// AddressKey normalizes an address for identity comparisons.
func AddressKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
