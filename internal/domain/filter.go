package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SortKey selects the metric a filter orders by.
type SortKey string

const (
	SortByVolume      SortKey = "volume"
	SortByPriceChange SortKey = "priceChange"
	SortByMarketCap   SortKey = "marketCap"
	SortByLiquidity   SortKey = "liquidity"
)

// Period selects which price-change window priceChange sorting uses.
type Period string

const (
	Period1h  Period = "1h"
	Period24h Period = "24h"
	Period7d  Period = "7d"
)

// Filter limits and defaults.
const (
	DefaultLimit  = 20
	MaxLimit      = 100
	DefaultSortBy = SortByVolume
	DefaultPeriod = Period24h
)

// ParseSortKey matches v case-insensitively against the known sort keys.
func ParseSortKey(v string) (SortKey, bool) {
	for _, k := range []SortKey{SortByVolume, SortByPriceChange, SortByMarketCap, SortByLiquidity} {
		if strings.EqualFold(strings.TrimSpace(v), string(k)) {
			return k, true
		}
	}
	return "", false
}

// ParsePeriod matches v case-insensitively against the known periods.
func ParsePeriod(v string) (Period, bool) {
	for _, p := range []Period{Period1h, Period24h, Period7d} {
		if strings.EqualFold(strings.TrimSpace(v), string(p)) {
			return p, true
		}
	}
	return "", false
}

// FilterRequest is a filter as submitted by a client, before normalization.
type FilterRequest struct {
	SortBy       string   `json:"sortBy"`
	Period       string   `json:"period"`
	MinVolume    *float64 `json:"minVolume,omitempty"`
	MinLiquidity *float64 `json:"minLiquidity,omitempty"`
	Limit        *int     `json:"limit,omitempty"`
}

// FilterCriterion is a normalized subscription filter.
type FilterCriterion struct {
	SortBy       SortKey  `json:"sortBy"`
	Period       Period   `json:"period"`
	MinVolume    *float64 `json:"minVolume,omitempty"`
	MinLiquidity *float64 `json:"minLiquidity,omitempty"`
	Limit        int      `json:"limit"`
}

// Normalize substitutes defaults for missing or invalid fields. It never fails.
func (r FilterRequest) Normalize() FilterCriterion {
	c := FilterCriterion{
		SortBy:       DefaultSortBy,
		Period:       DefaultPeriod,
		MinVolume:    threshold(r.MinVolume),
		MinLiquidity: threshold(r.MinLiquidity),
		Limit:        DefaultLimit,
	}
	if k, ok := ParseSortKey(r.SortBy); ok {
		c.SortBy = k
	}
	if p, ok := ParsePeriod(r.Period); ok {
		c.Period = p
	}
	if r.Limit != nil {
		c.Limit = ClampLimit(*r.Limit)
	}
	return c
}

// Key returns the canonical group name. Two criteria with equal keys
// select exactly the same slice.
func (c FilterCriterion) Key() string {
	return fmt.Sprintf("filter:%s:%s:vol=%s:liq=%s:limit=%d",
		c.SortBy, c.Period, formatThreshold(c.MinVolume), formatThreshold(c.MinLiquidity), c.Limit)
}

// ClampLimit bounds n to [1, MaxLimit].
func ClampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// threshold drops bounds that constrain nothing. Volume and liquidity are
// never negative, so zero selects the same records as no bound at all.
func threshold(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0 {
		return nil
	}
	out := *v
	return &out
}

func formatThreshold(v *float64) string {
	if v == nil {
		return "none"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
