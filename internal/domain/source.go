package domain

import "strings"

// Source identifies the upstream provider a record came from.
type Source string

const (
	SourceDexScreener   Source = "dexscreener"
	SourceJupiter       Source = "jupiter"
	SourceGeckoTerminal Source = "geckoterminal"
)

// KnownSources lists every source with a built-in adapter.
var KnownSources = []Source{SourceDexScreener, SourceJupiter, SourceGeckoTerminal}

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is one of the known providers.
func (s Source) IsValid() bool {
	for _, known := range KnownSources {
		if s == known {
			return true
		}
	}
	return false
}

// ParseSource converts a config or wire value to a Source.
func ParseSource(v string) (Source, bool) {
	s := Source(strings.ToLower(strings.TrimSpace(v)))
	return s, s.IsValid()
}
