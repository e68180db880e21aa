package sources

import (
	"token-aggregator/internal/config"
	"token-aggregator/internal/domain"
)

// FromConfig builds every enabled adapter, each over its own Transport.
func FromConfig(cfg config.SourcesConfig) []Source {
	var out []Source
	if cfg.DexScreener.IsEnabled() {
		out = append(out, NewDexScreener(transportFor(domain.SourceDexScreener, cfg.DexScreener), cfg.DexScreener.Chain))
	}
	if cfg.Jupiter.IsEnabled() {
		out = append(out, NewJupiter(transportFor(domain.SourceJupiter, cfg.Jupiter)))
	}
	if cfg.GeckoTerminal.IsEnabled() {
		out = append(out, NewGeckoTerminal(transportFor(domain.SourceGeckoTerminal, cfg.GeckoTerminal), cfg.GeckoTerminal.Chain))
	}
	return out
}

func transportFor(src domain.Source, sc config.SourceConfig) *Transport {
	opts := []TransportOption{
		WithTimeout(sc.Timeout),
		WithMaxRetries(sc.MaxRetries),
	}
	if sc.RequestsPerSecond > 0 {
		opts = append(opts, WithRateLimit(sc.RequestsPerSecond, sc.Burst))
	}
	return NewTransport(src.String(), sc.BaseURL, opts...)
}
