package sources

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"token-aggregator/internal/domain"
)

// GeckoTerminal adapts the GeckoTerminal JSON:API. Pools reference their
// base token through relationships; token identity comes from the
// included token resources.
type GeckoTerminal struct {
	transport *Transport
	network   string
	now       func() int64
}

// NewGeckoTerminal creates the adapter for network, e.g. "solana".
func NewGeckoTerminal(transport *Transport, network string) *GeckoTerminal {
	return &GeckoTerminal{transport: transport, network: network, now: nowMillis}
}

var _ Source = (*GeckoTerminal)(nil)

func (g *GeckoTerminal) Name() domain.Source { return domain.SourceGeckoTerminal }

type geckoRef struct {
	Data *struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (r geckoRef) id() string {
	if r.Data == nil {
		return ""
	}
	return r.Data.ID
}

type geckoPool struct {
	ID         string `json:"id"`
	Attributes struct {
		Name                  string `json:"name"`
		BaseTokenPriceUSD     number `json:"base_token_price_usd"`
		MarketCapUSD          number `json:"market_cap_usd"`
		FDVUSD                number `json:"fdv_usd"`
		ReserveInUSD          number `json:"reserve_in_usd"`
		PriceChangePercentage struct {
			H1  number `json:"h1"`
			H24 number `json:"h24"`
		} `json:"price_change_percentage"`
		VolumeUSD struct {
			H24 number `json:"h24"`
		} `json:"volume_usd"`
		Transactions struct {
			H24 struct {
				Buys  int64 `json:"buys"`
				Sells int64 `json:"sells"`
			} `json:"h24"`
		} `json:"transactions"`
	} `json:"attributes"`
	Relationships struct {
		BaseToken geckoRef `json:"base_token"`
		Dex       geckoRef `json:"dex"`
	} `json:"relationships"`
}

type geckoToken struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"attributes"`
}

type geckoPoolsResponse struct {
	Data     []geckoPool  `json:"data"`
	Included []geckoToken `json:"included"`
}

func (g *GeckoTerminal) FetchCandidates(ctx context.Context) ([]domain.SourceRecord, error) {
	return g.pools(ctx, "fetch_candidates", "/networks/"+url.PathEscape(g.network)+"/trending_pools",
		url.Values{"include": {"base_token"}}, "")
}

func (g *GeckoTerminal) Search(ctx context.Context, query string) ([]domain.SourceRecord, error) {
	return g.pools(ctx, "search", "/search/pools",
		url.Values{"query": {query}, "network": {g.network}, "include": {"base_token"}}, "")
}

// FetchByAddress returns the token's top pool.
func (g *GeckoTerminal) FetchByAddress(ctx context.Context, address string) (*domain.SourceRecord, error) {
	path := "/networks/" + url.PathEscape(g.network) + "/tokens/" + url.PathEscape(address) + "/pools"
	recs, err := g.pools(ctx, "fetch_by_address", path, url.Values{"include": {"base_token"}}, address)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

func (g *GeckoTerminal) pools(ctx context.Context, operation, path string, q url.Values, only string) ([]domain.SourceRecord, error) {
	var resp geckoPoolsResponse
	if err := g.transport.GetJSON(ctx, operation, path, q, &resp); err != nil {
		return nil, err
	}
	return g.records(resp, only), nil
}

// records emits one record per base token, first pool wins.
func (g *GeckoTerminal) records(resp geckoPoolsResponse, only string) []domain.SourceRecord {
	tokens := make(map[string]geckoToken, len(resp.Included))
	for _, t := range resp.Included {
		if t.Type == "" || t.Type == "token" {
			tokens[t.ID] = t
		}
	}

	ts := g.now()
	seen := make(map[string]bool)
	var out []domain.SourceRecord

	for _, p := range resp.Data {
		ref := p.Relationships.BaseToken.id()
		tok, ok := tokens[ref]
		addr := tok.Attributes.Address
		if !ok || addr == "" {
			// ids look like "<network>_<address>"
			addr = strings.TrimPrefix(ref, g.network+"_")
		}
		if addr == "" {
			continue
		}
		if only != "" && !strings.EqualFold(addr, only) {
			continue
		}
		key := domain.AddressKey(addr)
		if seen[key] {
			continue
		}
		seen[key] = true

		name, symbol := tok.Attributes.Name, tok.Attributes.Symbol
		if name == "" {
			name = poolBaseName(p.Attributes.Name)
		}

		a := p.Attributes
		marketCap := a.MarketCapUSD.Float()
		if marketCap == 0 {
			marketCap = a.FDVUSD.Float()
		}
		out = append(out, domain.SourceRecord{
			Address:        addr,
			Name:           name,
			Symbol:         symbol,
			Price:          a.BaseTokenPriceUSD.Float(),
			MarketCap:      marketCap,
			Volume:         a.VolumeUSD.H24.Float(),
			Liquidity:      a.ReserveInUSD.Float(),
			TxCount:        a.Transactions.H24.Buys + a.Transactions.H24.Sells,
			PriceChange1h:  a.PriceChangePercentage.H1.Ptr(),
			PriceChange24h: a.PriceChangePercentage.H24.Ptr(),
			Protocol:       p.Relationships.Dex.id(),
			Source:         domain.SourceGeckoTerminal,
			Timestamp:      ts,
		})
	}
	return out
}

// poolBaseName extracts "BONK" from a pool name like "BONK / SOL".
func poolBaseName(pool string) string {
	base, _, _ := strings.Cut(pool, " / ")
	return strings.TrimSpace(base)
}
