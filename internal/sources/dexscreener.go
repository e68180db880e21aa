package sources

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"token-aggregator/internal/domain"
)

// DexScreener adapts the DexScreener public API. Each token is represented
// by its most liquid pair on the configured chain.
type DexScreener struct {
	transport *Transport
	chain     string
	now       func() int64
}

// NewDexScreener creates the adapter. chain filters pairs, e.g. "solana".
func NewDexScreener(transport *Transport, chain string) *DexScreener {
	return &DexScreener{transport: transport, chain: chain, now: nowMillis}
}

var _ Source = (*DexScreener)(nil)

func (d *DexScreener) Name() domain.Source { return domain.SourceDexScreener }

type dexPairsResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID   string `json:"chainId"`
	DexID     string `json:"dexId"`
	BaseToken struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD number `json:"priceUsd"`
	Txns     struct {
		H24 struct {
			Buys  int64 `json:"buys"`
			Sells int64 `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	Volume struct {
		H24 number `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H1  number `json:"h1"`
		H24 number `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		USD number `json:"usd"`
	} `json:"liquidity"`
	MarketCap number `json:"marketCap"`
	FDV       number `json:"fdv"`
}

// FetchCandidates returns the chain's trending pairs, one record per base token.
func (d *DexScreener) FetchCandidates(ctx context.Context) ([]domain.SourceRecord, error) {
	return d.search(ctx, "fetch_candidates", d.chain)
}

// Search returns pairs matching query on the configured chain.
func (d *DexScreener) Search(ctx context.Context, query string) ([]domain.SourceRecord, error) {
	return d.search(ctx, "search", query)
}

func (d *DexScreener) search(ctx context.Context, operation, q string) ([]domain.SourceRecord, error) {
	var resp dexPairsResponse
	if err := d.transport.GetJSON(ctx, operation, "/latest/dex/search", url.Values{"q": {q}}, &resp); err != nil {
		return nil, err
	}
	return d.records(resp.Pairs, ""), nil
}

// FetchByAddress returns the most liquid pair for address.
func (d *DexScreener) FetchByAddress(ctx context.Context, address string) (*domain.SourceRecord, error) {
	var resp dexPairsResponse
	err := d.transport.GetJSON(ctx, "fetch_by_address", "/latest/dex/tokens/"+url.PathEscape(address), nil, &resp)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	recs := d.records(resp.Pairs, address)
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// records keeps the most liquid pair per base token, preserving the
// provider's order. A non-empty only restricts output to that address.
func (d *DexScreener) records(pairs []dexPair, only string) []domain.SourceRecord {
	ts := d.now()
	best := make(map[string]int)
	var out []domain.SourceRecord

	for _, p := range pairs {
		if d.chain != "" && p.ChainID != "" && !strings.EqualFold(p.ChainID, d.chain) {
			continue
		}
		addr := p.BaseToken.Address
		if addr == "" {
			continue
		}
		if only != "" && !strings.EqualFold(addr, only) {
			continue
		}
		rec := d.toRecord(p, ts)
		key := domain.AddressKey(addr)
		if i, ok := best[key]; ok {
			if rec.Liquidity > out[i].Liquidity {
				out[i] = rec
			}
			continue
		}
		best[key] = len(out)
		out = append(out, rec)
	}
	return out
}

func (d *DexScreener) toRecord(p dexPair, ts int64) domain.SourceRecord {
	marketCap := p.MarketCap.Float()
	if marketCap == 0 {
		marketCap = p.FDV.Float()
	}
	return domain.SourceRecord{
		Address:        p.BaseToken.Address,
		Name:           p.BaseToken.Name,
		Symbol:         p.BaseToken.Symbol,
		Price:          p.PriceUSD.Float(),
		MarketCap:      marketCap,
		Volume:         p.Volume.H24.Float(),
		Liquidity:      p.Liquidity.USD.Float(),
		TxCount:        p.Txns.H24.Buys + p.Txns.H24.Sells,
		PriceChange1h:  p.PriceChange.H1.Ptr(),
		PriceChange24h: p.PriceChange.H24.Ptr(),
		Protocol:       p.DexID,
		Source:         domain.SourceDexScreener,
		Timestamp:      ts,
	}
}
