package sources

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"token-aggregator/internal/domain"
)

const jupiterTrendingLimit = 100

// Jupiter adapts the Jupiter token API. It has no 7d window and reports
// volume as separate buy and sell totals.
type Jupiter struct {
	transport *Transport
	interval  string
	now       func() int64
}

// NewJupiter creates the adapter over the 24h trending list.
func NewJupiter(transport *Transport) *Jupiter {
	return &Jupiter{transport: transport, interval: "24h", now: nowMillis}
}

var _ Source = (*Jupiter)(nil)

func (j *Jupiter) Name() domain.Source { return domain.SourceJupiter }

type jupiterStats struct {
	PriceChange number `json:"priceChange"`
	BuyVolume   number `json:"buyVolume"`
	SellVolume  number `json:"sellVolume"`
	NumBuys     int64  `json:"numBuys"`
	NumSells    int64  `json:"numSells"`
}

type jupiterToken struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Symbol    string        `json:"symbol"`
	USDPrice  number        `json:"usdPrice"`
	MCap      number        `json:"mcap"`
	FDV       number        `json:"fdv"`
	Liquidity number        `json:"liquidity"`
	Stats1h   *jupiterStats `json:"stats1h"`
	Stats24h  *jupiterStats `json:"stats24h"`
}

func (j *Jupiter) FetchCandidates(ctx context.Context) ([]domain.SourceRecord, error) {
	var tokens []jupiterToken
	q := url.Values{"limit": {strconv.Itoa(jupiterTrendingLimit)}}
	if err := j.transport.GetJSON(ctx, "fetch_candidates", "/tokens/v2/toptrending/"+j.interval, q, &tokens); err != nil {
		return nil, err
	}
	return j.records(tokens), nil
}

func (j *Jupiter) Search(ctx context.Context, query string) ([]domain.SourceRecord, error) {
	var tokens []jupiterToken
	if err := j.transport.GetJSON(ctx, "search", "/tokens/v2/search", url.Values{"query": {query}}, &tokens); err != nil {
		return nil, err
	}
	return j.records(tokens), nil
}

// FetchByAddress searches by mint and keeps the exact match.
func (j *Jupiter) FetchByAddress(ctx context.Context, address string) (*domain.SourceRecord, error) {
	var tokens []jupiterToken
	if err := j.transport.GetJSON(ctx, "fetch_by_address", "/tokens/v2/search", url.Values{"query": {address}}, &tokens); err != nil {
		return nil, err
	}
	for _, rec := range j.records(tokens) {
		if strings.EqualFold(rec.Address, address) {
			return &rec, nil
		}
	}
	return nil, nil
}

func (j *Jupiter) records(tokens []jupiterToken) []domain.SourceRecord {
	ts := j.now()
	out := make([]domain.SourceRecord, 0, len(tokens))
	for _, t := range tokens {
		if t.ID == "" {
			continue
		}
		rec := domain.SourceRecord{
			Address:   t.ID,
			Name:      t.Name,
			Symbol:    t.Symbol,
			Price:     t.USDPrice.Float(),
			MarketCap: t.MCap.Float(),
			Liquidity: t.Liquidity.Float(),
			Protocol:  "jupiter",
			Source:    domain.SourceJupiter,
			Timestamp: ts,
		}
		if rec.MarketCap == 0 {
			rec.MarketCap = t.FDV.Float()
		}
		if s := t.Stats24h; s != nil {
			rec.Volume = s.BuyVolume.Float() + s.SellVolume.Float()
			rec.TxCount = s.NumBuys + s.NumSells
			rec.PriceChange24h = s.PriceChange.Ptr()
		}
		if s := t.Stats1h; s != nil {
			rec.PriceChange1h = s.PriceChange.Ptr()
		}
		out = append(out, rec)
	}
	return out
}
