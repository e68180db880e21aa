package aggregation

import "token-aggregator/internal/domain"

// Quality score points per populated field.
const (
	pointsPrice       = 20
	pointsVolume      = 20
	pointsLiquidity   = 20
	pointsMarketCap   = 15
	pointsTxCount     = 15
	pointsPriceChange = 10
	maxQualityScore   = 100
)

// QualityScore rates how complete a record is, in [0, 100].
// A present 1h change counts even when it is zero.
func QualityScore(r domain.AggregatedRecord) int {
	score := 0
	if r.Price > 0 {
		score += pointsPrice
	}
	if r.Volume > 0 {
		score += pointsVolume
	}
	if r.Liquidity > 0 {
		score += pointsLiquidity
	}
	if r.MarketCap > 0 {
		score += pointsMarketCap
	}
	if r.TxCount > 0 {
		score += pointsTxCount
	}
	if r.PriceChange1h != nil {
		score += pointsPriceChange
	}
	if score > maxQualityScore {
		score = maxQualityScore
	}
	return score
}
