package domain

// Realtime event names.
const (
	EventTokenUpdate   = "token:update"
	EventTokensRefresh = "tokens:refresh"
	EventPriceAlert    = "price:alert"
	EventVolumeSpike   = "volume:spike"
	EventAck           = "ack"
	EventError         = "error"
)

// Event is the envelope written to realtime clients.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// TokenUpdate is the payload of token:update.
type TokenUpdate struct {
	Token     AggregatedRecord `json:"token"`
	Timestamp int64            `json:"timestamp"`
}

// TokensRefresh is the payload of tokens:refresh, for both the full
// snapshot and per-group slices.
type TokensRefresh struct {
	Tokens    []AggregatedRecord `json:"tokens"`
	Count     int                `json:"count"`
	Timestamp int64              `json:"timestamp"`
	// Group names the filter group for per-group slices.
	Group string `json:"group,omitempty"`
}

// PriceAlert is the payload of price:alert.
type PriceAlert struct {
	Token         AggregatedRecord `json:"token"`
	ChangePercent float64          `json:"changePercent"`
	Timestamp     int64            `json:"timestamp"`
}

// VolumeSpike is the payload of volume:spike.
type VolumeSpike struct {
	Token        AggregatedRecord `json:"token"`
	SpikePercent float64          `json:"spikePercent"`
	Timestamp    int64            `json:"timestamp"`
}

// Ack acknowledges a client command.
type Ack struct {
	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok"`
	Group string `json:"group,omitempty"`
	Error string `json:"error,omitempty"`
}

// PriceMove is a record whose price moved past the alert threshold since
// the previous snapshot. ChangePercent is signed.
type PriceMove struct {
	Token         AggregatedRecord
	ChangePercent float64
}

// VolumeMove is a record whose volume grew past the spike threshold.
type VolumeMove struct {
	Token        AggregatedRecord
	SpikePercent float64
}
