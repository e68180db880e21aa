package domain

// Refresh run statuses.
const (
	RunStatusOK    = "ok"
	RunStatusEmpty = "empty"
)

// RefreshRun summarizes one completed refresh cycle.
// Corresponds to the refresh_runs table in PostgreSQL.
type RefreshRun struct {
	ID           int64  `json:"id,omitempty"`
	StartedAt    int64  `json:"startedAt"`  // ms
	FinishedAt   int64  `json:"finishedAt"` // ms
	Status       string `json:"status"`
	Records      int    `json:"records"`
	SourceErrors int    `json:"sourceErrors"`
	PriceAlerts  int    `json:"priceAlerts"`
	VolumeSpikes int    `json:"volumeSpikes"`
}

// DurationMillis returns the run's wall time.
func (r RefreshRun) DurationMillis() int64 {
	return r.FinishedAt - r.StartedAt
}
