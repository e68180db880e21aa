package domain

// Snapshot is the complete set of aggregated records produced by one
// refresh cycle. It is replaced as a whole and never mutated after
// construction.
type Snapshot struct {
	Records   []AggregatedRecord `json:"records"`
	CreatedAt int64              `json:"createdAt"` // epoch ms
}

// NewSnapshot wraps records produced at createdAt.
func NewSnapshot(records []AggregatedRecord, createdAt int64) *Snapshot {
	return &Snapshot{Records: records, CreatedAt: createdAt}
}

// Len returns the number of records, tolerating a nil snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Find returns the record for address (case-insensitive).
func (s *Snapshot) Find(address string) (AggregatedRecord, bool) {
	if s == nil {
		return AggregatedRecord{}, false
	}
	key := AddressKey(address)
	for _, r := range s.Records {
		if r.Key() == key {
			return r, true
		}
	}
	return AggregatedRecord{}, false
}
