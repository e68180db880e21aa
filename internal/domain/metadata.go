package domain

// TokenMetadata is the directory entry for a token that has appeared in
// at least one snapshot. Corresponds to the token_directory table in PostgreSQL.
type TokenMetadata struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Protocol    string `json:"protocol"`
	FirstSeenAt int64  `json:"firstSeenAt"` // ms
	LastSeenAt  int64  `json:"lastSeenAt"`  // ms
	Sightings   int64  `json:"sightings"`
}

// Key returns the case-insensitive identity of the token.
func (m TokenMetadata) Key() string {
	return AddressKey(m.Address)
}

// MetadataFromRecord builds a sighting of r observed at seenAt.
func MetadataFromRecord(r AggregatedRecord, seenAt int64) TokenMetadata {
	return TokenMetadata{
		Address:     r.Address,
		Name:        r.Name,
		Symbol:      r.Symbol,
		Protocol:    r.Protocol,
		FirstSeenAt: seenAt,
		LastSeenAt:  seenAt,
		Sightings:   1,
	}
}
