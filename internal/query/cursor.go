package query

import (
	"encoding/base64"
	"encoding/json"
)

// cursor is the opaque pagination token handed to clients.
type cursor struct {
	Offset   int   `json:"offset"`
	IssuedAt int64 `json:"issuedAt"`
}

func encodeCursor(offset int, issuedAt int64) string {
	data, _ := json.Marshal(cursor{Offset: offset, IssuedAt: issuedAt})
	return base64.RawURLEncoding.EncodeToString(data)
}

// decodeCursor returns the offset carried by s. Empty or malformed
// cursors start from the beginning.
func decodeCursor(s string) int {
	if s == "" {
		return 0
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		// tolerate padded input
		if data, err = base64.URLEncoding.DecodeString(s); err != nil {
			return 0
		}
	}
	var c cursor
	if err := json.Unmarshal(data, &c); err != nil || c.Offset < 0 {
		return 0
	}
	return c.Offset
}
