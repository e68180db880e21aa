package sources

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// number decodes a JSON number, a numeric string or null.
// Unparseable values decode as zero rather than failing the whole payload.
type number struct {
	value float64
	set   bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = number{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = number{}
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*n = number{}
			return nil
		}
		*n = number{value: v, set: true}
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		*n = number{}
		return nil
	}
	*n = number{value: v, set: true}
	return nil
}

// Float returns the value or zero.
func (n number) Float() float64 { return n.value }

// Ptr returns nil when the field was absent or null.
func (n number) Ptr() *float64 {
	if !n.set {
		return nil
	}
	v := n.value
	return &v
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
