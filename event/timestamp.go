package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Instant is an upstream timestamp. Producers send either unix
// milliseconds (as a JSON number) or an RFC 3339 string; both decode to
// the same value.
type Instant struct {
	time.Time
}

// UnmarshalJSON accepts unix milliseconds, unix seconds with a decimal
// fraction, RFC 3339 strings, or null.
func (i *Instant) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		i.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			i.Time = time.Time{}
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		i.Time = t
		return nil
	}

	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("parse timestamp %s: %w", data, err)
	}
	// Heuristic shared with the producer: values past the year 33658 in
	// seconds must be milliseconds.
	if n > 1e12 {
		i.Time = time.UnixMilli(int64(n)).UTC()
	} else {
		sec := int64(n)
		nsec := int64((n - float64(sec)) * 1e9)
		i.Time = time.Unix(sec, nsec).UTC()
	}
	return nil
}

// MarshalJSON encodes the instant as an RFC 3339 string, or null when
// zero.
func (i Instant) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(i.Format(time.RFC3339Nano))
}
