package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// epochSecondsCutoff separates epoch seconds from epoch milliseconds; 1e11 seconds is in the year 5138.
const epochSecondsCutoff = 100_000_000_000

// parseTimestamp accepts ISO-8601 strings or epoch milliseconds and returns UTC.
// Zone-less layouts are read as UTC. An empty string yields the zero time.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epochTime(n), nil
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func epochTime(n int64) time.Time {
	if n < epochSecondsCutoff {
		return time.Unix(n, 0).UTC()
	}
	return time.UnixMilli(n).UTC()
}

// flexTime decodes a JSON timestamp given as a string or a number.
type flexTime struct {
	time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t, err := parseTimestamp(s)
		if err != nil {
			return err
		}
		f.Time = t
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		fv, ferr := n.Float64()
		if ferr != nil {
			return fmt.Errorf("unrecognized timestamp %s", b)
		}
		v = int64(fv)
	}
	f.Time = epochTime(v)
	return nil
}
