package importer

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC)

	tests := []struct {
		name     string
		input    string
		expected time.Time
		wantErr  bool
	}{
		{"RFC3339", "2023-04-05T06:07:08Z", want, false},
		{"Millis Fraction", "2023-04-05T06:07:08.000Z", want, false},
		{"Offset", "2023-04-05T08:07:08+02:00", want, false},
		{"Space Separated", "2023-04-05 06:07:08", want, false},
		{"Minute Precision", "2023-04-05 06:07", want.Add(-8 * time.Second), false},
		{"Epoch Seconds", "1680674828", want, false},
		{"Epoch Millis", "1680674828000", want, false},
		{"Empty", "  ", time.Time{}, false},
		{"Garbage", "yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimestamp(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
			if !got.IsZero() && got.Location() != time.UTC {
				t.Errorf("expected UTC, got %s", got.Location())
			}
		})
	}
}

func TestFlexTime(t *testing.T) {
	want := time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		zero  bool
	}{
		{"String", `"2023-04-05T06:07:08Z"`, false},
		{"Number", `1680674828000`, false},
		{"Float", `1680674828000.0`, false},
		{"Null", `null`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f flexTime
			if err := json.Unmarshal([]byte(tt.input), &f); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.zero {
				if !f.IsZero() {
					t.Errorf("expected zero time, got %s", f.Time)
				}
				return
			}
			if !f.Equal(want) {
				t.Errorf("expected %s, got %s", want, f.Time)
			}
		})
	}

	var f flexTime
	if err := json.Unmarshal([]byte(`"not a time"`), &f); err == nil {
		t.Error("expected error for unparseable string")
	}
}
