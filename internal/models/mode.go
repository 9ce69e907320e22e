package models

import "fmt"

// DataSourceMode selects which blend of imported and live plays counts toward aggregates.
type DataSourceMode string

const (
	// ModeLiveOnly counts only live-tracked plays.
	ModeLiveOnly DataSourceMode = "live-only"
	// ModeImportedUntilLiveStarted counts imported plays up to the first live play, then live plays.
	ModeImportedUntilLiveStarted DataSourceMode = "imported-until-live-started"
	// ModeFullImportedThenLive counts every imported play plus live plays not covered by an import.
	ModeFullImportedThenLive DataSourceMode = "full-imported-then-live"
)

// Modes lists every mode.
var Modes = []DataSourceMode{ModeLiveOnly, ModeImportedUntilLiveStarted, ModeFullImportedThenLive}

// ParseDataSourceMode validates a stored or user-supplied mode.
func ParseDataSourceMode(s string) (DataSourceMode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown data source mode %q", s)
}

// IsImported reports whether imported plays count in this mode.
func (m DataSourceMode) IsImported() bool {
	return m == ModeImportedUntilLiveStarted || m == ModeFullImportedThenLive
}

// Describe explains the mode to a user.
func (m DataSourceMode) Describe() string {
	switch m {
	case ModeLiveOnly:
		return "only live-tracked plays count"
	case ModeImportedUntilLiveStarted:
		return "imported history counts until live tracking began, live plays after"
	case ModeFullImportedThenLive:
		return "all imported history counts, with live plays after the imported period"
	}
	return string(m)
}
