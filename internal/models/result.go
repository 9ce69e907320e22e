package models

// ImportStatus is the terminal classification of an import run.
type ImportStatus string

const (
	StatusSuccess              ImportStatus = "success"
	StatusUnknownFailure       ImportStatus = "unknown-failure"
	StatusWrongPackageFailure  ImportStatus = "wrong-package-failure"
	StatusWrongFormatFailure   ImportStatus = "wrong-format-failure"
	StatusNoUsablePlaysFailure ImportStatus = "no-usable-plays-failure"
	// StatusRunning marks a job that has not reached a terminal status.
	StatusRunning ImportStatus = "running"
)

// Failed reports whether the status is a terminal failure.
func (s ImportStatus) Failed() bool {
	switch s {
	case StatusUnknownFailure, StatusWrongPackageFailure, StatusWrongFormatFailure, StatusNoUsablePlaysFailure:
		return true
	}
	return false
}

// ImportResult is the terminal outcome of an import.
//
// MatchRatePercent is only set for platforms that need artist resolution.
type ImportResult struct {
	JobID            string         `json:"job_id"`
	UserID           string         `json:"user_id"`
	Platform         Platform       `json:"platform"`
	Status           ImportStatus   `json:"status"`
	RecordsFound     int            `json:"records_found"`
	MatchRatePercent *float64       `json:"match_rate_percent,omitempty"`
	DuplicatesFound  int            `json:"duplicates_found"`
	NewPlaysAccepted int            `json:"new_plays_accepted"`
	Superseded       int            `json:"superseded"`
	ResultingMode    DataSourceMode `json:"resulting_mode,omitempty"`
	Guidance         string         `json:"guidance,omitempty"`
	Error            string         `json:"error,omitempty"`
	AggregatePending bool           `json:"aggregate_pending,omitempty"`
}
