package models

import (
	"fmt"
	"time"
)

// ImportJob records one import run and its outcome.
type ImportJob struct {
	id          string
	userID      string
	platform    Platform
	status      ImportStatus
	result      ImportResult
	errorText   string
	startedAt   time.Time
	completedAt *time.Time
}

// NewImportJob creates a running job for userID.
func NewImportJob(id, userID string, platform Platform) *ImportJob {
	return &ImportJob{
		id:        id,
		userID:    userID,
		platform:  platform,
		status:    StatusRunning,
		startedAt: time.Now().UTC(),
	}
}

func (j *ImportJob) ID() string              { return j.id }
func (j *ImportJob) UserID() string          { return j.userID }
func (j *ImportJob) Platform() Platform      { return j.platform }
func (j *ImportJob) Status() ImportStatus    { return j.status }
func (j *ImportJob) Result() ImportResult    { return j.result }
func (j *ImportJob) ErrorText() string       { return j.errorText }
func (j *ImportJob) StartedAt() time.Time    { return j.startedAt }
func (j *ImportJob) CompletedAt() *time.Time { return j.completedAt }
func (j *ImportJob) CreatedAt() time.Time    { return j.startedAt }

// UpdatedAt is the completion time, or the start time while running.
func (j *ImportJob) UpdatedAt() time.Time {
	if j.completedAt != nil {
		return *j.completedAt
	}
	return j.startedAt
}

func (j *ImportJob) SetID(id string)             { j.id = id }
func (j *ImportJob) SetStatus(s ImportStatus)    { j.status = s }
func (j *ImportJob) SetErrorText(s string)       { j.errorText = s }
func (j *ImportJob) SetStartedAt(t time.Time)    { j.startedAt = t }
func (j *ImportJob) SetCompletedAt(t *time.Time) { j.completedAt = t }

// SetResult stores the terminal result and marks the job complete.
func (j *ImportJob) SetResult(r ImportResult) {
	j.result = r
	j.status = r.Status
	j.errorText = r.Error
	now := time.Now().UTC()
	j.completedAt = &now
}

// Validate checks required fields.
func (j *ImportJob) Validate() error {
	if j.id == "" {
		return fmt.Errorf("import job id is required")
	}
	if j.userID == "" {
		return fmt.Errorf("import job user id is required")
	}
	if j.platform.Source() == "" {
		return fmt.Errorf("unknown platform %q", j.platform)
	}
	return nil
}
