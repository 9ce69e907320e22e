package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
)

// JobStore keeps the audit row of each import.
type JobStore interface {
	Create(job *models.ImportJob) error
	Update(job *models.ImportJob) error
}

// Job is a running or finished import with an append-only event log.
type Job struct {
	ID       string
	UserID   string
	Platform models.Platform

	mu         sync.Mutex
	events     []ProgressUpdate
	changed    chan struct{}
	result     *models.ImportResult
	finishedAt time.Time
	done       chan struct{}
}

func newJob(id string, req Request) *Job {
	return &Job{
		ID:       id,
		UserID:   req.UserID,
		Platform: req.Platform,
		changed:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (j *Job) append(u ProgressUpdate) {
	j.mu.Lock()
	defer j.mu.Unlock()
	u.Seq = len(j.events)
	j.events = append(j.events, u)
	close(j.changed)
	j.changed = make(chan struct{})
}

func (j *Job) finish(res models.ImportResult) {
	j.mu.Lock()
	j.result = &res
	j.finishedAt = time.Now()
	close(j.changed)
	j.changed = make(chan struct{})
	j.mu.Unlock()
	close(j.done)
}

// Events returns the events from offset on, a channel closed at the next change, and whether the job has finished.
func (j *Job) Events(offset int) ([]ProgressUpdate, <-chan struct{}, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	var out []ProgressUpdate
	if offset < len(j.events) {
		out = append(out, j.events[offset:]...)
	}
	return out, j.changed, j.result != nil
}

// Result returns the terminal result once the job has finished.
func (j *Job) Result() (models.ImportResult, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.result == nil {
		return models.ImportResult{JobID: j.ID, UserID: j.UserID, Platform: j.Platform, Status: models.StatusRunning}, false
	}
	return *j.result, true
}

// expired reports whether the job finished more than retention ago.
func (j *Job) expired(now time.Time, retention time.Duration) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result != nil && now.Sub(j.finishedAt) > retention
}

// Done is closed when the job finishes.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Subscribe replays events from offset and follows new ones until the job finishes or ctx ends.
func (j *Job) Subscribe(ctx context.Context, offset int) <-chan ProgressUpdate {
	out := make(chan ProgressUpdate)
	go func() {
		defer close(out)
		for {
			events, changed, finished := j.Events(offset)
			for _, ev := range events {
				select {
				case out <- ev:
					offset = ev.Seq + 1
				case <-ctx.Done():
					return
				}
			}
			if finished {
				return
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// DefaultJobRetention is how long finished jobs stay in memory unless changed with [JobRunner.SetRetention].
const DefaultJobRetention = time.Hour

// JobRunner runs imports in the background and keeps their event logs.
//
// Finished jobs are evicted after the retention period; their audit rows remain.
type JobRunner struct {
	ctx       context.Context
	engine    *ImportEngine
	audit     JobStore
	logger    *log.Logger
	retention time.Duration

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// NewJobRunner creates a runner whose jobs stop when ctx is cancelled. audit may be nil.
func NewJobRunner(ctx context.Context, engine *ImportEngine, audit JobStore, logger *log.Logger) *JobRunner {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &JobRunner{
		ctx:       ctx,
		engine:    engine,
		audit:     audit,
		logger:    logger,
		retention: DefaultJobRetention,
		jobs:      make(map[string]*Job),
	}
}

// SetRetention changes how long finished jobs are kept. Zero or less keeps the default.
func (r *JobRunner) SetRetention(d time.Duration) {
	if d <= 0 {
		d = DefaultJobRetention
	}
	r.mu.Lock()
	r.retention = d
	r.mu.Unlock()
}

// Prune evicts jobs that finished more than the retention period ago and returns how many were removed.
func (r *JobRunner) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, job := range r.jobs {
		if job.expired(now, r.retention) {
			delete(r.jobs, id)
			n++
		}
	}
	if n > 0 {
		r.logger.Debug("evicted finished jobs", "count", n, "remaining", len(r.jobs))
	}
	return n
}

// Janitor prunes on every tick until ctx ends.
func (r *JobRunner) Janitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			r.Prune(now)
		}
	}
}

// Submit locks the user and starts the import. It fails immediately with
// [shared.ErrImportInProgress] when the user already has one running.
//
// cleanup, if set, runs after the job finishes; use it to close uploaded files.
func (r *JobRunner) Submit(req Request, cleanup func()) (*Job, error) {
	if req.Platform.Source() == "" {
		return nil, fmt.Errorf("%w: %q", shared.ErrUnknownPlatform, req.Platform)
	}

	lease, err := r.engine.Lock(r.ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	if req.JobID == "" {
		req.JobID = shared.GenerateID()
	}
	job := newJob(req.JobID, req)

	record := models.NewImportJob(job.ID, req.UserID, req.Platform)
	if r.audit != nil {
		if err := r.audit.Create(record); err != nil {
			r.engine.release(lease, req.UserID)
			return nil, fmt.Errorf("failed to record import job: %w", err)
		}
	}

	r.Prune(time.Now())

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.engine.release(lease, req.UserID)
		if cleanup != nil {
			defer cleanup()
		}

		progress := make(chan ProgressUpdate, 1024)
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for u := range progress {
				job.append(u)
			}
		}()

		res := r.engine.RunLocked(r.ctx, req, progress)
		close(progress)
		<-drained

		if r.audit != nil {
			record.SetResult(res)
			if err := r.audit.Update(record); err != nil {
				r.logger.Error("failed to update import job", "job", job.ID, "error", err)
			}
		}
		job.finish(res)
	}()

	return job, nil
}

// Get returns a job by id.
func (r *JobRunner) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok || job.expired(time.Now(), r.retention) {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	return job, nil
}

// Wait blocks until every submitted job has finished or timeout elapses.
func (r *JobRunner) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
