package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/histx/internal/aggregate"
	"github.com/desertthunder/histx/internal/catalog"
	"github.com/desertthunder/histx/internal/dedup"
	"github.com/desertthunder/histx/internal/importer"
	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/reconcile"
	"github.com/desertthunder/histx/internal/shared"
	"github.com/desertthunder/histx/internal/userlock"
)

// Store is the persistence the engine needs.
//
// BulkInsertPlays must be atomic: on error nothing was written.
type Store interface {
	ReadAllPlays(ctx context.Context, userID string) ([]models.Play, error)
	BulkInsertPlays(ctx context.Context, userID string, plays []models.Play) error
	MarkSuperseded(ctx context.Context, userID string, ids []string) (int, error)
	MarkStandIns(ctx context.Context, userID string, ids []string) (int, error)
	GetDataSourceMode(ctx context.Context, userID string) (models.DataSourceMode, error)
	SetDataSourceMode(ctx context.Context, userID string, mode models.DataSourceMode) error
}

// TrackLearner records album and track to artist pairs from plays that carry all three.
type TrackLearner interface {
	Learn(ctx context.Context, plays []models.Play) (int, error)
}

// Request is one import.
type Request struct {
	JobID    string
	UserID   string
	Platform models.Platform
	Files    []importer.File
}

// Options bound and tune an import.
type Options struct {
	Window       time.Duration // Dedup tolerance; zero uses [dedup.DefaultWindow]
	ParseTimeout time.Duration // Bound on parse and resolve; zero disables
	MaxRecords   int           // Bound on parsed records; zero disables
	MinPlayMs    int64
}

// OptionsFromConfig maps the [import] config section.
func OptionsFromConfig(c shared.ImportConfig) Options {
	return Options{
		Window:       c.DedupWindow.Duration,
		ParseTimeout: c.ParseTimeout.Duration,
		MaxRecords:   c.MaxRecords,
		MinPlayMs:    c.MinPlayMs,
	}
}

// ImportEngine runs the import pipeline.
type ImportEngine struct {
	store   Store
	catalog catalog.Catalog
	cache   catalog.Cache
	learner TrackLearner
	trigger aggregate.Trigger
	locker  userlock.Locker
	logger  *log.Logger
	opts    Options
}

// EngineOption configures an [ImportEngine].
type EngineOption func(*ImportEngine)

// WithCatalog sets the artist lookup used for platforms whose records lack artists.
func WithCatalog(c catalog.Catalog) EngineOption {
	return func(e *ImportEngine) { e.catalog = c }
}

// WithSharedCache shares resolved artists across runs. The cache must be safe for concurrent use.
func WithSharedCache(c *catalog.SharedCache) EngineOption {
	return func(e *ImportEngine) { e.cache = c }
}

// WithLearner feeds imported plays that carry artists back into the local catalog.
func WithLearner(l TrackLearner) EngineOption {
	return func(e *ImportEngine) { e.learner = l }
}

// WithTrigger sets where aggregate recalculation requests go.
func WithTrigger(t aggregate.Trigger) EngineOption {
	return func(e *ImportEngine) { e.trigger = t }
}

// WithLocker sets the per-user lock. Defaults to an in-process [userlock.Local].
func WithLocker(l userlock.Locker) EngineOption {
	return func(e *ImportEngine) { e.locker = l }
}

// WithLogger sets the engine's logger.
func WithLogger(l *log.Logger) EngineOption {
	return func(e *ImportEngine) { e.logger = l }
}

// WithOptions sets limits and tuning.
func WithOptions(o Options) EngineOption {
	return func(e *ImportEngine) { e.opts = o }
}

// NewImportEngine creates an engine over store.
func NewImportEngine(store Store, opts ...EngineOption) *ImportEngine {
	e := &ImportEngine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	if e.catalog == nil {
		e.catalog = catalog.Map{}
	}
	if e.locker == nil {
		e.locker = userlock.NewLocal()
	}
	if e.logger == nil {
		e.logger = shared.NewLogger(nil)
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
func (e *ImportEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Lock reserves userID for one import. A held lock fails with [shared.ErrImportInProgress].
func (e *ImportEngine) Lock(ctx context.Context, userID string) (userlock.Lease, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}
	return e.locker.Acquire(ctx, userID)
}

// Run locks the user, runs the import and releases the lock.
//
// The error is non-nil only when the import could not start. Pipeline failures
// are reported through the result's status and guidance.
func (e *ImportEngine) Run(ctx context.Context, req Request, progress chan<- ProgressUpdate) (models.ImportResult, error) {
	lease, err := e.Lock(ctx, req.UserID)
	if err != nil {
		return models.ImportResult{}, err
	}
	defer e.release(lease, req.UserID)

	return e.RunLocked(ctx, req, progress), nil
}

func (e *ImportEngine) release(lease userlock.Lease, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		e.logger.Warn("failed to release import lock", "user", userID, "error", err)
	}
}

// run carries state between stages.
type run struct {
	req      Request
	pipe     importer.Pipeline
	logger   *log.Logger
	progress chan<- ProgressUpdate
	counts   Counts
	result   models.ImportResult
}

// RunLocked runs the import. The caller must hold the user's lock.
func (e *ImportEngine) RunLocked(ctx context.Context, req Request, progress chan<- ProgressUpdate) models.ImportResult {
	if req.JobID == "" {
		req.JobID = shared.GenerateID()
	}
	r := &run{
		req:      req,
		logger:   shared.WithLogger(e.logger, "job", req.JobID, "user", req.UserID, "platform", req.Platform),
		progress: progress,
		result: models.ImportResult{
			JobID:    req.JobID,
			UserID:   req.UserID,
			Platform: req.Platform,
		},
	}

	started := time.Now()
	e.execute(ctx, r)

	r.logger.Info("import finished",
		"status", r.result.Status,
		"records", r.result.RecordsFound,
		"new", r.result.NewPlaysAccepted,
		"duplicates", r.result.DuplicatesFound,
		"superseded", r.result.Superseded,
		"mode", r.result.ResultingMode,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	e.sendProgress(progress, doneUpdate(r.result, r.counts))
	return r.result
}

func (e *ImportEngine) fail(r *run, err error) {
	status, guidance := importer.Classify(r.req.Platform, err)
	r.result.Status = status
	r.result.Guidance = guidance
	r.result.Error = err.Error()
	r.logger.Warn("import failed", "status", status, "error", err)
}

func (e *ImportEngine) execute(ctx context.Context, r *run) {
	pipe, err := importer.For(r.req.Platform)
	if err != nil {
		e.fail(r, err)
		return
	}
	r.pipe = pipe

	records, stats, err := e.parseAndResolve(ctx, r)
	if err != nil {
		e.fail(r, err)
		return
	}
	r.result.RecordsFound = len(records)
	if pipe.NeedsResolution() {
		pct := stats.MatchRatePercent()
		r.result.MatchRatePercent = &pct
	}

	plays, drops := pipe.Canonicalize(r.req.UserID, records, importer.CanonicalOptions{
		MinPlayMs: e.opts.MinPlayMs,
		ImportID:  r.req.JobID,
	})
	r.counts.Canonical = len(plays)
	e.sendProgress(r.progress, canonicalUpdate(drops, r.counts))
	r.logger.Debug("canonicalized", "kept", len(plays), "dropped", drops.Total())

	if len(plays) == 0 {
		e.fail(r, importer.NoUsablePlays(r.req.Platform, len(records)))
		return
	}

	existing, err := e.store.ReadAllPlays(ctx, r.req.UserID)
	if err != nil {
		e.fail(r, fmt.Errorf("failed to read existing plays: %w", err))
		return
	}

	deduped := e.dedup(r, existing, plays)
	r.result.DuplicatesFound = deduped.Duplicates
	r.result.NewPlaysAccepted = len(deduped.New)

	if len(deduped.New) > 0 {
		if err := e.store.BulkInsertPlays(ctx, r.req.UserID, deduped.New); err != nil {
			r.result.NewPlaysAccepted = 0
			e.fail(r, err)
			return
		}
	}
	e.sendProgress(r.progress, persistUpdate(len(deduped.New), r.counts))
	e.learn(ctx, r, deduped.New)

	if err := e.reconcile(ctx, r, existing, plays, deduped.Matches); err != nil {
		e.fail(r, err)
		return
	}

	r.result.Status = models.StatusSuccess
	e.notify(ctx, r)
}

// parseAndResolve runs under the parse timeout and record budget. Nothing is written.
func (e *ImportEngine) parseAndResolve(ctx context.Context, r *run) ([]models.RawRecord, catalog.Stats, error) {
	if e.opts.ParseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ParseTimeout)
		defer cancel()
	}

	e.sendProgress(r.progress, parseStartUpdate(r.req.Platform, len(r.req.Files)))

	throttle := rate.Sometimes{Interval: 250 * time.Millisecond}
	var records []models.RawRecord
	err := r.pipe.Parse(ctx, r.req.Files, func(rec models.RawRecord) error {
		if e.opts.MaxRecords > 0 && len(records) >= e.opts.MaxRecords {
			return fmt.Errorf("%w: more than %d records", shared.ErrBudgetExceeded, e.opts.MaxRecords)
		}
		records = append(records, rec)
		r.counts.Records = len(records)
		throttle.Do(func() { e.sendProgress(r.progress, parseProgressUpdate(r.counts)) })
		return nil
	})
	if err != nil {
		return nil, catalog.Stats{}, timeoutError(ctx, err)
	}
	e.sendProgress(r.progress, parseProgressUpdate(r.counts))
	r.logger.Debug("parsed", "records", len(records))

	if !r.pipe.NeedsResolution() {
		return records, catalog.Stats{}, nil
	}

	var cache catalog.Cache = catalog.NewRunCache()
	if e.cache != nil {
		cache = e.cache
	}
	resolveThrottle := rate.Sometimes{Interval: 250 * time.Millisecond}
	resolver := catalog.NewResolver(e.catalog,
		catalog.WithCache(cache),
		catalog.WithLogger(r.logger),
		catalog.WithProgress(func(done, total int) {
			resolveThrottle.Do(func() { e.sendProgress(r.progress, resolveProgressUpdate(done, total, r.counts)) })
		}),
	)

	stats, err := r.pipe.Resolve(ctx, records, resolver)
	if err != nil {
		return nil, stats, timeoutError(ctx, err)
	}
	r.counts.Resolved = stats.Resolved
	e.sendProgress(r.progress, resolveDoneUpdate(stats, r.counts))
	r.logger.Debug("resolved", "needed", stats.Needed, "resolved", stats.Resolved, "lookups", stats.Lookups)
	return records, stats, nil
}

// timeoutError marks deadline overruns with [shared.ErrTimeout].
func timeoutError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", shared.ErrTimeout, err)
	}
	return err
}

func (e *ImportEngine) dedup(r *run, existing, plays []models.Play) dedup.Result {
	total := len(plays)
	eng := dedup.New(e.opts.Window, dedup.WithProgress(1000, func(dc dedup.Counters) {
		r.counts.Examined, r.counts.Duplicates, r.counts.Accepted = dc.Examined, dc.Duplicates, dc.Accepted
		e.sendProgress(r.progress, dedupUpdate(dc, total, r.counts))
	}))
	res := eng.Run(existing, plays)
	r.counts.Examined, r.counts.Duplicates, r.counts.Accepted = res.Examined, res.Duplicates, res.Accepted
	r.logger.Debug("deduplicated", "window", eng.Window(), "examined", res.Examined, "duplicates", res.Duplicates)
	return res
}

// learn is best effort: a failure only costs future lookups.
func (e *ImportEngine) learn(ctx context.Context, r *run, plays []models.Play) {
	if e.learner == nil || r.pipe.NeedsResolution() || len(plays) == 0 {
		return
	}
	n, err := e.learner.Learn(ctx, plays)
	if err != nil {
		r.logger.Warn("failed to update track catalog", "error", err)
		return
	}
	r.logger.Debug("track catalog updated", "tracks", n)
}

func (e *ImportEngine) reconcile(ctx context.Context, r *run, existing, plays []models.Play, matches []dedup.Match) error {
	current, err := e.store.GetDataSourceMode(ctx, r.req.UserID)
	if err != nil {
		return fmt.Errorf("failed to read data source mode: %w", err)
	}

	plan := reconcile.Decide(current, existing, plays, matches)

	superseded := 0
	if len(plan.Supersede) > 0 {
		superseded, err = e.store.MarkSuperseded(ctx, r.req.UserID, plan.Supersede)
		if err != nil {
			return fmt.Errorf("failed to mark superseded plays: %w", err)
		}
	}
	if len(plan.Retained) > 0 {
		if _, err := e.store.MarkStandIns(ctx, r.req.UserID, plan.Retained); err != nil {
			return fmt.Errorf("failed to mark stand-in plays: %w", err)
		}
	}
	if plan.Changed() {
		if err := e.store.SetDataSourceMode(ctx, r.req.UserID, plan.Next); err != nil {
			return fmt.Errorf("failed to set data source mode: %w", err)
		}
	}

	r.result.Superseded = superseded
	r.result.ResultingMode = plan.Next
	e.sendProgress(r.progress, reconcileUpdate(plan, superseded, r.counts))
	r.logger.Debug("reconciled", "previous", plan.Previous, "next", plan.Next, "overlap", plan.Overlap,
		"superseded", superseded, "retained", len(plan.Retained))
	return nil
}

// notify asks for aggregates to be rebuilt. An unacknowledged request leaves the import successful.
func (e *ImportEngine) notify(ctx context.Context, r *run) {
	if e.trigger == nil {
		r.result.AggregatePending = true
		return
	}

	ev := aggregate.NewEvent(r.req.UserID)
	if err := e.trigger.Trigger(ctx, ev); err != nil {
		r.result.AggregatePending = true
		if errors.Is(err, shared.ErrAckTimeout) {
			r.logger.Warn("aggregate refresh not acknowledged", "request", ev.RequestID, "error", err)
		} else {
			r.logger.Error("aggregate refresh failed", "request", ev.RequestID, "error", err)
		}
	}
	e.sendProgress(r.progress, triggerUpdate(ev, r.result.AggregatePending, r.counts))
}
