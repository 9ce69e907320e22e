package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/histx/internal/aggregate"
	"github.com/desertthunder/histx/internal/catalog"
	"github.com/desertthunder/histx/internal/pgstore"
	"github.com/desertthunder/histx/internal/repositories"
	"github.com/desertthunder/histx/internal/shared"
	"github.com/desertthunder/histx/internal/tasks"
	"github.com/desertthunder/histx/internal/ui"
	"github.com/desertthunder/histx/internal/userlock"
)

// backend is the storage and coordination a command runs against.
//
// SQLite always holds the track catalog, rankings and the import audit.
// Plays and modes move to PostgreSQL when database.driver is "postgres".
type backend struct {
	db       *sql.DB
	pg       *pgstore.Store
	store    tasks.Store
	jobs     *repositories.ImportJobRepository
	tracks   *repositories.TrackRepository
	rankings *repositories.AggregateRepository
	redis    *redis.Client
	trig     aggregate.Trigger
}

// openBackend opens the configured databases and applies pending migrations.
func (r *Runner) openBackend(ctx context.Context) (*backend, error) {
	cfg := r.config

	db, err := shared.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	b := &backend{
		db:       db,
		jobs:     repositories.NewImportJobRepository(db),
		tracks:   repositories.NewTrackRepository(db),
		rankings: repositories.NewAggregateRepository(db),
	}

	switch cfg.Database.Driver {
	case "postgres":
		pg, err := pgstore.Open(ctx, cfg.Database.DSN)
		if err != nil {
			db.Close()
			return nil, err
		}
		b.pg = pg
		b.store = pg
		r.logger.Debug("storing plays in postgres")
	default:
		b.store = repositories.NewStore(db)
	}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
	}

	return b, nil
}

// Close releases every open connection.
func (b *backend) Close() {
	if b.redis != nil {
		b.redis.Close()
	}
	if b.pg != nil {
		b.pg.Close()
	}
	b.db.Close()
}

// worker rebuilds rankings from the play store into SQLite.
func (b *backend) worker(r *Runner) *aggregate.Worker {
	return aggregate.NewWorker(b.store, b.rankings, aggregate.DefaultLimit, shared.WithLogger(r.logger, "component", "aggregate"))
}

// locker is Redis-backed when Redis is configured so that imports
// from separate processes exclude each other.
func (b *backend) locker(r *Runner) userlock.Locker {
	if b.redis != nil {
		return userlock.NewRedis(b.redis, r.config.Redis.LockTTL.Duration)
	}
	return userlock.NewLocal()
}

// trigger returns the aggregate trigger. Without Redis a worker is served
// in-process until ctx ends; later calls reuse it.
func (b *backend) trigger(ctx context.Context, r *Runner) aggregate.Trigger {
	if b.trig != nil {
		return b.trig
	}

	timeout := r.config.Redis.AckTimeout.Duration
	if b.redis != nil {
		b.trig = aggregate.NewRedisTrigger(b.redis, timeout)
		return b.trig
	}

	local := aggregate.NewLocalTrigger(timeout)
	go local.Serve(ctx, b.worker(r))
	b.trig = local
	return local
}

// catalog consults learned mappings first and falls back to Last.fm when a key is configured.
func (b *backend) catalog(r *Runner) (catalog.Catalog, error) {
	cfg := r.config.Catalog
	if cfg.LastFMAPIKey == "" {
		return b.tracks, nil
	}

	lastfm, err := catalog.NewLastFM(cfg.LastFMAPIKey, cfg.LastFMBaseURL, cfg.RequestTimeout.Duration)
	if err != nil {
		return nil, err
	}
	return catalog.NewWriteBack(b.tracks, lastfm, "lastfm", shared.WithLogger(r.logger, "component", "catalog")), nil
}

// engine builds an import engine over the backend.
func (r *Runner) engine(ctx context.Context, b *backend, extra ...tasks.EngineOption) (*tasks.ImportEngine, error) {
	cat, err := b.catalog(r)
	if err != nil {
		return nil, err
	}

	opts := []tasks.EngineOption{
		tasks.WithCatalog(cat),
		tasks.WithLearner(b.tracks),
		tasks.WithTrigger(b.trigger(ctx, r)),
		tasks.WithLocker(b.locker(r)),
		tasks.WithLogger(shared.WithLogger(r.logger, "component", "import")),
		tasks.WithOptions(tasks.OptionsFromConfig(r.config.Import)),
	}
	return tasks.NewImportEngine(b.store, append(opts, extra...)...), nil
}

// topLoader reads current rankings for the TUI.
func (b *backend) topLoader(limit int) ui.TopLoader {
	return func(ctx context.Context, userID string) ([]repositories.ArtistCount, []repositories.TrackCount, error) {
		artists, err := b.rankings.TopArtists(ctx, userID, limit)
		if err != nil {
			return nil, nil, err
		}
		tracks, err := b.rankings.TopTracks(ctx, userID, limit)
		if err != nil {
			return nil, nil, err
		}
		return artists, tracks, nil
	}
}
