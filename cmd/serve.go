package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/histx/internal/aggregate"
	"github.com/desertthunder/histx/internal/catalog"
	"github.com/desertthunder/histx/internal/server"
	"github.com/desertthunder/histx/internal/shared"
	"github.com/desertthunder/histx/internal/tasks"
)

// Serve runs the HTTP API until interrupted, then waits for running imports.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if cmd.IsSet("port") {
		r.config.Server.Port = cmd.Int("port")
	}
	if cmd.IsSet("host") {
		r.config.Server.Host = cmd.String("host")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := r.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	// Imports outlive the request that started them, so they run on a
	// context that survives the listener shutting down.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	engine, err := r.engine(jobCtx, b, tasks.WithSharedCache(catalog.NewSharedCache()))
	if err != nil {
		return err
	}
	runner := tasks.NewJobRunner(jobCtx, engine, b.jobs, shared.WithLogger(r.logger, "component", "jobs"))
	runner.SetRetention(r.config.Server.JobRetention.Duration)
	go runner.Janitor(jobCtx, time.Minute)

	srv := server.New(runner, b.store,
		server.WithRankings(b.rankings),
		server.WithHistory(b.jobs),
		server.WithTrigger(b.trigger(jobCtx, r)),
		server.WithLimits(server.LimitsFromConfig(r.config.Import)),
		server.WithLogger(shared.WithLogger(r.logger, "component", "http")),
	)

	if err := srv.ListenAndServe(ctx, r.config.Server.Addr()); err != nil {
		return err
	}

	grace := cmd.Duration("grace")
	r.logger.Info("waiting for running imports", "timeout", grace)
	if !runner.Wait(grace) {
		r.logger.Warn("imports still running at shutdown; cancelling")
		cancelJobs()
		runner.Wait(5 * time.Second)
	}
	return nil
}

// AggregateWorker consumes recalculation requests from Redis until interrupted.
func (r *Runner) AggregateWorker(ctx context.Context, cmd *cli.Command) error {
	if r.config.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr must be set to run a standalone worker", shared.ErrMissingConfig)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := r.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	consumer := aggregate.NewRedisConsumer(b.redis, b.worker(r), cmd.Duration("poll"), shared.WithLogger(r.logger, "component", "consumer"))
	return consumer.Run(ctx)
}

// AggregateRun rebuilds a user's rankings in the foreground.
func (r *Runner) AggregateRun(ctx context.Context, cmd *cli.Command) error {
	userID, err := requireUser(cmd)
	if err != nil {
		return err
	}

	b, err := r.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.worker(r).Handle(ctx, aggregate.NewEvent(userID)); err != nil {
		return fmt.Errorf("failed to rebuild rankings: %w", err)
	}
	return r.writePlain("Rankings rebuilt for %s\n", userID)
}
