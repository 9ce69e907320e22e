package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/histx/internal/aggregate"
	"github.com/desertthunder/histx/internal/formatter"
	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
)

func requireUser(cmd *cli.Command) (string, error) {
	userID := cmd.String("user")
	if userID == "" {
		return "", fmt.Errorf("%w: --user is required", shared.ErrMissingArgument)
	}
	return userID, nil
}

// ModeGet prints a user's data source mode.
func (r *Runner) ModeGet(ctx context.Context, cmd *cli.Command) error {
	userID, err := requireUser(cmd)
	if err != nil {
		return err
	}

	b, err := r.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	mode, err := b.store.GetDataSourceMode(ctx, userID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"user_id": userID, "mode": mode, "description": mode.Describe()}, true)
	}
	return r.writePlain("%s: %s (%s)\n", userID, mode, mode.Describe())
}

// ModeSet changes a user's data source mode and rebuilds their rankings.
//
// This is the only way back to live-only once an import has switched the mode.
func (r *Runner) ModeSet(ctx context.Context, cmd *cli.Command) error {
	userID, err := requireUser(cmd)
	if err != nil {
		return err
	}

	mode, err := models.ParseDataSourceMode(cmd.StringArg("mode"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidMode, err)
	}

	b, err := r.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.store.SetDataSourceMode(ctx, userID, mode); err != nil {
		return err
	}
	r.logger.Info("data source mode updated", "user", userID, "mode", mode)

	if err := b.worker(r).Handle(ctx, aggregate.NewEvent(userID)); err != nil {
		r.logger.Warn("failed to rebuild rankings", "user", userID, "error", err)
	}
	return r.writePlain("%s: %s (%s)\n", userID, mode, mode.Describe())
}

// ImportsList prints the import audit, newest first.
func (r *Runner) ImportsList(ctx context.Context, cmd *cli.Command) error {
	b, err := r.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	criteria := map[string]any{"limit": cmd.Int("limit")}
	if v := cmd.String("user"); v != "" {
		criteria["user_id"] = v
	}
	if v := cmd.String("status"); v != "" {
		criteria["status"] = v
	}
	if v := cmd.String("platform"); v != "" {
		criteria["platform"] = v
	}

	jobs, err := b.jobs.List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		results := make([]models.ImportResult, len(jobs))
		for i, j := range jobs {
			results[i] = j.Result()
		}
		return r.writeJSON(results, true)
	}

	if len(jobs) == 0 {
		return r.writePlain("No imports found\n")
	}

	w := tabwriter.NewWriter(r.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tUSER\tPLATFORM\tSTATUS\tNEW\tDUPLICATES\tSTARTED")
	for _, j := range jobs {
		res := j.Result()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			j.ID(), j.UserID(), j.Platform(), j.Status(), res.NewPlaysAccepted, res.DuplicatesFound,
			j.StartedAt().Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// Top prints a user's top artists and tracks.
func (r *Runner) Top(ctx context.Context, cmd *cli.Command) error {
	userID, err := requireUser(cmd)
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}

	b, err := r.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	limit := cmd.Int("limit")
	artists, err := b.rankings.TopArtists(ctx, userID, limit)
	if err != nil {
		return err
	}
	tracks, err := b.rankings.TopTracks(ctx, userID, limit)
	if err != nil {
		return err
	}

	switch format {
	case formatter.FormatJSON:
		return r.writeJSON(map[string]any{"artists": artists, "tracks": tracks}, true)
	case formatter.FormatMarkdown:
		return r.writeBytes(formatter.TopToMarkdown(artists, tracks))
	default:
		r.writePlainHeader("Top listening for " + userID)
		return r.writeBytes(formatter.TopToText(artists, tracks))
	}
}

// PlaysExport writes a user's stored plays, superseded ones included.
func (r *Runner) PlaysExport(ctx context.Context, cmd *cli.Command) error {
	userID, err := requireUser(cmd)
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}

	b, err := r.openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	plays, err := b.store.ReadAllPlays(ctx, userID)
	if err != nil {
		return err
	}
	mode, err := b.store.GetDataSourceMode(ctx, userID)
	if err != nil {
		return err
	}
	summary := formatter.Summarize(userID, mode, plays)
	output := cmd.String("output")

	switch format {
	case formatter.FormatCSV:
		res, err := formatter.WriteCSVExport(summary, plays, output)
		if err != nil {
			return err
		}
		r.logger.Info("export written", "plays", res.PlaysFile, "summary", res.SummaryFile)
	case formatter.FormatJSON:
		return r.writeJSON(map[string]any{"summary": summary, "plays": plays}, true)
	case formatter.FormatMarkdown:
		return fmt.Errorf("%w: markdown is not supported for play exports", shared.ErrInvalidFlag)
	default:
		if output == "" {
			return r.writeBytes(formatter.PlaysToText(plays))
		}
		path, err := formatter.WriteTextExport(userID, plays, output)
		if err != nil {
			return err
		}
		r.logger.Info("export written", "path", path)
	}

	return r.writePlain("%d plays (%d superseded) for %s\n", summary.Plays, summary.Superseded, userID)
}
