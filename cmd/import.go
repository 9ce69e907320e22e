package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/histx/internal/formatter"
	"github.com/desertthunder/histx/internal/importer"
	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
	"github.com/desertthunder/histx/internal/tasks"
)

// openExportFiles opens every path given on the command line. The returned
// cleanup closes all of them.
func openExportFiles(paths []string) ([]importer.File, func(), error) {
	var files []importer.File
	var handles []*os.File
	cleanup := func() {
		for _, h := range handles {
			h.Close()
		}
	}

	for _, p := range paths {
		f, h, err := importer.OpenFile(p)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		files = append(files, f)
		handles = append(handles, h)
	}
	return files, cleanup, nil
}

// importRequest validates the import flags and arguments.
func importRequest(cmd *cli.Command) (tasks.Request, []string, error) {
	userID := cmd.String("user")
	if userID == "" {
		return tasks.Request{}, nil, fmt.Errorf("%w: --user is required", shared.ErrMissingArgument)
	}

	platform, err := importer.ParsePlatform(cmd.String("platform"))
	if err != nil {
		return tasks.Request{}, nil, err
	}

	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return tasks.Request{}, nil, fmt.Errorf("%w: at least one export file is required", shared.ErrMissingArgument)
	}

	return tasks.Request{UserID: userID, Platform: platform}, paths, nil
}

// Import runs one import from export files on disk and prints the result.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	req, paths, err := importRequest(cmd)
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
	}
	if cmd.Bool("json") {
		format = formatter.FormatJSON
	}

	if cmd.IsSet("window") {
		r.config.Import.DedupWindow = shared.Duration{Duration: cmd.Duration("window")}
	}

	if cmd.Bool("tui") {
		if err := r.useFileLogger(cmd.String("log-file")); err != nil {
			return err
		}
	}

	files, closeFiles, err := openExportFiles(paths)
	if err != nil {
		return err
	}
	req.Files = files

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b, err := r.openBackend(ctx)
	if err != nil {
		closeFiles()
		return err
	}
	defer b.Close()

	if pipeline, _ := importer.For(req.Platform); pipeline != nil && pipeline.NeedsResolution() && r.config.Catalog.LastFMAPIKey == "" {
		r.logger.Warn("no catalog api key configured; only previously learned tracks will resolve", "platform", req.Platform)
	}

	engine, err := r.engine(ctx, b)
	if err != nil {
		closeFiles()
		return err
	}
	runner := tasks.NewJobRunner(ctx, engine, b.jobs, r.logger)

	var res models.ImportResult
	if cmd.Bool("tui") {
		res, err = r.importTUI(ctx, runner, req, closeFiles, b)
	} else {
		res, err = r.importPlain(ctx, runner, req, closeFiles)
	}
	if err != nil {
		return err
	}

	if err := r.writeResult(ctx, b, res, format, cmd.String("report")); err != nil {
		return err
	}

	if res.Status.Failed() {
		return fmt.Errorf("import %s: %s", res.Status, res.Error)
	}
	return nil
}

func (r *Runner) importPlain(ctx context.Context, runner *tasks.JobRunner, req tasks.Request, cleanup func()) (models.ImportResult, error) {
	job, err := runner.Submit(req, cleanup)
	if err != nil {
		cleanup()
		return models.ImportResult{}, err
	}

	r.logger.Info("import started", "job", job.ID, "user", req.UserID, "platform", req.Platform, "files", len(req.Files))
	for u := range job.Subscribe(ctx, 0) {
		r.logger.Info(u.Message, "phase", u.Phase)
	}

	res, ok := job.Result()
	if !ok {
		return models.ImportResult{}, ctx.Err()
	}
	return res, nil
}

// writeResult renders res to the output, or to a Markdown report directory when report is set.
func (r *Runner) writeResult(ctx context.Context, b *backend, res models.ImportResult, format formatter.Format, report string) error {
	if report != "" {
		artists, _ := b.rankings.TopArtists(ctx, res.UserID, 10)
		tracks, _ := b.rankings.TopTracks(ctx, res.UserID, 10)
		path, err := formatter.WriteMarkdownReport(res, artists, tracks, report)
		if err != nil {
			return err
		}
		r.logger.Info("report written", "path", path)
	}

	switch format {
	case formatter.FormatJSON:
		return r.writeJSON(res, true)
	case formatter.FormatMarkdown:
		return r.writeBytes(formatter.ResultToMarkdown(res))
	default:
		return r.writeBytes(formatter.ResultToText(res))
	}
}
