package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
	"github.com/desertthunder/histx/internal/tasks"
	"github.com/desertthunder/histx/internal/ui"
)

// importTUI runs the import behind the interactive confirm, progress and results screens.
func (r *Runner) importTUI(ctx context.Context, runner *tasks.JobRunner, req tasks.Request, cleanup func(), b *backend) (models.ImportResult, error) {
	model := ui.NewModel(ctx, runner, req, cleanup, b.topLoader(20))
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return models.ImportResult{}, fmt.Errorf("error running TUI: %w", err)
	}

	if err := model.Err(); err != nil {
		return models.ImportResult{}, err
	}
	if res, ok := model.Result(); ok {
		return res, nil
	}

	job := model.Job()
	if job == nil {
		// Quit before confirming; the files were never handed to a job.
		cleanup()
		return models.ImportResult{}, context.Canceled
	}

	r.logger.Info("waiting for import to finish", "job", job.ID)
	<-job.Done()
	res, _ := job.Result()
	return res, nil
}

// useFileLogger sends logs to path so they do not interfere with TUI rendering.
func (r *Runner) useFileLogger(path string) error {
	if path == "" {
		path = filepath.Join(os.TempDir(), fmt.Sprintf("histx-tui-%s.log", time.Now().Format("20060102")))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	l := shared.NewLogger(f)
	shared.SetLogLevel(l, r.logger.GetLevel())
	r.SetLogger(l)
	return nil
}
