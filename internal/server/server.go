package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/histx/internal/aggregate"
	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/repositories"
	"github.com/desertthunder/histx/internal/shared"
	"github.com/desertthunder/histx/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Modes reads and changes a user's data source mode.
type Modes interface {
	GetDataSourceMode(ctx context.Context, userID string) (models.DataSourceMode, error)
	SetDataSourceMode(ctx context.Context, userID string, mode models.DataSourceMode) error
}

// Rankings serves a user's derived top lists.
type Rankings interface {
	TopArtists(ctx context.Context, userID string, limit int) ([]repositories.ArtistCount, error)
	TopTracks(ctx context.Context, userID string, limit int) ([]repositories.TrackCount, error)
}

// History serves audit rows of past imports, including those from earlier processes.
type History interface {
	Get(id string) (*models.ImportJob, error)
	List(criteria map[string]any) ([]*models.ImportJob, error)
}

// Limits bound a single upload.
type Limits struct {
	MaxUploadBytes int64
	MaxFiles       int
}

// LimitsFromConfig maps the [import] config section.
func LimitsFromConfig(c shared.ImportConfig) Limits {
	return Limits{MaxUploadBytes: c.MaxUploadBytes, MaxFiles: c.MaxFiles}
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	runner   *tasks.JobRunner
	modes    Modes
	rankings Rankings
	history  History
	trigger  aggregate.Trigger
	limits   Limits
	logger   *log.Logger
	tempDir  string
}

// Option configures a [Server].
type Option func(*Server)

// WithRankings enables the top lists endpoint.
func WithRankings(r Rankings) Option {
	return func(s *Server) { s.rankings = r }
}

// WithHistory enables import listing and lookups of jobs this process did not run.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithTrigger rebuilds rankings after a mode change.
func WithTrigger(t aggregate.Trigger) Option {
	return func(s *Server) { s.trigger = t }
}

// WithLimits overrides the upload limits.
func WithLimits(l Limits) Option {
	return func(s *Server) { s.limits = l }
}

// WithLogger sets the request logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithTempDir sets where uploads are spooled. Defaults to the system temp dir.
func WithTempDir(dir string) Option {
	return func(s *Server) { s.tempDir = dir }
}

// New creates a server backed by runner and modes.
func New(runner *tasks.JobRunner, modes Modes, opts ...Option) *Server {
	s := &Server{runner: runner, modes: modes}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = shared.NewLogger(nil)
	}
	if s.limits.MaxUploadBytes <= 0 {
		s.limits.MaxUploadBytes = 512 << 20
	}
	if s.limits.MaxFiles <= 0 {
		s.limits.MaxFiles = 30
	}
	return s
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
