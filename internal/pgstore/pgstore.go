// Package pgstore is the PostgreSQL implementation of the import engine's store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
)

//go:embed schema.sql
var schema string

var playColumns = []string{
	"id", "user_id", "artist", "album", "track", "played_at", "ms_played", "source", "superseded_at", "stands_in_at", "import_id",
}

// Store keeps plays and data source modes in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, verifies the connection and creates tables if needed.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ReadAllPlays(ctx context.Context, userID string) ([]models.Play, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, artist, album, track, played_at, ms_played, source, superseded_at, stands_in_at, import_id
		FROM plays WHERE user_id = $1 ORDER BY played_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	var plays []models.Play
	for rows.Next() {
		var (
			p          models.Play
			source     string
			importID   *string
			superseded *time.Time
			standsIn   *time.Time
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Artist, &p.Album, &p.Track, &p.PlayedAt, &p.MsPlayed, &source, &superseded, &standsIn, &importID); err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}

		kind, err := models.ParseSourceKind(source)
		if err != nil {
			return nil, fmt.Errorf("failed to scan play %s: %w", p.ID, err)
		}
		p.Source = kind
		p.PlayedAt = p.PlayedAt.UTC()
		if superseded != nil {
			t := superseded.UTC()
			p.SupersededAt = &t
		}
		if standsIn != nil {
			t := standsIn.UTC()
			p.StandsInAt = &t
		}
		if importID != nil {
			p.ImportID = *importID
		}
		plays = append(plays, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return plays, nil
}

// BulkInsertPlays copies plays in a single transaction.
func (s *Store) BulkInsertPlays(ctx context.Context, userID string, plays []models.Play) error {
	for _, p := range plays {
		if p.UserID != userID {
			return fmt.Errorf("%w: play %s belongs to %q, not %q", shared.ErrInvalidInput, p.ID, p.UserID, userID)
		}
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID); err != nil {
			return fmt.Errorf("failed to ensure user: %w", err)
		}

		n, err := tx.CopyFrom(ctx, pgx.Identifier{"plays"}, playColumns, &playSource{plays: plays, userID: userID})
		if err != nil {
			return fmt.Errorf("failed to copy plays: %w", err)
		}
		if int(n) != len(plays) {
			return fmt.Errorf("failed to copy plays: copied %d of %d", n, len(plays))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrPersistFailed, err)
	}
	return nil
}

// MarkSuperseded sets the marker on unmarked plays of userID and returns how many changed.
func (s *Store) MarkSuperseded(ctx context.Context, userID string, ids []string) (int, error) {
	n, err := s.mark(ctx, `UPDATE plays SET superseded_at = NOW() WHERE user_id = $1 AND superseded_at IS NULL AND id = ANY($2)`, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark plays superseded: %w", err)
	}
	return n, nil
}

// MarkStandIns sets the stands-in marker on unmarked plays of userID and returns how many changed.
func (s *Store) MarkStandIns(ctx context.Context, userID string, ids []string) (int, error) {
	n, err := s.mark(ctx, `UPDATE plays SET stands_in_at = NOW() WHERE user_id = $1 AND stands_in_at IS NULL AND id = ANY($2)`, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stand-in plays: %w", err)
	}
	return n, nil
}

func (s *Store) mark(ctx context.Context, query, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, query, userID, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) GetDataSourceMode(ctx context.Context, userID string) (models.DataSourceMode, error) {
	var mode string
	err := s.pool.QueryRow(ctx, `SELECT data_source_mode FROM users WHERE id = $1`, userID).Scan(&mode)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ModeLiveOnly, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query data source mode: %w", err)
	}
	return models.ParseDataSourceMode(mode)
}

func (s *Store) SetDataSourceMode(ctx context.Context, userID string, mode models.DataSourceMode) error {
	if _, err := models.ParseDataSourceMode(string(mode)); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidMode, err)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, data_source_mode) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data_source_mode = EXCLUDED.data_source_mode, updated_at = NOW()`,
		userID, string(mode))
	if err != nil {
		return fmt.Errorf("failed to set data source mode: %w", err)
	}
	return nil
}

// playSource adapts a slice of plays to [pgx.CopyFromSource].
type playSource struct {
	plays  []models.Play
	userID string
	idx    int
}

func (s *playSource) Next() bool {
	s.idx++
	return s.idx <= len(s.plays)
}

func (s *playSource) Values() ([]any, error) {
	p := s.plays[s.idx-1]

	id := p.ID
	if id == "" {
		id = shared.GenerateID()
	}
	var importID *string
	if p.ImportID != "" {
		importID = &p.ImportID
	}

	return []any{id, s.userID, p.Artist, p.Album, p.Track, p.PlayedAt.UTC(), p.MsPlayed, string(p.Source), utcPtr(p.SupersededAt), utcPtr(p.StandsInAt), importID}, nil
}

func (s *playSource) Err() error {
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
