package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/histx/internal/catalog"
	"github.com/desertthunder/histx/internal/models"
)

// TrackRepository is the local album and track to artist catalog.
//
// Rows are keyed by normalized album and track. It is filled from imports that
// carry an artist and from remote catalog hits, and read by the entity resolver.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// LookupArtist implements [catalog.Catalog].
func (r *TrackRepository) LookupArtist(ctx context.Context, album, track string) (string, error) {
	k := catalog.NewKey(album, track)

	var artist string
	err := r.db.QueryRowContext(ctx,
		`SELECT artist FROM tracks WHERE album_key = ? AND track_key = ?`, k.Album, k.Track,
	).Scan(&artist)
	if err == sql.ErrNoRows {
		return "", catalog.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query track catalog: %w", err)
	}
	return artist, nil
}

// SaveArtist implements [catalog.Store]. The latest artist saved for a pair wins.
func (r *TrackRepository) SaveArtist(ctx context.Context, album, track, artist, source string) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return saveArtist(ctx, tx, album, track, artist, source)
	})
}

// Learn records the album and track of every play that has one, so later imports without artists can resolve them.
func (r *TrackRepository) Learn(ctx context.Context, plays []models.Play) (int, error) {
	learned := 0
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, p := range plays {
			if p.Album == nil || p.Artist == "" || p.Track == "" {
				continue
			}
			if err := saveArtist(ctx, tx, *p.Album, p.Track, p.Artist, string(p.Source)); err != nil {
				return err
			}
			learned++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return learned, nil
}

// Count returns the number of catalog entries.
func (r *TrackRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return n, nil
}

func saveArtist(ctx context.Context, tx *sql.Tx, album, track, artist, source string) error {
	k := catalog.NewKey(album, track)
	if k.Track == "" || artist == "" {
		return nil
	}

	query := `
		INSERT INTO tracks (album_key, track_key, artist, album, track, hits, source, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(album_key, track_key) DO UPDATE SET
			hits = tracks.hits + 1,
			artist = excluded.artist,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, k.Album, k.Track, artist, album, track, source, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save track: %w", err)
	}
	return nil
}
