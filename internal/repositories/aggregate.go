package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ArtistCount is one row of a top-artists list.
type ArtistCount struct {
	Rank      int    `json:"rank"`
	Artist    string `json:"artist"`
	PlayCount int    `json:"play_count"`
	MsPlayed  int64  `json:"ms_played"`
}

// TrackCount is one row of a top-tracks list.
type TrackCount struct {
	Rank      int    `json:"rank"`
	Artist    string `json:"artist"`
	Track     string `json:"track"`
	PlayCount int    `json:"play_count"`
	MsPlayed  int64  `json:"ms_played"`
}

// AggregateRepository stores derived rankings. Each save replaces the user's previous lists.
type AggregateRepository struct {
	db *sql.DB
}

// NewAggregateRepository creates a new AggregateRepository with the given database connection
func NewAggregateRepository(db *sql.DB) *AggregateRepository {
	return &AggregateRepository{db: db}
}

// Replace swaps the user's top lists in one transaction.
func (r *AggregateRepository) Replace(ctx context.Context, userID string, artists []ArtistCount, tracks []TrackCount) error {
	now := time.Now().UTC()
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM top_artists WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to clear top artists: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM top_tracks WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to clear top tracks: %w", err)
		}

		for _, a := range artists {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO top_artists (user_id, rank, artist, play_count, ms_played, computed_at) VALUES (?, ?, ?, ?, ?, ?)`,
				userID, a.Rank, a.Artist, a.PlayCount, a.MsPlayed, now)
			if err != nil {
				return fmt.Errorf("failed to insert top artist: %w", err)
			}
		}

		for _, t := range tracks {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO top_tracks (user_id, rank, artist, track, play_count, ms_played, computed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				userID, t.Rank, t.Artist, t.Track, t.PlayCount, t.MsPlayed, now)
			if err != nil {
				return fmt.Errorf("failed to insert top track: %w", err)
			}
		}
		return nil
	})
}

// TopArtists returns up to limit artists in rank order.
func (r *AggregateRepository) TopArtists(ctx context.Context, userID string, limit int) ([]ArtistCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT rank, artist, play_count, ms_played FROM top_artists WHERE user_id = ? ORDER BY rank LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top artists: %w", err)
	}
	defer rows.Close()

	var out []ArtistCount
	for rows.Next() {
		var a ArtistCount
		if err := rows.Scan(&a.Rank, &a.Artist, &a.PlayCount, &a.MsPlayed); err != nil {
			return nil, fmt.Errorf("failed to scan top artist: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// TopTracks returns up to limit tracks in rank order.
func (r *AggregateRepository) TopTracks(ctx context.Context, userID string, limit int) ([]TrackCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT rank, artist, track, play_count, ms_played FROM top_tracks WHERE user_id = ? ORDER BY rank LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top tracks: %w", err)
	}
	defer rows.Close()

	var out []TrackCount
	for rows.Next() {
		var t TrackCount
		if err := rows.Scan(&t.Rank, &t.Artist, &t.Track, &t.PlayCount, &t.MsPlayed); err != nil {
			return nil, fmt.Errorf("failed to scan top track: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
