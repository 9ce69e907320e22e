package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
)

// markBatch bounds the number of ids per UPDATE so statements stay under SQLite's variable limit.
const markBatch = 500

// PlayRepository persists plays.
//
// Plays are never deleted. The only mutations after insert are the superseded_at and stands_in_at markers.
type PlayRepository struct {
	db *sql.DB
}

// NewPlayRepository creates a new PlayRepository with the given database connection
func NewPlayRepository(db *sql.DB) *PlayRepository {
	return &PlayRepository{db: db}
}

const playColumns = `id, user_id, artist, album, track, played_at, ms_played, source, superseded_at, stands_in_at, import_id`

// ReadAllPlays returns every play for userID ordered by time, superseded ones included.
func (r *PlayRepository) ReadAllPlays(ctx context.Context, userID string) ([]models.Play, error) {
	query := `SELECT ` + playColumns + ` FROM plays WHERE user_id = ? ORDER BY played_at, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	var plays []models.Play
	for rows.Next() {
		p, err := scanPlay(rows)
		if err != nil {
			return nil, err
		}
		plays = append(plays, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return plays, nil
}

// CountPlays returns the number of stored plays for userID.
func (r *PlayRepository) CountPlays(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM plays WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count plays: %w", err)
	}
	return n, nil
}

// BulkInsertPlays inserts plays in one transaction: either all are stored or none are.
//
// Every play must belong to userID.
func (r *PlayRepository) BulkInsertPlays(ctx context.Context, userID string, plays []models.Play) error {
	for _, p := range plays {
		if p.UserID != userID {
			return fmt.Errorf("%w: play %s belongs to %q, not %q", shared.ErrInvalidInput, p.ID, p.UserID, userID)
		}
	}

	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO plays (`+playColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range plays {
			id := p.ID
			if id == "" {
				id = shared.GenerateID()
			}
			_, err := stmt.ExecContext(ctx,
				id, userID, p.Artist, nullString(p.Album), p.Track,
				toMillis(p.PlayedAt), nullInt64(p.MsPlayed), string(p.Source),
				nullMillis(p.SupersededAt), nullMillis(p.StandsInAt), nullEmpty(p.ImportID),
			)
			if err != nil {
				return fmt.Errorf("failed to insert play %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrPersistFailed, err)
	}
	return nil
}

// MarkSuperseded sets the superseded marker on the given plays of userID and returns how many changed.
// Plays already marked keep their original marker.
func (r *PlayRepository) MarkSuperseded(ctx context.Context, userID string, ids []string) (int, error) {
	n, err := r.mark(ctx, "superseded_at", userID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark plays superseded: %w", err)
	}
	return n, nil
}

// MarkStandIns sets the stands-in marker on the given live plays of userID and returns how many changed.
func (r *PlayRepository) MarkStandIns(ctx context.Context, userID string, ids []string) (int, error) {
	n, err := r.mark(ctx, "stands_in_at", userID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stand-in plays: %w", err)
	}
	return n, nil
}

// mark stamps column with the current time on unmarked plays, in batches within one transaction.
func (r *PlayRepository) mark(ctx context.Context, column, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := toMillis(time.Now())

	total := 0
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for start := 0; start < len(ids); start += markBatch {
			end := min(start+markBatch, len(ids))
			batch := ids[start:end]

			args := make([]any, 0, len(batch)+2)
			args = append(args, now, userID)
			for _, id := range batch {
				args = append(args, id)
			}

			query := `UPDATE plays SET ` + column + ` = ? WHERE user_id = ? AND ` + column + ` IS NULL AND id IN (` +
				strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",") + `)`
			result, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get affected rows: %w", err)
			}
			total += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func scanPlay(rows *sql.Rows) (models.Play, error) {
	var (
		p            models.Play
		album        sql.NullString
		playedAt     int64
		msPlayed     sql.NullInt64
		source       string
		supersededAt sql.NullInt64
		standsInAt   sql.NullInt64
		importID     sql.NullString
	)

	err := rows.Scan(&p.ID, &p.UserID, &p.Artist, &album, &p.Track, &playedAt, &msPlayed, &source, &supersededAt, &standsInAt, &importID)
	if err != nil {
		return p, fmt.Errorf("failed to scan play: %w", err)
	}

	kind, err := models.ParseSourceKind(source)
	if err != nil {
		return p, fmt.Errorf("failed to scan play %s: %w", p.ID, err)
	}
	p.Source = kind
	p.PlayedAt = fromMillis(playedAt)

	if album.Valid {
		p.Album = &album.String
	}
	if msPlayed.Valid {
		p.MsPlayed = &msPlayed.Int64
	}
	if supersededAt.Valid {
		t := fromMillis(supersededAt.Int64)
		p.SupersededAt = &t
	}
	if standsInAt.Valid {
		t := fromMillis(standsInAt.Int64)
		p.StandsInAt = &t
	}
	if importID.Valid {
		p.ImportID = importID.String
	}
	return p, nil
}
