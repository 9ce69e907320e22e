package repositories

import (
	"context"
	"database/sql"

	"github.com/desertthunder/histx/internal/models"
)

// Store is the SQLite implementation of the import engine's storage contract.
type Store struct {
	plays *PlayRepository
	users *UserRepository
}

// NewStore wires play and user repositories over db.
func NewStore(db *sql.DB) *Store {
	return &Store{plays: NewPlayRepository(db), users: NewUserRepository(db)}
}

func (s *Store) ReadAllPlays(ctx context.Context, userID string) ([]models.Play, error) {
	return s.plays.ReadAllPlays(ctx, userID)
}

func (s *Store) BulkInsertPlays(ctx context.Context, userID string, plays []models.Play) error {
	return s.plays.BulkInsertPlays(ctx, userID, plays)
}

func (s *Store) MarkSuperseded(ctx context.Context, userID string, ids []string) (int, error) {
	return s.plays.MarkSuperseded(ctx, userID, ids)
}

func (s *Store) MarkStandIns(ctx context.Context, userID string, ids []string) (int, error) {
	return s.plays.MarkStandIns(ctx, userID, ids)
}

func (s *Store) GetDataSourceMode(ctx context.Context, userID string) (models.DataSourceMode, error) {
	return s.users.GetDataSourceMode(ctx, userID)
}

func (s *Store) SetDataSourceMode(ctx context.Context, userID string, mode models.DataSourceMode) error {
	return s.users.SetDataSourceMode(ctx, userID, mode)
}
