package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
)

// UserRepository implements [models.Repository] for user [models.User] persistence.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user
func (r *UserRepository) Create(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `INSERT INTO users (id, data_source_mode, created_at, updated_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.Exec(query, user.ID(), string(user.Mode()), user.CreatedAt(), user.UpdatedAt()); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(id string) (*models.User, error) {
	query := `SELECT id, data_source_mode, created_at, updated_at FROM users WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// Update persists the user's mode
func (r *UserRepository) Update(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	result, err := r.db.Exec(`UPDATE users SET data_source_mode = ?, updated_at = ? WHERE id = ?`, string(user.Mode()), now, user.ID())
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, user.ID())
	}
	user.SetUpdatedAt(now)
	return nil
}

// List retrieves users, optionally filtered by "mode"
func (r *UserRepository) List(criteria map[string]any) ([]*models.User, error) {
	query := `SELECT id, data_source_mode, created_at, updated_at FROM users WHERE 1 = 1`
	args := []any{}

	if mode, ok := criteria["mode"].(string); ok && mode != "" {
		query += " AND data_source_mode = ?"
		args = append(args, mode)
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return users, nil
}

// GetDataSourceMode returns the user's mode, or live-only for users never seen.
func (r *UserRepository) GetDataSourceMode(ctx context.Context, userID string) (models.DataSourceMode, error) {
	var mode string
	err := r.db.QueryRowContext(ctx, `SELECT data_source_mode FROM users WHERE id = ?`, userID).Scan(&mode)
	if err == sql.ErrNoRows {
		return models.ModeLiveOnly, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query data source mode: %w", err)
	}
	return models.ParseDataSourceMode(mode)
}

// SetDataSourceMode stores mode, creating the user if needed.
func (r *UserRepository) SetDataSourceMode(ctx context.Context, userID string, mode models.DataSourceMode) error {
	if _, err := models.ParseDataSourceMode(string(mode)); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidMode, err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, data_source_mode, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data_source_mode = excluded.data_source_mode, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, userID, string(mode), now, now); err != nil {
		return fmt.Errorf("failed to set data source mode: %w", err)
	}
	return nil
}

// ensureUser creates a live-only user row inside tx if none exists.
func ensureUser(ctx context.Context, tx *sql.Tx, userID string) error {
	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, data_source_mode, created_at, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		userID, string(models.ModeLiveOnly), now, now)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// scanOne scans a single [sql.Row] into a [models.User]
func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	var (
		id        string
		mode      string
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(&id, &mode, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return buildUser(id, mode, createdAt, updatedAt)
}

// scanRow scans a row from [sql.Rows] into a [models.User]
func (r *UserRepository) scanRow(rows *sql.Rows) (*models.User, error) {
	var (
		id        string
		mode      string
		createdAt time.Time
		updatedAt time.Time
	)

	if err := rows.Scan(&id, &mode, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return buildUser(id, mode, createdAt, updatedAt)
}

func buildUser(id, mode string, createdAt, updatedAt time.Time) (*models.User, error) {
	m, err := models.ParseDataSourceMode(mode)
	if err != nil {
		return nil, fmt.Errorf("failed to scan user %s: %w", id, err)
	}
	user := models.NewUser(id)
	user.SetMode(m)
	user.SetCreatedAt(createdAt)
	user.SetUpdatedAt(updatedAt)
	return user, nil
}
