package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
)

// ImportJobRepository implements models.Repository[*models.ImportJob] for import run history.
type ImportJobRepository struct {
	db *sql.DB
}

// NewImportJobRepository creates a new ImportJobRepository with the given database connection
func NewImportJobRepository(db *sql.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

const importJobColumns = `
	id, user_id, platform, status, records_found, match_rate, duplicates_found,
	new_plays, superseded, resulting_mode, error, started_at, completed_at
`

// Create inserts a job, generating an ID when it has none
func (r *ImportJobRepository) Create(job *models.ImportJob) error {
	if job.ID() == "" {
		job.SetID(shared.GenerateID())
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	res := job.Result()
	query := `INSERT INTO import_jobs (` + importJobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		job.ID(),
		job.UserID(),
		string(job.Platform()),
		string(job.Status()),
		res.RecordsFound,
		res.MatchRatePercent,
		res.DuplicatesFound,
		res.NewPlaysAccepted,
		res.Superseded,
		nullEmpty(string(res.ResultingMode)),
		nullEmpty(job.ErrorText()),
		job.StartedAt(),
		job.CompletedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert import job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID
func (r *ImportJobRepository) Get(id string) (*models.ImportJob, error) {
	query := `SELECT ` + importJobColumns + ` FROM import_jobs WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// Update writes the job's status and result counters
func (r *ImportJobRepository) Update(job *models.ImportJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	res := job.Result()
	query := `
		UPDATE import_jobs
		SET status = ?, records_found = ?, match_rate = ?, duplicates_found = ?, new_plays = ?,
			superseded = ?, resulting_mode = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		string(job.Status()),
		res.RecordsFound,
		res.MatchRatePercent,
		res.DuplicatesFound,
		res.NewPlaysAccepted,
		res.Superseded,
		nullEmpty(string(res.ResultingMode)),
		nullEmpty(job.ErrorText()),
		job.CompletedAt(),
		job.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update import job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, job.ID())
	}
	return nil
}

// List retrieves jobs matching "user_id", "status" and "platform", newest first
func (r *ImportJobRepository) List(criteria map[string]any) ([]*models.ImportJob, error) {
	query := `SELECT ` + importJobColumns + ` FROM import_jobs WHERE 1 = 1`
	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	if platform, ok := criteria["platform"].(string); ok && platform != "" {
		query += " AND platform = ?"
		args = append(args, platform)
	}

	query += " ORDER BY started_at DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ImportJob
	for rows.Next() {
		job, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return jobs, nil
}

type jobScanner interface {
	Scan(dest ...any) error
}

// scanOne scans a single [sql.Row] into a [models.ImportJob]
func (r *ImportJobRepository) scanOne(row *sql.Row) (*models.ImportJob, error) {
	job, err := scanImportJob(row)
	if err == sql.ErrNoRows {
		return nil, shared.ErrJobNotFound
	}
	return job, err
}

// scanRow scans a row from [sql.Rows] into a [models.ImportJob]
func (r *ImportJobRepository) scanRow(rows *sql.Rows) (*models.ImportJob, error) {
	return scanImportJob(rows)
}

func scanImportJob(s jobScanner) (*models.ImportJob, error) {
	var (
		id, userID, platform, status string
		res                          models.ImportResult
		matchRate                    sql.NullFloat64
		resultingMode, errText       sql.NullString
		startedAt                    time.Time
		completedAt                  sql.NullTime
	)

	err := s.Scan(
		&id, &userID, &platform, &status, &res.RecordsFound, &matchRate, &res.DuplicatesFound,
		&res.NewPlaysAccepted, &res.Superseded, &resultingMode, &errText, &startedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan import job: %w", err)
	}

	job := models.NewImportJob(id, userID, models.Platform(platform))
	job.SetStartedAt(startedAt)

	res.JobID = id
	res.UserID = userID
	res.Platform = models.Platform(platform)
	res.Status = models.ImportStatus(status)
	if matchRate.Valid {
		rate := matchRate.Float64
		res.MatchRatePercent = &rate
	}
	if resultingMode.Valid {
		res.ResultingMode = models.DataSourceMode(resultingMode.String)
	}
	if errText.Valid {
		res.Error = errText.String
	}

	if completedAt.Valid {
		job.SetResult(res)
		job.SetCompletedAt(&completedAt.Time)
	} else {
		job.SetStatus(res.Status)
	}
	return job, nil
}
