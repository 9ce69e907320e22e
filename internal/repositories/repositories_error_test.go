package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
)

func TestPlayRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("BulkInsert Rolls Back On Failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create sqlmock: %v", err)
		}
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).WillReturnResult(sqlmock.NewResult(0, 1))
		prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO plays"))
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		repo := NewPlayRepository(db)
		plays := []models.Play{
			testPlay("u1", "a", models.SourceImportedSpotify, 0),
			testPlay("u1", "b", models.SourceImportedSpotify, time.Minute),
		}

		err = repo.BulkInsertPlays(ctx, "u1", plays)
		if !errors.Is(err, shared.ErrPersistFailed) {
			t.Fatalf("expected ErrPersistFailed, got %v", err)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("BulkInsert Commit Failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create sqlmock: %v", err)
		}
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).WillReturnResult(sqlmock.NewResult(0, 1))
		prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO plays"))
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit().WillReturnError(errors.New("locked"))

		err = NewPlayRepository(db).BulkInsertPlays(ctx, "u1", []models.Play{testPlay("u1", "a", models.SourceLive, 0)})
		if !errors.Is(err, shared.ErrPersistFailed) {
			t.Fatalf("expected ErrPersistFailed, got %v", err)
		}
	})

	t.Run("Begin Failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create sqlmock: %v", err)
		}
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errors.New("no connection"))

		if err := NewPlayRepository(db).BulkInsertPlays(ctx, "u1", nil); err == nil {
			t.Fatal("expected error when transaction cannot begin")
		}
	})

	t.Run("ReadAllPlays Query Failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create sqlmock: %v", err)
		}
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id")).WillReturnError(errors.New("gone"))

		if _, err := NewPlayRepository(db).ReadAllPlays(ctx, "u1"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("ReadAllPlays Unknown Source", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create sqlmock: %v", err)
		}
		defer db.Close()

		rows := sqlmock.NewRows([]string{"id", "user_id", "artist", "album", "track", "played_at", "ms_played", "source", "superseded_at", "stands_in_at", "import_id"}).
			AddRow("p1", "u1", "A", nil, "T", int64(0), nil, "radio", nil, nil, nil)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id")).WillReturnRows(rows)

		if _, err := NewPlayRepository(db).ReadAllPlays(ctx, "u1"); err == nil {
			t.Fatal("expected error for unknown source kind")
		}
	})

	t.Run("MarkSuperseded Rolls Back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("failed to create sqlmock: %v", err)
		}
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE plays SET superseded_at")).WillReturnError(errors.New("busy"))
		mock.ExpectRollback()

		if _, err := NewPlayRepository(db).MarkSuperseded(ctx, "u1", []string{"a"}); err == nil {
			t.Fatal("expected error")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestUserRepositoryErrors(t *testing.T) {
	t.Run("Create Validation", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if err := NewUserRepository(db).Create(models.NewUser("")); err == nil {
			t.Fatal("expected validation error for empty id")
		}
	})

	t.Run("Create Duplicate", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		if err := repo.Create(models.NewUser("u1")); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
		if err := repo.Create(models.NewUser("u1")); err == nil {
			t.Fatal("expected error for duplicate user")
		}
	})

	t.Run("Corrupt Mode", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if _, err := db.Exec(`INSERT INTO users (id, data_source_mode) VALUES ('u1', 'bogus')`); err != nil {
			t.Fatalf("failed to seed user: %v", err)
		}
		if _, err := NewUserRepository(db).GetDataSourceMode(context.Background(), "u1"); err == nil {
			t.Fatal("expected error for unknown stored mode")
		}
	})
}

func TestImportJobRepositoryErrors(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewImportJobRepository(db)

	if err := repo.Create(models.NewImportJob("j1", "", models.PlatformSpotify)); err == nil {
		t.Error("expected validation error for missing user")
	}
	if err := repo.Create(models.NewImportJob("j2", "u1", models.Platform("tidal"))); err == nil {
		t.Error("expected validation error for unknown platform")
	}

	job := models.NewImportJob("j3", "u1", models.PlatformSpotify)
	if err := repo.Update(job); !errors.Is(err, shared.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
