package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/histx/internal/catalog"
	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

var base = time.Date(2021, 6, 1, 8, 0, 0, 0, time.UTC)

func testPlay(userID, id string, source models.SourceKind, offset time.Duration) models.Play {
	ms := int64(180000)
	return models.Play{
		ID:       id,
		UserID:   userID,
		Artist:   "Sigur Rós",
		Album:    models.StringPtr("Takk..."),
		Track:    "Hoppípolla",
		PlayedAt: base.Add(offset),
		MsPlayed: &ms,
		Source:   source,
	}
}

func TestPlayRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("BulkInsert And Read", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlayRepository(db)
		plays := []models.Play{
			testPlay("u1", "p2", models.SourceImportedSpotify, time.Hour),
			testPlay("u1", "p1", models.SourceLive, 0),
		}
		plays[0].Album = nil
		plays[0].MsPlayed = nil
		plays[0].ImportID = "job-1"

		if err := repo.BulkInsertPlays(ctx, "u1", plays); err != nil {
			t.Fatalf("failed to insert plays: %v", err)
		}

		got, err := repo.ReadAllPlays(ctx, "u1")
		if err != nil {
			t.Fatalf("failed to read plays: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 plays, got %d", len(got))
		}
		if got[0].ID != "p1" || got[1].ID != "p2" {
			t.Errorf("expected plays ordered by time, got %s, %s", got[0].ID, got[1].ID)
		}
		if !got[0].PlayedAt.Equal(base) || got[0].PlayedAt.Location() != time.UTC {
			t.Errorf("expected UTC time %s, got %s", base, got[0].PlayedAt)
		}
		if got[0].Album == nil || *got[0].Album != "Takk..." {
			t.Errorf("expected album to round trip, got %v", got[0].Album)
		}
		if got[1].Album != nil || got[1].MsPlayed != nil {
			t.Errorf("expected null album and duration, got %v %v", got[1].Album, got[1].MsPlayed)
		}
		if got[1].ImportID != "job-1" || got[1].Source != models.SourceImportedSpotify {
			t.Errorf("unexpected import fields: %+v", got[1])
		}

		mode, err := NewUserRepository(db).GetDataSourceMode(ctx, "u1")
		if err != nil {
			t.Fatalf("failed to read mode: %v", err)
		}
		if mode != models.ModeLiveOnly {
			t.Errorf("expected bulk insert to create a live-only user, got %s", mode)
		}
	})

	t.Run("Users Are Isolated", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlayRepository(db)
		if err := repo.BulkInsertPlays(ctx, "u1", []models.Play{testPlay("u1", "a", models.SourceLive, 0)}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
		if err := repo.BulkInsertPlays(ctx, "u2", []models.Play{testPlay("u2", "b", models.SourceLive, 0)}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		got, err := repo.ReadAllPlays(ctx, "u2")
		if err != nil {
			t.Fatalf("failed to read: %v", err)
		}
		if len(got) != 1 || got[0].ID != "b" {
			t.Errorf("expected only u2's play, got %+v", got)
		}
	})

	t.Run("BulkInsert Rejects Other Users", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlayRepository(db)
		err := repo.BulkInsertPlays(ctx, "u1", []models.Play{testPlay("u2", "x", models.SourceLive, 0)})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("BulkInsert Is Atomic", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlayRepository(db)
		plays := []models.Play{
			testPlay("u1", "same", models.SourceLive, 0),
			testPlay("u1", "other", models.SourceLive, time.Minute),
			testPlay("u1", "same", models.SourceLive, 2*time.Minute),
		}

		err := repo.BulkInsertPlays(ctx, "u1", plays)
		if !errors.Is(err, shared.ErrPersistFailed) {
			t.Fatalf("expected ErrPersistFailed, got %v", err)
		}

		n, err := repo.CountPlays(ctx, "u1")
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if n != 0 {
			t.Errorf("expected no plays after failed insert, got %d", n)
		}
	})

	t.Run("MarkSuperseded", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlayRepository(db)
		plays := []models.Play{
			testPlay("u1", "l1", models.SourceLive, 0),
			testPlay("u1", "l2", models.SourceLive, time.Minute),
			testPlay("u2", "l3", models.SourceLive, 0),
		}
		if err := repo.BulkInsertPlays(ctx, "u1", plays[:2]); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
		if err := repo.BulkInsertPlays(ctx, "u2", plays[2:]); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		n, err := repo.MarkSuperseded(ctx, "u1", []string{"l1", "l3"})
		if err != nil {
			t.Fatalf("failed to mark: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 play marked (l3 belongs to u2), got %d", n)
		}

		again, err := repo.MarkSuperseded(ctx, "u1", []string{"l1"})
		if err != nil {
			t.Fatalf("failed to mark again: %v", err)
		}
		if again != 0 {
			t.Errorf("expected already superseded play to be left alone, got %d", again)
		}

		got, _ := repo.ReadAllPlays(ctx, "u1")
		if len(got) != 2 {
			t.Fatalf("expected marking to keep every row, got %d", len(got))
		}
		if !got[0].Superseded() || got[1].Superseded() {
			t.Errorf("expected only l1 superseded, got %v %v", got[0].SupersededAt, got[1].SupersededAt)
		}

		other, _ := repo.ReadAllPlays(ctx, "u2")
		if other[0].Superseded() {
			t.Error("expected other user's play untouched")
		}
	})

	t.Run("MarkSuperseded In Batches", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPlayRepository(db)
		var plays []models.Play
		var ids []string
		for i := range markBatch + 20 {
			id := shared.GenerateID()
			plays = append(plays, testPlay("u1", id, models.SourceLive, time.Duration(i)*time.Minute))
			ids = append(ids, id)
		}
		if err := repo.BulkInsertPlays(ctx, "u1", plays); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		n, err := repo.MarkSuperseded(ctx, "u1", ids)
		if err != nil {
			t.Fatalf("failed to mark: %v", err)
		}
		if n != len(ids) {
			t.Errorf("expected %d marked, got %d", len(ids), n)
		}
	})
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create And Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		if err := repo.Create(models.NewUser("u1")); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}

		got, err := repo.Get("u1")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if got.Mode() != models.ModeLiveOnly {
			t.Errorf("expected live-only, got %s", got.Mode())
		}
	})

	t.Run("Get Missing", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if _, err := NewUserRepository(db).Get("nobody"); !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("Mode Defaults And Updates", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewUserRepository(db)
		mode, err := repo.GetDataSourceMode(ctx, "new-user")
		if err != nil {
			t.Fatalf("failed to get mode: %v", err)
		}
		if mode != models.ModeLiveOnly {
			t.Errorf("expected live-only for unknown user, got %s", mode)
		}

		if err := repo.SetDataSourceMode(ctx, "new-user", models.ModeFullImportedThenLive); err != nil {
			t.Fatalf("failed to set mode: %v", err)
		}
		if err := repo.SetDataSourceMode(ctx, "new-user", models.ModeImportedUntilLiveStarted); err != nil {
			t.Fatalf("failed to set mode again: %v", err)
		}

		mode, _ = repo.GetDataSourceMode(ctx, "new-user")
		if mode != models.ModeImportedUntilLiveStarted {
			t.Errorf("expected imported-until-live-started, got %s", mode)
		}

		users, err := repo.List(map[string]any{"mode": string(models.ModeImportedUntilLiveStarted)})
		if err != nil {
			t.Fatalf("failed to list users: %v", err)
		}
		if len(users) != 1 {
			t.Errorf("expected one user in mode, got %d", len(users))
		}
	})

	t.Run("Invalid Mode", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		err := NewUserRepository(db).SetDataSourceMode(ctx, "u1", models.DataSourceMode("sometimes"))
		if !errors.Is(err, shared.ErrInvalidMode) {
			t.Errorf("expected ErrInvalidMode, got %v", err)
		}
	})

	t.Run("Update Missing", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if err := NewUserRepository(db).Update(models.NewUser("ghost")); !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})
}

func TestImportJobRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewImportJobRepository(db)
	job := models.NewImportJob("", "u1", models.PlatformAppleMusic)

	if err := repo.Create(job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	if job.ID() == "" {
		t.Fatal("expected ID to be generated")
	}

	running, err := repo.Get(job.ID())
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if running.Status() != models.StatusRunning || running.CompletedAt() != nil {
		t.Errorf("expected running job, got %s", running.Status())
	}

	rate := 92.5
	job.SetResult(models.ImportResult{
		Status:           models.StatusSuccess,
		RecordsFound:     10,
		MatchRatePercent: &rate,
		DuplicatesFound:  2,
		NewPlaysAccepted: 7,
		ResultingMode:    models.ModeImportedUntilLiveStarted,
	})
	if err := repo.Update(job); err != nil {
		t.Fatalf("failed to update job: %v", err)
	}

	done, err := repo.Get(job.ID())
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	res := done.Result()
	if done.Status() != models.StatusSuccess || res.NewPlaysAccepted != 7 || res.DuplicatesFound != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.MatchRatePercent == nil || *res.MatchRatePercent != 92.5 {
		t.Errorf("expected match rate 92.5, got %v", res.MatchRatePercent)
	}
	if res.ResultingMode != models.ModeImportedUntilLiveStarted {
		t.Errorf("expected resulting mode, got %s", res.ResultingMode)
	}
	if done.CompletedAt() == nil {
		t.Error("expected completion time")
	}

	jobs, err := repo.List(map[string]any{"user_id": "u1", "status": string(models.StatusSuccess)})
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("expected 1 job, got %d", len(jobs))
	}

	if _, err := repo.Get("missing"); !errors.Is(err, shared.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestTrackRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewTrackRepository(db)
	if _, err := repo.LookupArtist(ctx, "Takk...", "Hoppípolla"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	plays := []models.Play{
		testPlay("u1", "p1", models.SourceImportedSpotify, 0),
		testPlay("u1", "p2", models.SourceImportedSpotify, time.Hour),
		{ID: "p3", UserID: "u1", Artist: "No Album", Track: "Song", PlayedAt: base, Source: models.SourceImportedSpotify},
	}
	n, err := repo.Learn(ctx, plays)
	if err != nil {
		t.Fatalf("failed to learn: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 learned, got %d", n)
	}

	got, err := repo.LookupArtist(ctx, "takk", "hoppipolla")
	if err != nil {
		t.Fatalf("failed to look up: %v", err)
	}
	if got != "Sigur Rós" {
		t.Errorf("expected Sigur Rós, got %s", got)
	}

	if count, _ := repo.Count(ctx); count != 1 {
		t.Errorf("expected 1 catalog row, got %d", count)
	}

	if err := repo.SaveArtist(ctx, "Kid A", "Idioteque", "Radiohead", "lastfm"); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if got, _ := repo.LookupArtist(ctx, "Kid A", "Idioteque"); got != "Radiohead" {
		t.Errorf("expected Radiohead, got %s", got)
	}
}

func TestAggregateRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAggregateRepository(db)
	artists := []ArtistCount{{Rank: 1, Artist: "A", PlayCount: 3}, {Rank: 2, Artist: "B", PlayCount: 1}}
	tracks := []TrackCount{{Rank: 1, Artist: "A", Track: "x", PlayCount: 2}}

	if err := repo.Replace(ctx, "u1", artists, tracks); err != nil {
		t.Fatalf("failed to replace: %v", err)
	}
	if err := repo.Replace(ctx, "u1", artists[:1], tracks); err != nil {
		t.Fatalf("failed to replace again: %v", err)
	}

	gotArtists, err := repo.TopArtists(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("failed to read artists: %v", err)
	}
	if len(gotArtists) != 1 || gotArtists[0].Artist != "A" {
		t.Errorf("expected lists to be replaced, got %+v", gotArtists)
	}

	gotTracks, err := repo.TopTracks(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("failed to read tracks: %v", err)
	}
	if len(gotTracks) != 1 || gotTracks[0].Track != "x" {
		t.Errorf("unexpected tracks %+v", gotTracks)
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	s := NewStore(db)
	if err := s.BulkInsertPlays(ctx, "u1", []models.Play{testPlay("u1", "l1", models.SourceLive, 0)}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if err := s.SetDataSourceMode(ctx, "u1", models.ModeFullImportedThenLive); err != nil {
		t.Fatalf("failed to set mode: %v", err)
	}
	if n, err := s.MarkSuperseded(ctx, "u1", []string{"l1"}); err != nil || n != 1 {
		t.Fatalf("expected 1 marked, got %d (%v)", n, err)
	}

	plays, err := s.ReadAllPlays(ctx, "u1")
	if err != nil || len(plays) != 1 || !plays[0].Superseded() {
		t.Errorf("expected one superseded play, got %+v (%v)", plays, err)
	}
	if mode, _ := s.GetDataSourceMode(ctx, "u1"); mode != models.ModeFullImportedThenLive {
		t.Errorf("expected full-imported-then-live, got %s", mode)
	}
}
