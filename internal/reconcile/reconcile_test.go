package reconcile

import (
	"testing"
	"time"

	"github.com/desertthunder/histx/internal/dedup"
	"github.com/desertthunder/histx/internal/models"
)

var base = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

func p(id string, source models.SourceKind, offset time.Duration) models.Play {
	return models.Play{ID: id, UserID: "u", Artist: "A", Track: id, PlayedAt: base.Add(offset), Source: source}
}

func TestNextMode(t *testing.T) {
	tc := []struct {
		current models.DataSourceMode
		overlap bool
		want    models.DataSourceMode
	}{
		{models.ModeLiveOnly, false, models.ModeImportedUntilLiveStarted},
		{models.ModeLiveOnly, true, models.ModeFullImportedThenLive},
		{models.ModeImportedUntilLiveStarted, false, models.ModeImportedUntilLiveStarted},
		{models.ModeImportedUntilLiveStarted, true, models.ModeImportedUntilLiveStarted},
		{models.ModeFullImportedThenLive, false, models.ModeFullImportedThenLive},
		{models.ModeFullImportedThenLive, true, models.ModeFullImportedThenLive},
	}

	for _, tt := range tc {
		t.Run(string(tt.current), func(t *testing.T) {
			for range 3 {
				if got := NextMode(tt.current, tt.overlap); got != tt.want {
					t.Errorf("NextMode(%s, %v) = %s, want %s", tt.current, tt.overlap, got, tt.want)
				}
			}
		})
	}
}

func TestDecide(t *testing.T) {
	t.Run("First Import Without Live History", func(t *testing.T) {
		canonical := []models.Play{p("i1", models.SourceImportedSpotify, 0), p("i2", models.SourceImportedSpotify, time.Hour)}

		plan := Decide(models.ModeLiveOnly, nil, canonical, nil)
		if plan.Next != models.ModeImportedUntilLiveStarted {
			t.Errorf("expected imported-until-live-started, got %s", plan.Next)
		}
		if plan.Overlap || len(plan.Supersede) != 0 {
			t.Errorf("expected no overlap and nothing superseded, got %+v", plan)
		}
	})

	t.Run("Live History After Import Is Not Overlap", func(t *testing.T) {
		existing := []models.Play{p("l1", models.SourceLive, 48*time.Hour)}
		canonical := []models.Play{p("i1", models.SourceImportedSpotify, 0), p("i2", models.SourceImportedSpotify, time.Hour)}

		plan := Decide(models.ModeLiveOnly, existing, canonical, nil)
		if plan.Next != models.ModeImportedUntilLiveStarted {
			t.Errorf("expected imported-until-live-started, got %s", plan.Next)
		}
	})

	t.Run("First Import Overlapping Live History", func(t *testing.T) {
		existing := []models.Play{
			p("l-before", models.SourceLive, -time.Hour),
			p("l-inside", models.SourceLive, 30*time.Minute),
			p("l-matched", models.SourceLive, 45*time.Minute),
			p("l-after", models.SourceLive, 3*time.Hour),
		}
		canonical := []models.Play{
			p("i1", models.SourceImportedSpotify, 0),
			p("i-dup", models.SourceImportedSpotify, 45*time.Minute),
			p("i2", models.SourceImportedSpotify, 2*time.Hour),
		}
		matches := []dedup.Match{{Candidate: canonical[1], Existing: existing[2]}}

		plan := Decide(models.ModeLiveOnly, existing, canonical, matches)
		if plan.Next != models.ModeFullImportedThenLive {
			t.Fatalf("expected full-imported-then-live, got %s", plan.Next)
		}
		if len(plan.Supersede) != 1 || plan.Supersede[0] != "l-inside" {
			t.Errorf("expected only l-inside superseded, got %v", plan.Supersede)
		}
		if len(plan.Retained) != 1 || plan.Retained[0] != "l-matched" {
			t.Errorf("expected l-matched retained, got %v", plan.Retained)
		}
		if !plan.Changed() {
			t.Error("expected mode change")
		}
	})

	t.Run("Re-import Keeps Mode", func(t *testing.T) {
		existing := []models.Play{p("l1", models.SourceLive, 30*time.Minute)}
		canonical := []models.Play{p("i1", models.SourceImportedSpotify, 0), p("i2", models.SourceImportedSpotify, time.Hour)}

		plan := Decide(models.ModeImportedUntilLiveStarted, existing, canonical, nil)
		if plan.Next != models.ModeImportedUntilLiveStarted || plan.Changed() {
			t.Errorf("expected mode unchanged, got %s", plan.Next)
		}
		if len(plan.Supersede) != 0 {
			t.Errorf("expected nothing superseded outside full mode, got %v", plan.Supersede)
		}
	})

	t.Run("Stand-Ins Recorded In Every Mode", func(t *testing.T) {
		existing := []models.Play{p("l-early", models.SourceLive, -time.Hour), p("l-matched", models.SourceLive, 3*time.Hour)}
		canonical := []models.Play{p("i1", models.SourceImportedSpotify, 0), p("i-dup", models.SourceImportedSpotify, 3*time.Hour)}
		matches := []dedup.Match{{Candidate: canonical[1], Existing: existing[1]}}

		plan := Decide(models.ModeImportedUntilLiveStarted, existing, canonical, matches)
		if len(plan.Retained) != 1 || plan.Retained[0] != "l-matched" {
			t.Errorf("expected l-matched retained, got %v", plan.Retained)
		}

		at := base
		existing[1].StandsInAt = &at
		matches[0].Existing = existing[1]
		if plan := Decide(models.ModeImportedUntilLiveStarted, existing, canonical, matches); len(plan.Retained) != 0 {
			t.Errorf("expected an existing stand-in not to be marked again, got %v", plan.Retained)
		}
	})

	t.Run("Already Superseded Plays Are Left Alone", func(t *testing.T) {
		at := base
		l := p("l1", models.SourceLive, 10*time.Minute)
		l.SupersededAt = &at
		canonical := []models.Play{p("i1", models.SourceImportedSpotify, 0), p("i2", models.SourceImportedSpotify, time.Hour)}

		plan := Decide(models.ModeFullImportedThenLive, []models.Play{l}, canonical, nil)
		if plan.Overlap || len(plan.Supersede) != 0 {
			t.Errorf("expected superseded play to be ignored, got %+v", plan)
		}
	})

	t.Run("Empty Import", func(t *testing.T) {
		plan := Decide(models.ModeLiveOnly, nil, nil, nil)
		if plan.Next != models.ModeLiveOnly {
			t.Errorf("expected mode unchanged for empty import, got %s", plan.Next)
		}
	})
}

func TestSpan(t *testing.T) {
	s, ok := SpanOf([]models.Play{p("b", models.SourceLive, time.Hour), p("a", models.SourceLive, 0), p("c", models.SourceLive, 2*time.Hour)})
	if !ok {
		t.Fatal("expected span")
	}
	if !s.Start.Equal(base) || !s.End.Equal(base.Add(2*time.Hour)) {
		t.Errorf("unexpected span %v", s)
	}
	if !s.Contains(base) || !s.Contains(base.Add(2*time.Hour)) {
		t.Error("expected bounds to be inclusive")
	}
	if s.Contains(base.Add(-time.Nanosecond)) {
		t.Error("expected time before start to be outside")
	}
}
