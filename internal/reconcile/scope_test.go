package reconcile

import (
	"testing"
	"time"

	"github.com/desertthunder/histx/internal/models"
)

func ids(plays []models.Play) map[string]bool {
	out := make(map[string]bool, len(plays))
	for _, pl := range plays {
		out[pl.ID] = true
	}
	return out
}

func TestScope(t *testing.T) {
	marked := base
	superseded := p("l-superseded", models.SourceLive, 2*time.Hour)
	superseded.SupersededAt = &marked

	plays := []models.Play{
		p("i-early", models.SourceImportedSpotify, 0),
		p("i-late", models.SourceImportedAppleMusic, 5*time.Hour),
		p("l-first", models.SourceLive, 3*time.Hour),
		superseded,
		p("l-later", models.SourceLive, 6*time.Hour),
	}

	tc := []struct {
		mode models.DataSourceMode
		want []string
	}{
		{models.ModeLiveOnly, []string{"l-first", "l-superseded", "l-later"}},
		{models.ModeImportedUntilLiveStarted, []string{"i-early", "l-first", "l-later"}},
		{models.ModeFullImportedThenLive, []string{"i-early", "i-late", "l-later"}},
	}

	for _, tt := range tc {
		t.Run(string(tt.mode), func(t *testing.T) {
			got := ids(Scope(tt.mode, plays))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d plays, got %d (%v)", len(tt.want), len(got), got)
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("expected %s in scope", id)
				}
			}
		})
	}

	t.Run("Until Live Without Live Plays", func(t *testing.T) {
		got := Scope(models.ModeImportedUntilLiveStarted, plays[:2])
		if len(got) != 2 {
			t.Errorf("expected all imported plays when nothing is live, got %d", len(got))
		}
	})

	t.Run("Full Without Imported Plays", func(t *testing.T) {
		got := ids(Scope(models.ModeFullImportedThenLive, plays[2:]))
		if len(got) != 3 {
			t.Errorf("expected every live play when nothing is imported, got %v", got)
		}
	})
}

func TestScope_FullImportedThenLive(t *testing.T) {
	marked := base
	standIn := p("live-stand-in", models.SourceLive, 5*time.Hour-10*time.Second)
	standIn.StandsInAt = &marked

	tc := []struct {
		name  string
		plays []models.Play
		want  []string
	}{
		{
			name: "Live Before Import Is Not Counted",
			plays: []models.Play{
				p("live-before", models.SourceLive, -48*time.Hour),
				p("i-first", models.SourceImportedSpotify, 0),
				p("i-last", models.SourceImportedSpotify, 5*time.Hour),
				p("live-after", models.SourceLive, 6*time.Hour),
			},
			want: []string{"i-first", "i-last", "live-after"},
		},
		{
			name: "Unmarked Live Inside Imported Period",
			plays: []models.Play{
				p("i-a", models.SourceImportedSpotify, 0),
				p("live-gap", models.SourceLive, 2*time.Hour),
				p("i-b", models.SourceImportedSpotify, 5*time.Hour),
				p("live-same-listen", models.SourceLive, 5*time.Hour-2*time.Minute),
			},
			want: []string{"i-a", "i-b"},
		},
		{
			name: "Stand-In Counts For Dropped Import",
			plays: []models.Play{
				p("i-a", models.SourceImportedSpotify, 0),
				standIn,
				p("i-b", models.SourceImportedAppleMusic, 5*time.Hour),
			},
			want: []string{"i-a", "live-stand-in", "i-b"},
		},
		{
			name: "Live At Cutoff Is Excluded",
			plays: []models.Play{
				p("i-a", models.SourceImportedSpotify, time.Hour),
				p("live-at-end", models.SourceLive, time.Hour),
				p("live-next", models.SourceLive, time.Hour+time.Millisecond),
			},
			want: []string{"i-a", "live-next"},
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Scope(models.ModeFullImportedThenLive, tt.plays))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("expected %s in scope", id)
				}
			}
		})
	}

	t.Run("Superseded Marker Does Not Hide Later Live Plays", func(t *testing.T) {
		l := p("live-after", models.SourceLive, 6*time.Hour)
		l.SupersededAt = &marked
		got := ids(Scope(models.ModeFullImportedThenLive, []models.Play{p("i", models.SourceImportedSpotify, 0), l}))
		if !got["live-after"] {
			t.Errorf("expected live play after the import to count, got %v", got)
		}
	})
}
