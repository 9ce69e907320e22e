package importer

import (
	"testing"
	"time"

	"github.com/desertthunder/histx/internal/models"
)

func TestCanonicalize(t *testing.T) {
	at := time.Date(2022, 2, 2, 2, 2, 2, 0, time.FixedZone("CET", 3600))
	rec := func(artist *string, track string, ts time.Time, ms *int64, reason string) models.RawRecord {
		return models.RawRecord{Platform: models.PlatformSpotify, Artist: artist, Track: track, Timestamp: ts, MsPlayed: ms, EndReason: reason}
	}
	a := models.StringPtr("Artist")
	blank := models.StringPtr("   ")

	tests := []struct {
		name    string
		record  models.RawRecord
		opts    CanonicalOptions
		keep    bool
		dropped func(DropStats) int
	}{
		{"Valid", rec(a, "Song", at, models.Int64Ptr(1000), ""), CanonicalOptions{}, true, nil},
		{"No Track", rec(a, "  ", at, models.Int64Ptr(1000), ""), CanonicalOptions{}, false, func(d DropStats) int { return d.NoTrack }},
		{"No Artist", rec(nil, "Song", at, models.Int64Ptr(1000), ""), CanonicalOptions{}, false, func(d DropStats) int { return d.NoArtist }},
		{"Blank Artist", rec(blank, "Song", at, models.Int64Ptr(1000), ""), CanonicalOptions{}, false, func(d DropStats) int { return d.NoArtist }},
		{"No Timestamp", rec(a, "Song", time.Time{}, models.Int64Ptr(1000), ""), CanonicalOptions{}, false, func(d DropStats) int { return d.NoTimestamp }},
		{"Zero Duration", rec(a, "Song", at, models.Int64Ptr(0), "fwdbtn"), CanonicalOptions{}, false, func(d DropStats) int { return d.NoDuration }},
		{"Zero Duration Ended Naturally", rec(a, "Song", at, models.Int64Ptr(0), "trackdone"), CanonicalOptions{}, true, nil},
		{"Absent Duration Optional", rec(a, "Song", at, nil, ""), CanonicalOptions{}, true, nil},
		{"Absent Duration Required", rec(a, "Song", at, nil, ""), CanonicalOptions{DurationRequired: true}, false, func(d DropStats) int { return d.NoDuration }},
		{"Negative Duration Required", rec(a, "Song", at, models.Int64Ptr(-5), ""), CanonicalOptions{DurationRequired: true}, false, func(d DropStats) int { return d.NoDuration }},
		{"Too Short", rec(a, "Song", at, models.Int64Ptr(500), "endplay"), CanonicalOptions{MinPlayMs: 30000}, false, func(d DropStats) int { return d.TooShort }},
		{"Short But Natural", rec(a, "Song", at, models.Int64Ptr(500), "NATURAL_END_OF_TRACK"), CanonicalOptions{MinPlayMs: 30000}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plays, drops := canonicalize("u1", models.SourceImportedSpotify, []models.RawRecord{tt.record}, tt.opts)
			if tt.keep {
				if len(plays) != 1 {
					t.Fatalf("expected play kept, got drops %+v", drops)
				}
				if drops.Total() != 0 {
					t.Errorf("expected no drops, got %+v", drops)
				}
				return
			}
			if len(plays) != 0 {
				t.Fatalf("expected record dropped, got %+v", plays[0])
			}
			if tt.dropped(drops) != 1 || drops.Total() != 1 {
				t.Errorf("expected exactly one drop in the right counter, got %+v", drops)
			}
		})
	}
}

func TestCanonicalizeFields(t *testing.T) {
	at := time.Date(2022, 2, 2, 2, 2, 2, 0, time.FixedZone("CET", 3600))
	records := []models.RawRecord{{
		Platform:  models.PlatformSpotify,
		Artist:    models.StringPtr("  Artist "),
		Album:     models.StringPtr(" "),
		Track:     " Song ",
		Timestamp: at,
		MsPlayed:  models.Int64Ptr(1000),
	}}

	plays, _ := canonicalize("u1", models.SourceImportedSpotify, records, CanonicalOptions{ImportID: "job-9"})
	if len(plays) != 1 {
		t.Fatalf("expected 1 play, got %d", len(plays))
	}

	p := plays[0]
	if p.ID == "" {
		t.Error("expected generated id")
	}
	if p.UserID != "u1" || p.Source != models.SourceImportedSpotify || p.ImportID != "job-9" {
		t.Errorf("unexpected identity fields %+v", p)
	}
	if p.Artist != "Artist" || p.Track != "Song" {
		t.Errorf("expected trimmed names, got %q %q", p.Artist, p.Track)
	}
	if p.Album != nil {
		t.Errorf("expected blank album to be absent, got %q", *p.Album)
	}
	if p.PlayedAt.Location() != time.UTC || !p.PlayedAt.Equal(at) {
		t.Errorf("expected UTC instant equal to %s, got %s", at, p.PlayedAt)
	}
}
