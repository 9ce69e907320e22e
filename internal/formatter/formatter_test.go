package formatter

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/repositories"
	tu "github.com/desertthunder/histx/internal/testing"
)

func strPtr(s string) *string { return &s }
func int64Ptr(n int64) *int64 { return &n }

func samplePlays() []models.Play {
	superseded := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []models.Play{
		{
			ID:       "p1",
			UserID:   "u1",
			Artist:   "Sigur Rós",
			Album:    strPtr("Ágætis byrjun"),
			Track:    "Svefn-g-englar",
			PlayedAt: time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC),
			MsPlayed: int64Ptr(600000),
			Source:   models.SourceImportedSpotify,
		},
		{
			ID:           "p2",
			UserID:       "u1",
			Artist:       "Radiohead",
			Track:        "Airbag, Live",
			PlayedAt:     time.Date(2020, 5, 1, 12, 10, 0, 0, time.UTC),
			Source:       models.SourceLive,
			SupersededAt: &superseded,
		},
	}
}

func sampleResult() models.ImportResult {
	rate := 87.5
	return models.ImportResult{
		JobID:            "job-1",
		UserID:           "u1",
		Platform:         models.PlatformAppleMusic,
		Status:           models.StatusSuccess,
		RecordsFound:     8,
		MatchRatePercent: &rate,
		DuplicatesFound:  2,
		NewPlaysAccepted: 5,
		Superseded:       1,
		ResultingMode:    models.ModeFullImportedThenLive,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"txt", FormatText, false},
		{"json", FormatJSON, false},
		{"md", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"csv", FormatCSV, false},
		{"yaml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0s"},
		{42000, "42s"},
		{185000, "3m 05s"},
		{3720000, "1h 02m"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d): expected %q, got %q", tt.ms, tt.want, got)
		}
	}
}

func TestRenderResult(t *testing.T) {
	t.Run("Text", func(t *testing.T) {
		output := string(ResultToText(sampleResult()))
		for _, want := range []string{"Import job-1: success", "Apple Music", "87.5%", "New plays: 5", "superseded: 1"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected %q in output, got:\n%s", want, output)
			}
		}
		if strings.Contains(output, "Error:") {
			t.Error("expected no error section on success")
		}
	})

	t.Run("Text Failure", func(t *testing.T) {
		res := models.ImportResult{
			JobID:    "job-2",
			Platform: models.PlatformSpotify,
			Status:   models.StatusWrongPackageFailure,
			Error:    "account data export",
			Guidance: "Request Extended streaming history",
		}
		output := string(ResultToText(res))
		if !strings.Contains(output, "Error: account data export") || !strings.Contains(output, "Extended streaming history") {
			t.Errorf("expected error and guidance, got:\n%s", output)
		}
		if strings.Contains(output, "Artist match rate") {
			t.Error("expected no match rate without resolution")
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		output := string(ResultToMarkdown(sampleResult()))
		if !strings.HasPrefix(output, "# Apple Music import") {
			t.Errorf("expected heading, got:\n%s", output)
		}
		if !strings.Contains(output, "| Data source | full-imported-then-live |") {
			t.Errorf("expected mode row, got:\n%s", output)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := ToJSON(sampleResult())
		if err != nil {
			t.Fatalf("ToJSON failed: %v", err)
		}
		var back models.ImportResult
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if back.NewPlaysAccepted != 5 || *back.MatchRatePercent != 87.5 {
			t.Errorf("unexpected decoded result %+v", back)
		}
	})
}

func TestRenderTop(t *testing.T) {
	artists := []repositories.ArtistCount{{Rank: 1, Artist: "Radiohead", PlayCount: 12, MsPlayed: 3720000}}
	tracks := []repositories.TrackCount{{Rank: 1, Artist: "Radiohead", Track: "Airbag", PlayCount: 4}}

	t.Run("Text", func(t *testing.T) {
		output := string(TopToText(artists, tracks))
		if !strings.Contains(output, "  1. Radiohead (12 plays, 1h 02m)") {
			t.Errorf("unexpected artists, got:\n%s", output)
		}
		if !strings.Contains(output, "  1. Radiohead - Airbag (4 plays)") {
			t.Errorf("unexpected tracks, got:\n%s", output)
		}
	})

	t.Run("Text Empty", func(t *testing.T) {
		output := string(TopToText(nil, nil))
		if strings.Count(output, "(none yet)") != 2 {
			t.Errorf("expected empty markers, got:\n%s", output)
		}
	})

	t.Run("Markdown", func(t *testing.T) {
		output := string(TopToMarkdown(artists, tracks))
		if !strings.Contains(output, "| 1 | Radiohead | Airbag | 4 |") {
			t.Errorf("unexpected table, got:\n%s", output)
		}
	})
}

func TestExporters(t *testing.T) {
	t.Run("PlaysToCSV", func(t *testing.T) {
		data, err := PlaysToCSV(samplePlays())
		if err != nil {
			t.Fatalf("PlaysToCSV failed: %v", err)
		}
		output := string(data)

		if !strings.Contains(output, "ID,PlayedAt,Artist,Album,Track,MsPlayed,Source,Superseded") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "p1,2020-05-01T12:00:00Z,Sigur Rós,Ágætis byrjun,Svefn-g-englar,600000,imported-spotify,false") {
			t.Errorf("CSV missing first play, got: %s", output)
		}
		if !strings.Contains(output, `p2,2020-05-01T12:10:00Z,Radiohead,,"Airbag, Live",,live,true`) {
			t.Errorf("CSV should quote commas and leave nulls empty, got: %s", output)
		}
	})

	t.Run("PlaysToCSV Empty", func(t *testing.T) {
		data, err := PlaysToCSV(nil)
		if err != nil {
			t.Fatalf("PlaysToCSV failed: %v", err)
		}
		if lines := strings.Count(string(data), "\n"); lines != 1 {
			t.Errorf("expected header only, got %d lines", lines)
		}
	})

	t.Run("PlaysToText", func(t *testing.T) {
		output := string(PlaysToText(samplePlays()))
		if !strings.Contains(output, "2020-05-01 12:00:00  Sigur Rós - Svefn-g-englar (imported-spotify)\n") {
			t.Errorf("unexpected text, got:\n%s", output)
		}
		if !strings.Contains(output, "[superseded]") {
			t.Error("expected superseded marker")
		}
	})

	t.Run("Summarize", func(t *testing.T) {
		s := Summarize("u1", models.ModeFullImportedThenLive, samplePlays())
		if s.Plays != 2 || s.Superseded != 1 {
			t.Errorf("unexpected counts %+v", s)
		}
		if s.BySource["live"] != 1 || s.BySource["imported-spotify"] != 1 {
			t.Errorf("unexpected sources %v", s.BySource)
		}
		if !s.First.Equal(samplePlays()[0].PlayedAt) || !s.Last.Equal(samplePlays()[1].PlayedAt) {
			t.Errorf("unexpected span %v - %v", s.First, s.Last)
		}

		empty := Summarize("u2", models.ModeLiveOnly, nil)
		if empty.First != nil || empty.Last != nil {
			t.Error("expected no span without plays")
		}
	})
}

func TestWriters(t *testing.T) {
	plays := samplePlays()
	summary := Summarize("u1", models.ModeFullImportedThenLive, plays)

	t.Run("WriteCSVExport", func(t *testing.T) {
		t.Run("WithDefaultPath", func(t *testing.T) {
			tempDir := t.TempDir()
			originalDir := tu.MustGetwd(t)
			tu.MustChdir(t, tempDir)
			defer tu.MustChdir(t, originalDir)

			result, err := WriteCSVExport(summary, plays, "")
			if err != nil {
				t.Fatalf("WriteCSVExport failed: %v", err)
			}
			if result.PlaysFile != "u1_plays.csv" || result.SummaryFile != "u1_summary.json" {
				t.Errorf("unexpected file names %+v", result)
			}

			tu.AssertFileExists(t, result.PlaysFile)
			tu.AssertFileExists(t, result.SummaryFile)

			if content := tu.MustReadFile(t, result.SummaryFile); !strings.Contains(content, `"superseded": 1`) {
				t.Errorf("summary missing counts, got: %s", content)
			}
		})

		t.Run("WithCustomPath", func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "history")
			result, err := WriteCSVExport(summary, plays, base)
			if err != nil {
				t.Fatalf("WriteCSVExport failed: %v", err)
			}
			tu.AssertFileExists(t, base+"_plays.csv")
			tu.AssertFileExists(t, result.SummaryFile)
		})

		t.Run("UnwritablePath", func(t *testing.T) {
			if _, err := WriteCSVExport(summary, plays, filepath.Join(t.TempDir(), "missing", "history")); err == nil {
				t.Error("expected error for missing directory")
			}
		})
	})

	t.Run("WriteMarkdownReport", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "report")
		artists := []repositories.ArtistCount{{Rank: 1, Artist: "Radiohead", PlayCount: 3}}

		path, err := WriteMarkdownReport(sampleResult(), artists, nil, dir)
		if err != nil {
			t.Fatalf("WriteMarkdownReport failed: %v", err)
		}
		if path != filepath.Join(dir, "README.md") {
			t.Errorf("unexpected path %s", path)
		}

		content := tu.MustReadFile(t, path)
		if !strings.Contains(content, "# Apple Music import") || !strings.Contains(content, "## Top artists") {
			t.Errorf("unexpected report:\n%s", content)
		}
	})

	t.Run("WriteTextExport", func(t *testing.T) {
		tempDir := t.TempDir()
		originalDir := tu.MustGetwd(t)
		tu.MustChdir(t, tempDir)
		defer tu.MustChdir(t, originalDir)

		path, err := WriteTextExport("u1", plays, "")
		if err != nil {
			t.Fatalf("WriteTextExport failed: %v", err)
		}
		if path != "u1_plays.txt" {
			t.Errorf("expected default path, got %s", path)
		}
		if content := tu.MustReadFile(t, path); strings.Count(content, "\n") != 2 {
			t.Errorf("expected 2 lines, got:\n%s", content)
		}
	})
}
