// package formatter renders import results, rankings and play history as CSV, Markdown, JSON and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/repositories"
)

// Format selects an output rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

// ParseFormat accepts a format name or its common aliases.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown format %q (expected text, json, markdown or csv)", s)
	}
}

// FormatDuration converts milliseconds into "1h 02m", "3m 05s" or "42s".
func FormatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// ToJSON marshals v with two-space indentation.
func ToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// ResultToText renders an import result for a terminal.
func ResultToText(res models.ImportResult) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Import %s: %s\n", res.JobID, res.Status)
	fmt.Fprintf(&buf, "Platform: %s\n", res.Platform.DisplayName())
	fmt.Fprintf(&buf, "Records found: %d\n", res.RecordsFound)
	if res.MatchRatePercent != nil {
		fmt.Fprintf(&buf, "Artist match rate: %.1f%%\n", *res.MatchRatePercent)
	}
	fmt.Fprintf(&buf, "Duplicates: %d\n", res.DuplicatesFound)
	fmt.Fprintf(&buf, "New plays: %d\n", res.NewPlaysAccepted)
	if res.Superseded > 0 {
		fmt.Fprintf(&buf, "Live plays superseded: %d\n", res.Superseded)
	}
	if res.ResultingMode != "" {
		fmt.Fprintf(&buf, "Data source: %s\n", res.ResultingMode.Describe())
	}
	if res.AggregatePending {
		buf.WriteString("Top lists are still being refreshed.\n")
	}
	if res.Status.Failed() {
		if res.Error != "" {
			fmt.Fprintf(&buf, "\nError: %s\n", res.Error)
		}
		if res.Guidance != "" {
			fmt.Fprintf(&buf, "\n%s\n", res.Guidance)
		}
	}

	return buf.Bytes()
}

// ResultToMarkdown renders an import result as a Markdown report.
func ResultToMarkdown(res models.ImportResult) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s import\n\n", res.Platform.DisplayName())
	fmt.Fprintf(&buf, "**Status**: %s\n\n", res.Status)

	buf.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&buf, "| Records found | %d |\n", res.RecordsFound)
	if res.MatchRatePercent != nil {
		fmt.Fprintf(&buf, "| Artist match rate | %.1f%% |\n", *res.MatchRatePercent)
	}
	fmt.Fprintf(&buf, "| Duplicates | %d |\n", res.DuplicatesFound)
	fmt.Fprintf(&buf, "| New plays | %d |\n", res.NewPlaysAccepted)
	fmt.Fprintf(&buf, "| Live plays superseded | %d |\n", res.Superseded)
	if res.ResultingMode != "" {
		fmt.Fprintf(&buf, "| Data source | %s |\n", res.ResultingMode)
	}

	if res.Guidance != "" {
		fmt.Fprintf(&buf, "\n## What to do\n\n%s\n", res.Guidance)
	}

	return buf.Bytes()
}

// TopToText renders ranked artists and tracks as numbered lists.
func TopToText(artists []repositories.ArtistCount, tracks []repositories.TrackCount) []byte {
	var buf bytes.Buffer

	buf.WriteString("Top artists\n")
	if len(artists) == 0 {
		buf.WriteString("  (none yet)\n")
	}
	for _, a := range artists {
		fmt.Fprintf(&buf, "%3d. %s (%d plays, %s)\n", a.Rank, a.Artist, a.PlayCount, FormatDuration(a.MsPlayed))
	}

	buf.WriteString("\nTop tracks\n")
	if len(tracks) == 0 {
		buf.WriteString("  (none yet)\n")
	}
	for _, tr := range tracks {
		fmt.Fprintf(&buf, "%3d. %s - %s (%d plays)\n", tr.Rank, tr.Artist, tr.Track, tr.PlayCount)
	}

	return buf.Bytes()
}

// TopToMarkdown renders ranked artists and tracks as Markdown tables.
func TopToMarkdown(artists []repositories.ArtistCount, tracks []repositories.TrackCount) []byte {
	var buf bytes.Buffer

	buf.WriteString("## Top artists\n\n| # | Artist | Plays | Time |\n|---|---|---|---|\n")
	for _, a := range artists {
		fmt.Fprintf(&buf, "| %d | %s | %d | %s |\n", a.Rank, a.Artist, a.PlayCount, FormatDuration(a.MsPlayed))
	}

	buf.WriteString("\n## Top tracks\n\n| # | Artist | Track | Plays |\n|---|---|---|---|\n")
	for _, tr := range tracks {
		fmt.Fprintf(&buf, "| %d | %s | %s | %d |\n", tr.Rank, tr.Artist, tr.Track, tr.PlayCount)
	}

	return buf.Bytes()
}

// PlaysToCSV converts plays to CSV with columns: ID, PlayedAt, Artist, Album, Track, MsPlayed, Source, Superseded
func PlaysToCSV(plays []models.Play) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "PlayedAt", "Artist", "Album", "Track", "MsPlayed", "Source", "Superseded"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, p := range plays {
		album, ms := "", ""
		if p.Album != nil {
			album = *p.Album
		}
		if p.MsPlayed != nil {
			ms = strconv.FormatInt(*p.MsPlayed, 10)
		}
		record := []string{
			p.ID,
			p.PlayedAt.UTC().Format(time.RFC3339),
			p.Artist,
			album,
			p.Track,
			ms,
			string(p.Source),
			strconv.FormatBool(p.Superseded()),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// PlaysToText converts plays to one line each, oldest first as given.
func PlaysToText(plays []models.Play) []byte {
	var buf bytes.Buffer
	for _, p := range plays {
		marker := ""
		if p.Superseded() {
			marker = " [superseded]"
		}
		fmt.Fprintf(&buf, "%s  %s - %s (%s)%s\n", p.PlayedAt.UTC().Format("2006-01-02 15:04:05"), p.Artist, p.Track, p.Source, marker)
	}
	return buf.Bytes()
}

// Summary describes an exported history.
type Summary struct {
	UserID     string                `json:"user_id"`
	Mode       models.DataSourceMode `json:"mode"`
	Plays      int                   `json:"plays"`
	Superseded int                   `json:"superseded"`
	BySource   map[string]int        `json:"by_source"`
	First      *time.Time            `json:"first,omitempty"`
	Last       *time.Time            `json:"last,omitempty"`
}

// Summarize counts plays by source and records the covered span.
func Summarize(userID string, mode models.DataSourceMode, plays []models.Play) Summary {
	s := Summary{UserID: userID, Mode: mode, Plays: len(plays), BySource: map[string]int{}}
	for i := range plays {
		p := plays[i]
		s.BySource[string(p.Source)]++
		if p.Superseded() {
			s.Superseded++
		}
		if s.First == nil || p.PlayedAt.Before(*s.First) {
			t := p.PlayedAt
			s.First = &t
		}
		if s.Last == nil || p.PlayedAt.After(*s.Last) {
			t := p.PlayedAt
			s.Last = &t
		}
	}
	return s
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	PlaysFile   string
	SummaryFile string
}

// WriteCSVExport writes a user's plays to CSV with an accompanying summary JSON file.
//
// Defaults to the user ID as the base filename & creates {base}_plays.csv and {base}_summary.json
func WriteCSVExport(summary Summary, plays []models.Play, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = summary.UserID
	}

	csvData, err := PlaysToCSV(plays)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	playsFile := baseFilepath + "_plays.csv"
	if err := os.WriteFile(playsFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	summaryJSON, err := ToJSON(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary JSON: %w", err)
	}

	summaryFile := baseFilepath + "_summary.json"
	if err := os.WriteFile(summaryFile, summaryJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write summary file: %w", err)
	}

	return &CSVExportResult{PlaysFile: playsFile, SummaryFile: summaryFile}, nil
}

// WriteMarkdownReport writes an import report with the user's current rankings.
//
// Directory name defaults to the job ID. Creates {dir}/README.md
func WriteMarkdownReport(res models.ImportResult, artists []repositories.ArtistCount, tracks []repositories.TrackCount, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = res.JobID
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(ResultToMarkdown(res))
	if len(artists) > 0 || len(tracks) > 0 {
		buf.WriteString("\n")
		buf.Write(TopToMarkdown(artists, tracks))
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return mdFile, nil
}

// WriteTextExport writes plays as plain text.
//
// Defaults to {userID}_plays.txt as the filename.
func WriteTextExport(userID string, plays []models.Play, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_plays.txt", userID)
	}

	if err := os.WriteFile(path, PlaysToText(plays), 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}
