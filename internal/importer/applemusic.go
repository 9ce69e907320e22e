package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/histx/internal/catalog"
	"github.com/desertthunder/histx/internal/models"
)

const applePlayActivity = "apple music play activity.csv"

// Column names in Apple Music Play Activity.csv, compared case-insensitively.
const (
	colSongName   = "song name"
	colAlbumName  = "album name"
	colDuration   = "play duration milliseconds"
	colStart      = "event start timestamp"
	colEnd        = "event end timestamp"
	colEndReason  = "end reason type"
	colEventType  = "event type"
	headerMissing = -1
)

// isPlayback reports whether an Event Type value describes a listen.
// Exports without the column, or rows that leave it blank, count as playback.
func isPlayback(eventType string) bool {
	return eventType == "" || strings.HasPrefix(strings.ToUpper(eventType), "PLAY_")
}

// appleHeader maps column names to their index in a row.
type appleHeader struct {
	track, album, duration, start, end, reason, eventType int
}

func parseAppleHeader(row []string) (appleHeader, []string) {
	index := make(map[string]int, len(row))
	for i, name := range row {
		name = strings.TrimPrefix(name, "\ufeff")
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	col := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		return headerMissing
	}

	h := appleHeader{
		track:     col(colSongName),
		album:     col(colAlbumName),
		duration:  col(colDuration),
		start:     col(colStart),
		end:       col(colEnd),
		reason:    col(colEndReason),
		eventType: col(colEventType),
	}

	var missing []string
	if h.track == headerMissing {
		missing = append(missing, "Song Name")
	}
	if h.album == headerMissing {
		missing = append(missing, "Album Name")
	}
	if h.duration == headerMissing {
		missing = append(missing, "Play Duration Milliseconds")
	}
	if h.start == headerMissing && h.end == headerMissing {
		missing = append(missing, "Event Start Timestamp")
	}
	return h, missing
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return cr
}

type appleMusic struct{}

func (appleMusic) Platform() models.Platform { return models.PlatformAppleMusic }

func (appleMusic) NeedsResolution() bool { return true }

// Parse accepts Apple Music Play Activity.csv, loose or inside the Apple Media Services archive.
func (a appleMusic) Parse(ctx context.Context, files []File, emit Emit) error {
	p := a.Platform()
	entries, err := expand(p, files)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return unknownFailure(p, "no files were uploaded", nil)
	}

	var named, loose []entry
	for _, e := range entries {
		switch {
		case strings.EqualFold(e.base(), applePlayActivity):
			named = append(named, e)
		case e.loose:
			loose = append(loose, e)
		}
	}

	candidates := named
	if len(candidates) == 0 {
		candidates = loose
	}
	if len(candidates) == 0 {
		return wrongPackage(p, "the archive has no Apple Music Play Activity.csv")
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].name < candidates[j].name })

	for _, e := range candidates {
		if err := a.checkHeader(e); err != nil {
			return err
		}
	}

	for _, e := range candidates {
		if err := a.parseEntry(ctx, e, emit); err != nil {
			return err
		}
	}
	return nil
}

func (a appleMusic) checkHeader(e entry) error {
	p := a.Platform()
	rc, err := e.open()
	if err != nil {
		return unknownFailure(p, fmt.Sprintf("cannot open %s", e.name), err)
	}
	defer rc.Close()

	row, err := newCSVReader(rc).Read()
	if err != nil {
		return wrongFormat(p, fmt.Sprintf("%s has no readable header row", e.base()))
	}
	if _, missing := parseAppleHeader(row); len(missing) > 0 {
		return wrongFormat(p, fmt.Sprintf("%s is missing columns: %s", e.base(), strings.Join(missing, ", ")))
	}
	return nil
}

func (a appleMusic) parseEntry(ctx context.Context, e entry, emit Emit) error {
	p := a.Platform()
	rc, err := e.open()
	if err != nil {
		return unknownFailure(p, fmt.Sprintf("cannot open %s", e.name), err)
	}
	defer rc.Close()

	cr := newCSVReader(rc)
	header, err := cr.Read()
	if err != nil {
		return wrongFormat(p, fmt.Sprintf("%s has no readable header row", e.base()))
	}
	h, _ := parseAppleHeader(header)

	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return unknownFailure(p, fmt.Sprintf("%s row %d is unreadable", e.base(), line), err)
		}

		if !isPlayback(field(row, h.eventType)) {
			continue
		}

		rec, err := a.record(h, row, e.base())
		if err != nil {
			return unknownFailure(p, fmt.Sprintf("%s row %d", e.base(), line), err)
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
}

func (a appleMusic) record(h appleHeader, row []string, origin string) (models.RawRecord, error) {
	rec := models.RawRecord{
		Platform:  a.Platform(),
		Track:     field(row, h.track),
		Album:     models.StringPtr(field(row, h.album)),
		EndReason: field(row, h.reason),
		Origin:    origin,
	}

	if raw := field(row, h.duration); raw != "" {
		ms, err := parseMillis(raw)
		if err != nil {
			return rec, fmt.Errorf("bad play duration %q: %w", raw, err)
		}
		rec.MsPlayed = &ms
	}

	start, err := parseTimestamp(field(row, h.start))
	if err != nil {
		return rec, err
	}
	if start.IsZero() {
		end, err := parseTimestamp(field(row, h.end))
		if err != nil {
			return rec, err
		}
		if !end.IsZero() && rec.MsPlayed != nil && *rec.MsPlayed > 0 {
			end = end.Add(-time.Duration(*rec.MsPlayed) * time.Millisecond)
		}
		start = end
	}
	rec.Timestamp = start
	return rec, nil
}

func parseMillis(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// Resolve looks up the artist for every row, since the export has no artist column.
func (appleMusic) Resolve(ctx context.Context, records []models.RawRecord, r *catalog.Resolver) (catalog.Stats, error) {
	return r.Resolve(ctx, records)
}

func (a appleMusic) Canonicalize(userID string, records []models.RawRecord, opts CanonicalOptions) ([]models.Play, DropStats) {
	opts.DurationRequired = true
	return canonicalize(userID, a.Platform().Source(), records, opts)
}
