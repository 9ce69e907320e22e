package testing

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SpotifyEntry is one row of an extended streaming history file.
type SpotifyEntry struct {
	TS        time.Time
	Artist    string
	Album     string
	Track     string
	MsPlayed  int64
	ReasonEnd string
}

type spotifyJSON struct {
	TS        string  `json:"ts"`
	Platform  string  `json:"platform"`
	MsPlayed  int64   `json:"ms_played"`
	Track     *string `json:"master_metadata_track_name"`
	Artist    *string `json:"master_metadata_album_artist_name"`
	Album     *string `json:"master_metadata_album_album_name"`
	URI       *string `json:"spotify_track_uri"`
	ReasonEnd string  `json:"reason_end"`
	Shuffle   bool    `json:"shuffle"`
}

func orNull(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SpotifyHistoryJSON encodes entries the way Spotify's extended history export does.
func SpotifyHistoryJSON(entries []SpotifyEntry) []byte {
	out := make([]spotifyJSON, len(entries))
	for i, e := range entries {
		reason := e.ReasonEnd
		if reason == "" {
			reason = "trackdone"
		}
		out[i] = spotifyJSON{
			TS:        e.TS.UTC().Format(time.RFC3339),
			Platform:  "ios",
			MsPlayed:  e.MsPlayed,
			Track:     orNull(e.Track),
			Artist:    orNull(e.Artist),
			Album:     orNull(e.Album),
			URI:       orNull("spotify:track:" + strconv.Itoa(i)),
			ReasonEnd: reason,
		}
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	return b
}

// SpotifyAccountDataJSON builds a StreamingHistory file from the basic account data package.
func SpotifyAccountDataJSON(n int, start time.Time) []byte {
	type row struct {
		EndTime    string `json:"endTime"`
		ArtistName string `json:"artistName"`
		TrackName  string `json:"trackName"`
		MsPlayed   int64  `json:"msPlayed"`
	}
	rows := make([]row, n)
	for i := range rows {
		rows[i] = row{
			EndTime:    start.Add(time.Duration(i) * 4 * time.Minute).Format("2006-01-02 15:04"),
			ArtistName: fmt.Sprintf("Artist %d", i%7),
			TrackName:  fmt.Sprintf("Track %d", i),
			MsPlayed:   200000,
		}
	}
	b, _ := json.Marshal(rows)
	return b
}

// GenerateSpotifyEntries returns n plays spaced step apart from start,
// cycling through a small set of artists and albums.
func GenerateSpotifyEntries(n int, start time.Time, step time.Duration) []SpotifyEntry {
	entries := make([]SpotifyEntry, n)
	for i := range entries {
		entries[i] = SpotifyEntry{
			TS:       start.Add(time.Duration(i) * step),
			Artist:   fmt.Sprintf("Artist %d", i%25),
			Album:    fmt.Sprintf("Album %d", i%60),
			Track:    fmt.Sprintf("Track %d", i%400),
			MsPlayed: 120000 + int64(i%90)*1000,
		}
	}
	return entries
}

// ZipFile is one member of a fixture archive.
type ZipFile struct {
	Name string
	Data []byte
}

// Zip builds an archive with files in the given order.
func Zip(files ...ZipFile) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range files {
		fw, err := w.Create(f.Name)
		if err != nil {
			panic(err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			panic(err)
		}
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// AppleRow is one row of Apple Music Play Activity.csv.
type AppleRow struct {
	Start      time.Time
	Album      string
	Song       string
	DurationMs int64
	EventType  string
}

// AppleHeader is the subset of Play Activity columns the importer reads, plus a few it ignores.
var AppleHeader = []string{
	"Album Name", "Container Type", "Song Name", "Event Start Timestamp",
	"Event End Timestamp", "Play Duration Milliseconds", "End Reason Type",
}

// AppleCSV encodes rows under [AppleHeader].
func AppleCSV(rows []AppleRow) []byte {
	return AppleCSVWithHeader(AppleHeader, rows)
}

// AppleCSVWithHeader encodes rows, writing only the columns present in header.
func AppleCSVWithHeader(header []string, rows []AppleRow) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(header)
	for _, r := range rows {
		end := r.Start.Add(time.Duration(r.DurationMs) * time.Millisecond)
		values := map[string]string{
			"Album Name":                 r.Album,
			"Container Type":             "ALBUM",
			"Song Name":                  r.Song,
			"Event Start Timestamp":      r.Start.UTC().Format("2006-01-02T15:04:05.000Z"),
			"Event End Timestamp":        end.UTC().Format("2006-01-02T15:04:05.000Z"),
			"Play Duration Milliseconds": strconv.FormatInt(r.DurationMs, 10),
			"End Reason Type":            "NATURAL_END_OF_TRACK",
			"Event Type":                 r.EventType,
		}
		row := make([]string, len(header))
		for i, h := range header {
			row[i] = values[h]
		}
		_ = w.Write(row)
	}
	w.Flush()
	return buf.Bytes()
}
