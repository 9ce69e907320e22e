package importer

import (
	"strings"

	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
)

// CanonicalOptions tunes the drop rules.
type CanonicalOptions struct {
	// MinPlayMs drops plays shorter than this unless they ended naturally. Zero keeps every play with a duration.
	MinPlayMs int64
	// DurationRequired treats a missing duration like a zero one.
	DurationRequired bool
	// ImportID is stamped on every play.
	ImportID string
}

// DropStats counts records removed by each rule.
type DropStats struct {
	NoDuration  int `json:"no_duration"`
	TooShort    int `json:"too_short"`
	NoArtist    int `json:"no_artist"`
	NoTrack     int `json:"no_track"`
	NoTimestamp int `json:"no_timestamp"`
}

// Total is the number of dropped records.
func (d DropStats) Total() int {
	return d.NoDuration + d.TooShort + d.NoArtist + d.NoTrack + d.NoTimestamp
}

// endedNaturally reports an end reason that marks a real listen regardless of the recorded duration.
func endedNaturally(reason string) bool {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "trackdone", "natural_end_of_track":
		return true
	}
	return false
}

func canonicalize(userID string, source models.SourceKind, records []models.RawRecord, opts CanonicalOptions) ([]models.Play, DropStats) {
	var stats DropStats
	plays := make([]models.Play, 0, len(records))

	for _, rec := range records {
		track := strings.TrimSpace(rec.Track)
		if track == "" {
			stats.NoTrack++
			continue
		}
		if rec.Artist == nil || strings.TrimSpace(*rec.Artist) == "" {
			stats.NoArtist++
			continue
		}
		if rec.Timestamp.IsZero() {
			stats.NoTimestamp++
			continue
		}

		ms := rec.MsPlayed
		if ms != nil && *ms < 0 {
			ms = nil
		}
		natural := endedNaturally(rec.EndReason)

		zero := ms != nil && *ms == 0
		absent := ms == nil && opts.DurationRequired
		if (zero || absent) && !natural {
			stats.NoDuration++
			continue
		}
		if ms != nil && *ms < opts.MinPlayMs && !natural {
			stats.TooShort++
			continue
		}

		plays = append(plays, models.Play{
			ID:       shared.GenerateID(),
			UserID:   userID,
			Artist:   strings.TrimSpace(*rec.Artist),
			Album:    nonEmpty(rec.Album),
			Track:    track,
			PlayedAt: rec.Timestamp.UTC(),
			MsPlayed: ms,
			Source:   source,
			ImportID: opts.ImportID,
		})
	}
	return plays, stats
}
