package reconcile

import (
	"time"

	"github.com/desertthunder/histx/internal/models"
)

// LiveStart is the time of the earliest live play still in effect.
func LiveStart(plays []models.Play) (time.Time, bool) {
	var start time.Time
	found := false
	for _, p := range plays {
		if p.Source != models.SourceLive || p.Superseded() {
			continue
		}
		if !found || p.PlayedAt.Before(start) {
			start, found = p.PlayedAt, true
		}
	}
	return start, found
}

// ImportEnd is the time of the latest imported play.
func ImportEnd(plays []models.Play) (time.Time, bool) {
	var end time.Time
	found := false
	for _, p := range plays {
		if !p.Source.IsImported() {
			continue
		}
		if !found || p.PlayedAt.After(end) {
			end, found = p.PlayedAt, true
		}
	}
	return end, found
}

// Scope returns the plays that count toward aggregates under mode.
//
//   - live-only: every live play.
//   - imported-until-live-started: imported plays before the first live play, then live plays.
//   - full-imported-then-live: every imported play, then live plays after the latest
//     imported one. Earlier live plays count only where they stand in for an imported listen.
//
// Supersede markers are an audit trail; full-imported-then-live does not read them,
// so a mode switched explicitly scopes the same as one reached by an import.
func Scope(mode models.DataSourceMode, plays []models.Play) []models.Play {
	out := make([]models.Play, 0, len(plays))
	switch mode {
	case models.ModeImportedUntilLiveStarted:
		start, hasLive := LiveStart(plays)
		for _, p := range plays {
			switch {
			case p.Source == models.SourceLive:
				if !p.Superseded() {
					out = append(out, p)
				}
			case !hasLive || p.PlayedAt.Before(start):
				out = append(out, p)
			}
		}
	case models.ModeFullImportedThenLive:
		end, hasImport := ImportEnd(plays)
		for _, p := range plays {
			switch {
			case p.Source.IsImported():
				out = append(out, p)
			case !hasImport || p.PlayedAt.After(end) || p.StandsIn():
				out = append(out, p)
			}
		}
	default:
		for _, p := range plays {
			if p.Source == models.SourceLive {
				out = append(out, p)
			}
		}
	}
	return out
}
