// Package reconcile decides which blend of imported and live plays is authoritative for a user.
//
// [NextMode] is the whole state machine. [Decide] applies it to an import and
// lists the live plays to mark superseded; nothing is ever deleted. [Scope]
// filters a play history down to the plays a mode counts.
package reconcile

import (
	"time"

	"github.com/desertthunder/histx/internal/dedup"
	"github.com/desertthunder/histx/internal/models"
)

// NextMode returns the mode after a successful import.
//
// An imported mode is kept on re-import. From live-only, an import that overlaps
// existing live history keeps both in full; otherwise imported history runs
// until live tracking started.
func NextMode(current models.DataSourceMode, overlap bool) models.DataSourceMode {
	if current.IsImported() {
		return current
	}
	if overlap {
		return models.ModeFullImportedThenLive
	}
	return models.ModeImportedUntilLiveStarted
}

// Span is an inclusive time range.
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within the span, bounds included.
func (s Span) Contains(t time.Time) bool {
	return !t.Before(s.Start) && !t.After(s.End)
}

// SpanOf is the range covered by plays.
func SpanOf(plays []models.Play) (Span, bool) {
	if len(plays) == 0 {
		return Span{}, false
	}
	s := Span{Start: plays[0].PlayedAt, End: plays[0].PlayedAt}
	for _, p := range plays[1:] {
		if p.PlayedAt.Before(s.Start) {
			s.Start = p.PlayedAt
		}
		if p.PlayedAt.After(s.End) {
			s.End = p.PlayedAt
		}
	}
	return s, true
}

// HasOverlap reports whether any live play still in effect falls inside span.
func HasOverlap(existing []models.Play, span Span) bool {
	for _, p := range existing {
		if p.Source == models.SourceLive && !p.Superseded() && span.Contains(p.PlayedAt) {
			return true
		}
	}
	return false
}

// Plan is the reconciliation outcome for one import.
type Plan struct {
	Previous models.DataSourceMode `json:"previous"`
	Next     models.DataSourceMode `json:"next"`
	Overlap  bool                  `json:"overlap"`
	Span     Span                  `json:"span"`
	// Supersede lists live play IDs now covered by imported data.
	Supersede []string `json:"supersede,omitempty"`
	// Retained lists live plays an imported duplicate was dropped in favour of.
	// They stand in for those listens when imported history is counted.
	Retained []string `json:"retained,omitempty"`
}

// Changed reports whether the mode moves.
func (p Plan) Changed() bool {
	return p.Previous != p.Next
}

// Decide computes the next mode and the live plays to supersede.
//
// existing is the user's history before the import, canonical every play the
// import produced (duplicates included) and matches the dedup outcome. Live
// plays an imported duplicate was dropped in favour of are retained in every
// mode. In full-imported-then-live, the other live plays inside the import's
// span are superseded.
func Decide(current models.DataSourceMode, existing, canonical []models.Play, matches []dedup.Match) Plan {
	plan := Plan{Previous: current, Next: current}
	span, ok := SpanOf(canonical)
	if !ok {
		return plan
	}
	plan.Span = span
	plan.Overlap = HasOverlap(existing, span)
	plan.Next = NextMode(current, plan.Overlap)

	standIn := make(map[string]bool, len(matches))
	for _, m := range matches {
		if m.Existing.Source == models.SourceLive && m.Candidate.Source.IsImported() && !standIn[m.Existing.ID] {
			standIn[m.Existing.ID] = true
			if !m.Existing.StandsIn() {
				plan.Retained = append(plan.Retained, m.Existing.ID)
			}
		}
	}

	if plan.Next != models.ModeFullImportedThenLive {
		return plan
	}

	for _, p := range existing {
		if p.Source != models.SourceLive || p.Superseded() || standIn[p.ID] || !span.Contains(p.PlayedAt) {
			continue
		}
		plan.Supersede = append(plan.Supersede, p.ID)
	}
	return plan
}
