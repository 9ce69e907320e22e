package tasks

import (
	"fmt"

	"github.com/desertthunder/histx/internal/aggregate"
	"github.com/desertthunder/histx/internal/catalog"
	"github.com/desertthunder/histx/internal/dedup"
	"github.com/desertthunder/histx/internal/importer"
	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/reconcile"
)

// Counts are cumulative pipeline counters carried on every update.
type Counts struct {
	Records    int `json:"records"`
	Resolved   int `json:"resolved"`
	Canonical  int `json:"canonical"`
	Examined   int `json:"examined"`
	Duplicates int `json:"duplicates"`
	Accepted   int `json:"accepted"`
}

// ProgressUpdate represents a progress event during an import.
//
// Sent to the CLI, TUI and SSE layers for display.
type ProgressUpdate struct {
	Seq     int    `json:"seq"`     // Position in the job's event log
	Phase   Phase  `json:"phase"`   // Pipeline stage
	Step    int    `json:"step"`    // Current step number within phase
	Total   int    `json:"total"`   // Total steps in this phase, 0 when unknown
	Message string `json:"message"` // Human-readable message for display
	Counts  Counts `json:"counts"`
	Data    any    `json:"data,omitempty"` // Optional phase-specific data for advanced UIs
}

// Phase is a pipeline stage.
type Phase int

const (
	PhaseParse Phase = iota
	PhaseResolve
	PhaseCanonicalize
	PhaseDedup
	PhasePersist
	PhaseReconcile
	PhaseTrigger
	PhaseDone
)

// Phases lists every stage in pipeline order.
var Phases = []Phase{PhaseParse, PhaseResolve, PhaseCanonicalize, PhaseDedup, PhasePersist, PhaseReconcile, PhaseTrigger, PhaseDone}

func (p Phase) String() string {
	switch p {
	case PhaseParse:
		return "parse"
	case PhaseResolve:
		return "resolve"
	case PhaseCanonicalize:
		return "canonicalize"
	case PhaseDedup:
		return "dedup"
	case PhasePersist:
		return "persist"
	case PhaseReconcile:
		return "reconcile"
	case PhaseTrigger:
		return "trigger"
	case PhaseDone:
		return "done"
	default:
		return ""
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for _, ph := range Phases {
		if ph.String() == string(b) {
			*p = ph
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

func parseStartUpdate(platform models.Platform, files int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseParse,
		Message: fmt.Sprintf("Reading %d %s file(s)...", files, platform.DisplayName()),
	}
}

func parseProgressUpdate(c Counts) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseParse,
		Step:    c.Records,
		Message: fmt.Sprintf("Parsed %d records", c.Records),
		Counts:  c,
	}
}

func resolveProgressUpdate(done, total int, c Counts) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseResolve,
		Step:    done,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Looking up artists...", done, total),
		Counts:  c,
	}
}

func resolveDoneUpdate(stats catalog.Stats, c Counts) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseResolve,
		Step:    stats.UniquePairs,
		Total:   stats.UniquePairs,
		Message: fmt.Sprintf("Resolved %d of %d records (%.1f%%)", stats.Resolved, stats.Needed, stats.MatchRatePercent()),
		Counts:  c,
		Data:    stats,
	}
}

func canonicalUpdate(drops importer.DropStats, c Counts) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseCanonicalize,
		Step:    c.Canonical,
		Total:   c.Records,
		Message: fmt.Sprintf("Kept %d plays, dropped %d", c.Canonical, drops.Total()),
		Counts:  c,
		Data:    drops,
	}
}

func dedupUpdate(dc dedup.Counters, total int, c Counts) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhaseDedup,
		Step:    dc.Examined,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %d duplicates, %d new", dc.Examined, total, dc.Duplicates, dc.Accepted),
		Counts:  c,
	}
}

func persistUpdate(n int, c Counts) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PhasePersist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Saved %d new plays", n),
		Counts:  c,
	}
}

func reconcileUpdate(plan reconcile.Plan, superseded int, c Counts) ProgressUpdate {
	msg := fmt.Sprintf("Data source mode: %s", plan.Next)
	if plan.Changed() {
		msg = fmt.Sprintf("Data source mode: %s → %s", plan.Previous, plan.Next)
	}
	if superseded > 0 {
		msg += fmt.Sprintf(" (%d live plays superseded)", superseded)
	}
	return ProgressUpdate{
		Phase:   PhaseReconcile,
		Step:    1,
		Total:   1,
		Message: msg,
		Counts:  c,
		Data:    plan,
	}
}

func triggerUpdate(e aggregate.Event, pending bool, c Counts) ProgressUpdate {
	msg := "Aggregates refreshed"
	if pending {
		msg = "Aggregate refresh queued; top lists will update shortly"
	}
	return ProgressUpdate{
		Phase:   PhaseTrigger,
		Step:    1,
		Total:   1,
		Message: msg,
		Counts:  c,
		Data:    e,
	}
}

func doneUpdate(res models.ImportResult, c Counts) ProgressUpdate {
	msg := fmt.Sprintf("Import finished: %d new plays, %d duplicates", res.NewPlaysAccepted, res.DuplicatesFound)
	if res.Status.Failed() {
		msg = fmt.Sprintf("Import failed: %s", res.Status)
	}
	return ProgressUpdate{
		Phase:   PhaseDone,
		Step:    1,
		Total:   1,
		Message: msg,
		Counts:  c,
		Data:    res,
	}
}
