// Package dedup decides which candidate plays are new listens for a user.
//
// Existing plays are indexed by identity key (normalized artist and track) with
// timestamps kept sorted, so each candidate only inspects the neighbours of its
// own key. Two plays with the same key are the same listen when their times are
// at most the window apart. The boundary is inclusive.
package dedup

import (
	"sort"
	"time"

	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
)

// DefaultWindow is used when a zero window is configured.
const DefaultWindow = 20 * time.Second

// Counters are surfaced to the user as progress.
type Counters struct {
	Examined   int `json:"examined"`
	Duplicates int `json:"duplicates"`
	Accepted   int `json:"accepted"`
}

// Match links a rejected candidate to the play it duplicates.
type Match struct {
	Candidate models.Play
	Existing  models.Play
}

// Result is the outcome of [Engine.Run].
type Result struct {
	New     []models.Play
	Matches []Match
	Counters
}

type indexed struct {
	at   time.Time
	play models.Play
}

// Index groups plays by identity key with times in ascending order.
type Index struct {
	groups map[string][]indexed
	size   int
}

// NewIndex indexes existing plays. Superseded plays are included since they are still the same listen.
func NewIndex(existing []models.Play) *Index {
	idx := &Index{groups: make(map[string][]indexed)}
	for _, p := range existing {
		k := Key(p)
		idx.groups[k] = append(idx.groups[k], indexed{at: p.PlayedAt.UTC(), play: p})
	}
	for k := range idx.groups {
		g := idx.groups[k]
		sort.SliceStable(g, func(i, j int) bool { return g[i].at.Before(g[j].at) })
	}
	idx.size = len(existing)
	return idx
}

// Len is the number of indexed plays.
func (idx *Index) Len() int {
	return idx.size
}

// Nearest returns the indexed play closest in time to p with the same key, if one lies within window.
// Ties go to the earlier play.
func (idx *Index) Nearest(p models.Play, window time.Duration) (models.Play, bool) {
	g := idx.groups[Key(p)]
	if len(g) == 0 {
		return models.Play{}, false
	}
	at := p.PlayedAt.UTC()
	i := sort.Search(len(g), func(i int) bool { return !g[i].at.Before(at) })

	best := -1
	var bestDiff time.Duration
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(g) {
			continue
		}
		d := absDiff(g[j].at, at)
		if d <= window && (best < 0 || d < bestDiff) {
			best, bestDiff = j, d
		}
	}
	if best < 0 {
		return models.Play{}, false
	}
	return g[best].play, true
}

// Insert adds p keeping its group sorted.
func (idx *Index) Insert(p models.Play) {
	k := Key(p)
	g := idx.groups[k]
	at := p.PlayedAt.UTC()
	i := sort.Search(len(g), func(i int) bool { return g[i].at.After(at) })
	g = append(g, indexed{})
	copy(g[i+1:], g[i:])
	g[i] = indexed{at: at, play: p}
	idx.groups[k] = g
	idx.size++
}

// Key is the identity key of a play.
func Key(p models.Play) string {
	return shared.NormalizeTrackKey(p.Artist, p.Track)
}

func absDiff(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

// Engine deduplicates candidates against a user's history.
type Engine struct {
	window   time.Duration
	progress func(Counters)
	every    int
}

// Option configures an [Engine].
type Option func(*Engine)

// WithProgress reports counters every n candidates and once at the end.
func WithProgress(n int, fn func(Counters)) Option {
	return func(e *Engine) {
		if n <= 0 {
			n = 1
		}
		e.every, e.progress = n, fn
	}
}

// New creates an engine with the given tolerance window. A negative window means exact matches only.
func New(window time.Duration, opts ...Option) *Engine {
	if window == 0 {
		window = DefaultWindow
	}
	if window < 0 {
		window = 0
	}
	e := &Engine{window: window}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Window is the tolerance in use.
func (e *Engine) Window() time.Duration {
	return e.window
}

// Run returns the candidates that are not already represented in existing.
//
// Matching ignores source kind. Accepted candidates join the index, so repeats
// inside the same batch collapse to the first one seen in time order.
func (e *Engine) Run(existing []models.Play, candidates []models.Play) Result {
	return e.RunIndex(NewIndex(existing), candidates)
}

// RunIndex is [Engine.Run] against a prepared index. The index is updated with accepted plays.
func (e *Engine) RunIndex(idx *Index, candidates []models.Play) Result {
	ordered := make([]models.Play, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].PlayedAt.Before(ordered[j].PlayedAt) })

	res := Result{New: make([]models.Play, 0, len(ordered))}
	for _, c := range ordered {
		res.Examined++
		if match, ok := idx.Nearest(c, e.window); ok {
			res.Duplicates++
			res.Matches = append(res.Matches, Match{Candidate: c, Existing: match})
		} else {
			res.Accepted++
			res.New = append(res.New, c)
			idx.Insert(c)
		}

		if e.progress != nil && res.Examined%e.every == 0 {
			e.progress(res.Counters)
		}
	}
	if e.progress != nil && res.Examined%e.every != 0 {
		e.progress(res.Counters)
	}
	return res
}
