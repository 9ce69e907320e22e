// Package aggregate recomputes a user's derived rankings after an import and
// carries the recalculation trigger between the import engine and the worker.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/reconcile"
	"github.com/desertthunder/histx/internal/repositories"
	"github.com/desertthunder/histx/internal/shared"
)

// ReasonImportCompleted is the only trigger reason the engine emits.
const ReasonImportCompleted = "import-completed"

// DefaultLimit is the length of each ranking.
const DefaultLimit = 50

// Event asks for a user's aggregates to be rebuilt.
type Event struct {
	UserID    string `json:"userId"`
	Reason    string `json:"reason"`
	RequestID string `json:"requestId"`
}

// NewEvent creates an import-completed event with a fresh request id.
func NewEvent(userID string) Event {
	return Event{UserID: userID, Reason: ReasonImportCompleted, RequestID: shared.GenerateID()}
}

// Trigger delivers an event and waits until it has been processed.
//
// When no acknowledgement arrives in time it returns [shared.ErrAckTimeout];
// the event stays queued and will still be processed.
type Trigger interface {
	Trigger(ctx context.Context, e Event) error
}

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// Source reads what aggregation needs.
type Source interface {
	ReadAllPlays(ctx context.Context, userID string) ([]models.Play, error)
	GetDataSourceMode(ctx context.Context, userID string) (models.DataSourceMode, error)
}

// Sink stores computed rankings.
type Sink interface {
	Replace(ctx context.Context, userID string, artists []repositories.ArtistCount, tracks []repositories.TrackCount) error
}

// Worker rebuilds top artists and tracks from the plays in scope for the user's mode.
type Worker struct {
	source Source
	sink   Sink
	limit  int
	logger *log.Logger
}

// NewWorker creates a worker. A limit of zero or less uses [DefaultLimit].
func NewWorker(source Source, sink Sink, limit int, logger *log.Logger) *Worker {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Worker{source: source, sink: sink, limit: limit, logger: logger}
}

// Handle implements [Handler].
func (w *Worker) Handle(ctx context.Context, e Event) error {
	started := time.Now()

	plays, err := w.source.ReadAllPlays(ctx, e.UserID)
	if err != nil {
		return fmt.Errorf("failed to read plays: %w", err)
	}
	mode, err := w.source.GetDataSourceMode(ctx, e.UserID)
	if err != nil {
		return fmt.Errorf("failed to read mode: %w", err)
	}

	scoped := reconcile.Scope(mode, plays)
	artists, tracks := Compute(scoped, w.limit)
	if err := w.sink.Replace(ctx, e.UserID, artists, tracks); err != nil {
		return fmt.Errorf("failed to save aggregates: %w", err)
	}

	w.logger.Info("aggregates rebuilt",
		"user", e.UserID,
		"request", e.RequestID,
		"mode", mode,
		"plays", len(scoped),
		"artists", len(artists),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return nil
}

type tally struct {
	artist string
	track  string
	count  int
	ms     int64
}

// Compute ranks artists and tracks by play count, then listening time, then name.
// Names that normalize to the same identity are counted together under the first spelling seen.
func Compute(plays []models.Play, limit int) ([]repositories.ArtistCount, []repositories.TrackCount) {
	artists := map[string]*tally{}
	tracks := map[string]*tally{}

	for _, p := range plays {
		var ms int64
		if p.MsPlayed != nil {
			ms = *p.MsPlayed
		}

		ak := shared.NormalizeName(p.Artist)
		a, ok := artists[ak]
		if !ok {
			a = &tally{artist: p.Artist}
			artists[ak] = a
		}
		a.count++
		a.ms += ms

		tk := shared.NormalizeTrackKey(p.Artist, p.Track)
		t, ok := tracks[tk]
		if !ok {
			t = &tally{artist: p.Artist, track: p.Track}
			tracks[tk] = t
		}
		t.count++
		t.ms += ms
	}

	topArtists := rank(artists, limit)
	outArtists := make([]repositories.ArtistCount, len(topArtists))
	for i, a := range topArtists {
		outArtists[i] = repositories.ArtistCount{Rank: i + 1, Artist: a.artist, PlayCount: a.count, MsPlayed: a.ms}
	}

	topTracks := rank(tracks, limit)
	outTracks := make([]repositories.TrackCount, len(topTracks))
	for i, t := range topTracks {
		outTracks[i] = repositories.TrackCount{Rank: i + 1, Artist: t.artist, Track: t.track, PlayCount: t.count, MsPlayed: t.ms}
	}
	return outArtists, outTracks
}

func rank(m map[string]*tally, limit int) []*tally {
	out := make([]*tally, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.count != b.count {
			return a.count > b.count
		}
		if a.ms != b.ms {
			return a.ms > b.ms
		}
		if a.artist != b.artist {
			return a.artist < b.artist
		}
		return a.track < b.track
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
