package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/histx/internal/models"
)

// Stats summarizes one resolution run.
type Stats struct {
	Records     int `json:"records"`
	Needed      int `json:"needed"`
	Resolved    int `json:"resolved"`
	UniquePairs int `json:"unique_pairs"`
	CacheHits   int `json:"cache_hits"`
	Lookups     int `json:"lookups"`
	Failures    int `json:"failures"`
}

// MatchRatePercent is the share of records needing an artist that got one.
func (s Stats) MatchRatePercent() float64 {
	if s.Needed == 0 {
		return 100
	}
	return float64(s.Resolved) * 100 / float64(s.Needed)
}

// Resolver fills in missing artists for a batch of records.
type Resolver struct {
	catalog  Catalog
	cache    Cache
	logger   *log.Logger
	progress func(done, total int)
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithCache replaces the default run-scoped cache, e.g. with a [SharedCache].
func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithLogger sets the logger for lookup failures.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithProgress is called after each unique pair is resolved.
func WithProgress(fn func(done, total int)) Option {
	return func(r *Resolver) { r.progress = fn }
}

// NewResolver builds a resolver over c. Without [WithCache] each resolver gets its own [RunCache].
func NewResolver(c Catalog, opts ...Option) *Resolver {
	r := &Resolver{catalog: c}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewRunCache()
	}
	return r
}

// Resolve sets Artist on records that lack one, in place.
//
// Each distinct (album, track) pair is looked up once. Misses leave Artist nil
// and do not fail the run; only context cancellation does.
func (r *Resolver) Resolve(ctx context.Context, records []models.RawRecord) (Stats, error) {
	stats := Stats{Records: len(records)}

	type pair struct {
		album, track string
	}
	var order []Key
	pairs := make(map[Key]pair)
	for _, rec := range records {
		if rec.Artist != nil {
			continue
		}
		stats.Needed++
		album := ""
		if rec.Album != nil {
			album = *rec.Album
		}
		k := NewKey(album, rec.Track)
		if _, ok := pairs[k]; !ok {
			pairs[k] = pair{album: strings.TrimSpace(album), track: strings.TrimSpace(rec.Track)}
			order = append(order, k)
		}
	}
	stats.UniquePairs = len(order)

	found := make(map[Key]string, len(order))
	for i, k := range order {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if artist, ok := r.cache.Get(k); ok {
			stats.CacheHits++
			found[k] = artist
		} else {
			p := pairs[k]
			artist, err := r.lookup(ctx, p.album, p.track)
			stats.Lookups++
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return stats, ctxErr
				}
				stats.Failures++
			}
			r.cache.Put(k, artist)
			found[k] = artist
		}

		if r.progress != nil {
			r.progress(i+1, len(order))
		}
	}

	for i := range records {
		if records[i].Artist != nil {
			continue
		}
		album := ""
		if records[i].Album != nil {
			album = *records[i].Album
		}
		if artist := found[NewKey(album, records[i].Track)]; artist != "" {
			a := artist
			records[i].Artist = &a
			stats.Resolved++
		}
	}
	return stats, nil
}

// lookup returns "" with a nil error on a plain miss.
func (r *Resolver) lookup(ctx context.Context, album, track string) (string, error) {
	if album == "" && track == "" {
		return "", nil
	}
	artist, err := r.catalog.LookupArtist(ctx, album, track)
	if err == nil {
		return strings.TrimSpace(artist), nil
	}
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if r.logger != nil {
		r.logger.Warn("artist lookup failed", "album", album, "track", track, "error", err)
	}
	return "", err
}
