// Package catalog resolves missing artist names from (album, track) pairs.
//
// A [Catalog] answers single lookups. [Resolver] drives a batch of records
// through a catalog, consulting a [Cache] first so repeated pairs are looked up
// once, and reports how many records it could fill in.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/histx/internal/shared"
)

// ErrNotFound is returned by a [Catalog] that has no artist for the pair.
var ErrNotFound = fmt.Errorf("artist not found in catalog")

// Catalog maps an album and track to the performing artist.
type Catalog interface {
	LookupArtist(ctx context.Context, album, track string) (string, error)
}

// Key identifies a lookup by normalized album and track.
type Key struct {
	Album string
	Track string
}

// NewKey normalizes album and track the same way play identities are normalized.
func NewKey(album, track string) Key {
	return Key{Album: shared.NormalizeName(album), Track: shared.NormalizeName(track)}
}

// Chain tries each catalog in order and returns the first hit.
//
// A catalog failing with anything other than [ErrNotFound] is logged and skipped.
type Chain struct {
	catalogs []Catalog
	logger   *log.Logger
}

// NewChain builds a chain, ignoring nil catalogs.
func NewChain(logger *log.Logger, catalogs ...Catalog) *Chain {
	c := &Chain{logger: logger}
	for _, cat := range catalogs {
		if cat != nil {
			c.catalogs = append(c.catalogs, cat)
		}
	}
	return c
}

func (c *Chain) LookupArtist(ctx context.Context, album, track string) (string, error) {
	var lastErr error
	for _, cat := range c.catalogs {
		artist, err := cat.LookupArtist(ctx, album, track)
		if err == nil && artist != "" {
			return artist, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			lastErr = err
			if c.logger != nil {
				c.logger.Warn("catalog lookup failed", "album", album, "track", track, "error", err)
			}
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %w", ErrNotFound, lastErr)
	}
	return "", ErrNotFound
}

// Map is a fixed in-memory catalog.
type Map map[Key]string

// Add records artist for album and track.
func (m Map) Add(album, track, artist string) {
	m[NewKey(album, track)] = artist
}

func (m Map) LookupArtist(_ context.Context, album, track string) (string, error) {
	if artist, ok := m[NewKey(album, track)]; ok {
		return artist, nil
	}
	return "", ErrNotFound
}

// Store persists learned album and track to artist mappings.
type Store interface {
	Catalog
	SaveArtist(ctx context.Context, album, track, artist, source string) error
}

// WriteBack consults a local store first and saves remote hits into it.
type WriteBack struct {
	local  Store
	remote Catalog
	source string
	logger *log.Logger
}

// NewWriteBack wraps remote so its answers are remembered in local.
func NewWriteBack(local Store, remote Catalog, source string, logger *log.Logger) *WriteBack {
	return &WriteBack{local: local, remote: remote, source: source, logger: logger}
}

func (w *WriteBack) LookupArtist(ctx context.Context, album, track string) (string, error) {
	if artist, err := w.local.LookupArtist(ctx, album, track); err == nil && artist != "" {
		return artist, nil
	}

	artist, err := w.remote.LookupArtist(ctx, album, track)
	if err != nil {
		return "", err
	}

	if err := w.local.SaveArtist(ctx, album, track, artist, w.source); err != nil && w.logger != nil {
		w.logger.Warn("failed to remember catalog hit", "album", album, "track", track, "error", err)
	}
	return artist, nil
}
