package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/desertthunder/histx/internal/catalog"
	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
)

// File is one uploaded file. Data must support random access so archives can be read without buffering.
type File struct {
	Name string
	Size int64
	Data io.ReaderAt
}

// FromBytes wraps an in-memory upload.
func FromBytes(name string, b []byte) File {
	return File{Name: name, Size: int64(len(b)), Data: bytes.NewReader(b)}
}

// OpenFile opens a file on disk. The caller closes the returned [os.File].
func OpenFile(p string) (File, *os.File, error) {
	f, err := os.Open(p)
	if err != nil {
		return File{}, nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return File{}, nil, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return File{Name: path.Base(p), Size: info.Size(), Data: f}, f, nil
}

// Emit receives each record as it is parsed. Returning an error stops parsing.
type Emit func(models.RawRecord) error

// Pipeline is the parse, resolve and canonicalize triple for one platform.
type Pipeline interface {
	// Platform identifies the export provider.
	Platform() models.Platform

	// NeedsResolution reports whether records arrive without an artist.
	NeedsResolution() bool

	// Parse validates the uploaded files and streams their records to emit.
	// Package and format checks run before the first record is emitted.
	Parse(ctx context.Context, files []File, emit Emit) error

	// Resolve fills in missing artists in place.
	Resolve(ctx context.Context, records []models.RawRecord, r *catalog.Resolver) (catalog.Stats, error)

	// Canonicalize maps records to plays for userID, dropping those that are not real listens.
	Canonicalize(userID string, records []models.RawRecord, opts CanonicalOptions) ([]models.Play, DropStats)
}

// For returns the pipeline for platform p.
func For(p models.Platform) (Pipeline, error) {
	switch p {
	case models.PlatformSpotify:
		return spotify{}, nil
	case models.PlatformAppleMusic:
		return appleMusic{}, nil
	}
	return nil, fmt.Errorf("%w: %q", shared.ErrUnknownPlatform, p)
}

// ParsePlatform accepts the platform id or a loose spelling of its name.
func ParsePlatform(s string) (models.Platform, error) {
	switch strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)) {
	case "spotify":
		return models.PlatformSpotify, nil
	case "applemusic", "apple", "itunes":
		return models.PlatformAppleMusic, nil
	}
	return "", fmt.Errorf("%w: %q", shared.ErrUnknownPlatform, s)
}
