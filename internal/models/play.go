package models

import (
	"fmt"
	"time"
)

// SourceKind records where a Play came from.
type SourceKind string

const (
	SourceLive               SourceKind = "live"
	SourceImportedSpotify    SourceKind = "imported-spotify"
	SourceImportedAppleMusic SourceKind = "imported-applemusic"
)

// IsImported reports whether the play came from a bulk export.
func (s SourceKind) IsImported() bool {
	return s == SourceImportedSpotify || s == SourceImportedAppleMusic
}

// ParseSourceKind validates a stored source value.
func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(s); k {
	case SourceLive, SourceImportedSpotify, SourceImportedAppleMusic:
		return k, nil
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// Platform is an export provider the importer understands.
type Platform string

const (
	PlatformSpotify    Platform = "spotify"
	PlatformAppleMusic Platform = "applemusic"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{PlatformSpotify, PlatformAppleMusic}

// Source is the SourceKind stamped on plays imported from p.
func (p Platform) Source() SourceKind {
	switch p {
	case PlatformSpotify:
		return SourceImportedSpotify
	case PlatformAppleMusic:
		return SourceImportedAppleMusic
	}
	return ""
}

// DisplayName is the platform's name as users know it.
func (p Platform) DisplayName() string {
	switch p {
	case PlatformSpotify:
		return "Spotify"
	case PlatformAppleMusic:
		return "Apple Music"
	}
	return string(p)
}

// RawRecord is one export entry as read, before canonicalization.
//
// Artist and Album are nil when the export omits them. MsPlayed is nil when the
// entry had no duration.
type RawRecord struct {
	Platform  Platform
	Artist    *string
	Album     *string
	Track     string
	Timestamp time.Time
	MsPlayed  *int64
	EndReason string
	Origin    string
}

// Play is one recorded listen.
type Play struct {
	ID           string
	UserID       string
	Artist       string
	Album        *string
	Track        string
	PlayedAt     time.Time
	MsPlayed     *int64
	Source       SourceKind
	SupersededAt *time.Time
	// StandsInAt is set on a live play an import matched as the same listen.
	// The imported copy is dropped, so this play carries the listen for the imported period.
	StandsInAt *time.Time
	ImportID   string
}

// Superseded reports whether a later import took precedence over this play.
func (p Play) Superseded() bool {
	return p.SupersededAt != nil
}

// StandsIn reports whether this live play represents a listen an import also recorded.
func (p Play) StandsIn() bool {
	return p.StandsInAt != nil
}

// String formats a play for logs.
func (p Play) String() string {
	return fmt.Sprintf("%s - %s @ %s (%s)", p.Artist, p.Track, p.PlayedAt.Format(time.RFC3339), p.Source)
}

// StringPtr returns nil for the empty string and a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
