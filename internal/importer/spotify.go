package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/desertthunder/histx/internal/catalog"
	"github.com/desertthunder/histx/internal/models"
)

// spotifyKind classifies an entry of a Spotify export.
type spotifyKind int

const (
	spotifyIgnore spotifyKind = iota
	spotifyHistory
	spotifyVideo
	spotifyAccountData
)

// Files that only appear in the "Account data" package.
var spotifyAccountFiles = map[string]bool{
	"userdata.json":      true,
	"identity.json":      true,
	"payments.json":      true,
	"follow.json":        true,
	"inferences.json":    true,
	"yourlibrary.json":   true,
	"searchqueries.json": true,
	"marquee.json":       true,
	"wrapped2023.json":   true,
	"wrapped2024.json":   true,
}

// spotifyItem is one element of Streaming_History_Audio_*.json or endsong_*.json.
type spotifyItem struct {
	TS        flexTime `json:"ts"`
	MsPlayed  *int64   `json:"ms_played"`
	Track     *string  `json:"master_metadata_track_name"`
	Artist    *string  `json:"master_metadata_album_artist_name"`
	Album     *string  `json:"master_metadata_album_album_name"`
	ReasonEnd string   `json:"reason_end"`
}

func classifySpotifyName(base string) spotifyKind {
	lower := strings.ToLower(base)
	switch {
	case !strings.HasSuffix(lower, ".json"):
		return spotifyIgnore
	case strings.HasPrefix(lower, "streaming_history_audio"), strings.HasPrefix(lower, "endsong"):
		return spotifyHistory
	case strings.HasPrefix(lower, "streaming_history_video"):
		return spotifyVideo
	case strings.HasPrefix(lower, "streaminghistory"), strings.HasPrefix(lower, "playlist"), spotifyAccountFiles[lower]:
		return spotifyAccountData
	}
	return spotifyIgnore
}

// sniffSpotify inspects the keys of the first object of a loose JSON file whose name was not recognized.
func sniffSpotify(e entry) spotifyKind {
	rc, err := e.open()
	if err != nil {
		return spotifyIgnore
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
		return spotifyIgnore
	}
	if !dec.More() {
		return spotifyIgnore
	}

	var first map[string]json.RawMessage
	if err := dec.Decode(&first); err != nil {
		return spotifyIgnore
	}

	has := func(k string) bool { _, ok := first[k]; return ok }
	switch {
	case has("ts") && (has("master_metadata_track_name") || has("ms_played")):
		return spotifyHistory
	case has("endTime") && (has("artistName") || has("trackName")):
		return spotifyAccountData
	}
	return spotifyIgnore
}

type spotify struct{}

func (spotify) Platform() models.Platform { return models.PlatformSpotify }

func (spotify) NeedsResolution() bool { return false }

// Parse accepts the extended streaming history package, as a zip or as loose JSON files.
func (s spotify) Parse(ctx context.Context, files []File, emit Emit) error {
	p := s.Platform()
	entries, err := expand(p, files)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return unknownFailure(p, "no files were uploaded", nil)
	}

	var history []entry
	var accountFiles []string
	for _, e := range entries {
		kind := classifySpotifyName(e.base())
		if kind == spotifyIgnore && e.loose {
			kind = sniffSpotify(e)
		}
		switch kind {
		case spotifyHistory:
			history = append(history, e)
		case spotifyAccountData:
			accountFiles = append(accountFiles, e.base())
		}
	}

	if len(history) == 0 {
		if len(accountFiles) > 0 {
			return wrongPackage(p, fmt.Sprintf("found account data files (%s) but no extended streaming history", strings.Join(accountFiles, ", ")))
		}
		return unknownFailure(p, "no Spotify streaming history files found", nil)
	}

	sort.Slice(history, func(i, j int) bool { return history[i].name < history[j].name })

	for _, e := range history {
		if err := s.parseEntry(ctx, e, emit); err != nil {
			return err
		}
	}
	return nil
}

func (s spotify) parseEntry(ctx context.Context, e entry, emit Emit) error {
	p := s.Platform()
	rc, err := e.open()
	if err != nil {
		return unknownFailure(p, fmt.Sprintf("cannot open %s", e.name), err)
	}
	defer rc.Close()

	err = decodeArray(rc, func(dec *json.Decoder, i int) error {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		var item spotifyItem
		if err := dec.Decode(&item); err != nil {
			return &decodeError{err: err}
		}

		rec := models.RawRecord{
			Platform:  p,
			Artist:    nonEmpty(item.Artist),
			Album:     nonEmpty(item.Album),
			Timestamp: item.TS.Time,
			MsPlayed:  item.MsPlayed,
			EndReason: item.ReasonEnd,
			Origin:    e.base(),
		}
		if item.Track != nil {
			rec.Track = *item.Track
		}
		return emit(rec)
	})

	var de *decodeError
	if errors.As(err, &de) {
		return unknownFailure(p, fmt.Sprintf("%s is not valid streaming history", e.base()), de.err)
	}
	return err
}

func (spotify) Resolve(context.Context, []models.RawRecord, *catalog.Resolver) (catalog.Stats, error) {
	return catalog.Stats{}, nil
}

func (s spotify) Canonicalize(userID string, records []models.RawRecord, opts CanonicalOptions) ([]models.Play, DropStats) {
	opts.DurationRequired = true
	return canonicalize(userID, s.Platform().Source(), records, opts)
}

// decodeError marks malformed input, as opposed to errors returned by the callback's caller.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }

// decodeArray streams the elements of a top-level JSON array, calling fn once per element.
func decodeArray(r io.Reader, fn func(dec *json.Decoder, i int) error) error {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return &decodeError{err: err}
	}
	if tok != json.Delim('[') {
		return &decodeError{err: fmt.Errorf("expected a JSON array, got %v", tok)}
	}

	for i := 0; dec.More(); i++ {
		if err := fn(dec, i); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
