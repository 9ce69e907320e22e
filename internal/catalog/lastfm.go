package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/histx/internal/shared"
)

const (
	LastFMBaseURL = "https://ws.audioscrobbler.com/2.0/"
	userAgent     = "histx/1.0"
	searchLimit   = 30
)

// Last.fm API error codes.
const (
	errCodeInvalidAPIKey = 10
	errCodeRateLimited   = 29
)

var (
	// ErrRateLimited is returned when Last.fm keeps rejecting requests after retries.
	ErrRateLimited = fmt.Errorf("rate limit exceeded")

	// ErrInvalidAPIKey is returned when Last.fm rejects the API key.
	ErrInvalidAPIKey = fmt.Errorf("invalid API key")
)

type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type trackSearchResponse struct {
	Results struct {
		TrackMatches struct {
			Track []struct {
				Name   string `json:"name"`
				Artist string `json:"artist"`
			} `json:"track"`
		} `json:"trackmatches"`
	} `json:"results"`
}

type albumSearchResponse struct {
	Results struct {
		AlbumMatches struct {
			Album []struct {
				Name   string `json:"name"`
				Artist string `json:"artist"`
			} `json:"album"`
		} `json:"albummatches"`
	} `json:"results"`
}

// LastFM looks up artists with the Last.fm search API.
type LastFM struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	delays     []time.Duration
}

// NewLastFM creates a client. An empty baseURL uses [LastFMBaseURL].
func NewLastFM(apiKey, baseURL string, timeout time.Duration) (*LastFM, error) {
	if apiKey == "" {
		return nil, shared.ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = LastFMBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LastFM{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		delays:     []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}, nil
}

// LookupArtist searches the album and the track and picks the artist they agree on.
//
// When they do not agree, an album with a single matching artist wins, then a
// track title with a single matching artist.
func (c *LastFM) LookupArtist(ctx context.Context, album, track string) (string, error) {
	var albumArtists []string
	if album != "" {
		artists, err := c.searchAlbum(ctx, album)
		if err != nil {
			return "", err
		}
		albumArtists = artists
	}

	trackArtists, err := c.searchTrack(ctx, track)
	if err != nil {
		return "", err
	}

	onAlbum := make(map[string]bool, len(albumArtists))
	for _, a := range albumArtists {
		onAlbum[shared.NormalizeName(a)] = true
	}
	for _, a := range trackArtists {
		if onAlbum[shared.NormalizeName(a)] {
			return a, nil
		}
	}

	if a, ok := single(albumArtists); ok {
		return a, nil
	}
	if a, ok := single(trackArtists); ok && len(albumArtists) == 0 {
		return a, nil
	}
	return "", ErrNotFound
}

// single returns the only distinct artist in artists.
func single(artists []string) (string, bool) {
	if len(artists) == 0 {
		return "", false
	}
	first := shared.NormalizeName(artists[0])
	for _, a := range artists[1:] {
		if shared.NormalizeName(a) != first {
			return "", false
		}
	}
	return artists[0], true
}

func (c *LastFM) searchAlbum(ctx context.Context, album string) ([]string, error) {
	params := url.Values{
		"method":  {"album.search"},
		"album":   {album},
		"limit":   {fmt.Sprint(searchLimit)},
		"format":  {"json"},
		"api_key": {c.apiKey},
	}

	body, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("searching album: %w", err)
	}

	var resp albumSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing album search response: %w", err)
	}

	want := shared.NormalizeName(album)
	var artists []string
	for _, a := range resp.Results.AlbumMatches.Album {
		if shared.NormalizeName(a.Name) == want && a.Artist != "" {
			artists = append(artists, a.Artist)
		}
	}
	return artists, nil
}

func (c *LastFM) searchTrack(ctx context.Context, track string) ([]string, error) {
	params := url.Values{
		"method":  {"track.search"},
		"track":   {track},
		"limit":   {fmt.Sprint(searchLimit)},
		"format":  {"json"},
		"api_key": {c.apiKey},
	}

	body, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("searching track: %w", err)
	}

	var resp trackSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing track search response: %w", err)
	}

	want := shared.NormalizeName(track)
	var artists []string
	for _, t := range resp.Results.TrackMatches.Track {
		if shared.NormalizeName(t.Name) == want && t.Artist != "" {
			artists = append(artists, t.Artist)
		}
	}
	return artists, nil
}

// doRequest performs a GET, retrying rate-limited requests with exponential backoff.
func (c *LastFM) doRequest(ctx context.Context, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= len(c.delays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.delays[attempt-1]):
			}
		}

		body, err := c.doSingleRequest(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrRateLimited) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (c *LastFM) doSingleRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrCatalogFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != 0 {
		switch apiErr.Error {
		case errCodeRateLimited:
			return nil, ErrRateLimited
		case errCodeInvalidAPIKey:
			return nil, ErrInvalidAPIKey
		default:
			return nil, fmt.Errorf("%w: API error %d: %s", shared.ErrCatalogFailure, apiErr.Error, apiErr.Message)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: unexpected status %d", shared.ErrCatalogFailure, resp.StatusCode)
	}
	return body, nil
}
