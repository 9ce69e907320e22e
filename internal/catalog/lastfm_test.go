package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLastFM(t *testing.T, handler http.HandlerFunc) *LastFM {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewLastFM("test-key", srv.URL, time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	c.delays = []time.Duration{time.Millisecond, time.Millisecond}
	return c
}

func TestLastFM(t *testing.T) {
	t.Run("Missing API Key", func(t *testing.T) {
		if _, err := NewLastFM("", "", 0); err == nil {
			t.Error("expected error for missing api key")
		}
	})

	t.Run("Album And Track Agree", func(t *testing.T) {
		c := newTestLastFM(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("api_key") != "test-key" {
				t.Errorf("expected api key to be sent")
			}
			switch r.URL.Query().Get("method") {
			case "album.search":
				w.Write([]byte(`{"results":{"albummatches":{"album":[
					{"name":"Takk...","artist":"Sigur Rós"},
					{"name":"Takk","artist":"Somebody Else"}]}}}`))
			case "track.search":
				w.Write([]byte(`{"results":{"trackmatches":{"track":[
					{"name":"Hoppípolla","artist":"Cover Band"},
					{"name":"Hoppipolla","artist":"Sigur Ros"}]}}}`))
			}
		})

		got, err := c.LookupArtist(context.Background(), "Takk...", "Hoppípolla")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "Sigur Ros" {
			t.Errorf("expected Sigur Ros, got %s", got)
		}
	})

	t.Run("Single Album Artist Wins", func(t *testing.T) {
		c := newTestLastFM(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("method") {
			case "album.search":
				w.Write([]byte(`{"results":{"albummatches":{"album":[{"name":"Kid A","artist":"Radiohead"}]}}}`))
			case "track.search":
				w.Write([]byte(`{"results":{"trackmatches":{"track":[]}}}`))
			}
		})

		got, err := c.LookupArtist(context.Background(), "Kid A", "Idioteque")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "Radiohead" {
			t.Errorf("expected Radiohead, got %s", got)
		}
	})

	t.Run("Ambiguous Is Not Found", func(t *testing.T) {
		c := newTestLastFM(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("method") {
			case "album.search":
				w.Write([]byte(`{"results":{"albummatches":{"album":[
					{"name":"Greatest Hits","artist":"Queen"},
					{"name":"Greatest Hits","artist":"ABBA"}]}}}`))
			case "track.search":
				w.Write([]byte(`{"results":{"trackmatches":{"track":[{"name":"Intro","artist":"Nobody"}]}}}`))
			}
		})

		if _, err := c.LookupArtist(context.Background(), "Greatest Hits", "Intro"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Retries When Rate Limited", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestLastFM(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Write([]byte(`{"error":29,"message":"Rate limit exceeded"}`))
				return
			}
			w.Write([]byte(`{"results":{"trackmatches":{"track":[{"name":"Song","artist":"Band"}]}}}`))
		})

		got, err := c.LookupArtist(context.Background(), "", "Song")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "Band" {
			t.Errorf("expected Band, got %s", got)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}
	})

	t.Run("Gives Up After Retries", func(t *testing.T) {
		c := newTestLastFM(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		if _, err := c.LookupArtist(context.Background(), "", "Song"); !errors.Is(err, ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
	})

	t.Run("Invalid API Key", func(t *testing.T) {
		c := newTestLastFM(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":10,"message":"Invalid API key"}`))
		})

		if _, err := c.LookupArtist(context.Background(), "Album", "Song"); !errors.Is(err, ErrInvalidAPIKey) {
			t.Errorf("expected ErrInvalidAPIKey, got %v", err)
		}
	})
}
