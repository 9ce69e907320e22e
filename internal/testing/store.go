package testing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/desertthunder/histx/internal/models"
)

// MemoryStore is an in-memory play store with failure injection.
type MemoryStore struct {
	mu    sync.Mutex
	plays map[string][]models.Play
	modes map[string]models.DataSourceMode

	// InsertErr, when set, fails every BulkInsertPlays without storing anything.
	InsertErr error
	// ReadErr, when set, fails every ReadAllPlays.
	ReadErr error

	Inserts int
	Marks   int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plays: map[string][]models.Play{}, modes: map[string]models.DataSourceMode{}}
}

// Seed stores plays directly, bypassing failure injection.
func (s *MemoryStore) Seed(userID string, plays ...models.Play) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range plays {
		p.UserID = userID
		s.plays[userID] = append(s.plays[userID], p)
	}
}

func (s *MemoryStore) ReadAllPlays(_ context.Context, userID string) ([]models.Play, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}

	out := append([]models.Play(nil), s.plays[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlayedAt.Before(out[j].PlayedAt) })
	return out, nil
}

func (s *MemoryStore) BulkInsertPlays(_ context.Context, userID string, plays []models.Play) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	for _, p := range plays {
		if p.UserID != userID {
			return fmt.Errorf("play %s belongs to %q", p.ID, p.UserID)
		}
	}
	s.plays[userID] = append(s.plays[userID], plays...)
	if _, ok := s.modes[userID]; !ok {
		s.modes[userID] = models.ModeLiveOnly
	}
	s.Inserts++
	return nil
}

func (s *MemoryStore) MarkSuperseded(_ context.Context, userID string, ids []string) (int, error) {
	n := s.mark(userID, ids, func(p *models.Play) **time.Time { return &p.SupersededAt })
	s.mu.Lock()
	s.Marks += n
	s.mu.Unlock()
	return n, nil
}

func (s *MemoryStore) MarkStandIns(_ context.Context, userID string, ids []string) (int, error) {
	return s.mark(userID, ids, func(p *models.Play) **time.Time { return &p.StandsInAt }), nil
}

func (s *MemoryStore) mark(userID string, ids []string, field func(*models.Play) **time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	now := time.Now().UTC()
	n := 0
	for i := range s.plays[userID] {
		f := field(&s.plays[userID][i])
		if want[s.plays[userID][i].ID] && *f == nil {
			*f = &now
			n++
		}
	}
	return n
}

func (s *MemoryStore) GetDataSourceMode(_ context.Context, userID string) (models.DataSourceMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.modes[userID]; ok {
		return m, nil
	}
	return models.ModeLiveOnly, nil
}

func (s *MemoryStore) SetDataSourceMode(_ context.Context, userID string, mode models.DataSourceMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes[userID] = mode
	return nil
}

// Count returns the number of stored plays for userID.
func (s *MemoryStore) Count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.plays[userID])
}
