package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/histx/internal/aggregate"
	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/shared"
	tu "github.com/desertthunder/histx/internal/testing"
)

type memoryJobs struct {
	mu      sync.Mutex
	created []string
	updated map[string]models.ImportStatus
	err     error
}

func (m *memoryJobs) Create(job *models.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, job.ID())
	return nil
}

func (m *memoryJobs) Update(job *models.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updated == nil {
		m.updated = map[string]models.ImportStatus{}
	}
	m.updated[job.ID()] = job.Status()
	return nil
}

// gateTrigger holds each import at the trigger stage until released.
type gateTrigger struct {
	reached chan struct{}
	release chan struct{}
}

func newGateTrigger() *gateTrigger {
	return &gateTrigger{reached: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gateTrigger) Trigger(ctx context.Context, _ aggregate.Event) error {
	g.reached <- struct{}{}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitJob(t *testing.T, job *Job) models.ImportResult {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("job did not finish")
	}
	res, ok := job.Result()
	if !ok {
		t.Fatal("expected a terminal result")
	}
	return res
}

func TestJobRunner_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("Records Events And Audit", func(t *testing.T) {
		audit := &memoryJobs{}
		runner := NewJobRunner(ctx, NewImportEngine(tu.NewMemoryStore(), WithTrigger(&stubTrigger{})), audit, nil)

		job, err := runner.Submit(spotifyRequest("u1", tu.GenerateSpotifyEntries(50, base, time.Hour)), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.ID == "" {
			t.Fatal("expected a job id")
		}

		res := waitJob(t, job)
		if res.Status != models.StatusSuccess || res.JobID != job.ID {
			t.Errorf("unexpected result %+v", res)
		}

		events, _, finished := job.Events(0)
		if !finished {
			t.Error("expected job to be finished")
		}
		for i, ev := range events {
			if ev.Seq != i {
				t.Fatalf("expected seq %d, got %d", i, ev.Seq)
			}
		}
		if last := events[len(events)-1]; last.Phase != PhaseDone {
			t.Errorf("expected last event done, got %s", last.Phase)
		}

		tail, _, _ := job.Events(len(events) - 1)
		if len(tail) != 1 {
			t.Errorf("expected 1 event from offset, got %d", len(tail))
		}

		got, err := runner.Get(job.ID)
		if err != nil || got != job {
			t.Errorf("expected Get to return the job, got %v", err)
		}

		audit.mu.Lock()
		defer audit.mu.Unlock()
		if len(audit.created) != 1 || audit.updated[job.ID] != models.StatusSuccess {
			t.Errorf("expected audit rows, got %v %v", audit.created, audit.updated)
		}
	})

	t.Run("Rejects Concurrent Import For Same User", func(t *testing.T) {
		gate := newGateTrigger()
		runner := NewJobRunner(ctx, NewImportEngine(tu.NewMemoryStore(), WithTrigger(gate)), nil, nil)

		cleaned := make(chan struct{})
		first, err := runner.Submit(spotifyRequest("u1", tu.GenerateSpotifyEntries(5, base, time.Hour)), func() { close(cleaned) })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		<-gate.reached

		if _, ok := first.Result(); ok {
			t.Fatal("expected first job to still be running")
		}
		if res, _ := first.Result(); res.Status != models.StatusRunning {
			t.Errorf("expected running status, got %s", res.Status)
		}

		_, err = runner.Submit(spotifyRequest("u1", tu.GenerateSpotifyEntries(5, base, time.Hour)), nil)
		if !errors.Is(err, shared.ErrImportInProgress) {
			t.Errorf("expected ErrImportInProgress, got %v", err)
		}

		close(gate.release)
		waitJob(t, first)

		select {
		case <-cleaned:
		case <-time.After(5 * time.Second):
			t.Error("expected cleanup to run")
		}

		if !runner.Wait(5 * time.Second) {
			t.Fatal("expected runner to drain")
		}
		second, err := runner.Submit(spotifyRequest("u1", tu.GenerateSpotifyEntries(5, base.Add(24*time.Hour), time.Hour)), nil)
		if err != nil {
			t.Fatalf("expected import after the first finished, got %v", err)
		}
		waitJob(t, second)
	})

	t.Run("Unknown Platform", func(t *testing.T) {
		runner := NewJobRunner(ctx, NewImportEngine(tu.NewMemoryStore()), nil, nil)
		_, err := runner.Submit(Request{UserID: "u1", Platform: "tidal"}, nil)
		if !errors.Is(err, shared.ErrUnknownPlatform) {
			t.Errorf("expected ErrUnknownPlatform, got %v", err)
		}
	})

	t.Run("Audit Failure Releases Lock", func(t *testing.T) {
		engine := NewImportEngine(tu.NewMemoryStore())
		runner := NewJobRunner(ctx, engine, &memoryJobs{err: errors.New("disk full")}, nil)

		if _, err := runner.Submit(spotifyRequest("u1", tu.GenerateSpotifyEntries(5, base, time.Hour)), nil); err == nil {
			t.Fatal("expected error")
		}
		lease, err := engine.Lock(ctx, "u1")
		if err != nil {
			t.Fatalf("expected lock to be free, got %v", err)
		}
		lease.Release(ctx)
	})

	t.Run("Missing Job", func(t *testing.T) {
		runner := NewJobRunner(ctx, NewImportEngine(tu.NewMemoryStore()), nil, nil)
		if _, err := runner.Get("nope"); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})
}

func TestJobRunner_Prune(t *testing.T) {
	ctx := context.Background()
	gate := newGateTrigger()
	runner := NewJobRunner(ctx, NewImportEngine(tu.NewMemoryStore(), WithTrigger(gate)), nil, nil)
	runner.SetRetention(time.Minute)

	job, err := runner.Submit(spotifyRequest("u1", tu.GenerateSpotifyEntries(10, base, time.Hour)), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-gate.reached

	if n := runner.Prune(time.Now().Add(time.Hour)); n != 0 {
		t.Errorf("expected running job kept, pruned %d", n)
	}

	close(gate.release)
	waitJob(t, job)

	if n := runner.Prune(time.Now()); n != 0 {
		t.Errorf("expected recently finished job kept, pruned %d", n)
	}
	if _, err := runner.Get(job.ID); err != nil {
		t.Errorf("expected job within retention, got %v", err)
	}

	if n := runner.Prune(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Errorf("expected 1 job evicted, got %d", n)
	}
	if _, err := runner.Get(job.ID); !errors.Is(err, shared.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound after eviction, got %v", err)
	}

	if _, ok := job.Result(); !ok {
		t.Error("expected an evicted job handle to keep its result")
	}
}

func TestJob_Subscribe(t *testing.T) {
	job := newJob("j1", Request{UserID: "u1", Platform: models.PlatformSpotify})
	job.append(ProgressUpdate{Phase: PhaseParse})
	job.append(ProgressUpdate{Phase: PhaseResolve})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := job.Subscribe(ctx, 1)

	first := <-ch
	if first.Seq != 1 || first.Phase != PhaseResolve {
		t.Errorf("expected replay from offset 1, got %+v", first)
	}

	go func() {
		job.append(ProgressUpdate{Phase: PhaseDedup})
		job.append(ProgressUpdate{Phase: PhaseDone})
		job.finish(models.ImportResult{Status: models.StatusSuccess})
	}()

	var phases []Phase
	for u := range ch {
		phases = append(phases, u.Phase)
	}
	if len(phases) != 2 || phases[0] != PhaseDedup || phases[1] != PhaseDone {
		t.Errorf("expected live events until finish, got %v", phases)
	}
}

func TestJob_SubscribeCancel(t *testing.T) {
	job := newJob("j1", Request{UserID: "u1", Platform: models.PlatformSpotify})

	ctx, cancel := context.WithCancel(context.Background())
	ch := job.Subscribe(ctx, 0)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected no events")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not end on cancel")
	}
}
