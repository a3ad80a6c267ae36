package eventsync

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/technosupport/ts-evcam/internal/camera"
	"github.com/technosupport/ts-evcam/internal/data"
)

// blockingLister parks the fetch until released so a pass holds the
// run slot for as long as the test needs.
type blockingLister struct {
	started chan struct{}
	release chan struct{}
	once    *sync.Once
}

func (b blockingLister) ListEvents(ctx context.Context) ([]camera.EventRecord, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil, nil
}

func (b blockingLister) ListActiveEvents(ctx context.Context) ([]camera.EventRecord, error) {
	return nil, nil
}

func TestTryRunRejectsConcurrent(t *testing.T) {
	store := newMemEventStore()
	cam := testCamera("front")
	cams := &memCameraStore{cams: []*data.Camera{cam}}

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	factory := func(c *data.Camera) EventLister {
		return blockingLister{started: started, release: release, once: &once}
	}
	eng := NewEngine(store, cams, NewCameraSource(factory), NewDropDirSource(filepath.Join(t.TempDir(), "absent")), NoFallbackResolver{}, nil, EngineConfig{})
	sched := NewScheduler(eng, SchedulerConfig{Enabled: true, SyncInterval: time.Hour})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := sched.TryRun(context.Background(), nil); err != nil {
			t.Errorf("first run failed: %v", err)
		}
	}()

	<-started
	if _, err := sched.TryRun(context.Background(), nil); !errors.Is(err, ErrSyncRunning) {
		t.Errorf("concurrent run: got %v, want ErrSyncRunning", err)
	}

	close(release)
	wg.Wait()

	// Slot freed; a new run must be admitted.
	if _, err := sched.TryRun(context.Background(), nil); err != nil {
		t.Errorf("run after release failed: %v", err)
	}
}

func TestKickNeverBlocks(t *testing.T) {
	eng := NewEngine(newMemEventStore(), &memCameraStore{}, NewCameraSource(nil), NewDropDirSource(filepath.Join(t.TempDir(), "absent")), NoFallbackResolver{}, nil, EngineConfig{})
	sched := NewScheduler(eng, SchedulerConfig{Enabled: true, SyncInterval: time.Hour})

	// Kicks coalesce; piling them up must never block the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			sched.Kick()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Kick blocked")
	}
}

// ctxBlockingLister parks the fetch until its context is cancelled,
// simulating a camera that never answers.
type ctxBlockingLister struct {
	started chan struct{}
	once    *sync.Once
}

func (b ctxBlockingLister) ListEvents(ctx context.Context) ([]camera.EventRecord, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b ctxBlockingLister) ListActiveEvents(ctx context.Context) ([]camera.EventRecord, error) {
	return nil, nil
}

func TestStopCancelsScheduledPass(t *testing.T) {
	store := newMemEventStore()
	cams := &memCameraStore{cams: []*data.Camera{testCamera("front")}}

	started := make(chan struct{})
	var once sync.Once
	factory := func(c *data.Camera) EventLister {
		return ctxBlockingLister{started: started, once: &once}
	}
	eng := NewEngine(store, cams, NewCameraSource(factory), NewDropDirSource(filepath.Join(t.TempDir(), "absent")), NoFallbackResolver{}, nil, EngineConfig{})

	// PassTimeout is deliberately huge: only cancellation can unblock
	// the stuck fetch.
	sched := NewScheduler(eng, SchedulerConfig{Enabled: true, SyncInterval: 5 * time.Millisecond, PassTimeout: time.Hour})
	sched.Start()
	<-started

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked behind an in-flight pass")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	eng := NewEngine(newMemEventStore(), &memCameraStore{}, NewCameraSource(nil), NewDropDirSource(filepath.Join(t.TempDir(), "absent")), NoFallbackResolver{}, nil, EngineConfig{})
	sched := NewScheduler(eng, SchedulerConfig{Enabled: true, SyncInterval: 10 * time.Millisecond})

	sched.Start()
	time.Sleep(50 * time.Millisecond)
	sched.Stop() // must not hang or panic
}
