package eventsync

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSyncRunning is returned when a pass is requested while another
// one holds the run slot. Callers retry; passes are never queued.
var ErrSyncRunning = errors.New("eventsync: sync already running")

type SchedulerConfig struct {
	Enabled      bool
	SyncInterval time.Duration
	PassTimeout  time.Duration
}

// Scheduler owns the single run slot for the engine: periodic ticks,
// filesystem nudges and manual triggers all funnel through TryRun.
type Scheduler struct {
	engine *Engine
	cfg    SchedulerConfig

	mu      sync.Mutex
	running bool

	kickChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup

	// rootCtx is cancelled by Stop so an in-flight scheduled pass
	// winds down instead of running out its timeout.
	rootCtx    context.Context
	cancelRoot context.CancelFunc
}

func NewScheduler(engine *Engine, cfg SchedulerConfig) *Scheduler {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 60 * time.Second
	}
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		engine:     engine,
		cfg:        cfg,
		kickChan:   make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
		rootCtx:    ctx,
		cancelRoot: cancel,
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		return
	}
	s.wg.Add(1)
	go s.runLoop()
}

func (s *Scheduler) Stop() {
	s.cancelRoot()
	if !s.cfg.Enabled {
		return
	}
	close(s.stopChan)
	s.wg.Wait()
}

// Kick requests an out-of-band pass, coalescing with any pending kick.
// Used by the drop-directory watcher; never blocks.
func (s *Scheduler) Kick() {
	select {
	case s.kickChan <- struct{}{}:
	default:
	}
}

// TryRun executes one pass if the run slot is free. A held slot yields
// ErrSyncRunning immediately.
func (s *Scheduler) TryRun(ctx context.Context, cameraID *uuid.UUID) (Summary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Summary{}, ErrSyncRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.PassTimeout)
	defer cancel()
	return s.engine.Run(runCtx, cameraID)
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runScheduled("tick")
		case <-s.kickChan:
			s.runScheduled("kick")
		}
	}
}

func (s *Scheduler) runScheduled(cause string) {
	summary, err := s.TryRun(s.rootCtx, nil)
	if err != nil {
		if errors.Is(err, ErrSyncRunning) {
			// A manual trigger beat the timer; its pass covers this one.
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("[ERROR] eventsync: scheduled pass (%s): %v", cause, err)
		return
	}
	if summary.NewEvents > 0 || len(summary.Failures) > 0 {
		log.Printf("[INFO] eventsync: pass (%s): %d new events, %d cameras, %d failures",
			cause, summary.NewEvents, summary.CamerasProcessed, len(summary.Failures))
	}
}
