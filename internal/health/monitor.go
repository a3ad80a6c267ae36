// Package health runs the periodic camera reachability sweep and turns
// probe results into online/offline state transitions.
package health

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/ts-evcam/internal/data"
	"github.com/technosupport/ts-evcam/internal/metrics"
)

type Prober interface {
	TestConnection(ctx context.Context, cam *data.Camera) error
}

type CameraStore interface {
	ListActive(ctx context.Context) ([]*data.Camera, error)
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
}

// StatusNotifier receives transitions only, never steady state.
type StatusNotifier interface {
	CameraOnline(ctx context.Context, cam *data.Camera)
	CameraOffline(ctx context.Context, cam *data.Camera)
}

type MonitorConfig struct {
	Enabled       bool
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	MaxInflight   int
	// FailureThreshold is how many consecutive failed probes it takes
	// to declare a camera offline. One recovery probe flips it back.
	FailureThreshold int
}

type Monitor struct {
	cameras  CameraStore
	prober   Prober
	notifier StatusNotifier
	cfg      MonitorConfig

	mu       sync.Mutex
	failures map[uuid.UUID]int

	sem      chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewMonitor(cameras CameraStore, prober Prober, notifier StatusNotifier, cfg MonitorConfig) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 8
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	return &Monitor{
		cameras:  cameras,
		prober:   prober,
		notifier: notifier,
		cfg:      cfg,
		failures: make(map[uuid.UUID]int),
		sem:      make(chan struct{}, cfg.MaxInflight),
		stopChan: make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	if !m.cfg.Enabled {
		return
	}
	m.wg.Add(1)
	go m.runLoop()
}

func (m *Monitor) Stop() {
	if !m.cfg.Enabled {
		return
	}
	close(m.stopChan)
	m.wg.Wait()
}

func (m *Monitor) runLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Monitor) sweep() {
	ctx := context.Background()
	cams, err := m.cameras.ListActive(ctx)
	if err != nil {
		log.Printf("[ERROR] health: listing cameras: %v", err)
		return
	}

	var wg sync.WaitGroup
	online := 0
	var onlineMu sync.Mutex
	for _, cam := range cams {
		wg.Add(1)
		m.sem <- struct{}{}
		go func(cam *data.Camera) {
			defer wg.Done()
			defer func() { <-m.sem }()
			if m.check(ctx, cam) {
				onlineMu.Lock()
				online++
				onlineMu.Unlock()
			}
		}(cam)
	}
	wg.Wait()
	metrics.CamerasOnline.Set(float64(online))
}

// check probes one camera and applies the transition rules. Returns
// whether the camera is considered online after this probe.
func (m *Monitor) check(ctx context.Context, cam *data.Camera) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.prober.TestConnection(probeCtx, cam)
	cancel()

	if err == nil {
		metrics.HealthChecksTotal.WithLabelValues("ok").Inc()
		m.mu.Lock()
		delete(m.failures, cam.ID)
		m.mu.Unlock()

		if !cam.IsOnline {
			if dbErr := m.cameras.SetOnline(ctx, cam.ID, true); dbErr != nil {
				log.Printf("[ERROR] health: marking %s online: %v", cam.Name, dbErr)
				return true
			}
			log.Printf("[INFO] health: camera %s is back online", cam.Name)
			if m.notifier != nil {
				m.notifier.CameraOnline(ctx, cam)
			}
		} else {
			// Refresh last_seen even without a transition.
			if dbErr := m.cameras.SetOnline(ctx, cam.ID, true); dbErr != nil {
				log.Printf("[ERROR] health: refreshing %s: %v", cam.Name, dbErr)
			}
		}
		return true
	}

	metrics.HealthChecksTotal.WithLabelValues("fail").Inc()
	m.mu.Lock()
	m.failures[cam.ID]++
	n := m.failures[cam.ID]
	m.mu.Unlock()

	if !cam.IsOnline || n < m.cfg.FailureThreshold {
		return cam.IsOnline && n < m.cfg.FailureThreshold
	}

	if dbErr := m.cameras.SetOnline(ctx, cam.ID, false); dbErr != nil {
		log.Printf("[ERROR] health: marking %s offline: %v", cam.Name, dbErr)
		return false
	}
	log.Printf("[WARN] health: camera %s offline after %d failed probes: %v", cam.Name, n, err)
	if m.notifier != nil {
		m.notifier.CameraOffline(ctx, cam)
	}
	return false
}
