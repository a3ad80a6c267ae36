// Package retention purges soft-deleted events once their grace period
// lapses, removing both the catalog row and the local file.
package retention

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/technosupport/ts-evcam/internal/metrics"
)

type EventPurger interface {
	DeleteAgedSoftDeleted(ctx context.Context, cutoff time.Time) ([]string, error)
}

type Config struct {
	Enabled     bool
	Interval    time.Duration
	GracePeriod time.Duration
}

type Reaper struct {
	events EventPurger
	cfg    Config

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewReaper(events EventPurger, cfg Config) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 7 * 24 * time.Hour
	}
	return &Reaper{
		events:   events,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

func (r *Reaper) Start() {
	if !r.cfg.Enabled {
		return
	}
	r.wg.Add(1)
	go r.runLoop()
}

func (r *Reaper) Stop() {
	if !r.cfg.Enabled {
		return
	}
	close(r.stopChan)
	r.wg.Wait()
}

func (r *Reaper) runLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.RunOnce(context.Background())
		}
	}
}

// RunOnce purges one batch. Rows are deleted first; a file that fails
// to unlink is logged and orphaned on disk rather than resurrecting
// the row.
func (r *Reaper) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.GracePeriod)
	paths, err := r.events.DeleteAgedSoftDeleted(ctx, cutoff)
	if err != nil {
		log.Printf("[ERROR] retention: purge: %v", err)
		return
	}
	if len(paths) == 0 {
		return
	}

	removed := 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Printf("[WARN] retention: removing %s: %v", p, err)
			continue
		}
		removed++
	}
	metrics.RetentionDeletedTotal.Add(float64(len(paths)))
	log.Printf("[INFO] retention: purged %d events, removed %d files", len(paths), removed)
}
