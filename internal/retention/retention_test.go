package retention

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type stubPurger struct {
	paths  []string
	err    error
	cutoff time.Time
}

func (s *stubPurger) DeleteAgedSoftDeleted(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.cutoff = cutoff
	return s.paths, s.err
}

func TestRunOnceRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.mp4")
	gone := filepath.Join(dir, "gone.mp4")
	for _, p := range []string{keep, gone} {
		if err := os.WriteFile(p, []byte("v"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	purger := &stubPurger{paths: []string{gone}}
	r := NewReaper(purger, Config{Enabled: true, GracePeriod: 24 * time.Hour})
	r.RunOnce(context.Background())

	if _, err := os.Stat(gone); !os.IsNotExist(err) {
		t.Error("purged file still on disk")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("unrelated file removed")
	}

	// Cutoff reflects the grace period, not "now".
	if time.Since(purger.cutoff) < 23*time.Hour {
		t.Errorf("cutoff %v too recent", purger.cutoff)
	}
}

func TestRunOnceToleratesMissingFiles(t *testing.T) {
	purger := &stubPurger{paths: []string{"/nonexistent/evt.mp4", ""}}
	r := NewReaper(purger, Config{Enabled: true})
	// Must not panic or error the loop.
	r.RunOnce(context.Background())
}

func TestRunOnceStopsOnStoreError(t *testing.T) {
	purger := &stubPurger{err: errors.New("db down")}
	r := NewReaper(purger, Config{Enabled: true})
	r.RunOnce(context.Background())
}
