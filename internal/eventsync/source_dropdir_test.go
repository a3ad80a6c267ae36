package eventsync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDropDirScanFiltersNonVideo(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.mp4", "b.avi", "notes.txt", "c.jpg", "d.MKV"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.mp4"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := NewDropDirSource(dir).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3: %+v", len(files), files)
	}
	for _, f := range files {
		if f.Size != 1 {
			t.Errorf("%s size = %d, want 1", f.Name, f.Size)
		}
		if f.Path != filepath.Join(dir, f.Name) {
			t.Errorf("%s path = %q", f.Name, f.Path)
		}
	}
}

func TestDropDirScanMissingDirIsEmpty(t *testing.T) {
	src := NewDropDirSource(filepath.Join(t.TempDir(), "never-created"))
	files, err := src.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan of missing dir errored: %v", err)
	}
	if files != nil {
		t.Errorf("got %v, want nil", files)
	}
	// Second scan exercises the warn-once path.
	if _, err := src.Scan(context.Background()); err != nil {
		t.Fatalf("second Scan errored: %v", err)
	}
}

func TestDropDirScanCancelled(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDropDirSource(dir).Scan(ctx); err == nil {
		t.Error("expected context error")
	}
}
