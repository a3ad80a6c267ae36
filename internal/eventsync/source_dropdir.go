package eventsync

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DropFile is one video file found in the shared landing directory.
type DropFile struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// DropDirSource scans the directory an external transfer mechanism
// deposits event files into. Read-only; the files themselves are opaque.
type DropDirSource struct {
	dir         string
	warnMissing sync.Once
}

func NewDropDirSource(dir string) *DropDirSource {
	return &DropDirSource{dir: dir}
}

func (s *DropDirSource) Dir() string { return s.dir }

// Scan lists files with a known video extension. A missing directory is
// not an error: the relay may simply not have delivered anything yet.
// Logged once per process so a misconfigured path is still visible.
func (s *DropDirSource) Scan(ctx context.Context) ([]DropFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.warnMissing.Do(func() {
				log.Printf("[WARN] dropdir: directory %s does not exist, treating as empty", s.dir)
			})
			return nil, nil
		}
		return nil, err
	}

	var files []DropFile
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !HasVideoExtension(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Raced with a delete; the next pass will see the truth.
			log.Printf("[WARN] dropdir: stat %s: %v", entry.Name(), err)
			continue
		}
		files = append(files, DropFile{
			Name:    entry.Name(),
			Path:    filepath.Join(s.dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}
