package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Compile-time interface check.
var _ Backend = (*FileBackend)(nil)

// FileBackend persists the snapshot as a single JSON file. Writes go through
// a temp file and rename so a crash mid-write never leaves a truncated
// payload behind.
//
// Thread-safe for concurrent use.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend creates a FileBackend storing the snapshot at path. Parent
// directories are created on first save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load implements [Backend].
func (fb *FileBackend) Load(_ context.Context) (*Snapshot, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	data, err := os.ReadFile(fb.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("progress: read snapshot file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("progress: decode snapshot file %q: %w", fb.path, err)
	}
	return &snap, nil
}

// Save implements [Backend].
func (fb *FileBackend) Save(_ context.Context, snap *Snapshot) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("progress: encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(fb.path), 0o755); err != nil {
		return fmt.Errorf("progress: create data dir: %w", err)
	}

	tmp := fb.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("progress: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, fb.path); err != nil {
		return fmt.Errorf("progress: replace snapshot: %w", err)
	}
	return nil
}
