package history

import (
	"bufio"
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

// FileBackend persists history as append-only JSON lines in a local file.
// Append-only matches the log's semantics exactly: entries are never rewritten.
//
// Thread-safe for concurrent use.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend creates a FileBackend writing to path. The file and its
// parent directory are created on first append.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Append implements [Backend].
func (fb *FileBackend) Append(_ context.Context, item Item) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("history: marshal item: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(fb.path), 0o755); err != nil {
		return fmt.Errorf("history: create data dir: %w", err)
	}

	f, err := os.OpenFile(fb.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	return nil
}

// Load implements [Backend]. Unparseable lines are skipped rather than
// failing the whole load; a torn final line after a crash must not take the
// rest of the history with it.
func (fb *FileBackend) Load(_ context.Context) ([]Item, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	f, err := os.Open(fb.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	var items []Item
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var item Item
		if err := json.Unmarshal(line, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	if err := sc.Err(); err != nil {
		return items, fmt.Errorf("history: scan file: %w", err)
	}
	return items, nil
}
