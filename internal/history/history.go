// Package history keeps the append-only record of mentor exchanges. Each
// entry snapshots the stage and exercise titles at write time; later content
// edits never rewrite what the user already saw.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode tags how an exchange was produced.
type Mode string

const (
	// ModeGeneral marks a free conversation attributed to the active stage.
	ModeGeneral Mode = "general"

	// ModeExercise marks an exchange that happened inside a specific exercise.
	ModeExercise Mode = "exercise"
)

// Item is one recorded question/answer exchange. Items are immutable after
// creation.
type Item struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`

	// StageID plus the denormalized StageTitle captured at write time.
	StageID    string `json:"stageId"`
	StageTitle string `json:"stageTitle"`

	// ExerciseTitle is set only for ModeExercise entries.
	ExerciseTitle string `json:"exerciseTitle,omitempty"`

	Mode      Mode      `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

// Backend persists history items. Implementations must be safe for concurrent
// use.
type Backend interface {
	// Append durably adds one item.
	Append(ctx context.Context, item Item) error

	// Load returns all persisted items in append order.
	Load(ctx context.Context) ([]Item, error)
}

// Log is the in-memory history with write-through persistence. Appends are
// ordered by completion of their triggering exchange; the log imposes no
// reordering of its own.
//
// Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	items   []Item
	backend Backend
	logger  *slog.Logger
}

// NewLog creates a Log seeded from the backend's persisted items. A backend
// load failure starts the log empty and is returned for the caller to report;
// the Log itself is still usable.
func NewLog(ctx context.Context, backend Backend, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{
		backend: backend,
		logger:  logger.With("component", "history"),
	}

	if backend != nil {
		items, err := backend.Load(ctx)
		if err != nil {
			l.logger.Warn("persisted history unreadable, starting empty", "error", err)
			return l, nil
		}
		l.items = items
	}
	return l, nil
}

// Append stores the item, assigning a fresh ID and timestamp if unset.
func (l *Log) Append(ctx context.Context, item Item) (Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}
	if item.Mode == "" {
		item.Mode = ModeGeneral
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.backend != nil {
		if err := l.backend.Append(ctx, item); err != nil {
			return Item{}, fmt.Errorf("history: persist item: %w", err)
		}
	}
	l.items = append(l.items, item)
	return item, nil
}

// Items returns a copy of all entries in append order.
func (l *Log) Items() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
