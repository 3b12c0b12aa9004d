// Package progress owns the user's learning state: which stages are unlocked
// and completed, which exercises are marked done, and the stub user profile.
//
// The store keeps the authoritative in-memory state, persists a snapshot after
// every mutation through a pluggable [Backend], and re-merges persisted flags
// against the canonical curriculum on load so that content updates never get
// shadowed by stale persisted copies.
package progress

import (
	"context"
	"errors"
)

// StageState is the persisted per-stage record. Only the two user-earned
// flags are stored; all content fields are re-seeded from the canonical
// curriculum on load.
type StageState struct {
	ID        string `json:"id"`
	Locked    bool   `json:"locked"`
	Completed bool   `json:"completed"`
}

// Snapshot is the full persisted progress payload.
type Snapshot struct {
	Stages             []StageState `json:"stages"`
	CompletedExercises []string     `json:"completedExercises"`

	// User and Username belong to the stub auth layer. User is an opaque
	// account token, Username the display name the mentor addresses.
	User     string `json:"user,omitempty"`
	Username string `json:"username,omitempty"`
}

// ErrNoSnapshot is returned by [Backend.Load] when no snapshot has been
// persisted yet. The store treats it as a fresh start, not a failure.
var ErrNoSnapshot = errors.New("progress: no snapshot persisted")

// Backend persists progress snapshots. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Load returns the most recent snapshot, or [ErrNoSnapshot] if none
	// exists. A corrupt payload is an ordinary error; the store recovers by
	// falling back to canonical defaults.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the persisted snapshot.
	Save(ctx context.Context, snap *Snapshot) error
}
