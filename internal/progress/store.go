package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/deirlabs/mentord/internal/curriculum"
)

// Store is the authoritative in-memory progress state. All mutations persist
// a snapshot through the configured [Backend] before returning.
//
// Safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	defs      *curriculum.Definitions
	stages    []curriculum.Stage
	completed map[string]struct{}
	user      string
	username  string

	backend  Backend
	logger   *slog.Logger
	onChange func()
}

// Option is a functional option for [New].
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithOnChange registers a callback invoked after every successfully persisted
// mutation. Invoked while the store lock is held; callbacks must not call back
// into the store.
func WithOnChange(fn func()) Option {
	return func(s *Store) { s.onChange = fn }
}

// New creates a Store seeded from the backend's persisted snapshot merged
// against the canonical definitions.
//
// A missing snapshot starts from canonical defaults. An unreadable or corrupt
// snapshot is logged and also falls back to canonical defaults: losing
// progress is an accepted degradation, a startup failure is not.
func New(ctx context.Context, defs *curriculum.Definitions, backend Backend, opts ...Option) (*Store, error) {
	if defs == nil {
		return nil, errors.New("progress: nil curriculum definitions")
	}
	if backend == nil {
		return nil, errors.New("progress: nil backend")
	}

	s := &Store{
		defs:      defs,
		completed: make(map[string]struct{}),
		backend:   backend,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "progress")

	snap, err := backend.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		s.stages = defs.Seed()
	case err != nil:
		s.logger.Warn("persisted progress unreadable, falling back to defaults", "error", err)
		s.stages = defs.Seed()
	default:
		s.stages = Merge(snap.Stages, defs)
		for _, id := range snap.CompletedExercises {
			if _, ok := defs.ExerciseByID(id); ok {
				s.completed[id] = struct{}{}
			}
		}
		s.user = snap.User
		s.username = snap.Username
		// Re-running the unlock rules here picks up edges added to the
		// curriculum after the snapshot was written.
		s.evaluateUnlocksLocked()
	}

	return s, nil
}

// Stages returns a copy of the current stage list in canonical order.
func (s *Store) Stages() []curriculum.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]curriculum.Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

// Stage returns the current state of one stage.
func (s *Store) Stage(id string) (curriculum.Stage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.stages {
		if st.ID == id {
			return st, true
		}
	}
	return curriculum.Stage{}, false
}

// ActiveStage returns the most recently unlocked stage: the last stage in
// canonical order whose Locked flag is false. This is the stage general chat
// exchanges are attributed to.
func (s *Store) ActiveStage() curriculum.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeStageLocked()
}

func (s *Store) activeStageLocked() curriculum.Stage {
	for i := len(s.stages) - 1; i >= 0; i-- {
		if !s.stages[i].Locked {
			return s.stages[i]
		}
	}
	// Nothing unlocked at all: fall back to the first canonical stage.
	if len(s.stages) == 0 {
		return curriculum.Stage{}
	}
	return s.stages[0]
}

// CompleteStage marks the stage completed and runs the unlock rules.
//
// Unknown and still-locked stages are a silent no-op: completion events come
// from UI surfaces that may race a content update, and rejecting them loudly
// buys nothing. Completion is one-way; there is no un-complete for stages.
func (s *Store) CompleteStage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, st := range s.stages {
		if st.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 || s.stages[idx].Locked {
		s.logger.Debug("ignoring completion for unknown or locked stage", "stage", id)
		return nil
	}
	if s.stages[idx].Completed {
		return nil
	}

	s.stages[idx].Completed = true
	s.evaluateUnlocksLocked()
	return s.persistLocked(ctx)
}

// ToggleExercise flips the exercise's membership in the completion set and
// reports the new state. Unknown exercises toggle nothing and report false.
func (s *Store) ToggleExercise(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.defs.ExerciseByID(id); !ok {
		s.logger.Debug("ignoring toggle for unknown exercise", "exercise", id)
		return false, nil
	}

	var nowDone bool
	if _, done := s.completed[id]; done {
		delete(s.completed, id)
	} else {
		s.completed[id] = struct{}{}
		nowDone = true
	}

	if err := s.persistLocked(ctx); err != nil {
		return nowDone, err
	}
	return nowDone, nil
}

// CompletedExercises returns the completion set as a sorted slice.
func (s *Store) CompletedExercises() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.completed))
	for id := range s.completed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsExerciseCompleted reports membership in the completion set.
func (s *Store) IsExerciseCompleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.completed[id]
	return ok
}

// StagePercent returns the share of the stage's exercises that are completed,
// in [0.0, 1.0]. A stage with no exercises reports 1.0 once completed, else 0.
func (s *Store) StagePercent(stageID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	exercises := s.defs.ExercisesForStage(stageID)
	if len(exercises) == 0 {
		for _, st := range s.stages {
			if st.ID == stageID && st.Completed {
				return 1
			}
		}
		return 0
	}

	done := 0
	for _, ex := range exercises {
		if _, ok := s.completed[ex.ID]; ok {
			done++
		}
	}
	return float64(done) / float64(len(exercises))
}

// User returns the stub auth account identifier, empty if never set.
func (s *Store) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Username returns the stub auth display name, empty if never set.
func (s *Store) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// SetUser stores the stub auth identity pair.
func (s *Store) SetUser(ctx context.Context, user, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.username = username
	return s.persistLocked(ctx)
}

// evaluateUnlocksLocked runs one pass of the unlock rules: the explicit
// seminar rule table plus the generated main-stage adjacency rules. One pass
// converges because completion events are discrete; each completion triggers
// its own pass.
func (s *Store) evaluateUnlocksLocked() bool {
	rules := append(sequentialRules(s.stages), s.defs.Rules...)
	changed := unlockPass(s.stages, rules)
	if changed {
		s.logger.Info("unlock rules flipped stage access", "unlocked", s.unlockedIDsLocked())
	}
	return changed
}

func (s *Store) unlockedIDsLocked() []string {
	var ids []string
	for _, st := range s.stages {
		if !st.Locked {
			ids = append(ids, st.ID)
		}
	}
	return ids
}

func (s *Store) persistLocked(ctx context.Context) error {
	snap := &Snapshot{
		Stages:             make([]StageState, len(s.stages)),
		CompletedExercises: make([]string, 0, len(s.completed)),
		User:               s.user,
		Username:           s.username,
	}
	for i, st := range s.stages {
		snap.Stages[i] = StageState{ID: st.ID, Locked: st.Locked, Completed: st.Completed}
	}
	for id := range s.completed {
		snap.CompletedExercises = append(snap.CompletedExercises, id)
	}
	sort.Strings(snap.CompletedExercises)

	if err := s.backend.Save(ctx, snap); err != nil {
		return fmt.Errorf("progress: persist snapshot: %w", err)
	}
	if s.onChange != nil {
		s.onChange()
	}
	return nil
}
