package progress_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/deirlabs/mentord/internal/curriculum"
	"github.com/deirlabs/mentord/internal/progress"
)

// memBackend is an in-memory Backend for tests. It can be primed with a
// snapshot or an error to exercise the load paths.
type memBackend struct {
	mu      sync.Mutex
	snap    *progress.Snapshot
	loadErr error
	saves   int
}

func (m *memBackend) Load(context.Context) (*progress.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.snap == nil {
		return nil, progress.ErrNoSnapshot
	}
	return m.snap, nil
}

func (m *memBackend) Save(_ context.Context, snap *progress.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.saves++
	return nil
}

func (m *memBackend) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func testDefs(t *testing.T) *curriculum.Definitions {
	t.Helper()
	return curriculum.Default()
}

func newTestStore(t *testing.T, backend progress.Backend) *progress.Store {
	t.Helper()
	s, err := progress.New(context.Background(), testDefs(t), backend)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func stageByID(t *testing.T, s *progress.Store, id string) curriculum.Stage {
	t.Helper()
	st, ok := s.Stage(id)
	if !ok {
		t.Fatalf("stage %q not found", id)
	}
	return st
}

func TestMergePreservesFlagsAndRefreshesContent(t *testing.T) {
	t.Parallel()

	defs := testDefs(t)
	persisted := []progress.StageState{
		{ID: "1", Locked: false, Completed: true},
		{ID: "2", Locked: false, Completed: false},
		{ID: "ghost", Locked: false, Completed: true}, // removed from content
	}

	stages := progress.Merge(persisted, defs)

	if len(stages) != len(defs.Stages) {
		t.Fatalf("merged %d stages, want %d (one per canonical definition)", len(stages), len(defs.Stages))
	}
	for _, st := range stages {
		canonical, ok := defs.StageByID(st.ID)
		if !ok {
			t.Errorf("merged stage %q has no canonical definition", st.ID)
			continue
		}
		if st.Title != canonical.Title || st.Description != canonical.Description {
			t.Errorf("stage %q content not re-seeded from canonical definition", st.ID)
		}
	}

	if st := stages[0]; !st.Completed || st.Locked {
		t.Errorf("stage 1 flags = locked=%v completed=%v, want unlocked+completed", st.Locked, st.Completed)
	}
	if st := stages[1]; st.Locked {
		t.Error("stage 2 persisted as unlocked but merged as locked")
	}
	// Stage 3 was absent from the snapshot: defaults apply.
	if st := stages[2]; !st.Locked || st.Completed {
		t.Errorf("stage 3 = locked=%v completed=%v, want default locked+incomplete", st.Locked, st.Completed)
	}
}

func TestCorruptSnapshotFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	backend := &memBackend{loadErr: errors.New("unexpected end of JSON input")}
	s := newTestStore(t, backend)

	if st := stageByID(t, s, "1"); st.Locked {
		t.Error("entry stage locked after fallback to defaults")
	}
	if st := stageByID(t, s, "2"); !st.Locked {
		t.Error("stage 2 unlocked after fallback to defaults")
	}
}

func TestCompleteStageUnlocksNextMainOnly(t *testing.T) {
	t.Parallel()

	backend := &memBackend{}
	s := newTestStore(t, backend)
	ctx := context.Background()

	if err := s.CompleteStage(ctx, "1"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}

	if st := stageByID(t, s, "1"); !st.Completed {
		t.Error("stage 1 not marked completed")
	}
	if st := stageByID(t, s, "2"); st.Locked {
		t.Error("stage 2 still locked after completing stage 1")
	}
	if st := stageByID(t, s, "3"); !st.Locked {
		t.Error("stage 3 unlocked directly; sequential unlock must advance one stage at a time")
	}
	if st := stageByID(t, s, "sem_egr_1"); !st.Locked {
		t.Error("seminar unlocked by adjacency; seminars unlock only via explicit rules")
	}
}

func TestSeminarUnlockRules(t *testing.T) {
	t.Parallel()

	backend := &memBackend{}
	s := newTestStore(t, backend)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3", "4"} {
		if err := s.CompleteStage(ctx, id); err != nil {
			t.Fatalf("CompleteStage(%q): %v", id, err)
		}
	}

	if st := stageByID(t, s, "sem_egr_1"); st.Locked {
		t.Error("sem_egr_1 locked after completing stage 4")
	}
	if st := stageByID(t, s, "sem_egr_2"); !st.Locked {
		t.Error("sem_egr_2 unlocked before sem_egr_1 was completed")
	}

	if err := s.CompleteStage(ctx, "sem_egr_1"); err != nil {
		t.Fatalf("CompleteStage(sem_egr_1): %v", err)
	}
	if st := stageByID(t, s, "sem_egr_2"); st.Locked {
		t.Error("sem_egr_2 locked after completing sem_egr_1")
	}
}

func TestCompleteLockedStageIsNoOp(t *testing.T) {
	t.Parallel()

	backend := &memBackend{}
	s := newTestStore(t, backend)
	ctx := context.Background()

	before := backend.saveCount()
	if err := s.CompleteStage(ctx, "3"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if err := s.CompleteStage(ctx, "does-not-exist"); err != nil {
		t.Fatalf("CompleteStage unknown: %v", err)
	}

	if st := stageByID(t, s, "3"); st.Completed {
		t.Error("locked stage was completed")
	}
	if backend.saveCount() != before {
		t.Error("no-op completion persisted a snapshot")
	}
}

func TestCompleteStageIdempotent(t *testing.T) {
	t.Parallel()

	backend := &memBackend{}
	s := newTestStore(t, backend)
	ctx := context.Background()

	if err := s.CompleteStage(ctx, "1"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	saves := backend.saveCount()
	if err := s.CompleteStage(ctx, "1"); err != nil {
		t.Fatalf("repeat CompleteStage: %v", err)
	}
	if backend.saveCount() != saves {
		t.Error("repeated completion persisted a spurious snapshot")
	}
}

func TestUnlockMonotonicity(t *testing.T) {
	t.Parallel()

	backend := &memBackend{}
	s := newTestStore(t, backend)
	ctx := context.Background()

	if err := s.CompleteStage(ctx, "1"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	// Drive several more evaluations through unrelated mutations.
	if _, err := s.ToggleExercise(ctx, "ex_1_1"); err != nil {
		t.Fatalf("ToggleExercise: %v", err)
	}
	if err := s.CompleteStage(ctx, "2"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}

	for _, id := range []string{"1", "2", "3"} {
		if st := stageByID(t, s, id); st.Locked {
			t.Errorf("stage %q re-locked; unlocks must be monotonic", id)
		}
	}
}

func TestToggleExerciseIdempotentPair(t *testing.T) {
	t.Parallel()

	backend := &memBackend{}
	s := newTestStore(t, backend)
	ctx := context.Background()

	done, err := s.ToggleExercise(ctx, "ex_1_1")
	if err != nil {
		t.Fatalf("ToggleExercise: %v", err)
	}
	if !done {
		t.Error("first toggle should mark the exercise done")
	}
	if got := s.CompletedExercises(); !slices.Equal(got, []string{"ex_1_1"}) {
		t.Errorf("completion set = %v, want [ex_1_1]", got)
	}

	done, err = s.ToggleExercise(ctx, "ex_1_1")
	if err != nil {
		t.Fatalf("second ToggleExercise: %v", err)
	}
	if done {
		t.Error("second toggle should clear the exercise")
	}
	if got := s.CompletedExercises(); len(got) != 0 {
		t.Errorf("completion set = %v, want empty after double toggle", got)
	}
}

func TestActiveStageIsLastUnlocked(t *testing.T) {
	t.Parallel()

	backend := &memBackend{}
	s := newTestStore(t, backend)
	ctx := context.Background()

	if got := s.ActiveStage().ID; got != "1" {
		t.Errorf("initial active stage = %q, want %q", got, "1")
	}

	if err := s.CompleteStage(ctx, "1"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if got := s.ActiveStage().ID; got != "2" {
		t.Errorf("active stage after completing 1 = %q, want %q", got, "2")
	}
}

func TestStagePercent(t *testing.T) {
	t.Parallel()

	backend := &memBackend{}
	s := newTestStore(t, backend)
	ctx := context.Background()

	if got := s.StagePercent("1"); got != 0 {
		t.Errorf("initial percent = %v, want 0", got)
	}
	if _, err := s.ToggleExercise(ctx, "ex_1_1"); err != nil {
		t.Fatalf("ToggleExercise: %v", err)
	}
	got := s.StagePercent("1")
	if got <= 0 || got >= 1 {
		t.Errorf("percent after one of several exercises = %v, want in (0, 1)", got)
	}
}

func TestProgressSurvivesReload(t *testing.T) {
	t.Parallel()

	backend := &memBackend{}
	ctx := context.Background()

	s := newTestStore(t, backend)
	if err := s.CompleteStage(ctx, "1"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if _, err := s.ToggleExercise(ctx, "ex_1_1"); err != nil {
		t.Fatalf("ToggleExercise: %v", err)
	}
	if err := s.SetUser(ctx, "token-1", "Ada"); err != nil {
		t.Fatalf("SetUser: %v", err)
	}

	reloaded := newTestStore(t, backend)
	if st := stageByID(t, reloaded, "1"); !st.Completed {
		t.Error("stage completion lost across reload")
	}
	if st := stageByID(t, reloaded, "2"); st.Locked {
		t.Error("unlock lost across reload")
	}
	if !reloaded.IsExerciseCompleted("ex_1_1") {
		t.Error("exercise completion lost across reload")
	}
	if got := reloaded.Username(); got != "Ada" {
		t.Errorf("Username() = %q, want %q", got, "Ada")
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "progress.json")
	fb := progress.NewFileBackend(path)
	ctx := context.Background()

	if _, err := fb.Load(ctx); !errors.Is(err, progress.ErrNoSnapshot) {
		t.Fatalf("Load on empty backend = %v, want ErrNoSnapshot", err)
	}

	want := &progress.Snapshot{
		Stages:             []progress.StageState{{ID: "1", Locked: false, Completed: true}},
		CompletedExercises: []string{"ex_1_1"},
		Username:           "Ada",
	}
	if err := fb.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := fb.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Stages) != 1 || got.Stages[0] != want.Stages[0] {
		t.Errorf("loaded stages = %+v, want %+v", got.Stages, want.Stages)
	}
	if !slices.Equal(got.CompletedExercises, want.CompletedExercises) {
		t.Errorf("loaded exercises = %v, want %v", got.CompletedExercises, want.CompletedExercises)
	}
	if got.Username != "Ada" {
		t.Errorf("loaded username = %q, want %q", got.Username, "Ada")
	}
}

func TestFileBackendCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "progress.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	fb := progress.NewFileBackend(path)
	_, err := fb.Load(context.Background())
	if err == nil || errors.Is(err, progress.ErrNoSnapshot) {
		t.Fatalf("Load corrupt file = %v, want decode error", err)
	}

	// The store built on top must still come up with canonical defaults.
	s, err := progress.New(context.Background(), curriculum.Default(), fb)
	if err != nil {
		t.Fatalf("New over corrupt backend: %v", err)
	}
	if st, _ := s.Stage("1"); st.Locked {
		t.Error("entry stage locked after corrupt-snapshot recovery")
	}
}
