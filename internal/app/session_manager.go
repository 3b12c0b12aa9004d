package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deirlabs/mentord/internal/curriculum"
	"github.com/deirlabs/mentord/internal/live"
	"github.com/deirlabs/mentord/internal/observe"
	"github.com/deirlabs/mentord/internal/progress"
	"github.com/deirlabs/mentord/internal/transcript"
	providerlive "github.com/deirlabs/mentord/pkg/provider/live"
)

// SessionInfo holds metadata about the active live session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// ExerciseID scopes the session to one exercise. Empty for a general
	// mentor conversation.
	ExerciseID string

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// SessionManager manages the lifecycle of live mentor sessions. At most one
// session is active at a time: the microphone and playback path belong to a
// single conversation, so starting a new session tears down the prior one.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu     sync.Mutex
	ctrl   *live.Controller
	info   SessionInfo
	cancel context.CancelFunc
	voice  string

	// Dependencies injected at construction.
	provider  providerlive.Provider
	store     *progress.Store
	defs      *curriculum.Definitions
	recorder  live.Recorder
	corrector *transcript.Corrector
	metrics   *observe.Metrics
	logger    *slog.Logger
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Provider  providerlive.Provider
	Store     *progress.Store
	Defs      *curriculum.Definitions
	Recorder  live.Recorder
	Corrector *transcript.Corrector
	Metrics   *observe.Metrics
	Logger    *slog.Logger

	// Voice is the default synthesized voice for sessions that do not pick
	// one themselves. Changeable at runtime via [SessionManager.SetVoice].
	Voice string
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		voice:     cfg.Voice,
		provider:  cfg.Provider,
		store:     cfg.Store,
		defs:      cfg.Defs,
		recorder:  cfg.Recorder,
		corrector: cfg.Corrector,
		metrics:   cfg.Metrics,
		logger:    logger.With("component", "sessions"),
	}
}

// Start opens a new live session. An already-active session is closed first;
// its playback is flushed and its final turn, if complete, is recorded.
//
// The returned controller is owned by the manager; callers drive it but must
// end the session through [SessionManager.Stop].
func (sm *SessionManager) Start(ctx context.Context, cfg providerlive.SessionConfig, exerciseID string) (*live.Controller, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.ctrl != nil {
		sm.logger.Info("replacing active session", "session_id", sm.info.SessionID)
		sm.stopLocked(ctx)
	}

	if cfg.Voice == "" {
		cfg.Voice = sm.voice
	}
	if cfg.Instructions == "" {
		cfg.Instructions = sm.instructions(exerciseID)
	}

	ctrlOpts := []live.Option{
		live.WithLogger(sm.logger),
	}
	if sm.recorder != nil {
		ctrlOpts = append(ctrlOpts, live.WithRecorder(sm.recorder))
	}
	if sm.corrector != nil {
		ctrlOpts = append(ctrlOpts, live.WithCorrector(sm.corrector))
	}
	if exerciseID != "" {
		ctrlOpts = append(ctrlOpts, live.WithExerciseID(exerciseID))
	}

	// The session outlives the originating request only until Stop; its
	// receive loop is bound to a manager-owned context.
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	ctrl := live.NewController(sm.provider, ctrlOpts...)
	if err := ctrl.Start(sessionCtx, cfg); err != nil {
		cancel()
		if sm.metrics != nil {
			sm.metrics.RecordProviderError(ctx, "live", "connect")
		}
		return nil, fmt.Errorf("session: start: %w", err)
	}

	sm.ctrl = ctrl
	sm.cancel = cancel
	sm.info = SessionInfo{
		SessionID:  uuid.NewString(),
		ExerciseID: exerciseID,
		StartedAt:  time.Now().UTC(),
	}

	if sm.metrics != nil {
		sm.metrics.ActiveLiveSessions.Add(ctx, 1)
	}

	sm.logger.Info("session started",
		"session_id", sm.info.SessionID,
		"exercise_id", exerciseID,
		"voice", cfg.Voice,
	)

	return ctrl, nil
}

// Stop gracefully ends the active session. It is a no-op when none is active.
func (sm *SessionManager) Stop(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.ctrl == nil {
		return nil
	}

	duration := time.Since(sm.info.StartedAt)
	sessionID := sm.info.SessionID
	sm.stopLocked(ctx)

	sm.logger.Info("session stopped", "session_id", sessionID, "duration", duration)
	return nil
}

// SetVoice changes the default voice for subsequently started sessions. An
// active session keeps the voice it opened with.
func (sm *SessionManager) SetVoice(voice string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.voice = voice
}

// Active returns the running controller and its metadata, or false when no
// session is active.
func (sm *SessionManager) Active() (*live.Controller, SessionInfo, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.ctrl == nil {
		return nil, SessionInfo{}, false
	}
	return sm.ctrl, sm.info, true
}

// stopLocked closes the controller, settles the session metrics and clears
// state. Every teardown path goes through here so the active-session gauge
// stays balanced whether a session ends by Stop or by replacement. Caller
// holds sm.mu.
func (sm *SessionManager) stopLocked(ctx context.Context) {
	if err := sm.ctrl.Close(); err != nil {
		sm.logger.Warn("controller close error", "session_id", sm.info.SessionID, "err", err)
	}
	if sm.cancel != nil {
		sm.cancel()
	}
	if sm.metrics != nil {
		sm.metrics.ActiveLiveSessions.Add(ctx, -1)
		sm.metrics.SessionDuration.Record(ctx, time.Since(sm.info.StartedAt).Seconds())
	}
	sm.ctrl = nil
	sm.cancel = nil
	sm.info = SessionInfo{}
}

// instructions renders the system prompt for a live session: the mentor
// persona plus the user's position in the curriculum. Locked-stage content is
// explicitly off limits, mirroring the chat orchestrator's context block.
func (sm *SessionManager) instructions(exerciseID string) string {
	var b strings.Builder

	b.WriteString("You are a personal development mentor in a spoken conversation with the user. ")
	b.WriteString("Speak naturally and keep answers short enough to say aloud.\n\n")

	if name := sm.store.Username(); name != "" {
		fmt.Fprintf(&b, "The user's name is %s.\n", name)
	}

	active := sm.store.ActiveStage()
	if active.ID != "" {
		fmt.Fprintf(&b, "The user's current stage is %q (%s): %s\n", active.DisplayTitle(), active.Level, active.Description)
	}

	if exerciseID != "" {
		if ex, ok := sm.defs.ExerciseByID(exerciseID); ok {
			fmt.Fprintf(&b, "The user is practising the exercise %q: %s\n", ex.Title, ex.Description)
		}
	}

	var locked []string
	for _, st := range sm.store.Stages() {
		if st.Locked {
			locked = append(locked, st.DisplayTitle())
		}
	}
	if len(locked) > 0 {
		fmt.Fprintf(&b,
			"\nThe following stages are still locked: %s. Never reveal, summarise, or discuss their content. If asked, explain that the material unlocks later in the programme.\n",
			strings.Join(locked, "; "))
	}

	return b.String()
}
