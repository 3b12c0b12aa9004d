package live_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/deirlabs/mentord/internal/history"
	"github.com/deirlabs/mentord/internal/live"
	"github.com/deirlabs/mentord/internal/transcript"
	providerlive "github.com/deirlabs/mentord/pkg/provider/live"
	"github.com/deirlabs/mentord/pkg/provider/live/mock"
)

// fakeClock is a manually-advanced clock for deterministic schedule behavior.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(5000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// recorderSpy records RecordExchange invocations.
type recorderSpy struct {
	mu    sync.Mutex
	calls []recordedCall
}

type recordedCall struct {
	question   string
	answer     string
	exerciseID string
}

func (r *recorderSpy) RecordExchange(_ context.Context, question, answer, exerciseID string) history.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{question: question, answer: answer, exerciseID: exerciseID})
	return history.Item{Question: question, Answer: answer}
}

func (r *recorderSpy) Calls() []recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// waitFor polls cond until it returns true or the deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// startActive builds a controller over a fresh mock session and drives it to
// Active.
func startActive(t *testing.T, opts ...live.Option) (*live.Controller, *mock.Session) {
	t.Helper()
	sess := mock.NewSession()
	p := &mock.Provider{Session: sess}

	ctrl := live.NewController(p, opts...)
	if err := ctrl.Start(context.Background(), providerlive.SessionConfig{Voice: "Fenrir"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess.Emit(providerlive.Event{Type: providerlive.EventOpened})
	waitFor(t, func() bool { return ctrl.State() == live.StateActive })
	t.Cleanup(func() { ctrl.Close() })
	return ctrl, sess
}

func TestStart_BecomesActiveOnOpen(t *testing.T) {
	t.Parallel()
	sess := mock.NewSession()
	p := &mock.Provider{Session: sess}

	ctrl := live.NewController(p)
	defer ctrl.Close()

	if got := ctrl.State(); got != live.StateIdle {
		t.Fatalf("initial state = %v; want idle", got)
	}

	cfg := providerlive.SessionConfig{Voice: "Aoede", Instructions: "be kind"}
	if err := ctrl.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := ctrl.State(); got != live.StateConnecting {
		t.Errorf("state after Start = %v; want connecting", got)
	}

	sess.Emit(providerlive.Event{Type: providerlive.EventOpened})
	waitFor(t, func() bool { return ctrl.State() == live.StateActive })

	if len(p.ConnectCalls) != 1 {
		t.Fatalf("Connect calls = %d; want 1", len(p.ConnectCalls))
	}
	if p.ConnectCalls[0].Cfg != cfg {
		t.Errorf("Connect cfg = %+v; want %+v", p.ConnectCalls[0].Cfg, cfg)
	}
}

func TestStart_ConnectFailureClosesSession(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{ConnectErr: errors.New("device unavailable")}

	ctrl := live.NewController(p)
	err := ctrl.Start(context.Background(), providerlive.SessionConfig{})
	if err == nil {
		t.Fatal("Start should fail when Connect fails")
	}
	if got := ctrl.State(); got != live.StateClosed {
		t.Errorf("state after failed Start = %v; want closed", got)
	}
	if ctrl.Err() == nil {
		t.Error("Err() should be set after failed Start")
	}
}

func TestStart_SecondStartRejected(t *testing.T) {
	t.Parallel()
	ctrl, _ := startActive(t)

	if err := ctrl.Start(context.Background(), providerlive.SessionConfig{}); err == nil {
		t.Fatal("second Start should be rejected")
	}
}

func TestBargeIn_ClearsPlaybackAndResetsCursor(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	ctrl, sess := startActive(t, live.WithClock(clock))

	// Two long chunks get scheduled into the future.
	sess.Emit(providerlive.Event{Type: providerlive.EventAudio, Audio: pcmOfDuration(500 * time.Millisecond)})
	sess.Emit(providerlive.Event{Type: providerlive.EventAudio, Audio: pcmOfDuration(500 * time.Millisecond)})
	waitFor(t, func() bool { return ctrl.PendingPlayback() == 2 })

	if !ctrl.ModelSpeaking() {
		t.Error("model should be speaking while chunks are scheduled")
	}

	sess.Emit(providerlive.Event{Type: providerlive.EventInterrupted})
	waitFor(t, func() bool { return ctrl.PendingPlayback() == 0 })

	if ctrl.ModelSpeaking() {
		t.Error("model-speaking indicator should clear on barge-in")
	}
	if got, want := ctrl.PlaybackCursor(), clock.Now(); !got.Equal(want) {
		t.Errorf("cursor after barge-in = %v; want clock time %v", got, want)
	}
}

func TestBargeIn_NextChunkPlaysImmediately(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	ctrl, sess := startActive(t, live.WithClock(clock))

	sess.Emit(providerlive.Event{Type: providerlive.EventAudio, Audio: pcmOfDuration(time.Second)})
	waitFor(t, func() bool { return ctrl.PendingPlayback() == 1 })

	sess.Emit(providerlive.Event{Type: providerlive.EventInterrupted})
	waitFor(t, func() bool { return ctrl.PendingPlayback() == 0 })

	// After the flush the next chunk starts at clock time, not at the stale
	// one-second cursor.
	var start time.Time
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ctrl.Events() {
			if ev.Type == live.EventModelAudio {
				start = ev.Chunk.Start
				return
			}
		}
	}()

	sess.Emit(providerlive.Event{Type: providerlive.EventAudio, Audio: pcmOfDuration(100 * time.Millisecond)})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for post-barge-in chunk")
	}

	if !start.Equal(clock.Now()) {
		t.Errorf("post-barge-in start = %v; want %v", start, clock.Now())
	}
}

func TestPause_DropsCapturedFrames(t *testing.T) {
	t.Parallel()
	ctrl, sess := startActive(t)

	if err := ctrl.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := ctrl.State(); got != live.StatePaused {
		t.Fatalf("state after Pause = %v; want paused", got)
	}

	frame := make([]byte, 640)
	for range 5 {
		if err := ctrl.SendFrame(frame); err != nil {
			t.Fatalf("SendFrame while paused: %v", err)
		}
	}
	if got := len(sess.SendAudioCalls); got != 0 {
		t.Errorf("frames sent while paused = %d; want 0", got)
	}

	if err := ctrl.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := ctrl.SendFrame(frame); err != nil {
		t.Fatalf("SendFrame after resume: %v", err)
	}
	if got := len(sess.SendAudioCalls); got != 1 {
		t.Errorf("frames sent after resume = %d; want 1", got)
	}
}

func TestPause_FlushesScheduledPlayback(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	ctrl, sess := startActive(t, live.WithClock(clock))

	sess.Emit(providerlive.Event{Type: providerlive.EventAudio, Audio: pcmOfDuration(time.Second)})
	waitFor(t, func() bool { return ctrl.PendingPlayback() == 1 })

	if err := ctrl.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := ctrl.PendingPlayback(); got != 0 {
		t.Errorf("pending after pause = %d; want 0", got)
	}

	// Audio arriving while paused is dropped, not queued for later.
	sess.Emit(providerlive.Event{Type: providerlive.EventAudio, Audio: pcmOfDuration(time.Second)})
	time.Sleep(50 * time.Millisecond)
	if got := ctrl.PendingPlayback(); got != 0 {
		t.Errorf("pending while paused = %d; want 0", got)
	}
}

func TestResume_OnlyFromPaused(t *testing.T) {
	t.Parallel()
	ctrl, _ := startActive(t)

	if err := ctrl.Resume(); err == nil {
		t.Fatal("Resume from active should be rejected")
	}
}

func TestTurnComplete_RecordsWhenBothSidesSpoke(t *testing.T) {
	t.Parallel()
	rec := &recorderSpy{}
	ctrl, sess := startActive(t, live.WithRecorder(rec), live.WithExerciseID("ex_1_1"))
	_ = ctrl

	sess.Emit(providerlive.Event{Type: providerlive.EventTranscript, Speaker: providerlive.SpeakerUser, Text: "how do I "})
	sess.Emit(providerlive.Event{Type: providerlive.EventTranscript, Speaker: providerlive.SpeakerUser, Text: "start"})
	sess.Emit(providerlive.Event{Type: providerlive.EventTranscript, Speaker: providerlive.SpeakerModel, Text: "Begin with stillness."})
	sess.Emit(providerlive.Event{Type: providerlive.EventTurnComplete})

	waitFor(t, func() bool { return len(rec.Calls()) == 1 })

	call := rec.Calls()[0]
	if call.question != "how do I start" {
		t.Errorf("question = %q; want %q", call.question, "how do I start")
	}
	if call.answer != "Begin with stillness." {
		t.Errorf("answer = %q; want %q", call.answer, "Begin with stillness.")
	}
	if call.exerciseID != "ex_1_1" {
		t.Errorf("exerciseID = %q; want ex_1_1", call.exerciseID)
	}
}

func TestTurnComplete_EmptySideSuppressesRecording(t *testing.T) {
	t.Parallel()
	rec := &recorderSpy{}
	ctrl, sess := startActive(t, live.WithRecorder(rec))

	// Model spoke but the user did not: no history item, buffers cleared.
	sess.Emit(providerlive.Event{Type: providerlive.EventTranscript, Speaker: providerlive.SpeakerModel, Text: "Hello, are you there?"})
	sess.Emit(providerlive.Event{Type: providerlive.EventTurnComplete})

	// A following complete turn must not inherit the discarded fragments.
	sess.Emit(providerlive.Event{Type: providerlive.EventTranscript, Speaker: providerlive.SpeakerUser, Text: "yes"})
	sess.Emit(providerlive.Event{Type: providerlive.EventTranscript, Speaker: providerlive.SpeakerModel, Text: "Good."})
	sess.Emit(providerlive.Event{Type: providerlive.EventTurnComplete})

	waitFor(t, func() bool { return len(rec.Calls()) == 1 })
	_ = ctrl

	call := rec.Calls()[0]
	if call.answer != "Good." {
		t.Errorf("answer = %q; want %q (previous turn's fragments must be discarded)", call.answer, "Good.")
	}
}

func TestTurnComplete_AppliesVocabularyCorrection(t *testing.T) {
	t.Parallel()
	rec := &recorderSpy{}
	corr := transcript.NewCorrector([]string{"Egregores"})
	_, sess := startActive(t, live.WithRecorder(rec), live.WithCorrector(corr))

	sess.Emit(providerlive.Event{Type: providerlive.EventTranscript, Speaker: providerlive.SpeakerUser, Text: "what are egregors"})
	sess.Emit(providerlive.Event{Type: providerlive.EventTranscript, Speaker: providerlive.SpeakerModel, Text: "Shared thought-forms."})
	sess.Emit(providerlive.Event{Type: providerlive.EventTurnComplete})

	waitFor(t, func() bool { return len(rec.Calls()) == 1 })

	if got, want := rec.Calls()[0].question, "what are Egregores"; got != want {
		t.Errorf("question = %q; want %q", got, want)
	}
}

func TestSendFrame_ReportsInputLevel(t *testing.T) {
	t.Parallel()
	ctrl, _ := startActive(t)

	// Full-scale square wave.
	frame := make([]byte, 320)
	for i := 0; i < len(frame); i += 2 {
		frame[i] = 0xFF
		frame[i+1] = 0x7F
	}
	if err := ctrl.SendFrame(frame); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	if lvl := ctrl.InputLevel(); lvl < 0.99 {
		t.Errorf("input level = %v; want ~1.0 for full-scale frame", lvl)
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()
	ctrl, sess := startActive(t)

	if err := ctrl.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := ctrl.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := ctrl.State(); got != live.StateClosed {
		t.Errorf("state after Close = %v; want closed", got)
	}
	waitFor(t, func() bool { return sess.CloseCallCount >= 1 })

	// The event stream terminates.
	waitFor(t, func() bool {
		for {
			select {
			case _, ok := <-ctrl.Events():
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	})
}

func TestClose_OnRemoteEnd(t *testing.T) {
	t.Parallel()
	sess := mock.NewSession()
	sess.ErrVal = errors.New("connection reset")
	p := &mock.Provider{Session: sess}

	ctrl := live.NewController(p)
	if err := ctrl.Start(context.Background(), providerlive.SessionConfig{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess.Emit(providerlive.Event{Type: providerlive.EventOpened})
	waitFor(t, func() bool { return ctrl.State() == live.StateActive })

	sess.EndEvents()
	waitFor(t, func() bool { return ctrl.State() == live.StateClosed })

	if ctrl.Err() == nil {
		t.Error("Err() should surface the remote failure")
	}
}
