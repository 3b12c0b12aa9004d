// Package live implements the voice session controller: a duplex audio
// pipeline between the user's microphone stream and a streaming speech model.
//
// The controller owns a state machine
//
//	Idle -> Connecting -> Active <-> Paused -> Closed
//
// with Closed terminal; a new session requires a fresh controller. Inbound
// model audio is placed on a monotonic playback schedule, user interruptions
// (barge-in) flush that schedule immediately, and completed turns with speech
// on both sides are recorded to the conversation history.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/deirlabs/mentord/internal/history"
	"github.com/deirlabs/mentord/internal/transcript"
	"github.com/deirlabs/mentord/pkg/audio"
	providerlive "github.com/deirlabs/mentord/pkg/provider/live"
)

// State is the lifecycle state of a voice session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StatePaused
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventType discriminates controller events.
type EventType int

const (
	// EventState reports a state transition. State carries the new state.
	EventState EventType = iota
	// EventModelAudio carries one scheduled model audio chunk.
	EventModelAudio
	// EventFlush instructs the consumer to discard all audio it has queued
	// for playout. Emitted on barge-in and on pause.
	EventFlush
	// EventSpeaking reports a change of the model-speaking indicator.
	EventSpeaking
	// EventInputLevel reports the RMS level of the latest captured frame.
	EventInputLevel
	// EventTranscript carries one transcription fragment.
	EventTranscript
)

// Event is emitted by the controller for the transport bridge and UI.
type Event struct {
	Type     EventType
	State    State
	Chunk    Chunk
	Speaking bool
	Level    float64
	Speaker  providerlive.Speaker
	Text     string
}

// Clock abstracts time for deterministic playback-schedule tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Recorder persists one completed exchange. *history.Recorder satisfies it.
type Recorder interface {
	RecordExchange(ctx context.Context, question, answer, exerciseID string) history.Item
}

// Option is a functional option for the Controller.
type Option func(*Controller)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger.With("component", "live")
	}
}

// WithClock injects a custom clock. Used in tests.
func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithRecorder attaches a history recorder for completed turns. Without one,
// turns are accumulated and discarded.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithCorrector attaches a vocabulary corrector applied to the user-side
// transcript before recording.
func WithCorrector(corr *transcript.Corrector) Option {
	return func(c *Controller) { c.corrector = corr }
}

// WithExerciseID tags recorded turns with the exercise the session was opened
// for.
func WithExerciseID(id string) Option {
	return func(c *Controller) { c.exerciseID = id }
}

// Controller drives one voice session. Create with NewController, start with
// Start, and discard after Close.
type Controller struct {
	provider  providerlive.Provider
	logger    *slog.Logger
	clock     Clock
	recorder  Recorder
	corrector *transcript.Corrector

	exerciseID string

	mu            sync.Mutex
	state         State
	session       providerlive.Session
	schedule      *Schedule
	userBuf       []string
	modelBuf      []string
	modelSpeaking bool
	inputLevel    float64
	errVal        error
	eventsClosed  bool

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	loopDone  chan struct{}
}

// NewController creates an idle controller over the given live provider.
func NewController(provider providerlive.Provider, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		logger:   slog.Default().With("component", "live"),
		clock:    systemClock{},
		state:    StateIdle,
		schedule: NewSchedule(audio.PlaybackSampleRate),
		events:   make(chan Event, 128),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Events returns the controller event stream. It is closed after Close.
func (c *Controller) Events() <-chan Event { return c.events }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that terminated the session, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// InputLevel returns the RMS level of the most recent captured frame.
func (c *Controller) InputLevel() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputLevel
}

// PendingPlayback returns the number of chunks scheduled but not yet played.
func (c *Controller) PendingPlayback() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedule.Pending(c.clock.Now())
}

// PlaybackCursor returns the start time the next inbound chunk would receive
// if it arrived at or before the cursor.
func (c *Controller) PlaybackCursor() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedule.Cursor()
}

// ModelSpeaking reports whether model audio is currently scheduled for
// playout.
func (c *Controller) ModelSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modelSpeaking
}

// Start connects the duplex channel and begins the receive loop. Only valid
// from Idle; a connection failure transitions directly to Closed.
func (c *Controller) Start(ctx context.Context, cfg providerlive.SessionConfig) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("live: start from state %s", state)
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	sess, err := c.provider.Connect(ctx, cfg)
	if err != nil {
		c.mu.Lock()
		c.errVal = fmt.Errorf("live: connect: %w", err)
		c.mu.Unlock()
		c.Close()
		return c.Err()
	}

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	go c.receiveLoop(ctx)
	return nil
}

// SendFrame feeds one captured microphone frame (PCM16 mono, 16 kHz) into the
// session. Frames are measured for input level regardless of state, but are
// forwarded to the transport only while Active.
func (c *Controller) SendFrame(pcm []byte) error {
	level := audio.RMSLevel(pcm)

	c.mu.Lock()
	c.inputLevel = level
	state := c.state
	sess := c.session
	c.mu.Unlock()

	c.emit(Event{Type: EventInputLevel, Level: level})

	if state != StateActive || sess == nil {
		return nil
	}
	if err := sess.SendAudio(pcm); err != nil {
		return fmt.Errorf("live: send frame: %w", err)
	}
	return nil
}

// Pause suspends capture forwarding and playback scheduling. In-flight
// scheduled audio is flushed immediately and the model-speaking indicator is
// cleared. Only valid from Active.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state != StateActive {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("live: pause from state %s", state)
	}
	now := c.clock.Now()
	discarded := c.schedule.Flush(now)
	c.modelSpeaking = false
	c.setStateLocked(StatePaused)
	c.mu.Unlock()

	c.emit(Event{Type: EventFlush})
	c.emit(Event{Type: EventSpeaking, Speaking: false})
	c.logger.Debug("session paused", "discarded_chunks", discarded)
	return nil
}

// Resume re-enables capture and playback scheduling. Nothing lost during the
// pause is replayed. Only valid from Paused.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.state != StatePaused {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("live: resume from state %s", state)
	}
	c.setStateLocked(StateActive)
	c.mu.Unlock()
	return nil
}

// Close terminates the session, flushes playback and releases the transport.
// Idempotent; Closed is terminal.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		wasStarted := c.session != nil
		sess := c.session
		now := c.clock.Now()
		c.schedule.Flush(now)
		c.modelSpeaking = false
		c.userBuf = nil
		c.modelBuf = nil
		c.setStateLocked(StateClosed)
		c.mu.Unlock()

		close(c.done)

		if sess != nil {
			if err := sess.Close(); err != nil {
				c.logger.Warn("session close failed", "error", err)
			}
		}

		if wasStarted {
			// Wait for the receive loop so nobody emits after the channel
			// closes.
			<-c.loopDone
		}
		c.mu.Lock()
		c.eventsClosed = true
		c.mu.Unlock()
		close(c.events)
	})
	return nil
}

// receiveLoop consumes provider events until the session ends.
func (c *Controller) receiveLoop(ctx context.Context) {
	defer close(c.loopDone)

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-sess.Events():
			if !ok {
				if err := sess.Err(); err != nil {
					c.mu.Lock()
					if c.errVal == nil {
						c.errVal = err
					}
					c.mu.Unlock()
					c.logger.Warn("session ended with error", "error", err)
				}
				go c.Close()
				return
			}
			c.handleProviderEvent(ctx, ev)
		}
	}
}

func (c *Controller) handleProviderEvent(ctx context.Context, ev providerlive.Event) {
	switch ev.Type {
	case providerlive.EventOpened:
		c.mu.Lock()
		if c.state == StateConnecting {
			c.setStateLocked(StateActive)
		}
		c.mu.Unlock()

	case providerlive.EventInterrupted:
		c.handleBargeIn()

	case providerlive.EventAudio:
		c.handleModelAudio(ev.Audio)

	case providerlive.EventTranscript:
		c.handleTranscript(ev)

	case providerlive.EventTurnComplete:
		c.handleTurnComplete(ctx)
	}
}

// handleBargeIn discards all scheduled playback and resets the cursor to the
// current clock time so the next chunk plays immediately.
func (c *Controller) handleBargeIn() {
	c.mu.Lock()
	now := c.clock.Now()
	discarded := c.schedule.Flush(now)
	c.modelSpeaking = false
	c.mu.Unlock()

	c.emit(Event{Type: EventFlush})
	c.emit(Event{Type: EventSpeaking, Speaking: false})
	c.logger.Debug("barge-in", "discarded_chunks", discarded)
}

func (c *Controller) handleModelAudio(data []byte) {
	c.mu.Lock()
	if c.state != StateActive {
		// Audio arriving while paused or closing is dropped, not queued.
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	c.schedule.Prune(now)
	chunk := c.schedule.Add(data, now)
	wasSpeaking := c.modelSpeaking
	c.modelSpeaking = true
	c.mu.Unlock()

	if !wasSpeaking {
		c.emit(Event{Type: EventSpeaking, Speaking: true})
	}
	c.emit(Event{Type: EventModelAudio, Chunk: chunk})
}

func (c *Controller) handleTranscript(ev providerlive.Event) {
	c.mu.Lock()
	switch ev.Speaker {
	case providerlive.SpeakerUser:
		c.userBuf = append(c.userBuf, ev.Text)
	case providerlive.SpeakerModel:
		c.modelBuf = append(c.modelBuf, ev.Text)
	}
	c.mu.Unlock()

	c.emit(Event{Type: EventTranscript, Speaker: ev.Speaker, Text: ev.Text})
}

// handleTurnComplete records one history item when both sides of the turn
// carry speech, then clears both accumulators. An empty side means an empty
// turn; nothing is recorded.
func (c *Controller) handleTurnComplete(ctx context.Context) {
	c.mu.Lock()
	question := joinFragments(c.userBuf)
	answer := joinFragments(c.modelBuf)
	c.userBuf = nil
	c.modelBuf = nil
	c.mu.Unlock()

	if question == "" || answer == "" {
		return
	}
	if c.recorder == nil {
		return
	}

	if c.corrector != nil {
		corrected, corrections := c.corrector.Correct(question)
		if len(corrections) > 0 {
			c.logger.Debug("transcript corrected", "corrections", len(corrections))
		}
		question = corrected
	}

	c.recorder.RecordExchange(ctx, question, answer, c.exerciseID)
}

// setStateLocked updates the state and queues the transition event. Caller
// holds c.mu.
func (c *Controller) setStateLocked(s State) {
	if c.state == s || c.eventsClosed {
		return
	}
	c.state = s
	// Non-blocking: the events channel is buffered and consumers that stopped
	// reading must not deadlock state transitions.
	select {
	case c.events <- Event{Type: EventState, State: s}:
	default:
	}
}

// emit queues an event without blocking. Events are dropped when the consumer
// has fallen far behind or the controller is closed.
func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eventsClosed {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}

func joinFragments(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, ""))
}
