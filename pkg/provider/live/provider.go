// Package live defines the Provider interface for duplex live-audio backends.
//
// A live provider wraps a real-time voice service that accepts streamed PCM
// microphone input and returns synthesized speech plus transcription events in
// a single stateful session. The central abstraction is [Session]: a
// bidirectional handle whose inbound side is a single ordered event stream
// carrying audio chunks, transcript fragments, barge-in interruptions, and
// turn boundaries.
//
// Event ordering matters: when the remote end reports an interruption it is
// delivered before any other event decoded from the same wire message, so
// consumers can flush scheduled playback before touching anything else.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"time"
)

// Speaker identifies which side of the conversation a transcript fragment
// belongs to.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// EventType classifies session events.
type EventType int

const (
	// EventOpened is emitted once when the remote endpoint confirms the
	// duplex channel is ready.
	EventOpened EventType = iota

	// EventAudio carries one synthesized PCM chunk for playback.
	EventAudio

	// EventTranscript carries one transcription fragment for either speaker.
	EventTranscript

	// EventTurnComplete marks the end of one user/model exchange.
	EventTurnComplete

	// EventInterrupted signals that the user barged in: all audio delivered
	// so far for the current turn should be discarded from playback.
	EventInterrupted
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "OPENED"
	case EventAudio:
		return "AUDIO"
	case EventTranscript:
		return "TRANSCRIPT"
	case EventTurnComplete:
		return "TURN_COMPLETE"
	case EventInterrupted:
		return "INTERRUPTED"
	default:
		return "UNKNOWN"
	}
}

// Event is one item on a session's inbound stream. Only the fields relevant
// to the Type are set.
type Event struct {
	Type EventType

	// Audio is the raw PCM chunk for EventAudio.
	Audio []byte

	// Speaker and Text are set for EventTranscript.
	Speaker Speaker
	Text    string
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Voice selects the synthesized voice by provider-specific name.
	Voice string

	// Instructions is the system-level prompt framing the mentor's persona
	// and the user's current curriculum context.
	Instructions string
}

// Capabilities describes static properties of a live provider.
type Capabilities struct {
	// InputSampleRate is the PCM rate the provider expects on the uplink.
	InputSampleRate int

	// OutputSampleRate is the PCM rate of synthesized downlink audio.
	OutputSampleRate int

	// MaxSessionDuration is the provider-imposed session lifetime cap.
	// Zero means no documented limit.
	MaxSessionDuration time.Duration

	// Voices lists the selectable voice names.
	Voices []string
}

// Session represents an open duplex live-audio session.
//
// The session is the hot path of the voice pipeline; every method must return
// quickly. The event stream is channel-based so the caller's audio goroutine
// is never blocked on network I/O. All methods must be safe for concurrent
// use. Callers must call Close when the session is no longer needed.
type Session interface {
	// SendAudio delivers one raw PCM microphone chunk to the provider. The
	// chunk must match [Capabilities.InputSampleRate], 16-bit mono. Returns
	// an error if the session is closed or the transport rejects the write.
	SendAudio(chunk []byte) error

	// Events returns the read-only inbound event stream. The channel is
	// closed when the session ends; after that, call [Session.Err] to learn
	// whether it ended cleanly. Consumers must drain promptly.
	Events() <-chan Event

	// Err returns the error that terminated the event stream, or nil if the
	// session ended cleanly.
	Err() error

	// Close terminates the session, releases all resources, and closes the
	// event channel. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any live-audio backend.
type Provider interface {
	// Connect establishes a new session. The returned Session is ready to
	// accept audio immediately. The caller owns the Session and is
	// responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() Capabilities
}
