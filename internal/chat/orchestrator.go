// Package chat turns user messages into mentor responses.
//
// The Orchestrator assembles the conversation history plus a context block
// describing the user's position in the curriculum, submits it to the text
// provider, strips markup noise from the reply, and records the exchange in
// the history log. A busy flag rejects overlapping sends; failures degrade to
// a fixed apology instead of surfacing transport errors to the caller.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/deirlabs/mentord/internal/curriculum"
	"github.com/deirlabs/mentord/internal/history"
	"github.com/deirlabs/mentord/internal/progress"
	"github.com/deirlabs/mentord/pkg/provider/text"
	"github.com/deirlabs/mentord/pkg/types"
)

// ErrBusy is returned when a send is attempted while another is in flight.
// Callers must surface this as "wait", not queue the message.
var ErrBusy = errors.New("chat: a message is already in flight")

// Apology is shown to the user when the remote backend fails.
const Apology = "I'm sorry, I couldn't find the right words just now. Please ask me again in a moment."

// Recorder persists one completed exchange. *history.Recorder satisfies it.
type Recorder interface {
	RecordExchange(ctx context.Context, question, answer, exerciseID string) history.Item
}

// Option is a functional option for the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger.With("component", "chat")
	}
}

// WithRecorder attaches a history recorder. Without one, exchanges are not
// recorded.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithMaxTurns caps how many prior turns are replayed to the model. Default 40.
func WithMaxTurns(n int) Option {
	return func(o *Orchestrator) { o.maxTurns = n }
}

// Orchestrator drives the mentor conversation. Safe for concurrent use; only
// one send proceeds at a time, the rest are rejected with ErrBusy.
type Orchestrator struct {
	provider text.Provider
	store    *progress.Store
	defs     *curriculum.Definitions
	recorder Recorder
	logger   *slog.Logger
	maxTurns int

	mu    sync.Mutex
	busy  bool
	turns []types.Message
}

// New creates an Orchestrator over the given provider and progression state.
func New(provider text.Provider, store *progress.Store, defs *curriculum.Definitions, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		store:    store,
		defs:     defs,
		logger:   slog.Default().With("component", "chat"),
		maxTurns: 40,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether a send is currently in flight.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Send submits one user message and returns the mentor's reply. exerciseID,
// when non-empty, scopes the exchange to that exercise. A remote failure
// returns the fixed Apology text with a nil error; the failure is logged.
func (o *Orchestrator) Send(ctx context.Context, message string, attachment *types.Attachment, exerciseID string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("chat: message must not be empty")
	}

	if err := o.acquire(); err != nil {
		return "", err
	}
	defer o.release()

	req := text.CompletionRequest{
		Messages:     o.buildMessages(message),
		SystemPrompt: o.contextBlock(exerciseID),
	}
	if attachment != nil {
		req.Attachments = []types.Attachment{*attachment}
	}

	resp, err := o.provider.Complete(ctx, req)
	if err != nil {
		o.logger.Warn("completion failed", "error", err)
		return Apology, nil
	}

	reply := StripMarkup(resp.Content)

	o.mu.Lock()
	o.turns = append(o.turns,
		types.Message{Role: types.RoleUser, Content: message},
		types.Message{Role: types.RoleAssistant, Content: reply},
	)
	o.mu.Unlock()

	if o.recorder != nil {
		o.recorder.RecordExchange(ctx, message, reply, exerciseID)
	}
	return reply, nil
}

// Turns returns a copy of the accumulated conversation.
func (o *Orchestrator) Turns() []types.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]types.Message, len(o.turns))
	copy(out, o.turns)
	return out
}

func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return ErrBusy
	}
	o.busy = true
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.busy = false
	o.mu.Unlock()
}

// buildMessages replays the most recent prior turns followed by the new user
// message.
func (o *Orchestrator) buildMessages(message string) []types.Message {
	o.mu.Lock()
	prior := o.turns
	if len(prior) > o.maxTurns {
		prior = prior[len(prior)-o.maxTurns:]
	}
	msgs := make([]types.Message, 0, len(prior)+1)
	msgs = append(msgs, prior...)
	o.mu.Unlock()

	return append(msgs, types.Message{Role: types.RoleUser, Content: message})
}

// contextBlock renders the user's curriculum position for the system prompt,
// including the rule that forbids disclosing locked-stage content.
func (o *Orchestrator) contextBlock(exerciseID string) string {
	var b strings.Builder

	b.WriteString("You are a personal development mentor guiding the user through a staged programme.\n\n")

	if name := o.store.Username(); name != "" {
		fmt.Fprintf(&b, "The user's name is %s.\n", name)
	}

	active := o.store.ActiveStage()
	if active.ID != "" {
		fmt.Fprintf(&b, "The user's current stage is %q (%s).\n", active.DisplayTitle(), active.Level)
	}

	var completed, locked []string
	for _, st := range o.store.Stages() {
		if st.Completed {
			completed = append(completed, st.DisplayTitle())
		}
		if st.Locked {
			locked = append(locked, st.DisplayTitle())
		}
	}
	if len(completed) > 0 {
		fmt.Fprintf(&b, "Completed stages: %s.\n", strings.Join(completed, "; "))
	}

	if exerciseID != "" {
		if ex, ok := o.defs.ExerciseByID(exerciseID); ok {
			fmt.Fprintf(&b, "The user is currently working on the exercise %q: %s\n", ex.Title, ex.Description)
		}
	}

	if len(locked) > 0 {
		fmt.Fprintf(&b,
			"\nThe following stages are still locked: %s. Never reveal, summarise, or discuss their content. If asked, explain that the material unlocks later in the programme.\n",
			strings.Join(locked, "; "))
	}

	b.WriteString("\nSpeak plainly and answer in plain text without markdown formatting.")
	return b.String()
}
