// Package studio builds generative media requests from the user's position in
// the curriculum.
//
// A Session holds the per-stage set of enabled visual concepts. Each
// generation combines the user's free-form prompt with the prompt fragments
// of the enabled concepts, wraps the result in a constraint context that
// confines the model to the active stage's material, and dispatches it to an
// image or video provider. The toggle set resets whenever the active stage
// changes; concepts from locked stages are never offered or accepted.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deirlabs/mentord/internal/curriculum"
	"github.com/deirlabs/mentord/internal/progress"
	"github.com/deirlabs/mentord/pkg/provider/media"
)

// styleSuffix is appended to every generation prompt.
const styleSuffix = "Cinematic, magical realism, glowing energy effects, volumetric lighting."

// defaultAspectRatio is used when a video request does not name one.
const defaultAspectRatio = "16:9"

// ErrBusy is returned when a generation is attempted while another is in
// flight.
var ErrBusy = errors.New("studio: a generation is already in flight")

// Kind distinguishes the generation types kept in the session history.
type Kind string

const (
	KindImage Kind = "image"
	KindEdit  Kind = "edit"
	KindVideo Kind = "video"
)

// ConceptState is one studio toggle: the concept definition plus whether it
// is currently enabled.
type ConceptState struct {
	curriculum.Concept
	Enabled bool `json:"enabled"`
}

// Generation is one completed studio request, kept in the in-session history.
// The session history is ephemeral and not persisted.
type Generation struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Prompt     string    `json:"prompt"`
	StageID    string    `json:"stageId"`
	StageLevel string    `json:"stageLevel"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Option is a functional option for the Session.
type Option func(*Session)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger.With("component", "studio")
	}
}

// WithClock overrides the time source for generation records.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is the media studio state for one user. Safe for concurrent use;
// only one generation proceeds at a time, the rest are rejected with ErrBusy.
type Session struct {
	store  *progress.Store
	defs   *curriculum.Definitions
	images media.ImageGenerator
	videos media.VideoGenerator
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	busy    bool
	stageID string
	enabled map[string]bool
	history []Generation
}

// NewSession creates a studio session over the given providers and
// progression state.
func NewSession(store *progress.Store, defs *curriculum.Definitions, images media.ImageGenerator, videos media.VideoGenerator, opts ...Option) *Session {
	s := &Session{
		store:   store,
		defs:    defs,
		images:  images,
		videos:  videos,
		logger:  slog.Default().With("component", "studio"),
		now:     time.Now,
		enabled: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Concepts returns the toggle set offered for the active stage, in definition
// order, with current enabled flags.
func (s *Session) Concepts() []ConceptState {
	s.mu.Lock()
	defer s.mu.Unlock()
	stage := s.syncStageLocked()
	concepts := s.defs.ConceptsForStage(stage.ID)
	out := make([]ConceptState, len(concepts))
	for i, c := range concepts {
		out[i] = ConceptState{Concept: c, Enabled: s.enabled[c.ID]}
	}
	return out
}

// ToggleConcept flips the enabled state of one concept and returns the new
// state. Concepts outside the active stage are rejected.
func (s *Session) ToggleConcept(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	concept, ok := s.defs.ConceptByID(id)
	if !ok {
		return false, fmt.Errorf("studio: unknown concept %q", id)
	}
	stage := s.syncStageLocked()
	if concept.StageID != stage.ID {
		return false, fmt.Errorf("studio: concept %q is not available at the current stage", id)
	}

	s.enabled[id] = !s.enabled[id]
	return s.enabled[id], nil
}

// History returns a copy of the generation records, newest first.
func (s *Session) History() []Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Generation, len(s.history))
	copy(out, s.history)
	return out
}

// Busy reports whether a generation is currently in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// GenerateImage renders a fresh image for the given prompt combined with the
// enabled concepts.
func (s *Session) GenerateImage(ctx context.Context, prompt string) (*media.Image, error) {
	return s.generateImage(ctx, KindImage, prompt, nil)
}

// EditImage applies the prompt as an edit to an existing image.
func (s *Session) EditImage(ctx context.Context, prompt string, source *media.Image) (*media.Image, error) {
	if source == nil {
		return nil, errors.New("studio: edit requires a source image")
	}
	return s.generateImage(ctx, KindEdit, prompt, source)
}

func (s *Session) generateImage(ctx context.Context, kind Kind, prompt string, source *media.Image) (*media.Image, error) {
	finalPrompt, stage, err := s.begin(prompt)
	if err != nil {
		return nil, err
	}
	defer s.release()

	img, err := s.images.GenerateImage(ctx, media.ImageRequest{
		Prompt: finalPrompt,
		Source: source,
	})
	if err != nil {
		s.logger.Error("image generation failed", "stage", stage.ID, "error", err)
		return nil, fmt.Errorf("studio: generate image: %w", err)
	}

	s.record(kind, finalPrompt, stage)
	return img, nil
}

// GenerateVideo renders a video clip. A non-nil source image seeds the render;
// aspectRatio defaults to 16:9 and square ratios are widened, since the video
// backend does not support them.
func (s *Session) GenerateVideo(ctx context.Context, prompt string, source *media.Image, aspectRatio string) (*media.Video, error) {
	finalPrompt, stage, err := s.begin(prompt)
	if err != nil {
		return nil, err
	}
	defer s.release()

	if aspectRatio == "" || aspectRatio == "1:1" {
		aspectRatio = defaultAspectRatio
	}

	vid, err := s.videos.GenerateVideo(ctx, media.VideoRequest{
		Prompt:      finalPrompt,
		SourceImage: source,
		AspectRatio: aspectRatio,
	})
	if err != nil {
		s.logger.Error("video generation failed", "stage", stage.ID, "error", err)
		return nil, fmt.Errorf("studio: generate video: %w", err)
	}

	s.record(KindVideo, finalPrompt, stage)
	return vid, nil
}

// begin acquires the busy flag and builds the final constrained prompt.
func (s *Session) begin(prompt string) (string, curriculum.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return "", curriculum.Stage{}, ErrBusy
	}
	stage := s.syncStageLocked()
	final := s.constrainedPromptLocked(prompt, stage)
	s.busy = true
	return final, stage, nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Session) record(kind Kind, prompt string, stage curriculum.Stage) {
	gen := Generation{
		ID:         uuid.NewString(),
		Kind:       kind,
		Prompt:     prompt,
		StageID:    stage.ID,
		StageLevel: stage.Level,
		CreatedAt:  s.now(),
	}
	s.mu.Lock()
	s.history = append([]Generation{gen}, s.history...)
	s.mu.Unlock()
}

// syncStageLocked resolves the active stage and clears the toggle set when it
// has changed since the last call.
func (s *Session) syncStageLocked() curriculum.Stage {
	stage := s.store.ActiveStage()
	if stage.ID != s.stageID {
		s.stageID = stage.ID
		clear(s.enabled)
	}
	return stage
}

// constrainedPromptLocked combines the user prompt, the enabled concept
// fragments, the style suffix, and the stage constraint context.
func (s *Session) constrainedPromptLocked(prompt string, stage curriculum.Stage) string {
	var visual strings.Builder
	if p := strings.TrimSpace(prompt); p != "" {
		visual.WriteString(p)
		visual.WriteString(". ")
	}
	for _, c := range s.defs.ConceptsForStage(stage.ID) {
		if s.enabled[c.ID] {
			visual.WriteString(c.Prompt)
			visual.WriteString(" ")
		}
	}
	visual.WriteString(styleSuffix)

	var b strings.Builder
	b.WriteString("CONTEXT RESTRICTION: the user is at stage ")
	b.WriteString(stage.Level)
	b.WriteString(" \"")
	b.WriteString(stage.DisplayTitle())
	b.WriteString("\" of a guided development curriculum.\n")
	b.WriteString("KEY MEANING: ")
	b.WriteString(strings.TrimSpace(stage.Description))
	b.WriteString("\n")
	b.WriteString("ALLOWED CONCEPTS: visualize only material from this stage or earlier ones. Allowed topics: ")
	exercises := s.defs.ExercisesForStage(stage.ID)
	titles := make([]string, len(exercises))
	for i, ex := range exercises {
		titles[i] = fmt.Sprintf("%q", ex.Title)
	}
	b.WriteString(strings.Join(titles, "; "))
	b.WriteString(".\n")
	b.WriteString("FORBIDDEN CONCEPTS: do not use imagery, symbols, or structures belonging to later stages.\n")
	b.WriteString("\nVISUAL PROMPT: ")
	b.WriteString(visual.String())
	return b.String()
}
