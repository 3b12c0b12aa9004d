// Package server exposes the mentord core to a thin client over HTTP.
//
// The API is deliberately flat: progression and history are plain JSON
// endpoints, the chat and debate surfaces stream newline-delimited JSON, and
// the live mentor session is a single WebSocket bridge that carries PCM audio
// as binary frames and control/events as text frames. All handlers delegate
// to the domain packages; the server itself holds no state beyond its wiring.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deirlabs/mentord/internal/chat"
	"github.com/deirlabs/mentord/internal/curriculum"
	"github.com/deirlabs/mentord/internal/health"
	"github.com/deirlabs/mentord/internal/history"
	"github.com/deirlabs/mentord/internal/live"
	"github.com/deirlabs/mentord/internal/observe"
	"github.com/deirlabs/mentord/internal/progress"
	"github.com/deirlabs/mentord/internal/studio"
	providerlive "github.com/deirlabs/mentord/pkg/provider/live"
	"github.com/deirlabs/mentord/pkg/provider/media"
)

// LiveSessions manages the single active live mentor session.
// *app.SessionManager satisfies it.
type LiveSessions interface {
	// Start opens a new live session scoped to exerciseID (empty for a
	// general session), tearing down any prior session first.
	Start(ctx context.Context, cfg providerlive.SessionConfig, exerciseID string) (*live.Controller, error)

	// Stop closes the active session. It is a no-op when none is active.
	Stop(ctx context.Context) error
}

// Config bundles the dependencies of a [Server]. Store, Definitions and
// History are required; the remaining slots may be nil when the matching
// provider is not configured, in which case the corresponding endpoints
// respond with 503.
type Config struct {
	Store       *progress.Store
	Definitions *curriculum.Definitions
	History     *history.Log
	Chat        *chat.Orchestrator
	Studio      *studio.Session
	Transcriber media.Transcriber
	Live        LiveSessions
	Health      *health.Handler

	// Metrics enables the /metrics endpoint and HTTP instrumentation.
	Metrics *observe.Metrics
}

// Option is a functional option for the Server.
type Option func(*Server)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.With("component", "server")
	}
}

// Server routes API requests to the mentord core.
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Server over the given dependencies.
func New(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default().With("component", "server"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the full request mux, wrapped in telemetry middleware when
// metrics are configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/stages", s.handleStages)
	mux.HandleFunc("POST /api/stages/{id}/complete", s.handleCompleteStage)
	mux.HandleFunc("POST /api/exercises/{id}/toggle", s.handleToggleExercise)
	mux.HandleFunc("GET /api/user", s.handleGetUser)
	mux.HandleFunc("POST /api/user", s.handleSetUser)

	mux.HandleFunc("GET /api/history", s.handleHistory)

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/debate", s.handleDebate)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)

	mux.HandleFunc("GET /api/studio/concepts", s.handleConcepts)
	mux.HandleFunc("POST /api/studio/concepts/{id}/toggle", s.handleToggleConcept)
	mux.HandleFunc("POST /api/studio/image", s.handleGenerateImage)
	mux.HandleFunc("POST /api/studio/image/edit", s.handleEditImage)
	mux.HandleFunc("POST /api/studio/video", s.handleGenerateVideo)
	mux.HandleFunc("GET /api/studio/history", s.handleStudioHistory)

	mux.HandleFunc("GET /api/live", s.handleLive)

	if s.cfg.Health != nil {
		s.cfg.Health.Register(mux)
	}
	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		return observe.Middleware(s.cfg.Metrics)(mux)
	}
	return mux
}

// apiError is the JSON error envelope.
type apiError struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, apiError{Error: msg})
}

// readJSON decodes the request body into v, rejecting unknown fields.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
