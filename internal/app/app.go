// Package app wires all mentord subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithProgressBackend,
// WithHistoryBackend, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deirlabs/mentord/internal/chat"
	"github.com/deirlabs/mentord/internal/config"
	"github.com/deirlabs/mentord/internal/curriculum"
	"github.com/deirlabs/mentord/internal/health"
	"github.com/deirlabs/mentord/internal/history"
	"github.com/deirlabs/mentord/internal/observe"
	"github.com/deirlabs/mentord/internal/progress"
	"github.com/deirlabs/mentord/internal/server"
	"github.com/deirlabs/mentord/internal/studio"
	"github.com/deirlabs/mentord/internal/transcript"
	providerlive "github.com/deirlabs/mentord/pkg/provider/live"
	"github.com/deirlabs/mentord/pkg/provider/media"
	"github.com/deirlabs/mentord/pkg/provider/text"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Text        text.Provider
	Live        providerlive.Provider
	Transcriber media.Transcriber
	Images      media.ImageGenerator
	Videos      media.VideoGenerator
}

// App owns all subsystem lifetimes and serves the mentord API.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	defs      *curriculum.Definitions
	store     *progress.Store
	histLog   *history.Log
	recorder  *history.Recorder
	chat      *chat.Orchestrator
	studio    *studio.Session
	corrector *transcript.Corrector
	sessions  *SessionManager
	metrics   *observe.Metrics
	httpSrv   *http.Server

	// progressBackend and historyBackend may be injected for tests.
	progressBackend progress.Backend
	historyBackend  history.Backend

	// listener overrides the configured listen address when set.
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithProgressBackend injects a progress backend instead of creating one
// from the storage config.
func WithProgressBackend(b progress.Backend) Option {
	return func(a *App) { a.progressBackend = b }
}

// WithHistoryBackend injects a history backend instead of creating one from
// the storage config.
func WithHistoryBackend(b history.Backend) Option {
	return func(a *App) { a.historyBackend = b }
}

// WithDefinitions injects curriculum definitions instead of loading them
// from the curriculum config.
func WithDefinitions(defs *curriculum.Definitions) Option {
	return func(a *App) { a.defs = defs }
}

// WithMetrics injects the observability instruments. Without this option the
// app runs uninstrumented.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithListener serves on the given listener instead of the configured
// address. Primarily used in tests to bind an ephemeral port.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Curriculum definitions ────────────────────────────────────────
	if err := a.initCurriculum(); err != nil {
		return nil, fmt.Errorf("app: init curriculum: %w", err)
	}

	// ── 2. Storage backends ──────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 3. Progress store ────────────────────────────────────────────────
	store, err := progress.New(ctx, a.defs, a.progressBackend)
	if err != nil {
		return nil, fmt.Errorf("app: init progress: %w", err)
	}
	a.store = store

	// ── 4. History log + recorder ────────────────────────────────────────
	histLog, err := history.NewLog(ctx, a.historyBackend, slog.Default())
	if err != nil {
		slog.Warn("history log started empty", "err", err)
	}
	a.histLog = histLog
	a.recorder = history.NewRecorder(a.defs, a.store, a.histLog, slog.Default())

	// ── 5. Transcript corrector ──────────────────────────────────────────
	a.corrector = transcript.NewCorrector(a.defs.Vocabulary())

	// ── 6. Chat orchestrator ─────────────────────────────────────────────
	if providers.Text != nil {
		chatOpts := []chat.Option{chat.WithRecorder(a.recorder)}
		if cfg.Mentor.MaxTurns > 0 {
			chatOpts = append(chatOpts, chat.WithMaxTurns(cfg.Mentor.MaxTurns))
		}
		a.chat = chat.New(providers.Text, a.store, a.defs, chatOpts...)
	} else {
		slog.Warn("no text provider configured; chat and debate are disabled")
	}

	// ── 7. Media studio ──────────────────────────────────────────────────
	if providers.Images != nil || providers.Videos != nil {
		a.studio = studio.NewSession(a.store, a.defs, providers.Images, providers.Videos)
	}

	// ── 8. Live session manager ──────────────────────────────────────────
	if providers.Live != nil {
		a.sessions = NewSessionManager(SessionManagerConfig{
			Provider:  providers.Live,
			Store:     a.store,
			Defs:      a.defs,
			Recorder:  a.recorder,
			Corrector: a.corrector,
			Metrics:   a.metrics,
			Voice:     cfg.Mentor.Voice,
		})
	}

	// ── 9. HTTP server ───────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initCurriculum loads the canonical definitions: an explicit file when
// configured, the embedded defaults otherwise.
func (a *App) initCurriculum() error {
	if a.defs != nil {
		return nil // injected
	}
	if path := a.cfg.Curriculum.File; path != "" {
		defs, err := curriculum.Load(path)
		if err != nil {
			return err
		}
		slog.Info("loaded curriculum", "path", path, "stages", len(defs.Stages))
		a.defs = defs
		return nil
	}
	a.defs = curriculum.Default()
	return nil
}

// initStorage sets up the progress and history backends. A configured
// Postgres DSN takes precedence over the file data directory.
func (a *App) initStorage(ctx context.Context) error {
	if a.progressBackend != nil && a.historyBackend != nil {
		return nil // both injected
	}

	if dsn := a.cfg.Storage.PostgresDSN; dsn != "" {
		if a.progressBackend == nil {
			pb, err := progress.NewPostgresBackend(ctx, dsn)
			if err != nil {
				return fmt.Errorf("progress backend: %w", err)
			}
			a.progressBackend = pb
			a.closers = append(a.closers, func() error {
				pb.Close()
				return nil
			})
		}
		if a.historyBackend == nil {
			hb, err := history.NewPostgresBackend(ctx, dsn)
			if err != nil {
				return fmt.Errorf("history backend: %w", err)
			}
			a.historyBackend = hb
			a.closers = append(a.closers, func() error {
				hb.Close()
				return nil
			})
		}
		return nil
	}

	dataDir := a.cfg.Storage.DataDir
	if dataDir == "" {
		dataDir = config.DefaultDataDir
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %q: %w", dataDir, err)
	}
	if a.progressBackend == nil {
		a.progressBackend = progress.NewFileBackend(filepath.Join(dataDir, "progress.json"))
	}
	if a.historyBackend == nil {
		a.historyBackend = history.NewFileBackend(filepath.Join(dataDir, "history.jsonl"))
	}
	return nil
}

// initHTTP assembles the API server over the initialised subsystems.
func (a *App) initHTTP() {
	checkers := []health.Checker{
		health.Progress(a.progressBackend),
		health.History(a.historyBackend),
	}

	srvCfg := server.Config{
		Store:       a.store,
		Definitions: a.defs,
		History:     a.histLog,
		Chat:        a.chat,
		Studio:      a.studio,
		Transcriber: a.providers.Transcriber,
		Health:      health.New(checkers...),
	}
	if a.sessions != nil {
		srvCfg.Live = a.sessions
	}
	if a.cfg.Server.Metrics {
		srvCfg.Metrics = a.metrics
	}

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = config.DefaultListenAddr
	}
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           server.New(srvCfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails. On cancellation in-flight requests are drained before Run returns
// ctx.Err(); a cancelled context is a clean stop.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		switch {
		case a.listener != nil:
			err = a.httpSrv.Serve(a.listener)
		case a.cfg.Server.TLS != nil:
			err = a.httpSrv.ListenAndServeTLS(a.cfg.Server.TLS.CertFile, a.cfg.Server.TLS.KeyFile)
		default:
			err = a.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	// Supervisor: once the group context ends, drain the HTTP server so the
	// serve goroutine unblocks and Wait can return.
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(drainCtx)
	})

	slog.Info("serving", "addr", a.httpSrv.Addr, "tls", a.cfg.Server.TLS != nil)

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ApplyConfig applies a hot-reloaded configuration diff. Only changes that
// are safe without a restart take effect; the rest are logged so the operator
// knows a restart is still needed.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.VoiceChanged && a.sessions != nil {
		a.sessions.SetVoice(d.NewVoice)
		slog.Info("live voice updated", "voice", d.NewVoice)
	}
	if d.MaxTurnsChanged {
		slog.Warn("mentor.max_turns changed; restart to apply")
	}
	if d.CurriculumChanged {
		slog.Warn("curriculum.file changed; restart to apply")
	}
}

// Addr returns the configured listen address.
func (a *App) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.httpSrv.Addr
}

// Store exposes the progress store for inspection in tests.
func (a *App) Store() *progress.Store { return a.store }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order: the live session first so its
// final exchange is recorded, then the HTTP server, then the storage closers.
// It respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.sessions != nil {
			if err := a.sessions.Stop(ctx); err != nil {
				slog.Warn("live session stop error", "err", err)
			}
		}

		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
