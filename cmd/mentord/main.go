// Command mentord is the main entry point for the mentord guided
// self-development server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/deirlabs/mentord/internal/app"
	"github.com/deirlabs/mentord/internal/config"
	"github.com/deirlabs/mentord/internal/observe"
	"github.com/deirlabs/mentord/internal/resilience"
	"github.com/deirlabs/mentord/pkg/provider/live"
	livegemini "github.com/deirlabs/mentord/pkg/provider/live/gemini"
	mediagemini "github.com/deirlabs/mentord/pkg/provider/media/gemini"
	"github.com/deirlabs/mentord/pkg/provider/text"
	"github.com/deirlabs/mentord/pkg/provider/text/anyllm"
	textgemini "github.com/deirlabs/mentord/pkg/provider/text/gemini"
	textopenai "github.com/deirlabs/mentord/pkg/provider/text/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mentord: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mentord: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("mentord starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	var appOpts []app.Option
	if cfg.Server.Metrics {
		shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
		if err != nil {
			slog.Error("failed to initialise telemetry", "err", err)
			return 1
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(flushCtx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}()
		appOpts = append(appOpts, app.WithMetrics(observe.DefaultMetrics()))
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, appOpts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	// Log level and mentor voice apply live; anything else logs a restart hint.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if !d.Any() {
			return
		}
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		application.ApplyConfig(d)
	})
	if err != nil {
		slog.Warn("config hot reload unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with mentord. Used for startup logging.
var builtinProviders = map[string][]string{
	"text":  {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"live":  {"gemini"},
	"media": {"gemini"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages. API keys left out of the
// config resolve from the provider's conventional environment variable.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── Text ──────────────────────────────────────────────────────────────────

	reg.RegisterText("gemini", func(entry config.ProviderEntry) (text.Provider, error) {
		return textgemini.New(ctx, entry.ResolveAPIKey(), entry.Model)
	})

	reg.RegisterText("openai", func(entry config.ProviderEntry) (text.Provider, error) {
		var opts []textopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, textopenai.WithBaseURL(entry.BaseURL))
		}
		return textopenai.New(entry.ResolveAPIKey(), entry.Model, opts...)
	})

	// anthropic, deepseek, mistral, groq, llamacpp and llamafile all share the
	// any-llm pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterText(providerName, func(entry config.ProviderEntry) (text.Provider, error) {
			var opts []anyllmlib.Option
			if key := entry.ResolveAPIKey(); key != "" {
				opts = append(opts, anyllmlib.WithAPIKey(key))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterText("ollama", func(entry config.ProviderEntry) (text.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Live ──────────────────────────────────────────────────────────────────

	reg.RegisterLive("gemini", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []livegemini.Option
		if entry.Model != "" {
			opts = append(opts, livegemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, livegemini.WithBaseURL(entry.BaseURL))
		}
		return livegemini.New(entry.ResolveAPIKey(), opts...), nil
	})

	// ── Media ─────────────────────────────────────────────────────────────────

	reg.RegisterMedia("gemini", func(entry config.ProviderEntry) (config.MediaProviders, error) {
		var opts []mediagemini.Option
		if m := optString(entry.Options, "transcription_model"); m != "" {
			opts = append(opts, mediagemini.WithTranscriptionModel(m))
		}
		if m := optString(entry.Options, "image_model"); m != "" {
			opts = append(opts, mediagemini.WithImageModel(m))
		}
		if m := optString(entry.Options, "video_model"); m != "" {
			opts = append(opts, mediagemini.WithVideoModel(m))
		}
		p, err := mediagemini.New(ctx, entry.ResolveAPIKey(), opts...)
		if err != nil {
			return config.MediaProviders{}, err
		}
		return config.MediaProviders{Transcriber: p, Images: p, Videos: p}, nil
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Text.Name; name != "" {
		p, err := reg.CreateText(cfg.Providers.Text)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "text", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create text provider %q: %w", name, err)
		} else {
			// Every text backend call goes through a circuit breaker so a
			// misbehaving remote degrades to the chat apology path instead of
			// hammering the API.
			ps.Text = resilience.NewTextFallback(p, name, resilience.FallbackConfig{})
			slog.Info("provider created", "kind", "text", "name", name)
		}
	}

	if name := cfg.Providers.Live.Name; name != "" {
		p, err := reg.CreateLive(cfg.Providers.Live)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "live", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create live provider %q: %w", name, err)
		} else {
			ps.Live = p
			slog.Info("provider created", "kind", "live", "name", name)
		}
	}

	if name := cfg.Providers.Media.Name; name != "" {
		mp, err := reg.CreateMedia(cfg.Providers.Media)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "media", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create media provider %q: %w", name, err)
		} else {
			ps.Transcriber = mp.Transcriber
			ps.Images = mp.Images
			ps.Videos = mp.Videos
			slog.Info("provider created", "kind", "media", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         mentord — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Text", cfg.Providers.Text.Name, cfg.Providers.Text.Model)
	printProvider("Live", cfg.Providers.Live.Name, cfg.Providers.Live.Model)
	printProvider("Media", cfg.Providers.Media.Name, cfg.Providers.Media.Model)
	if cfg.Storage.PostgresDSN != "" {
		fmt.Printf("║  Storage         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Storage         : %-19s ║\n", "file")
	}
	if cfg.Curriculum.File != "" {
		fmt.Printf("║  Curriculum      : %-19s ║\n", trimCell(cfg.Curriculum.File))
	} else {
		fmt.Printf("║  Curriculum      : %-19s ║\n", "(embedded)")
	}
	fmt.Printf("║  Voice           : %-19s ║\n", cfg.Mentor.Voice)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, trimCell(value))
}

func trimCell(value string) string {
	if len(value) > 19 {
		return value[:16] + "…"
	}
	return value
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger on a [slog.LevelVar] so the level can
// be adjusted by config hot reload without recreating the handler.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
