package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per capability.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"text":  {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"live":  {"gemini"},
	"media": {"gemini"},
}

// DefaultListenAddr is used when server.listen_addr is empty.
const DefaultListenAddr = ":8080"

// DefaultDataDir is used when storage.data_dir is empty.
const DefaultDataDir = "./data"

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills empty fields that have a sensible built-in value.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Storage.DataDir == "" && cfg.Storage.PostgresDSN == "" {
		cfg.Storage.DataDir = DefaultDataDir
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("text", cfg.Providers.Text.Name)
	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("media", cfg.Providers.Media.Name)

	// Credential availability warnings. Missing keys are surfaced once here
	// rather than failing at the first backend call.
	warnMissingKey("text", cfg.Providers.Text)
	warnMissingKey("live", cfg.Providers.Live)
	warnMissingKey("media", cfg.Providers.Media)

	if cfg.Providers.Text.Name == "" {
		slog.Warn("providers.text is not configured; the chat mentor will be unavailable")
	}

	if cfg.Mentor.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("mentor.max_turns %d must not be negative", cfg.Mentor.MaxTurns))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// warnMissingKey logs a warning when a configured provider resolves no API
// key from either the config or the environment.
func warnMissingKey(kind string, entry ProviderEntry) {
	if entry.Name == "" {
		return
	}
	if entry.ResolveAPIKey() == "" {
		slog.Warn("provider has no API key configured and none found in the environment",
			"kind", kind,
			"name", entry.Name,
		)
	}
}
