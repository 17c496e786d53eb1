// Package config provides configuration types and defaults for neovis.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/neovis/internal/log"
)

// Config holds all configuration options for neovis.
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Window   WindowConfig   `mapstructure:"window" yaml:"window"`
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`
	Settings map[string]any `mapstructure:"settings" yaml:"settings"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// EngineConfig describes how the embedded editor engine is started and
// prepared before the UI attaches.
type EngineConfig struct {
	// Bin is the engine executable. NEOVIM_BIN overrides it; empty means "nvim".
	Bin string `mapstructure:"bin" yaml:"bin"`
	// Args are passed to the engine after --embed.
	Args []string `mapstructure:"args" yaml:"args"`
	// WSL launches the engine through wsl on Windows.
	WSL bool `mapstructure:"wsl" yaml:"wsl"`
	// Env holds extra KEY=VALUE entries added to the engine's environment.
	Env []string `mapstructure:"env" yaml:"env"`
	// MinVersion is checked with has("nvim-<MinVersion>").
	MinVersion string `mapstructure:"min_version" yaml:"min_version"`
	// HandshakeTimeout bounds each startup call. Zero waits forever.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	// InitHook is run once after the marker variable is set.
	InitHook string `mapstructure:"init_hook" yaml:"init_hook"`
	// MarkerVar is set to true so user config can detect the front-end.
	MarkerVar string `mapstructure:"marker_var" yaml:"marker_var"`
}

// WindowConfig holds the initial grid geometry.
type WindowConfig struct {
	// Geometry is "<width>x<height>" in cells. Empty uses the terminal size.
	Geometry string `mapstructure:"geometry" yaml:"geometry"`
}

// DispatchConfig tunes command dispatch.
type DispatchConfig struct {
	// SlowCallThreshold logs a warning for remote calls slower than this.
	SlowCallThreshold time.Duration `mapstructure:"slow_call_threshold" yaml:"slow_call_threshold"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Exporter specifies where traces are sent: "none", "file", "stdout" or "otlp".
	Exporter string `mapstructure:"exporter" yaml:"exporter"`

	// FilePath is the JSONL destination when Exporter is "file".
	FilePath string `mapstructure:"file_path" yaml:"file_path"`

	// OTLPEndpoint is the collector address when Exporter is "otlp".
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`

	// SampleRate is the sampling ratio in [0.0, 1.0].
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// LogConfig controls the debug log file.
type LogConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Level string `mapstructure:"level" yaml:"level"`
}

// Window dimensions used when neither --geometry nor a terminal size is known.
const (
	DefaultWidth  = 100
	DefaultHeight = 50
)

// DefaultTracesFilePath returns ~/.config/neovis/traces/traces.jsonl or
// empty string if the home dir is unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "neovis", "traces", "traces.jsonl")
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Bin:        "",
			MinVersion: "0.4",
			InitHook:   "runtime! ginit.vim",
			MarkerVar:  "neovis",
		},
		Dispatch: DispatchConfig{
			SlowCallThreshold: 250 * time.Millisecond,
		},
		Settings: map[string]any{},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from config dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if err := ValidateEngine(c.Engine); err != nil {
		return err
	}
	if c.Window.Geometry != "" {
		if _, err := ParseGeometry(c.Window.Geometry); err != nil {
			return err
		}
	}
	if c.Dispatch.SlowCallThreshold < 0 {
		return fmt.Errorf("dispatch.slow_call_threshold must not be negative, got %v", c.Dispatch.SlowCallThreshold)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateEngine checks engine configuration for errors.
func ValidateEngine(engine EngineConfig) error {
	if engine.MinVersion == "" {
		return fmt.Errorf("engine.min_version is required")
	}
	if engine.MarkerVar == "" {
		return fmt.Errorf("engine.marker_var is required")
	}
	for _, kv := range engine.Env {
		if strings.IndexByte(kv, '=') <= 0 {
			return fmt.Errorf("engine.env entries must be KEY=VALUE, got %q", kv)
		}
	}
	if engine.HandshakeTimeout < 0 {
		return fmt.Errorf("engine.handshake_timeout must not be negative, got %v", engine.HandshakeTimeout)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the commented config written on first run.
func DefaultConfigTemplate() string {
	return `# Neovis Configuration

# Embedded engine
engine:
  # bin: /usr/local/bin/nvim    # Engine binary (NEOVIM_BIN overrides, default: nvim)
  # args: ["-u", "NONE"]        # Extra arguments passed after --embed
  # wsl: false                  # Windows only: run the engine through wsl
  # env: ["NVIM_APPNAME=neovis"] # Extra KEY=VALUE entries for the engine environment
  min_version: "0.4"            # Checked with has("nvim-<min_version>")
  handshake_timeout: 0s         # Bound each startup call (0s = wait forever)
  init_hook: "runtime! ginit.vim"
  marker_var: neovis            # Sets g:neovis = v:true before the hook runs

# Initial grid size in cells, "<width>x<height>" (default: terminal size)
window:
  # geometry: 120x40

# Command dispatch
dispatch:
  slow_call_threshold: 250ms    # Warn when a remote call takes longer

# Front-end settings, mirrored to g:neovis_<name> in the engine.
# Edits to this file are pushed to a running engine.
settings:
  # refresh_rate: 60
  # no_idle: false
  # fullscreen: false
  # status_bar: true

# Tracing (OpenTelemetry)
tracing:
  enabled: false
  exporter: file                # none, file, stdout or otlp
  # file_path: ~/.config/neovis/traces/traces.jsonl
  # otlp_endpoint: localhost:4317
  sample_rate: 1.0

# Debug log (also enabled by --debug or NEOVIS_DEBUG)
log:
  # path: neovis.log
  level: debug                  # trace, debug, info, warn or error
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
