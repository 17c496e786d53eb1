package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "0.4", cfg.Engine.MinVersion)
	require.Equal(t, "runtime! ginit.vim", cfg.Engine.InitHook)
	require.Equal(t, "neovis", cfg.Engine.MarkerVar)
	require.Zero(t, cfg.Engine.HandshakeTimeout)
	require.NotNil(t, cfg.Settings)
}

func TestValidateEngine(t *testing.T) {
	base := Defaults().Engine

	tests := []struct {
		name    string
		mutate  func(*EngineConfig)
		wantErr string
	}{
		{"defaults", func(*EngineConfig) {}, ""},
		{"missing min version", func(e *EngineConfig) { e.MinVersion = "" }, "engine.min_version is required"},
		{"missing marker", func(e *EngineConfig) { e.MarkerVar = "" }, "engine.marker_var is required"},
		{"env entry", func(e *EngineConfig) { e.Env = []string{"NVIM_APPNAME=neovis", "EMPTY="} }, ""},
		{"env without value separator", func(e *EngineConfig) { e.Env = []string{"NVIM_APPNAME"} }, `engine.env entries must be KEY=VALUE, got "NVIM_APPNAME"`},
		{"env without key", func(e *EngineConfig) { e.Env = []string{"=x"} }, "engine.env entries must be KEY=VALUE"},
		{"negative timeout", func(e *EngineConfig) { e.HandshakeTimeout = -time.Second }, "handshake_timeout must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			tt.mutate(&e)
			err := ValidateEngine(e)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateTracing(t *testing.T) {
	tests := []struct {
		name    string
		tracing TracingConfig
		wantErr string
	}{
		{"disabled defaults", Defaults().Tracing, ""},
		{"sample rate too high", TracingConfig{SampleRate: 1.5}, "sample_rate must be between"},
		{"sample rate negative", TracingConfig{SampleRate: -0.1}, "sample_rate must be between"},
		{"unknown exporter", TracingConfig{Exporter: "jaeger"}, "tracing.exporter must be"},
		{"file without path", TracingConfig{Enabled: true, Exporter: "file"}, "file_path is required"},
		{"otlp without endpoint", TracingConfig{Enabled: true, Exporter: "otlp"}, "otlp_endpoint is required"},
		{"file with path", TracingConfig{Enabled: true, Exporter: "file", FilePath: "/tmp/t.jsonl"}, ""},
		{"stdout", TracingConfig{Enabled: true, Exporter: "stdout"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTracing(tt.tracing)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidate_RejectsBadGeometryAndThreshold(t *testing.T) {
	cfg := Defaults()
	cfg.Window.Geometry = "wide"
	require.ErrorContains(t, cfg.Validate(), "Invalid geometry: wide")

	cfg = Defaults()
	cfg.Dispatch.SlowCallThreshold = -1
	require.ErrorContains(t, cfg.Validate(), "slow_call_threshold")
}

func TestDefaultConfigTemplate_IsValidYAML(t *testing.T) {
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(DefaultConfigTemplate()), &doc))

	for _, key := range []string{"engine", "window", "dispatch", "settings", "tracing", "log"} {
		require.Contains(t, doc, key)
	}
	engine, ok := doc["engine"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "0.4", engine["min_version"])
	require.Equal(t, "neovis", engine["marker_var"])
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfigTemplate(), string(data))
}

func TestDefaultTracesFilePath(t *testing.T) {
	path := DefaultTracesFilePath()
	if path == "" {
		t.Skip("no home directory")
	}
	require.Equal(t, "traces.jsonl", filepath.Base(path))
	require.Contains(t, path, filepath.Join(".config", "neovis"))
}

func TestParseGeometry(t *testing.T) {
	tests := []struct {
		input   string
		want    Geometry
		wantErr string
	}{
		{"100x50", Geometry{Width: 100, Height: 50}, ""},
		{"1x1", Geometry{Width: 1, Height: 1}, ""},
		{"0x50", Geometry{}, "Invalid geometry: Window dimensions should be greater than 0."},
		{"80x0", Geometry{}, "Invalid geometry: Window dimensions should be greater than 0."},
		{"80", Geometry{}, "Invalid geometry: 80\nValid format: <width>x<height>"},
		{"80x24x3", Geometry{}, "Invalid geometry: 80x24x3\nValid format: <width>x<height>"},
		{"axb", Geometry{}, "Invalid geometry: axb\nValid format: <width>x<height>"},
		{"-3x4", Geometry{}, "Invalid geometry: -3x4\nValid format: <width>x<height>"},
		{"", Geometry{}, "Invalid geometry: \nValid format: <width>x<height>"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseGeometry(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
				require.Equal(t, tt.want, got)
				return
			}
			require.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestParseGeometry_ZeroIsSentinel(t *testing.T) {
	_, err := ParseGeometry("0x0")
	require.ErrorIs(t, err, ErrZeroDimension)
}

func TestInitialGeometry(t *testing.T) {
	term := func() (int, int, error) { return 132, 43, nil }
	noTerm := func() (int, int, error) { return 0, 0, errors.New("not a terminal") }

	g, err := InitialGeometry("90x30", term)
	require.NoError(t, err)
	require.Equal(t, Geometry{Width: 90, Height: 30}, g)

	g, err = InitialGeometry("", term)
	require.NoError(t, err)
	require.Equal(t, Geometry{Width: 132, Height: 43}, g)

	g, err = InitialGeometry("", noTerm)
	require.NoError(t, err)
	require.Equal(t, Geometry{Width: DefaultWidth, Height: DefaultHeight}, g)

	g, err = InitialGeometry("", nil)
	require.NoError(t, err)
	require.Equal(t, "100x50", g.String())

	_, err = InitialGeometry("bad", term)
	require.Error(t, err)
}

func TestReadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  min_version: "0.5"
settings:
  refresh_rate: 120
  fullscreen: true
`), 0o600))

	got, err := ReadSettings(path)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"refresh_rate": 120, "fullscreen": true}, got)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("engine: {}\n"), 0o600))
	got, err = ReadSettings(empty)
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = ReadSettings(filepath.Join(dir, "missing.yaml"))
	require.ErrorContains(t, err, "reading config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("settings: [unclosed"), 0o600))
	_, err = ReadSettings(bad)
	require.ErrorContains(t, err, "parsing config file")
}
