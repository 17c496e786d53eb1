package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/zjrosen/neovis/internal/bridge"
	"github.com/zjrosen/neovis/internal/command"
	"github.com/zjrosen/neovis/internal/config"
	"github.com/zjrosen/neovis/internal/editor"
	"github.com/zjrosen/neovis/internal/launcher"
	"github.com/zjrosen/neovis/internal/log"
	"github.com/zjrosen/neovis/internal/settings"
	"github.com/zjrosen/neovis/internal/tracing"
	"github.com/zjrosen/neovis/internal/ui"
	"github.com/zjrosen/neovis/internal/watcher"
)

func init() {
	// Query the background color before the program owns stdin, so the
	// terminal's reply is not read as keystrokes.
	_ = lipgloss.HasDarkBackground()
}

// EnvDebug enables the debug log when set to any value.
const EnvDebug = "NEOVIS_DEBUG"

const (
	localConfigPath = ".neovis/config.yaml"
	defaultLogFile  = "neovis.log"
	shutdownTimeout = 2 * time.Second
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "neovis [flags] [-- engine args...]",
	Short: "A terminal front-end for an embedded Neovim",
	Long: `neovis starts "nvim --embed", attaches to it as an external UI and
forwards keyboard, mouse and window events to it.`,
	Version:       version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runApp,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/neovis/config.yaml)")
	rootCmd.Flags().String("geometry", "",
		"initial grid size as <width>x<height>")
	rootCmd.Flags().Bool("wsl", false,
		"run the engine through wsl (Windows only)")
	rootCmd.Flags().Bool("no-idle", false,
		"redraw on every tick instead of only after engine flushes")
	rootCmd.Flags().Bool("debug", false,
		"write a debug log (also enabled by "+EnvDebug+")")
	rootCmd.Flags().String("log-file", "",
		"debug log path (default: "+defaultLogFile+")")

	_ = viper.BindPFlag("window.geometry", rootCmd.Flags().Lookup("geometry"))
	_ = viper.BindPFlag("engine.wsl", rootCmd.Flags().Lookup("wsl"))
	_ = viper.BindPFlag("log.path", rootCmd.Flags().Lookup("log-file"))
	_ = viper.BindEnv("engine.bin", launcher.EnvBin)
}

func initConfig() {
	setDefaults(viper.GetViper(), config.Defaults())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .neovis/config.yaml (current directory)
		// 2. ~/.config/neovis/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			viper.AddConfigPath(userConfigDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			defaultPath := filepath.Join(userConfigDir(), "config.yaml")
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("engine.bin", d.Engine.Bin)
	v.SetDefault("engine.args", d.Engine.Args)
	v.SetDefault("engine.wsl", d.Engine.WSL)
	v.SetDefault("engine.env", d.Engine.Env)
	v.SetDefault("engine.min_version", d.Engine.MinVersion)
	v.SetDefault("engine.handshake_timeout", d.Engine.HandshakeTimeout)
	v.SetDefault("engine.init_hook", d.Engine.InitHook)
	v.SetDefault("engine.marker_var", d.Engine.MarkerVar)
	v.SetDefault("window.geometry", d.Window.Geometry)
	v.SetDefault("dispatch.slow_call_threshold", d.Dispatch.SlowCallThreshold)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
}

func userConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "neovis")
}

func runApp(cmd *cobra.Command, args []string) error {
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		args = args[dash:]
	}
	cfg.Engine.Args = append(cfg.Engine.Args, args...)

	debug, _ := cmd.Flags().GetBool("debug")
	cleanup, err := initLogging(cfg.Log, debug || os.Getenv(EnvDebug) != "")
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Tracing.Enabled && cfg.Tracing.Exporter == "file" && cfg.Tracing.FilePath == "" {
		cfg.Tracing.FilePath = config.DefaultTracesFilePath()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	geometry, err := config.InitialGeometry(cfg.Window.Geometry, terminalSize)
	if err != nil {
		return err
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}()

	store := settings.New(settings.Defaults()...)
	if err := store.Apply(cfg.Settings); err != nil {
		log.ErrorErr(log.CatConfig, "Invalid settings in config", err)
	}
	if noIdle, _ := cmd.Flags().GetBool("no-idle"); noIdle {
		_ = store.Set(settings.NoIdle, true)
	}

	ed := editor.New()
	engine := launcher.New(cfg.Engine.Bin).
		WithArgs(cfg.Engine.Args).
		WithStrategy(launcher.SelectStrategy("", cfg.Engine.WSL)).
		WithEnv(cfg.Engine.Env)

	id := uuid.NewString()
	b := bridge.New(engine, bridgeConfig(cfg, geometry),
		bridge.WithID(id),
		bridge.WithSettings(store),
		bridge.WithEventSink(ed),
		bridge.WithMiddleware(tracing.NewDispatchMiddleware(tracing.MiddlewareConfig{
			Tracer:   provider.Tracer(),
			BridgeID: id,
		})),
	)
	store.SetQueue(b.Queue)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	started := make(chan error, 1)
	go func() { started <- b.Start(ctx) }()

	if path := viper.ConfigFileUsed(); path != "" {
		follow(ctx, path, store)
	}

	p := tea.NewProgram(
		ui.New(ctx, b, ed, store),
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
	)
	_, runErr := p.Run()

	return shutdown(b, started, runErr)
}

// shutdown asks a still running engine to quit, then reports the first
// meaningful error: a fatal startup error, the UI's error, or the session's.
func shutdown(b *bridge.Bridge, started <-chan error, runErr error) error {
	if b.IsRunning() {
		b.Queue(command.Quit{})
		select {
		case <-b.Done():
		case <-time.After(shutdownTimeout):
			log.Warn(log.CatBridge, "Engine did not exit after quit")
		}
	}
	_ = b.Close()

	var startErr error
	select {
	case startErr = <-started:
	case <-time.After(shutdownTimeout):
	}

	var fatalErr *bridge.FatalError
	switch {
	case errors.As(startErr, &fatalErr):
		return fatalErr
	case runErr != nil:
		return fmt.Errorf("running program: %w", runErr)
	}
	return nil
}

func follow(ctx context.Context, path string, store *settings.Store) {
	w, err := watcher.New(watcher.DefaultConfig(path))
	if err != nil {
		log.ErrorErr(log.CatConfig, "Config watcher unavailable", err)
		return
	}
	changes, err := w.Start()
	if err != nil {
		_ = w.Stop()
		log.ErrorErr(log.CatConfig, "Config watcher unavailable", err)
		return
	}
	go func() {
		watcher.Follow(ctx, changes, path, store)
		_ = w.Stop()
	}()
}

func bridgeConfig(c config.Config, g config.Geometry) bridge.Config {
	return bridge.Config{
		MinVersion:        c.Engine.MinVersion,
		MarkerVar:         c.Engine.MarkerVar,
		InitHook:          c.Engine.InitHook,
		Width:             g.Width,
		Height:            g.Height,
		HandshakeTimeout:  c.Engine.HandshakeTimeout,
		SlowCallThreshold: c.Dispatch.SlowCallThreshold,
	}
}

// initLogging opens the debug log when requested or configured. Without
// one, logging stays uninstalled and every log call is a no-op.
func initLogging(c config.LogConfig, debug bool) (func(), error) {
	path := c.Path
	if path == "" && debug {
		path = defaultLogFile
	}
	if path == "" {
		return func() {}, nil
	}
	cleanup, err := log.InitWithTeaLog(path, "neovis")
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	log.SetMinLevel(log.ParseLevel(c.Level))
	log.Info(log.CatConfig, "Starting neovis", "version", version, "config", viper.ConfigFileUsed())
	return cleanup, nil
}

func terminalSize() (int, int, error) {
	return term.GetSize(int(os.Stdout.Fd())) //nolint:gosec // fd fits in int
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var fatalErr *bridge.FatalError
	if errors.As(err, &fatalErr) {
		return fatalErr.Code
	}
	return 1
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
