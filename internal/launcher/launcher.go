// Package launcher builds and starts the embedded engine process and opens
// the RPC session over its standard streams.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/zjrosen/neovis/internal/log"
	"github.com/zjrosen/neovis/internal/rpc"
)

// DefaultBin is used when neither configuration nor NEOVIM_BIN names
// the engine binary.
const DefaultBin = "nvim"

// EnvBin overrides the engine binary.
const EnvBin = "NEOVIM_BIN"

// embedFlag makes the engine speak msgpack-rpc on stdio.
const embedFlag = "--embed"

// CommandFactoryFunc creates an exec.Cmd. Tests replace it to avoid
// spawning a real engine.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// SessionFactoryFunc opens an rpc.Session over the child's pipes.
type SessionFactoryFunc func(r io.Reader, w io.Writer, c io.Closer) (rpc.Session, error)

// StartError reports that the engine process could not be started.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("could not locate or start the neovim process %q: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// Launcher starts the engine with a fluent configuration.
type Launcher struct {
	bin            string
	args           []string
	strategy       Strategy
	stderr         io.Writer
	env            []string
	exists         func(string) bool
	commandFactory CommandFactoryFunc
	sessionFactory SessionFactoryFunc
}

// New creates a Launcher for bin. An empty bin resolves to
// $NEOVIM_BIN, then DefaultBin.
func New(bin string) *Launcher {
	if bin == "" {
		bin = os.Getenv(EnvBin)
	}
	if bin == "" {
		bin = DefaultBin
	}
	return &Launcher{
		bin:            bin,
		strategy:       SelectStrategy("", false),
		stderr:         log.NewLineWriter(log.LevelWarn, log.CatLaunch, "Engine stderr"),
		exists:         binaryExists,
		sessionFactory: rpc.NewSession,
	}
}

// WithArgs sets the passthrough arguments placed after --embed.
func (l *Launcher) WithArgs(args []string) *Launcher {
	l.args = args
	return l
}

// WithStrategy overrides the platform strategy.
func (l *Launcher) WithStrategy(s Strategy) *Launcher {
	l.strategy = s
	return l
}

// WithStderr sets where the engine's stderr goes. By default each line is
// logged as a warning under the launch category.
func (l *Launcher) WithStderr(w io.Writer) *Launcher {
	l.stderr = w
	return l
}

// WithEnv appends KEY=VALUE pairs to the child's environment.
func (l *Launcher) WithEnv(env []string) *Launcher {
	l.env = env
	return l
}

// WithCommandFactory swaps exec.CommandContext for tests.
func (l *Launcher) WithCommandFactory(fn CommandFactoryFunc) *Launcher {
	l.commandFactory = fn
	return l
}

// WithSessionFactory swaps the go-client session for tests.
func (l *Launcher) WithSessionFactory(fn SessionFactoryFunc) *Launcher {
	l.sessionFactory = fn
	return l
}

// WithBinaryCheck replaces the lookup used by StrategyFallback.
func (l *Launcher) WithBinaryCheck(fn func(string) bool) *Launcher {
	l.exists = fn
	return l
}

// Bin returns the configured engine binary.
func (l *Launcher) Bin() string { return l.bin }

// Strategy returns the selected launch strategy.
func (l *Launcher) Strategy() Strategy { return l.strategy }

// Invocation returns the executable and full argument list that Connect
// would run.
func (l *Launcher) Invocation() (string, []string) {
	path, lead := l.strategy.resolve(l.bin, l.exists)
	args := make([]string, 0, len(lead)+1+len(l.args))
	args = append(args, lead...)
	args = append(args, embedFlag)
	args = append(args, l.args...)
	return path, args
}

// Command builds the exec.Cmd without starting it.
func (l *Launcher) Command(ctx context.Context) *exec.Cmd {
	path, args := l.Invocation()

	var cmd *exec.Cmd
	if l.commandFactory != nil {
		cmd = l.commandFactory(ctx, path, args...)
	} else {
		// #nosec G204 -- path and args come from the user's own config and flags
		cmd = exec.CommandContext(ctx, path, args...)
	}
	cmd.Stderr = l.stderr
	cmd.SysProcAttr = sysProcAttr()
	if len(l.env) > 0 {
		cmd.Env = append(os.Environ(), l.env...)
	}
	return cmd
}

// Connect starts the engine and opens a session over its stdio. The
// returned session reaps the child once Serve returns.
func (l *Launcher) Connect(ctx context.Context) (rpc.Session, error) {
	if l.bin == "" {
		return nil, errors.New("launcher: engine binary is required")
	}
	if !l.strategy.Valid() {
		return nil, fmt.Errorf("launcher: unknown strategy %q", l.strategy)
	}

	cmd := l.Command(ctx)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("launcher: failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("launcher: failed to create stdout pipe: %w", err)
	}

	log.Debug(log.CatLaunch, "Starting engine",
		"path", cmd.Path, "args", cmd.Args[1:], "strategy", string(l.strategy))

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, &StartError{Path: cmd.Path, Err: err}
	}

	session, err := l.sessionFactory(stdout, stdin, stdin)
	if err != nil {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("launcher: failed to open session: %w", err)
	}

	log.Info(log.CatLaunch, "Engine started", "pid", cmd.Process.Pid)
	return &childSession{Session: session, cmd: cmd}, nil
}

// childSession ties the session's lifetime to the child process.
type childSession struct {
	rpc.Session
	cmd      *exec.Cmd
	waitOnce sync.Once
	waitErr  error
}

// Serve runs the session and reaps the child when the channel ends.
func (s *childSession) Serve() error {
	err := s.Session.Serve()
	s.reap()
	return err
}

func (s *childSession) reap() {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		if f, ok := s.cmd.Stderr.(interface{ Flush() }); ok {
			f.Flush()
		}
		if s.waitErr != nil {
			log.Debug(log.CatLaunch, "Engine exited", "error", s.waitErr)
			return
		}
		log.Debug(log.CatLaunch, "Engine exited", "code", s.cmd.ProcessState.ExitCode())
	})
}
