package launcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/neovis/internal/log"
	"github.com/zjrosen/neovis/internal/rpc"
	"github.com/zjrosen/neovis/internal/rpc/rpctest"
)

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		goos string
		wsl  bool
		want Strategy
	}{
		{"linux", false, StrategyDirect},
		{"linux", true, StrategyDirect},
		{"windows", false, StrategyDirect},
		{"windows", true, StrategyWSL},
		{"darwin", false, StrategyFallback},
		{"darwin", true, StrategyFallback},
		{"freebsd", false, StrategyDirect},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			require.Equal(t, tt.want, SelectStrategy(tt.goos, tt.wsl))
		})
	}
}

func TestNew_ResolvesBinary(t *testing.T) {
	t.Run("explicit", func(t *testing.T) {
		t.Setenv(EnvBin, "/from/env")
		require.Equal(t, "/opt/nvim", New("/opt/nvim").Bin())
	})
	t.Run("environment", func(t *testing.T) {
		t.Setenv(EnvBin, "/from/env")
		require.Equal(t, "/from/env", New("").Bin())
	})
	t.Run("default", func(t *testing.T) {
		t.Setenv(EnvBin, "")
		require.Equal(t, DefaultBin, New("").Bin())
	})
}

func TestInvocation(t *testing.T) {
	missing := func(string) bool { return false }
	present := func(string) bool { return true }

	tests := []struct {
		name     string
		strategy Strategy
		exists   func(string) bool
		wantPath string
		wantArgs []string
	}{
		{"direct", StrategyDirect, missing, "nvim", []string{"--embed", "-u", "NONE"}},
		{"wsl wraps binary", StrategyWSL, missing, "wsl", []string{"nvim", "--embed", "-u", "NONE"}},
		{"fallback keeps found binary", StrategyFallback, present, "nvim", []string{"--embed", "-u", "NONE"}},
		{"fallback uses install path", StrategyFallback, missing, FallbackPath, []string{"--embed", "-u", "NONE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New("nvim").
				WithArgs([]string{"-u", "NONE"}).
				WithStrategy(tt.strategy).
				WithBinaryCheck(tt.exists)

			path, args := l.Invocation()
			require.Equal(t, tt.wantPath, path)
			require.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestCommand_UsesFactoryAndStderr(t *testing.T) {
	var gotName string
	var gotArgs []string
	factory := func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName, gotArgs = name, args
		return exec.CommandContext(ctx, "echo")
	}
	var stderr nopWriter

	cmd := New("nvim").
		WithStrategy(StrategyDirect).
		WithCommandFactory(factory).
		WithStderr(&stderr).
		WithEnv([]string{"NVIM_APPNAME=neovis"}).
		Command(context.Background())

	require.Equal(t, "nvim", gotName)
	require.Equal(t, []string{"--embed"}, gotArgs)
	require.Same(t, &stderr, cmd.Stderr)
	require.Contains(t, cmd.Env, "NVIM_APPNAME=neovis")
}

func TestConnect_StartFailure(t *testing.T) {
	factory := func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "/nonexistent/path/to/nvim")
	}

	_, err := New("/nonexistent/path/to/nvim").
		WithStrategy(StrategyDirect).
		WithCommandFactory(factory).
		Connect(context.Background())

	require.Error(t, err)
	var startErr *StartError
	require.True(t, errors.As(err, &startErr))
	require.Contains(t, err.Error(), "/nonexistent/path/to/nvim")
}

func TestConnect_UnknownStrategy(t *testing.T) {
	_, err := New("nvim").WithStrategy("teleport").Connect(context.Background())
	require.ErrorContains(t, err, "unknown strategy")
}

func TestConnect_SessionFactoryError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses cat")
	}
	factory := func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "cat")
	}
	boom := errors.New("handshake refused")

	_, err := New("nvim").
		WithStrategy(StrategyDirect).
		WithCommandFactory(factory).
		WithSessionFactory(func(io.Reader, io.Writer, io.Closer) (rpc.Session, error) {
			return nil, boom
		}).
		Connect(context.Background())

	require.ErrorIs(t, err, boom)
}

func TestConnect_ServeReapsChild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses cat")
	}
	factory := func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "cat")
	}
	fake := rpctest.New()
	var stdin io.Closer

	session, err := New("nvim").
		WithStrategy(StrategyDirect).
		WithCommandFactory(factory).
		WithSessionFactory(func(r io.Reader, w io.Writer, c io.Closer) (rpc.Session, error) {
			stdin = c
			return fake, nil
		}).
		Connect(context.Background())
	require.NoError(t, err)

	child, ok := session.(*childSession)
	require.True(t, ok)

	served := make(chan error, 1)
	go func() { served <- session.Serve() }()

	// Closing stdin ends cat; ending the fake ends Serve.
	require.NoError(t, stdin.Close())
	fake.End(io.EOF)

	select {
	case err := <-served:
		require.ErrorIs(t, err, io.EOF)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	require.NotNil(t, child.cmd.ProcessState)
	require.True(t, child.cmd.ProcessState.Exited())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestConnect_EngineStderrIsLogged(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	logs := &syncBuffer{}
	log.InitWriter(logs)

	factory := func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", "echo 'E5113: Error while calling lua chunk' >&2; printf 'no newline' >&2; cat")
	}
	fake := rpctest.New()
	var stdin io.Closer

	session, err := New("nvim").
		WithStrategy(StrategyDirect).
		WithCommandFactory(factory).
		WithSessionFactory(func(r io.Reader, w io.Writer, c io.Closer) (rpc.Session, error) {
			stdin = c
			return fake, nil
		}).
		Connect(context.Background())
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- session.Serve() }()

	require.NoError(t, stdin.Close())
	fake.End(io.EOF)

	select {
	case <-served:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	out := logs.String()
	require.Contains(t, out, "[WARN] [launch] Engine stderr line=E5113: Error while calling lua chunk")
	require.Contains(t, out, "Engine stderr line=no newline", "partial line is flushed when the child is reaped")
}

type nopWriter struct{ n int }

func (w *nopWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return len(p), nil
}
