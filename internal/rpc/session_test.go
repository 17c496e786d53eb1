package rpc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsClosed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("read loop: %w", io.EOF), true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"closed file", os.ErrClosed, true},
		{"session closed message", errors.New("msgpack/rpc: session closed"), true},
		{"broken pipe message", errors.New("write |1: broken pipe"), true},
		{"decode failure", errors.New("msgpack: invalid code 0xc1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsClosed(tt.err))
		})
	}
}

func TestNewSession_OverPipes(t *testing.T) {
	stdoutR, stdoutW := io.Pipe()
	stdinR, stdinW := io.Pipe()
	defer stdinR.Close()

	s, err := NewSession(stdoutR, stdinW, stdinW)
	require.NoError(t, err)
	require.NotNil(t, s)

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	// The engine closing its stdout ends the read loop.
	require.NoError(t, stdoutW.Close())
	err = <-done
	require.True(t, err == nil || IsClosed(err), "unexpected serve error: %v", err)

	_ = s.Close()
}
