// Package rpc defines the RPC Session the bridge drives and its
// neovim/go-client implementation.
package rpc

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"

	"github.com/neovim/go-client/nvim"

	"github.com/zjrosen/neovis/internal/log"
)

// Session is the call-issuing side of the msgpack-RPC channel to the
// engine. Implementations must be safe for concurrent callers; the
// go-client endpoint serializes writes internally.
type Session interface {
	// Serve runs the read loop and returns when the channel ends.
	Serve() error
	// Close tears the channel down.
	Close() error

	Eval(expr string, result any) error
	Var(name string, result any) error
	SetVar(name string, value any) error
	Command(cmd string) error
	AttachUI(width, height int, options map[string]any) error
	TryResizeUI(width, height int) error
	Input(keys string) (int, error)
	InputMouse(button, action, modifier string, grid, row, col int) error

	// RegisterHandler routes an engine notification (or request) named
	// method to fn. fn's parameters receive the decoded arguments.
	RegisterHandler(method string, fn any) error
}

var _ Session = (*nvim.Nvim)(nil)

// NewSession opens a session reading engine output from r and writing
// requests to w. c is closed when the session closes.
func NewSession(r io.Reader, w io.Writer, c io.Closer) (Session, error) {
	v, err := nvim.New(r, w, c, log.Printf(log.CatRPC))
	if err != nil {
		return nil, err
	}
	return v, nil
}

// IsClosed reports whether err ends a session because its channel was
// already closed, i.e. an orderly shutdown started elsewhere.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	// go-client reports a closed endpoint with a plain error value.
	msg := err.Error()
	return strings.Contains(msg, "session closed") ||
		strings.Contains(msg, "file already closed") ||
		strings.Contains(msg, "broken pipe")
}
