package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/neovis/internal/log"
	"github.com/zjrosen/neovis/internal/rpc"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("bridge already started")

// tracerName matches the instrumentation name set up by internal/tracing.
const tracerName = "github.com/zjrosen/neovis"

var (
	errHandshakeTimeout = errors.New("handshake call timed out")
	errEngineExited     = errors.New("engine exited during handshake")
)

// Start launches the engine, performs the handshake and begins draining
// commands. Fatal startup conditions are returned as *FatalError; the
// bridge is stopped and its session closed before Start returns them.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if !b.running.Load() {
		return fatal(ExitFailure, "Bridge closed before start", nil)
	}

	b.setState(StateStarting)
	s, err := b.connector.Connect(ctx)
	if err != nil {
		b.stop()
		b.terminate(err)
		log.ErrorErr(log.CatBridge, "Could not locate or start the neovim process", err)
		return fatal(ExitFailure, "Could not locate or start the neovim process", err)
	}

	b.mu.Lock()
	b.session = s
	b.mu.Unlock()

	// The transport needs its read loop running before any call can return.
	b.wg.Add(1)
	go b.watch(s)

	if !b.running.Load() {
		_ = s.Close()
		return fatal(ExitFailure, "Bridge closed during start", nil)
	}

	for _, sink := range b.sinks {
		if err := sink.Register(s); err != nil {
			return b.abort(s, fatal(ExitFailure, "Could not register engine event handlers", err))
		}
	}

	b.setState(StateAttaching)
	hctx, span := otel.Tracer(tracerName).Start(ctx, "bridge.handshake",
		trace.WithAttributes(attribute.String("bridge.id", b.id)))
	if err := b.handshake(hctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Msg)
		span.End()
		return b.abort(s, err)
	}
	span.SetStatus(codes.Ok, "")
	span.End()
	b.setState(StateAttached)
	log.Info(log.CatBridge, "Neovim process attached",
		"bridge_id", b.id, "width", b.cfg.Width, "height", b.cfg.Height)

	b.wg.Add(1)
	go b.drain(s)

	if b.settings != nil {
		if err := b.settings.ReadInitialValues(s); err != nil {
			log.Warn(log.CatBridge, "Reading initial settings failed", "error", err)
		}
		if err := b.settings.SetupChangedListeners(s); err != nil {
			log.Warn(log.CatBridge, "Setting up settings listeners failed", "error", err)
		}
	}

	if err := s.Command("set nolazyredraw"); err != nil {
		log.Debug(log.CatBridge, "Could not clear lazyredraw", "error", err)
	}

	if b.running.Load() {
		b.setState(StateRunning)
	}
	return nil
}

// abort stops the bridge after a fatal handshake error.
func (b *Bridge) abort(s rpc.Session, err *FatalError) error {
	if err.Code == ExitVersion {
		log.Error(log.CatBridge, err.Msg)
	} else {
		log.ErrorErr(log.CatBridge, err.Msg, err.Err)
	}
	b.stop()
	_ = s.Close()
	return err
}

// handshake runs the attach sequence: version check, marker variable,
// init hook, ui_attach.
func (b *Bridge) handshake(ctx context.Context, s rpc.Session) *FatalError {
	versionMsg := fmt.Sprintf("neovis requires higher version of neovim (%s or newer)", b.cfg.MinVersion)

	span := trace.SpanFromContext(ctx)

	var has int
	span.AddEvent("version_check")
	err := b.call(ctx, func() error {
		return s.Eval(fmt.Sprintf(`has("nvim-%s")`, b.cfg.MinVersion), &has)
	})
	if interrupted(ctx, err) {
		return fatal(ExitFailure, "Could not communicate with neovim process", err)
	}
	// A channel torn down mid-check says nothing about the engine's version.
	if rpc.IsClosed(err) || !b.running.Load() {
		return fatal(ExitFailure, "Bridge closed during start", err)
	}
	if err != nil || has != 1 {
		return fatal(ExitVersion, versionMsg, err)
	}

	if b.cfg.MarkerVar != "" {
		span.AddEvent("marker")
		err = b.call(ctx, func() error { return s.SetVar(b.cfg.MarkerVar, true) })
		if err != nil {
			return fatal(ExitFailure, "Could not communicate with neovim process", err)
		}
	}

	if b.cfg.InitHook != "" {
		span.AddEvent("init_hook")
		err = b.call(ctx, func() error { return s.Command(b.cfg.InitHook) })
		if err != nil {
			log.Warn(log.CatBridge, "Init hook failed", "hook", b.cfg.InitHook, "error", err)
			_ = s.Command(hookErrorMessage(err))
		}
	}

	options := map[string]any{
		"ext_linegrid": true,
		"rgb":          true,
	}
	span.AddEvent("ui_attach")
	err = b.call(ctx, func() error { return s.AttachUI(b.cfg.Width, b.cfg.Height, options) })
	if err != nil {
		return fatal(ExitFailure, "Could not attach ui to neovim process", err)
	}
	return nil
}

// call runs one handshake request, bounded by HandshakeTimeout and ctx.
// A timed out request keeps running; the caller closes the session, which
// unblocks it.
func (b *Bridge) call(ctx context.Context, fn func() error) error {
	if b.cfg.HandshakeTimeout <= 0 && ctx.Done() == nil {
		return fn()
	}

	result := make(chan error, 1)
	go func() { result <- fn() }()

	var timeout <-chan time.Time
	if b.cfg.HandshakeTimeout > 0 {
		timer := time.NewTimer(b.cfg.HandshakeTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-result:
		return err
	case <-timeout:
		return fmt.Errorf("%w after %v", errHandshakeTimeout, b.cfg.HandshakeTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return fmt.Errorf("%w: %v", errEngineExited, b.serveErr)
	}
}

// interrupted reports whether err came from call giving up rather than
// from the engine answering.
func interrupted(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, errHandshakeTimeout) ||
		errors.Is(err, errEngineExited) ||
		(ctx.Err() != nil && errors.Is(err, ctx.Err()))
}

// hookErrorMessage surfaces a hook failure inside the engine.
func hookErrorMessage(err error) string {
	msg := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", " ").Replace(err.Error())
	return fmt.Sprintf(`echomsg "error encountered in ginit.vim %s"`, msg)
}
