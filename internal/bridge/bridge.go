// Package bridge drives the embedded engine: it supervises the RPC session,
// accepts commands from the input layer, coalesces each drained batch and
// dispatches the survivors concurrently.
package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/neovis/internal/command"
	"github.com/zjrosen/neovis/internal/log"
	"github.com/zjrosen/neovis/internal/queue"
	"github.com/zjrosen/neovis/internal/rpc"
)

// Connector opens the session to a freshly started engine.
type Connector interface {
	Connect(ctx context.Context) (rpc.Session, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (rpc.Session, error)

func (f ConnectorFunc) Connect(ctx context.Context) (rpc.Session, error) { return f(ctx) }

// SettingsSync mirrors front-end settings with the engine after attach.
type SettingsSync interface {
	ReadInitialValues(s rpc.Session) error
	SetupChangedListeners(s rpc.Session) error
}

// EventSink receives engine notifications. Register is called before the
// UI attaches so no redraw batch is missed.
type EventSink interface {
	Register(s rpc.Session) error
}

// State is the lifecycle stage of a Bridge.
type State int32

const (
	StateStarting State = iota
	StateAttaching
	StateAttached
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Config holds the handshake parameters.
type Config struct {
	// MinVersion is checked with has("nvim-<MinVersion>").
	MinVersion string
	// MarkerVar is set to true before the init hook runs.
	MarkerVar string
	// InitHook is an Ex command run once; its failure is echoed, not fatal.
	InitHook string
	// Width and Height are the initial grid size passed to ui_attach.
	Width  int
	Height int
	// HandshakeTimeout bounds each startup call. Zero waits forever.
	HandshakeTimeout time.Duration
	// SlowCallThreshold controls the slow dispatch warning.
	SlowCallThreshold time.Duration
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithID overrides the generated bridge id, so a caller can correlate
// middleware built before New with the bridge's own log records.
func WithID(id string) Option {
	return func(b *Bridge) {
		if id != "" {
			b.id = id
		}
	}
}

// WithSettings sets the settings collaborator.
func WithSettings(s SettingsSync) Option {
	return func(b *Bridge) { b.settings = s }
}

// WithEventSink adds a notification collaborator.
func WithEventSink(sink EventSink) Option {
	return func(b *Bridge) { b.sinks = append(b.sinks, sink) }
}

// WithMiddleware wraps dispatch with extra middleware, outermost first.
// The bridge's own logging and slow-call middleware run inside these.
func WithMiddleware(mw ...Middleware) Option {
	return func(b *Bridge) { b.middleware = append(b.middleware, mw...) }
}

// Bridge owns the Running Flag, the command channel and the session.
type Bridge struct {
	id        string
	cfg       Config
	connector Connector
	settings  SettingsSync
	sinks     []EventSink

	middleware []Middleware
	handler    Handler

	running atomic.Bool
	state   atomic.Int32
	queue   *queue.Channel[command.Command]

	mu      sync.Mutex
	session rpc.Session

	started   atomic.Bool
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	termOnce  sync.Once
	serveErr  error
}

// New creates a Bridge. The Running Flag starts true, so commands queued
// before Start are held until the drain loop begins.
func New(connector Connector, cfg Config, opts ...Option) *Bridge {
	b := &Bridge{
		id:        uuid.NewString(),
		cfg:       cfg,
		connector: connector,
		queue:     queue.New[command.Command](),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	chain := append([]Middleware{}, b.middleware...)
	chain = append(chain, NewLoggingMiddleware(), NewSlowCallMiddleware(cfg.SlowCallThreshold))
	b.handler = ChainMiddleware(HandlerFunc(b.execute), chain...)

	b.running.Store(true)
	b.state.Store(int32(StateStarting))
	return b
}

// ID identifies this bridge instance in logs and traces.
func (b *Bridge) ID() string { return b.id }

// Queue hands cmd to the drain loop. It is a silent no-op once the bridge
// has stopped running.
func (b *Bridge) Queue(cmd command.Command) {
	if cmd == nil || !b.running.Load() {
		return
	}
	log.Trace(log.CatBridge, "Command queued", "command", cmd)
	b.queue.Push(cmd)
}

// IsRunning reports the Running Flag.
func (b *Bridge) IsRunning() bool { return b.running.Load() }

// QueueLength returns the number of commands waiting to be drained.
func (b *Bridge) QueueLength() int { return b.queue.Len() }

// State returns the current lifecycle stage.
func (b *Bridge) State() State { return State(b.state.Load()) }

// Done is closed once the session's I/O loop has ended.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// Err returns the error that ended the session, if any, after Done.
func (b *Bridge) Err() error {
	select {
	case <-b.done:
		return b.serveErr
	default:
		return nil
	}
}

// Wait blocks until the close watcher and the drain loop have exited.
// In-flight dispatches are not awaited.
func (b *Bridge) Wait() { b.wg.Wait() }

// Close stops the bridge and tears the session down. Safe to call more
// than once and before Start.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.stop()
		if s := b.currentSession(); s != nil {
			err = s.Close()
		} else {
			b.terminate(nil)
		}
	})
	return err
}

func (b *Bridge) currentSession() rpc.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// stop flips the Running Flag and wakes the drain loop.
func (b *Bridge) stop() {
	if b.running.Swap(false) {
		log.Debug(log.CatBridge, "Bridge stopped", "bridge_id", b.id, "pending", b.queue.Len())
	}
	b.queue.Close()
}

// terminate marks the bridge finished.
func (b *Bridge) terminate(err error) {
	b.termOnce.Do(func() {
		b.serveErr = err
		b.state.Store(int32(StateTerminated))
		close(b.done)
	})
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
	log.Debug(log.CatBridge, "Bridge state changed", "bridge_id", b.id, "state", s.String())
}

// watch runs the session's read loop and stops the bridge when it ends.
func (b *Bridge) watch(s rpc.Session) {
	defer b.wg.Done()
	log.Info(log.CatBridge, "Close watcher started", "bridge_id", b.id)

	err := s.Serve()
	switch {
	case err == nil:
		log.Info(log.CatBridge, "Engine session ended", "bridge_id", b.id)
	case rpc.IsClosed(err):
		log.Debug(log.CatBridge, "Engine channel closed", "bridge_id", b.id, "error", err)
	default:
		log.ErrorErr(log.CatBridge, "Engine session failed", err, "bridge_id", b.id)
	}

	b.stop()
	b.terminate(err)
}

// drain is the single consumer of the command channel.
func (b *Bridge) drain(s rpc.Session) {
	defer b.wg.Done()
	log.Info(log.CatBridge, "Command processor started", "bridge_id", b.id)

	ctx := context.Background()
	for {
		batch, ok := b.queue.Next(ctx)
		if !ok || !b.running.Load() {
			b.discard(len(batch))
			return
		}
		for _, cmd := range Coalesce(batch) {
			b.dispatch(s, cmd)
		}
	}
}

// discard empties the channel once the drain loop has stopped. dropped
// counts commands already taken but never dispatched.
func (b *Bridge) discard(dropped int) {
	for {
		batch, ok := b.queue.TryNext()
		if !ok {
			break
		}
		dropped += len(batch)
	}
	log.Debug(log.CatBridge, "Command processor stopped",
		"bridge_id", b.id, "queue_closed", b.queue.Closed(), "dropped", dropped)
}

// dispatch runs cmd on its own goroutine. Nothing waits for the result.
func (b *Bridge) dispatch(s rpc.Session, cmd command.Command) {
	go func() {
		if !b.running.Load() {
			return
		}

		ctx := withSession(WithCommandID(context.Background(), uuid.NewString()), s)
		if err := b.handler.Handle(ctx, cmd); err != nil {
			if rpc.IsClosed(err) || !b.running.Load() {
				log.Debug(log.CatBridge, "Command dropped on closed session",
					"command_type", cmd.Type().String(), "error", err)
				return
			}
			log.Warn(log.CatBridge, "Command failed",
				"command_id", CommandID(ctx),
				"command_type", cmd.Type().String(),
				"error", err,
			)
		}
	}()
}

type sessionKey struct{}

func withSession(ctx context.Context, s rpc.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// execute is the innermost handler.
func (b *Bridge) execute(ctx context.Context, cmd command.Command) error {
	s, _ := ctx.Value(sessionKey{}).(rpc.Session)
	if s == nil {
		s = b.currentSession()
	}
	return cmd.Execute(s)
}
