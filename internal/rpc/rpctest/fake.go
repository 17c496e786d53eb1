// Package rpctest provides an in-memory rpc.Session for tests.
package rpctest

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/zjrosen/neovis/internal/rpc"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("rpctest: session closed")

// Call records one method invocation on the fake.
type Call struct {
	Method string
	Args   []any
}

// Session is a recording rpc.Session. Serve blocks until End or Close.
// Results and failures are configured through the exported hooks before
// the session is handed to the code under test.
type Session struct {
	mu       sync.Mutex
	calls    []Call
	vars     map[string]any
	handlers map[string]any
	errs     map[string]error
	evals    map[string]any
	block    map[string]chan struct{}

	done    chan struct{}
	endOnce sync.Once
	endErr  error
}

var _ rpc.Session = (*Session)(nil)

// New returns an empty fake session.
func New() *Session {
	return &Session{
		vars:     make(map[string]any),
		handlers: make(map[string]any),
		errs:     make(map[string]error),
		evals:    make(map[string]any),
		block:    make(map[string]chan struct{}),
		done:     make(chan struct{}),
	}
}

// FailOn makes every call to method return err.
func (s *Session) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[method] = err
}

// SetEval fixes the result of Eval(expr).
func (s *Session) SetEval(expr string, result any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evals[expr] = result
}

// SetRemoteVar seeds a global variable visible to Var.
func (s *Session) SetRemoteVar(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

// RemoteVar returns a global variable as last set through SetVar.
func (s *Session) RemoteVar(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	return v, ok
}

// Block makes calls to method wait until the returned release func runs.
func (s *Session) Block(method string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.block[method] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// End makes Serve return err, as if the engine's I/O loop finished.
func (s *Session) End(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.endErr = err
		s.mu.Unlock()
		close(s.done)
	})
}

// Calls returns a copy of the recorded calls.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsTo returns the recorded calls to method.
func (s *Session) CallsTo(method string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Handler returns the function registered for method.
func (s *Session) Handler(method string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[method]
}

// Notify invokes the handler registered for method with args, the way the
// transport would deliver a notification.
func (s *Session) Notify(method string, args ...any) error {
	fn := s.Handler(method)
	if fn == nil {
		return fmt.Errorf("rpctest: no handler for %q", method)
	}
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= ft.NumIn()-1 {
			pt = ft.In(ft.NumIn() - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		if a == nil {
			in[i] = reflect.Zero(pt)
		} else {
			in[i] = reflect.ValueOf(a).Convert(pt)
		}
	}
	fv.Call(in)
	return nil
}

func (s *Session) record(method string, args ...any) error {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Args: args})
	err := s.errs[method]
	ch := s.block[method]
	s.mu.Unlock()
	if ch != nil {
		<-ch
	}
	return err
}

func (s *Session) Serve() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endErr
}

func (s *Session) Close() error {
	s.End(ErrClosed)
	return nil
}

func (s *Session) Eval(expr string, result any) error {
	if err := s.record("Eval", expr); err != nil {
		return err
	}
	s.mu.Lock()
	v, ok := s.evals[expr]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("rpctest: no result for %q", expr)
	}
	return assign(result, v)
}

func (s *Session) Var(name string, result any) error {
	if err := s.record("Var", name); err != nil {
		return err
	}
	s.mu.Lock()
	v, ok := s.vars[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("key not found: %s", name)
	}
	return assign(result, v)
}

func (s *Session) SetVar(name string, value any) error {
	if err := s.record("SetVar", name, value); err != nil {
		return err
	}
	s.mu.Lock()
	s.vars[name] = value
	s.mu.Unlock()
	return nil
}

func (s *Session) Command(cmd string) error {
	return s.record("Command", cmd)
}

func (s *Session) AttachUI(width, height int, options map[string]any) error {
	return s.record("AttachUI", width, height, options)
}

func (s *Session) TryResizeUI(width, height int) error {
	return s.record("TryResizeUI", width, height)
}

func (s *Session) Input(keys string) (int, error) {
	if err := s.record("Input", keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *Session) InputMouse(button, action, modifier string, grid, row, col int) error {
	return s.record("InputMouse", button, action, modifier, grid, row, col)
}

func (s *Session) RegisterHandler(method string, fn any) error {
	if err := s.record("RegisterHandler", method); err != nil {
		return err
	}
	s.mu.Lock()
	s.handlers[method] = fn
	s.mu.Unlock()
	return nil
}

// assign stores v into the pointer result.
func assign(result any, v any) error {
	rv := reflect.ValueOf(result)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("rpctest: result must be a non-nil pointer, got %T", result)
	}
	elem := rv.Elem()
	if v == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	val := reflect.ValueOf(v)
	if !val.Type().AssignableTo(elem.Type()) {
		if !val.Type().ConvertibleTo(elem.Type()) {
			return fmt.Errorf("rpctest: cannot assign %T to %s", v, elem.Type())
		}
		val = val.Convert(elem.Type())
	}
	elem.Set(val)
	return nil
}
