// Package settings holds the front-end settings that are mirrored into the
// engine as g:neovis_<name> variables.
package settings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/zjrosen/neovis/internal/cachemanager"
	"github.com/zjrosen/neovis/internal/command"
	"github.com/zjrosen/neovis/internal/log"
	"github.com/zjrosen/neovis/internal/pubsub"
	"github.com/zjrosen/neovis/internal/rpc"
)

// Built-in setting names.
const (
	RefreshRate = "refresh_rate"
	NoIdle      = "no_idle"
	Fullscreen  = "fullscreen"
	StatusBar   = "status_bar"
)

// VarPrefix is prepended to a setting name to form its engine variable.
const VarPrefix = "neovis_"

// ChangedMethod is the notification the engine sends when a mirrored
// variable is assigned.
const ChangedMethod = "setting_changed"

// Kind is the value type of a setting.
type Kind int

const (
	KindInt Kind = iota
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Definition declares one setting.
type Definition struct {
	Name    string
	Kind    Kind
	Default any
}

// Origin says which side produced a change.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Change is published whenever a setting takes a new value.
type Change struct {
	Name   string
	Value  any
	Origin Origin
}

// ErrUnknownSetting is returned for names that were never defined.
var ErrUnknownSetting = errors.New("unknown setting")

// Defaults returns the built-in settings.
func Defaults() []Definition {
	return []Definition{
		{Name: RefreshRate, Kind: KindInt, Default: 60},
		{Name: NoIdle, Kind: KindBool, Default: false},
		{Name: Fullscreen, Kind: KindBool, Default: false},
		{Name: StatusBar, Kind: KindBool, Default: true},
	}
}

// Store keeps the current value of every defined setting.
type Store struct {
	mu     sync.RWMutex
	defs   map[string]Definition
	names  []string
	values cachemanager.CacheManager[string, any]
	broker *pubsub.Broker[Change]
	queue  func(command.Command)
}

// New creates a store holding each definition's default.
func New(defs ...Definition) *Store {
	s := &Store{
		defs:   make(map[string]Definition, len(defs)),
		values: cachemanager.NewPersistent[string, any]("settings"),
		broker: pubsub.NewBroker[Change](),
	}
	for _, d := range defs {
		s.defs[d.Name] = d
		s.names = append(s.names, d.Name)
		s.values.Set(d.Name, d.Default, cachemanager.NoExpiration)
	}
	sort.Strings(s.names)
	return s
}

// SetQueue routes local changes to the engine, normally bridge.Queue.
func (s *Store) SetQueue(queue func(command.Command)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = queue
}

// Broker returns the change broker.
func (s *Store) Broker() *pubsub.Broker[Change] { return s.broker }

// Subscribe returns changes until ctx is done.
func (s *Store) Subscribe(ctx context.Context) <-chan pubsub.Event[Change] {
	return s.broker.Subscribe(ctx)
}

// Names returns the defined setting names in sorted order.
func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

// Get returns the current value of name.
func (s *Store) Get(name string) (any, bool) {
	return s.values.Get(name)
}

// Int returns an int setting, or 0.
func (s *Store) Int(name string) int {
	v, _ := s.Get(name)
	n, _ := v.(int)
	return n
}

// Bool returns a bool setting, or false.
func (s *Store) Bool(name string) bool {
	v, _ := s.Get(name)
	b, _ := v.(bool)
	return b
}

// Snapshot returns every current value.
func (s *Store) Snapshot() map[string]any {
	return s.values.Items()
}

// Set assigns a setting locally and pushes it to the engine.
func (s *Store) Set(name string, value any) error {
	return s.update(name, value, OriginLocal)
}

// Apply assigns several local values, e.g. the settings section of the
// config file. Unknown names are skipped with a warning.
func (s *Store) Apply(values map[string]any) error {
	var errs []error
	for _, name := range sortedKeys(values) {
		err := s.Set(name, values[name])
		if errors.Is(err, ErrUnknownSetting) {
			log.Warn(log.CatSettings, "Ignoring unknown setting", "name", name)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// update stores a coerced value and fans it out. A value equal to the
// current one is not republished, which stops a local change from
// echoing back as a remote one.
func (s *Store) update(name string, raw any, origin Origin) error {
	def, ok := s.defs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSetting, name)
	}
	value, err := coerce(def.Kind, raw)
	if err != nil {
		return fmt.Errorf("setting %s: %w", name, err)
	}

	s.mu.Lock()
	if current, ok := s.values.Get(name); ok && current == value {
		s.mu.Unlock()
		return nil
	}
	s.values.Set(name, value, cachemanager.NoExpiration)
	queue := s.queue
	s.mu.Unlock()

	log.Debug(log.CatSettings, "Setting changed", "name", name, "value", value, "origin", string(origin))
	s.broker.Publish(pubsub.ChangedEvent, Change{Name: name, Value: value, Origin: origin})

	if origin == OriginLocal && queue != nil {
		queue(command.SetVariable{Name: VarPrefix + name, Value: value})
	}
	return nil
}

// ReadInitialValues adopts each g:neovis_<name> the engine already has
// and pushes the local value for the rest.
func (s *Store) ReadInitialValues(session rpc.Session) error {
	var errs []error
	for _, name := range s.names {
		var remote any
		if err := session.Var(VarPrefix+name, &remote); err == nil && remote != nil {
			if err := s.update(name, remote, OriginRemote); err != nil {
				log.Warn(log.CatSettings, "Ignoring remote setting", "name", name, "error", err)
			}
			continue
		}

		local, _ := s.Get(name)
		if err := session.SetVar(VarPrefix+name, local); err != nil {
			errs = append(errs, fmt.Errorf("push %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// SetupChangedListeners registers the change notification handler and a
// dictionary watcher per setting that reports assignments back.
func (s *Store) SetupChangedListeners(session rpc.Session) error {
	err := session.RegisterHandler(ChangedMethod, func(name string, value any) {
		if value == nil {
			return
		}
		if err := s.update(name, value, OriginRemote); err != nil {
			log.Warn(log.CatSettings, "Ignoring setting change", "name", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register %s handler: %w", ChangedMethod, err)
	}

	var errs []error
	for _, name := range s.names {
		if err := session.Command(WatcherCommand(name)); err != nil {
			errs = append(errs, fmt.Errorf("watch %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// WatcherCommand returns the Ex command that notifies ChangedMethod when
// g:neovis_<name> is assigned.
func WatcherCommand(name string) string {
	return fmt.Sprintf(
		"call dictwatcheradd(g:, %s, {d, k, z -> rpcnotify(0, %s, %s, get(z, 'new', v:null))})",
		command.VimString(VarPrefix+name),
		command.VimString(ChangedMethod),
		command.VimString(name),
	)
}

// coerce converts msgpack and YAML decoded values to the setting's kind.
func coerce(kind Kind, v any) (any, error) {
	switch kind {
	case KindInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case int8:
			return int(n), nil
		case int16:
			return int(n), nil
		case int32:
			return int(n), nil
		case int64:
			return int(n), nil
		case uint8:
			return int(n), nil
		case uint16:
			return int(n), nil
		case uint32:
			return int(n), nil
		case uint64:
			if n > math.MaxInt32 {
				return nil, fmt.Errorf("value %d out of range", n)
			}
			return int(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected integer, got %v", n)
			}
			return int(n), nil
		}
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(b) {
			case "true", "on", "yes", "1":
				return true, nil
			case "false", "off", "no", "0", "":
				return false, nil
			}
		default:
			// Vim scripts commonly use 0 and 1 for booleans.
			if n, err := coerce(KindInt, v); err == nil {
				return n.(int) != 0, nil
			}
		}
	case KindString:
		if str, ok := v.(string); ok {
			return str, nil
		}
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", kind, v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
