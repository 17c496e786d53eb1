package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/neovis/internal/command"
	"github.com/zjrosen/neovis/internal/pubsub"
	"github.com/zjrosen/neovis/internal/rpc/rpctest"
)

type queued struct {
	mu   sync.Mutex
	cmds []command.Command
}

func (q *queued) push(c command.Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cmds = append(q.cmds, c)
}

func (q *queued) all() []command.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]command.Command(nil), q.cmds...)
}

func nextChange(t *testing.T, ch <-chan pubsub.Event[Change]) Change {
	t.Helper()
	select {
	case ev := <-ch:
		require.Equal(t, pubsub.ChangedEvent, ev.Type)
		return ev.Payload
	case <-time.After(time.Second):
		t.Fatal("no change published")
		return Change{}
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Defaults()...)

	require.Equal(t, 60, s.Int(RefreshRate))
	require.False(t, s.Bool(NoIdle))
	require.False(t, s.Bool(Fullscreen))
	require.True(t, s.Bool(StatusBar))
	require.Equal(t, []string{Fullscreen, NoIdle, RefreshRate, StatusBar}, s.Names())
	require.Len(t, s.Snapshot(), 4)
}

func TestSet_PublishesAndQueues(t *testing.T) {
	s := New(Defaults()...)
	q := &queued{}
	s.SetQueue(q.push)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	require.NoError(t, s.Set(Fullscreen, true))

	require.Equal(t, Change{Name: Fullscreen, Value: true, Origin: OriginLocal}, nextChange(t, ch))
	require.Equal(t, []command.Command{command.SetVariable{Name: "neovis_fullscreen", Value: true}}, q.all())
	require.True(t, s.Bool(Fullscreen))
}

func TestSet_SameValueIsNoop(t *testing.T) {
	s := New(Defaults()...)
	q := &queued{}
	s.SetQueue(q.push)

	require.NoError(t, s.Set(RefreshRate, 60))
	require.Empty(t, q.all())
}

func TestSet_Errors(t *testing.T) {
	s := New(Defaults()...)

	require.ErrorIs(t, s.Set("font", "Fira Code"), ErrUnknownSetting)
	require.ErrorContains(t, s.Set(RefreshRate, "fast"), "expected int")
	require.ErrorContains(t, s.Set(RefreshRate, 59.5), "expected integer")
	require.Equal(t, 60, s.Int(RefreshRate))
}

func TestApply_SkipsUnknownAndCoerces(t *testing.T) {
	s := New(Defaults()...)

	err := s.Apply(map[string]any{
		RefreshRate: 144,
		NoIdle:      "yes",
		"cursor_vfx": "railgun",
	})
	require.NoError(t, err)
	require.Equal(t, 144, s.Int(RefreshRate))
	require.True(t, s.Bool(NoIdle))

	require.Error(t, s.Apply(map[string]any{StatusBar: []int{1}}))
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		in   any
		want any
		ok   bool
	}{
		{"int64 from msgpack", KindInt, int64(120), 120, true},
		{"uint64 from msgpack", KindInt, uint64(30), 30, true},
		{"uint64 overflow", KindInt, uint64(1 << 40), nil, false},
		{"whole float", KindInt, float64(75), 75, true},
		{"int8", KindInt, int8(-3), -3, true},
		{"bool", KindBool, true, true, true},
		{"vim number true", KindBool, int64(1), true, true},
		{"vim number false", KindBool, int64(0), false, true},
		{"string off", KindBool, "off", false, true},
		{"string junk", KindBool, "maybe", nil, false},
		{"string", KindString, "hello", "hello", true},
		{"bytes", KindString, []byte("hi"), "hi", true},
		{"string from int", KindString, 3, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(tt.kind, tt.in)
			if !tt.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestReadInitialValues(t *testing.T) {
	s := New(Defaults()...)
	fake := rpctest.New()
	fake.SetRemoteVar("neovis_refresh_rate", int64(120))
	fake.SetRemoteVar("neovis_no_idle", int64(1))

	require.NoError(t, s.ReadInitialValues(fake))

	require.Equal(t, 120, s.Int(RefreshRate))
	require.True(t, s.Bool(NoIdle))

	// Settings the engine did not have are pushed with the local value.
	v, ok := fake.RemoteVar("neovis_status_bar")
	require.True(t, ok)
	require.Equal(t, true, v)
	v, ok = fake.RemoteVar("neovis_fullscreen")
	require.True(t, ok)
	require.Equal(t, false, v)

	require.Len(t, fake.CallsTo("SetVar"), 2)
}

func TestReadInitialValues_ReportsPushErrors(t *testing.T) {
	s := New(Defaults()...)
	fake := rpctest.New()
	fake.FailOn("SetVar", errors.New("closed"))

	err := s.ReadInitialValues(fake)
	require.ErrorContains(t, err, "push fullscreen")
	require.ErrorContains(t, err, "push status_bar")
}

func TestReadInitialValues_BadRemoteValueKeepsLocal(t *testing.T) {
	s := New(Defaults()...)
	fake := rpctest.New()
	fake.SetRemoteVar("neovis_refresh_rate", "sixty")

	require.NoError(t, s.ReadInitialValues(fake))
	require.Equal(t, 60, s.Int(RefreshRate))
}

func TestSetupChangedListeners(t *testing.T) {
	s := New(Defaults()...)
	q := &queued{}
	s.SetQueue(q.push)
	fake := rpctest.New()

	require.NoError(t, s.SetupChangedListeners(fake))

	require.NotNil(t, fake.Handler(ChangedMethod))
	cmds := fake.CallsTo("Command")
	require.Len(t, cmds, 4)
	require.Equal(t, WatcherCommand(Fullscreen), cmds[0].Args[0])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := s.Subscribe(ctx)

	require.NoError(t, fake.Notify(ChangedMethod, RefreshRate, int64(90)))
	require.Equal(t, Change{Name: RefreshRate, Value: 90, Origin: OriginRemote}, nextChange(t, ch))
	require.Equal(t, 90, s.Int(RefreshRate))

	// Remote changes are not echoed back to the engine.
	require.Empty(t, q.all())

	// Unlet and unknown names are ignored.
	require.NoError(t, fake.Notify(ChangedMethod, RefreshRate, nil))
	require.NoError(t, fake.Notify(ChangedMethod, "nope", true))
	require.Equal(t, 90, s.Int(RefreshRate))
}

func TestSetupChangedListeners_RegisterFails(t *testing.T) {
	s := New(Defaults()...)
	fake := rpctest.New()
	fake.FailOn("RegisterHandler", errors.New("bad signature"))

	require.ErrorContains(t, s.SetupChangedListeners(fake), "register setting_changed handler")
	require.Empty(t, fake.CallsTo("Command"))
}

func TestWatcherCommand(t *testing.T) {
	require.Equal(t,
		"call dictwatcheradd(g:, 'neovis_refresh_rate', {d, k, z -> rpcnotify(0, 'setting_changed', 'refresh_rate', get(z, 'new', v:null))})",
		WatcherCommand(RefreshRate))
}
