package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/neovis/internal/bridge"
	"github.com/zjrosen/neovis/internal/command"
	"github.com/zjrosen/neovis/internal/config"
)

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	rec := tracetest.NewSpanRecorder()
	return rec, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
}

func attrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.False(t, p.Enabled())
	require.NotNil(t, p.Tracer())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_FileExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "traces.jsonl")
	p, err := NewProvider(config.TracingConfig{Enabled: true, Exporter: "file", FilePath: path, SampleRate: 1})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "probe")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"name":"probe"`)
}

func TestNewProvider_Errors(t *testing.T) {
	_, err := NewProvider(config.TracingConfig{Enabled: true, Exporter: "file"})
	require.ErrorContains(t, err, "file_path required")

	_, err = NewProvider(config.TracingConfig{Enabled: true, Exporter: "zipkin"})
	require.ErrorContains(t, err, "unsupported exporter type")
}

func TestNewProvider_NoneExporter(t *testing.T) {
	p, err := NewProvider(config.TracingConfig{Enabled: true, Exporter: "none"})
	require.NoError(t, err)
	require.True(t, p.Enabled())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestDispatchMiddleware_RecordsSpan(t *testing.T) {
	rec, tp := newRecorder()
	mw := NewDispatchMiddleware(MiddlewareConfig{Tracer: tp.Tracer("test"), BridgeID: "b-1"})

	h := mw(bridge.HandlerFunc(func(context.Context, command.Command) error { return nil }))
	ctx := bridge.WithCommandID(context.Background(), "cmd-7")
	require.NoError(t, h.Handle(ctx, command.Resize{Width: 80, Height: 24}))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "bridge.dispatch.resize", spans[0].Name())
	require.Equal(t, codes.Ok, spans[0].Status().Code)

	a := attrs(spans[0])
	require.Equal(t, "cmd-7", a[AttrCommandID].AsString())
	require.Equal(t, "resize", a[AttrCommandType].AsString())
	require.Equal(t, "Resize(80x24)", a[AttrCommand].AsString())
	require.Equal(t, "b-1", a[AttrBridgeID].AsString())
}

func TestDispatchMiddleware_RecordsError(t *testing.T) {
	rec, tp := newRecorder()
	mw := NewDispatchMiddleware(MiddlewareConfig{Tracer: tp.Tracer("test")})
	boom := errors.New("E37: No write since last change")

	h := mw(bridge.HandlerFunc(func(context.Context, command.Command) error { return boom }))
	require.ErrorIs(t, h.Handle(context.Background(), command.Quit{}), boom)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, boom.Error(), spans[0].Status().Description)
	require.NotEmpty(t, spans[0].Events(), "error should be recorded as an event")
}

func TestDispatchMiddleware_NilTracerPassesThrough(t *testing.T) {
	called := false
	h := NewDispatchMiddleware(MiddlewareConfig{})(bridge.HandlerFunc(func(context.Context, command.Command) error {
		called = true
		return nil
	}))
	require.NoError(t, h.Handle(context.Background(), command.FocusLost{}))
	require.True(t, called)
}

func TestFileExporter_WritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "traces.jsonl")
	exp, err := NewFileExporter(path)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	ctx, parent := tp.Tracer("test").Start(context.Background(), "bridge.handshake")
	_, child := tp.Tracer("test").Start(ctx, "bridge.dispatch.keyboard")
	child.SetAttributes(attribute.String(AttrCommandType, "keyboard"))
	child.AddEvent("sent")
	child.SetStatus(codes.Error, "broken pipe")
	child.End()
	parent.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []SpanRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r SpanRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		records = append(records, r)
	}
	require.Len(t, records, 2)

	child0 := records[0]
	require.Equal(t, "bridge.dispatch.keyboard", child0.Name)
	require.Equal(t, records[1].SpanID, child0.ParentSpanID)
	require.Equal(t, "ERROR", child0.Status)
	require.Equal(t, "broken pipe", child0.StatusMsg)
	require.Equal(t, "keyboard", child0.Attributes[AttrCommandType])
	require.Equal(t, []string{"sent"}, child0.Events)

	require.Equal(t, "UNSET", records[1].Status)
	require.Empty(t, records[1].ParentSpanID)
}

func TestFileExporter_ShutdownTwice(t *testing.T) {
	exp, err := NewFileExporter(filepath.Join(t.TempDir(), "t.jsonl"))
	require.NoError(t, err)
	require.NoError(t, exp.Shutdown(context.Background()))
	require.NoError(t, exp.Shutdown(context.Background()))
}
