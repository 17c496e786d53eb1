package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/neovis/internal/bridge"
	"github.com/zjrosen/neovis/internal/command"
)

// MiddlewareConfig configures NewDispatchMiddleware.
type MiddlewareConfig struct {
	// Tracer creates the spans. Nil disables the middleware.
	Tracer trace.Tracer
	// BridgeID is recorded on every span.
	BridgeID string
}

// NewDispatchMiddleware records one span per dispatched command.
func NewDispatchMiddleware(cfg MiddlewareConfig) bridge.Middleware {
	if cfg.Tracer == nil {
		return func(next bridge.Handler) bridge.Handler { return next }
	}

	return func(next bridge.Handler) bridge.Handler {
		return bridge.HandlerFunc(func(ctx context.Context, cmd command.Command) error {
			ctx, span := cfg.Tracer.Start(ctx, SpanPrefixDispatch+cmd.Type().String(),
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(
					attribute.String(AttrCommandID, bridge.CommandID(ctx)),
					attribute.String(AttrCommandType, cmd.Type().String()),
					attribute.String(AttrCommand, fmt.Sprint(cmd)),
					attribute.String(AttrBridgeID, cfg.BridgeID),
				),
			)
			defer span.End()

			err := next.Handle(ctx, cmd)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return err
		})
	}
}
