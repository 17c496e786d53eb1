package bridge

import (
	"context"
	"time"

	"github.com/zjrosen/neovis/internal/command"
	"github.com/zjrosen/neovis/internal/log"
)

// Handler executes one dispatched command.
type Handler interface {
	Handle(ctx context.Context, cmd command.Command) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd command.Command) error

func (f HandlerFunc) Handle(ctx context.Context, cmd command.Command) error {
	return f(ctx, cmd)
}

// Middleware wraps a Handler to add behavior around dispatch.
type Middleware func(Handler) Handler

// ChainMiddleware applies middlewares so that the first one listed is the
// outermost wrapper: ChainMiddleware(h, a, b) == a(b(h)).
func ChainMiddleware(handler Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

type commandIDKey struct{}

// WithCommandID attaches a dispatch id to ctx.
func WithCommandID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, commandIDKey{}, id)
}

// CommandID returns the dispatch id attached by the dispatcher, or "".
func CommandID(ctx context.Context) string {
	id, _ := ctx.Value(commandIDKey{}).(string)
	return id
}

// NewLoggingMiddleware records every dispatch at trace level.
func NewLoggingMiddleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, cmd command.Command) error {
			log.Trace(log.CatBridge, "Executing command",
				"command_id", CommandID(ctx),
				"command_type", cmd.Type().String(),
				"command", cmd,
			)

			start := time.Now()
			err := next.Handle(ctx, cmd)

			log.Trace(log.CatBridge, "Command executed",
				"command_id", CommandID(ctx),
				"command_type", cmd.Type().String(),
				"duration", time.Since(start),
				"ok", err == nil,
			)
			return err
		})
	}
}

// DefaultSlowCallThreshold is used when no threshold is configured.
const DefaultSlowCallThreshold = 250 * time.Millisecond

// NewSlowCallMiddleware logs a warning when a remote call takes longer
// than threshold. It never aborts the call: a command that has reached the
// engine cannot be withdrawn.
func NewSlowCallMiddleware(threshold time.Duration) Middleware {
	if threshold <= 0 {
		threshold = DefaultSlowCallThreshold
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, cmd command.Command) error {
			start := time.Now()
			err := next.Handle(ctx, cmd)

			if duration := time.Since(start); duration > threshold {
				log.Warn(log.CatBridge, "Remote call exceeded time threshold",
					"command_id", CommandID(ctx),
					"command_type", cmd.Type().String(),
					"duration", duration,
					"threshold", threshold,
				)
			}
			return err
		})
	}
}
