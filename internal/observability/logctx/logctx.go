// Package logctx carries the request or event scoped logger through context. The HTTP middleware
// binds request_id and route, the worker decorator binds event and consumer, and use cases add
// order and product ids before handing the context on to the ledger.
package logctx

import (
	"context"

	"github.com/Zhima-Mochi/cafeteria/internal/observability"
)

type loggerKey struct{}

// With returns ctx carrying logger. A nil logger leaves ctx as is.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// From returns the scoped logger, or nil when none was bound.
func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(loggerKey{}).(observability.Logger)
	return logger
}

// FromOr prefers the scoped logger so request and event fields survive into service logs;
// fallback is the component logger.
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if logger := From(ctx); logger != nil {
		return logger
	}
	return fallback
}

// Enrich binds fields onto the scoped logger (or fallback) and stores the result back in ctx.
func Enrich(ctx context.Context, fallback observability.Logger, fields ...observability.Field) (context.Context, observability.Logger) {
	logger := FromOr(ctx, fallback)
	if logger == nil {
		return ctx, nil
	}
	logger = logger.With(fields...)
	return With(ctx, logger), logger
}
