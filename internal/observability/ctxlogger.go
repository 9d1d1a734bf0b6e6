package observability

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey struct{}

var requestIDKey = ctxKey{}

// WithRequestID returns a context carrying id as the current request's
// correlation id, picked up by L and LoggerWithTrace.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the correlation id stored in ctx, if any.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// L returns a zerolog.Logger enriched with the request id from ctx, if present.
func L(ctx context.Context) *zerolog.Logger {
	return LoggerWithTrace(ctx)
}

// LoggerWithTrace returns a zerolog.Logger enriched with request_id from the
// context, if available.
func LoggerWithTrace(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	if id, ok := RequestID(ctx); ok {
		l = l.With().Str("request_id", id).Logger()
	}
	return &l
}
