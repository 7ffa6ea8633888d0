// Package requestctx carries per-request values through handler contexts.
package requestctx

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	requestTimeKey contextKey = "request_time"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func WithRequestTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Elapsed reports the time since the request was received, or zero when the
// request time is unknown.
func Elapsed(ctx context.Context, now time.Time) time.Duration {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return now.Sub(t)
	}
	return 0
}

// Logger returns the global logger tagged with the request id, if any.
func Logger(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if id := RequestID(ctx); id != "" {
		l = l.With().Str("request_id", id).Logger()
	}
	return &l
}
