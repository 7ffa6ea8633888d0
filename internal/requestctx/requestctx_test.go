package requestctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
}

func TestElapsed(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := WithRequestTime(context.Background(), start)

	assert.Equal(t, 1500*time.Millisecond, Elapsed(ctx, start.Add(1500*time.Millisecond)))
	assert.Zero(t, Elapsed(context.Background(), start))
}

func TestLogger(t *testing.T) {
	assert.NotNil(t, Logger(context.Background()))
	assert.NotNil(t, Logger(WithRequestID(context.Background(), "req-1")))
}
