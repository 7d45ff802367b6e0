package logctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromCtx_PrefersContextLogger(t *testing.T) {
	base := zap.NewNop().Sugar()
	scoped := zap.NewExample().Sugar()
	ctx := context.WithValue(context.Background(), "logger", scoped)

	require.Same(t, scoped, FromCtx(ctx, base))
}

func TestFromCtx_EnrichesFromPrimitives(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := context.WithValue(context.Background(), "traceID", "trace-1")
	ctx = context.WithValue(ctx, "user_id", "user-1")

	FromCtx(ctx, base).Infow("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "trace-1", fields["trace_id"])
	require.Equal(t, "user-1", fields["user_id"])
}

func TestFromCtx_NilContextReturnsBase(t *testing.T) {
	base := zap.NewNop().Sugar()
	require.Same(t, base, FromCtx(nil, base))
}
