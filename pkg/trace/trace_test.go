package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigReadsEnvironment(t *testing.T) {
	t.Setenv("TRACE_EXPORTER", "none")
	t.Setenv("ENVIRONMENT", "staging")

	cfg := DefaultConfig()
	assert.Equal(t, "outdial", cfg.ServiceName)
	assert.Equal(t, "none", cfg.Exporter)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 1.0, cfg.SamplingRate)
}

func TestInitializeRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exporter = "jaeger"

	err := Initialize(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown trace exporter")
}

func TestInitializeAndShutdown(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Exporter = "none"

	require.NoError(t, Initialize(ctx, cfg))
	t.Cleanup(func() { Shutdown(ctx) })

	// Double initialization is a programming error.
	require.Error(t, Initialize(ctx, cfg))

	spanCtx, span := StartSpan(ctx, "call.dial")
	assert.NotNil(t, spanCtx)
	span.End()

	require.NoError(t, Shutdown(ctx))
	require.NoError(t, Shutdown(ctx))
}
