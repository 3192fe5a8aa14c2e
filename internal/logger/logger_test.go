package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel verifies mapping from config strings to zap levels.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"":        zapcore.InfoLevel,
		" INFO ":  zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("loud")
	require.False(t, ok)
}

// TestContextScopedLogger checks that names and fields travel with the context.
func TestContextScopedLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())
	ctx = WithName(ctx, "loop")
	ctx = WithKV(ctx, "cycle_id", "abc")

	WarnKV(ctx, "Camera unhealthy", "failures", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "loop", entries[0].LoggerName)
	require.Equal(t, "abc", entries[0].ContextMap()["cycle_id"])
	require.EqualValues(t, 3, entries[0].ContextMap()["failures"])
}

// TestFromContextFallsBackToGlobal ensures a bare context uses the global logger.
func TestFromContextFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, global, FromContext(context.Background()))
}

// TestSetLevel filters the global logger at runtime.
func TestSetLevel(t *testing.T) {
	SetLevel(zapcore.WarnLevel)
	t.Cleanup(func() { SetLevel(zapcore.InfoLevel) })

	require.False(t, global.Desugar().Core().Enabled(zapcore.InfoLevel))
	require.True(t, global.Desugar().Core().Enabled(zapcore.WarnLevel))

	Sync()
}
