package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core)).With(String("component", "engine"))

	logger.Info("command dispatched",
		String("token", "w0-5"),
		Float64("magnitude", 5),
		Int("readings", 1),
		Duration("elapsed", time.Millisecond),
		Bool("motion", true),
		Error(errors.New("boom")),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	require.Equal(t, "engine", ctx["component"])
	require.Equal(t, "w0-5", ctx["token"])
	require.Equal(t, 5.0, ctx["magnitude"])
	require.Equal(t, int64(1), ctx["readings"])
	require.Equal(t, true, ctx["motion"])
	require.Equal(t, "boom", ctx["error"])
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	logger.Debug("dropped", Any("anything", struct{}{}))
	require.NotNil(t, logger.With(String("k", "v")))
}
