package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitConfiguresGlobalLogger(t *testing.T) {
	t.Cleanup(func() { Replace(nil) })

	require.NoError(t, Init(Options{Level: "debug"}))
	require.True(t, Logger().Core().Enabled(zap.DebugLevel))

	require.NoError(t, Init(Options{Level: "not-a-level", Format: "console"}))
	require.False(t, Logger().Core().Enabled(zap.DebugLevel))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))
}

func TestLoggingHelpersEmitEntries(t *testing.T) {
	core, recorded := observer.New(zap.DebugLevel)
	t.Cleanup(func() { Replace(nil) })
	Replace(zap.New(core))

	Info("session created", zap.String("device_id", "d1"))
	Error("cleanup failed")
	Warn("session row missing")
	Debug("refresh rejected")

	entries := recorded.All()
	require.Len(t, entries, 4)
	want := []string{"session created", "cleanup failed", "session row missing", "refresh rejected"}
	for i, entry := range entries {
		require.Equal(t, want[i], entry.Message)
	}
	require.Equal(t, "d1", entries[0].ContextMap()["device_id"])
}

func TestWithModuleAttachesModuleField(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	t.Cleanup(func() { Replace(nil) })
	Replace(zap.New(core))

	WithModule("auth").Info("module test")

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "auth", entries[0].ContextMap()["module"])
}
