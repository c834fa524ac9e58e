package logcapture_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FlashGalatine/xivdyetools-test-utils/logcapture"
)

func TestCapture(t *testing.T) {
	capture := logcapture.New(logcapture.Config{})
	logger := capture.Logger()

	logger.Debug("cache rebuilt", "entries", 3)
	logger.Warn("upstream slow", "latency_ms", 250)

	entries := capture.Entries()
	require.Len(t, entries, 2)

	require.Equal(t, "cache rebuilt", entries[0].Message)
	require.Equal(t, slog.LevelDebug, entries[0].Level)
	require.Equal(t, int64(3), entries[0].Attrs["entries"])
	require.False(t, entries[0].Time.IsZero())

	require.Equal(t, slog.LevelWarn, entries[1].Level)
	require.Equal(t, []string{"cache rebuilt", "upstream slow"}, capture.Messages())

	require.True(t, capture.Contains("upstream"))
	require.False(t, capture.Contains("absent"))
	require.Equal(t, 2, capture.Len())
}

func TestLevelFilter(t *testing.T) {
	capture := logcapture.New(logcapture.Config{Level: slog.LevelInfo})
	logger := capture.Logger()

	logger.Debug("dropped")
	logger.Info("kept")

	require.Equal(t, []string{"kept"}, capture.Messages())
}

func TestDerivedHandlersShareLog(t *testing.T) {
	capture := logcapture.New(logcapture.Config{})
	logger := capture.Logger().With("component", "kv")

	logger.Info("put", "key", "dye:1")
	logger.WithGroup("req").Info("fetch", "url", "/dyes")

	entries := capture.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "kv", entries[0].Attrs["component"])
	require.Equal(t, "dye:1", entries[0].Attrs["key"])

	// Grouped attrs carry the group prefix; earlier With attrs do not.
	require.Equal(t, "/dyes", entries[1].Attrs["req.url"])
	require.Equal(t, "kv", entries[1].Attrs["component"])
}

func TestBounded(t *testing.T) {
	capture := logcapture.New(logcapture.Config{MaxEntries: 2})
	logger := capture.Logger()

	logger.Info("one")
	logger.Info("two")
	logger.Info("three")

	require.Equal(t, []string{"two", "three"}, capture.Messages())
}

func TestReset(t *testing.T) {
	capture := logcapture.New(logcapture.Config{})
	capture.Logger().Info("before")

	capture.Reset()

	require.Zero(t, capture.Len())
	require.Empty(t, capture.Entries())
}

func TestEntryIsolation(t *testing.T) {
	capture := logcapture.New(logcapture.Config{})
	capture.Logger().Info("event", "k", "v")

	entries := capture.Entries()
	entries[0].Attrs["k"] = "mutated"

	require.Equal(t, "v", capture.Entries()[0].Attrs["k"])
}
