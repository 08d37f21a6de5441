package logging

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"presale/pkg/models"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("loud"))
}

func TestNew_WritesFileAndSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presale.log")

	var mu sync.Mutex
	var entries []models.LogEntry
	logger, err := New(Options{Path: path, Level: "debug", Sink: func(e models.LogEntry) {
		mu.Lock()
		defer mu.Unlock()
		entries = append(entries, e)
	}})
	require.NoError(t, err)

	logger.Debug("hidden from activity")
	logger.Info("Approve tx: 0xabc")
	logger.Warn("Network mismatch")
	_ = logger.Sync()

	mu.Lock()
	require.Len(t, entries, 2)
	assert.Equal(t, "Approve tx: 0xabc", entries[0].Message)
	assert.Equal(t, "info", entries[0].Level)
	assert.False(t, entries[0].Time.IsZero())
	assert.Equal(t, "warn", entries[1].Level)
	mu.Unlock()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hidden from activity")
	assert.Contains(t, string(data), "Approve tx: 0xabc")
}

func TestRecover(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	func() {
		defer Recover(logger, "refresh")
		panic("boom")
	}()

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Contains(t, entry.Message, "refresh")
	assert.Contains(t, entry.Message, "boom")
}
