package logger_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/capitalize-ai/quorra/pkg/logger"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"loud":    zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, logger.ParseLevel(in), in)
	}
}

func TestNew_WritesJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.log")
	log, err := logger.New("info", path)
	require.NoError(t, err)

	log.Named("session").WithContext("corr-1", "user-1").Info("send failed", zap.String("conversation_id", "c1"))
	log.Debug("dropped")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "send failed", entry["msg"])
	assert.Equal(t, "session", entry["logger"])
	assert.Equal(t, "corr-1", entry["correlation_id"])
	assert.Equal(t, "user-1", entry["user_id"])
	assert.Equal(t, "c1", entry["conversation_id"])
}

func TestWithContext_OmitsAnonymousUser(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "console.log")
	log, err := logger.NewConsole("debug", path)
	require.NoError(t, err)

	log.WithContext("corr-2", "").Debug("request completed")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DEBUG")
	assert.Contains(t, string(data), "corr-2")
	assert.NotContains(t, string(data), "user_id")
}

func TestGlobal(t *testing.T) {
	require.NotNil(t, logger.Global())

	l := logger.NewNop()
	logger.SetGlobal(l)
	assert.Same(t, l, logger.Global())
}
