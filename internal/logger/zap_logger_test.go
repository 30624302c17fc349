package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_ModuleAndDetails(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	l.Warn("client", "feedback response was not an array", map[string]interface{}{"type": "object"})
	l.Error("client", "request failed", map[string]interface{}{"error": errors.New("dial tcp: refused")})
	l.Info("session", "token cleared", nil)

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "feedback response was not an array", entries[0].Message)
	assert.Equal(t, "client", entries[0].ContextMap()["module"])

	errFields := entries[1].ContextMap()
	assert.Equal(t, "dial tcp: refused", errFields["error_ref"])

	assert.Equal(t, "session", entries[2].ContextMap()["module"])
	assert.NotNil(t, entries[2].ContextMap()["details"])
}

func TestNewZapLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pgadmin.log")
	l := NewZapLogger(Options{FilePath: path, Level: "error"})

	l.Info("transfer", "job complete", map[string]interface{}{"job": "abc"})
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"job complete"`)
	assert.Contains(t, string(data), `"module":"transfer"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("nonsense"))
}
