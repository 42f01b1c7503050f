package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level LogLevel, format Format) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: level, Output: &buf, Format: format})
	require.NoError(t, err)
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestZapAdapter(t *testing.T) {
	t.Run("json output carries fields", func(t *testing.T) {
		logger, buf := newBufferLogger(t, DebugLevel, FormatJSON)

		logger.Info("signature verified", String("access_key", "ak-1"), Int("status", 200))
		logger.Error("store unavailable", errors.New("dial tcp: refused"), String("stage", "claim"))

		entries := decodeLines(t, buf)
		require.Len(t, entries, 2)
		assert.Equal(t, "INFO", entries[0]["level"])
		assert.Equal(t, "signature verified", entries[0]["msg"])
		assert.Equal(t, "ak-1", entries[0]["access_key"])
		assert.EqualValues(t, 200, entries[0]["status"])
		assert.Equal(t, "ERROR", entries[1]["level"])
		assert.Equal(t, "dial tcp: refused", entries[1]["error"])
	})

	t.Run("level filtering", func(t *testing.T) {
		logger, buf := newBufferLogger(t, WarnLevel, FormatJSON)

		logger.Debug("hidden")
		logger.Info("hidden")
		logger.Warn("clock skew detected")

		entries := decodeLines(t, buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "clock skew detected", entries[0]["msg"])
	})

	t.Run("with fields", func(t *testing.T) {
		logger, buf := newBufferLogger(t, InfoLevel, FormatJSON)

		logger.WithFields(String("component", "pipeline")).Info("stage complete")

		entries := decodeLines(t, buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "pipeline", entries[0]["component"])
	})

	t.Run("with context", func(t *testing.T) {
		logger, buf := newBufferLogger(t, InfoLevel, FormatJSON)

		ctx := ContextWithRequestID(context.Background(), "req-123")
		ctx = ContextWithAccessKey(ctx, "ak-42")
		logger.WithContext(ctx).Info("admitted")

		entries := decodeLines(t, buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "req-123", entries[0]["request_id"])
		assert.Equal(t, "ak-42", entries[0]["access_key"])
	})

	t.Run("empty context returns same logger", func(t *testing.T) {
		logger, _ := newBufferLogger(t, InfoLevel, FormatJSON)
		assert.Same(t, logger, logger.WithContext(context.Background()))
	})

	t.Run("console format", func(t *testing.T) {
		logger, buf := newBufferLogger(t, InfoLevel, FormatConsole)
		logger.Info("console message", String("k", "v"))
		assert.Contains(t, buf.String(), "INFO")
		assert.Contains(t, buf.String(), "console message")
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warning", WarnLevel},
		{"Error", ErrorLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	logger, buf := newBufferLogger(t, InfoLevel, FormatJSON)
	SetGlobalLogger(logger)

	Info("global info", String("key", "value"))
	Warn("global warn")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "global info", entries[0]["msg"])
	assert.Equal(t, "WARN", entries[1]["level"])
}
