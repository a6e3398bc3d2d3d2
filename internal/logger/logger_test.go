package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel(LevelInfo)
	})
	return &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &out))
	return out
}

func TestLogger(t *testing.T) {
	buf := capture(t)
	ctx := context.Background()

	t.Run("Info", func(t *testing.T) {
		buf.Reset()
		Info(ctx, "test message")
		line := lastLine(t, buf)
		assert.Equal(t, "info", line["level"])
		assert.Equal(t, "test message", line["message"])
		assert.Contains(t, line, "ts")
	})

	t.Run("Error with error", func(t *testing.T) {
		buf.Reset()
		Error(ctx, errors.New("test error"), "extra message")
		line := lastLine(t, buf)
		assert.Equal(t, "error", line["level"])
		assert.Equal(t, "extra message", line["message"])
		assert.Equal(t, "test error", line["error"])
	})

	t.Run("Error without error", func(t *testing.T) {
		buf.Reset()
		Error(ctx, nil, "message without error")
		line := lastLine(t, buf)
		assert.NotContains(t, line, "error")
	})

	t.Run("Debug with level", func(t *testing.T) {
		buf.Reset()
		SetLevel(LevelDebug)
		defer SetLevel(LevelInfo)

		Debug(ctx, "debug message")
		assert.Equal(t, "debug", lastLine(t, buf)["level"])
	})

	t.Run("Debug without level", func(t *testing.T) {
		buf.Reset()
		SetLevel(LevelInfo)

		Debug(ctx, "must not be logged")
		assert.Empty(t, buf.String())
	})
}

func TestLoggerWithFields(t *testing.T) {
	buf := capture(t)

	t.Run("Info with fields", func(t *testing.T) {
		buf.Reset()
		Info(context.Background(), "with fields", "key1", "value1", "key2", 42)
		line := lastLine(t, buf)
		assert.Equal(t, "value1", line["key1"])
		assert.EqualValues(t, 42, line["key2"])
	})

	t.Run("odd number of fields", func(t *testing.T) {
		buf.Reset()
		Info(context.Background(), "odd", "dangling")
		assert.Equal(t, "dangling", lastLine(t, buf)["!BADKEY"])
	})

	t.Run("request id from context", func(t *testing.T) {
		buf.Reset()
		ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
		Warn(ctx, "with request")
		assert.Equal(t, "req-1", lastLine(t, buf)["request_id"])
	})
}

func TestInit(t *testing.T) {
	buf := capture(t)

	require.NoError(t, Init("task-api", "debug", "json"))
	t.Cleanup(func() { _ = Init("", "info", "json") })

	Debug(context.Background(), "after init")
	line := lastLine(t, buf)
	assert.Equal(t, "task-api", line["service"])

	assert.Error(t, Init("", "loud", "json"))
	assert.Error(t, Init("", "info", "xml"))
}
