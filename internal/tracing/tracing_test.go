package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"
)

// Shutdown must stop the batch span processor goroutine.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSetup(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	t.Run("none", func(t *testing.T) {
		shutdown, err := Setup("taskd", "none", nil)
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("stdout", func(t *testing.T) {
		var buf bytes.Buffer
		shutdown, err := Setup("taskd", "stdout", &buf)
		require.NoError(t, err)

		_, span := otel.Tracer("test").Start(context.Background(), "TaskManager.create_many")
		span.End()

		require.NoError(t, shutdown(context.Background()))
		assert.Contains(t, buf.String(), "TaskManager.create_many")
		assert.Contains(t, buf.String(), "taskd")
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Setup("taskd", "jaeger", nil)
		assert.Error(t, err)
	})
}
