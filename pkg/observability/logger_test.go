package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelInfo, Format: LogFormatText, Output: &buf})

		logger.Info("decision", "code", "ALLOWED")

		assert.Contains(t, buf.String(), "decision")
		assert.Contains(t, buf.String(), "code=ALLOWED")
	})

	t.Run("json with service", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf, ServiceName: "gatehouse"})

		logger.Info("minted", "kind", "press")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "minted", entry["msg"])
		assert.Equal(t, "press", entry["kind"])
		assert.Equal(t, "gatehouse", entry["service"])
	})

	t.Run("respects level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelWarn, Output: &buf})

		logger.Info("hidden")
		logger.Debug("hidden")
		assert.Empty(t, buf.String())

		logger.Warn("shown")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("stamps request identifiers", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf})

		ctx := WithRequestID(WithCorrelationID(context.Background(), "corr-1"), "req-1")
		logger.InfoContext(ctx, "hello")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "corr-1", entry[CorrelationIDKey])
		assert.Equal(t, "req-1", entry[RequestIDKey])
	})

	t.Run("attributes survive With", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf, ServiceName: "gatehouse"}).
			With("component", "engine").
			WithGroup("decision")

		logger.InfoContext(WithCorrelationID(context.Background(), "c"), "x", "code", "EMBARGO")

		assert.Contains(t, buf.String(), `"component":"engine"`)
		assert.Contains(t, buf.String(), `"service":"gatehouse"`)
	})
}

func TestNewLogger_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: LogFormatJSON, Output: &buf})

	logger.Info("token minted", "secret", "shr_4fQx9Lm2", "Authorization", "Bearer x", "kind", "press")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, Redacted, entry["secret"])
	assert.Equal(t, Redacted, entry["Authorization"])
	assert.Equal(t, "press", entry["kind"])
	assert.NotContains(t, buf.String(), "shr_4fQx9Lm2")
}

func TestLogConfigFor(t *testing.T) {
	dev := LogConfigFor("development", "", "")
	assert.Equal(t, LogFormatText, dev.Format)
	assert.Equal(t, LogLevelInfo, dev.Level)

	prod := LogConfigFor("production", "debug", "")
	assert.Equal(t, LogFormatJSON, prod.Format)
	assert.Equal(t, LogLevelDebug, prod.Level)
	assert.True(t, prod.AddSource)

	override := LogConfigFor("production", "", "text")
	assert.Equal(t, LogFormatText, override.Format)
}

func TestContextIdentifiers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CorrelationIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = NewRequestContext(ctx, "")
	assert.NotEmpty(t, CorrelationIDFromContext(ctx))
	assert.NotEmpty(t, RequestIDFromContext(ctx))

	ctx = NewRequestContext(context.Background(), "given")
	assert.Equal(t, "given", CorrelationIDFromContext(ctx))
}
