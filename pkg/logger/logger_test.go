package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"development", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"production", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestGet_BeforeInitReturnsNop(t *testing.T) {
	mu.Lock()
	global = nil
	mu.Unlock()

	l := Get()
	require.NotNil(t, l)
	l.Info("discarded")
}

func TestInit(t *testing.T) {
	err := Init(&Config{Level: "info", ServiceName: "settlement-service"})
	require.NoError(t, err)

	l := Get()
	require.NotNil(t, l)
	l.With().InfoContext(context.Background(), "hello")
}

func TestTraceFields_NoSpan(t *testing.T) {
	assert.Empty(t, traceFields(context.Background()))
}
