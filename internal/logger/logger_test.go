package logger

import (
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
		{"info", zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel},
		{"2", zapcore.Level(-2)},
		{" 0 ", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
	_, err = ParseLevel("-1")
	assert.Error(t, err)
}

func TestSetLevelTextEnablesVerbosity(t *testing.T) {
	log := New("test", false)
	assert.False(t, log.V(2).Enabled())

	require.NoError(t, log.SetLevelText("2"))
	assert.True(t, log.V(2).Enabled())
	assert.False(t, log.V(3).Enabled())
}
