package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	assert.True(t, New("debug", "json").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, New("info", "json").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, New("warn", "console").Core().Enabled(zapcore.InfoLevel))
	assert.False(t, New("error", "json").Core().Enabled(zapcore.WarnLevel))
	// Unknown levels default to info.
	assert.True(t, New("bogus", "json").Core().Enabled(zapcore.InfoLevel))
}
