package diag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesToSink(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)
	log.Debug("converged", zap.Float64("bias", 0.5), zap.Int("iterations", 4))
	assert.Contains(t, buf.String(), "converged")
	assert.Contains(t, buf.String(), `"bias": 0.5`)
	assert.Contains(t, buf.String(), `"iterations": 4`)
}

func TestNilSinkDiscards(t *testing.T) {
	log := New(nil)
	assert.NotPanics(t, func() { log.Info("nothing") })
	assert.False(t, log.Core().Enabled(zapcore.ErrorLevel))
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewLevel(&buf, zapcore.WarnLevel)
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
