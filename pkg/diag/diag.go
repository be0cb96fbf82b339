package diag

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to w at debug level. A nil writer
// discards everything.
func New(w io.Writer) *zap.Logger {
	if w == nil {
		return zap.NewNop()
	}
	return NewLevel(w, zapcore.DebugLevel)
}

func NewLevel(w io.Writer, level zapcore.Level) *zap.Logger {
	if w == nil {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), level)
	return zap.New(core)
}
