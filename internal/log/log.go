// Package log holds the process-wide zap logger used by the engine.
package log

import (
	"os"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global = atomic.NewPointer(newStdLogger())

// newStdLogger writes warnings and above to stderr as console lines.
func newStdLogger() *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.Lock(os.Stderr),
		zap.WarnLevel,
	)
	return zap.New(core).Named("epsilon")
}

// L returns the global logger.
func L() *zap.Logger {
	return global.Load()
}

// SetLogger replaces the global logger. A nil logger silences output.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	global.Store(l)
}

func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}
