// Package logger provides structured logging with zap.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a new zap.Logger depending on the environment.
func New(env string) *zap.Logger {
	if env == "production" {
		logger, _ := zap.NewProduction()
		return logger
	}
	logger, _ := zap.NewDevelopment()
	return logger
}

// WithDiagnostics tees entries at or above level into ws as JSON lines, in
// addition to the base logger's own output.
func WithDiagnostics(base *zap.Logger, ws zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	diag := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, level)
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, diag)
	}))
}
