// Package logging builds the zap logger used across vaultproc.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelFor maps a debug verbosity to a zap level: 0 warn, 1 info, 2+ debug
func LevelFor(debug int) zapcore.Level {
	switch {
	case debug <= 0:
		return zapcore.WarnLevel
	case debug == 1:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// New creates a console logger writing to stderr. stdout stays free for
// MCP traffic and JSON output.
func New(debug int) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(LevelFor(debug))
	cfg.Development = debug >= 2
	cfg.DisableStacktrace = debug < 2
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// JSON creates a JSON logger writing to stderr, for machine-read logs
func JSON(debug int) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(LevelFor(debug))
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
