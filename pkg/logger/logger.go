package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger for the given level. Unknown levels fall back to
// info.
func New(level string) *zap.Logger {
	return NewWithFormat(level, "json")
}

// NewWithFormat builds a zap logger with either json or console encoding.
func NewWithFormat(level, format string) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
