// Package logger constructs the application's structured logger.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a production console logger at the given level.
func New(level zapcore.LevelEnabler) *zap.Logger {
	if level == nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(levelOf(level))
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// ParseLogLevel maps a config string to a zap level, defaulting to info.
func ParseLogLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func levelOf(enabler zapcore.LevelEnabler) zapcore.Level {
	for l := zapcore.DebugLevel; l <= zapcore.FatalLevel; l++ {
		if enabler.Enabled(l) {
			return l
		}
	}
	return zapcore.InfoLevel
}
