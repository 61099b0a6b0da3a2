package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func zapLevel(s string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("bad log level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger builds the process logger: JSON to stderr in production,
// console output with development mode.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapLevel(c.Level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if c.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
