// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every log line emitted by the edge service.
const ServiceName = "storefront-edge"

// New builds a zap.Logger configured for development or production.
// Production output is JSON; development output is console-encoded with
// coloured levels.
func New(development bool) (*zap.Logger, error) {
	var (
		cfg zap.Config
		env string
	)
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		env = "development"
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
		env = "production"
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.InitialFields = map[string]any{"service": ServiceName}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s logger: %w", env, err)
	}
	return logger, nil
}

// OrNop returns logger, or a no-op logger when logger is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
