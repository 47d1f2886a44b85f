package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option adjusts the production config before the logger is built.
type Option func(*zap.Config)

// WithConsole switches to the human-readable console encoder.
func WithConsole() Option {
	return func(c *zap.Config) {
		c.Encoding = "console"
		c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		c.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
}

// WithOutputPaths sends log entries to paths instead of stderr.
func WithOutputPaths(paths ...string) Option {
	return func(c *zap.Config) {
		c.OutputPaths = paths
	}
}

// New builds a production logger at the given level ("debug", "info", ...).
// An empty level means info.
func New(verbosity string, opts ...Option) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	// Benchmarks log once per size; sampling would drop entries.
	config.Sampling = nil
	for _, opt := range opts {
		opt(&config)
	}
	return config.Build()
}
