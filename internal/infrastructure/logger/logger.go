package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap logger with additional functionality
type Logger struct {
	*zap.Logger
}

// NewLogger creates a new logger instance. The development environment gets a
// console encoder, everything else logs JSON.
func NewLogger(level, env string) (*Logger, error) {
	config := zap.NewProductionConfig()
	if env == "development" {
		config.Encoding = "console"
	}

	// Parse log level
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	// Configure encoder
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: logger}, nil
}

// New wraps an existing zap logger, mainly for tests
func New(l *zap.Logger) *Logger {
	return &Logger{Logger: l}
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("component", component))}
}

// WithRun tags every entry with the sync run id
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("run_id", runID))}
}
