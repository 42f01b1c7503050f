// Package logging provides structured logging using zap
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
)

// NewDefaultLogger creates a logger with default configuration using zap
func NewDefaultLogger() Logger {
	logger, err := NewZapLogger(DefaultLogConfig())
	if err != nil {
		panic(fmt.Sprintf("failed to initialize default zap logger: %v", err))
	}
	return logger
}

// InitGlobalLogger initializes the global logger from LOG_LEVEL, LOG_FORMAT and LOG_FILE.
// Without LOG_FILE the gateway logs to stdout.
func InitGlobalLogger() {
	config := DefaultLogConfig()

	var out io.Writer = os.Stdout
	logFileName := os.Getenv("LOG_FILE")
	if logFileName != "" {
		file, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			panic(fmt.Sprintf("Failed to open log file %s: %v", logFileName, err))
		}
		out = file
	}
	config.Output = out

	logger, err := NewZapLogger(config)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	SetGlobalLogger(logger)

	logger.Info("Logger initialized",
		String("level", config.Level.String()),
		String("format", string(config.Format)),
		String("log_file", logFileName),
	)
}

// MustSync flushes any buffered log entries for zap loggers.
// This should be called before application exit
func MustSync() {
	if zapLogger, ok := GetGlobalLogger().(*ZapAdapter); ok {
		_ = zapLogger.Sync()
	}
}

// WithContext is a convenience function to add context to the global logger
func WithContext(ctx context.Context) Logger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithFields is a convenience function to add fields to the global logger
func WithFields(fields ...Field) Logger {
	return GetGlobalLogger().WithFields(fields...)
}
