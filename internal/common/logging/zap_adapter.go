// Package logging provides zap-based structured logging
package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapAdapter wraps zap.Logger to implement our Logger interface
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapLogger creates a new zap-based logger
func NewZapLogger(config LogConfig) (Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if config.Format == FormatConsole {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	var writer zapcore.WriteSyncer
	if config.Output != nil {
		writer = zapcore.AddSync(config.Output)
	} else {
		writer = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(encoder, writer, convertToZapLevel(config.Level))
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	if config.Prefix != "" {
		logger = logger.Named(config.Prefix)
	}

	return &ZapAdapter{logger: logger}, nil
}

// Debug logs a debug message
func (z *ZapAdapter) Debug(msg string, fields ...Field) {
	z.logger.Debug(msg, convertFields(fields)...)
}

// Info logs an info message
func (z *ZapAdapter) Info(msg string, fields ...Field) {
	z.logger.Info(msg, convertFields(fields)...)
}

// Warn logs a warning message
func (z *ZapAdapter) Warn(msg string, fields ...Field) {
	z.logger.Warn(msg, convertFields(fields)...)
}

// Error logs an error message
func (z *ZapAdapter) Error(msg string, err error, fields ...Field) {
	zapFields := convertFields(fields)
	if err != nil {
		zapFields = append(zapFields, zap.Error(err))
	}
	z.logger.Error(msg, zapFields...)
}

// WithFields returns a new logger with additional fields
func (z *ZapAdapter) WithFields(fields ...Field) Logger {
	if len(fields) == 0 {
		return z
	}
	return &ZapAdapter{logger: z.logger.With(convertFields(fields)...)}
}

// WithContext returns a new logger carrying the request ID and access key
// stored in ctx, if any.
func (z *ZapAdapter) WithContext(ctx context.Context) Logger {
	var fields []zap.Field
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String(string(requestIDKey), id))
	}
	if key := AccessKeyFromContext(ctx); key != "" {
		fields = append(fields, zap.String(string(accessKeyKey), key))
	}
	if len(fields) == 0 {
		return z
	}
	return &ZapAdapter{logger: z.logger.With(fields...)}
}

// Sync flushes any buffered log entries
func (z *ZapAdapter) Sync() error {
	return z.logger.Sync()
}

func convertToZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func convertFields(fields []Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, field := range fields {
		if err, ok := field.Value.(error); ok {
			zapFields[i] = zap.NamedError(field.Key, err)
			continue
		}
		zapFields[i] = zap.Any(field.Key, field.Value)
	}
	return zapFields
}
