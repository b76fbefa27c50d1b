// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-clearinghouse.
//
// go-clearinghouse is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package logger

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeremyhahn/go-clearinghouse/pkg/correlation"
)

var _ ContextLogger = (*ZapAdapter)(nil)

// ZapAdapter wraps a zap.Logger to implement the Logger interface
type ZapAdapter struct {
	logger *zap.Logger
}

// ZapConfig configures the zap adapter
type ZapConfig struct {
	// Logger is the underlying zap logger. If nil, a JSON logger is built
	// from Level and Output.
	Logger *zap.Logger

	// Level is the minimum log level to output
	Level Level

	// Output is where the built logger writes. Defaults to os.Stdout
	Output io.Writer
}

// NewZapAdapter creates a new zap adapter
func NewZapAdapter(config *ZapConfig) *ZapAdapter {
	if config == nil {
		config = &ZapConfig{}
	}
	if config.Logger != nil {
		return &ZapAdapter{logger: config.Logger}
	}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(out),
		zap.NewAtomicLevelAt(levelToZapLevel(config.Level)),
	)
	return &ZapAdapter{logger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}
}

// Debug logs a debug message
func (l *ZapAdapter) Debug(msg string, fields ...Field) {
	l.logger.Debug(msg, toZapFields(fields)...)
}

// Info logs an informational message
func (l *ZapAdapter) Info(msg string, fields ...Field) {
	l.logger.Info(msg, toZapFields(fields)...)
}

// Warn logs a warning message
func (l *ZapAdapter) Warn(msg string, fields ...Field) {
	l.logger.Warn(msg, toZapFields(fields)...)
}

// Error logs an error message
func (l *ZapAdapter) Error(msg string, fields ...Field) {
	l.logger.Error(msg, toZapFields(fields)...)
}

// Fatal logs a fatal message and exits
func (l *ZapAdapter) Fatal(msg string, fields ...Field) {
	l.logger.Fatal(msg, toZapFields(fields)...)
}

// DebugContext logs a debug message with correlation ID from context
func (l *ZapAdapter) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.logger.Debug(msg, toZapFields(withCorrelationID(ctx, fields))...)
}

// InfoContext logs an informational message with correlation ID from context
func (l *ZapAdapter) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.logger.Info(msg, toZapFields(withCorrelationID(ctx, fields))...)
}

// WarnContext logs a warning message with correlation ID from context
func (l *ZapAdapter) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.logger.Warn(msg, toZapFields(withCorrelationID(ctx, fields))...)
}

// ErrorContext logs an error message with correlation ID from context
func (l *ZapAdapter) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.logger.Error(msg, toZapFields(withCorrelationID(ctx, fields))...)
}

// With creates a child logger with the given fields
func (l *ZapAdapter) With(fields ...Field) Logger {
	return &ZapAdapter{logger: l.logger.With(toZapFields(fields)...)}
}

// WithError creates a child logger with an error field
func (l *ZapAdapter) WithError(err error) Logger {
	return l.With(Error(err))
}

// Sync flushes buffered log entries.
func (l *ZapAdapter) Sync() error {
	return l.logger.Sync()
}

func withCorrelationID(ctx context.Context, fields []Field) []Field {
	if ctx == nil {
		return fields
	}
	if id := correlation.GetCorrelationID(ctx); id != "" {
		fields = append(fields, String("correlation_id", id))
	}
	return fields
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			out = append(out, zap.String(f.Key, v))
		case int:
			out = append(out, zap.Int(f.Key, v))
		case int64:
			out = append(out, zap.Int64(f.Key, v))
		case bool:
			out = append(out, zap.Bool(f.Key, v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		case []string:
			out = append(out, zap.Strings(f.Key, v))
		case error:
			out = append(out, zap.NamedError(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

func levelToZapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
