// Package logger provides logging utilities for the pipeline commands.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging functionality.
// Arguments after the message are alternating key/value pairs.
type Logger struct {
	internal *zap.SugaredLogger
	level    zap.AtomicLevel
}

// ParseLevel converts a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New picks the console encoder in development and JSON otherwise.
func New(level string, development bool) *Logger {
	return newLogger(level, development)
}

func newLogger(level string, console bool) *Logger {
	atom := zap.NewAtomicLevelAt(ParseLevel(level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if console {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atom)

	return &Logger{
		internal: zap.New(core).Sugar(),
		level:    atom,
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		internal: zap.NewNop().Sugar(),
		level:    zap.NewAtomicLevelAt(zapcore.FatalLevel),
	}
}

// Info logs an info level message.
func (l *Logger) Info(msg string, args ...any) {
	l.internal.Infow(msg, args...)
}

// Error logs an error level message.
func (l *Logger) Error(msg string, args ...any) {
	l.internal.Errorw(msg, args...)
}

// Debug logs a debug level message.
func (l *Logger) Debug(msg string, args ...any) {
	l.internal.Debugw(msg, args...)
}

// Warn logs a warning level message.
func (l *Logger) Warn(msg string, args ...any) {
	l.internal.Warnw(msg, args...)
}

// With creates a child logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		internal: l.internal.With(args...),
		level:    l.level,
	}
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level string) bool {
	return l.level.Enabled(ParseLevel(level))
}

// Sync flushes buffered entries. Errors from syncing stderr are ignored.
func (l *Logger) Sync() {
	_ = l.internal.Sync()
}
