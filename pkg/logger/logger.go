// Package logger provides structured logging utilities.
package logger

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// New creates a JSON logger writing to outputPaths (stdout when none are
// given). Paths are anything zap accepts: "stdout", "stderr" or a file.
func New(level string, outputPaths ...string) (*Logger, error) {
	return build("json", level, outputPaths)
}

// NewConsole creates a human-readable logger for terminals and development.
func NewConsole(level string, outputPaths ...string) (*Logger, error) {
	return build("console", level, outputPaths)
}

func build(encoding, level string, outputPaths []string) (*Logger, error) {
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	if encoding == "console" {
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(level)),
		Encoding:         encoding,
		EncoderConfig:    enc,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: l}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return NewNop()
	}
	return l
}

// Named creates a child logger with a component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// WithContext tags a request's log lines with its correlation id and user.
func (l *Logger) WithContext(correlationID, userID string) *Logger {
	fields := []zap.Field{zap.String("correlation_id", correlationID)}
	if userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	return l.With(fields...)
}

// ParseLevel maps a level name to a zap level. Unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

var global atomic.Pointer[Logger]

// Global returns the process-wide logger, a no-op until SetGlobal is called.
func Global() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	return NewNop()
}

// SetGlobal sets the process-wide logger.
func SetGlobal(l *Logger) {
	global.Store(l)
}
