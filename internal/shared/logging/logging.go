// Package logging provides the narrow logger interface passed explicitly
// into each component (design notes §9: "avoid process-wide singletons").
package logging

import "go.uber.org/zap"

// Logger is the minimal structured-logging surface components depend on.
// Concrete callers always get one through explicit construction or
// injection, never a package-level global.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a production-configured zap-backed Logger.
func New() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}

// NewDevelopment builds a human-readable console Logger, used by
// both binaries when server.environment is "development".
func NewDevelopment() (Logger, error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}

func (l *zapLogger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

func (l *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{z: l.z.With(fields...)}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...zap.Field) {}
func (nopLogger) Info(string, ...zap.Field)  {}
func (nopLogger) Warn(string, ...zap.Field)  {}
func (nopLogger) Error(string, ...zap.Field) {}
func (n nopLogger) With(...zap.Field) Logger { return n }

// Nop is a Logger that discards everything, for tests and optional deps.
var Nop Logger = nopLogger{}

// OrNop returns l if non-nil, else Nop — so callers never need a nil check
// before logging.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop
	}
	return l
}
