package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger is a Logger backed by a zap.SugaredLogger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

var _ Logger = (*ZapLogger)(nil)

// NewZap wraps an existing zap logger. level must be the AtomicLevel the logger's core was built
// with, so SetLevel takes effect.
func NewZap(l *zap.Logger, level zap.AtomicLevel) Logger {
	return &ZapLogger{
		sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar(),
		level: level,
	}
}

func (l *ZapLogger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *ZapLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *ZapLogger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *ZapLogger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *ZapLogger) Fatal(msg string, keysAndValues ...any) {
	l.sugar.Fatalw(msg, keysAndValues...)
}

func (l *ZapLogger) With(keyValues ...any) Logger {
	return &ZapLogger{
		sugar: l.sugar.With(keyValues...),
		level: l.level,
	}
}

func (l *ZapLogger) Level() LogLevel {
	return LogLevel(l.level.Level())
}

func (l *ZapLogger) SetLevel(level LogLevel) {
	l.level.SetLevel(zapcore.Level(level))
}
