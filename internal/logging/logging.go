// Package logging builds the daemon logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/arloliu/go-packedserial/internal/config"
	"github.com/arloliu/go-packedserial/logger"
)

// New builds a zap logger writing to stdout and, when a file name is configured, to a rolling
// file. The returned closer flushes and closes the file.
func New(cfg config.LoggingConfig) (logger.Logger, io.Closer) {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with console output sent to w.
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) (logger.Logger, io.Closer) {
	lvl, _ := logger.ParseLevel(strings.ToLower(cfg.Level))
	level := zap.NewAtomicLevelAt(zapcore.Level(lvl))

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	syncers := []zapcore.WriteSyncer{zapcore.AddSync(w)}

	var closer io.Closer = nopCloser{}
	if cfg.File.Filename != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		syncers = append(syncers, zapcore.AddSync(lj))
		closer = lj
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)
	zl := zap.New(core, zap.AddCaller())

	return logger.NewZap(zl, level), &syncCloser{zl: zl, next: closer}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type syncCloser struct {
	zl   *zap.Logger
	next io.Closer
}

func (c *syncCloser) Close() error {
	_ = c.zl.Sync()
	return c.next.Close()
}
