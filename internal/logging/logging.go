// ABOUTME: Logger construction for coordinator and participant processes
// ABOUTME: logr front-end over zap, console plus rotated JSON file
package logging

import (
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where logs go
type Config struct {
	// Console receives human-readable logs; nil disables console output (TUI mode)
	Console io.Writer

	// File is the JSON log file path; empty disables file output
	File string

	// Debug enables V(1) logs on the console
	Debug bool

	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// removeCallerCore strips caller info, which is only wanted in the file
type removeCallerCore struct {
	zapcore.Core
}

func (c *removeCallerCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Check(entry, nil) == nil {
		return ce
	}
	return ce.AddCore(entry, c)
}

func (c *removeCallerCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Caller = zapcore.EntryCaller{}
	return c.Core.Write(entry, fields)
}

func (c *removeCallerCore) With(fields []zap.Field) zapcore.Core {
	return &removeCallerCore{c.Core.With(fields)}
}

// New builds a logger. The returned closer flushes and closes the log file.
func New(cfg Config) (logr.Logger, io.Closer) {
	consoleLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Debug {
		consoleLevel = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	fileLevel := zap.NewAtomicLevelAt(zapcore.DebugLevel)

	var cores []zapcore.Core

	if cfg.Console != nil {
		zc := zap.NewDevelopmentEncoderConfig()
		zc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.EncodeTime = zapcore.TimeEncoderOfLayout("02/01 15:04:05.000")
		consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(zc), zapcore.AddSync(cfg.Console), consoleLevel)
		cores = append(cores, &removeCallerCore{consoleCore})
	}

	var file *lumberjack.Logger
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		zf := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(zf), zapcore.AddSync(file), fileLevel))
	}

	if len(cores) == 0 {
		return logr.Discard(), nopCloser{}
	}

	zlog := zap.New(zapcore.NewTee(cores...), zap.AddCaller())

	// remember -1 is debug, 0 is info: logr V(1) maps to zap debug
	return zapr.NewLogger(zlog), &closer{zlog: zlog, file: file}
}

type closer struct {
	zlog *zap.Logger
	file *lumberjack.Logger
}

func (c *closer) Close() error {
	_ = c.zlog.Sync()
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
