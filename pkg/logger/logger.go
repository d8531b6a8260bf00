// Package logger provides the process-wide structured logger.
package logger

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures Init.
type Options struct {
	Level      string // debug, info, warn, error (default info)
	File       string // JSON log file, rotated by lumberjack; empty disables
	MaxSizeMB  int    // Rotate after this many megabytes (default 10)
	MaxBackups int    // Rotated files to keep (default 3)
	Console    bool   // Also write human-readable lines to stderr
}

var (
	mu           sync.Mutex
	globalLogger = zap.NewNop()
	sugar        = globalLogger.Sugar()
	rotator      *lumberjack.Logger
)

// Init initializes the global logger. Calling it again replaces the previous
// logger and closes its file.
func Init(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var cores []zapcore.Core
	closeRotatorLocked()

	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}

	if opts.Console {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level))
	}

	if len(cores) == 0 {
		globalLogger = zap.NewNop()
	} else {
		globalLogger = zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel)).Named("qa-runner")
	}
	sugar = globalLogger.Sugar()
	return nil
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	_ = globalLogger.Sync()
	closeRotatorLocked()
	globalLogger = zap.NewNop()
	sugar = globalLogger.Sugar()
}

func closeRotatorLocked() {
	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}
}

// L returns the structured logger for callers that attach fields.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return globalLogger
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	s := current()
	s.Infof(format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	s := current()
	s.Debugf(format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	s := current()
	s.Errorf(format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	s := current()
	s.Warnf(format, v...)
}

// GetWriter returns the rotating log file for subprocess output, or
// io.Discard when no file is configured.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if rotator != nil {
		return rotator
	}
	return io.Discard
}

func current() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return sugar
}
