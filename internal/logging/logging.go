// Package logging builds the zap logger shared by every flowreader component.
//
// The TUI owns the terminal, so the default sink is a JSON log file. The
// headless watch command logs to stderr with the console encoder instead.
package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Stderr selects standard error as the log sink.
const Stderr = "stderr"

// Options selects the sink, level and encoding of a logger.
type Options struct {
	// File is a path, or Stderr. Empty disables logging.
	File  string
	Level string
	// Format is "json" or "console". Empty picks json for files and console
	// for stderr.
	Format string
}

// New builds a logger and returns a close func that flushes and releases the
// sink.
func New(opts Options) (*zap.Logger, func() error, error) {
	target := strings.TrimSpace(opts.File)
	if target == "" {
		return zap.NewNop(), func() error { return nil }, nil
	}

	level, err := LevelFromString(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}

	var (
		sink   zapcore.WriteSyncer
		closer = func() error { return nil }
		format = strings.TrimSpace(opts.Format)
	)
	if target == Stderr {
		sink = zapcore.Lock(os.Stderr)
		if format == "" {
			format = "console"
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		sink = zapcore.AddSync(file)
		closer = file.Close
	}

	core := zapcore.NewCore(newEncoder(format), sink, level)
	logger := zap.New(core, zap.AddCaller())

	return logger, func() error {
		if err := logger.Sync(); err != nil && !isStdoutSyncError(err) {
			_ = closer()
			return err
		}
		return closer()
	}, nil
}

// LevelFromString parses a level name; empty means info.
func LevelFromString(level string) (zapcore.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// Syncing stdout/stderr returns EINVAL or ENOTTY on Linux.
func isStdoutSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
