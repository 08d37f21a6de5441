// Package logging builds the session logger and mirrors its entries into
// the activity log.
package logging

import (
	"fmt"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"presale/pkg/models"
)

// Sink receives every entry at or above the activity level.
type Sink func(models.LogEntry)

// Options configures New.
type Options struct {
	// Path is the log file; empty or "stderr" logs to stderr.
	Path  string
	Level string
	Sink  Sink
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// New builds a JSON logger. Entries at info and above are also passed to
// opts.Sink.
func New(opts Options) (*zap.Logger, error) {
	path := opts.Path
	if path == "" {
		path = "stderr"
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return WithSink(logger, opts.Sink), nil
}

// WithSink attaches the activity hook to an existing logger.
func WithSink(logger *zap.Logger, sink Sink) *zap.Logger {
	if sink == nil {
		return logger
	}
	return logger.WithOptions(zap.Hooks(func(e zapcore.Entry) error {
		if e.Level < zapcore.InfoLevel {
			return nil
		}
		sink(models.LogEntry{Time: e.Time, Level: e.Level.String(), Message: e.Message})
		return nil
	}))
}

// Recover logs a panic in the calling goroutine instead of crashing the
// session. Use as: defer logging.Recover(logger, "where").
func Recover(logger *zap.Logger, where string) {
	if r := recover(); r != nil {
		logger.Error(fmt.Sprintf("Unexpected error in %s: %v", where, r),
			zap.String("where", where),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}
