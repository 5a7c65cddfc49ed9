// Package obslog centralizes zap logger construction the way the rest
// of the corpus does it (talent-plan-tinykv wires go.uber.org/zap through
// its storage and raft layers the same way: one constructor, passed down
// by value/pointer, never a package-level global). entremets's explorer
// and CLI both take a *zap.Logger so progress and error fields stay
// structured instead of going through fmt.Println, generalizing the
// teacher's own debug()/DEBUG-flag global into something injectable.
package obslog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console logger. debug widens the level to Debug (mapping
// to the teacher's `--debug` convention in mvcc/utils.go); otherwise
// only Info and above are emitted.
func New(debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = !debug
	cfg.EncoderConfig.TimeKey = ""

	logger, err := cfg.Build()
	if err != nil {
		// Building a console encoder config cannot fail in practice;
		// falling back to a no-op logger keeps the CLI usable instead
		// of panicking over a logging subsystem.
		return zap.NewNop()
	}
	return logger
}

// Noop returns a logger that discards everything, used by tests that
// don't want exploration progress on stderr.
func Noop() *zap.Logger {
	return zap.NewNop()
}
