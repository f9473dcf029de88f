// Package gclog provides structured logging for the remembered-set and
// refinement subsystem, mirroring the GC log verbosity levels a host
// collector would route messages to (info for phase transitions, debug
// for per-pause statistics).
package gclog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}

	logger = l
}

// Set installs a logger, returning the previous one so callers (tests,
// the cmd entry point) can restore or swap configuration.
func Set(l *zap.Logger) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	prev := logger
	logger = l

	return prev
}

func get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()

	return logger
}

// Named returns a child logger scoped to a subsystem, e.g. "refine" or
// "scanroots".
func Named(name string) *zap.Logger {
	return get().Named(name)
}

func Debug(msg string, fields ...zap.Field) { get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { get().Error(msg, fields...) }

// Sync flushes any buffered log entries; call on process shutdown.
func Sync() error {
	return get().Sync()
}
