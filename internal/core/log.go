package core

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// logger is the package-level logger used by kubeharness, stored as an atomic
// pointer to allow safe concurrent reads and writes. Named "logger" instead of
// "log" to avoid shadowing the stdlib "log" package.
//
// A nil value means no custom logger has been set; Logger() falls back to a
// cached default.
var logger atomic.Pointer[slog.Logger]

// defaultLogger caches the default logger so it is not re-created on every
// Logger() call. Calling SetLogger(nil) clears this cache, allowing the next
// Logger() call to rebuild it (picking up level changes made via SetLogLevel).
var defaultLogger atomic.Pointer[slog.Logger]

// logLevel is the level enforced by the default logger's handler. It backs
// the --kube-log-level flag: adjusting it takes effect immediately because
// slog.LevelVar is consulted on every log call. Custom loggers installed via
// SetLogger manage their own level and are not affected.
var logLevel slog.LevelVar

// Logger returns the current package-level logger. If no custom logger has
// been set via SetLogger, it returns a cached default writing text output to
// stderr at the level configured via SetLogLevel, with the kubeharness
// component attribute. It is safe to call from multiple goroutines.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := newDefaultLogger()
	// Use CompareAndSwap to avoid overwriting a concurrently cached value.
	// If another goroutine already stored a logger, use theirs.
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	// Re-load the winner's value. If it's nil (e.g., concurrent SetLogger
	// cleared it between our CAS and this load), fall back to our locally
	// created logger so we never return nil.
	if l2 := defaultLogger.Load(); l2 != nil {
		return l2
	}
	return l
}

// newDefaultLogger creates the default logger with the kubeharness component
// attribute. The handler reads logLevel on every record, so later SetLogLevel
// calls affect an already-cached default logger.
func newDefaultLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel})
	return slog.New(h).With("component", "kubeharness")
}

// SetLogger replaces the package-level logger used by kubeharness.
// If l is nil, the logger resets to the default, re-derived on the next
// Logger() call and then cached.
//
// SetLogger is safe to call concurrently with other kubeharness operations.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	// Clear the cached default so the next Logger() call rebuilds it.
	defaultLogger.Store(nil)
}

// SetLogLevel sets the minimum level of the default logger. It has no effect
// on custom loggers installed via SetLogger. Safe for concurrent use.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
