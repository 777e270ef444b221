package kubeharness

import (
	"log/slog"

	"github.com/giantswarm/kubeharness/internal/core"
)

// SetLogger replaces the package-level logger used by kubeharness.
// This allows test suites to integrate kubeharness logging with their own
// logging infrastructure. The provided logger should already have any
// desired attributes; kubeharness will not add additional attributes.
//
// If l is nil, the logger resets to the default: slog.Default() with
// "component" attribute, re-derived on the next use and then cached. Call
// SetLogger(nil) after slog.SetDefault() to pick up changes.
//
// Thread safety: SetLogger is safe to call concurrently with other
// kubeharness operations. Both the custom logger and the cached default are
// stored as atomic pointers, so loads and stores are data-race-free. For a
// strict happens-before guarantee, call SetLogger before starting goroutines
// that use the library (e.g., in TestMain before m.Run).
//
// Example:
//
//	kubeharness.SetLogger(myLogger.With("component", "kubeharness"))
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}

// SetLogLevel adjusts the minimum level of the default logger. It has no
// effect on loggers installed via SetLogger, which carry their own handler
// configuration. Typically driven by the kube-log-level flag (see
// RegisterFlags).
func SetLogLevel(level slog.Level) {
	core.SetLogLevel(level)
}
