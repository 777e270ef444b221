package kubeharness

import "time"

// Default configuration values for NewHarness.
// These constants are exported so callers can reference the defaults
// when building custom configurations relative to them (e.g.,
// 2 * DefaultWaitTimeout).
const (
	// DefaultNamespacePrefix is the prefix for generated test namespace
	// names. Generated names have the form
	// <prefix>-<unique>-<timestamp>-<test name>.
	DefaultNamespacePrefix = "kubeharness"

	// DefaultWaitInterval is the spacing between refresh attempts during
	// condition waits. One second keeps API server load negligible while
	// detecting readiness transitions promptly.
	DefaultWaitInterval = 1 * time.Second

	// DefaultWaitTimeout is the total wall-clock budget for a condition
	// wait. Image pulls and rollouts on loaded clusters routinely take tens
	// of seconds; raise it per wait via WithWaitTimeout where needed.
	DefaultWaitTimeout = 60 * time.Second

	// DefaultTimeoutPolicy makes a timed-out condition wait fail with a
	// *TimeoutError carrying the last observed resource state.
	DefaultTimeoutPolicy = TimeoutFail

	// DefaultNamespaceReadyTimeout bounds how long test setup waits for a
	// freshly created namespace to report Active.
	DefaultNamespaceReadyTimeout = 30 * time.Second

	// DefaultNamespaceDeleteGrace is how long a released namespace may take
	// to finish terminating before the harness records a warning. Namespace
	// deletion is asynchronous; teardown does not block on it by default
	// (see WithAwaitNamespaceDeletion).
	DefaultNamespaceDeleteGrace = 30 * time.Second

	// DefaultRetryAttempts is the bounded number of attempts for cluster
	// API calls that fail with transient errors (server timeouts, 5xx,
	// throttling).
	DefaultRetryAttempts = 5

	// DefaultRetryBaseDelay is the initial delay of the exponential backoff
	// between retry attempts.
	DefaultRetryBaseDelay = 200 * time.Millisecond
)
