package kubeharness

import (
	"fmt"
	"time"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("kubeharness: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("kubeharness: %s must not be empty", name))
	}
}

// Option configures a Harness during construction via NewHarness.
// Each With* function returns an Option that sets a specific field.
//
// Several With* functions panic on invalid input (empty paths, non-positive
// durations). These panics are intentional: option values are typically
// compile-time constants or package-level variables, so an invalid value
// indicates a programmer error rather than a runtime condition. The pattern
// mirrors [regexp.MustCompile]: fail fast during initialization instead of
// returning errors that would be universally fatal anyway.
type Option func(*harnessConfig)

// WithKubeconfig sets the path to the cluster credentials file. Without this
// option the conventional resolution applies: the KUBECONFIG environment
// variable, then ~/.kube/config.
//
// Panics if path is empty.
func WithKubeconfig(path string) Option {
	requireNonEmpty("kubeconfig path", path)
	return func(c *harnessConfig) {
		c.Kubeconfig = path
	}
}

// WithKubeContext selects a kubeconfig context instead of the file's current
// context.
//
// Panics if name is empty.
func WithKubeContext(name string) Option {
	requireNonEmpty("kube context", name)
	return func(c *harnessConfig) {
		c.Context = name
	}
}

// WithNamespacePrefix sets the prefix for generated test namespace names.
// The prefix must be a valid DNS label fragment; it is combined with a
// unique suffix and the sanitized test name.
//
// Default: "kubeharness".
//
// Panics if prefix is empty.
func WithNamespacePrefix(prefix string) Option {
	requireNonEmpty("namespace prefix", prefix)
	return func(c *harnessConfig) {
		c.NamespacePrefix = prefix
	}
}

// WithDefaultWaitInterval sets the default spacing between refresh attempts
// during condition waits. Individual waits override it via WithWaitInterval.
//
// Default: 1 second.
//
// Panics if d <= 0.
func WithDefaultWaitInterval(d time.Duration) Option {
	requirePositive("wait interval", d)
	return func(c *harnessConfig) {
		c.WaitInterval = d
	}
}

// WithDefaultWaitTimeout sets the default total wall-clock budget for a
// condition wait. Individual waits override it via WithWaitTimeout.
//
// Default: 60 seconds.
//
// Panics if d <= 0.
func WithDefaultWaitTimeout(d time.Duration) Option {
	requirePositive("wait timeout", d)
	return func(c *harnessConfig) {
		c.WaitTimeout = d
	}
}

// WithDefaultTimeoutPolicy sets the default policy applied when a condition
// wait times out. Individual waits override it via WithTimeoutPolicy.
//
// Default: TimeoutFail.
//
// Panics if p is not a recognized policy.
func WithDefaultTimeoutPolicy(p TimeoutPolicy) Option {
	if !p.IsValid() {
		panic(fmt.Sprintf("kubeharness: invalid timeout policy: %v", p))
	}
	return func(c *harnessConfig) {
		c.OnTimeout = p
	}
}

// WithNamespaceReadyTimeout bounds how long test setup waits for a freshly
// created namespace to report Active before failing the test with
// ErrNamespaceCreation.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithNamespaceReadyTimeout(d time.Duration) Option {
	requirePositive("namespace ready timeout", d)
	return func(c *harnessConfig) {
		c.NamespaceReadyTimeout = d
	}
}

// WithNamespaceDeleteGrace sets how long a released namespace may take to
// finish terminating before the harness records a warning. With
// WithAwaitNamespaceDeletion it also bounds the synchronous wait.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithNamespaceDeleteGrace(d time.Duration) Option {
	requirePositive("namespace delete grace", d)
	return func(c *harnessConfig) {
		c.NamespaceDeleteGrace = d
	}
}

// WithAwaitNamespaceDeletion makes test teardown block until the test
// namespace has fully terminated instead of reclaiming it in the background.
// Stronger isolation between sequential tests at the cost of test latency;
// namespace termination routinely takes seconds even on healthy clusters.
func WithAwaitNamespaceDeletion() Option {
	return func(c *harnessConfig) {
		c.AwaitNamespaceDeletion = true
	}
}

// WithRetryAttempts sets the bounded number of attempts for cluster API
// calls that fail with transient errors. Non-transient errors are never
// retried regardless of this setting.
//
// Default: 5.
//
// Panics if attempts <= 0.
func WithRetryAttempts(attempts int) Option {
	requirePositive("retry attempts", attempts)
	return func(c *harnessConfig) {
		c.RetryAttempts = attempts
	}
}

// WithRetryBaseDelay sets the initial delay of the exponential backoff
// between retry attempts.
//
// Default: 200 milliseconds.
//
// Panics if d <= 0.
func WithRetryBaseDelay(d time.Duration) Option {
	requirePositive("retry base delay", d)
	return func(c *harnessConfig) {
		c.RetryBaseDelay = d
	}
}
