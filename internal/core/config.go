package core

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutPolicy controls what a condition wait does when its overall timeout
// elapses before the predicate becomes true.
type TimeoutPolicy int

const (
	// TimeoutFail makes a timed-out wait return a *TimeoutError carrying the
	// last observed state of the resource for diagnosis. This is the default
	// policy.
	TimeoutFail TimeoutPolicy = iota

	// TimeoutReturnLast makes a timed-out wait return nil, leaving the
	// handle's observed state at whatever the final refresh produced. The
	// caller is expected to inspect the handle itself. Useful for tests that
	// assert on intermediate states rather than full readiness.
	TimeoutReturnLast
)

// IsValid reports whether p is a recognized TimeoutPolicy value.
func (p TimeoutPolicy) IsValid() bool {
	switch p {
	case TimeoutFail, TimeoutReturnLast:
		return true
	default:
		return false
	}
}

// String returns the name of the policy.
func (p TimeoutPolicy) String() string {
	switch p {
	case TimeoutFail:
		return "TimeoutFail"
	case TimeoutReturnLast:
		return "TimeoutReturnLast"
	default:
		return fmt.Sprintf("TimeoutPolicy(%d)", int(p))
	}
}

// Config holds configuration for Harness instances.
//
// Concurrency contract: all fields are immutable after construction via
// NewHarness. TestContext and waiter code read the wait defaults without
// synchronization, relying on this guarantee.
type Config struct {
	// Kubeconfig is the path to the cluster credentials file. Empty means
	// the conventional default resolution applies: the KUBECONFIG
	// environment variable, then ~/.kube/config.
	Kubeconfig string

	// Context is the kubeconfig context to use. Empty means the file's
	// current context.
	Context string

	// NamespacePrefix is the prefix for generated test namespace names.
	// Must be a valid DNS label fragment. Default: "kubeharness".
	NamespacePrefix string

	// WaitInterval is the default spacing between refresh attempts during
	// condition waits. Default: 1 second.
	WaitInterval time.Duration

	// WaitTimeout is the default total wall-clock budget for a condition
	// wait. Default: 60 seconds.
	WaitTimeout time.Duration

	// OnTimeout is the default policy applied when a condition wait times
	// out. Default: TimeoutFail.
	OnTimeout TimeoutPolicy

	// NamespaceReadyTimeout bounds how long namespace acquisition waits for
	// the created namespace to report Active. Default: 30 seconds.
	NamespaceReadyTimeout time.Duration

	// NamespaceDeleteGrace is how long the background reaper watches a
	// released namespace before recording a warning that it never finished
	// terminating. Default: 30 seconds.
	NamespaceDeleteGrace time.Duration

	// AwaitNamespaceDeletion makes namespace release block until the
	// namespace is fully gone instead of reclaiming it in the background.
	// Stronger isolation at the cost of test latency. Default: false.
	AwaitNamespaceDeletion bool

	// RetryAttempts is the bounded number of attempts for cluster API calls
	// that fail with transient errors. Default: 5.
	RetryAttempts int

	// RetryBaseDelay is the initial delay of the exponential backoff between
	// retry attempts. Default: 200 milliseconds.
	RetryBaseDelay time.Duration
}

// Validate checks all Config invariants and returns an error describing every
// violation found. It uses errors.Join to report multiple issues at once,
// allowing callers to fix all problems in a single pass.
//
// Validate is called by NewHarness, which panics on error since invalid
// configuration is a programmer error.
func (c Config) Validate() error {
	var errs []error

	if c.NamespacePrefix == "" {
		errs = append(errs, errors.New("namespace prefix must not be empty"))
	}
	if c.WaitInterval <= 0 {
		errs = append(errs, fmt.Errorf("wait interval must be greater than 0, got %s", c.WaitInterval))
	}
	if c.WaitTimeout <= 0 {
		errs = append(errs, fmt.Errorf("wait timeout must be greater than 0, got %s", c.WaitTimeout))
	}
	if !c.OnTimeout.IsValid() {
		errs = append(errs, fmt.Errorf("invalid timeout policy: %v", c.OnTimeout))
	}
	if c.NamespaceReadyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("namespace ready timeout must be greater than 0, got %s", c.NamespaceReadyTimeout))
	}
	if c.NamespaceDeleteGrace <= 0 {
		errs = append(errs, fmt.Errorf("namespace delete grace must be greater than 0, got %s", c.NamespaceDeleteGrace))
	}
	if c.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry attempts must be greater than 0, got %d", c.RetryAttempts))
	}
	if c.RetryBaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("retry base delay must be greater than 0, got %s", c.RetryBaseDelay))
	}

	return errors.Join(errs...)
}
