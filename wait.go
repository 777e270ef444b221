package kubeharness

import (
	"time"

	"github.com/giantswarm/kubeharness/internal/core"
)

// Predicate decides, from a resource's observed state, whether the resource
// has reached a condition of interest. Predicates must be pure functions over
// the given document: they must not issue network calls. A non-nil error
// aborts the surrounding wait.
//
// Predicate is a type alias so that the built-in conditions in this package
// and custom predicates written by callers are interchangeable with the
// internal waiter.
type Predicate = core.Predicate

// WaitOption adjusts a single condition wait relative to the harness
// defaults configured via WithDefaultWait*.
type WaitOption = core.WaitOption

// TimeoutError reports that a condition never became true within its budget.
// It carries the last observed state of the resource for diagnostics.
//
// TimeoutError unwraps to [context.DeadlineExceeded], so callers that only
// care about "did it time out" can use errors.Is without referencing this
// type.
type TimeoutError = core.TimeoutError

// WithWaitTimeout sets the total wall-clock budget for one wait.
// Panics if d <= 0.
func WithWaitTimeout(d time.Duration) WaitOption {
	return core.WithWaitTimeout(d)
}

// WithWaitInterval sets the spacing between refresh attempts for one wait.
// Panics if d <= 0.
func WithWaitInterval(d time.Duration) WaitOption {
	return core.WithWaitInterval(d)
}

// WithTimeoutPolicy sets what one timed-out wait returns.
// Panics if p is not a recognized policy.
func WithTimeoutPolicy(p TimeoutPolicy) WaitOption {
	return core.WithTimeoutPolicy(p)
}

// WithWatch makes one wait event-driven instead of polling: the predicate is
// evaluated on delivered change events, detecting transitions without
// interval latency. If the watch stream terminates unexpectedly the wait
// falls back to polling for the remaining budget.
func WithWatch() WaitOption {
	return core.WithWatch()
}
