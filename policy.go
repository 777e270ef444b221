package kubeharness

import "github.com/giantswarm/kubeharness/internal/core"

// TimeoutPolicy controls what a condition wait does when its overall timeout
// elapses before the condition becomes true. See the individual constant
// documentation for the behavior of each policy.
//
// TimeoutPolicy is a type alias (not a named type) so that the underlying
// [core.TimeoutPolicy] methods are part of the public API:
//
//   - IsValid reports whether the value is a recognized policy.
//   - String returns the policy name (implements [fmt.Stringer]).
//
// This is intentional: callers can validate and print policy values without
// the public package needing to redeclare these methods.
type TimeoutPolicy = core.TimeoutPolicy

const (
	// TimeoutFail makes a timed-out wait return a *TimeoutError carrying
	// the last observed state of the resource for diagnosis. This is the
	// default policy.
	TimeoutFail = core.TimeoutFail

	// TimeoutReturnLast makes a timed-out wait return nil, leaving the
	// handle's observed state at whatever the final refresh produced. The
	// caller inspects the handle itself. Useful for tests that assert on
	// intermediate states rather than full readiness.
	TimeoutReturnLast = core.TimeoutReturnLast
)
