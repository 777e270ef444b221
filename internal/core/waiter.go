package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/watch"
)

// WaitConfig configures a single condition wait. The zero value is not
// usable; callers start from a Harness's defaults and adjust via WaitOption.
type WaitConfig struct {
	// Interval is the spacing between refresh attempts when polling.
	Interval time.Duration

	// Timeout is the total wall-clock budget for the wait.
	Timeout time.Duration

	// OnTimeout selects what happens when Timeout elapses first.
	OnTimeout TimeoutPolicy

	// UseWatch evaluates the predicate on delivered change events instead of
	// polling, trading protocol complexity for responsiveness. If the watch
	// stream terminates unexpectedly (e.g. resourceVersion too old), the
	// wait falls back to polling for the remaining budget.
	UseWatch bool
}

// Validate checks all WaitConfig invariants.
func (c WaitConfig) Validate() error {
	var errs []error

	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("wait interval must be greater than 0, got %s", c.Interval))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("wait timeout must be greater than 0, got %s", c.Timeout))
	}
	if !c.OnTimeout.IsValid() {
		errs = append(errs, fmt.Errorf("invalid timeout policy: %v", c.OnTimeout))
	}

	return errors.Join(errs...)
}

// WaitOption adjusts a single condition wait relative to the harness
// defaults.
type WaitOption func(*WaitConfig)

// WithWaitTimeout sets the total wall-clock budget for one wait.
// Panics if d <= 0.
func WithWaitTimeout(d time.Duration) WaitOption {
	if d <= 0 {
		panic(fmt.Sprintf("kubeharness: wait timeout must be greater than 0, got %v", d))
	}
	return func(c *WaitConfig) { c.Timeout = d }
}

// WithWaitInterval sets the spacing between refresh attempts for one wait.
// Panics if d <= 0.
func WithWaitInterval(d time.Duration) WaitOption {
	if d <= 0 {
		panic(fmt.Sprintf("kubeharness: wait interval must be greater than 0, got %v", d))
	}
	return func(c *WaitConfig) { c.Interval = d }
}

// WithTimeoutPolicy sets what a timed-out wait returns.
// Panics if p is not a recognized policy.
func WithTimeoutPolicy(p TimeoutPolicy) WaitOption {
	if !p.IsValid() {
		panic(fmt.Sprintf("kubeharness: invalid timeout policy: %v", p))
	}
	return func(c *WaitConfig) { c.OnTimeout = p }
}

// WithWatch makes one wait event-driven instead of polling, with automatic
// fallback to polling if the watch stream fails.
func WithWatch() WaitOption {
	return func(c *WaitConfig) { c.UseWatch = true }
}

// TimeoutError reports that a condition never became true within its budget.
// It carries the last observed state of the resource for diagnostics.
//
// TimeoutError unwraps to context.DeadlineExceeded, so callers that only care
// about "did it time out" can use errors.Is without referencing this type.
type TimeoutError struct {
	Kind      string
	Namespace string
	Name      string
	Timeout   time.Duration

	// LastObserved is the resource state at the final refresh before the
	// budget elapsed. Nil if the resource was never observed at all.
	LastObserved *unstructured.Unstructured
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("condition not met within %s for %s %s/%s", e.Timeout, e.Kind, e.Namespace, e.Name)
}

// Unwrap makes errors.Is(err, context.DeadlineExceeded) match.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// WaitFor blocks until pred is true for h, the budget elapses, or ctx is
// cancelled. The handle is refreshed before every evaluation; an immediate
// initial evaluation means a predicate matching the current state returns
// within one interval. A NotFound during refresh counts as not-ready rather
// than an error, so WaitFor doubles as a wait-until-created primitive.
//
// Cancellation of ctx releases the wait promptly; no background work outlives
// the call.
func WaitFor(ctx context.Context, h *Handle, pred Predicate, cfg WaitConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("wait config: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if cfg.UseWatch {
		done, err := watchUntil(waitCtx, h, pred)
		if done {
			return err
		}
		// Watch stream terminated without a verdict: fall back to polling
		// for whatever budget remains.
		Logger().Debug("watch stream ended, falling back to polling",
			"kind", h.Kind(), "namespace", h.Namespace(), "name", h.Name())
	}

	return pollUntil(ctx, waitCtx, h, pred, cfg)
}

// WaitUntilDeleted blocks until the object behind h no longer exists. The
// OnTimeout policy applies as in WaitFor.
func WaitUntilDeleted(ctx context.Context, h *Handle, cfg WaitConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("wait config: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		err := h.Refresh(waitCtx)
		if apierrors.IsNotFound(err) {
			return nil
		}
		if err != nil && waitCtx.Err() == nil {
			return err
		}

		select {
		case <-waitCtx.Done():
			return timeoutResult(ctx, h, cfg)
		case <-ticker.C:
		}
	}
}

// pollUntil is the always-correct baseline wait loop: refresh, evaluate,
// sleep one interval, repeat.
func pollUntil(parent, waitCtx context.Context, h *Handle, pred Predicate, cfg WaitConfig) error {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		ok, err := evaluateOnce(waitCtx, h, pred)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-waitCtx.Done():
			return timeoutResult(parent, h, cfg)
		case <-ticker.C:
		}
	}
}

// evaluateOnce refreshes h and evaluates pred. NotFound maps to not-ready.
// Errors caused by the wait deadline itself are suppressed so the caller's
// timeout handling decides the outcome.
func evaluateOnce(ctx context.Context, h *Handle, pred Predicate) (bool, error) {
	if err := h.Refresh(ctx); err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil // doesn't exist yet
		}
		if ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}
	return pred(h.observed)
}

// watchUntil consumes change events for h's object and evaluates pred on
// each. Returns done=true with the final verdict, or done=false when the
// stream terminated without one (caller falls back to polling).
func watchUntil(ctx context.Context, h *Handle, pred Predicate) (bool, error) {
	// Initial refresh + evaluation both obtains the resourceVersion to watch
	// from and covers predicates already true before the stream opens.
	ok, err := evaluateOnce(ctx, h, pred)
	if err != nil {
		return true, err
	}
	if ok {
		return true, nil
	}

	w, err := h.client.Watch(ctx, h.gvk, h.namespace, h.name, h.observed.GetResourceVersion())
	if err != nil {
		Logger().Debug("watch setup failed, falling back to polling", "error", err)
		return false, nil
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case ev, open := <-w.ResultChan():
			if !open {
				return false, nil
			}
			switch ev.Type {
			case watch.Error:
				// Includes "resourceVersion too old"; the polling fallback
				// re-reads current state and continues correctly.
				return false, nil
			case watch.Deleted:
				// Not an error here: the predicate may be waiting on a state
				// only reachable through re-creation. Keep the last state.
				continue
			case watch.Added, watch.Modified, watch.Bookmark:
				obj, isUnstructured := ev.Object.(*unstructured.Unstructured)
				if !isUnstructured || obj.GetName() != h.name {
					continue
				}
				h.setObserved(obj)
				ok, err := pred(obj)
				if err != nil {
					return true, err
				}
				if ok {
					return true, nil
				}
			}
		}
	}
}

// timeoutResult converts an elapsed wait budget into the configured outcome.
// Cancellation of the parent context (the test's own deadline) is reported
// as-is so teardown starts immediately instead of dressing up as a condition
// timeout.
func timeoutResult(parent context.Context, h *Handle, cfg WaitConfig) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if cfg.OnTimeout == TimeoutReturnLast {
		Logger().Warn("condition wait timed out, returning last observed state",
			"kind", h.Kind(), "namespace", h.Namespace(), "name", h.Name(), "timeout", cfg.Timeout)
		return nil
	}
	return &TimeoutError{
		Kind:         h.Kind(),
		Namespace:    h.Namespace(),
		Name:         h.Name(),
		Timeout:      cfg.Timeout,
		LastObserved: h.Observed(),
	}
}
