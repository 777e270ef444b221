package kubeharness

import (
	"context"
	"sync"
	"time"

	"github.com/giantswarm/kubeharness/internal/core"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Singleton state for NewHarness. The first call creates the harness;
// subsequent calls return the same instance and log a warning.
//
// singletonMu protects both singletonHarness and singletonOnce so that
// resetForTesting (used in tests) is concurrency-safe with NewHarness.
var (
	singletonMu      sync.Mutex
	singletonHarness Harness
	singletonOnce    sync.Once
)

// Compile-time interface satisfaction checks.
var (
	_ Harness     = (*harnessWrapper)(nil)
	_ TestContext = (*testContextWrapper)(nil)
	_ Handle      = (*handleWrapper)(nil)
)

// defaultHarnessConfig returns a harnessConfig populated with all default
// values. Both NewHarness and test helpers use this to avoid duplicating
// the default field assignments.
func defaultHarnessConfig() harnessConfig {
	return harnessConfig{core.Config{
		NamespacePrefix:       DefaultNamespacePrefix,
		WaitInterval:          DefaultWaitInterval,
		WaitTimeout:           DefaultWaitTimeout,
		OnTimeout:             DefaultTimeoutPolicy,
		NamespaceReadyTimeout: DefaultNamespaceReadyTimeout,
		NamespaceDeleteGrace:  DefaultNamespaceDeleteGrace,
		RetryAttempts:         DefaultRetryAttempts,
		RetryBaseDelay:        DefaultRetryBaseDelay,
	}}
}

// resetForTesting resets the singleton state so that the next call to
// NewHarness creates a fresh harness. This follows the Go stdlib pattern
// (e.g., net/http/internal) for enabling test isolation within a single
// binary. It must only be called from tests.
func resetForTesting() {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	singletonHarness = nil
	singletonOnce = sync.Once{}
}

// NewHarness returns the process-level singleton Harness.
//
// The first call creates the harness with the given options and stores it.
// Subsequent calls return the same instance; options are ignored and a
// warning is logged. This performs no I/O operations; call Connect before
// NewTest.
//
// The singleton is never reset after Close; callers that need a fresh
// harness must restart the process (or, in tests, use a separate test
// binary).
//
// Panics if any option receives an invalid value. See individual With*
// functions for constraints.
//
//nolint:ireturn // Returns Harness interface by design for testability (mockable).
func NewHarness(opts ...Option) Harness {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	// created is written inside the Do closure and read after Do returns.
	// sync.Once guarantees the closure completes (happens-before) Do
	// returns, so the write is visible here without additional
	// synchronization.
	created := false
	singletonOnce.Do(func() {
		cfg := defaultHarnessConfig()
		for _, opt := range opts {
			opt(&cfg)
		}
		singletonHarness = &harnessWrapper{h: core.NewHarness(cfg.toCoreConfig())}
		created = true
	})
	if !created {
		core.Logger().Warn("NewHarness called more than once; returning existing singleton (options ignored)")
	}
	return singletonHarness
}

// harnessWrapper wraps core.Harness to implement the Harness interface.
// It serves as the concrete singleton implementation returned by NewHarness.
//
// The core.Harness is stored as a named (unexported) field rather than
// embedded to prevent callers from using type assertions to access internal
// methods that are not part of the public Harness interface.
type harnessWrapper struct {
	h *core.Harness
}

// Connect wraps core.Harness.Connect.
func (w *harnessWrapper) Connect(ctx context.Context) error {
	return w.h.Connect(ctx)
}

// Connected wraps core.Harness.Connected.
func (w *harnessWrapper) Connected() bool {
	return w.h.Connected()
}

// NewTest implements Harness.NewTest, returning the TestContext interface.
//
//nolint:ireturn // Returns TestContext interface by design for testability (mockable).
func (w *harnessWrapper) NewTest(ctx context.Context, name string) (TestContext, error) {
	tc, err := w.h.NewTest(ctx, name)
	if err != nil {
		return nil, err
	}
	return &testContextWrapper{tc: tc}, nil
}

// CleanupOrphans wraps core.Harness.CleanupOrphans.
func (w *harnessWrapper) CleanupOrphans(ctx context.Context) ([]string, error) {
	return w.h.CleanupOrphans(ctx)
}

// Close wraps core.Harness.Close.
func (w *harnessWrapper) Close() error {
	return w.h.Close()
}

// testContextWrapper wraps core.TestContext to implement the TestContext
// interface, converting between core handles and the public Handle
// interface at the boundary.
type testContextWrapper struct {
	tc *core.TestContext
}

func (w *testContextWrapper) Name() string { return w.tc.Name() }

func (w *testContextWrapper) Namespace() string { return w.tc.Namespace() }

//nolint:ireturn // Returns Handle interface by design for testability (mockable).
func (w *testContextWrapper) Create(ctx context.Context, obj *unstructured.Unstructured) (Handle, error) {
	h, err := w.tc.Create(ctx, obj)
	if err != nil {
		return nil, err
	}
	return &handleWrapper{h: h}, nil
}

func (w *testContextWrapper) CreateFromYAML(ctx context.Context, path string) ([]Handle, error) {
	handles, err := w.tc.CreateFromYAML(ctx, path)
	return wrapHandles(handles), err
}

func (w *testContextWrapper) CreateFromDir(ctx context.Context, dir string, names ...string) ([]Handle, error) {
	handles, err := w.tc.CreateFromDir(ctx, dir, names...)
	return wrapHandles(handles), err
}

//nolint:ireturn // Returns Handle interface by design for testability (mockable).
func (w *testContextWrapper) CreateRoleBinding(ctx context.Context, roleKind, roleName string, subjects ...rbacv1.Subject) (Handle, error) {
	h, err := w.tc.CreateRoleBinding(ctx, roleKind, roleName, subjects...)
	if err != nil {
		return nil, err
	}
	return &handleWrapper{h: h}, nil
}

func (w *testContextWrapper) List(ctx context.Context, gvk schema.GroupVersionKind, labelSelector string) ([]unstructured.Unstructured, error) {
	return w.tc.List(ctx, gvk, labelSelector)
}

func (w *testContextWrapper) Delete(ctx context.Context, h Handle) error {
	return w.tc.Delete(ctx, unwrapHandle(h))
}

func (w *testContextWrapper) WaitUntil(ctx context.Context, h Handle, pred Predicate, opts ...WaitOption) error {
	return w.tc.WaitUntil(ctx, unwrapHandle(h), pred, opts...)
}

func (w *testContextWrapper) WaitUntilDeleted(ctx context.Context, h Handle, opts ...WaitOption) error {
	return w.tc.WaitUntilDeleted(ctx, unwrapHandle(h), opts...)
}

func (w *testContextWrapper) Teardown(ctx context.Context) error {
	return w.tc.Teardown(ctx)
}

// handleWrapper wraps core.Handle to implement the Handle interface.
type handleWrapper struct {
	h *core.Handle
}

func (w *handleWrapper) Kind() string { return w.h.Kind() }

func (w *handleWrapper) GroupVersionKind() schema.GroupVersionKind { return w.h.GroupVersionKind() }

func (w *handleWrapper) Namespace() string { return w.h.Namespace() }

func (w *handleWrapper) Name() string { return w.h.Name() }

func (w *handleWrapper) CreatedAt() time.Time { return w.h.CreatedAt() }

func (w *handleWrapper) Desired() *unstructured.Unstructured { return w.h.Desired() }

func (w *handleWrapper) Observed() *unstructured.Unstructured { return w.h.Observed() }

func (w *handleWrapper) Refresh(ctx context.Context) error { return w.h.Refresh(ctx) }

func (w *handleWrapper) IsReady(pred Predicate) bool { return w.h.IsReady(pred) }

func wrapHandles(handles []*core.Handle) []Handle {
	out := make([]Handle, len(handles))
	for i, h := range handles {
		out[i] = &handleWrapper{h: h}
	}
	return out
}

// unwrapHandle recovers the core handle behind a public Handle. Handles only
// originate from testContextWrapper, so a foreign implementation is a
// programmer error.
func unwrapHandle(h Handle) *core.Handle {
	hw, ok := h.(*handleWrapper)
	if !ok {
		panic("kubeharness: Handle was not created by this package")
	}
	return hw.h
}
