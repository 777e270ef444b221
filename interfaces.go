package kubeharness

import (
	"context"
	"time"

	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Harness owns the cluster connection and hands out per-test contexts.
//
// Callers must follow this lifecycle ordering:
//
//	NewHarness → Connect → NewTest (repeatable) → Close
//
// Connect must be called before NewTest. Close is safe to call at any point,
// including before Connect. A single harness is shared by an entire test
// binary; NewTest may be called from parallel tests.
type Harness interface {
	// Connect loads the kubeconfig and builds the cluster clients.
	// Calling Connect on a connected harness is a no-op; calling it on a
	// closed harness returns ErrClosed.
	Connect(ctx context.Context) error

	// Connected reports whether Connect has succeeded.
	Connected() bool

	// NewTest allocates an isolated namespace for the named test and
	// returns the test's workspace. The caller owns the context and must
	// call Teardown when the test finishes, regardless of its outcome.
	//
	// Returns ErrNotConnected before Connect, ErrClosed after Close, and
	// ErrNamespaceCreation when the namespace could not be established.
	NewTest(ctx context.Context, name string) (TestContext, error)

	// CleanupOrphans deletes every harness-owned namespace left behind by
	// earlier runs, identified by the ownership label (see
	// OwnershipLabels). It returns the names it targeted.
	CleanupOrphans(ctx context.Context) ([]string, error)

	// Close shuts the harness down, waiting for background namespace
	// reapers to finish. Safe to call more than once. The harness cannot
	// be reused afterwards.
	Close() error
}

// TestContext is one test's workspace: an isolated namespace, a registry of
// every resource the test creates, and wait helpers preconfigured with the
// harness defaults.
//
// A TestContext is owned by a single test goroutine and is not safe for
// concurrent use. Distinct TestContexts are fully independent and safe to
// use from parallel tests.
type TestContext interface {
	// Name returns the test name this context was created for.
	Name() string

	// Namespace returns the isolated namespace allocated to this test.
	Namespace() string

	// Create creates obj in the test namespace and registers it for
	// teardown. Objects without a namespace are placed in the test
	// namespace; cluster-scoped objects are created as-is but still
	// tracked. Create returns as soon as the API server accepts the
	// object; use WaitUntil for readiness.
	Create(ctx context.Context, obj *unstructured.Unstructured) (Handle, error)

	// CreateFromYAML loads every document in the YAML manifest at path and
	// creates each, in document order. A failed document aborts the call;
	// documents already created stay registered for teardown.
	CreateFromYAML(ctx context.Context, path string) ([]Handle, error)

	// CreateFromDir loads and creates every YAML manifest under dir,
	// lexicographically by path. With names given, only files whose base
	// name matches (extension optional) are loaded.
	CreateFromDir(ctx context.Context, dir string, names ...string) ([]Handle, error)

	// CreateRoleBinding creates a RoleBinding in the test namespace
	// granting roleName (a Role or ClusterRole, selected by roleKind) to
	// the given subjects, registered for teardown like any created
	// resource. With no subjects the role is bound to all users and
	// service accounts.
	CreateRoleBinding(ctx context.Context, roleKind, roleName string, subjects ...rbacv1.Subject) (Handle, error)

	// List returns live objects of the given kind in the test namespace,
	// optionally filtered by a label selector (empty selector matches
	// all).
	List(ctx context.Context, gvk schema.GroupVersionKind, labelSelector string) ([]unstructured.Unstructured, error)

	// Delete deletes h mid-test and unregisters it from teardown. The
	// resource's identity must not be re-created within the same test.
	Delete(ctx context.Context, h Handle) error

	// WaitUntil blocks until pred reports h ready, the wait budget
	// elapses, or ctx is cancelled. Options apply over the harness
	// defaults.
	WaitUntil(ctx context.Context, h Handle, pred Predicate, opts ...WaitOption) error

	// WaitUntilDeleted blocks until the resource behind h no longer exists
	// on the cluster.
	WaitUntilDeleted(ctx context.Context, h Handle, opts ...WaitOption) error

	// Teardown deletes every registered resource in reverse creation order
	// and then releases the test namespace. A failed resource deletion
	// never stops deletion of the rest; all failures are aggregated into
	// the returned error. Safe to call more than once.
	Teardown(ctx context.Context) error
}

// Handle is one cluster resource created by a test. It caches the last
// observed state of the live object; the cache goes stale until the next
// Refresh call, so readiness checks stay explicit and testable.
//
// A Handle must only be used from the test goroutine that owns its
// TestContext.
type Handle interface {
	// Kind returns the resource's kind, e.g. "Deployment".
	Kind() string

	// GroupVersionKind returns the resource's full group/version/kind.
	GroupVersionKind() schema.GroupVersionKind

	// Namespace returns the namespace the resource lives in. Empty for
	// cluster-scoped resources.
	Namespace() string

	// Name returns the resource's name.
	Name() string

	// CreatedAt returns when the harness created the resource.
	CreatedAt() time.Time

	// Desired returns a copy of the spec the resource was created from.
	Desired() *unstructured.Unstructured

	// Observed returns a copy of the last observed state of the resource,
	// as fresh as the last Refresh (or the create response if Refresh was
	// never called).
	Observed() *unstructured.Unstructured

	// Refresh re-fetches the live resource and replaces the cached
	// observed state. Fails with a NotFound error if the resource no
	// longer exists; the cached state is left untouched in that case.
	Refresh(ctx context.Context) error

	// IsReady evaluates pred against the cached observed state without any
	// network call. A predicate error counts as not ready.
	IsReady(pred Predicate) bool
}
