package core

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Predicate decides, from an object's observed state, whether the object has
// reached a condition of interest. Predicates must be pure functions over the
// given document: they must not issue network calls. A non-nil error aborts
// the surrounding wait.
type Predicate func(obj *unstructured.Unstructured) (bool, error)

// Handle is the in-memory representation of one cluster object created by a
// test. It caches the last observed state of the live object; the cache goes
// stale until the next explicit Refresh call, so wait semantics stay explicit
// and testable — no helper silently re-fetches.
//
// A Handle is owned by the Registry that created it and must only be used
// from the test goroutine that owns the Registry.
type Handle struct {
	client *ClusterClient

	gvk       schema.GroupVersionKind
	namespace string
	name      string

	desired  *unstructured.Unstructured
	observed *unstructured.Unstructured

	createdAt time.Time

	// deletionRequested is set once the owning Registry has issued (or
	// scheduled) deletion. The identity kind/namespace/name must never be
	// re-created within the same test afterwards.
	deletionRequested bool
}

// newHandle records a freshly created object. The server's create response
// seeds the observed state, so predicates can run before the first Refresh.
func newHandle(client *ClusterClient, desired, created *unstructured.Unstructured) *Handle {
	return &Handle{
		client:    client,
		gvk:       created.GroupVersionKind(),
		namespace: created.GetNamespace(),
		name:      created.GetName(),
		desired:   desired.DeepCopy(),
		observed:  created,
		createdAt: time.Now(),
	}
}

// Kind returns the object's kind, e.g. "Deployment".
func (h *Handle) Kind() string { return h.gvk.Kind }

// GroupVersionKind returns the object's full group/version/kind.
func (h *Handle) GroupVersionKind() schema.GroupVersionKind { return h.gvk }

// Namespace returns the namespace the object lives in. Empty for
// cluster-scoped objects.
func (h *Handle) Namespace() string { return h.namespace }

// Name returns the object's name.
func (h *Handle) Name() string { return h.name }

// CreatedAt returns when the harness created the object.
func (h *Handle) CreatedAt() time.Time { return h.createdAt }

// Desired returns a copy of the spec the object was created from.
func (h *Handle) Desired() *unstructured.Unstructured { return h.desired.DeepCopy() }

// Observed returns a copy of the last observed state of the object. The
// document is only as fresh as the last Refresh (or the create response if
// Refresh was never called); mutating it does not affect the cache.
func (h *Handle) Observed() *unstructured.Unstructured { return h.observed.DeepCopy() }

// Refresh re-fetches the live object and replaces the cached observed state.
// Fails with a NotFound error (classifiable via apierrors.IsNotFound) if the
// object no longer exists; the cached state is left untouched in that case.
func (h *Handle) Refresh(ctx context.Context) error {
	obj, err := h.client.Get(ctx, h.gvk, h.namespace, h.name)
	if err != nil {
		return fmt.Errorf("refresh %s %s/%s: %w", h.gvk.Kind, h.namespace, h.name, err)
	}
	h.observed = obj
	return nil
}

// IsReady evaluates pred against the cached observed state. It never triggers
// a network call; call Refresh first for a current answer. A predicate error
// counts as not ready.
func (h *Handle) IsReady(pred Predicate) bool {
	ok, err := pred(h.observed)
	return err == nil && ok
}

// setObserved replaces the cached observed state. Used by the watch-based
// waiter, which receives fresh states as events instead of polling.
func (h *Handle) setObserved(obj *unstructured.Unstructured) {
	h.observed = obj
}

// identity returns the unique identity of the live object this handle tracks.
func (h *Handle) identity() handleIdentity {
	return handleIdentity{gvk: h.gvk, namespace: h.namespace, name: h.name}
}

// handleIdentity uniquely identifies one live object: kind plus namespace
// plus name.
type handleIdentity struct {
	gvk       schema.GroupVersionKind
	namespace string
	name      string
}

// String formats the identity for log output.
func (id handleIdentity) String() string {
	return fmt.Sprintf("%s %s/%s", id.gvk.Kind, id.namespace, id.name)
}
