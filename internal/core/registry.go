package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/giantswarm/kubeharness/internal/sentinel"
	"github.com/hashicorp/go-multierror"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// ErrRegistryClosed is returned by Create once Teardown has begun. Creating
// resources after teardown is a programming error in the test.
const ErrRegistryClosed = sentinel.Error("registry is closed to new resources")

// ErrDuplicateIdentity is returned by Create when the object's
// kind/namespace/name matches a handle whose deletion was already requested
// within the same test. Re-creating a deleted identity inside one test breaks
// teardown bookkeeping.
const ErrDuplicateIdentity = sentinel.Error("resource identity was already deleted in this test")

// registryState represents the lifecycle state of a Registry.
type registryState uint32

const (
	registryOpen    registryState = iota // accepting creates
	registryClosing                      // teardown in progress
	registryClosed                       // all deletes attempted
)

// Registry tracks every resource created during one test, in creation order,
// and guarantees teardown in strict reverse order.
//
// A Registry is owned by a single test goroutine; creation and teardown are
// never called concurrently. The state field is still atomic so that a
// misbehaving concurrent Create observes Closing reliably instead of racing
// the handle slice.
type Registry struct {
	client    *ClusterClient
	namespace string
	log       *slog.Logger

	state atomic.Uint32 // registryState

	// handles holds every created resource in creation order. Teardown
	// walks it backwards.
	handles []*Handle

	// deleted records identities whose deletion has been requested, to
	// enforce the no-re-creation invariant.
	deleted map[handleIdentity]struct{}
}

// NewRegistry creates an open Registry allocating into namespace.
func NewRegistry(client *ClusterClient, namespace string, log *slog.Logger) *Registry {
	return &Registry{
		client:    client,
		namespace: namespace,
		log:       log,
		deleted:   make(map[handleIdentity]struct{}),
	}
}

// loadState returns the current registry lifecycle state.
func (r *Registry) loadState() registryState {
	return registryState(r.state.Load())
}

// Namespace returns the namespace this registry allocates into.
func (r *Registry) Namespace() string { return r.namespace }

// Len returns the number of tracked handles.
func (r *Registry) Len() int { return len(r.handles) }

// Handles returns the tracked handles in creation order. The slice is a
// copy; the handles are not.
func (r *Registry) Handles() []*Handle {
	out := make([]*Handle, len(r.handles))
	copy(out, r.handles)
	return out
}

// Create submits obj into the registry's namespace, tracks the created object
// and returns its Handle. It returns immediately after the create call —
// readiness is opt-in via the waiter.
//
// Returns ErrRegistryClosed once Teardown has begun, and ErrDuplicateIdentity
// when re-creating an identity that was already deleted within this test.
func (r *Registry) Create(ctx context.Context, obj *unstructured.Unstructured) (*Handle, error) {
	if r.loadState() != registryOpen {
		return nil, ErrRegistryClosed
	}

	// The identity is known before the round-trip unless the server
	// generates the name; in that case the post-create identity is recorded
	// below and can never collide with a deleted one.
	if obj.GetName() != "" {
		id := handleIdentity{gvk: obj.GroupVersionKind(), namespace: r.effectiveNamespace(obj), name: obj.GetName()}
		if _, gone := r.deleted[id]; gone {
			return nil, fmt.Errorf("%s: %w", id, ErrDuplicateIdentity)
		}
	}

	created, err := r.client.Create(ctx, r.namespace, obj)
	if err != nil {
		return nil, err
	}

	h := newHandle(r.client, obj, created)
	r.handles = append(r.handles, h)

	r.log.Debug("created resource", "kind", h.Kind(), "namespace", h.Namespace(), "name", h.Name())
	return h, nil
}

// Delete removes one tracked resource ahead of teardown. The handle stays
// tracked (teardown's delete of it is a no-op thanks to delete idempotence)
// and its identity is barred from re-creation for the rest of the test.
func (r *Registry) Delete(ctx context.Context, h *Handle) error {
	if r.loadState() != registryOpen {
		return ErrRegistryClosed
	}

	h.deletionRequested = true
	r.deleted[h.identity()] = struct{}{}

	if err := r.client.Delete(ctx, h.gvk, h.namespace, h.name); err != nil {
		return err
	}
	r.log.Debug("deleted resource", "kind", h.Kind(), "namespace", h.Namespace(), "name", h.Name())
	return nil
}

// Teardown deletes every tracked resource in reverse creation order,
// best-effort: a failed delete is recorded and logged but never stops
// deletion of the remaining resources, so one stuck object cannot leak every
// other object in the test. The aggregated failures are returned so the test
// report can surface leaked resources.
//
// Teardown is idempotent; calls after the first return nil.
func (r *Registry) Teardown(ctx context.Context) error {
	if !r.state.CompareAndSwap(uint32(registryOpen), uint32(registryClosing)) {
		return nil // already closing or closed
	}

	var result *multierror.Error
	for i := len(r.handles) - 1; i >= 0; i-- {
		h := r.handles[i]
		h.deletionRequested = true
		r.deleted[h.identity()] = struct{}{}

		if err := r.client.Delete(ctx, h.gvk, h.namespace, h.name); err != nil {
			r.log.Warn("teardown failed to delete resource",
				"kind", h.Kind(), "namespace", h.Namespace(), "name", h.Name(), "error", err)
			result = multierror.Append(result, err)
		}
	}

	r.state.Store(uint32(registryClosed))
	return result.ErrorOrNil()
}

// effectiveNamespace resolves the namespace an object will land in: its own
// if set, the registry's otherwise.
func (r *Registry) effectiveNamespace(obj *unstructured.Unstructured) string {
	if ns := obj.GetNamespace(); ns != "" {
		return ns
	}
	return r.namespace
}
