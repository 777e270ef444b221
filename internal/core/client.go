package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/kubeharness/internal/manifest"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
)

// Manifest sentinels are re-exported so the public API imports only from
// core, preserving the layering: public API, then core, then manifest.
const (
	ErrMissingKind      = manifest.ErrMissingKind
	ErrNoYAMLFiles      = manifest.ErrNoYAMLFiles
	ErrTooManyYAMLFiles = manifest.ErrTooManyYAMLFiles
)

// retryBackoffCap bounds a single backoff delay regardless of how many
// attempts are configured, so a high attempt count does not produce
// multi-minute sleeps between the last retries.
const retryBackoffCap = 10 * time.Second

// ClusterClient is a thin authenticated adapter to the cluster API. It issues
// create, get, list, delete, and watch calls for arbitrary resource kinds via
// the dynamic client, resolving kinds to REST resources through a RESTMapper.
//
// Transient API errors (server timeouts, 5xx, throttling) are retried with
// bounded exponential backoff; other errors surface immediately. The client
// holds no per-resource state and is safe for concurrent read-only sharing
// across tests.
type ClusterClient struct {
	dyn     dynamic.Interface
	mapper  meta.RESTMapper
	backoff wait.Backoff
	log     *slog.Logger
}

// NewClusterClient builds a ClusterClient from a rest.Config. Kind-to-resource
// mapping uses API discovery with an in-memory cache; the deferred mapper
// re-discovers on unknown kinds, so CRDs registered after construction
// resolve without rebuilding the client.
func NewClusterClient(restCfg *rest.Config, attempts int, baseDelay time.Duration) (*ClusterClient, error) {
	dyn, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}

	disc, err := discovery.NewDiscoveryClientForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create discovery client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(disc))

	return newClusterClient(dyn, mapper, attempts, baseDelay), nil
}

// newClusterClient wires a ClusterClient from pre-built components. Tests use
// this to inject fake dynamic clients and static REST mappers.
func newClusterClient(dyn dynamic.Interface, mapper meta.RESTMapper, attempts int, baseDelay time.Duration) *ClusterClient {
	return &ClusterClient{
		dyn:    dyn,
		mapper: mapper,
		backoff: wait.Backoff{
			Duration: baseDelay,
			Factor:   2.0,
			Jitter:   0.1,
			Steps:    attempts,
			Cap:      retryBackoffCap,
		},
		log: Logger(),
	}
}

// resourceFor resolves a GroupVersionKind to a namespaced (or cluster-scoped)
// dynamic resource interface.
func (c *ClusterClient) resourceFor(gvk schema.GroupVersionKind, namespace string) (dynamic.ResourceInterface, error) {
	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return nil, fmt.Errorf("map kind %s: %w", gvk, err)
	}
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		return c.dyn.Resource(mapping.Resource).Namespace(namespace), nil
	}
	return c.dyn.Resource(mapping.Resource), nil
}

// Create submits obj to the cluster under the given namespace and returns the
// server's view of the created object. Namespaced objects without an explicit
// namespace are placed into namespace; an object that already carries a
// different namespace is left alone (the server rejects cross-namespace
// creates, surfacing the mistake instead of papering over it).
//
// Returns ErrMissingKind if obj carries no kind.
func (c *ClusterClient) Create(ctx context.Context, namespace string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	gvk := obj.GroupVersionKind()
	if gvk.Kind == "" {
		return nil, fmt.Errorf("create object %q: %w", obj.GetName(), ErrMissingKind)
	}

	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return nil, err
	}
	if obj.GetNamespace() == "" {
		obj = obj.DeepCopy()
		obj.SetNamespace(namespace)
	}

	var created *unstructured.Unstructured
	err = c.withRetry(ctx, "create", func(ctx context.Context) error {
		var createErr error
		created, createErr = res.Create(ctx, obj, metav1.CreateOptions{})
		return createErr
	})
	if err != nil {
		return nil, fmt.Errorf("create %s %q: %w", gvk.Kind, obj.GetName(), err)
	}
	return created, nil
}

// Get fetches the live state of one object. NotFound is returned to the
// caller unmodified so that errors.Is(err, ...) and apierrors.IsNotFound
// classification keep working; it is never retried.
func (c *ClusterClient) Get(ctx context.Context, gvk schema.GroupVersionKind, namespace, name string) (*unstructured.Unstructured, error) {
	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return nil, err
	}

	var obj *unstructured.Unstructured
	err = c.withRetry(ctx, "get", func(ctx context.Context) error {
		var getErr error
		obj, getErr = res.Get(ctx, name, metav1.GetOptions{})
		return getErr
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Delete removes one object. Deletion is idempotent: a NotFound response
// counts as success. A zero grace period is requested so teardown does not
// wait out termination grace of long-running pods.
func (c *ClusterClient) Delete(ctx context.Context, gvk schema.GroupVersionKind, namespace, name string) error {
	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return err
	}

	zero := int64(0)
	err = c.withRetry(ctx, "delete", func(ctx context.Context) error {
		return res.Delete(ctx, name, metav1.DeleteOptions{GracePeriodSeconds: &zero})
	})
	if apierrors.IsNotFound(err) {
		return nil // already gone
	}
	if err != nil {
		return fmt.Errorf("delete %s %s/%s: %w", gvk.Kind, namespace, name, err)
	}
	return nil
}

// List returns the live state of all objects of a kind in a namespace,
// optionally filtered by a label selector (empty selector matches all).
func (c *ClusterClient) List(ctx context.Context, gvk schema.GroupVersionKind, namespace, labelSelector string) ([]unstructured.Unstructured, error) {
	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return nil, err
	}

	var list *unstructured.UnstructuredList
	err = c.withRetry(ctx, "list", func(ctx context.Context) error {
		var listErr error
		list, listErr = res.List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("list %s in %s: %w", gvk.Kind, namespace, err)
	}
	return list.Items, nil
}

// Watch opens a change-event stream for a single named object, starting from
// resourceVersion. The stream lives until the server closes it or the caller
// stops it; restarts after expiry are the waiter's job (it falls back to
// polling), so Watch itself does no retrying.
func (c *ClusterClient) Watch(ctx context.Context, gvk schema.GroupVersionKind, namespace, name, resourceVersion string) (watch.Interface, error) {
	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return nil, err
	}

	w, err := res.Watch(ctx, metav1.ListOptions{
		FieldSelector:   fields.OneTermEqualSelector("metadata.name", name).String(),
		ResourceVersion: resourceVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s %s/%s: %w", gvk.Kind, namespace, name, err)
	}
	return w, nil
}

// withRetry runs fn, retrying with exponential backoff while it fails with a
// transient API error, up to the configured attempt count. Non-transient
// errors stop the retry loop immediately. When attempts are exhausted the
// last transient error is surfaced, not the generic wait timeout.
func (c *ClusterClient) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	err := wait.ExponentialBackoffWithContext(ctx, c.backoff, func(ctx context.Context) (bool, error) {
		lastErr = fn(ctx)
		if lastErr == nil {
			return true, nil
		}
		if isTransientAPIError(lastErr) {
			c.log.Debug("transient API error, will retry", "op", op, "error", lastErr)
			return false, nil
		}
		return false, lastErr
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

// isTransientAPIError reports whether err is worth retrying: server-side
// congestion or outage signals rather than a caller mistake. 4xx responses
// (other than 429) are never transient.
func isTransientAPIError(err error) bool {
	return apierrors.IsServerTimeout(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsInternalError(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsUnexpectedServerError(err)
}
