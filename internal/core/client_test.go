package core

import (
	"context"
	"errors"
	"testing"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8stesting "k8s.io/client-go/testing"
)

var (
	configMapGVK   = schema.GroupVersionKind{Version: "v1", Kind: "ConfigMap"}
	configMapGVR   = schema.GroupVersionResource{Version: "v1", Resource: "configmaps"}
	namespaceGVK   = schema.GroupVersionKind{Version: "v1", Kind: "Namespace"}
	roleBindingGVK = schema.GroupVersionKind{Group: "rbac.authorization.k8s.io", Version: "v1", Kind: "RoleBinding"}
	roleBindingGVR = schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "rolebindings"}
)

// newTestMapper returns a static mapper covering the kinds the tests use, so
// no discovery round-trips are involved.
func newTestMapper() meta.RESTMapper {
	mapper := meta.NewDefaultRESTMapper(nil)
	mapper.Add(configMapGVK, meta.RESTScopeNamespace)
	mapper.Add(namespaceGVK, meta.RESTScopeRoot)
	mapper.Add(roleBindingGVK, meta.RESTScopeNamespace)
	return mapper
}

func newFakeDynamic(objs ...runtime.Object) *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			configMapGVR:   "ConfigMapList",
			roleBindingGVR: "RoleBindingList",
			{Version: "v1", Resource: "namespaces"}: "NamespaceList",
		},
		objs...,
	)
}

func newConfigMap(namespace, name string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetAPIVersion("v1")
	obj.SetKind("ConfigMap")
	obj.SetNamespace(namespace)
	obj.SetName(name)
	return obj
}

func newTestClient(t *testing.T, objs ...runtime.Object) (*ClusterClient, *dynamicfake.FakeDynamicClient) {
	t.Helper()
	dyn := newFakeDynamic(objs...)
	return newClusterClient(dyn, newTestMapper(), 3, time.Millisecond), dyn
}

func TestClusterClientCreateDefaultsNamespace(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)

	obj := newConfigMap("", "settings")
	created, err := client.Create(context.Background(), "test-ns", obj)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := created.GetNamespace(); got != "test-ns" {
		t.Errorf("created namespace = %q, want %q", got, "test-ns")
	}
	if got := obj.GetNamespace(); got != "" {
		t.Errorf("input object was mutated: namespace = %q, want empty", got)
	}
}

func TestClusterClientCreateKeepsExplicitNamespace(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)

	created, err := client.Create(context.Background(), "test-ns", newConfigMap("other-ns", "settings"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := created.GetNamespace(); got != "other-ns" {
		t.Errorf("created namespace = %q, want %q", got, "other-ns")
	}
}

func TestClusterClientCreateMissingKind(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)

	obj := &unstructured.Unstructured{}
	obj.SetAPIVersion("v1")
	obj.SetName("nameless")

	_, err := client.Create(context.Background(), "test-ns", obj)
	if !errors.Is(err, ErrMissingKind) {
		t.Errorf("Create() error = %v, want ErrMissingKind", err)
	}
}

func TestClusterClientDeleteIdempotent(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)

	err := client.Delete(context.Background(), configMapGVK, "test-ns", "never-existed")
	if err != nil {
		t.Errorf("Delete() of absent object error = %v, want nil", err)
	}
}

func TestClusterClientRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	client, dyn := newTestClient(t)

	var calls int
	dyn.PrependReactor("create", "configmaps", func(action k8stesting.Action) (bool, runtime.Object, error) {
		calls++
		if calls <= 2 {
			return true, nil, apierrors.NewInternalError(errors.New("etcd hiccup"))
		}
		return false, nil, nil
	})

	_, err := client.Create(context.Background(), "test-ns", newConfigMap("", "settings"))
	if err != nil {
		t.Fatalf("Create() error = %v, want success after retries", err)
	}
	if calls != 3 {
		t.Errorf("create attempts = %d, want 3", calls)
	}
}

func TestClusterClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	client, dyn := newTestClient(t)

	var calls int
	dyn.PrependReactor("create", "configmaps", func(action k8stesting.Action) (bool, runtime.Object, error) {
		calls++
		return true, nil, apierrors.NewBadRequest("malformed spec")
	})

	_, err := client.Create(context.Background(), "test-ns", newConfigMap("", "settings"))
	if !apierrors.IsBadRequest(err) {
		t.Errorf("Create() error = %v, want BadRequest", err)
	}
	if calls != 1 {
		t.Errorf("create attempts = %d, want 1 (no retry on 4xx)", calls)
	}
}

func TestClusterClientRetryExhaustionSurfacesLastError(t *testing.T) {
	t.Parallel()

	client, dyn := newTestClient(t)

	dyn.PrependReactor("get", "configmaps", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewServiceUnavailable("overloaded")
	})

	_, err := client.Get(context.Background(), configMapGVK, "test-ns", "settings")
	if !apierrors.IsServiceUnavailable(err) {
		t.Errorf("Get() error = %v, want the last ServiceUnavailable error", err)
	}
}

func TestClusterClientGetPreservesNotFound(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)

	_, err := client.Get(context.Background(), configMapGVK, "test-ns", "missing")
	if !apierrors.IsNotFound(err) {
		t.Errorf("Get() error = %v, want NotFound", err)
	}
}

func TestClusterClientListFiltersBySelector(t *testing.T) {
	t.Parallel()

	tagged := newConfigMap("test-ns", "tagged")
	tagged.SetLabels(map[string]string{"app": "demo"})
	client, _ := newTestClient(t, tagged, newConfigMap("test-ns", "plain"))

	items, err := client.List(context.Background(), configMapGVK, "test-ns", "app=demo")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 1 || items[0].GetName() != "tagged" {
		t.Errorf("List() = %d items, want exactly the labeled one", len(items))
	}
}

func TestClusterClientUnknownKind(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)

	gvk := schema.GroupVersionKind{Group: "example.com", Version: "v1", Kind: "Widget"}
	if _, err := client.Get(context.Background(), gvk, "test-ns", "w"); err == nil {
		t.Error("Get() with unmapped kind succeeded, want error")
	}
}

func TestIsTransientAPIError(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want bool
	}{
		"internal error":      {apierrors.NewInternalError(errors.New("boom")), true},
		"service unavailable": {apierrors.NewServiceUnavailable("down"), true},
		"too many requests":   {apierrors.NewTooManyRequestsError("slow down"), true},
		"timeout":             {apierrors.NewTimeoutError("slow", 1), true},
		"not found":           {apierrors.NewNotFound(schema.GroupResource{Resource: "configmaps"}, "x"), false},
		"bad request":         {apierrors.NewBadRequest("nope"), false},
		"plain error":         {errors.New("not an API error"), false},
		"nil":                 {nil, false},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := isTransientAPIError(tc.err); got != tc.want {
				t.Errorf("isTransientAPIError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
