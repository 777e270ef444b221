package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/giantswarm/kubeharness/internal/manifest"
	"github.com/hashicorp/go-multierror"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// TestContext is the per-test workspace: one isolated namespace, one
// resource registry, and wait helpers preconfigured with the harness
// defaults. It is not safe for concurrent use by multiple goroutines.
type TestContext struct {
	harness  *Harness
	name     string
	lease    *NamespaceLease
	registry *Registry
	waitCfg  WaitConfig
	log      *slog.Logger
}

// Name returns the test name this context was created for.
func (t *TestContext) Name() string { return t.name }

// Namespace returns the isolated namespace allocated to this test.
func (t *TestContext) Namespace() string { return t.lease.Name() }

// Lease returns the namespace lease backing this context.
func (t *TestContext) Lease() *NamespaceLease { return t.lease }

// Registry returns the context's resource registry.
func (t *TestContext) Registry() *Registry { return t.registry }

// Create creates obj in the test namespace and registers the resulting
// handle for teardown. Objects without a namespace are placed in the test
// namespace; cluster-scoped objects are created as-is but still tracked.
func (t *TestContext) Create(ctx context.Context, obj *unstructured.Unstructured) (*Handle, error) {
	return t.registry.Create(ctx, obj)
}

// CreateFromYAML loads every document in the YAML manifest at path and
// creates each, in document order. Handles are returned in the same order.
// A failed document aborts the call; documents already created stay
// registered for teardown.
func (t *TestContext) CreateFromYAML(ctx context.Context, path string) ([]*Handle, error) {
	objs, err := manifest.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return t.createAll(ctx, objs)
}

// CreateFromDir loads and creates every YAML manifest under dir,
// lexicographically by path. An empty name filter loads everything; with
// names given, only files whose base name matches (extension optional) are
// loaded.
func (t *TestContext) CreateFromDir(ctx context.Context, dir string, names ...string) ([]*Handle, error) {
	objs, err := manifest.LoadDir(dir, names...)
	if err != nil {
		return nil, err
	}
	return t.createAll(ctx, objs)
}

func (t *TestContext) createAll(ctx context.Context, objs []*unstructured.Unstructured) ([]*Handle, error) {
	handles := make([]*Handle, 0, len(objs))
	for _, obj := range objs {
		h, err := t.registry.Create(ctx, obj)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// defaultRoleBindingSubjects grants a bound role to every authenticated
// user, every unauthenticated user, and every service account, matching the
// wide-open policy throwaway test clusters run with.
func defaultRoleBindingSubjects() []rbacv1.Subject {
	return []rbacv1.Subject{
		{APIGroup: rbacv1.GroupName, Kind: "Group", Name: "system:authenticated"},
		{APIGroup: rbacv1.GroupName, Kind: "Group", Name: "system:unauthenticated"},
		{APIGroup: rbacv1.GroupName, Kind: "Group", Name: "system:serviceaccounts"},
	}
}

// CreateRoleBinding creates a RoleBinding in the test namespace granting
// roleName (a Role or ClusterRole, selected by roleKind) to the given
// subjects, registered for teardown like any created resource. With no
// subjects the role is bound to all users and service accounts.
func (t *TestContext) CreateRoleBinding(ctx context.Context, roleKind, roleName string, subjects ...rbacv1.Subject) (*Handle, error) {
	if roleKind != "Role" && roleKind != "ClusterRole" {
		return nil, fmt.Errorf("role kind must be Role or ClusterRole, got %q", roleKind)
	}
	if len(subjects) == 0 {
		subjects = defaultRoleBindingSubjects()
	}

	binding := &rbacv1.RoleBinding{
		TypeMeta: metav1.TypeMeta{
			APIVersion: rbacv1.SchemeGroupVersion.String(),
			Kind:       "RoleBinding",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("kubeharness-%s-%s", strings.ToLower(roleKind), roleName),
			Namespace: t.lease.Name(),
		},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     roleKind,
			Name:     roleName,
		},
		Subjects: subjects,
	}

	raw, err := runtime.DefaultUnstructuredConverter.ToUnstructured(binding)
	if err != nil {
		return nil, fmt.Errorf("convert role binding: %w", err)
	}
	return t.registry.Create(ctx, &unstructured.Unstructured{Object: raw})
}

// List returns live objects of the given kind in the test namespace,
// optionally filtered by label selector.
func (t *TestContext) List(ctx context.Context, gvk schema.GroupVersionKind, labelSelector string) ([]unstructured.Unstructured, error) {
	return t.harness.client.List(ctx, gvk, t.lease.Name(), labelSelector)
}

// Delete deletes h mid-test and unregisters it from teardown.
func (t *TestContext) Delete(ctx context.Context, h *Handle) error {
	return t.registry.Delete(ctx, h)
}

// WaitUntil blocks until pred reports h ready, applying opts over the
// harness wait defaults.
func (t *TestContext) WaitUntil(ctx context.Context, h *Handle, pred Predicate, opts ...WaitOption) error {
	return WaitFor(ctx, h, pred, t.waitConfig(opts))
}

// WaitUntilDeleted blocks until h no longer exists on the cluster.
func (t *TestContext) WaitUntilDeleted(ctx context.Context, h *Handle, opts ...WaitOption) error {
	return WaitUntilDeleted(ctx, h, t.waitConfig(opts))
}

func (t *TestContext) waitConfig(opts []WaitOption) WaitConfig {
	cfg := t.waitCfg
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Teardown deletes every registered resource in reverse creation order and
// then releases the test namespace. Resource deletion failures do not stop
// the namespace release; all failures are aggregated. Safe to call more
// than once.
func (t *TestContext) Teardown(ctx context.Context) error {
	var result *multierror.Error

	if err := t.registry.Teardown(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if t.lease.Phase() < PhaseTerminating {
		if err := t.harness.namespaces.Release(ctx, t.lease); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	t.log.Debug("test context torn down", "test", t.name, "namespace", t.lease.Name())
	return nil
}
