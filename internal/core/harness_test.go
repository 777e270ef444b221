package core

import (
	"context"
	"errors"
	"slices"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sfake "k8s.io/client-go/kubernetes/fake"
)

func newTestHarness(t *testing.T) (*Harness, *k8sfake.Clientset) {
	t.Helper()
	clientset := newActiveFakeClientset()
	h := newHarnessWithClients(fastNamespaceConfig(), newFakeDynamic(), newTestMapper(), clientset)
	t.Cleanup(func() { _ = h.Close() })
	return h, clientset
}

func TestNewHarnessPanicsOnInvalidConfig(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("NewHarness() with zero config did not panic")
		}
	}()
	NewHarness(Config{})
}

func TestHarnessRequiresConnect(t *testing.T) {
	t.Parallel()

	h := NewHarness(validConfig())

	if h.Connected() {
		t.Error("Connected() = true before Connect")
	}
	if _, err := h.Client(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Client() error = %v, want ErrNotConnected", err)
	}
	if _, err := h.NewTest(context.Background(), "t"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("NewTest() error = %v, want ErrNotConnected", err)
	}
}

func TestHarnessClosedRejectsEverything(t *testing.T) {
	t.Parallel()

	h, _ := newTestHarness(t)
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := h.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() after close error = %v, want ErrClosed", err)
	}
	if _, err := h.NewTest(context.Background(), "t"); !errors.Is(err, ErrClosed) {
		t.Errorf("NewTest() after close error = %v, want ErrClosed", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("repeated Close() error = %v, want nil", err)
	}
}

func TestHarnessNewTestAllocatesNamespace(t *testing.T) {
	t.Parallel()

	h, clientset := newTestHarness(t)

	tc, err := h.NewTest(context.Background(), "TestDemo")
	if err != nil {
		t.Fatalf("NewTest() error = %v", err)
	}
	if tc.Name() != "TestDemo" {
		t.Errorf("Name() = %q", tc.Name())
	}

	if _, err := clientset.CoreV1().Namespaces().Get(context.Background(), tc.Namespace(), metav1.GetOptions{}); err != nil {
		t.Errorf("test namespace %q not on cluster: %v", tc.Namespace(), err)
	}
}

func TestHarnessNewTestNamespacesAreDistinct(t *testing.T) {
	t.Parallel()

	h, _ := newTestHarness(t)

	a, err := h.NewTest(context.Background(), "TestSame")
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.NewTest(context.Background(), "TestSame")
	if err != nil {
		t.Fatal(err)
	}
	if a.Namespace() == b.Namespace() {
		t.Errorf("two tests share namespace %q", a.Namespace())
	}
}

func TestHarnessCleanupOrphans(t *testing.T) {
	t.Parallel()

	h, clientset := newTestHarness(t)

	owned := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{
		Name:   "kubeharness-dead-run",
		Labels: map[string]string{OwnedLabel: "true"},
	}}
	foreign := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{
		Name: "kube-system",
	}}
	for _, ns := range []*corev1.Namespace{owned, foreign} {
		if _, err := clientset.CoreV1().Namespaces().Create(context.Background(), ns, metav1.CreateOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := h.CleanupOrphans(context.Background())
	if err != nil {
		t.Fatalf("CleanupOrphans() error = %v", err)
	}
	if !slices.Contains(deleted, "kubeharness-dead-run") {
		t.Errorf("CleanupOrphans() = %v, want the owned namespace targeted", deleted)
	}

	if _, err := clientset.CoreV1().Namespaces().Get(context.Background(), "kubeharness-dead-run", metav1.GetOptions{}); err == nil {
		t.Error("owned orphan namespace survived cleanup")
	}
	if _, err := clientset.CoreV1().Namespaces().Get(context.Background(), "kube-system", metav1.GetOptions{}); err != nil {
		t.Errorf("foreign namespace was deleted: %v", err)
	}
}
