package core

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func fastNamespaceConfig() Config {
	cfg := validConfig()
	cfg.NamespaceReadyTimeout = 2 * time.Second
	cfg.NamespaceDeleteGrace = 2 * time.Second
	return cfg
}

// newActiveFakeClientset returns a fake clientset whose created namespaces
// immediately report phase Active, as a healthy cluster would.
func newActiveFakeClientset() *k8sfake.Clientset {
	clientset := k8sfake.NewSimpleClientset()
	clientset.PrependReactor("create", "namespaces", func(action k8stesting.Action) (bool, runtime.Object, error) {
		ns := action.(k8stesting.CreateAction).GetObject().(*corev1.Namespace)
		ns.Status.Phase = corev1.NamespaceActive
		return false, nil, nil
	})
	return clientset
}

func TestGenerateNamespaceName(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^kubeharness-[0-9a-f]{8}-[0-9]+-test-foo$`)
	name := GenerateNamespaceName("kubeharness", "Test_Foo")
	if !pattern.MatchString(name) {
		t.Errorf("GenerateNamespaceName() = %q, want match for %s", name, pattern)
	}
}

func TestGenerateNamespaceNameProperties(t *testing.T) {
	t.Parallel()

	valid := regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

	tests := map[string]string{
		"plain":           "simple",
		"mixed case":      "TestDeploymentRollout",
		"underscores":     "Test_With_Underscores",
		"slashes":         "suite/case/variant",
		"unicode":         "tëst-ñame",
		"only symbols":    "###",
		"empty":           "",
		"very long":       strings.Repeat("long-test-name-", 20),
		"trailing symbol": "test!!!",
	}

	for label, testName := range tests {
		testName := testName
		t.Run(label, func(t *testing.T) {
			t.Parallel()

			name := GenerateNamespaceName("kubeharness", testName)
			if len(name) > 63 {
				t.Errorf("len(%q) = %d, exceeds DNS label limit", name, len(name))
			}
			if !valid.MatchString(name) {
				t.Errorf("%q is not a valid DNS label", name)
			}
			if !strings.HasPrefix(name, "kubeharness-") {
				t.Errorf("%q lacks the configured prefix", name)
			}
		})
	}
}

func TestGenerateNamespaceNameUnique(t *testing.T) {
	t.Parallel()

	const n = 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := GenerateNamespaceName("kubeharness", "same-test")
			mu.Lock()
			seen[name] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("got %d distinct names from %d concurrent generations", len(seen), n)
	}
}

func TestSanitizeNameFragment(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		in   string
		want string
	}{
		"lowercased":       {"TestFoo", "testfoo"},
		"underscore":       {"a_b", "a-b"},
		"kept dashes":      {"a-b-c", "a-b-c"},
		"stripped edges":   {"__x__", "x"},
		"nothing usable":   {"___", ""},
		"empty":            {"", ""},
		"digits preserved": {"case42", "case42"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeNameFragment(tc.in); got != tc.want {
				t.Errorf("sanitizeNameFragment(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeLabelValue(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		in   string
		want string
	}{
		"short passes through":   {"TestFoo", "testfoo"},
		"exactly at limit":       {strings.Repeat("a", 63), strings.Repeat("a", 63)},
		"truncated":              {strings.Repeat("a", 80), strings.Repeat("a", 63)},
		"no dash after truncate": {strings.Repeat("ab-", 30), strings.Repeat("ab-", 20) + "ab"},
		"empty":                  {"", ""},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := sanitizeLabelValue(tc.in)
			if got != tc.want {
				t.Errorf("sanitizeLabelValue(%q) = %q, want %q", tc.in, got, tc.want)
			}
			if msgs := validation.IsValidLabelValue(got); len(msgs) > 0 {
				t.Errorf("sanitizeLabelValue(%q) = %q, not a valid label value: %v", tc.in, got, msgs)
			}
		})
	}
}

func TestNamespaceManagerAcquire(t *testing.T) {
	t.Parallel()

	clientset := newActiveFakeClientset()
	mgr := newNamespaceManager(clientset, fastNamespaceConfig(), Logger())

	lease, err := mgr.Acquire(context.Background(), "TestAcquire")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if lease.Phase() != PhaseActive {
		t.Errorf("lease phase = %s, want Active", lease.Phase())
	}

	ns, err := clientset.CoreV1().Namespaces().Get(context.Background(), lease.Name(), metav1.GetOptions{})
	if err != nil {
		t.Fatalf("namespace %q missing on cluster: %v", lease.Name(), err)
	}
	if ns.Labels[OwnedLabel] != "true" {
		t.Errorf("namespace labels = %v, want ownership label", ns.Labels)
	}
}

// Long Go test names (nested subtests) must still produce a namespace whose
// labels a real API server accepts; the test-name label is capped at the 63
// character label value limit.
func TestNamespaceManagerAcquireLongTestName(t *testing.T) {
	t.Parallel()

	clientset := newActiveFakeClientset()
	mgr := newNamespaceManager(clientset, fastNamespaceConfig(), Logger())

	longName := "TestOuter/" + strings.Repeat("deeply_nested_case/", 20)
	lease, err := mgr.Acquire(context.Background(), longName)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ns, err := clientset.CoreV1().Namespaces().Get(context.Background(), lease.Name(), metav1.GetOptions{})
	if err != nil {
		t.Fatalf("namespace %q missing on cluster: %v", lease.Name(), err)
	}
	for key, value := range ns.Labels {
		if msgs := validation.IsValidLabelValue(value); len(msgs) > 0 {
			t.Errorf("label %s=%q is not a valid label value: %v", key, value, msgs)
		}
	}
	if got := ns.Labels[testNameLabel]; len(got) != maxLabelValueLength {
		t.Errorf("test-name label = %q (len %d), want truncated to %d", got, len(got), maxLabelValueLength)
	}
}

func TestNamespaceManagerAcquireCreateFailure(t *testing.T) {
	t.Parallel()

	clientset := k8sfake.NewSimpleClientset()
	clientset.PrependReactor("create", "namespaces", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(schema.GroupResource{Resource: "namespaces"}, "", errors.New("quota"))
	})
	mgr := newNamespaceManager(clientset, fastNamespaceConfig(), Logger())

	_, err := mgr.Acquire(context.Background(), "TestAcquire")
	if !errors.Is(err, ErrNamespaceCreation) {
		t.Errorf("Acquire() error = %v, want ErrNamespaceCreation", err)
	}
}

func TestNamespaceManagerAcquireNeverActive(t *testing.T) {
	t.Parallel()

	// Without the phase reactor the fake namespace stays phase "", so the
	// readiness wait must time out and the namespace must be reclaimed.
	clientset := k8sfake.NewSimpleClientset()
	cfg := fastNamespaceConfig()
	cfg.NamespaceReadyTimeout = 300 * time.Millisecond
	mgr := newNamespaceManager(clientset, cfg, Logger())

	_, err := mgr.Acquire(context.Background(), "TestAcquire")
	if !errors.Is(err, ErrNamespaceCreation) {
		t.Fatalf("Acquire() error = %v, want ErrNamespaceCreation", err)
	}

	list, err := clientset.CoreV1().Namespaces().List(context.Background(), metav1.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 0 {
		t.Errorf("half-created namespace leaked: %v", list.Items)
	}
}

func TestNamespaceManagerRelease(t *testing.T) {
	t.Parallel()

	clientset := newActiveFakeClientset()
	mgr := newNamespaceManager(clientset, fastNamespaceConfig(), Logger())

	lease, err := mgr.Acquire(context.Background(), "TestRelease")
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Release(context.Background(), lease); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	mgr.drain()

	if lease.Phase() != PhaseGone {
		t.Errorf("lease phase = %s after drained release, want Gone", lease.Phase())
	}
	_, err = clientset.CoreV1().Namespaces().Get(context.Background(), lease.Name(), metav1.GetOptions{})
	if !apierrors.IsNotFound(err) {
		t.Errorf("namespace still present after release: err = %v", err)
	}
}

func TestNamespaceManagerReleaseSynchronous(t *testing.T) {
	t.Parallel()

	clientset := newActiveFakeClientset()
	cfg := fastNamespaceConfig()
	cfg.AwaitNamespaceDeletion = true
	mgr := newNamespaceManager(clientset, cfg, Logger())

	lease, err := mgr.Acquire(context.Background(), "TestRelease")
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Release(context.Background(), lease); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	// No drain: synchronous release must have advanced the phase itself.
	if lease.Phase() != PhaseGone {
		t.Errorf("lease phase = %s after synchronous release, want Gone", lease.Phase())
	}
}

func TestNamespaceLeasePhaseMonotonic(t *testing.T) {
	t.Parallel()

	lease := &NamespaceLease{name: "kubeharness-x"}

	lease.advance(PhaseTerminating)
	lease.advance(PhaseActive) // late report, must not regress
	if lease.Phase() != PhaseTerminating {
		t.Errorf("phase = %s after stale advance, want Terminating", lease.Phase())
	}

	lease.advance(PhaseGone)
	lease.advance(PhaseTerminating)
	if lease.Phase() != PhaseGone {
		t.Errorf("phase = %s, want terminal Gone", lease.Phase())
	}
}

func TestNamespacePhaseString(t *testing.T) {
	t.Parallel()

	tests := map[NamespacePhase]string{
		PhasePending:      "Pending",
		PhaseActive:       "Active",
		PhaseTerminating:  "Terminating",
		PhaseGone:         "Gone",
		NamespacePhase(9): "NamespacePhase(9)",
	}
	for phase, want := range tests {
		if got := phase.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
