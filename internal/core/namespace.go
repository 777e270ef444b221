package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/giantswarm/kubeharness/internal/sentinel"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
)

// ErrNamespaceCreation is returned by namespace acquisition when the isolated
// namespace could not be created or never became Active. It is fatal to the
// test: without isolation there is no point proceeding.
const ErrNamespaceCreation = sentinel.Error("namespace creation failed")

// OwnedLabel marks namespaces created by the harness, enabling discovery and
// cleanup of leftovers from crashed test runs.
const OwnedLabel = "kubeharness/owned"

// testNameLabel records which test a harness namespace belongs to.
const testNameLabel = "kubeharness/test"

// maxNamespaceNameLength is the DNS-label limit Kubernetes imposes on
// namespace names.
const maxNamespaceNameLength = 63

// maxLabelValueLength is the limit Kubernetes imposes on label values.
const maxLabelValueLength = 63

// namespaceUniqueLength is the number of UUID characters included in a
// generated namespace name.
const namespaceUniqueLength = 8

// nsPollInterval is the polling interval for namespace phase checks.
const nsPollInterval = 100 * time.Millisecond

// NamespacePhase is the lifecycle state of a test namespace lease.
// Transitions are monotonic; PhaseGone is terminal.
type NamespacePhase int32

const (
	// PhasePending means the namespace create call was issued but the
	// namespace has not reported Active yet.
	PhasePending NamespacePhase = iota

	// PhaseActive means the namespace is ready for resource creation.
	PhaseActive

	// PhaseTerminating means release has issued deletion and the cluster is
	// tearing the namespace down asynchronously.
	PhaseTerminating

	// PhaseGone means the namespace no longer exists. Terminal.
	PhaseGone
)

// String returns the phase name.
func (p NamespacePhase) String() string {
	switch p {
	case PhasePending:
		return "Pending"
	case PhaseActive:
		return "Active"
	case PhaseTerminating:
		return "Terminating"
	case PhaseGone:
		return "Gone"
	default:
		return fmt.Sprintf("NamespacePhase(%d)", int32(p))
	}
}

// NamespaceLease is one ephemeral namespace allocated to one test run.
// Phase is readable from any goroutine (the background reaper advances it).
type NamespaceLease struct {
	name      string
	createdAt time.Time
	phase     atomic.Int32 // NamespacePhase
}

// Name returns the namespace name.
func (l *NamespaceLease) Name() string { return l.name }

// CreatedAt returns when the namespace was created.
func (l *NamespaceLease) CreatedAt() time.Time { return l.createdAt }

// Phase returns the lease's current lifecycle phase.
func (l *NamespaceLease) Phase() NamespacePhase {
	return NamespacePhase(l.phase.Load())
}

// advance moves the lease forward to p. Regressions are ignored, keeping
// transitions monotonic even if a slow reaper reports late.
func (l *NamespaceLease) advance(p NamespacePhase) {
	for {
		cur := l.phase.Load()
		if int32(p) <= cur {
			return
		}
		if l.phase.CompareAndSwap(cur, int32(p)) {
			return
		}
	}
}

// namespaceManager allocates an ephemeral namespace per test run and ensures
// its deletion regardless of test outcome. Allocation is collision-free under
// concurrent acquisition because names embed a random unique suffix — no
// global lock is involved.
type namespaceManager struct {
	client kubernetes.Interface
	cfg    Config
	log    *slog.Logger

	// reapers tracks background deletion watchers so drain can bound
	// shutdown. Each reaper finishes within NamespaceDeleteGrace.
	reapers errgroup.Group
}

func newNamespaceManager(client kubernetes.Interface, cfg Config, log *slog.Logger) *namespaceManager {
	return &namespaceManager{client: client, cfg: cfg, log: log}
}

// Acquire creates a uniquely named namespace for testName and blocks until it
// reports Active. On any failure the half-created namespace is deleted
// best-effort and ErrNamespaceCreation is returned.
func (m *namespaceManager) Acquire(ctx context.Context, testName string) (*NamespaceLease, error) {
	name := GenerateNamespaceName(m.cfg.NamespacePrefix, testName)
	lease := &NamespaceLease{name: name, createdAt: time.Now()}

	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Labels: map[string]string{
				OwnedLabel:    "true",
				testNameLabel: sanitizeLabelValue(testName),
			},
		},
	}

	if _, err := m.client.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil {
		return nil, fmt.Errorf("%w: create %q: %w", ErrNamespaceCreation, name, err)
	}
	m.log.Debug("created test namespace", "namespace", name, "test", testName)

	if err := m.waitActive(ctx, lease); err != nil {
		// Reclaim the unusable namespace; the error from the failed wait is
		// the one worth reporting.
		m.deleteNamespace(context.WithoutCancel(ctx), name)
		return nil, fmt.Errorf("%w: %q never became active: %w", ErrNamespaceCreation, name, err)
	}

	lease.advance(PhaseActive)
	return lease, nil
}

// waitActive polls the namespace until its status phase reports Active.
func (m *namespaceManager) waitActive(ctx context.Context, lease *NamespaceLease) error {
	return wait.PollUntilContextTimeout(
		ctx,
		nsPollInterval,
		m.cfg.NamespaceReadyTimeout,
		true,
		func(ctx context.Context) (bool, error) {
			ns, err := m.client.CoreV1().Namespaces().Get(ctx, lease.name, metav1.GetOptions{})
			if err != nil {
				// Transient errors are expected right after creation.
				m.log.Debug("namespace readiness poll error", "namespace", lease.name, "error", err)
				return false, nil
			}
			return ns.Status.Phase == corev1.NamespaceActive, nil
		},
	)
}

// Release issues deletion of the leased namespace. Kubernetes namespace
// deletion is asynchronous and can be slow, so by default Release does not
// block on full termination: a background reaper records a warning if the
// namespace has not terminated within the configured grace period, and
// cluster garbage collection handles stragglers. With AwaitNamespaceDeletion
// the call blocks until the namespace is fully gone.
func (m *namespaceManager) Release(ctx context.Context, lease *NamespaceLease) error {
	lease.advance(PhaseTerminating)

	if err := m.deleteNamespace(ctx, lease.name); err != nil {
		return err
	}

	if m.cfg.AwaitNamespaceDeletion {
		if !m.awaitGone(ctx, lease) {
			m.log.Warn("namespace still terminating after grace period",
				"namespace", lease.name, "grace", m.cfg.NamespaceDeleteGrace)
		}
		return nil
	}

	m.reapers.Go(func() error {
		// Detached from the test's context: the reaper outlives the test on
		// purpose and is bounded by the grace period instead.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.NamespaceDeleteGrace)
		defer cancel()
		if !m.awaitGone(rctx, lease) {
			m.log.Warn("namespace still terminating after grace period",
				"namespace", lease.name, "grace", m.cfg.NamespaceDeleteGrace)
		}
		return nil
	})
	return nil
}

// deleteNamespace issues a zero-grace delete. Absence counts as success and
// advances the lease straight to Gone.
func (m *namespaceManager) deleteNamespace(ctx context.Context, name string) error {
	zero := int64(0)
	err := m.client.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{GracePeriodSeconds: &zero})
	if apierrors.IsNotFound(err) {
		return nil // already gone
	}
	if err != nil {
		return fmt.Errorf("delete namespace %q: %w", name, err)
	}
	return nil
}

// awaitGone polls until the namespace no longer exists, advancing the lease
// to Gone on success. Reports whether the namespace disappeared in time.
func (m *namespaceManager) awaitGone(ctx context.Context, lease *NamespaceLease) bool {
	err := wait.PollUntilContextTimeout(
		ctx,
		nsPollInterval,
		m.cfg.NamespaceDeleteGrace,
		true,
		func(ctx context.Context) (bool, error) {
			_, getErr := m.client.CoreV1().Namespaces().Get(ctx, lease.name, metav1.GetOptions{})
			return apierrors.IsNotFound(getErr), nil
		},
	)
	if err != nil {
		return false
	}
	lease.advance(PhaseGone)
	return true
}

// drain waits for all background reapers to finish. Each reaper is bounded
// by the delete grace period, so drain is bounded too.
func (m *namespaceManager) drain() {
	_ = m.reapers.Wait() // reapers only log; they never return errors
}

// GenerateNamespaceName builds a unique namespace name of the form
// <prefix>-<uuid8>-<unix>[-<sanitized test name>], truncated to the 63
// character DNS-label limit. The random component makes concurrent
// generations pairwise distinct without coordination.
func GenerateNamespaceName(prefix, testName string) string {
	unique := strings.ReplaceAll(uuid.NewString(), "-", "")[:namespaceUniqueLength]
	name := fmt.Sprintf("%s-%s-%d", prefix, unique, time.Now().Unix())

	if suffix := sanitizeNameFragment(testName); suffix != "" {
		name += "-" + suffix
	}
	if len(name) > maxNamespaceNameLength {
		name = name[:maxNamespaceNameLength]
	}
	return strings.TrimRight(name, "-")
}

// sanitizeNameFragment lowercases s and maps every character outside
// [a-z0-9-] to a dash, then strips leading and trailing dashes. Returns ""
// when nothing usable remains.
func sanitizeNameFragment(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// sanitizeLabelValue sanitizes s like sanitizeNameFragment and additionally
// truncates it to the 63 character label value limit. Namespace names are
// truncated at generation time; label values need their own cap because the
// API server rejects the whole create when any label value is too long.
func sanitizeLabelValue(s string) string {
	v := sanitizeNameFragment(s)
	if len(v) > maxLabelValueLength {
		v = strings.TrimRight(v[:maxLabelValueLength], "-")
	}
	return v
}
