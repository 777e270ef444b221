package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/giantswarm/kubeharness/internal/sentinel"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ErrNotConnected is returned by operations that need cluster access before
// Connect has succeeded.
const ErrNotConnected = sentinel.Error("harness is not connected")

// ErrClosed is returned by operations on a harness after Close.
const ErrClosed = sentinel.Error("harness is closed")

// harnessState tracks the harness lifecycle. Transitions only move forward:
// created -> connecting -> ready -> closed, with connecting falling back to
// created on failure.
type harnessState = uint32

const (
	harnessCreated harnessState = iota
	harnessConnecting
	harnessReady
	harnessClosed
)

// Harness owns the cluster connection and hands out per-test contexts. A
// single harness is shared by an entire test binary; NewTest may be called
// from parallel tests.
type Harness struct {
	cfg   Config
	state atomic.Uint32
	log   *slog.Logger

	// Populated by Connect.
	client     *ClusterClient
	typed      kubernetes.Interface
	namespaces *namespaceManager
}

// NewHarness returns an unconnected harness. It panics when cfg is invalid:
// configuration is assembled from code, so an invalid one is a programming
// error.
func NewHarness(cfg Config) *Harness {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("kubeharness: invalid config: %v", err))
	}
	return &Harness{cfg: cfg, log: Logger()}
}

// newHarnessWithClients wires a harness directly to prebuilt clients,
// skipping kubeconfig loading. For tests.
func newHarnessWithClients(cfg Config, dyn dynamic.Interface, mapper meta.RESTMapper, typed kubernetes.Interface) *Harness {
	h := NewHarness(cfg)
	h.client = newClusterClient(dyn, mapper, cfg.RetryAttempts, cfg.RetryBaseDelay)
	h.typed = typed
	h.namespaces = newNamespaceManager(typed, cfg, h.log)
	h.state.Store(harnessReady)
	return h
}

// Config returns the harness configuration.
func (h *Harness) Config() Config { return h.cfg }

// Connected reports whether Connect has succeeded.
func (h *Harness) Connected() bool { return h.state.Load() == harnessReady }

// Connect loads the kubeconfig, builds the cluster clients, and verifies
// nothing in the configuration is obviously broken. Calling Connect on a
// ready harness is a no-op; calling it on a closed harness fails.
func (h *Harness) Connect(ctx context.Context) error {
	switch h.state.Load() {
	case harnessReady:
		return nil
	case harnessClosed:
		return fmt.Errorf("connect: %w", ErrClosed)
	}
	if !h.state.CompareAndSwap(harnessCreated, harnessConnecting) {
		return fmt.Errorf("connect: concurrent connect in progress")
	}

	restCfg, err := h.buildRESTConfig()
	if err != nil {
		h.state.Store(harnessCreated)
		return fmt.Errorf("connect: %w", err)
	}

	client, err := NewClusterClient(restCfg, h.cfg.RetryAttempts, h.cfg.RetryBaseDelay)
	if err != nil {
		h.state.Store(harnessCreated)
		return fmt.Errorf("connect: %w", err)
	}
	typed, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		h.state.Store(harnessCreated)
		return fmt.Errorf("connect: %w", err)
	}

	h.client = client
	h.typed = typed
	h.namespaces = newNamespaceManager(typed, h.cfg, h.log)
	h.state.Store(harnessReady)
	h.log.Info("connected to cluster", "host", restCfg.Host)
	return nil
}

// buildRESTConfig resolves client configuration from the configured
// kubeconfig path, or from the standard loading rules (KUBECONFIG, then the
// home directory file) when no path is set.
func (h *Harness) buildRESTConfig() (*rest.Config, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if h.cfg.Kubeconfig != "" {
		rules.ExplicitPath = h.cfg.Kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{}
	if h.cfg.Context != "" {
		overrides.CurrentContext = h.cfg.Context
	}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}
	return cfg, nil
}

// Client returns the dynamic cluster client, or ErrNotConnected.
func (h *Harness) Client() (*ClusterClient, error) {
	if err := h.requireReady(); err != nil {
		return nil, err
	}
	return h.client, nil
}

// NewTest allocates an isolated namespace and returns a context for the
// named test. The caller owns the context and must call Teardown when the
// test finishes.
func (h *Harness) NewTest(ctx context.Context, name string) (*TestContext, error) {
	if err := h.requireReady(); err != nil {
		return nil, fmt.Errorf("new test %q: %w", name, err)
	}

	lease, err := h.namespaces.Acquire(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("new test %q: %w", name, err)
	}

	log := h.log.With("test", name, "namespace", lease.Name())
	return &TestContext{
		harness:  h,
		name:     name,
		lease:    lease,
		registry: NewRegistry(h.client, lease.Name(), log),
		waitCfg: WaitConfig{
			Interval:  h.cfg.WaitInterval,
			Timeout:   h.cfg.WaitTimeout,
			OnTimeout: h.cfg.OnTimeout,
		},
		log: log,
	}, nil
}

// Close shuts the harness down, waiting for background namespace reapers to
// finish. Idempotent. The harness cannot be reused afterwards.
func (h *Harness) Close() error {
	prev := h.state.Swap(harnessClosed)
	if prev == harnessClosed {
		return nil
	}
	if prev == harnessReady {
		h.namespaces.drain()
	}
	h.log.Debug("harness closed")
	return nil
}

func (h *Harness) requireReady() error {
	switch h.state.Load() {
	case harnessReady:
		return nil
	case harnessClosed:
		return ErrClosed
	default:
		return ErrNotConnected
	}
}
