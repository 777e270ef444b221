package kubeharness

import "time"

// ResetForTesting resets the singleton harness state so that the next call
// to NewHarness creates a fresh instance. This is exported only for use in
// test packages (package kubeharness_test).
func ResetForTesting() { resetForTesting() }

// ConfigSnapshot holds a copy of harnessConfig fields for test assertions.
// Exported only via export_test.go so that the _test package can verify
// option closures actually mutate the config without accessing internals.
type ConfigSnapshot struct {
	Kubeconfig             string
	Context                string
	NamespacePrefix        string
	WaitInterval           time.Duration
	WaitTimeout            time.Duration
	OnTimeout              TimeoutPolicy
	NamespaceReadyTimeout  time.Duration
	NamespaceDeleteGrace   time.Duration
	AwaitNamespaceDeletion bool
	RetryAttempts          int
	RetryBaseDelay         time.Duration
}

// ApplyOptionsForTesting creates a default harnessConfig, applies the given
// options, and returns a ConfigSnapshot of the result. This tests the option
// closures directly without touching the singleton.
func ApplyOptionsForTesting(opts ...Option) ConfigSnapshot {
	cfg := defaultHarnessConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return ConfigSnapshot{
		Kubeconfig:             cfg.Kubeconfig,
		Context:                cfg.Context,
		NamespacePrefix:        cfg.NamespacePrefix,
		WaitInterval:           cfg.WaitInterval,
		WaitTimeout:            cfg.WaitTimeout,
		OnTimeout:              cfg.OnTimeout,
		NamespaceReadyTimeout:  cfg.NamespaceReadyTimeout,
		NamespaceDeleteGrace:   cfg.NamespaceDeleteGrace,
		AwaitNamespaceDeletion: cfg.AwaitNamespaceDeletion,
		RetryAttempts:          cfg.RetryAttempts,
		RetryBaseDelay:         cfg.RetryBaseDelay,
	}
}
