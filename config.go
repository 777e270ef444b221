package kubeharness

import "github.com/giantswarm/kubeharness/internal/core"

// harnessConfig holds configuration for a Harness. This unexported type wraps
// core.Config via embedding, keeping internal/core types out of the public
// API signature while avoiding field-by-field duplication.
type harnessConfig struct {
	core.Config
}

// toCoreConfig returns the embedded core.Config.
func (c harnessConfig) toCoreConfig() core.Config {
	return c.Config
}
