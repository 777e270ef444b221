package kubeharness

import "github.com/giantswarm/kubeharness/internal/core"

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrNotConnected is returned by harness operations that need cluster
	// access before Connect has succeeded.
	ErrNotConnected = core.ErrNotConnected

	// ErrClosed is returned by operations on a harness after Close.
	ErrClosed = core.ErrClosed

	// ErrNamespaceCreation is returned by NewTest when the isolated test
	// namespace could not be created or never became Active. It is fatal to
	// the test: without isolation there is no point proceeding.
	ErrNamespaceCreation = core.ErrNamespaceCreation

	// ErrRegistryClosed is returned by TestContext.Create once Teardown has
	// begun. Creating resources after teardown is a bug in the test.
	ErrRegistryClosed = core.ErrRegistryClosed

	// ErrDuplicateIdentity is returned by TestContext.Create when the
	// object's kind/namespace/name matches a resource whose deletion was
	// already requested within the same test. Re-creating a deleted identity
	// inside one test breaks teardown bookkeeping.
	ErrDuplicateIdentity = core.ErrDuplicateIdentity

	// ErrMissingKind is returned when a manifest document lacks a 'kind'
	// field.
	ErrMissingKind = core.ErrMissingKind

	// ErrNoYAMLFiles is returned by CreateFromDir when the directory
	// contains no YAML files (or none matching the name filter).
	ErrNoYAMLFiles = core.ErrNoYAMLFiles

	// ErrTooManyYAMLFiles is returned by CreateFromDir when the directory
	// holds more YAML files than the loader is willing to walk, guarding
	// against a mistaken path like a repository root.
	ErrTooManyYAMLFiles = core.ErrTooManyYAMLFiles
)
