package kubeharness

import (
	"sort"
	"strings"

	"github.com/giantswarm/kubeharness/internal/core"
)

// OwnedNamespaceLabel is the label key marking namespaces created by the
// harness. CleanupOrphans selects on it; cluster operators can use it to
// audit or bulk-delete leftover test namespaces.
const OwnedNamespaceLabel = core.OwnedLabel

// OwnershipLabels returns the labels applied to every namespace the harness
// creates. The returned map is a copy; callers may modify it without
// affecting internal state.
func OwnershipLabels() map[string]string {
	return map[string]string{core.OwnedLabel: "true"}
}

// GenerateNamespaceName builds a unique namespace name for a test, of the
// form <prefix>-<unique>-<timestamp>[-<sanitized test name>], truncated to
// the 63 character DNS-label limit. Exposed for suites that create
// namespaces outside the harness but want matching naming.
func GenerateNamespaceName(prefix, testName string) string {
	return core.GenerateNamespaceName(prefix, testName)
}

// LabelSelector formats a label map as an equality-based selector string
// suitable for TestContext.List. Keys are sorted so the output is stable.
func LabelSelector(labels map[string]string) string {
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	return strings.Join(pairs, ",")
}
