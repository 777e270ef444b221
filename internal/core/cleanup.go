package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// cleanupConcurrency bounds parallel namespace deletions during orphan
// cleanup so a large backlog does not flood the API server.
const cleanupConcurrency = 10

// CleanupOrphans deletes every harness-owned namespace left behind by
// earlier runs, identified by the ownership label. It returns the names it
// targeted. Deletions run concurrently and a single failure does not stop
// the rest.
func (h *Harness) CleanupOrphans(ctx context.Context) ([]string, error) {
	if err := h.requireReady(); err != nil {
		return nil, fmt.Errorf("cleanup orphans: %w", err)
	}

	list, err := h.typed.CoreV1().Namespaces().List(ctx, metav1.ListOptions{
		LabelSelector: OwnedLabel + "=true",
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup orphans: list namespaces: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(cleanupConcurrency)

	deleted := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		ns := ns
		deleted = append(deleted, ns.Name)
		g.Go(func() error {
			if err := h.namespaces.deleteNamespace(ctx, ns.Name); err != nil {
				h.log.Warn("orphan namespace cleanup failed", "namespace", ns.Name, "error", err)
				return err
			}
			h.log.Debug("deleted orphan namespace", "namespace", ns.Name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return deleted, fmt.Errorf("cleanup orphans: %w", err)
	}
	return deleted, nil
}
