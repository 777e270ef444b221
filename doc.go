// Package kubeharness provides a lightweight harness for integration tests
// that run against a real Kubernetes cluster.
//
// Each test gets its own ephemeral namespace, creates resources of arbitrary
// kinds through a dynamic client, waits for readiness conditions, and tears
// everything down in reverse creation order when it finishes. A crashed run
// leaves labeled namespaces behind that the next run can reap.
//
// # Basic Usage
//
//	import "github.com/giantswarm/kubeharness"
//
//	ctx := context.Background()
//
//	h := kubeharness.NewHarness()
//	if err := h.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close()
//
//	tc, err := h.NewTest(ctx, "TestDeploymentRollout")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tc.Teardown(ctx) // Returns nil on success; safe to ignore in defer
//
//	handles, err := tc.CreateFromYAML(ctx, "testdata/deployment.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := tc.WaitUntil(ctx, handles[0], kubeharness.DeploymentReady); err != nil {
//	    log.Fatal(err)
//	}
//
// # Parallel Testing
//
// One harness serves the whole test binary; every test gets an isolated
// namespace, so parallel tests never share state:
//
//	h := kubeharness.NewHarness()
//	if err := h.Connect(ctx); err != nil {
//	    t.Fatal(err)
//	}
//	defer h.Close()
//
//	for i := 0; i < 10; i++ {
//	    t.Run(fmt.Sprintf("case-%d", i), func(t *testing.T) {
//	        t.Parallel()
//	        tc, err := h.NewTest(context.Background(), t.Name())
//	        if err != nil {
//	            t.Fatal(err)
//	        }
//	        defer tc.Teardown(context.Background())
//	        // Create resources, wait on conditions...
//	    })
//	}
//
// # Command-Line Flags
//
// RegisterFlags wires the kubeconfig path, context, and log level into a
// test binary's flag set:
//
//	go test ./e2e/... -kube-config=$HOME/.kube/config -kube-log-level=debug
//
// # Readiness Conditions
//
// Built-in predicates cover common workload kinds (PodReady,
// DeploymentReady, JobComplete, ...). Any func from an unstructured document
// to (bool, error) is a valid Predicate, so custom resources are waited on
// the same way as built-in kinds.
package kubeharness
