// Package core provides the internal implementation of the kubeharness
// testing framework. It contains the Harness (lifecycle state machine over a
// shared cluster client), ClusterClient (dynamic-client adapter with bounded
// retry for transient API errors), Handle (cached view of one created
// resource), the condition waiter (poll- and watch-based readiness waits),
// Registry (ordered resource tracking with reverse-order best-effort
// teardown), and the namespace manager (ephemeral per-test namespaces with
// asynchronous reclamation).
package core
