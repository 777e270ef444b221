package kubeharness

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

// Built-in predicates for the workload kinds tests create most often. Each
// converts the observed unstructured document into its typed form and reads
// the standard status conditions. They tolerate absent status blocks (a
// just-created object has none) by reporting not ready rather than erroring;
// a document that cannot be converted at all is an error, since waiting on
// it would never terminate.

// PodReady reports whether the Pod's Ready condition is True.
func PodReady(obj *unstructured.Unstructured) (bool, error) {
	var pod corev1.Pod
	if err := fromUnstructured(obj, &pod); err != nil {
		return false, err
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue, nil
		}
	}
	return false, nil
}

// DeploymentReady reports whether the Deployment has rolled out: the
// controller has observed the current generation and every desired replica
// is updated and ready.
func DeploymentReady(obj *unstructured.Unstructured) (bool, error) {
	var dep appsv1.Deployment
	if err := fromUnstructured(obj, &dep); err != nil {
		return false, err
	}

	desired := int32(1)
	if dep.Spec.Replicas != nil {
		desired = *dep.Spec.Replicas
	}
	return dep.Status.ObservedGeneration >= dep.Generation &&
		dep.Status.UpdatedReplicas == desired &&
		dep.Status.ReadyReplicas == desired, nil
}

// StatefulSetReady reports whether the StatefulSet has rolled out with all
// desired replicas ready.
func StatefulSetReady(obj *unstructured.Unstructured) (bool, error) {
	var sts appsv1.StatefulSet
	if err := fromUnstructured(obj, &sts); err != nil {
		return false, err
	}

	desired := int32(1)
	if sts.Spec.Replicas != nil {
		desired = *sts.Spec.Replicas
	}
	return sts.Status.ObservedGeneration >= sts.Generation &&
		sts.Status.UpdatedReplicas == desired &&
		sts.Status.ReadyReplicas == desired, nil
}

// DaemonSetReady reports whether the DaemonSet has a ready pod on every
// node it should run on. A DaemonSet scheduled on zero nodes counts as not
// ready, since that usually means node selectors exclude the whole cluster.
func DaemonSetReady(obj *unstructured.Unstructured) (bool, error) {
	var ds appsv1.DaemonSet
	if err := fromUnstructured(obj, &ds); err != nil {
		return false, err
	}
	return ds.Status.DesiredNumberScheduled > 0 &&
		ds.Status.NumberReady == ds.Status.DesiredNumberScheduled, nil
}

// JobStarted reports whether the Job has at least one active pod or has
// already produced a terminal result.
func JobStarted(obj *unstructured.Unstructured) (bool, error) {
	var job batchv1.Job
	if err := fromUnstructured(obj, &job); err != nil {
		return false, err
	}
	return job.Status.Active > 0 || job.Status.Succeeded > 0 || job.Status.Failed > 0, nil
}

// JobComplete reports whether the Job's Complete condition is True. A
// failed Job is an error, not merely not-ready: waiting longer can never
// complete it.
func JobComplete(obj *unstructured.Unstructured) (bool, error) {
	var job batchv1.Job
	if err := fromUnstructured(obj, &job); err != nil {
		return false, err
	}
	for _, cond := range job.Status.Conditions {
		if cond.Status != corev1.ConditionTrue {
			continue
		}
		switch cond.Type {
		case batchv1.JobComplete:
			return true, nil
		case batchv1.JobFailed:
			return false, fmt.Errorf("job %q failed: %s", job.Name, cond.Message)
		}
	}
	return false, nil
}

// NamespaceActive reports whether the Namespace's status phase is Active.
func NamespaceActive(obj *unstructured.Unstructured) (bool, error) {
	var ns corev1.Namespace
	if err := fromUnstructured(obj, &ns); err != nil {
		return false, err
	}
	return ns.Status.Phase == corev1.NamespaceActive, nil
}

// CustomResourceDefinitionEstablished reports whether the CRD's Established
// condition is True, meaning the API server serves the new kind and custom
// resources of it can be created.
func CustomResourceDefinitionEstablished(obj *unstructured.Unstructured) (bool, error) {
	var crd apiextensionsv1.CustomResourceDefinition
	if err := fromUnstructured(obj, &crd); err != nil {
		return false, err
	}
	for _, cond := range crd.Status.Conditions {
		if cond.Type == apiextensionsv1.Established {
			return cond.Status == apiextensionsv1.ConditionTrue, nil
		}
	}
	return false, nil
}

func fromUnstructured(obj *unstructured.Unstructured, into any) error {
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, into); err != nil {
		return fmt.Errorf("convert %s %q: %w", obj.GetKind(), obj.GetName(), err)
	}
	return nil
}
