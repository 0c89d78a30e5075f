// internal/controller/common/kubeutil/health.go
package kubeutil

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	commonutil "github.com/infinilabs/dashboard-operator/pkg/apis/common/util"
)

// CheckDeploymentHealth reports whether the Deployment ns/name has rolled out and is available.
// Returns: isHealthy, a message describing status, and an error only if the check itself failed.
func CheckDeploymentHealth(ctx context.Context, k8sClient client.Client, ns, name string) (bool, string, error) {
	logger := log.FromContext(ctx).WithValues("deployment", name, "namespace", ns)

	var deployment appsv1.Deployment
	if err := k8sClient.Get(ctx, client.ObjectKey{Namespace: ns, Name: name}, &deployment); err != nil {
		if apierrors.IsNotFound(err) {
			logger.V(1).Info("Deployment not found during health check")
			return false, "Deployment not found", nil
		}
		return false, fmt.Sprintf("Failed to get Deployment: %v", err), fmt.Errorf("failed to get Deployment %s/%s: %w", ns, name, err)
	}
	return checkDeploymentHealth(&deployment)
}

func checkDeploymentHealth(deployment *appsv1.Deployment) (bool, string, error) {
	// If spec changed, status needs to catch up.
	if deployment.Status.ObservedGeneration < deployment.Generation {
		return false, fmt.Sprintf("Waiting for rollout to be observed: generation %d < desired %d", deployment.Status.ObservedGeneration, deployment.Generation), nil
	}

	available := false
	for _, cond := range deployment.Status.Conditions {
		if cond.Type == appsv1.DeploymentAvailable && cond.Status == corev1.ConditionTrue {
			available = true
		}
	}

	desiredReplicas := commonutil.GetInt32ValueOrDefault(deployment.Spec.Replicas, 1)
	ready := deployment.Status.ReadyReplicas >= desiredReplicas
	updated := deployment.Status.UpdatedReplicas >= desiredReplicas

	switch {
	case !available:
		return false, fmt.Sprintf("Deployment not available: %d/%d available replicas", deployment.Status.AvailableReplicas, desiredReplicas), nil
	case !updated:
		return false, fmt.Sprintf("Waiting for rollout: %d/%d updated replicas", deployment.Status.UpdatedReplicas, desiredReplicas), nil
	case !ready:
		return false, fmt.Sprintf("Waiting for readiness: %d/%d ready replicas", deployment.Status.ReadyReplicas, desiredReplicas), nil
	}
	return true, fmt.Sprintf("Deployment is available with %d ready replicas", deployment.Status.ReadyReplicas), nil
}
