// pkg/builders/k8s/deployment.go
package k8s

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// BuildDeployment builds an appsv1.Deployment resource.
// It takes inputs that map directly to K8s Deployment and Pod Template specs, derived by the caller.
func BuildDeployment(
	deployMeta metav1.ObjectMeta, // ObjectMeta for the Deployment resource
	selectorLabels map[string]string, // Labels used for the Deployment selector AND Pod metadata selector part
	replicas *int32, // Resolved replicas count
	podTemplateSpec corev1.PodTemplateSpec, // Fully built PodTemplateSpec
) *appsv1.Deployment {
	return &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: appsv1.SchemeGroupVersion.String(), Kind: "Deployment"}, // Explicitly set TypeMeta for SSA
		ObjectMeta: deployMeta,
		Spec: appsv1.DeploymentSpec{
			Replicas: replicas,
			Selector: &metav1.LabelSelector{MatchLabels: selectorLabels},
			Template: podTemplateSpec,
			Strategy: appsv1.DeploymentStrategy{Type: appsv1.RollingUpdateDeploymentStrategyType},
		},
	}
}
