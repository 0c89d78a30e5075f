// pkg/builders/k8s/pod.go
package k8s

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ContainerSpec carries the already-resolved inputs of the main container.
type ContainerSpec struct {
	Name     string
	Image    string
	Command  []string
	Env      map[string]string
	PortName string
	Port     int32
	Liveness *corev1.Probe
}

// BuildMainContainerSpec builds the primary application container.
func BuildMainContainerSpec(spec ContainerSpec) corev1.Container {
	c := corev1.Container{
		Name:            spec.Name,
		Image:           spec.Image,
		ImagePullPolicy: corev1.PullIfNotPresent,
		Command:         spec.Command,
		Env:             BuildEnv(spec.Env),
		LivenessProbe:   spec.Liveness,
	}
	if spec.Port != 0 {
		c.Ports = []corev1.ContainerPort{{
			Name:          spec.PortName,
			ContainerPort: spec.Port,
			Protocol:      corev1.ProtocolTCP,
		}}
	}
	return c
}

// BuildPodTemplateSpec builds a corev1.PodTemplateSpec around a single container.
func BuildPodTemplateSpec(
	mainContainer corev1.Container, // The primary application container spec
	serviceAccountName string, // Service Account name string
	podLabels map[string]string, // Labels for the Pod metadata (selector and common labels)
	podAnnotations map[string]string, // Annotations for the Pod metadata
) corev1.PodTemplateSpec {
	return corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{
			Labels:      podLabels,
			Annotations: podAnnotations,
		},
		Spec: corev1.PodSpec{
			Containers:         []corev1.Container{mainContainer},
			ServiceAccountName: serviceAccountName,
		},
	}
}
