// pkg/builders/k8s/service.go
package k8s

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// BuildService builds a ClusterIP corev1.Service exposing a single named port.
// Requires pre-built metadata and selector labels.
func BuildService(
	serviceMeta metav1.ObjectMeta, // ObjectMeta for the Service resource
	selectorLabels map[string]string, // Labels to select pods for this service
	portName string,
	port int32,
) *corev1.Service {
	return &corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: corev1.SchemeGroupVersion.String(), Kind: "Service"},
		ObjectMeta: serviceMeta, // Use the pre-built metadata
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: selectorLabels,
			Ports: []corev1.ServicePort{{
				Name:       portName,
				Port:       port,
				TargetPort: intstr.FromString(portName), // Follow the container port by name
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}
}
