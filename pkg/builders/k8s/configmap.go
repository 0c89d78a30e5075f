// pkg/builders/k8s/configmap.go
package k8s

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// BuildConfigMap builds a corev1.ConfigMap holding data verbatim.
// Name, namespace and labels come from the pre-built metadata.
func BuildConfigMap(cmMeta metav1.ObjectMeta, data map[string]string) *corev1.ConfigMap {
	if data == nil {
		data = map[string]string{}
	}
	return &corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: corev1.SchemeGroupVersion.String(), Kind: "ConfigMap"},
		ObjectMeta: cmMeta, // Use general helper for metadata
		Data:       data,
	}
}
