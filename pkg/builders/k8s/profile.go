// pkg/builders/k8s/profile.go
package k8s

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// ProfileGVK identifies the Kubeflow Profile custom resource.
var ProfileGVK = schema.GroupVersionKind{Group: "kubeflow.org", Version: "v1beta1", Kind: "Profile"}

// BuildProfile builds a cluster-scoped Profile owned by the user of the same name.
// The CRD is not vendored, so the object is unstructured.
func BuildProfile(name string, labels map[string]string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetGroupVersionKind(ProfileGVK)
	u.SetName(name)
	u.SetLabels(labels)
	u.Object["spec"] = map[string]interface{}{
		"owner": map[string]interface{}{
			"kind": "User",
			"name": name,
		},
	}
	return u
}
