// Copyright (C) INFINI Labs & INFINI LIMITED.
//
// The INFINI Runtime Operator is offered under the GNU Affero General Public License v3.0
// and as commercial software.
//
// For commercial licensing, contact us at:
//   - Website: infinilabs.com
//   - Email: hello@infini.ltd
//
// Open Source licensed under AGPL V3:
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// pkg/builders/k8s/helpers.go
package k8s

import (
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/infinilabs/dashboard-operator/pkg/apis/common"
)

// --- Naming and Labeling Helpers ---

// BuildCommonLabels creates a map of standard labels for resources owned by a dashboard.
func BuildCommonLabels(dashboardName string) map[string]string {
	return map[string]string{
		common.ManagedByLabel:        common.OperatorName,
		"app.kubernetes.io/name":     common.DefaultComponentName,
		"app.kubernetes.io/instance": dashboardName,
		common.ComponentLabel:        "dashboard",
		common.DashboardNameLabel:    dashboardName,
	}
}

// BuildSelectorLabels creates labels used for the workload selector. They must never change
// for an existing Deployment, so they stay a strict subset of BuildCommonLabels.
func BuildSelectorLabels(dashboardName string) map[string]string {
	return map[string]string{
		"app.kubernetes.io/name":     common.DefaultComponentName,
		"app.kubernetes.io/instance": dashboardName,
	}
}

// DeriveResourceName generates a DNS-safe name for Kubernetes resources.
func DeriveResourceName(instanceName string) string {
	name := strings.ToLower(instanceName)
	name = strings.ReplaceAll(name, "_", "-")
	if len(name) > 63 {
		name = name[:63]
	}
	// Ensure it doesn't end with a hyphen
	return strings.TrimRight(name, "-")
}

// DeriveClusterResourceName names cluster-scoped objects, which must not collide
// between dashboards living in different namespaces.
func DeriveClusterResourceName(namespace, instanceName string) string {
	return DeriveResourceName(namespace + "-" + instanceName)
}

// BuildObjectMeta builds standard Kubernetes ObjectMeta for a resource.
func BuildObjectMeta(name, namespace string, labels, annotations map[string]string) metav1.ObjectMeta {
	// Ensure labels map is initialized if nil to avoid panics later
	if labels == nil {
		labels = make(map[string]string)
	}
	return metav1.ObjectMeta{
		Name:        name,
		Namespace:   namespace,
		Labels:      labels,
		Annotations: annotations, // Can be nil
	}
}

// --- K8s Spec Field Helpers ---

// BuildHTTPProbe builds a GET probe against path on the named or numbered port.
func BuildHTTPProbe(path string, port int32, initialDelaySeconds, periodSeconds int32) *corev1.Probe {
	return &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			HTTPGet: &corev1.HTTPGetAction{
				Path:   path,
				Port:   intstr.FromInt32(port),
				Scheme: corev1.URISchemeHTTP,
			},
		},
		InitialDelaySeconds: initialDelaySeconds,
		PeriodSeconds:       periodSeconds,
		TimeoutSeconds:      1, // K8s defaults, set explicitly so applied and live objects compare equal
		SuccessThreshold:    1,
		FailureThreshold:    3,
	}
}

// BuildEnv turns a map into a deterministic, name-sorted env var list.
func BuildEnv(env map[string]string) []corev1.EnvVar {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := make([]corev1.EnvVar, 0, len(names))
	for _, name := range names {
		vars = append(vars, corev1.EnvVar{Name: name, Value: env[name]})
	}
	return vars
}
