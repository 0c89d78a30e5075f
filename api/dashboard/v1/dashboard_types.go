/*
Copyright 2025 infinilabs.com.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// api/dashboard/v1/dashboard_types.go
package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DashboardPhase represents the outcome of the latest reconciliation pass.
// +kubebuilder:validation:Enum=Active;Waiting;Blocked;Error
type DashboardPhase string

// Constants defining the dashboard phases.
const (
	DashboardPhaseActive  DashboardPhase = "Active"  // Resources applied and workload configured.
	DashboardPhaseWaiting DashboardPhase = "Waiting" // Transient, clears on its own.
	DashboardPhaseBlocked DashboardPhase = "Blocked" // Needs a configuration or relation change.
	DashboardPhaseError   DashboardPhase = "Error"   // Not retried.
)

// Condition types reported on a Dashboard.
const (
	ConditionReady             = "Ready"             // Reconciliation completed.
	ConditionWorkloadAvailable = "WorkloadAvailable" // Dashboard Deployment rolled out and available.
)

// DashboardFinalizer guards cleanup of the cluster-scoped objects of a Dashboard.
const DashboardFinalizer = "dashboard.infini.cloud/finalizer"

// LinkSourceSpec is the operator-provided input for one navigation area.
type LinkSourceSpec struct {
	// Additional is a YAML or JSON list of extra links, each with text, link, type and icon.
	// Malformed input is ignored with a warning in the operator log.
	// +optional
	Additional string `json:"additional,omitempty"`

	// Order is a YAML or JSON list of link texts shown first, in that order.
	// +optional
	Order string `json:"order,omitempty"`
}

// DashboardLinksSpec groups the link inputs per navigation area.
type DashboardLinksSpec struct {
	// +optional
	Menu LinkSourceSpec `json:"menu,omitempty"`
	// +optional
	External LinkSourceSpec `json:"external,omitempty"`
	// +optional
	Quick LinkSourceSpec `json:"quick,omitempty"`
	// +optional
	Documentation LinkSourceSpec `json:"documentation,omitempty"`
}

// DashboardSpec defines the desired state of Dashboard.
type DashboardSpec struct {
	// Port the dashboard listens on.
	// +kubebuilder:default=8082
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	// +optional
	Port int32 `json:"port,omitempty"`

	// ConfigMapName is the shared ConfigMap the dashboard reads its settings and links from.
	// +kubebuilder:default=centraldashboard-config
	// +optional
	ConfigMapName string `json:"configMapName,omitempty"`

	// RegistrationFlow enables the first-login namespace registration flow.
	// +optional
	RegistrationFlow bool `json:"registrationFlow,omitempty"`

	// Profile, when set, creates a Kubeflow Profile owned by the user of that name.
	// +optional
	Profile string `json:"profile,omitempty"`

	// Links configures the operator-provided links and their ordering.
	// +optional
	Links DashboardLinksSpec `json:"links,omitempty"`
}

// DashboardStatus defines the observed state of Dashboard.
type DashboardStatus struct {
	// ObservedGeneration is the generation the status was computed for.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// +optional
	Phase DashboardPhase `json:"phase,omitempty"`

	// Conditions represent the latest available observations of the Dashboard's state.
	// +optional
	// +patchMergeKey=type
	// +patchStrategy=merge
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty" patchStrategy:"merge" patchMergeKey:"type"`

	// LinkCounts is the number of published links per navigation area.
	// +optional
	LinkCounts map[string]int32 `json:"linkCounts,omitempty"`

	// LastReconcileTime is when the last completed pass finished.
	// +optional
	LastReconcileTime *metav1.Time `json:"lastReconcileTime,omitempty"`
}

//+kubebuilder:object:root=true
//+kubebuilder:subresource:status
//+kubebuilder:resource:scope=Namespaced,path=dashboards,shortName=dash,categories={infini}
//+kubebuilder:printcolumn:name="Phase",type=string,JSONPath=".status.phase",description="Outcome of the latest reconciliation."
//+kubebuilder:printcolumn:name="Ready",type="string",JSONPath=".status.conditions[?(@.type=='Ready')].reason"
//+kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"
//+kubebuilder:storageversion

// Dashboard is the Schema for the dashboards API.
// It configures one central dashboard deployment and the links it shows.
type Dashboard struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   DashboardSpec   `json:"spec,omitempty"`
	Status DashboardStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// DashboardList contains a list of Dashboard.
type DashboardList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Dashboard `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Dashboard{}, &DashboardList{})
}
