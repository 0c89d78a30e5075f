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

// api/dashboard/v1/dashboardrelation_types.go
package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DashboardRelationSpec describes one established connection between a Dashboard and a peer application.
type DashboardRelationSpec struct {
	// Dashboard is the name of the Dashboard in the same namespace.
	// +kubebuilder:validation:Required
	Dashboard string `json:"dashboard"`

	// Endpoint is the dashboard endpoint the peer is related on.
	// +kubebuilder:validation:Enum=links;kubeflow-profiles
	Endpoint string `json:"endpoint"`

	// Application is the peer application name.
	// +kubebuilder:validation:Required
	Application string `json:"application"`

	// Data is the data bag published by the peer.
	// +optional
	Data map[string]string `json:"data,omitempty"`
}

//+kubebuilder:object:root=true
//+kubebuilder:resource:scope=Namespaced,path=dashboardrelations,shortName=dashrel,categories={infini}
//+kubebuilder:printcolumn:name="Dashboard",type=string,JSONPath=".spec.dashboard"
//+kubebuilder:printcolumn:name="Endpoint",type=string,JSONPath=".spec.endpoint"
//+kubebuilder:printcolumn:name="Application",type=string,JSONPath=".spec.application"
//+kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// DashboardRelation is the Schema for the dashboardrelations API.
// Deleting it removes the peer from the dashboard on the next reconciliation.
type DashboardRelation struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec DashboardRelationSpec `json:"spec,omitempty"`
}

// +kubebuilder:object:root=true

// DashboardRelationList contains a list of DashboardRelation.
type DashboardRelationList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []DashboardRelation `json:"items"`
}

func init() {
	SchemeBuilder.Register(&DashboardRelation{}, &DashboardRelationList{})
}
