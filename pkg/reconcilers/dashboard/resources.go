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

// pkg/reconcilers/dashboard/resources.go
package dashboard

import (
	"encoding/json"
	"fmt"
	"strconv"

	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	dashboardv1 "github.com/infinilabs/dashboard-operator/api/dashboard/v1"
	"github.com/infinilabs/dashboard-operator/pkg/apis/common"
	commonutil "github.com/infinilabs/dashboard-operator/pkg/apis/common/util"
	builders "github.com/infinilabs/dashboard-operator/pkg/builders/k8s"
	"github.com/infinilabs/dashboard-operator/pkg/links"
	"github.com/infinilabs/dashboard-operator/pkg/workload"
)

// ConfigMap keys read by the dashboard.
const (
	SettingsKey = "settings"
	LinksKey    = "links"
)

// Config is the Dashboard spec with defaults applied.
type Config struct {
	Name             string
	Namespace        string
	Port             int32
	ConfigMapName    string
	RegistrationFlow bool
	Profile          string
	Links            map[links.Location]links.SourceConfig
}

// ConfigFrom resolves the effective configuration of dash.
func ConfigFrom(dash *dashboardv1.Dashboard) Config {
	spec := dash.Spec
	return Config{
		Name:             dash.Name,
		Namespace:        dash.Namespace,
		Port:             commonutil.Int32OrDefault(spec.Port, common.DefaultPort),
		ConfigMapName:    commonutil.StringOrDefault(spec.ConfigMapName, common.DefaultConfigMapName),
		RegistrationFlow: spec.RegistrationFlow,
		Profile:          spec.Profile,
		Links: map[links.Location]links.SourceConfig{
			links.LocationMenu:          {Additional: spec.Links.Menu.Additional, Order: spec.Links.Menu.Order},
			links.LocationExternal:      {Additional: spec.Links.External.Additional, Order: spec.Links.External.Order},
			links.LocationQuick:         {Additional: spec.Links.Quick.Additional, Order: spec.Links.Quick.Order},
			links.LocationDocumentation: {Additional: spec.Links.Documentation.Additional, Order: spec.Links.Documentation.Order},
		},
	}
}

// ResourceName is the name shared by the namespaced objects of the dashboard.
func (c Config) ResourceName() string {
	return builders.DeriveResourceName(c.Name)
}

// ClusterResourceName is the name of the cluster-scoped RBAC objects of the dashboard.
func (c Config) ClusterResourceName() string {
	return builders.DeriveClusterResourceName(c.Namespace, c.Name)
}

// DeploymentParams describes the dashboard Deployment for the workload supervisor.
func (c Config) DeploymentParams(image string) workload.DeploymentParams {
	return workload.DeploymentParams{
		Name:               c.ResourceName(),
		Namespace:          c.Namespace,
		Image:              image,
		ContainerName:      common.DefaultComponentName,
		Port:               c.Port,
		ServiceAccountName: c.ResourceName(),
		Labels:             builders.BuildCommonLabels(c.Name),
		SelectorLabels:     builders.BuildSelectorLabels(c.Name),
	}
}

// DesiredLayer is the process configuration for the dashboard talking to the
// profiles service identified by profilesService.
func (c Config) DesiredLayer(profilesService string) workload.ServiceConfig {
	return workload.ServiceConfig{
		Summary: "kubeflow-dashboard layer",
		Command: "npm start",
		Startup: "enabled",
		Environment: map[string]string{
			"USERID_HEADER":              "kubeflow-userid",
			"USERID_PREFIX":              "",
			"PROFILES_KFAM_SERVICE_HOST": fmt.Sprintf("%s.%s", profilesService, c.Namespace),
			"REGISTRATION_FLOW":          strconv.FormatBool(c.RegistrationFlow),
			"DASHBOARD_LINKS_CONFIGMAP":  c.ConfigMapName,
		},
	}
}

// RenderResources builds every object the dashboard needs besides its Deployment.
// Namespaced objects are controlled by owner; cluster-scoped ones are cleaned up by the finalizer.
func RenderResources(cfg Config, linksJSON string, owner client.Object, scheme *runtime.Scheme) ([]client.Object, error) {
	labels := builders.BuildCommonLabels(cfg.Name)
	name := cfg.ResourceName()

	settings, err := json.Marshal(map[string]bool{"DASHBOARD_FORCE_IFRAME": true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode dashboard settings: %w", err)
	}

	sa := builders.BuildServiceAccount(builders.BuildObjectMeta(name, cfg.Namespace, labels, nil))
	svc := builders.BuildService(builders.BuildObjectMeta(name, cfg.Namespace, labels, nil),
		builders.BuildSelectorLabels(cfg.Name), common.ContainerPortName, cfg.Port)
	cm := builders.BuildConfigMap(builders.BuildObjectMeta(cfg.ConfigMapName, cfg.Namespace, labels, nil), map[string]string{
		SettingsKey: string(settings),
		LinksKey:    linksJSON,
	})

	namespaced := []client.Object{sa, svc, cm}
	if owner != nil && scheme != nil {
		for _, obj := range namespaced {
			if err := controllerutil.SetControllerReference(owner, obj, scheme); err != nil {
				return nil, fmt.Errorf("failed to set owner reference on %s: %w", obj.GetName(), err)
			}
		}
	}

	return append(namespaced, ClusterObjects(cfg)...), nil
}

// ClusterObjects returns the cluster-scoped objects of the dashboard.
func ClusterObjects(cfg Config) []client.Object {
	labels := builders.BuildCommonLabels(cfg.Name)
	clusterName := cfg.ClusterResourceName()

	role := builders.BuildClusterRole(builders.BuildObjectMeta(clusterName, "", labels, nil), builders.DashboardPolicyRules())
	binding := builders.BuildClusterRoleBinding(builders.BuildObjectMeta(clusterName, "", labels, nil),
		role.Name, cfg.ResourceName(), cfg.Namespace)

	objs := []client.Object{role, binding}
	if cfg.Profile != "" {
		objs = append(objs, builders.BuildProfile(cfg.Profile, labels))
	}
	return objs
}
