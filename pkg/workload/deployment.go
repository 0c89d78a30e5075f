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

// pkg/workload/deployment.go
package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/infinilabs/dashboard-operator/pkg/apis/common"
	builders "github.com/infinilabs/dashboard-operator/pkg/builders/k8s"
)

// Applier writes objects with Server-Side Apply.
type Applier interface {
	Apply(ctx context.Context, objs ...client.Object) error
}

// DeploymentParams are the parts of the Deployment that do not come from layers.
type DeploymentParams struct {
	Name               string
	Namespace          string
	Image              string
	ContainerName      string
	Port               int32
	ServiceAccountName string
	Labels             map[string]string
	SelectorLabels     map[string]string
}

// DeploymentSupervisor runs the dashboard as a single-replica Deployment. The
// merged layer is stored on the Deployment so later passes can compare against it.
type DeploymentSupervisor struct {
	reader  client.Reader
	applier Applier
	scheme  *runtime.Scheme
	owner   client.Object
	params  DeploymentParams

	layerNames []string
	layers     map[string]ServiceConfig
}

// NewDeploymentSupervisor returns a supervisor for the Deployment described by params,
// controlled by owner. Staged layers live only as long as the returned value.
func NewDeploymentSupervisor(reader client.Reader, applier Applier, scheme *runtime.Scheme, owner client.Object, params DeploymentParams) *DeploymentSupervisor {
	return &DeploymentSupervisor{
		reader:  reader,
		applier: applier,
		scheme:  scheme,
		owner:   owner,
		params:  params,
		layers:  map[string]ServiceConfig{},
	}
}

func (s *DeploymentSupervisor) key() client.ObjectKey {
	return client.ObjectKey{Namespace: s.params.Namespace, Name: s.params.Name}
}

// CanConnect is true when the API server answers for the Deployment, whether or not it exists.
func (s *DeploymentSupervisor) CanConnect(ctx context.Context) bool {
	var deploy appsv1.Deployment
	err := s.reader.Get(ctx, s.key(), &deploy)
	if err == nil || apierrors.IsNotFound(err) {
		return true
	}
	log.FromContext(ctx).V(1).Info("Workload supervisor unreachable", "deployment", s.key().String(), "error", err.Error())
	return false
}

// GetCurrentLayer decodes the layer annotation of the live Deployment.
func (s *DeploymentSupervisor) GetCurrentLayer(ctx context.Context) (ServiceConfig, error) {
	var deploy appsv1.Deployment
	if err := s.reader.Get(ctx, s.key(), &deploy); err != nil {
		if apierrors.IsNotFound(err) {
			return ServiceConfig{}, nil
		}
		return ServiceConfig{}, fmt.Errorf("failed to read Deployment %s: %w", s.key(), err)
	}

	raw := deploy.Annotations[common.LayerAnnotation]
	if raw == "" {
		return ServiceConfig{}, nil
	}
	var layer ServiceConfig
	if err := json.Unmarshal([]byte(raw), &layer); err != nil {
		// A corrupted annotation is treated as "no layer" so the next Replan rewrites it.
		log.FromContext(ctx).Error(err, "Ignoring unreadable layer annotation", "deployment", s.key().String())
		return ServiceConfig{}, nil
	}
	return layer, nil
}

// AddLayer stages cfg under name.
func (s *DeploymentSupervisor) AddLayer(_ context.Context, name string, cfg ServiceConfig) error {
	if name == "" {
		return fmt.Errorf("layer name must not be empty")
	}
	if _, ok := s.layers[name]; !ok {
		s.layerNames = append(s.layerNames, name)
	}
	s.layers[name] = cfg
	return nil
}

// Merged returns the staged layers combined in the order they were first added.
func (s *DeploymentSupervisor) Merged() ServiceConfig {
	var merged ServiceConfig
	for _, name := range s.layerNames {
		merged = merged.Merge(s.layers[name])
	}
	return merged
}

// Replan renders and applies the Deployment for the staged layers.
func (s *DeploymentSupervisor) Replan(ctx context.Context) error {
	change := "replan " + s.key().String()
	if len(s.layerNames) == 0 {
		return &ChangeError{Change: change, Err: fmt.Errorf("no layer staged")}
	}

	deploy, err := s.BuildDeployment(s.Merged())
	if err != nil {
		return &ChangeError{Change: change, Err: err}
	}
	if err := s.applier.Apply(ctx, deploy); err != nil {
		return &ChangeError{Change: change, Err: err}
	}
	log.FromContext(ctx).Info("Workload replanned", "deployment", s.key().String(), "layers", s.layerNames)
	return nil
}

// BuildDeployment renders the Deployment running layer.
func (s *DeploymentSupervisor) BuildDeployment(layer ServiceConfig) (*appsv1.Deployment, error) {
	encoded, err := json.Marshal(layer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode layer: %w", err)
	}

	container := builders.BuildMainContainerSpec(builders.ContainerSpec{
		Name:     s.params.ContainerName,
		Image:    s.params.Image,
		Command:  strings.Fields(layer.Command),
		Env:      layer.Environment,
		PortName: common.ContainerPortName,
		Port:     s.params.Port,
		Liveness: builders.BuildHTTPProbe("/healthz", s.params.Port, 30, 30),
	})
	template := builders.BuildPodTemplateSpec(container, s.params.ServiceAccountName, s.params.Labels, nil)

	annotations := map[string]string{common.LayerAnnotation: string(encoded)}
	deploy := builders.BuildDeployment(
		builders.BuildObjectMeta(s.params.Name, s.params.Namespace, s.params.Labels, annotations),
		s.params.SelectorLabels,
		ptr.To[int32](1),
		template,
	)

	if s.owner != nil && s.scheme != nil {
		if err := controllerutil.SetControllerReference(s.owner, deploy, s.scheme); err != nil {
			return nil, fmt.Errorf("failed to set owner reference on Deployment: %w", err)
		}
	}
	return deploy, nil
}
