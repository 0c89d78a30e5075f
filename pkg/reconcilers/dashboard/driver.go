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

// pkg/reconcilers/dashboard/driver.go
// Package dashboard drives one reconciliation pass of a dashboard: it checks
// preconditions in a fixed order, publishes the aggregated links and shared
// configuration, and brings the workload configuration up to date.
package dashboard

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	dashboardv1 "github.com/infinilabs/dashboard-operator/api/dashboard/v1"
	"github.com/infinilabs/dashboard-operator/pkg/apis/common"
	"github.com/infinilabs/dashboard-operator/pkg/links"
	commonreconcilers "github.com/infinilabs/dashboard-operator/pkg/reconcilers/common"
	"github.com/infinilabs/dashboard-operator/pkg/relation"
	"github.com/infinilabs/dashboard-operator/pkg/status"
	"github.com/infinilabs/dashboard-operator/pkg/workload"
)

// Driver runs reconciliation passes. It keeps no state between passes.
type Driver struct {
	Resources  ResourceClient
	Negotiator Negotiator
	Leader     LeaderChecker
	// Scheme resolves owner references; nil skips them.
	Scheme *runtime.Scheme
	// TargetNamespace is the only namespace dashboards may be deployed to.
	TargetNamespace string
}

// Inputs is everything a pass reads, captured fresh by the caller.
type Inputs struct {
	Dashboard  *dashboardv1.Dashboard
	Relations  []relation.Relation
	Supervisor workload.Supervisor
}

// Result is the outcome of a pass.
type Result struct {
	Status status.Status
	// FailedTask names the check that produced a non-active status.
	FailedTask string
	// Links is set once aggregation ran, LinksJSON once it was serialized.
	Links     links.LinkSet
	LinksJSON string
	// LinksChanged reports that the published links differ from the previous pass.
	LinksChanged bool
	// LayerChanged reports that the workload was replanned.
	LayerChanged bool
}

// pass carries data from one task to the next.
type pass struct {
	in              Inputs
	cfg             Config
	interfaces      map[string]*relation.Interface
	profilesService string
	result          *Result
}

// Reconcile runs one full pass over in. Every pass recomputes the whole desired
// state; nothing from earlier passes is reused.
func (d *Driver) Reconcile(ctx context.Context, in Inputs) Result {
	logger := log.FromContext(ctx).WithValues("dashboard", client.ObjectKeyFromObject(in.Dashboard).String())
	ctx = log.IntoContext(ctx, logger)

	result := &Result{}
	p := &pass{in: in, cfg: ConfigFrom(in.Dashboard), result: result}

	tasks := []commonreconcilers.Task{
		commonreconcilers.NewTask("CheckContainer", p.checkContainer),
		commonreconcilers.NewTask("CheckDeploymentTarget", d.checkTarget(p)),
		commonreconcilers.NewTask("CheckLeader", d.checkLeader),
		commonreconcilers.NewTask("NegotiateInterfaces", d.negotiate(p)),
		commonreconcilers.NewTask("CheckRequiredPeer", p.checkPeer),
		commonreconcilers.NewTask("CheckPeerData", p.checkPeerData),
		commonreconcilers.NewTask("ApplyResources", d.applyResources(p)),
		commonreconcilers.NewTask("UpdateLayer", p.updateLayer),
	}

	st, failed := commonreconcilers.RunTasks(ctx, tasks)
	result.Status = st
	result.FailedTask = failed
	if st.IsActive() {
		logger.Info("Dashboard reconciled", "linkCounts", result.Links.Counts(), "layerChanged", result.LayerChanged)
	}
	return *result
}

func (p *pass) checkContainer(ctx context.Context) status.Status {
	if p.in.Supervisor == nil || !p.in.Supervisor.CanConnect(ctx) {
		return status.ContainerNotReady()
	}
	return status.Active()
}

func (d *Driver) checkTarget(p *pass) func(context.Context) status.Status {
	return func(context.Context) status.Status {
		expected := d.TargetNamespace
		if expected == "" {
			expected = common.DefaultTargetNamespace
		}
		if p.cfg.Namespace != expected {
			return status.WrongDeploymentTarget(p.cfg.Namespace, expected)
		}
		return status.Active()
	}
}

func (d *Driver) checkLeader(context.Context) status.Status {
	if d.Leader == nil || !d.Leader.IsLeader() {
		return status.NotLeader()
	}
	return status.Active()
}

func (d *Driver) negotiate(p *pass) func(context.Context) status.Status {
	return func(ctx context.Context) status.Status {
		interfaces, err := d.Negotiator.GetInterfaces(p.in.Relations)
		switch {
		case err == nil:
			p.interfaces = interfaces
			return status.Active()
		case errors.Is(err, relation.ErrNoVersionsListed):
			return status.NegotiationPending(err)
		default:
			return status.NegotiationFailed(err)
		}
	}
}

func (p *pass) checkPeer(context.Context) status.Status {
	if p.interfaces[common.ProfilesEndpoint] == nil {
		return status.RequiredPeerMissing(common.ProfilesEndpoint)
	}
	return status.Active()
}

func (p *pass) checkPeerData(ctx context.Context) status.Status {
	data, err := p.interfaces[common.ProfilesEndpoint].GetData()
	if err != nil {
		return status.NegotiationFailed(err)
	}

	// Relations come oldest first, so the earliest publishing peer wins.
	for _, r := range p.interfaces[common.ProfilesEndpoint].Relations() {
		if name := data[r.ID].String("service-name"); name != "" {
			p.profilesService = name
			log.FromContext(ctx).V(1).Info("Using profiles service", "relation", r.ID, "service", name)
			return status.Active()
		}
	}
	return status.RequiredPeerDataMissing(common.ProfilesEndpoint)
}

func (d *Driver) applyResources(p *pass) func(context.Context) status.Status {
	return func(ctx context.Context) status.Status {
		logger := log.FromContext(ctx)

		var contributions []links.Contribution
		for _, r := range relation.ForEndpoint(p.in.Relations, common.LinksEndpoint) {
			contributions = append(contributions, links.Contribution{RelationID: r.ID, Established: r.Established, App: r.App, Data: r.Data})
		}
		set := links.AggregateLinkSet(ctx, links.CollectPeerLinks(ctx, contributions), p.cfg.Links)
		linksJSON, err := set.Marshal()
		if err != nil {
			return status.ResourceApplyFailed(err)
		}
		p.result.Links = set
		p.result.LinksJSON = linksJSON

		previous, err := d.publishedLinks(ctx, p.cfg)
		if err != nil {
			return status.ResourceApplyFailed(err)
		}
		p.result.LinksChanged = previous != linksJSON

		objs, err := RenderResources(p.cfg, linksJSON, p.in.Dashboard, d.Scheme)
		if err != nil {
			return status.ResourceApplyFailed(err)
		}
		if err := d.Resources.Apply(ctx, objs...); err != nil {
			return status.ResourceApplyFailed(err)
		}
		logger.V(1).Info("Applied dashboard resources", "count", len(objs), "linksChanged", p.result.LinksChanged)
		return status.Active()
	}
}

// publishedLinks returns the links currently in the shared ConfigMap, or "" if there is none.
func (d *Driver) publishedLinks(ctx context.Context, cfg Config) (string, error) {
	var cm corev1.ConfigMap
	err := d.Resources.Get(ctx, client.ObjectKey{Namespace: cfg.Namespace, Name: cfg.ConfigMapName}, &cm)
	if apierrors.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read ConfigMap %s/%s: %w", cfg.Namespace, cfg.ConfigMapName, err)
	}

	raw := cm.Data[LinksKey]
	previous, err := links.UnmarshalLinkSet(raw)
	if err != nil {
		log.FromContext(ctx).Error(err, "Replacing unreadable published links", "configMap", cfg.ConfigMapName)
		return "", nil
	}
	log.FromContext(ctx).V(1).Info("Read published links", "linkCounts", previous.Counts())
	return raw, nil
}

func (p *pass) updateLayer(ctx context.Context) status.Status {
	logger := log.FromContext(ctx)
	supervisor := p.in.Supervisor
	desired := p.cfg.DesiredLayer(p.profilesService)

	current, err := supervisor.GetCurrentLayer(ctx)
	if err != nil {
		return status.LayerUpdateFailed(err)
	}
	if current.Equal(desired) {
		logger.V(1).Info("Workload layer up to date")
		return status.Active()
	}
	if current.IsZero() {
		logger.Info("Installing the first workload layer")
	}

	if err := supervisor.AddLayer(ctx, common.ServiceName, desired); err != nil {
		return status.LayerUpdateFailed(err)
	}
	if err := supervisor.Replan(ctx); err != nil {
		var changeErr *workload.ChangeError
		if errors.As(err, &changeErr) {
			logger.Error(err, "Workload rejected the new layer", "change", changeErr.Change)
		}
		return status.LayerUpdateFailed(err)
	}
	p.result.LayerChanged = true
	return status.Active()
}

// Cleanup deletes the cluster-scoped objects of dash. Namespaced objects go with their owner.
func (d *Driver) Cleanup(ctx context.Context, dash *dashboardv1.Dashboard) error {
	if err := d.Resources.Delete(ctx, ClusterObjects(ConfigFrom(dash))...); err != nil {
		return fmt.Errorf("failed to clean up cluster resources of dashboard %s/%s: %w", dash.Namespace, dash.Name, err)
	}
	return nil
}
