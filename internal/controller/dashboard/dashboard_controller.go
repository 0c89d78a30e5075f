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

// Package dashboard reconciles Dashboard objects and the DashboardRelations bound to them.
package dashboard

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	dashboardv1 "github.com/infinilabs/dashboard-operator/api/dashboard/v1"
	"github.com/infinilabs/dashboard-operator/internal/controller/common/kubeutil"
	dashboardreconciler "github.com/infinilabs/dashboard-operator/pkg/reconcilers/dashboard"
	"github.com/infinilabs/dashboard-operator/pkg/relation"
	"github.com/infinilabs/dashboard-operator/pkg/status"
	"github.com/infinilabs/dashboard-operator/pkg/webrecorder"
	"github.com/infinilabs/dashboard-operator/pkg/workload"
)

// Requeue intervals per severity. Fatal and Active passes are not requeued.
const (
	waitingRequeueAfter = 10 * time.Second
	blockedRequeueAfter = 60 * time.Second
)

// SupervisorFactory creates the workload supervisor for one pass over dash.
type SupervisorFactory func(dash *dashboardv1.Dashboard, cfg dashboardreconciler.Config) workload.Supervisor

// DeploymentSupervisorFactory supervises the dashboard Deployment through the API server.
func DeploymentSupervisorFactory(reader client.Reader, applier workload.Applier, scheme *runtime.Scheme, image string) SupervisorFactory {
	return func(dash *dashboardv1.Dashboard, cfg dashboardreconciler.Config) workload.Supervisor {
		return workload.NewDeploymentSupervisor(reader, applier, scheme, dash, cfg.DeploymentParams(image))
	}
}

// linkEventRecorder is implemented by recorders that forward link counts.
type linkEventRecorder interface {
	AnnotatedEventfWithLinks(object runtime.Object, annotations map[string]string, linkCounts map[string]int, eventtype, reason, messageFmt string, args ...interface{})
}

// forgettingRecorder is implemented by recorders that keep per-object state.
type forgettingRecorder interface {
	Forget(object runtime.Object)
}

// DashboardReconciler reconciles Dashboard objects.
type DashboardReconciler struct {
	client.Client
	Scheme        *runtime.Scheme
	Recorder      record.EventRecorder
	Driver        *dashboardreconciler.Driver
	NewSupervisor SupervisorFactory
}

//+kubebuilder:rbac:groups=dashboard.infini.cloud,resources=dashboards,verbs=get;list;watch;update;patch
//+kubebuilder:rbac:groups=dashboard.infini.cloud,resources=dashboards/status,verbs=get;update;patch
//+kubebuilder:rbac:groups=dashboard.infini.cloud,resources=dashboards/finalizers,verbs=update
//+kubebuilder:rbac:groups=dashboard.infini.cloud,resources=dashboardrelations,verbs=get;list;watch
//+kubebuilder:rbac:groups="",resources=services;configmaps;serviceaccounts,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=rbac.authorization.k8s.io,resources=clusterroles;clusterrolebindings,verbs=get;list;watch;create;update;patch;delete;bind;escalate
//+kubebuilder:rbac:groups=kubeflow.org,resources=profiles,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups="",resources=events,verbs=create;patch

func (r *DashboardReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("dashboard", req.NamespacedName)
	ctx = log.IntoContext(ctx, logger)

	dash := &dashboardv1.Dashboard{}
	if err := r.Get(ctx, req.NamespacedName, dash); err != nil {
		if client.IgnoreNotFound(err) != nil {
			logger.Error(err, "Failed to get Dashboard")
			return ctrl.Result{}, err
		}
		logger.V(1).Info("Dashboard not found, assuming deleted")
		forgetDashboard(req.Namespace, req.Name)
		return ctrl.Result{}, nil
	}

	isDeleted, err := r.handleFinalizer(ctx, dash)
	if err != nil || isDeleted {
		return ctrl.Result{}, err
	}

	relations, err := r.relationsFor(ctx, dash)
	if err != nil {
		logger.Error(err, "Failed to list DashboardRelations")
		return ctrl.Result{}, err
	}

	var supervisor workload.Supervisor
	if r.NewSupervisor != nil {
		supervisor = r.NewSupervisor(dash, dashboardreconciler.ConfigFrom(dash))
	}

	result := r.Driver.Reconcile(ctx, dashboardreconciler.Inputs{
		Dashboard:  dash,
		Relations:  relations,
		Supervisor: supervisor,
	})
	recordPass(dash, result)

	if result.Status.Reason() == status.ReasonNotLeader {
		// Only the leader writes; a later pass picks up once this replica is elected.
		logger.V(1).Info("Not the leader, skipping status update")
		return ctrl.Result{RequeueAfter: waitingRequeueAfter}, nil
	}

	if err := r.updateStatus(ctx, dash, result); err != nil {
		if apierrors.IsConflict(err) {
			logger.Info("Status update conflict detected, requeuing for retry")
			return ctrl.Result{Requeue: true}, nil
		}
		logger.Error(err, "Failed to update Dashboard status")
		return ctrl.Result{}, err
	}

	return requeueFor(result.Status), nil
}

// requeueFor maps a status to the requeue policy of its severity.
func requeueFor(st status.Status) ctrl.Result {
	if !st.Retryable() {
		return ctrl.Result{}
	}
	if st.Severity() == status.SeverityWaiting {
		return ctrl.Result{RequeueAfter: waitingRequeueAfter}
	}
	return ctrl.Result{RequeueAfter: blockedRequeueAfter}
}

// handleFinalizer adds the finalizer to live dashboards and runs cleanup for deleted ones.
func (r *DashboardReconciler) handleFinalizer(ctx context.Context, dash *dashboardv1.Dashboard) (isDeleted bool, err error) {
	logger := log.FromContext(ctx)
	leader := r.Driver.Leader != nil && r.Driver.Leader.IsLeader()

	if dash.DeletionTimestamp.IsZero() {
		if leader && !controllerutil.ContainsFinalizer(dash, dashboardv1.DashboardFinalizer) {
			logger.Info("Adding Finalizer")
			controllerutil.AddFinalizer(dash, dashboardv1.DashboardFinalizer)
			if err := r.Update(ctx, dash); err != nil {
				logger.Error(err, "Failed to add finalizer")
				return false, err
			}
		}
		return false, nil
	}

	if !controllerutil.ContainsFinalizer(dash, dashboardv1.DashboardFinalizer) {
		return true, nil
	}
	if !leader {
		logger.V(1).Info("Not the leader, leaving cleanup to the leader")
		return true, nil
	}

	logger.Info("Performing cleanup before finalizer removal")
	if err := r.Driver.Cleanup(ctx, dash); err != nil {
		logger.Error(err, "Cleanup failed")
		return true, err
	}
	controllerutil.RemoveFinalizer(dash, dashboardv1.DashboardFinalizer)
	if err := r.Update(ctx, dash); err != nil {
		logger.Error(err, "Failed to remove finalizer")
		return true, err
	}
	forgetDashboard(dash.Namespace, dash.Name)
	if fr, ok := r.Recorder.(forgettingRecorder); ok {
		fr.Forget(dash)
	}
	logger.Info("Finalizer removed successfully")
	return true, nil
}

// relationsFor snapshots the relations bound to dash.
func (r *DashboardReconciler) relationsFor(ctx context.Context, dash *dashboardv1.Dashboard) ([]relation.Relation, error) {
	var list dashboardv1.DashboardRelationList
	if err := r.List(ctx, &list, client.InNamespace(dash.Namespace)); err != nil {
		return nil, fmt.Errorf("failed to list relations of dashboard %s/%s: %w", dash.Namespace, dash.Name, err)
	}

	var relations []relation.Relation
	for _, item := range list.Items {
		if item.Spec.Dashboard != dash.Name || !item.DeletionTimestamp.IsZero() {
			continue
		}
		relations = append(relations, relation.Relation{
			ID:          item.Name,
			Established: item.CreationTimestamp.Time,
			Endpoint:    item.Spec.Endpoint,
			App:         item.Spec.Application,
			Data:        item.Spec.Data,
		})
	}
	return relations, nil
}

// updateStatus writes the outcome of a pass, skipping the write when nothing changed.
func (r *DashboardReconciler) updateStatus(ctx context.Context, dash *dashboardv1.Dashboard, result dashboardreconciler.Result) error {
	logger := log.FromContext(ctx)
	original := dash.Status.DeepCopy()
	st := result.Status

	dash.Status.ObservedGeneration = dash.Generation
	dash.Status.Phase = phaseFor(st)
	meta.SetStatusCondition(&dash.Status.Conditions, st.Condition(dashboardv1.ConditionReady, dash.Generation))
	meta.SetStatusCondition(&dash.Status.Conditions, r.workloadCondition(ctx, dash))
	if result.LinksJSON != "" {
		counts := map[string]int32{}
		for location, n := range result.Links.Counts() {
			counts[string(location)] = int32(n)
		}
		dash.Status.LinkCounts = counts
	}

	if equality.Semantic.DeepEqual(original, &dash.Status) && !result.LinksChanged && !result.LayerChanged {
		logger.V(1).Info("Status unchanged, skipping update.")
		return nil
	}

	now := metav1.Now()
	dash.Status.LastReconcileTime = &now
	if err := r.Status().Update(ctx, dash); err != nil {
		return err
	}

	if original.Phase != dash.Status.Phase || readyReason(original.Conditions) != string(st.Reason()) {
		r.recordTransition(dash, result)
	}
	logger.V(1).Info("Dashboard status updated", "phase", dash.Status.Phase, "reason", st.Reason())
	return nil
}

func (r *DashboardReconciler) workloadCondition(ctx context.Context, dash *dashboardv1.Dashboard) metav1.Condition {
	cond := metav1.Condition{Type: dashboardv1.ConditionWorkloadAvailable, ObservedGeneration: dash.Generation}
	name := dashboardreconciler.ConfigFrom(dash).ResourceName()

	healthy, message, err := kubeutil.CheckDeploymentHealth(ctx, r.Client, dash.Namespace, name)
	switch {
	case err != nil:
		cond.Status, cond.Reason, cond.Message = metav1.ConditionUnknown, "HealthCheckFailed", err.Error()
	case healthy:
		cond.Status, cond.Reason, cond.Message = metav1.ConditionTrue, "DeploymentAvailable", message
	default:
		cond.Status, cond.Reason, cond.Message = metav1.ConditionFalse, "DeploymentUnavailable", message
	}
	return cond
}

func (r *DashboardReconciler) recordTransition(dash *dashboardv1.Dashboard, result dashboardreconciler.Result) {
	if r.Recorder == nil {
		return
	}
	st := result.Status

	eventType, outcome := corev1.EventTypeNormal, webrecorder.StatusSuccess
	switch st.Severity() {
	case status.SeverityWaiting:
		outcome = webrecorder.StatusInProgress
	case status.SeverityBlocked, status.SeverityFatal:
		eventType, outcome = corev1.EventTypeWarning, webrecorder.StatusFailure
	}
	annotations := map[string]string{
		webrecorder.PhaseKey:  string(dash.Status.Phase),
		webrecorder.StatusKey: outcome,
		webrecorder.StepKey:   result.FailedTask,
	}

	if lr, ok := r.Recorder.(linkEventRecorder); ok {
		counts := map[string]int{}
		for location, n := range result.Links.Counts() {
			counts[string(location)] = n
		}
		lr.AnnotatedEventfWithLinks(dash, annotations, counts, eventType, string(st.Reason()), "%s", st.Message())
		return
	}
	r.Recorder.AnnotatedEventf(dash, annotations, eventType, string(st.Reason()), "%s", st.Message())
}

func phaseFor(st status.Status) dashboardv1.DashboardPhase {
	switch st.Severity() {
	case status.SeverityActive:
		return dashboardv1.DashboardPhaseActive
	case status.SeverityWaiting:
		return dashboardv1.DashboardPhaseWaiting
	case status.SeverityBlocked:
		return dashboardv1.DashboardPhaseBlocked
	default:
		return dashboardv1.DashboardPhaseError
	}
}

func readyReason(conditions []metav1.Condition) string {
	if c := meta.FindStatusCondition(conditions, dashboardv1.ConditionReady); c != nil {
		return c.Reason
	}
	return ""
}

// relationToDashboard enqueues the dashboard a relation is bound to.
func relationToDashboard(_ context.Context, obj client.Object) []reconcile.Request {
	rel, ok := obj.(*dashboardv1.DashboardRelation)
	if !ok || rel.Spec.Dashboard == "" {
		return nil
	}
	return []reconcile.Request{{NamespacedName: types.NamespacedName{Namespace: rel.Namespace, Name: rel.Spec.Dashboard}}}
}

// SetupWithManager sets up the controller with the Manager. The controller runs
// on every replica so non-leaders can report NotLeader; writes are gated by the Driver.
func (r *DashboardReconciler) SetupWithManager(mgr ctrl.Manager) error {
	if r.Recorder == nil {
		r.Recorder = mgr.GetEventRecorderFor("dashboard-controller")
	}

	builder := ctrl.NewControllerManagedBy(mgr).
		For(&dashboardv1.Dashboard{}).
		Watches(&dashboardv1.DashboardRelation{}, handler.EnqueueRequestsFromMapFunc(relationToDashboard)).
		WithOptions(controller.Options{NeedLeaderElection: ptr.To(false)})

	ownedTypes := []client.Object{
		&appsv1.Deployment{},
		&corev1.Service{},
		&corev1.ConfigMap{},
		&corev1.ServiceAccount{},
	}
	for _, t := range ownedTypes {
		builder = builder.Owns(t)
	}

	return builder.Complete(r)
}
