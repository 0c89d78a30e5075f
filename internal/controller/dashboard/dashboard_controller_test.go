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

package dashboard

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	dashboardv1 "github.com/infinilabs/dashboard-operator/api/dashboard/v1"
	"github.com/infinilabs/dashboard-operator/pkg/apis/common"
	"github.com/infinilabs/dashboard-operator/pkg/links"
	dashboardreconciler "github.com/infinilabs/dashboard-operator/pkg/reconcilers/dashboard"
	"github.com/infinilabs/dashboard-operator/pkg/relation"
	"github.com/infinilabs/dashboard-operator/pkg/status"
	"github.com/infinilabs/dashboard-operator/pkg/workload"
)

var _ = Describe("Dashboard Controller", func() {
	const (
		resourceName = "main"
		namespace    = common.DefaultTargetNamespace
	)

	var (
		ctx        context.Context
		k8sClient  client.Client
		resources  *memoryResources
		supervisor *memorySupervisor
		recorder   *record.FakeRecorder
		key        types.NamespacedName
	)

	newReconciler := func(leader bool) *DashboardReconciler {
		negotiator, err := dashboardreconciler.NewProfilesNegotiator()
		Expect(err).NotTo(HaveOccurred())
		return &DashboardReconciler{
			Client:   k8sClient,
			Scheme:   testScheme,
			Recorder: recorder,
			Driver: &dashboardreconciler.Driver{
				Resources:       resources,
				Negotiator:      negotiator,
				Leader:          dashboardreconciler.StaticLeaderChecker(leader),
				Scheme:          testScheme,
				TargetNamespace: common.DefaultTargetNamespace,
			},
			NewSupervisor: func(*dashboardv1.Dashboard, dashboardreconciler.Config) workload.Supervisor {
				return supervisor
			},
		}
	}

	newRelation := func(name, endpoint, app string, data map[string]string) *dashboardv1.DashboardRelation {
		return &dashboardv1.DashboardRelation{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
			Spec: dashboardv1.DashboardRelationSpec{
				Dashboard:   resourceName,
				Endpoint:    endpoint,
				Application: app,
				Data:        data,
			},
		}
	}

	profiles := func() *dashboardv1.DashboardRelation {
		return newRelation("kubeflow-profiles-1", common.ProfilesEndpoint, "kubeflow-profiles", map[string]string{
			relation.SupportedVersionsKey: "- v1\n",
			relation.DataKey:              "service-name: kfam\nservice-port: '8081'\n",
		})
	}

	buildClient := func(objs ...client.Object) {
		k8sClient = fake.NewClientBuilder().
			WithScheme(testScheme).
			WithStatusSubresource(&dashboardv1.Dashboard{}).
			WithObjects(objs...).
			Build()
	}

	reconcileOnce := func(r *DashboardReconciler) reconcile.Result {
		result, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		return result
	}

	fetch := func() *dashboardv1.Dashboard {
		dash := &dashboardv1.Dashboard{}
		Expect(k8sClient.Get(ctx, key, dash)).To(Succeed())
		return dash
	}

	BeforeEach(func() {
		ctx = context.Background()
		resources = newMemoryResources()
		supervisor = &memorySupervisor{}
		recorder = record.NewFakeRecorder(20)
		key = types.NamespacedName{Name: resourceName, Namespace: namespace}
	})

	Context("When every dependency is present", func() {
		BeforeEach(func() {
			dash := &dashboardv1.Dashboard{
				ObjectMeta: metav1.ObjectMeta{Name: resourceName, Namespace: namespace},
				Spec: dashboardv1.DashboardSpec{
					Links: dashboardv1.DashboardLinksSpec{
						External: dashboardv1.LinkSourceSpec{
							Additional: `[{"text": "Docs", "link": "https://www.kubeflow.org", "type": "item", "icon": "book"}]`,
						},
					},
				},
			}
			peer := newRelation("links-1", common.LinksEndpoint, "jupyter-ui", map[string]string{
				links.RelationDataKey: `[{"text": "Notebooks", "link": "/jupyter/", "type": "item", "icon": "book"}]`,
			})
			other := newRelation("links-2", common.LinksEndpoint, "elsewhere", map[string]string{
				links.RelationDataKey: `[{"text": "Other", "link": "/other/", "type": "item", "icon": "book"}]`,
			})
			other.Spec.Dashboard = "another-dashboard"
			buildClient(dash, profiles(), peer, other)
		})

		It("should publish links, configure the workload and report Active", func() {
			result := reconcileOnce(newReconciler(true))
			Expect(result.RequeueAfter).To(BeZero())

			dash := fetch()
			Expect(dash.Finalizers).To(ContainElement(dashboardv1.DashboardFinalizer))
			Expect(dash.Status.Phase).To(Equal(dashboardv1.DashboardPhaseActive))
			Expect(dash.Status.LinkCounts).To(HaveKeyWithValue("menu", int32(1)))
			Expect(dash.Status.LinkCounts).To(HaveKeyWithValue("external", int32(1)))
			Expect(dash.Status.LastReconcileTime).NotTo(BeNil())

			ready := meta.FindStatusCondition(dash.Status.Conditions, dashboardv1.ConditionReady)
			Expect(ready).NotTo(BeNil())
			Expect(ready.Status).To(Equal(metav1.ConditionTrue))

			workloadCond := meta.FindStatusCondition(dash.Status.Conditions, dashboardv1.ConditionWorkloadAvailable)
			Expect(workloadCond).NotTo(BeNil())
			Expect(workloadCond.Reason).To(Equal("DeploymentUnavailable"))

			cm, ok := resources.objects["ConfigMap/"+namespace+"/"+common.DefaultConfigMapName].(*corev1.ConfigMap)
			Expect(ok).To(BeTrue())
			set, err := links.UnmarshalLinkSet(cm.Data[dashboardreconciler.LinksKey])
			Expect(err).NotTo(HaveOccurred())
			Expect(set.MenuLinks).To(HaveLen(1))
			Expect(set.MenuLinks[0].Text).To(Equal("Notebooks"))

			Expect(supervisor.current.Environment).To(HaveKeyWithValue("PROFILES_KFAM_SERVICE_HOST", "kfam."+namespace))
			Expect(recorder.Events).To(Receive(ContainSubstring(string(status.ReasonActive))))
		})

		It("should not replan or emit events when nothing changed", func() {
			r := newReconciler(true)
			reconcileOnce(r)
			first := fetch().Status.LastReconcileTime
			Eventually(recorder.Events).Should(Receive())

			reconcileOnce(r)

			Expect(supervisor.replans).To(Equal(1))
			Expect(fetch().Status.LastReconcileTime).To(Equal(first))
			Consistently(recorder.Events, 100*time.Millisecond).ShouldNot(Receive())
		})

		It("should drop the links of a removed peer", func() {
			r := newReconciler(true)
			reconcileOnce(r)

			Expect(k8sClient.Delete(ctx, newRelation("links-1", common.LinksEndpoint, "jupyter-ui", nil))).To(Succeed())
			reconcileOnce(r)

			Expect(fetch().Status.LinkCounts).To(HaveKeyWithValue("menu", int32(0)))
			cm := resources.objects["ConfigMap/"+namespace+"/"+common.DefaultConfigMapName].(*corev1.ConfigMap)
			set, err := links.UnmarshalLinkSet(cm.Data[dashboardreconciler.LinksKey])
			Expect(err).NotTo(HaveOccurred())
			Expect(set.MenuLinks).To(BeEmpty())
		})

		It("should clean up cluster resources when deleted", func() {
			r := newReconciler(true)
			forgetting := &forgettingFakeRecorder{FakeRecorder: recorder}
			r.Recorder = forgetting
			reconcileOnce(r)
			Expect(forgetting.forgotten).To(BeEmpty())

			Expect(k8sClient.Delete(ctx, fetch())).To(Succeed())
			reconcileOnce(r)

			Expect(resources.deleted).To(ConsistOf(
				"ClusterRole//kubeflow-main",
				"ClusterRoleBinding//kubeflow-main",
			))
			err := k8sClient.Get(ctx, key, &dashboardv1.Dashboard{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
			Expect(forgetting.forgotten).To(ConsistOf(resourceName))
		})
	})

	Context("When the replica is not the leader", func() {
		BeforeEach(func() {
			buildClient(&dashboardv1.Dashboard{ObjectMeta: metav1.ObjectMeta{Name: resourceName, Namespace: namespace}})
		})

		It("should leave the object untouched and retry later", func() {
			result := reconcileOnce(newReconciler(false))

			Expect(result.RequeueAfter).To(Equal(waitingRequeueAfter))
			dash := fetch()
			Expect(dash.Finalizers).To(BeEmpty())
			Expect(dash.Status.Phase).To(BeEmpty())
			Expect(resources.applies).To(BeZero())
		})
	})

	Context("When the profiles peer is missing", func() {
		BeforeEach(func() {
			buildClient(&dashboardv1.Dashboard{ObjectMeta: metav1.ObjectMeta{Name: resourceName, Namespace: namespace}})
		})

		It("should report Blocked and requeue slowly", func() {
			result := reconcileOnce(newReconciler(true))

			Expect(result.RequeueAfter).To(Equal(blockedRequeueAfter))
			dash := fetch()
			Expect(dash.Status.Phase).To(Equal(dashboardv1.DashboardPhaseBlocked))
			ready := meta.FindStatusCondition(dash.Status.Conditions, dashboardv1.ConditionReady)
			Expect(ready.Reason).To(Equal(string(status.ReasonRequiredPeerMissing)))
			Expect(dash.Status.LinkCounts).To(BeEmpty())
			Expect(recorder.Events).To(Receive(SatisfyAll(
				ContainSubstring(corev1.EventTypeWarning),
				ContainSubstring(string(status.ReasonRequiredPeerMissing)),
			)))
		})
	})

	Context("When deployed outside the target namespace", func() {
		BeforeEach(func() {
			key = types.NamespacedName{Name: resourceName, Namespace: "default"}
			buildClient(&dashboardv1.Dashboard{ObjectMeta: metav1.ObjectMeta{Name: resourceName, Namespace: "default"}})
		})

		It("should report Error without requeueing", func() {
			result := reconcileOnce(newReconciler(true))

			Expect(result).To(Equal(reconcile.Result{}))
			Expect(fetch().Status.Phase).To(Equal(dashboardv1.DashboardPhaseError))
		})
	})

	Context("When the Dashboard does not exist", func() {
		BeforeEach(func() {
			buildClient()
		})

		It("should succeed without doing anything", func() {
			Expect(reconcileOnce(newReconciler(true))).To(Equal(reconcile.Result{}))
			Expect(resources.applies).To(BeZero())
		})
	})
})

var _ = Describe("relationToDashboard", func() {
	It("should map a relation to its dashboard", func() {
		rel := &dashboardv1.DashboardRelation{
			ObjectMeta: metav1.ObjectMeta{Name: "links-1", Namespace: "kubeflow"},
			Spec:       dashboardv1.DashboardRelationSpec{Dashboard: "main"},
		}
		Expect(relationToDashboard(context.Background(), rel)).To(ConsistOf(reconcile.Request{
			NamespacedName: types.NamespacedName{Namespace: "kubeflow", Name: "main"},
		}))
	})

	It("should ignore unbound relations", func() {
		Expect(relationToDashboard(context.Background(), &dashboardv1.DashboardRelation{})).To(BeEmpty())
		Expect(relationToDashboard(context.Background(), &corev1.ConfigMap{})).To(BeEmpty())
	})
})

var _ = Describe("requeueFor", func() {
	DescribeTable("maps severities to requeue intervals",
		func(st status.Status, expected reconcile.Result) {
			Expect(requeueFor(st)).To(Equal(expected))
		},
		Entry("active", status.Active(), reconcile.Result{}),
		Entry("waiting", status.NotLeader(), reconcile.Result{RequeueAfter: waitingRequeueAfter}),
		Entry("blocked", status.RequiredPeerMissing("x"), reconcile.Result{RequeueAfter: blockedRequeueAfter}),
		Entry("fatal", status.WrongDeploymentTarget("a", "b"), reconcile.Result{}),
	)
})

// forgettingFakeRecorder records which objects the reconciler asked it to forget.
type forgettingFakeRecorder struct {
	*record.FakeRecorder
	forgotten []string
}

func (r *forgettingFakeRecorder) Forget(object runtime.Object) {
	if obj, ok := object.(client.Object); ok {
		r.forgotten = append(r.forgotten, obj.GetName())
	}
}
