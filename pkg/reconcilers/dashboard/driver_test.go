package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"

	dashboardv1 "github.com/infinilabs/dashboard-operator/api/dashboard/v1"
	"github.com/infinilabs/dashboard-operator/pkg/apis/common"
	"github.com/infinilabs/dashboard-operator/pkg/links"
	"github.com/infinilabs/dashboard-operator/pkg/relation"
	"github.com/infinilabs/dashboard-operator/pkg/status"
	"github.com/infinilabs/dashboard-operator/pkg/workload"
)

// fakeSupervisor keeps the current layer in memory.
type fakeSupervisor struct {
	unreachable bool
	current     workload.ServiceConfig
	staged      *workload.ServiceConfig
	replanErr   error
	addCalls    int
	replans     int
}

func (s *fakeSupervisor) CanConnect(context.Context) bool { return !s.unreachable }

func (s *fakeSupervisor) GetCurrentLayer(context.Context) (workload.ServiceConfig, error) {
	return s.current, nil
}

func (s *fakeSupervisor) AddLayer(_ context.Context, _ string, cfg workload.ServiceConfig) error {
	s.addCalls++
	s.staged = &cfg
	return nil
}

func (s *fakeSupervisor) Replan(context.Context) error {
	s.replans++
	if s.replanErr != nil {
		return &workload.ChangeError{Change: "replan", Err: s.replanErr}
	}
	s.current = *s.staged
	return nil
}

// fakeResources stores applied objects by key.
type fakeResources struct {
	applyErr error
	objects  map[string]client.Object
	applies  int
	deleted  []string
}

func newFakeResources() *fakeResources {
	return &fakeResources{objects: map[string]client.Object{}}
}

func objectKey(obj client.Object) string {
	kind := obj.GetObjectKind().GroupVersionKind().Kind
	if obj.GetNamespace() == "" {
		return kind + "/" + obj.GetName()
	}
	return kind + "/" + obj.GetNamespace() + "/" + obj.GetName()
}

func (r *fakeResources) Apply(_ context.Context, objs ...client.Object) error {
	r.applies++
	if r.applyErr != nil {
		return r.applyErr
	}
	for _, obj := range objs {
		r.objects[objectKey(obj)] = obj
	}
	return nil
}

func (r *fakeResources) Get(_ context.Context, key client.ObjectKey, obj client.Object) error {
	cm, ok := obj.(*corev1.ConfigMap)
	if !ok {
		return errors.New("unsupported type")
	}
	stored, found := r.objects["ConfigMap/"+key.String()]
	if !found {
		return apierrors.NewNotFound(schema.GroupResource{Resource: "configmaps"}, key.Name)
	}
	stored.(*corev1.ConfigMap).DeepCopyInto(cm)
	return nil
}

func (r *fakeResources) Delete(_ context.Context, objs ...client.Object) error {
	for _, obj := range objs {
		r.deleted = append(r.deleted, objectKey(obj))
	}
	return nil
}

func (r *fakeResources) configMap(t *testing.T) *corev1.ConfigMap {
	t.Helper()
	obj, ok := r.objects["ConfigMap/kubeflow/"+common.DefaultConfigMapName]
	require.True(t, ok, "ConfigMap was not applied")
	return obj.(*corev1.ConfigMap)
}

func newScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, dashboardv1.AddToScheme(scheme))
	return scheme
}

func newDriver(t *testing.T, resources *fakeResources, leader bool) *Driver {
	t.Helper()
	negotiator, err := NewProfilesNegotiator()
	require.NoError(t, err)
	return &Driver{
		Resources:       resources,
		Negotiator:      negotiator,
		Leader:          StaticLeaderChecker(leader),
		Scheme:          newScheme(t),
		TargetNamespace: "kubeflow",
	}
}

func newDashboard(namespace string) *dashboardv1.Dashboard {
	return &dashboardv1.Dashboard{
		ObjectMeta: metav1.ObjectMeta{Name: "main", Namespace: namespace, UID: "dash-uid"},
	}
}

func profilesRelation(data map[string]string) relation.Relation {
	return relation.Relation{ID: "kubeflow-profiles-1", Endpoint: common.ProfilesEndpoint, App: "kubeflow-profiles", Data: data}
}

func readyProfiles() relation.Relation {
	return profilesRelation(map[string]string{
		relation.SupportedVersionsKey: "- v1\n",
		relation.DataKey:              "service-name: kfam\nservice-port: '8081'\n",
	})
}

func linksRelation(id, app, raw string) relation.Relation {
	return relation.Relation{ID: id, Endpoint: common.LinksEndpoint, App: app, Data: map[string]string{links.RelationDataKey: raw}}
}

func TestReconcileActive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	resources := newFakeResources()
	supervisor := &fakeSupervisor{}

	dash := newDashboard("kubeflow")
	dash.Spec.RegistrationFlow = true
	dash.Spec.Profile = "admin"

	result := newDriver(t, resources, true).Reconcile(ctx, Inputs{
		Dashboard: dash,
		Relations: []relation.Relation{
			readyProfiles(),
			linksRelation("links-1", "jupyter-ui", `[{"text":"Notebooks","link":"/jupyter/","type":"item","icon":"book"}]`),
		},
		Supervisor: supervisor,
	})

	require.True(t, result.Status.IsActive(), result.Status.String())
	assert.Empty(t, result.FailedTask)
	assert.True(t, result.LinksChanged)
	assert.True(t, result.LayerChanged)

	for _, key := range []string{
		"ServiceAccount/kubeflow/main",
		"Service/kubeflow/main",
		"ConfigMap/kubeflow/" + common.DefaultConfigMapName,
		"ClusterRole/kubeflow-main",
		"ClusterRoleBinding/kubeflow-main",
		"Profile/admin",
	} {
		assert.Contains(t, resources.objects, key)
	}

	cm := resources.configMap(t)
	assert.JSONEq(t, `{"DASHBOARD_FORCE_IFRAME": true}`, cm.Data[SettingsKey])
	assert.Equal(t, result.LinksJSON, cm.Data[LinksKey])
	require.Len(t, cm.OwnerReferences, 1)
	assert.Equal(t, "main", cm.OwnerReferences[0].Name)

	published, err := links.UnmarshalLinkSet(cm.Data[LinksKey])
	require.NoError(t, err)
	require.Len(t, published.MenuLinks, 1)
	assert.Equal(t, "Notebooks", published.MenuLinks[0].Text)
	assert.NotNil(t, published.QuickLinks)

	env := supervisor.current.Environment
	assert.Equal(t, "kfam.kubeflow", env["PROFILES_KFAM_SERVICE_HOST"])
	assert.Equal(t, "true", env["REGISTRATION_FLOW"])
	assert.Equal(t, common.DefaultConfigMapName, env["DASHBOARD_LINKS_CONFIGMAP"])
	assert.Equal(t, "kubeflow-userid", env["USERID_HEADER"])
	assert.Contains(t, env, "USERID_PREFIX")
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	resources := newFakeResources()
	supervisor := &fakeSupervisor{}
	driver := newDriver(t, resources, true)

	in := Inputs{
		Dashboard:  newDashboard("kubeflow"),
		Relations:  []relation.Relation{readyProfiles(), linksRelation("links-1", "a", `[{"text":"a","link":"/a","type":"item","icon":"i"}]`)},
		Supervisor: supervisor,
	}

	first := driver.Reconcile(ctx, in)
	second := driver.Reconcile(ctx, in)

	require.True(t, first.Status.IsActive())
	require.True(t, second.Status.IsActive())
	assert.Equal(t, first.LinksJSON, second.LinksJSON)
	assert.False(t, second.LinksChanged)
	assert.False(t, second.LayerChanged)
	assert.Equal(t, 1, supervisor.replans, "an unchanged layer must not be replanned")
}

func TestReconcilePeerRemoval(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	resources := newFakeResources()
	driver := newDriver(t, resources, true)
	supervisor := &fakeSupervisor{}
	peer := linksRelation("links-1", "jupyter-ui", `[{"text":"Notebooks","link":"/jupyter/","type":"item","icon":"book"}]`)

	withPeer := driver.Reconcile(ctx, Inputs{Dashboard: newDashboard("kubeflow"), Relations: []relation.Relation{readyProfiles(), peer}, Supervisor: supervisor})
	withoutPeer := driver.Reconcile(ctx, Inputs{Dashboard: newDashboard("kubeflow"), Relations: []relation.Relation{readyProfiles()}, Supervisor: supervisor})

	require.True(t, withPeer.Status.IsActive())
	require.True(t, withoutPeer.Status.IsActive())
	assert.Len(t, withPeer.Links.MenuLinks, 1)
	assert.Empty(t, withoutPeer.Links.MenuLinks)
	assert.True(t, withoutPeer.LinksChanged)

	published, err := links.UnmarshalLinkSet(resources.configMap(t).Data[LinksKey])
	require.NoError(t, err)
	assert.Empty(t, published.MenuLinks)
}

func menuTargets(set links.LinkSet) []string {
	var out []string
	for _, l := range set.MenuLinks {
		out = append(out, l.Text+" "+l.Link)
	}
	return out
}

func TestReconcilePeerRemovalKeepsOtherSources(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	driver := newDriver(t, newFakeResources(), true)
	supervisor := &fakeSupervisor{}

	dash := newDashboard("kubeflow")
	dash.Spec.Links.Menu.Additional = `[{"text":"B","link":"/bx","type":"item","icon":"i"}]`
	peerOne := linksRelation("links-1", "peer-one",
		`[{"text":"B","link":"/b1","type":"item","icon":"i"},{"text":"Z","link":"/z","type":"item","icon":"i"}]`)
	peerTwo := linksRelation("links-2", "peer-two",
		`[{"text":"A","link":"/a","type":"item","icon":"i"},{"text":"B","link":"/b2","type":"item","icon":"i"}]`)

	both := driver.Reconcile(ctx, Inputs{Dashboard: dash, Relations: []relation.Relation{readyProfiles(), peerOne, peerTwo}, Supervisor: supervisor})
	withoutTwo := driver.Reconcile(ctx, Inputs{Dashboard: dash, Relations: []relation.Relation{readyProfiles(), peerOne}, Supervisor: supervisor})

	require.True(t, both.Status.IsActive(), both.Status.String())
	require.True(t, withoutTwo.Status.IsActive(), withoutTwo.Status.String())
	assert.Equal(t, []string{"A /a", "B /b1", "B /b2", "B /bx", "Z /z"}, menuTargets(both.Links))

	var expected []string
	for _, l := range both.Links.MenuLinks {
		if l.SourceApp != "peer-two" {
			expected = append(expected, l.Text+" "+l.Link)
		}
	}
	assert.Equal(t, expected, menuTargets(withoutTwo.Links))
	assert.Equal(t, []string{"B /b1", "B /bx", "Z /z"}, menuTargets(withoutTwo.Links))
	assert.True(t, withoutTwo.LinksChanged)
}

func TestReconcileReplacesUnreadablePublishedLinks(t *testing.T) {
	t.Parallel()
	resources := newFakeResources()
	resources.objects["ConfigMap/kubeflow/"+common.DefaultConfigMapName] = &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: common.DefaultConfigMapName, Namespace: "kubeflow"},
		Data:       map[string]string{LinksKey: "{not json"},
	}

	result := newDriver(t, resources, true).Reconcile(context.Background(), Inputs{
		Dashboard:  newDashboard("kubeflow"),
		Relations:  []relation.Relation{readyProfiles()},
		Supervisor: &fakeSupervisor{},
	})

	require.True(t, result.Status.IsActive(), result.Status.String())
	assert.True(t, result.LinksChanged)
	assert.Equal(t, result.LinksJSON, resources.configMap(t).Data[LinksKey])
}

func TestReconcileAggregatesConfiguredLinks(t *testing.T) {
	t.Parallel()
	resources := newFakeResources()

	dash := newDashboard("kubeflow")
	dash.Spec.Links.Menu = dashboardv1.LinkSourceSpec{
		Additional: `[{"text": "4", "link": "/4", "type": "item", "icon": "icon"}]`,
		Order:      `["2", "4"]`,
	}
	item := func(text string) string {
		return `{"text":"` + text + `","link":"/` + text + `","type":"item","icon":"icon"}`
	}

	result := newDriver(t, resources, true).Reconcile(context.Background(), Inputs{
		Dashboard: dash,
		Relations: []relation.Relation{
			readyProfiles(),
			linksRelation("links-1", "peer", "["+item("3")+","+item("1")+","+item("2")+"]"),
		},
		Supervisor: &fakeSupervisor{},
	})

	require.True(t, result.Status.IsActive())
	var texts []string
	for _, l := range result.Links.MenuLinks {
		texts = append(texts, l.Text)
	}
	assert.Equal(t, []string{"2", "4", "1", "3"}, texts)
	assert.Equal(t, 4, result.Links.Counts()[links.LocationMenu])
}

func TestReconcilePrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		namespace   string
		unreachable bool
		leader      bool
		relations   []relation.Relation
		applyErr    error
		replanErr   error
		reason      status.Reason
		severity    status.Severity
	}{
		{
			name: "unreachable workload wins over everything", namespace: "default", unreachable: true,
			reason: status.ReasonContainerNotReady, severity: status.SeverityWaiting,
		},
		{
			name: "wrong namespace wins over leadership", namespace: "default",
			reason: status.ReasonWrongDeploymentTarget, severity: status.SeverityFatal,
		},
		{
			name: "not leader wins over a missing peer", namespace: "kubeflow",
			reason: status.ReasonNotLeader, severity: status.SeverityWaiting,
		},
		{
			name: "peer without versions", namespace: "kubeflow", leader: true,
			relations: []relation.Relation{profilesRelation(nil)},
			reason:    status.ReasonInterfaceNegotiationFailed, severity: status.SeverityWaiting,
		},
		{
			name: "peer with incompatible versions", namespace: "kubeflow", leader: true,
			relations: []relation.Relation{profilesRelation(map[string]string{relation.SupportedVersionsKey: "- v7\n"})},
			reason:    status.ReasonInterfaceNegotiationFailed, severity: status.SeverityBlocked,
		},
		{
			name: "no profiles peer", namespace: "kubeflow", leader: true,
			reason: status.ReasonRequiredPeerMissing, severity: status.SeverityBlocked,
		},
		{
			name: "profiles peer without data", namespace: "kubeflow", leader: true,
			relations: []relation.Relation{profilesRelation(map[string]string{relation.SupportedVersionsKey: "- v1\n"})},
			reason:    status.ReasonRequiredPeerDataMissing, severity: status.SeverityWaiting,
		},
		{
			name: "profiles peer with invalid data", namespace: "kubeflow", leader: true,
			relations: []relation.Relation{profilesRelation(map[string]string{
				relation.SupportedVersionsKey: "- v1\n",
				relation.DataKey:              "service-name: kfam\n",
			})},
			reason: status.ReasonInterfaceNegotiationFailed, severity: status.SeverityBlocked,
		},
		{
			name: "apply rejected", namespace: "kubeflow", leader: true,
			relations: []relation.Relation{readyProfiles()},
			applyErr:  apierrors.NewForbidden(schema.GroupResource{Resource: "clusterroles"}, "x", errors.New("denied")),
			reason:    status.ReasonResourceApplyFailed, severity: status.SeverityBlocked,
		},
		{
			name: "replan rejected", namespace: "kubeflow", leader: true,
			relations: []relation.Relation{readyProfiles()},
			replanErr: errors.New("image pull failed"),
			reason:    status.ReasonLayerUpdateFailed, severity: status.SeverityBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resources := newFakeResources()
			resources.applyErr = tt.applyErr
			supervisor := &fakeSupervisor{unreachable: tt.unreachable, replanErr: tt.replanErr}

			result := newDriver(t, resources, tt.leader).Reconcile(context.Background(), Inputs{
				Dashboard:  newDashboard(tt.namespace),
				Relations:  tt.relations,
				Supervisor: supervisor,
			})

			assert.Equal(t, tt.reason, result.Status.Reason(), result.Status.String())
			assert.Equal(t, tt.severity, result.Status.Severity())
			assert.NotEmpty(t, result.FailedTask)
			if tt.applyErr != nil {
				assert.Zero(t, supervisor.addCalls, "the layer must not change when resources were not applied")
				assert.Contains(t, result.Status.Message(), "denied")
			}
		})
	}
}

// switchableLeader is a LeaderChecker whose answer tests can change between passes.
type switchableLeader struct{ leader bool }

func (l *switchableLeader) IsLeader() bool { return l.leader }

func TestReconcileLeadershipGrantedBetweenPasses(t *testing.T) {
	t.Parallel()
	leader := &switchableLeader{}
	driver := newDriver(t, newFakeResources(), false)
	driver.Leader = leader
	in := Inputs{Dashboard: newDashboard("kubeflow"), Supervisor: &fakeSupervisor{}}

	first := driver.Reconcile(context.Background(), in)
	leader.leader = true
	second := driver.Reconcile(context.Background(), in)

	assert.Equal(t, status.ReasonNotLeader, first.Status.Reason())
	assert.Equal(t, status.ReasonRequiredPeerMissing, second.Status.Reason())
	assert.Equal(t, status.SeverityBlocked, second.Status.Severity())
}

func TestReconcileNonLeaderDoesNotWrite(t *testing.T) {
	t.Parallel()
	resources := newFakeResources()
	supervisor := &fakeSupervisor{}

	result := newDriver(t, resources, false).Reconcile(context.Background(), Inputs{
		Dashboard:  newDashboard("kubeflow"),
		Relations:  []relation.Relation{readyProfiles()},
		Supervisor: supervisor,
	})

	assert.Equal(t, status.ReasonNotLeader, result.Status.Reason())
	assert.Zero(t, resources.applies)
	assert.Zero(t, supervisor.addCalls)
	assert.Empty(t, result.LinksJSON)
}

func TestReconcileWithoutSupervisor(t *testing.T) {
	t.Parallel()

	result := newDriver(t, newFakeResources(), true).Reconcile(context.Background(), Inputs{Dashboard: newDashboard("kubeflow")})

	assert.Equal(t, status.ReasonContainerNotReady, result.Status.Reason())
}

func TestCleanup(t *testing.T) {
	t.Parallel()
	resources := newFakeResources()
	dash := newDashboard("kubeflow")
	dash.Spec.Profile = "admin"

	require.NoError(t, newDriver(t, resources, true).Cleanup(context.Background(), dash))

	assert.ElementsMatch(t, []string{
		"ClusterRole/kubeflow-main",
		"ClusterRoleBinding/kubeflow-main",
		"Profile/admin",
	}, resources.deleted)
}

func TestRenderResources(t *testing.T) {
	t.Parallel()

	dash := newDashboard("kubeflow")
	dash.Spec.Port = 9000
	cfg := ConfigFrom(dash)

	objs, err := RenderResources(cfg, "{}", dash, newScheme(t))
	require.NoError(t, err)
	require.Len(t, objs, 5)

	svc, ok := objs[1].(*corev1.Service)
	require.True(t, ok)
	assert.Equal(t, int32(9000), svc.Spec.Ports[0].Port)

	binding, ok := objs[4].(*rbacv1.ClusterRoleBinding)
	require.True(t, ok)
	assert.Equal(t, "main", binding.Subjects[0].Name)
	assert.Empty(t, binding.OwnerReferences, "cluster-scoped objects cannot be owned by a namespaced Dashboard")

	_, isProfile := objs[len(objs)-1].(*unstructured.Unstructured)
	assert.False(t, isProfile)
}

func TestConfigFromDefaults(t *testing.T) {
	t.Parallel()

	cfg := ConfigFrom(newDashboard("kubeflow"))

	assert.Equal(t, common.DefaultPort, cfg.Port)
	assert.Equal(t, common.DefaultConfigMapName, cfg.ConfigMapName)
	assert.Equal(t, "false", cfg.DesiredLayer("kfam").Environment["REGISTRATION_FLOW"])
	assert.Len(t, cfg.Links, len(links.Locations))
}

func TestElectionLeaderChecker(t *testing.T) {
	t.Parallel()

	elected := make(chan struct{})
	checker := NewElectionLeaderChecker(elected)
	assert.False(t, checker.IsLeader())

	close(elected)
	assert.True(t, checker.IsLeader())
}
