package dashboard

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	dashboardv1 "github.com/infinilabs/dashboard-operator/api/dashboard/v1"
	"github.com/infinilabs/dashboard-operator/pkg/links"
	dashboardreconciler "github.com/infinilabs/dashboard-operator/pkg/reconcilers/dashboard"
	"github.com/infinilabs/dashboard-operator/pkg/status"
)

var (
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_operator_reconcile_total",
			Help: "Reconciliation passes by resulting severity.",
		},
		[]string{"result"},
	)

	publishedLinks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dashboard_operator_links",
			Help: "Links published by a dashboard per navigation area.",
		},
		[]string{"namespace", "dashboard", "location"},
	)

	statusReason = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dashboard_operator_status",
			Help: "Set to 1 for the status reason a dashboard currently reports.",
		},
		[]string{"namespace", "dashboard", "reason"},
	)
)

func init() {
	metrics.Registry.MustRegister(reconcileTotal, publishedLinks, statusReason)
}

// recordPass updates the metrics of dash after a pass.
func recordPass(dash *dashboardv1.Dashboard, result dashboardreconciler.Result) {
	reconcileTotal.WithLabelValues(strings.ToLower(string(result.Status.Severity()))).Inc()

	for _, reason := range status.Reasons {
		value := 0.0
		if reason == result.Status.Reason() {
			value = 1
		}
		statusReason.WithLabelValues(dash.Namespace, dash.Name, string(reason)).Set(value)
	}

	// Links are only known once aggregation ran.
	if result.LinksJSON == "" {
		return
	}
	counts := result.Links.Counts()
	for _, location := range links.Locations {
		publishedLinks.WithLabelValues(dash.Namespace, dash.Name, string(location)).Set(float64(counts[location]))
	}
}

// forgetDashboard drops the per-dashboard series of a deleted dashboard.
func forgetDashboard(namespace, name string) {
	labels := prometheus.Labels{"namespace": namespace, "dashboard": name}
	publishedLinks.DeletePartialMatch(labels)
	statusReason.DeletePartialMatch(labels)
}
