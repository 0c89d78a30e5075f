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

// Package main is the entrypoint for the dashboard operator.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	dashboardv1 "github.com/infinilabs/dashboard-operator/api/dashboard/v1"
	"github.com/infinilabs/dashboard-operator/internal/config"
	"github.com/infinilabs/dashboard-operator/internal/controller/common/kubeutil"
	dashboardcontroller "github.com/infinilabs/dashboard-operator/internal/controller/dashboard"
	"github.com/infinilabs/dashboard-operator/pkg/apis/common"
	dashboardreconciler "github.com/infinilabs/dashboard-operator/pkg/reconcilers/dashboard"
	"github.com/infinilabs/dashboard-operator/pkg/webrecorder"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")

	// Version is set at build time
	Version = "dev"
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(dashboardv1.AddToScheme(scheme))
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	zapOpts := zap.Options{Development: os.Getenv("DEBUG") == "true"}

	cmd := &cobra.Command{
		Use:           "dashboard-operator",
		Short:         "Runs the central dashboard operator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))

			cfg, err := config.Load(viper.New(), cmd.Flags())
			if err != nil {
				setupLog.Error(err, "invalid configuration")
				return err
			}
			return run(cfg)
		},
	}

	config.AddFlags(cmd.Flags())
	goFlags := flag.NewFlagSet("zap", flag.ExitOnError)
	zapOpts.BindFlags(goFlags)
	cmd.Flags().AddGoFlagSet(goFlags)
	return cmd
}

func run(cfg config.OperatorConfig) error {
	setupLog.Info("starting dashboard-operator", "version", Version, "targetNamespace", cfg.TargetNamespace)

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme: scheme,
		Metrics: metricsserver.Options{
			BindAddress: cfg.MetricsAddr,
		},
		HealthProbeBindAddress: cfg.ProbeAddr,
		LeaderElection:         cfg.LeaderElection,
		LeaderElectionID:       cfg.LeaderElectionID,
		// LeaderElectionReleaseOnCancel defines if the leader should step down voluntarily
		// when the Manager ends. This requires the binary to immediately end when the
		// Manager is stopped, otherwise, this setting is unsafe.
		LeaderElectionReleaseOnCancel: true,
	})
	if err != nil {
		setupLog.Error(err, "unable to create manager")
		return err
	}

	negotiator, err := dashboardreconciler.NewProfilesNegotiator()
	if err != nil {
		setupLog.Error(err, "unable to build interface negotiator")
		return err
	}

	resources := kubeutil.NewResourceClient(mgr.GetClient(), common.OperatorName)
	recorder := webrecorder.NewWebhookEventRecorder(
		mgr.GetEventRecorderFor("dashboard-controller"), cfg.EventWebhookURL, cfg.ClusterID)

	// Without leader election every replica is the leader.
	var leader dashboardreconciler.LeaderChecker = dashboardreconciler.StaticLeaderChecker(true)
	if cfg.LeaderElection {
		leader = dashboardreconciler.NewElectionLeaderChecker(mgr.Elected())
	}

	reconciler := &dashboardcontroller.DashboardReconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Recorder: recorder,
		Driver: &dashboardreconciler.Driver{
			Resources:       resources,
			Negotiator:      negotiator,
			Leader:          leader,
			Scheme:          mgr.GetScheme(),
			TargetNamespace: cfg.TargetNamespace,
		},
		NewSupervisor: dashboardcontroller.DeploymentSupervisorFactory(
			mgr.GetAPIReader(), resources, mgr.GetScheme(), cfg.DashboardImage),
	}
	if err := reconciler.SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "Dashboard")
		return err
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		return err
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		return err
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		return fmt.Errorf("running manager: %w", err)
	}
	recorder.Wait()
	return nil
}
