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

// Package config loads the operator configuration from flags, environment and an optional file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/infinilabs/dashboard-operator/pkg/apis/common"
)

// EnvPrefix prefixes every environment variable read by the operator,
// e.g. DASHBOARD_OPERATOR_TARGET_NAMESPACE.
const EnvPrefix = "DASHBOARD_OPERATOR"

// Flag names, also used as viper keys.
const (
	FlagConfigFile       = "config"
	FlagMetricsAddr      = "metrics-bind-address"
	FlagProbeAddr        = "health-probe-bind-address"
	FlagLeaderElect      = "leader-elect"
	FlagLeaderElectionID = "leader-election-id"
	FlagTargetNamespace  = "target-namespace"
	FlagDashboardImage   = "dashboard-image"
	FlagEventWebhookURL  = "event-webhook-url"
	FlagClusterID        = "cluster-id"
)

// DefaultDashboardImage is the dashboard image used when none is configured.
const DefaultDashboardImage = "docker.io/kubeflownotebookswg/centraldashboard:v1.8.0"

// OperatorConfig is the process-wide configuration of the operator.
type OperatorConfig struct {
	MetricsAddr      string
	ProbeAddr        string
	LeaderElection   bool
	LeaderElectionID string
	// TargetNamespace is the only namespace dashboards are served from.
	TargetNamespace string
	DashboardImage  string
	// EventWebhookURL receives status transitions as JSON; empty disables forwarding.
	EventWebhookURL string
	ClusterID       string
}

// AddFlags registers the operator flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfigFile, "", "Path to a YAML config file.")
	fs.String(FlagMetricsAddr, ":8080", "The address the metric endpoint binds to.")
	fs.String(FlagProbeAddr, ":8081", "The address the probe endpoint binds to.")
	fs.Bool(FlagLeaderElect, false, "Enable leader election for controller manager. "+
		"Enabling this will ensure there is only one active controller manager.")
	fs.String(FlagLeaderElectionID, "dashboard-operator.infini.cloud", "Name of the leader election lease.")
	fs.String(FlagTargetNamespace, common.DefaultTargetNamespace, "Namespace dashboards must be deployed to.")
	fs.String(FlagDashboardImage, DefaultDashboardImage, "Container image of the dashboard.")
	fs.String(FlagEventWebhookURL, "", "Webhook receiving dashboard status transitions.")
	fs.String(FlagClusterID, "", "Cluster identifier attached to forwarded events.")
}

// Load resolves the configuration. Flags set on the command line win over
// environment variables, which win over the config file.
func Load(v *viper.Viper, fs *pflag.FlagSet) (OperatorConfig, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return OperatorConfig{}, fmt.Errorf("binding flags: %w", err)
	}

	if file := v.GetString(FlagConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return OperatorConfig{}, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	cfg := OperatorConfig{
		MetricsAddr:      v.GetString(FlagMetricsAddr),
		ProbeAddr:        v.GetString(FlagProbeAddr),
		LeaderElection:   v.GetBool(FlagLeaderElect),
		LeaderElectionID: v.GetString(FlagLeaderElectionID),
		TargetNamespace:  v.GetString(FlagTargetNamespace),
		DashboardImage:   v.GetString(FlagDashboardImage),
		EventWebhookURL:  v.GetString(FlagEventWebhookURL),
		ClusterID:        v.GetString(FlagClusterID),
	}
	return cfg, cfg.Validate()
}

// Validate reports missing required settings.
func (c OperatorConfig) Validate() error {
	var errs []error
	if c.TargetNamespace == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", FlagTargetNamespace))
	}
	if c.DashboardImage == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", FlagDashboardImage))
	}
	if c.LeaderElection && c.LeaderElectionID == "" {
		errs = append(errs, fmt.Errorf("%s is required when %s is set", FlagLeaderElectionID, FlagLeaderElect))
	}
	return errors.Join(errs...)
}
