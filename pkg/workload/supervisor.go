// Package workload describes the dashboard process configuration and the
// supervisor that runs it.
package workload

import (
	"context"
	"fmt"
	"maps"

	commonutil "github.com/infinilabs/dashboard-operator/pkg/apis/common/util"
)

// ServiceConfig is the process configuration ("layer") of the dashboard workload.
type ServiceConfig struct {
	Summary     string            `json:"summary,omitempty"`
	Command     string            `json:"command,omitempty"`
	Startup     string            `json:"startup,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}

// Equal reports whether two layers would run the same process.
func (c ServiceConfig) Equal(other ServiceConfig) bool {
	return c.Summary == other.Summary &&
		c.Command == other.Command &&
		c.Startup == other.Startup &&
		maps.Equal(c.Environment, other.Environment)
}

// IsZero reports whether no layer has been applied yet.
func (c ServiceConfig) IsZero() bool {
	return c.Equal(ServiceConfig{})
}

// Merge overlays other on c: non-empty scalar fields replace, environment entries are merged.
func (c ServiceConfig) Merge(other ServiceConfig) ServiceConfig {
	out := ServiceConfig{
		Summary:     c.Summary,
		Command:     c.Command,
		Startup:     c.Startup,
		Environment: commonutil.MergeStringMaps(c.Environment, other.Environment),
	}
	if other.Summary != "" {
		out.Summary = other.Summary
	}
	if other.Command != "" {
		out.Command = other.Command
	}
	if other.Startup != "" {
		out.Startup = other.Startup
	}
	if len(out.Environment) == 0 {
		out.Environment = nil
	}
	return out
}

// Supervisor controls the dashboard process.
type Supervisor interface {
	// CanConnect reports whether the supervisor is reachable.
	CanConnect(ctx context.Context) bool
	// GetCurrentLayer returns the configuration the workload is running with.
	// A workload that never received one returns the zero ServiceConfig.
	GetCurrentLayer(ctx context.Context) (ServiceConfig, error)
	// AddLayer stages a named layer; a layer with the same name replaces the staged one.
	AddLayer(ctx context.Context, name string, cfg ServiceConfig) error
	// Replan restarts the workload with the staged layers. Failures are *ChangeError.
	Replan(ctx context.Context) error
}

// ChangeError reports that the supervisor rejected a configuration change.
type ChangeError struct {
	Change string
	Err    error
}

func (e *ChangeError) Error() string {
	return fmt.Sprintf("change %q failed: %v", e.Change, e.Err)
}

func (e *ChangeError) Unwrap() error { return e.Err }
