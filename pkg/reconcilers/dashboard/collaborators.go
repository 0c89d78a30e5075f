// pkg/reconcilers/dashboard/collaborators.go
package dashboard

import (
	"context"
	_ "embed"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/infinilabs/dashboard-operator/pkg/apis/common"
	"github.com/infinilabs/dashboard-operator/pkg/relation"
)

// ResourceClient applies, reads and deletes cluster objects. API errors are returned unchanged.
type ResourceClient interface {
	Apply(ctx context.Context, objs ...client.Object) error
	Get(ctx context.Context, key client.ObjectKey, obj client.Object) error
	Delete(ctx context.Context, objs ...client.Object) error
}

// Negotiator agrees on interface versions with related peers.
type Negotiator interface {
	GetInterfaces(relations []relation.Relation) (map[string]*relation.Interface, error)
}

// LeaderChecker reports whether this replica may write shared state.
type LeaderChecker interface {
	IsLeader() bool
}

// ElectionLeaderChecker is leader once the elected channel is closed.
type ElectionLeaderChecker struct {
	elected <-chan struct{}
}

// NewElectionLeaderChecker watches the channel returned by a manager's Elected().
func NewElectionLeaderChecker(elected <-chan struct{}) *ElectionLeaderChecker {
	return &ElectionLeaderChecker{elected: elected}
}

func (c *ElectionLeaderChecker) IsLeader() bool {
	select {
	case <-c.elected:
		return true
	default:
		return false
	}
}

// StaticLeaderChecker always answers the same.
type StaticLeaderChecker bool

func (c StaticLeaderChecker) IsLeader() bool { return bool(c) }

//go:embed schemas/kubeflow-profiles.v1.json
var profilesV1Schema []byte

// NewProfilesNegotiator returns a negotiator for the profiles endpoint.
func NewProfilesNegotiator() (*relation.Negotiator, error) {
	n, err := relation.NewNegotiator(map[string]map[string][]byte{
		common.ProfilesEndpoint: {"v1": profilesV1Schema},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build %s negotiator: %w", common.ProfilesEndpoint, err)
	}
	return n, nil
}
