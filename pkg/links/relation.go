// pkg/links/relation.go
package links

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/yaml"
)

// RelationDataKey is the relation data key under which a peer publishes its links.
const RelationDataKey = "dashboard_links"

// Contribution is the raw relation data published by one peer.
type Contribution struct {
	// RelationID identifies the relation.
	RelationID string
	// Established is when the relation was created. Contributions are read
	// oldest first, ties broken by RelationID.
	Established time.Time
	// App is the peer application name, stamped on every item as SourceApp.
	App  string
	Data map[string]string
}

// DecodeContribution extracts the links a single peer published.
// A peer that has not published anything yet contributes an empty list.
func DecodeContribution(c Contribution) ([]LinkItem, error) {
	raw, ok := c.Data[RelationDataKey]
	if !ok || raw == "" {
		return []LinkItem{}, nil
	}

	var items []LinkItem
	if err := yaml.UnmarshalStrict([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("relation %s (%s): malformed %s: %w", c.RelationID, c.App, RelationDataKey, err)
	}
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return nil, fmt.Errorf("relation %s (%s): link %d: %w", c.RelationID, c.App, i, err)
		}
		if items[i].Location == "" {
			items[i].Location = LocationMenu
		}
		if !items[i].Location.IsValid() {
			return nil, fmt.Errorf("relation %s (%s): link %d: unknown location %q", c.RelationID, c.App, i, items[i].Location)
		}
		items[i].SourceApp = c.App
	}
	return items, nil
}

// CollectPeerLinks concatenates the links of every peer, oldest relation first.
// A peer with malformed data is logged and skipped; the others still contribute.
func CollectPeerLinks(ctx context.Context, contributions []Contribution) []LinkItem {
	logger := log.FromContext(ctx)

	ordered := make([]Contribution, len(contributions))
	copy(ordered, contributions)
	sort.SliceStable(ordered, func(a, b int) bool {
		if !ordered[a].Established.Equal(ordered[b].Established) {
			return ordered[a].Established.Before(ordered[b].Established)
		}
		return ordered[a].RelationID < ordered[b].RelationID
	})

	all := []LinkItem{}
	for _, c := range ordered {
		items, err := DecodeContribution(c)
		if err != nil {
			logger.Error(err, "Ignoring dashboard links from peer", "relation", c.RelationID, "app", c.App)
			continue
		}
		logger.V(1).Info("Collected dashboard links from peer", "relation", c.RelationID, "app", c.App, "count", len(items))
		all = append(all, items...)
	}
	return all
}
