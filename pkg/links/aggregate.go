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

// pkg/links/aggregate.go
package links

import (
	"context"
	"encoding/json"
	"fmt"
)

// SourceConfig is the operator-side input for one navigation area.
type SourceConfig struct {
	// Additional is the raw YAML/JSON list of extra links.
	Additional string
	// Order is the raw YAML/JSON list of preferred link texts.
	Order string
}

// Aggregate builds the final list for one location: peer items first, then
// items parsed from additionalConfig, ordered by the preference parsed from
// orderConfig. Nothing is deduplicated. The only side effect is the warning
// logging done by the parsers.
func Aggregate(ctx context.Context, peerItems []LinkItem, additionalConfig, orderConfig string, location Location) []LinkItem {
	configured := ParseConfig(ctx, additionalConfig, location)
	order := ParseOrder(ctx, orderConfig)

	all := make([]LinkItem, 0, len(peerItems)+len(configured))
	all = append(all, peerItems...)
	all = append(all, configured...)
	return Sort(all, order)
}

// AggregateJSON is Aggregate followed by JSON serialization of the list.
func AggregateJSON(ctx context.Context, peerItems []LinkItem, additionalConfig, orderConfig string, location Location) (string, error) {
	items := Aggregate(ctx, peerItems, additionalConfig, orderConfig, location)
	out, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to serialize %s links: %w", location, err)
	}
	return string(out), nil
}

// AggregateLinkSet aggregates every location. Peer items are routed to the
// location they declare; items without one go to the menu.
func AggregateLinkSet(ctx context.Context, peerItems []LinkItem, config map[Location]SourceConfig) LinkSet {
	byLocation := GroupByLocation(peerItems)

	var set LinkSet
	for _, loc := range Locations {
		cfg := config[loc]
		set.Set(loc, Aggregate(ctx, byLocation[loc], cfg.Additional, cfg.Order, loc))
	}
	return set
}

// GroupByLocation splits items by their Location, keeping input order within
// each group and stamping the resolved location on every item.
func GroupByLocation(items []LinkItem) map[Location][]LinkItem {
	grouped := make(map[Location][]LinkItem, len(Locations))
	for _, item := range items {
		loc := item.Location
		if loc == "" {
			loc = LocationMenu
		}
		item.Location = loc
		grouped[loc] = append(grouped[loc], item)
	}
	return grouped
}
