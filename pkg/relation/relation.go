// Package relation models the connections between a dashboard and its peer
// applications and negotiates the versioned data interfaces spoken over them.
package relation

import (
	"fmt"
	"sort"
	"time"
)

// Relation is a point-in-time snapshot of one established peer connection.
type Relation struct {
	// ID uniquely identifies the relation.
	ID string
	// Established is when the relation was created. Relations are ordered by it,
	// then by ID, so "links-10" created before "links-2" comes first.
	Established time.Time
	// Endpoint is the local endpoint the peer is related on.
	Endpoint string
	// App is the peer application name.
	App string
	// Data is the raw data bag published by the peer.
	Data map[string]string
}

// ForEndpoint returns the relations on endpoint in establishment order.
func ForEndpoint(relations []Relation, endpoint string) []Relation {
	var out []Relation
	for _, r := range relations {
		if r.Endpoint == endpoint {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].before(out[b]) })
	return out
}

func (r Relation) before(other Relation) bool {
	if !r.Established.Equal(other.Established) {
		return r.Established.Before(other.Established)
	}
	return r.ID < other.ID
}

func (r Relation) String() string {
	return fmt.Sprintf("%s:%s(%s)", r.Endpoint, r.ID, r.App)
}
