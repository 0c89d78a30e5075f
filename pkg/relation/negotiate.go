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

// pkg/relation/negotiate.go
package relation

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"sigs.k8s.io/yaml"
)

const (
	// SupportedVersionsKey holds the YAML list of interface versions a peer speaks.
	SupportedVersionsKey = "_supported_versions"
	// DataKey holds the YAML document exchanged once a version is agreed on.
	DataKey = "data"
)

var (
	// ErrNoVersionsListed is returned while a related peer has not advertised any version.
	ErrNoVersionsListed = errors.New("no versions listed")
	// ErrNoCompatibleVersions is returned when a peer shares no version with us.
	ErrNoCompatibleVersions = errors.New("no compatible versions")
)

// NegotiationError reports which relation failed negotiation.
type NegotiationError struct {
	Endpoint   string
	RelationID string
	App        string
	Err        error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s relation %s with %s: %v", e.Endpoint, e.RelationID, e.App, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// Negotiator knows the interface versions supported on each endpoint and the
// schema their data must satisfy.
type Negotiator struct {
	endpoints map[string]map[string]*jsonschema.Schema
}

// NewNegotiator compiles the given JSON schemas, keyed by endpoint then version.
func NewNegotiator(schemas map[string]map[string][]byte) (*Negotiator, error) {
	n := &Negotiator{endpoints: make(map[string]map[string]*jsonschema.Schema, len(schemas))}

	for endpoint, versions := range schemas {
		compiled := make(map[string]*jsonschema.Schema, len(versions))
		for version, raw := range versions {
			if _, err := parseVersion(version); err != nil {
				return nil, fmt.Errorf("endpoint %s: invalid version %q: %w", endpoint, version, err)
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
			if err != nil {
				return nil, fmt.Errorf("endpoint %s %s: unmarshaling schema JSON: %w", endpoint, version, err)
			}
			url := fmt.Sprintf("%s.%s.schema.json", endpoint, version)
			c := jsonschema.NewCompiler()
			if err := c.AddResource(url, doc); err != nil {
				return nil, fmt.Errorf("endpoint %s %s: adding schema resource: %w", endpoint, version, err)
			}
			sch, err := c.Compile(url)
			if err != nil {
				return nil, fmt.Errorf("endpoint %s %s: compiling schema: %w", endpoint, version, err)
			}
			compiled[version] = sch
		}
		n.endpoints[endpoint] = compiled
	}
	return n, nil
}

// Endpoints returns the negotiated endpoints in lexical order.
func (n *Negotiator) Endpoints() []string {
	out := make([]string, 0, len(n.endpoints))
	for endpoint := range n.endpoints {
		out = append(out, endpoint)
	}
	sort.Strings(out)
	return out
}

// GetInterfaces negotiates every known endpoint against the given relations.
// Endpoints without any relation map to nil. The first failing relation aborts
// negotiation with a *NegotiationError wrapping ErrNoVersionsListed or
// ErrNoCompatibleVersions.
func (n *Negotiator) GetInterfaces(relations []Relation) (map[string]*Interface, error) {
	interfaces := make(map[string]*Interface, len(n.endpoints))

	for _, endpoint := range n.Endpoints() {
		related := ForEndpoint(relations, endpoint)
		if len(related) == 0 {
			interfaces[endpoint] = nil
			continue
		}

		version, err := n.negotiate(endpoint, related)
		if err != nil {
			return nil, err
		}
		interfaces[endpoint] = &Interface{
			Endpoint:  endpoint,
			Version:   version,
			schema:    n.endpoints[endpoint][version],
			relations: related,
		}
	}
	return interfaces, nil
}

// negotiate picks the highest version supported by us and by every peer on endpoint.
func (n *Negotiator) negotiate(endpoint string, related []Relation) (string, error) {
	common := make(map[string]bool, len(n.endpoints[endpoint]))
	for v := range n.endpoints[endpoint] {
		common[v] = true
	}

	for _, r := range related {
		advertised, err := supportedVersions(r)
		if err != nil {
			return "", &NegotiationError{Endpoint: endpoint, RelationID: r.ID, App: r.App, Err: err}
		}
		peer := make(map[string]bool, len(advertised))
		for _, v := range advertised {
			peer[v] = true
		}
		for v := range common {
			if !peer[v] {
				delete(common, v)
			}
		}
		if len(common) == 0 {
			return "", &NegotiationError{
				Endpoint: endpoint, RelationID: r.ID, App: r.App,
				Err: fmt.Errorf("%w: peer speaks %s", ErrNoCompatibleVersions, strings.Join(advertised, ", ")),
			}
		}
	}

	var best string
	var bestVersion *semver.Version
	for v := range common {
		parsed, _ := parseVersion(v)
		if bestVersion == nil || parsed.GreaterThan(bestVersion) {
			best, bestVersion = v, parsed
		}
	}
	return best, nil
}

func supportedVersions(r Relation) ([]string, error) {
	raw := strings.TrimSpace(r.Data[SupportedVersionsKey])
	if raw == "" {
		return nil, ErrNoVersionsListed
	}
	var versions []string
	if err := yaml.Unmarshal([]byte(raw), &versions); err != nil {
		return nil, fmt.Errorf("%w: cannot parse %s: %v", ErrNoVersionsListed, SupportedVersionsKey, err)
	}
	if len(versions) == 0 {
		return nil, ErrNoVersionsListed
	}
	return versions, nil
}

func parseVersion(v string) (*semver.Version, error) {
	return semver.NewVersion(strings.TrimPrefix(v, "v"))
}
