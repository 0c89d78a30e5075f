// pkg/relation/interface.go
package relation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"sigs.k8s.io/yaml"
)

// PeerData is the decoded, schema-validated data published by one peer.
type PeerData map[string]interface{}

// String returns the value of key when it is a string, or "".
func (d PeerData) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Interface is a negotiated endpoint: the agreed version and the relations speaking it.
type Interface struct {
	Endpoint string
	Version  string

	schema    *jsonschema.Schema
	relations []Relation
}

// Relations returns the relations negotiated on this endpoint, oldest first.
func (i *Interface) Relations() []Relation {
	return i.relations
}

// GetData returns the validated data of each peer that has published it, keyed
// by relation ID. Peers that have not published yet are absent. Data that does
// not satisfy the schema of the agreed version is an error.
func (i *Interface) GetData() (map[string]PeerData, error) {
	out := make(map[string]PeerData, len(i.relations))

	for _, r := range i.relations {
		raw := strings.TrimSpace(r.Data[DataKey])
		if raw == "" {
			continue
		}

		jsonData, err := yaml.YAMLToJSON([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%s relation %s: parsing %s: %w", i.Endpoint, r.ID, DataKey, err)
		}
		if i.schema != nil {
			inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
			if err != nil {
				return nil, fmt.Errorf("%s relation %s: preparing data for validation: %w", i.Endpoint, r.ID, err)
			}
			if err := i.schema.Validate(inst); err != nil {
				return nil, fmt.Errorf("%s relation %s: data does not match %s schema: %w", i.Endpoint, r.ID, i.Version, err)
			}
		}

		var data PeerData
		if err := yaml.Unmarshal(jsonData, &data); err != nil {
			return nil, fmt.Errorf("%s relation %s: decoding %s: %w", i.Endpoint, r.ID, DataKey, err)
		}
		out[r.ID] = data
	}
	return out, nil
}
