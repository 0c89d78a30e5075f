// pkg/links/parse.go
package links

import (
	"context"
	"fmt"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/yaml"
)

// ParseConfig decodes operator-configured links from raw YAML or JSON text.
// Every returned item has its Location set to location, whatever the input said.
//
// Empty input yields an empty list. Any malformed input (bad syntax, not a list,
// unknown keys, missing required fields) also yields an empty list, with exactly
// one warning logged through the logger carried by ctx. It never fails.
func ParseConfig(ctx context.Context, raw string, location Location) []LinkItem {
	logger := log.FromContext(ctx).WithValues("location", location)

	if strings.TrimSpace(raw) == "" {
		return []LinkItem{}
	}

	var items []LinkItem
	if err := yaml.UnmarshalStrict([]byte(raw), &items); err != nil {
		logger.Error(err, "Cannot parse configured dashboard links, ignoring them", "input", raw)
		return []LinkItem{}
	}

	for i := range items {
		if err := items[i].Validate(); err != nil {
			logger.Error(err, "Configured dashboard link is incomplete, ignoring all configured links for this location",
				"index", i, "input", raw)
			return []LinkItem{}
		}
		items[i].Location = location
	}

	if items == nil {
		return []LinkItem{}
	}
	return items
}

// ParseOrder decodes a preferred ordering, a YAML or JSON list of link texts.
// Empty input yields an empty list. Anything that is not a list of strings
// yields an empty list and one logged warning.
func ParseOrder(ctx context.Context, raw string) []string {
	logger := log.FromContext(ctx)

	if strings.TrimSpace(raw) == "" {
		return []string{}
	}

	var parsed interface{}
	if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
		logger.Error(err, "Cannot parse dashboard link order, ignoring it", "input", raw)
		return []string{}
	}
	if parsed == nil {
		return []string{}
	}

	seq, ok := parsed.([]interface{})
	if !ok {
		logger.Error(fmt.Errorf("expected a list, got %T", parsed),
			"Dashboard link order must be a list of strings, ignoring it", "input", raw)
		return []string{}
	}

	order := make([]string, 0, len(seq))
	for i, v := range seq {
		s, ok := v.(string)
		if !ok {
			logger.Error(fmt.Errorf("element %d is %T, not a string", i, v),
				"Dashboard link order must be a list of strings, ignoring it", "input", raw)
			return []string{}
		}
		order = append(order, s)
	}
	return order
}
