// pkg/links/linkset.go
package links

import (
	"encoding/json"
	"fmt"
)

// LinkSet is the document the dashboard reads from the shared configuration
// object. Every list is always present in its serialized form.
type LinkSet struct {
	MenuLinks          []LinkItem `json:"menuLinks"`
	ExternalLinks      []LinkItem `json:"externalLinks"`
	QuickLinks         []LinkItem `json:"quickLinks"`
	DocumentationItems []LinkItem `json:"documentationItems"`
}

// Get returns the list for loc. Unknown locations yield nil.
func (s *LinkSet) Get(loc Location) []LinkItem {
	switch loc {
	case LocationMenu:
		return s.MenuLinks
	case LocationExternal:
		return s.ExternalLinks
	case LocationQuick:
		return s.QuickLinks
	case LocationDocumentation:
		return s.DocumentationItems
	}
	return nil
}

// Set replaces the list for loc. Unknown locations are ignored.
func (s *LinkSet) Set(loc Location, items []LinkItem) {
	switch loc {
	case LocationMenu:
		s.MenuLinks = items
	case LocationExternal:
		s.ExternalLinks = items
	case LocationQuick:
		s.QuickLinks = items
	case LocationDocumentation:
		s.DocumentationItems = items
	}
}

// Counts returns the number of items per location.
func (s *LinkSet) Counts() map[Location]int {
	counts := make(map[Location]int, len(Locations))
	for _, loc := range Locations {
		counts[loc] = len(s.Get(loc))
	}
	return counts
}

// Marshal serializes the set, rendering missing lists as [].
func (s LinkSet) Marshal() (string, error) {
	for _, loc := range Locations {
		if s.Get(loc) == nil {
			s.Set(loc, []LinkItem{})
		}
	}
	out, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to serialize dashboard links: %w", err)
	}
	return string(out), nil
}

// UnmarshalLinkSet decodes a document produced by Marshal. Empty input is an empty set.
func UnmarshalLinkSet(raw string) (LinkSet, error) {
	var s LinkSet
	if raw == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return LinkSet{}, fmt.Errorf("failed to decode dashboard links: %w", err)
	}
	return s, nil
}
