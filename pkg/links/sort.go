// pkg/links/sort.go
package links

import (
	"sort"
)

// Sort orders items for display.
//
// Items whose Text matches an entry of preferredOrder come first, grouped by
// that entry's position; items sharing a text keep their input order. Keys with
// no match are skipped. Every remaining item follows, sorted ascending by Text
// with ties kept in input order. The result is a permutation of items.
func Sort(items []LinkItem, preferredOrder []string) []LinkItem {
	sorted := make([]LinkItem, 0, len(items))
	emitted := make([]bool, len(items))

	for _, key := range preferredOrder {
		for i := range items {
			if emitted[i] || items[i].Text != key {
				continue
			}
			sorted = append(sorted, items[i])
			emitted[i] = true
		}
	}

	rest := make([]LinkItem, 0, len(items)-len(sorted))
	for i := range items {
		if !emitted[i] {
			rest = append(rest, items[i])
		}
	}
	sort.SliceStable(rest, func(a, b int) bool {
		return rest[a].Text < rest[b].Text
	})

	return append(sorted, rest...)
}
