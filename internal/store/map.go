package store

import (
	"maps"
	"reflect"
	"slices"
)

// Map is a dynamic document state keyed by field name
type Map = map[string]any

// MergeMap returns a new map holding current overlaid with partial.
// Neither argument is modified.
func MergeMap(current, partial Map) Map {
	next := make(Map, len(current)+len(partial))
	maps.Copy(next, current)
	maps.Copy(next, partial)
	return next
}

// NewMap creates a merge-mode store over a document state
func NewMap(initial Map, opts ...Option[Map]) *Store[Map] {
	if initial == nil {
		initial = Map{}
	}
	base := []Option[Map]{WithMerge(MergeMap)}
	return New(initial, append(base, opts...)...)
}

// CloneMap returns a shallow copy of m
func CloneMap(m Map) Map {
	if m == nil {
		return Map{}
	}
	return maps.Clone(m)
}

// ChangedKeys lists, sorted, the top-level keys whose values are not
// identical between prev and next, including added and removed keys
func ChangedKeys(prev, next Map) []string {
	changed := make([]string, 0)
	for key, value := range next {
		old, ok := prev[key]
		if !ok || !identical(reflect.ValueOf(&old).Elem(), reflect.ValueOf(&value).Elem()) {
			changed = append(changed, key)
		}
	}
	for key := range prev {
		if _, ok := next[key]; !ok {
			changed = append(changed, key)
		}
	}
	slices.Sort(changed)
	return changed
}
