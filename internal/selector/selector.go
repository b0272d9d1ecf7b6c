// Package selector provides read-only projections of store state.
package selector

import (
	"storekit/internal/store"
)

// Func projects part of a state value
type Func[T, V any] func(state T) V

// Of applies a selector to the current state of a handle
func Of[T, V any](src interface{ GetState() T }, sel Func[T, V]) V {
	return sel(src.GetState())
}

// Field selects a top-level key of a document state. Missing keys yield nil.
func Field(key string) Func[store.Map, any] {
	return func(state store.Map) any {
		return state[key]
	}
}

// Pick selects a subset of keys of a document state into a new map
func Pick(keys ...string) Func[store.Map, store.Map] {
	return func(state store.Map) store.Map {
		out := make(store.Map, len(keys))
		for _, key := range keys {
			if value, ok := state[key]; ok {
				out[key] = value
			}
		}
		return out
	}
}

// Memo wraps a selector so it recomputes only when its input is not
// shallow-equal to the previous input. The returned selector is not safe for
// concurrent use.
func Memo[T, V any](sel Func[T, V]) Func[T, V] {
	var (
		primed    bool
		lastInput T
		lastValue V
	)
	return func(state T) V {
		if primed && store.Shallow(lastInput, state) {
			return lastValue
		}
		lastInput = state
		lastValue = sel(state)
		primed = true
		return lastValue
	}
}
