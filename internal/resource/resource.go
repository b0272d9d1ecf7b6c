// Package resource loads data asynchronously into a store.
//
// The fetch always runs outside the store. Its outcome is written back as
// ordinary state: a failed fetch becomes a Resource with StatusFailed and an
// error message, never a store-level fault.
package resource

import (
	"context"
	"fmt"

	"storekit/internal/store"
)

// Status is the lifecycle of a Resource
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Resource is the state of one asynchronously loaded value
type Resource[V any] struct {
	Status Status `json:"status"`
	Data   V      `json:"data,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Idle returns a resource that has not been loaded
func Idle[V any]() Resource[V] {
	return Resource[V]{Status: StatusIdle}
}

// Loading reports whether a load is in flight
func (r Resource[V]) Loading() bool {
	return r.Status == StatusLoading
}

// Lens reads and writes the resource held inside a state value. Set must
// return a new state rather than modify its argument.
type Lens[T, V any] struct {
	Get func(state T) Resource[V]
	Set func(state T, r Resource[V]) T
}

// Setter is the write side of a store handle
type Setter[T any] interface {
	SetState(updater store.Updater[T]) error
}

// Fetcher produces the value to load
type Fetcher[V any] func(ctx context.Context) (V, error)

// Load marks the resource loading, runs fetch, then commits either the data
// or the failure. The keys of the previous data are kept while loading.
//
// A store error is returned as is. A fetch error is recorded in the state and
// also returned, wrapped, so the caller can log it.
func Load[T, V any](ctx context.Context, h Setter[T], lens Lens[T, V], fetch Fetcher[V]) error {
	err := h.SetState(store.Update(func(current T) T {
		r := lens.Get(current)
		r.Status = StatusLoading
		r.Err = ""
		return lens.Set(current, r)
	}))
	if err != nil {
		return err
	}

	data, fetchErr := fetch(ctx)

	err = h.SetState(store.Update(func(current T) T {
		if fetchErr != nil {
			r := lens.Get(current)
			r.Status = StatusFailed
			r.Err = fetchErr.Error()
			return lens.Set(current, r)
		}
		return lens.Set(current, Resource[V]{Status: StatusReady, Data: data})
	}))
	if err != nil {
		return err
	}

	if fetchErr != nil {
		return fmt.Errorf("resource fetch failed: %w", fetchErr)
	}
	return nil
}
