package store

import (
	"errors"

	"storekit/internal/store"
)

// ErrReadOnly is returned by SetState on a read-only handle
var ErrReadOnly = errors.New("store is read-only")

// readOnly wraps a Handle and rejects every transition
type readOnly[T any] struct {
	inner Handle[T]
}

// ReadOnly wraps h so that reads and subscriptions pass through and every
// SetState or ReplaceState call fails with ErrReadOnly
func ReadOnly[T any](h Handle[T]) Handle[T] {
	return &readOnly[T]{inner: h}
}

// Unwrap returns the handle behind a read-only wrapper, or h itself
func Unwrap[T any](h Handle[T]) Handle[T] {
	if ro, ok := h.(*readOnly[T]); ok {
		return ro.inner
	}
	return h
}

// IsReadOnly reports whether h was wrapped by ReadOnly
func IsReadOnly[T any](h Handle[T]) bool {
	_, ok := h.(*readOnly[T])
	return ok
}

func (r *readOnly[T]) GetState() T {
	return r.inner.GetState()
}

func (r *readOnly[T]) SetState(store.Updater[T]) error {
	return ErrReadOnly
}

func (r *readOnly[T]) ReplaceState(store.Updater[T]) error {
	return ErrReadOnly
}

func (r *readOnly[T]) Subscribe(listener store.Listener[T]) store.Subscription {
	return r.inner.Subscribe(listener)
}
