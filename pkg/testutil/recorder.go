// Package testutil provides helpers for testing code built on storekit stores.
package testutil

import (
	"sync"
	"time"
)

// Call is one recorded listener invocation
type Call[T any] struct {
	Next T
	Prev T
}

// Recorder captures listener invocations. It is safe for use from the
// goroutine that runs the listener and the test goroutine at once.
type Recorder[T any] struct {
	mu     sync.Mutex
	calls  []Call[T]
	notify chan struct{}
}

// NewRecorder creates an empty recorder
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{notify: make(chan struct{}, 1)}
}

// Listener returns a func suitable for Subscribe
func (r *Recorder[T]) Listener() func(next, prev T) {
	return func(next, prev T) {
		r.mu.Lock()
		r.calls = append(r.calls, Call[T]{Next: next, Prev: prev})
		r.mu.Unlock()

		select {
		case r.notify <- struct{}{}:
		default:
		}
	}
}

// Calls returns a copy of the recorded calls
func (r *Recorder[T]) Calls() []Call[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	calls := make([]Call[T], len(r.calls))
	copy(calls, r.calls)
	return calls
}

// Count returns the number of recorded calls
func (r *Recorder[T]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Reset discards recorded calls
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// WaitFor blocks until at least n calls were recorded or timeout elapses.
// It reports whether n calls were seen.
func (r *Recorder[T]) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if r.Count() >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline:
			return r.Count() >= n
		}
	}
}
