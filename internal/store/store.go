// Package store provides an observable state container.
//
// A Store holds exactly one state value. Transitions are applied through
// SetState with an Updater; the result is shallow-merged into (or replaces)
// the current value, and every registered listener is called synchronously,
// in registration order, with the committed (next, prev) pair.
//
// A Store takes no locks and must be driven from a single goroutine. Wrap it
// in a Serial when several goroutines need to share it.
package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNilUpdater is returned by SetState when called without an updater
var ErrNilUpdater = errors.New("store: nil updater")

// Listener is called after a transition has been committed
type Listener[T any] func(next, prev T)

// Subscription represents an active listener registration
type Subscription interface {
	Unsubscribe()
}

// Mode selects how an updater result is combined with the current state
type Mode int

const (
	// ModeMerge shallow-merges the updater result into the current state
	ModeMerge Mode = iota
	// ModeReplace uses the updater result as the new state
	ModeReplace
)

func (m Mode) String() string {
	switch m {
	case ModeMerge:
		return "merge"
	case ModeReplace:
		return "replace"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "merge" or "replace"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "merge":
		return ModeMerge, nil
	case "replace":
		return ModeReplace, nil
	default:
		return ModeMerge, fmt.Errorf("unknown store mode %q", s)
	}
}

// Merger combines the current state with a partial state into a new value.
// It must not modify either argument.
type Merger[T any] func(current, partial T) T

// Equal reports whether two states are equivalent for notification purposes
type Equal[T any] func(a, b T) bool

// Commit is the last step of a transition. It receives the current state and
// the candidate next state, and returns the state to commit.
type Commit[T any] func(prev, next T) (T, error)

// Middleware wraps the commit step. It may transform the candidate state or
// reject the transition by returning an error.
type Middleware[T any] func(next Commit[T]) Commit[T]

type listenerEntry[T any] struct {
	fn     Listener[T]
	active bool
}

type subscription[T any] struct {
	store *Store[T]
	entry *listenerEntry[T]
}

func (s *subscription[T]) Unsubscribe() {
	s.store.remove(s.entry)
}

// Store holds a state value and notifies listeners of committed transitions
type Store[T any] struct {
	state       T
	mode        Mode
	merge       Merger[T]
	equal       Equal[T]
	middlewares []Middleware[T]
	commit      Commit[T]
	listeners   []*listenerEntry[T]
}

// Option configures a Store
type Option[T any] func(*Store[T])

// WithMode sets the merge/replace mode. The default is ModeMerge.
func WithMode[T any](mode Mode) Option[T] {
	return func(s *Store[T]) {
		s.mode = mode
	}
}

// WithMerge sets the function used to merge partial states in ModeMerge.
// Without it a partial state is taken as a complete one, which is the right
// behavior for struct states built with Patch or Update.
func WithMerge[T any](merge Merger[T]) Option[T] {
	return func(s *Store[T]) {
		if merge != nil {
			s.merge = merge
		}
	}
}

// WithEqual sets the equality used to elide no-op transitions.
// The default is Shallow.
func WithEqual[T any](equal Equal[T]) Option[T] {
	return func(s *Store[T]) {
		if equal != nil {
			s.equal = equal
		}
	}
}

// WithoutElision makes every transition commit and notify, even when the
// result equals the current state
func WithoutElision[T any]() Option[T] {
	return func(s *Store[T]) {
		s.equal = nil
	}
}

// WithMiddleware appends middlewares to the commit chain. The first
// middleware given is the outermost.
func WithMiddleware[T any](middlewares ...Middleware[T]) Option[T] {
	return func(s *Store[T]) {
		for _, mw := range middlewares {
			if mw != nil {
				s.middlewares = append(s.middlewares, mw)
			}
		}
	}
}

// New creates a store holding initial
func New[T any](initial T, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		state: initial,
		mode:  ModeMerge,
		merge: func(_, partial T) T { return partial },
		equal: Shallow[T],
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	commit := Commit[T](func(_, next T) (T, error) { return next, nil })
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		commit = s.middlewares[i](commit)
	}
	s.commit = commit

	return s
}

// GetState returns the current state.
// The returned value is shared with every other reader and must not be
// modified in place.
func (s *Store[T]) GetState() T {
	return s.state
}

// Mode returns the configured mode
func (s *Store[T]) Mode() Mode {
	return s.mode
}

// SetState applies a transition.
//
// Errors from the updater or from a middleware are returned unchanged and
// leave the state untouched. Panics raised by the updater or by a listener
// propagate to the caller.
func (s *Store[T]) SetState(updater Updater[T]) error {
	return s.apply(updater, s.mode)
}

// ReplaceState applies a transition whose result replaces the state,
// whatever mode the store was created with
func (s *Store[T]) ReplaceState(updater Updater[T]) error {
	return s.apply(updater, ModeReplace)
}

func (s *Store[T]) apply(updater Updater[T], mode Mode) error {
	if updater == nil {
		return ErrNilUpdater
	}

	prev := s.state
	partial, err := updater(prev)
	if err != nil {
		return err
	}

	next := partial
	if mode == ModeMerge {
		next = s.merge(prev, partial)
	}

	next, err = s.commit(prev, next)
	if err != nil {
		return err
	}

	if s.equal != nil && s.equal(prev, next) {
		return nil
	}

	s.state = next
	s.notify(next, prev)
	return nil
}

// notify runs one notification round. The listener set is fixed when the
// round starts; entries removed during the round are skipped.
func (s *Store[T]) notify(next, prev T) {
	if len(s.listeners) == 0 {
		return
	}

	round := make([]*listenerEntry[T], len(s.listeners))
	copy(round, s.listeners)

	for _, entry := range round {
		if !entry.active {
			continue
		}
		entry.fn(next, prev)
	}
}

// Subscribe registers a listener and returns its subscription.
// Listeners added while a notification round is running are first called on
// the next round.
func (s *Store[T]) Subscribe(listener Listener[T]) Subscription {
	entry := &listenerEntry[T]{fn: listener, active: listener != nil}
	if entry.active {
		s.listeners = append(s.listeners, entry)
	}
	return &subscription[T]{store: s, entry: entry}
}

func (s *Store[T]) remove(entry *listenerEntry[T]) {
	if !entry.active {
		return
	}
	entry.active = false

	for i, e := range s.listeners {
		if e == entry {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of active listeners
func (s *Store[T]) ListenerCount() int {
	return len(s.listeners)
}

// Destroy removes every listener. The store keeps accepting transitions.
func (s *Store[T]) Destroy() {
	for _, entry := range s.listeners {
		entry.active = false
	}
	s.listeners = nil
}
