// Package store provides the public interface definitions for storekit state
// handles. These interfaces can be imported by code that consumes a store
// without depending on how it is driven.
//
// The implementations are in internal/store: *store.Store for single
// goroutine use and *store.Serial for shared use.
package store

import (
	"storekit/internal/store"
)

// Reader exposes the current state
type Reader[T any] interface {
	GetState() T
}

// Writer applies transitions
type Writer[T any] interface {
	SetState(updater store.Updater[T]) error
}

// Subscriber registers listeners
type Subscriber[T any] interface {
	Subscribe(listener store.Listener[T]) store.Subscription
}

// Handle is the full interface of a store handle
type Handle[T any] interface {
	Reader[T]
	Writer[T]
	Subscriber[T]
}

// Replacer applies transitions that replace the state regardless of the
// store's mode
type Replacer[T any] interface {
	ReplaceState(updater store.Updater[T]) error
}

// Poster queues transitions without waiting for them
type Poster[T any] interface {
	Post(updater store.Updater[T]) error
}

var (
	_ Handle[int] = (*store.Store[int])(nil)
	_ Handle[int] = (*store.Serial[int])(nil)
	_ Poster[int] = (*store.Serial[int])(nil)

	_ Replacer[int] = (*store.Store[int])(nil)
	_ Replacer[int] = (*store.Serial[int])(nil)
)
