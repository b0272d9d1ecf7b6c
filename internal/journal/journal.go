// Package journal keeps a bounded history of committed store transitions.
package journal

import (
	"sync"
	"time"

	"storekit/internal/clock"
	"storekit/internal/store"

	"github.com/google/uuid"
)

// DefaultSize is used when a journal is created with a non-positive size
const DefaultSize = 128

// Entry records one committed transition
type Entry[T any] struct {
	ID   string    `json:"id"`
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
	Prev T         `json:"prev"`
	Next T         `json:"next"`
}

// Journal is a ring buffer of the most recent transitions. It is safe for
// concurrent use; recording usually happens on a store's loop goroutine while
// readers serve API requests.
type Journal[T any] struct {
	mu      sync.RWMutex
	clock   clock.Clock
	entries []Entry[T]
	start   int
	seq     uint64
}

// New creates a journal holding at most size entries
func New[T any](size int, clk clock.Clock) *Journal[T] {
	if size <= 0 {
		size = DefaultSize
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	return &Journal[T]{
		clock:   clk,
		entries: make([]Entry[T], 0, size),
	}
}

// Attach records every transition committed by src from now on
func (j *Journal[T]) Attach(src interface {
	Subscribe(listener store.Listener[T]) store.Subscription
}) store.Subscription {
	return src.Subscribe(j.Record)
}

// Record appends a transition, evicting the oldest entry when full
func (j *Journal[T]) Record(next, prev T) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	entry := Entry[T]{
		ID:   newID(),
		Seq:  j.seq,
		Time: j.clock.Now(),
		Prev: prev,
		Next: next,
	}

	if len(j.entries) < cap(j.entries) {
		j.entries = append(j.entries, entry)
		return
	}
	j.entries[j.start] = entry
	j.start = (j.start + 1) % len(j.entries)
}

// Entries returns all retained entries, oldest first
func (j *Journal[T]) Entries() []Entry[T] {
	return j.Since(0)
}

// Since returns retained entries with Seq greater than seq, oldest first
func (j *Journal[T]) Since(seq uint64) []Entry[T] {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Entry[T], 0, len(j.entries))
	for i := 0; i < len(j.entries); i++ {
		entry := j.entries[(j.start+i)%len(j.entries)]
		if entry.Seq > seq {
			out = append(out, entry)
		}
	}
	return out
}

// Last returns the most recent entry
func (j *Journal[T]) Last() (Entry[T], bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if len(j.entries) == 0 {
		var zero Entry[T]
		return zero, false
	}
	idx := (j.start + len(j.entries) - 1) % len(j.entries)
	return j.entries[idx], true
}

// Seq returns the sequence number of the last recorded transition
func (j *Journal[T]) Seq() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.seq
}

// Len returns the number of retained entries
func (j *Journal[T]) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
