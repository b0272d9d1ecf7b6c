package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrClosed is returned when work is submitted to a stopped Serial
	ErrClosed = errors.New("store: serial store closed")
	// ErrRunning is returned when Run is called on a Serial that is already running
	ErrRunning = errors.New("store: serial store already running")
)

// outcome carries the result of a waited-for transition back to its caller
type outcome struct {
	err      error
	panicked bool
	value    any
}

type request[T any] struct {
	updater Updater[T]
	replace bool
	apply   func()
	done    chan outcome
}

// Serial lets several goroutines share one Store.
//
// A single goroutine, started with Run, owns the wrapped store and applies
// queued work in FIFO order. Listeners run on that goroutine. Reads are served
// from the last committed snapshot without touching the loop.
//
// Listeners must write back with Post. Calling Update or SetState from a
// listener blocks the loop on itself.
type Serial[T any] struct {
	inner    *Store[T]
	logger   *zap.Logger
	snapshot atomic.Pointer[T]

	mu      sync.Mutex
	queue   []request[T]
	closed  bool
	wake    chan struct{}
	running atomic.Bool
	stopped chan struct{}
}

// NewSerial wraps inner. The inner store must not be used directly afterwards.
func NewSerial[T any](inner *Store[T], logger *zap.Logger) *Serial[T] {
	s := &Serial[T]{
		inner:   inner,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}

	initial := inner.GetState()
	s.snapshot.Store(&initial)

	// Registered first so the snapshot is current before any other listener runs
	inner.Subscribe(func(next, _ T) {
		committed := next
		s.snapshot.Store(&committed)
	})

	return s
}

// Run processes queued work until ctx is done. Work still queued at that point
// is dropped, waiting callers receive ErrClosed.
func (s *Serial[T]) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(s.stopped)

	s.logger.Debug("Serial store loop started")

	for {
		batch := s.drain()
		for _, r := range batch {
			s.handle(r)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			s.logger.Debug("Serial store loop stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-s.wake:
		}
	}
}

func (s *Serial[T]) drain() []request[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.queue
	s.queue = nil
	return batch
}

func (s *Serial[T]) shutdown() {
	s.mu.Lock()
	s.closed = true
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, r := range pending {
		if r.done != nil {
			r.done <- outcome{err: ErrClosed}
		}
	}
	if len(pending) > 0 {
		s.logger.Warn("Dropped queued store work on shutdown",
			zap.Int("pending", len(pending)))
	}
}

func (s *Serial[T]) handle(r request[T]) {
	if r.apply != nil {
		r.apply()
		return
	}

	mode := s.inner.mode
	if r.replace {
		mode = ModeReplace
	}

	if r.done == nil {
		if err := s.inner.apply(r.updater, mode); err != nil {
			s.logger.Warn("Posted transition rejected", zap.Error(err))
		}
		return
	}

	// Hand panics to the waiting caller instead of killing the loop
	defer func() {
		if p := recover(); p != nil {
			r.done <- outcome{panicked: true, value: p}
		}
	}()
	r.done <- outcome{err: s.inner.apply(r.updater, mode)}
}

func (s *Serial[T]) enqueue(r request[T]) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.queue = append(s.queue, r)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// GetState returns the last committed state
func (s *Serial[T]) GetState() T {
	return *s.snapshot.Load()
}

// Post queues a transition without waiting for it. Rejections are logged.
func (s *Serial[T]) Post(updater Updater[T]) error {
	if updater == nil {
		return ErrNilUpdater
	}
	return s.enqueue(request[T]{updater: updater})
}

// Update queues a transition and waits for its result. If ctx ends first,
// ctx.Err() is returned and the transition may still be applied later.
func (s *Serial[T]) Update(ctx context.Context, updater Updater[T]) error {
	return s.submit(ctx, request[T]{updater: updater})
}

// Replace is Update with the result replacing the state, whatever mode the
// inner store was created with
func (s *Serial[T]) Replace(ctx context.Context, updater Updater[T]) error {
	return s.submit(ctx, request[T]{updater: updater, replace: true})
}

func (s *Serial[T]) submit(ctx context.Context, r request[T]) error {
	if r.updater == nil {
		return ErrNilUpdater
	}

	done := make(chan outcome, 1)
	r.done = done
	if err := s.enqueue(r); err != nil {
		return err
	}

	select {
	case o := <-done:
		return o.result()
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		select {
		case o := <-done:
			return o.result()
		default:
			return ErrClosed
		}
	}
}

func (o outcome) result() error {
	if o.panicked {
		panic(o.value)
	}
	return o.err
}

// SetState is Update with a background context
func (s *Serial[T]) SetState(updater Updater[T]) error {
	return s.Update(context.Background(), updater)
}

// ReplaceState is Replace with a background context
func (s *Serial[T]) ReplaceState(updater Updater[T]) error {
	return s.Replace(context.Background(), updater)
}

// Subscribe registers a listener. Registration is queued like a transition,
// so the listener observes every transition queued after this call.
func (s *Serial[T]) Subscribe(listener Listener[T]) Subscription {
	sub := &serialSubscription[T]{serial: s}
	if listener == nil {
		sub.removed.Store(true)
		return sub
	}

	guarded := func(next, prev T) {
		if sub.removed.Load() {
			return
		}
		listener(next, prev)
	}

	err := s.enqueue(request[T]{apply: func() {
		if sub.removed.Load() {
			return
		}
		sub.inner = s.inner.Subscribe(guarded)
	}})
	if err != nil {
		s.logger.Warn("Subscribe on closed serial store", zap.Error(err))
		sub.removed.Store(true)
	}

	return sub
}

// Done is closed when Run has returned
func (s *Serial[T]) Done() <-chan struct{} {
	return s.stopped
}

type serialSubscription[T any] struct {
	serial  *Serial[T]
	removed atomic.Bool
	inner   Subscription // only touched on the loop goroutine
}

// Unsubscribe stops deliveries immediately and releases the registration
// on the loop
func (s *serialSubscription[T]) Unsubscribe() {
	if s.removed.Swap(true) {
		return
	}
	_ = s.serial.enqueue(request[T]{apply: func() {
		if s.inner != nil {
			s.inner.Unsubscribe()
		}
	}})
}
