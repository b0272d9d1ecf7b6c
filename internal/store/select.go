package store

// Subscriber is anything that exposes a current state and listener
// registration, such as *Store or *Serial
type Subscriber[T any] interface {
	GetState() T
	Subscribe(listener Listener[T]) Subscription
}

type selectConfig[V any] struct {
	equal           Equal[V]
	fireImmediately bool
}

// SelectOption configures SubscribeSelector
type SelectOption[V any] func(*selectConfig[V])

// WithSelectEqual sets the equality used to detect a changed slice.
// The default is Shallow.
func WithSelectEqual[V any](equal Equal[V]) SelectOption[V] {
	return func(c *selectConfig[V]) {
		if equal != nil {
			c.equal = equal
		}
	}
}

// FireImmediately calls the listener once at subscription time with the
// current slice as both next and prev
func FireImmediately[V any]() SelectOption[V] {
	return func(c *selectConfig[V]) {
		c.fireImmediately = true
	}
}

// SubscribeSelector subscribes to the slice of state picked by selector.
// The listener runs only when the selected value changes.
func SubscribeSelector[T, V any](src Subscriber[T], selector func(T) V, listener func(next, prev V), opts ...SelectOption[V]) Subscription {
	cfg := selectConfig[V]{equal: Shallow[V]}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	current := selector(src.GetState())
	if cfg.fireImmediately {
		listener(current, current)
	}

	return src.Subscribe(func(next, _ T) {
		selected := selector(next)
		if cfg.equal(current, selected) {
			return
		}
		prev := current
		current = selected
		listener(selected, prev)
	})
}
