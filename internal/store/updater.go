package store

// Updater computes a (partial) next state from the current one.
// It must not modify current in place.
type Updater[T any] func(current T) (T, error)

// Set returns an updater that ignores the current state and yields v
func Set[T any](v T) Updater[T] {
	return func(T) (T, error) {
		return v, nil
	}
}

// Update returns an updater built from a pure function of the current state
func Update[T any](fn func(current T) T) Updater[T] {
	return func(current T) (T, error) {
		return fn(current), nil
	}
}

// Func returns an updater that may fail. A failing updater rejects the
// transition and its error is returned from SetState.
func Func[T any](fn func(current T) (T, error)) Updater[T] {
	return Updater[T](fn)
}

// Patch returns an updater that edits a shallow copy of the current state.
// It is meant for struct states: the copy shares nested maps and slices with
// the current value, so fn must replace those rather than modify them.
func Patch[T any](fn func(draft *T)) Updater[T] {
	return func(current T) (T, error) {
		draft := current
		fn(&draft)
		return draft, nil
	}
}
