package middleware

import (
	"fmt"
	"sort"
	"sync"

	"storekit/internal/guard"
	"storekit/internal/store"

	"go.uber.org/zap"
)

// Priority constants for registration.
// Higher priority values override lower priority entries with the same name.
const (
	PriorityDefault  = 0
	PriorityOverride = 100
)

// DefaultOrder is used for entries registered without an order
const DefaultOrder = 50

// Deps carries what middleware factories may need
type Deps struct {
	StoreName  string
	Logger     *zap.Logger
	Collectors *Collectors
	Guard      *guard.Guard
}

// Factory creates a middleware for a store
type Factory[T any] func(deps Deps) (store.Middleware[T], error)

// Info describes a registered middleware
type Info[T any] struct {
	// Name is the identifier used in configuration
	Name        string
	Description string
	// Priority decides which registration wins for a duplicate name
	Priority int
	// Order positions the middleware in the chain. Lower values wrap
	// outermost and see a transition first.
	Order   int
	Factory Factory[T]
}

// Registry maps middleware names to factories
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]Info[T]
}

// NewRegistry creates an empty registry
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]Info[T])}
}

// Register adds a middleware. For a duplicate name the registration with the
// higher priority wins; on equal priority the later one wins.
func (r *Registry[T]) Register(info Info[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.Name == "" {
		return fmt.Errorf("middleware name cannot be empty")
	}
	if info.Factory == nil {
		return fmt.Errorf("middleware %s: factory cannot be nil", info.Name)
	}
	if info.Order == 0 {
		info.Order = DefaultOrder
	}

	if existing, ok := r.entries[info.Name]; ok && info.Priority < existing.Priority {
		return nil
	}
	r.entries[info.Name] = info
	return nil
}

// Get returns the entry for name, or nil
func (r *Registry[T]) Get(name string) *Info[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.entries[name]
	if !ok {
		return nil
	}
	return &info
}

// List returns all entries sorted by order, then name
func (r *Registry[T]) List() []Info[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info[T], 0, len(r.entries))
	for _, info := range r.entries {
		out = append(out, info)
	}
	sortInfos(out)
	return out
}

// Chain builds the named middlewares, sorted by order regardless of the order
// the names are given in
func (r *Registry[T]) Chain(names []string, deps Deps) ([]store.Middleware[T], error) {
	r.mu.RLock()
	selected := make([]Info[T], 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		info, ok := r.entries[name]
		if !ok {
			r.mu.RUnlock()
			return nil, fmt.Errorf("unknown middleware %q", name)
		}
		selected = append(selected, info)
	}
	r.mu.RUnlock()

	sortInfos(selected)

	chain := make([]store.Middleware[T], 0, len(selected))
	for _, info := range selected {
		mw, err := info.Factory(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to create middleware %s: %w", info.Name, err)
		}
		chain = append(chain, mw)
	}
	return chain, nil
}

func sortInfos[T any](infos []Info[T]) {
	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].Order != infos[j].Order {
			return infos[i].Order < infos[j].Order
		}
		return infos[i].Name < infos[j].Name
	})
}

// DocumentRegistry returns a registry preloaded with the built-in document
// store middlewares: "metrics", "logger" and "guard", in that chain order
func DocumentRegistry() *Registry[store.Map] {
	r := NewRegistry[store.Map]()

	_ = r.Register(Info[store.Map]{
		Name:        "metrics",
		Description: "Count and time transitions",
		Order:       10,
		Factory: func(deps Deps) (store.Middleware[store.Map], error) {
			if deps.Collectors == nil {
				return nil, fmt.Errorf("metrics collectors not configured")
			}
			return Metrics[store.Map](deps.Collectors, deps.StoreName), nil
		},
	})

	_ = r.Register(Info[store.Map]{
		Name:        "logger",
		Description: "Log transitions and rejections",
		Order:       20,
		Factory: func(deps Deps) (store.Middleware[store.Map], error) {
			logger := deps.Logger
			if logger == nil {
				logger = zap.NewNop()
			}
			return Logger[store.Map](logger, deps.StoreName), nil
		},
	})

	_ = r.Register(Info[store.Map]{
		Name:        "guard",
		Description: "Reject transitions failing CEL rules",
		Order:       30,
		Factory: func(deps Deps) (store.Middleware[store.Map], error) {
			return Guard(deps.Guard), nil
		},
	})

	return r
}
