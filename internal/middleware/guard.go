package middleware

import (
	"storekit/internal/guard"
	"storekit/internal/store"
)

// Guard rejects document transitions that fail any of g's rules
func Guard(g *guard.Guard) store.Middleware[store.Map] {
	return func(next store.Commit[store.Map]) store.Commit[store.Map] {
		return func(prev, candidate store.Map) (store.Map, error) {
			if err := g.Check(prev, candidate); err != nil {
				return prev, err
			}
			return next(prev, candidate)
		}
	}
}
