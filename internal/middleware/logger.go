// Package middleware provides reusable store middlewares: transition
// logging, prometheus metrics, and CEL guards.
package middleware

import (
	"time"

	"storekit/internal/store"

	"go.uber.org/zap"
)

// Logger logs every transition passing through the commit chain. Accepted
// and elided transitions are logged at debug level, rejected ones at warn.
// A result shallowly equal to the previous state is logged as elided.
func Logger[T any](logger *zap.Logger, name string) store.Middleware[T] {
	logger = logger.With(zap.String("store", name))

	return func(next store.Commit[T]) store.Commit[T] {
		return func(prev, candidate T) (T, error) {
			started := time.Now()
			out, err := next(prev, candidate)
			if err != nil {
				logger.Warn("Transition rejected",
					zap.Error(err),
					zap.Duration("elapsed", time.Since(started)))
				return out, err
			}

			if store.Shallow(prev, out) {
				logger.Debug("Transition elided",
					zap.Duration("elapsed", time.Since(started)))
				return out, nil
			}

			logger.Debug("Transition",
				zap.Any("prev", prev),
				zap.Any("next", out),
				zap.Duration("elapsed", time.Since(started)))
			return out, nil
		}
	}
}
