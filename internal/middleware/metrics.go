package middleware

import (
	"errors"
	"time"

	"storekit/internal/guard"
	"storekit/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

// Transition results reported by Metrics
const (
	ResultAccepted = "accepted"
	ResultElided   = "elided"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Collectors holds the prometheus collectors shared by every store
// instrumented through the same registerer
type Collectors struct {
	Transitions *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
}

// NewCollectors creates and registers the transition collectors.
// Registering twice on the same registerer returns the existing collectors.
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storekit",
		Name:      "transitions_total",
		Help:      "Store transitions that reached the commit chain, by result.",
	}, []string{"store", "result"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storekit",
		Name:      "transition_duration_seconds",
		Help:      "Time spent in the commit chain per transition.",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{"store"})

	if err := reg.Register(transitions); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		transitions = already.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(duration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		duration = already.ExistingCollector.(*prometheus.HistogramVec)
	}

	return &Collectors{Transitions: transitions, Duration: duration}, nil
}

// Metrics counts and times transitions. A transition whose result is
// shallowly equal to the previous state is reported as "elided", since a store
// with default equality drops it after the chain. Guard rejections are
// reported as "rejected", any other error as "failed".
func Metrics[T any](c *Collectors, name string) store.Middleware[T] {
	accepted := c.Transitions.WithLabelValues(name, ResultAccepted)
	elided := c.Transitions.WithLabelValues(name, ResultElided)
	rejected := c.Transitions.WithLabelValues(name, ResultRejected)
	failed := c.Transitions.WithLabelValues(name, ResultFailed)
	duration := c.Duration.WithLabelValues(name)

	return func(next store.Commit[T]) store.Commit[T] {
		return func(prev, candidate T) (T, error) {
			started := time.Now()
			out, err := next(prev, candidate)
			duration.Observe(time.Since(started).Seconds())

			switch {
			case err == nil && store.Shallow(prev, out):
				elided.Inc()
			case err == nil:
				accepted.Inc()
			case errors.Is(err, guard.ErrRejected):
				rejected.Inc()
			default:
				failed.Inc()
			}
			return out, err
		}
	}
}
