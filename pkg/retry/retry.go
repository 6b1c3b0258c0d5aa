// Package retry runs search calls until they succeed, waiting a fixed duration
// per failure class between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/star-sweep/pkg/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stars_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stars_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 5, 30, 60},
	}, []string{"error_class"})
)

// ErrCancelled is returned when the context ends while retrying.
var ErrCancelled = errors.New("retry cancelled")

// Policy maps a failure class to the wait before the next attempt.
// Classes missing from the policy are not retried.
type Policy map[search.ErrorClass]time.Duration

// DefaultPolicy waits 60s after a rate-limit signal and 100ms after anything else.
func DefaultPolicy() Policy {
	return Policy{
		search.ErrorClassRateLimit: 60 * time.Second,
		search.ErrorClassTransient: 100 * time.Millisecond,
	}
}

// Wait returns the wait for class and whether the class is retried at all.
func (p Policy) Wait(class search.ErrorClass) (time.Duration, bool) {
	if class == "" {
		return 0, false
	}
	d, ok := p[class]
	return d, ok
}

// Clock abstracts waiting so tests can observe backoff without sleeping.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock waits in real time.
var SystemClock Clock = systemClock{}

// Retrier retries operations without an attempt limit.
type Retrier struct {
	policy Policy
	clock  Clock
	logger zerolog.Logger
}

// New creates a Retrier. A nil clock means SystemClock.
func New(policy Policy, clock Clock, logger zerolog.Logger) *Retrier {
	if clock == nil {
		clock = SystemClock
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Retrier{
		policy: policy,
		clock:  clock,
		logger: logger.With().Str("component", "retry").Logger(),
	}
}

// Do calls fn until it returns nil or an error whose class the policy does not
// retry. The context is checked before every attempt and during every wait.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCancelled, op, err)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info().
					Str("op", op).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		class := search.ClassOf(err)
		wait, ok := r.policy.Wait(class)
		if !ok {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s: %w", ErrCancelled, op, ctx.Err())
			}
			return err
		}

		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		event := r.logger.Warn()
		if class == search.ErrorClassTransient {
			event = r.logger.Debug()
		}
		event.Err(err).
			Str("op", op).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			r.logger.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %s: %w", ErrCancelled, op, ctx.Err())
		case <-r.clock.After(wait):
		}
	}
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
