package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stars_ratelimit_remaining",
		Help: "Search requests remaining in the current GitHub rate limit window",
	})

	rateLimitExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stars_ratelimit_exhausted_total",
		Help: "Total number of responses reporting an exhausted search quota",
	})
)

// Tracker records the search quota from response headers. It does not gate
// requests; callers wait on rate-limit errors instead.
type Tracker struct {
	store  Store
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker. A nil store keeps state in memory.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		logger: logger.With().Str("component", "ratelimit").Logger(),
	}
}

// GetState retrieves the current rate limit state.
// Returns a default healthy state if nothing was recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		t.logger.Debug().Msg("No rate limit state recorded, returning default healthy state")
		return &RateLimitState{
			Remaining:  ThresholdHealthy,
			ResetAt:    time.Now(),
			LastUpdate: time.Now(),
			IsHealthy:  true,
		}, nil
	}
	return state, nil
}

// ResetAt returns the recorded reset time, or the zero time if unknown.
func (t *Tracker) ResetAt(ctx context.Context) time.Time {
	state, err := t.store.Load(ctx)
	if err != nil || state == nil {
		return time.Time{}
	}
	return state.ResetAt
}

// UpdateFromHeaders parses GitHub rate limit headers and stores the state.
// Responses without the headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get("X-RateLimit-Remaining")
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
	}

	resetStr := headers.Get("X-RateLimit-Reset")
	if resetStr == "" {
		return fmt.Errorf("X-RateLimit-Reset header missing")
	}
	resetEpoch, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Reset header: %w", err)
	}

	limit := 0
	if limitStr := headers.Get("X-RateLimit-Limit"); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			return fmt.Errorf("parse X-RateLimit-Limit header: %w", err)
		}
	}

	state := &RateLimitState{
		Remaining:  remain,
		Limit:      limit,
		ResetAt:    time.Unix(resetEpoch, 0),
		LastUpdate: time.Now(),
	}
	state.UpdateHealth()

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	rateLimitRemaining.Set(float64(remain))

	switch {
	case state.IsExhausted():
		rateLimitExhaustedTotal.Inc()
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Search quota exhausted")
	case state.IsLow():
		t.logger.Info().
			Int("remaining", remain).
			Time("reset_at", state.ResetAt).
			Msg("Search quota low")
	default:
		t.logger.Debug().
			Int("remaining", remain).
			Int("limit", limit).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Rate limit state updated")
	}

	return nil
}
