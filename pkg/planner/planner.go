// Package planner partitions the star axis into intervals whose search results
// stay near the service cap, using only observed match counts.
//
// Each interval is found by probing [start, start+offset] with an offset that
// grows by a doubling step while the count stays under the cap. Once a probe
// passes the cap the planner commits the window from before the last growth
// step, halves the step and continues from the next score. Interval widths
// therefore follow the local density of items without any prior knowledge of
// the distribution.
package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/star-sweep/pkg/plan"
	"github.com/Sternrassler/star-sweep/pkg/retry"
	"github.com/Sternrassler/star-sweep/pkg/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for planning.
var (
	probesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stars_planner_probes_total",
		Help: "Total count probes by resulting phase",
	}, []string{"phase"})

	intervalsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stars_planner_intervals_total",
		Help: "Total intervals committed to plans",
	})

	singletonsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stars_planner_skipped_scores_total",
		Help: "Total single scores skipped because they alone exceed twice the cap",
	})
)

// ErrInvalidStart is returned for a start score below 1.
var ErrInvalidStart = errors.New("start score must be positive")

// Config holds planner limits.
type Config struct {
	// Cap is the per-query result cap of the search service.
	Cap int

	// Ceiling is the growth step beyond which an empty probe ends planning.
	Ceiling int
}

// DefaultConfig returns the GitHub search limits.
func DefaultConfig() Config {
	return Config{
		Cap:     1000,
		Ceiling: 1 << 20,
	}
}

// Skip records a score left out of the plan.
type Skip struct {
	Score int `json:"score"`
	Count int `json:"count"`
}

// Report summarises one planning run.
type Report struct {
	Probes  int    `json:"probes"`
	Skipped []Skip `json:"skipped,omitempty"`
}

// Planner builds fetch plans.
type Planner struct {
	counter search.Counter
	retrier *retry.Retrier
	config  Config
	logger  zerolog.Logger
}

// New creates a planner. Zero config fields take their defaults.
func New(counter search.Counter, retrier *retry.Retrier, cfg Config, logger zerolog.Logger) *Planner {
	def := DefaultConfig()
	if cfg.Cap <= 0 {
		cfg.Cap = def.Cap
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = def.Ceiling
	}
	return &Planner{
		counter: counter,
		retrier: retrier,
		config:  cfg,
		logger:  logger.With().Str("component", "planner").Logger(),
	}
}

// Build plans the star axis from start upwards.
func (p *Planner) Build(ctx context.Context, start int) (plan.Plan, *Report, error) {
	return p.Resume(ctx, nil, start)
}

// Resume extends prior without re-probing it. Planning continues one past the
// last committed upper bound, or from start when prior is empty. The returned
// plan contains prior followed by the new intervals. On cancellation the
// intervals committed so far are returned with the error.
func (p *Planner) Resume(ctx context.Context, prior plan.Plan, start int) (plan.Plan, *Report, error) {
	if err := prior.Validate(); err != nil {
		return nil, nil, fmt.Errorf("prior plan: %w", err)
	}
	from := prior.Next(start)
	if from < 1 {
		return nil, nil, fmt.Errorf("%w (got %d)", ErrInvalidStart, from)
	}

	out := append(plan.Plan(nil), prior...)
	report := &Report{}
	state := initialState(from)

	p.logger.Info().
		Int("start", from).
		Int("prior_intervals", len(prior)).
		Int("cap", p.config.Cap).
		Msg("Planning started")

	for {
		window := state.window()
		n, err := retry.Value(ctx, p.retrier, "count "+window.String(), func(ctx context.Context) (int, error) {
			return p.counter.Count(ctx, window)
		})
		if err != nil {
			return out, report, fmt.Errorf("probe %s: %w", window, err)
		}
		report.Probes++

		next, phase, committed := advance(state, n, p.config)
		probesTotal.WithLabelValues(phase.String()).Inc()

		switch phase {
		case Done:
			p.logger.Info().
				Int("intervals", len(out)-len(prior)).
				Int("probes", report.Probes).
				Int("skipped", len(report.Skipped)).
				Msg("Planning finished")
			return out, report, nil

		case SkippingSingleton:
			singletonsSkipped.Inc()
			report.Skipped = append(report.Skipped, Skip{Score: state.start, Count: n})
			p.logger.Warn().
				Int("score", state.start).
				Int("count", n).
				Msgf("skipping %d - too many results (%d)", state.start, n)

		case Overshot:
			intervalsCommitted.Inc()
			out = append(out, committed)
			p.logger.Info().
				Int("low", committed.Low).
				Int("high", committed.High).
				Int("probe_count", n).
				Msg(fmt.Sprintf("%c %s", plan.Marker, committed))

		case Growing:
			p.logger.Debug().
				Str("window", window.String()).
				Int("count", n).
				Int("multiplier", next.multiplier).
				Msg("Window under cap, growing")
		}

		state = next
	}
}
