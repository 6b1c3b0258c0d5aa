// Package fetcher executes a plan, listing every interval and stitching two
// differently ordered windows together when an interval exceeds the cap.
//
// The stitch assumes the ascending and descending listings partition the
// ranked population into a front and a back part. That holds only while the
// secondary ranking key does not change between the two calls; the windows are
// not deduplicated unless Config.Dedup is set.
package fetcher

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

// Prometheus metrics for fetching.
var (
	itemsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stars_fetch_items_total",
		Help: "Total items collected by listing order",
	}, []string{"order"})

	intervalsStitched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stars_intervals_stitched_total",
		Help: "Total intervals that needed a second, descending window",
	})

	coverageGaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stars_coverage_gaps_total",
		Help: "Total intervals whose population exceeded both windows",
	})

	duplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stars_fetch_duplicates_dropped_total",
		Help: "Total items dropped by deduplication",
	})
)

// Config holds fetcher settings.
type Config struct {
	// Cap is the per-query result cap of the search service.
	Cap int

	// Dedup drops items whose ID was already collected. Off by default: the
	// stitched windows are kept as returned.
	Dedup bool
}

// DefaultConfig returns the GitHub search cap without deduplication.
func DefaultConfig() Config {
	return Config{Cap: 1000}
}

// Result is the outcome of fetching a plan.
type Result struct {
	Items []search.Item

	// Gaps lists intervals that could not be fully covered.
	Gaps []*CoverageGapError

	// Stitched counts intervals that needed the descending window.
	Stitched int

	// Duplicates counts items dropped by deduplication.
	Duplicates int
}

// Err joins every coverage gap, or returns nil when coverage is complete.
func (r *Result) Err() error {
	if len(r.Gaps) == 0 {
		return nil
	}
	errs := make([]error, len(r.Gaps))
	for i, g := range r.Gaps {
		errs[i] = g
	}
	return errors.Join(errs...)
}

// Fetcher lists the items of planned intervals.
type Fetcher struct {
	lister  search.Lister
	retrier *retry.Retrier
	config  Config
	logger  zerolog.Logger
}

// New creates a fetcher. A non-positive cap takes the default.
func New(lister search.Lister, retrier *retry.Retrier, cfg Config, logger zerolog.Logger) *Fetcher {
	if cfg.Cap <= 0 {
		cfg.Cap = DefaultConfig().Cap
	}
	return &Fetcher{
		lister:  lister,
		retrier: retrier,
		config:  cfg,
		logger:  logger.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch lists every interval of p in order. Coverage gaps are reported in the
// result rather than returned; the error is non-nil only when ctx ends, in which
// case the items collected so far are returned too.
func (f *Fetcher) Fetch(ctx context.Context, p plan.Plan) (*Result, error) {
	res := &Result{}
	var seen map[string]struct{}
	if f.config.Dedup {
		seen = make(map[string]struct{})
	}

	for i, iv := range p {
		f.logger.Info().
			Str("interval", iv.String()).
			Int("index", i+1).
			Int("total", len(p)).
			Msgf("f %s\t%d / %d", iv, i+1, len(p))

		total, asc, err := f.window(ctx, iv, search.Ascending, func(int) int { return f.config.Cap })
		if err != nil {
			return res, fmt.Errorf("fetch %s ascending: %w", iv, err)
		}
		f.collect(res, seen, asc, search.Ascending)

		if total <= f.config.Cap {
			continue
		}

		var gap *CoverageGapError
		_, desc, err := f.window(ctx, iv, search.Descending, func(total int) int {
			gap = nil
			if total > 2*f.config.Cap {
				gap = &CoverageGapError{Interval: iv, Total: total, Cap: f.config.Cap}
				return f.config.Cap
			}
			return total - f.config.Cap
		})
		if err != nil {
			return res, fmt.Errorf("fetch %s descending: %w", iv, err)
		}
		f.collect(res, seen, desc, search.Descending)
		res.Stitched++
		intervalsStitched.Inc()

		if gap != nil {
			res.Gaps = append(res.Gaps, gap)
			coverageGaps.Inc()
			f.logger.Error().
				Err(gap).
				Str("interval", iv.String()).
				Int("total", gap.Total).
				Int("missing", gap.Missing()).
				Msg("Interval exceeds both windows")
		} else {
			f.logger.Debug().
				Str("interval", iv.String()).
				Int("total", total).
				Int("descending", len(desc)).
				Msg("Stitched descending window")
		}
	}

	f.logger.Info().
		Int("intervals", len(p)).
		Int("items", len(res.Items)).
		Int("stitched", res.Stitched).
		Int("gaps", len(res.Gaps)).
		Msg("Fetch complete")

	return res, nil
}

// window lists iv in order and keeps at most limit(total) items. Each attempt
// buffers its own items so a retried attempt never leaves a partial window.
func (f *Fetcher) window(ctx context.Context, iv plan.Interval, order search.Order, limit func(total int) int) (int, []search.Item, error) {
	var (
		total int
		items []search.Item
	)
	op := fmt.Sprintf("list %s %s", iv, order)
	err := f.retrier.Do(ctx, op, func(ctx context.Context) error {
		listing, err := f.lister.List(ctx, iv, order)
		if err != nil {
			return err
		}

		keep := limit(listing.Total)
		var buf []search.Item
		if keep > 0 {
			for item, err := range listing.Items {
				if err != nil {
					return err
				}
				buf = append(buf, item)
				if len(buf) >= keep {
					break
				}
			}
		}

		total, items = listing.Total, buf
		return nil
	})
	return total, items, err
}

func (f *Fetcher) collect(res *Result, seen map[string]struct{}, items []search.Item, order search.Order) {
	kept := 0
	for _, item := range items {
		if seen != nil && item.ID != "" {
			if _, dup := seen[item.ID]; dup {
				res.Duplicates++
				duplicatesDropped.Inc()
				continue
			}
			seen[item.ID] = struct{}{}
		}
		res.Items = append(res.Items, item)
		kept++
	}
	itemsFetched.WithLabelValues(string(order)).Add(float64(kept))
}
