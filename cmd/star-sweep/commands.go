package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/star-sweep/pkg/cache"
	"github.com/Sternrassler/star-sweep/pkg/fetcher"
	"github.com/Sternrassler/star-sweep/pkg/plan"
	"github.com/Sternrassler/star-sweep/pkg/planner"
	"github.com/Sternrassler/star-sweep/pkg/sink"
	"github.com/spf13/cobra"
)

type planOptions struct {
	resume   string
	savePlan string
}

type fetchOptions struct {
	output string
	dedup  bool
	strict bool
}

func (o *planOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.resume, "plan", "p", "", "Path to file with a fetch plan to resume")
	cmd.Flags().StringVar(&o.savePlan, "save-plan", "", "Path to file where to write the resulting fetch plan")
}

func (o *fetchOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.output, "output", "o", "", `Path to the output JSONL ("-" for stdout)`)
	cmd.Flags().BoolVar(&o.dedup, "dedup", false, "Drop repositories listed twice")
	cmd.Flags().BoolVar(&o.strict, "strict", false, "Exit non-zero when an interval could not be fully covered")
}

func newPlanCmd(root *rootOptions) *cobra.Command {
	opts := &planOptions{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Partition the star axis into fetchable intervals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			p, err := runPlan(cmd.Context(), a, opts)
			if opts.savePlan == "" && len(p) > 0 {
				err = errors.Join(err, plan.Render(cmd.OutOrStdout(), p))
			}
			return err
		},
	}
	opts.bind(cmd)
	return cmd
}

func newFetchCmd(root *rootOptions) *cobra.Command {
	var planFile string
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "List every repository of a saved plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := plan.ReadFile(planFile)
			if err != nil {
				return fmt.Errorf("read plan: %w", err)
			}

			a, err := newApp(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			return runFetch(cmd, a, p, opts)
		},
	}
	cmd.Flags().StringVarP(&planFile, "plan", "p", "", "Path to file with the fetch plan")
	_ = cmd.MarkFlagRequired("plan")
	opts.bind(cmd)
	return cmd
}

func newRunCmd(root *rootOptions) *cobra.Command {
	planOpts := &planOptions{}
	fetchOpts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and fetch in one go",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			p, err := runPlan(cmd.Context(), a, planOpts)
			if err != nil {
				return err
			}
			return runFetch(cmd, a, p, fetchOpts)
		},
	}
	planOpts.bind(cmd)
	fetchOpts.bind(cmd)
	return cmd
}

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the shared count cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every cached interval count from Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if root.cfg.RedisURL == "" {
				return errors.New("REDIS_URL is not set")
			}
			rdb, err := connectRedis(cmd.Context(), root.cfg.RedisURL)
			if err != nil {
				return err
			}
			defer rdb.Close()

			n, err := cache.NewManager(rdb).Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached counts\n", n)
			return nil
		},
	})
	return cmd
}

// runPlan builds or resumes a plan and saves it when asked. A plan cut short
// by cancellation is returned with the error and still saved, so the next run
// can resume it.
func runPlan(ctx context.Context, a *app, opts *planOptions) (plan.Plan, error) {
	var prior plan.Plan
	if opts.resume != "" {
		var err error
		if prior, err = plan.ReadFile(opts.resume); err != nil {
			return nil, fmt.Errorf("read plan: %w", err)
		}
	}

	pl := planner.New(a.counts, a.retrier, a.cfg.PlannerSettings(), a.logger)
	p, report, planErr := pl.Resume(ctx, prior, a.cfg.Planner.Start)

	if opts.savePlan != "" && len(p) > 0 {
		if err := plan.WriteFile(opts.savePlan, p); err != nil {
			return nil, errors.Join(planErr, fmt.Errorf("save plan: %w", err))
		}
		a.logger.Info().Str("path", opts.savePlan).Int("intervals", len(p)).Msg("Plan saved")
	}
	if planErr != nil {
		return p, planErr
	}

	for _, s := range report.Skipped {
		a.logger.Warn().Int("score", s.Score).Int("count", s.Count).Msg("Score not covered by the plan")
	}
	a.logger.Info().
		Int("intervals", len(p)).
		Int("probes", report.Probes).
		Int("cached_counts", a.counts.Len()).
		Int("estimated_requests", a.estimatedRequests(len(p))).
		Msgf("----plan (~%d fetches)----", a.estimatedRequests(len(p)))
	return p, nil
}

// runFetch lists p and writes the items to every configured sink.
func runFetch(cmd *cobra.Command, a *app, p plan.Plan, opts *fetchOptions) error {
	ctx := cmd.Context()

	out, err := openSinks(ctx, a, opts)
	if err != nil {
		return err
	}

	f := fetcher.New(a.counts, a.retrier, fetcher.Config{Cap: a.cfg.Planner.Cap, Dedup: opts.dedup}, a.logger)
	res, fetchErr := f.Fetch(ctx, p)

	// Whatever was collected is written, even after cancellation.
	writeErr := out.Write(context.WithoutCancel(ctx), res.Items)
	closeErr := out.Close()
	if err := errors.Join(fetchErr, writeErr, closeErr); err != nil {
		return err
	}

	if opts.output != "" && opts.output != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "The result was written to %s\n", opts.output)
	}
	if gaps := res.Err(); gaps != nil {
		a.logger.Warn().Int("gaps", len(res.Gaps)).Msg("Some intervals were only partially fetched")
		if opts.strict {
			return gaps
		}
	}
	return nil
}

func openSinks(ctx context.Context, a *app, opts *fetchOptions) (sink.Multi, error) {
	var out sink.Multi
	if opts.output != "" {
		j, err := sink.CreateJSONL(opts.output)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if a.cfg.PostgresDSN != "" {
		pg, err := sink.OpenPostgres(ctx, a.cfg.PostgresDSN, a.logger)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("open postgres sink: %w", err)
		}
		out = append(out, pg)
	}
	if len(out) == 0 {
		return nil, errors.New("no output: set --output or PG_DSN")
	}
	return out, nil
}
