package main

import (
	"fmt"

	"github.com/Sternrassler/star-sweep/pkg/config"
	"github.com/Sternrassler/star-sweep/pkg/logging"
	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by every command. Flags override the
// environment only when given explicitly.
type rootOptions struct {
	envFile     string
	token       string
	start       int
	logLevel    string
	logFormat   string
	metricsAddr string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "star-sweep",
		Short: "Enumerate GitHub repositories by star count",
		Long: `star-sweep works around the 1000 result cap of GitHub search by
splitting the star axis into intervals that each match few enough
repositories, then listing every interval.

Configuration is read from the environment (optionally from a .env file);
flags override it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "Load environment from this file if it exists")
	flags.StringVarP(&opts.token, "token", "i", "", "GitHub API token (overrides GITHUB_TOKEN)")
	flags.IntVarP(&opts.start, "start", "s", config.DefaultStart, "Min stars (overrides STARS_START)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: json, pretty, plain")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address")

	cmd.AddCommand(newPlanCmd(opts))
	cmd.AddCommand(newFetchCmd(opts))
	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newCacheCmd(opts))

	return cmd
}

// load resolves the configuration and sets up logging.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("token") {
		cfg.GitHub.Token = o.token
	}
	if flags.Changed("start") {
		cfg.Planner.Start = o.start
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logging.LogLevel(o.logLevel)
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logging.Format(o.logFormat)
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	cfg.Log.Output = cmd.ErrOrStderr()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logging.Setup(cfg.Log)
	o.cfg = cfg
	return nil
}
