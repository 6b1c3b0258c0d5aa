// Package config loads star-sweep settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/star-sweep/pkg/cache"
	"github.com/Sternrassler/star-sweep/pkg/github"
	"github.com/Sternrassler/star-sweep/pkg/logging"
	"github.com/Sternrassler/star-sweep/pkg/planner"
	"github.com/Sternrassler/star-sweep/pkg/retry"
	"github.com/Sternrassler/star-sweep/pkg/search"
	"github.com/joho/godotenv"
)

// DefaultUserAgent identifies star-sweep to GitHub when USER_AGENT is unset.
const DefaultUserAgent = "star-sweep/0.1.0"

// DefaultStart is the lowest star count planned when STARS_START is unset.
const DefaultStart = 50

// Config holds every setting of a run.
type Config struct {
	GitHub  GitHubConfig
	Planner PlannerConfig
	Retry   RetryConfig

	// RedisURL enables the shared count cache and rate-limit state, e.g.
	// redis://localhost:6379/0. Empty keeps both in memory.
	RedisURL string

	// PostgresDSN enables the Postgres sink.
	PostgresDSN string

	// CountCacheTTL bounds how long a probe result is reused.
	CountCacheTTL time.Duration

	Log logging.Config

	// MetricsAddr serves /metrics and /health when set, e.g. ":9090".
	MetricsAddr string
}

// GitHubConfig configures the search client.
type GitHubConfig struct {
	Token     string
	UserAgent string
	BaseURL   string
}

// PlannerConfig configures the interval planner.
type PlannerConfig struct {
	Start   int
	Cap     int
	Ceiling int
}

// RetryConfig holds the fixed waits per error class.
type RetryConfig struct {
	RateLimitWait time.Duration
	TransientWait time.Duration
}

// Load reads envFilePath if it exists and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// A missing file is fine; the environment alone is enough.
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	e := &env{}
	pretty := e.bool("LOG_PRETTY", false)
	format := logging.Format(getEnv("LOG_FORMAT", string(logging.FormatJSON)))
	if pretty {
		format = logging.FormatPretty
	}

	cfg := &Config{
		GitHub: GitHubConfig{
			Token:     getEnv("GITHUB_TOKEN", ""),
			UserAgent: getEnv("USER_AGENT", DefaultUserAgent),
			BaseURL:   getEnv("GITHUB_API_URL", github.DefaultBaseURL),
		},
		Planner: PlannerConfig{
			Start:   e.int("STARS_START", DefaultStart),
			Cap:     e.int("STARS_CAP", planner.DefaultConfig().Cap),
			Ceiling: e.int("STARS_CEILING", planner.DefaultConfig().Ceiling),
		},
		Retry: RetryConfig{
			RateLimitWait: e.duration("RATE_LIMIT_WAIT", retry.DefaultPolicy()[search.ErrorClassRateLimit]),
			TransientWait: e.duration("TRANSIENT_WAIT", retry.DefaultPolicy()[search.ErrorClassTransient]),
		},
		RedisURL:      getEnv("REDIS_URL", ""),
		PostgresDSN:   getEnv("PG_DSN", ""),
		CountCacheTTL: e.duration("COUNT_CACHE_TTL", cache.DefaultTTL),
		Log: logging.Config{
			Level:  logging.LogLevel(getEnv("LOG_LEVEL", string(logging.LevelInfo))),
			Format: format,
			Output: os.Stderr,
		},
		MetricsAddr: getEnv("METRICS_ADDR", ""),
	}

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for values no run could use.
func (c *Config) Validate() error {
	var errs []error
	if c.Planner.Start < 1 {
		errs = append(errs, fmt.Errorf("STARS_START must be >= 1 (got %d)", c.Planner.Start))
	}
	if c.Planner.Cap < 1 {
		errs = append(errs, fmt.Errorf("STARS_CAP must be >= 1 (got %d)", c.Planner.Cap))
	}
	if c.Planner.Ceiling < 1 {
		errs = append(errs, fmt.Errorf("STARS_CEILING must be >= 1 (got %d)", c.Planner.Ceiling))
	}
	if c.Retry.RateLimitWait < 0 || c.Retry.TransientWait < 0 {
		errs = append(errs, fmt.Errorf("retry waits must not be negative"))
	}
	if c.GitHub.UserAgent == "" {
		errs = append(errs, fmt.Errorf("USER_AGENT must not be empty"))
	}
	if err := logging.ValidateLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if err := logging.ValidateFormat(c.Log.Format); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RetryPolicy returns the wait table for retry.New.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		search.ErrorClassRateLimit: c.Retry.RateLimitWait,
		search.ErrorClassTransient: c.Retry.TransientWait,
	}
}

// PlannerSettings returns the planner limits.
func (c *Config) PlannerSettings() planner.Config {
	return planner.Config{Cap: c.Planner.Cap, Ceiling: c.Planner.Ceiling}
}

// GitHubSettings returns the search client configuration.
func (c *Config) GitHubSettings() github.Config {
	cfg := github.DefaultConfig(c.GitHub.Token, c.GitHub.UserAgent)
	cfg.BaseURL = c.GitHub.BaseURL
	cfg.Cap = c.Planner.Cap
	return cfg
}

// getEnv returns the variable or defaultValue when unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// env parses typed variables and collects parse failures.
type env struct {
	errs []error
}

func (e *env) int(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

func (e *env) bool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

// duration accepts Go durations ("90s") or bare seconds ("60").
func (e *env) duration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}
