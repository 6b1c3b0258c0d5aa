package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/star-sweep/pkg/cache"
	"github.com/Sternrassler/star-sweep/pkg/config"
	"github.com/Sternrassler/star-sweep/pkg/github"
	"github.com/Sternrassler/star-sweep/pkg/metrics"
	"github.com/Sternrassler/star-sweep/pkg/ratelimit"
	"github.com/Sternrassler/star-sweep/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// app holds the collaborators shared by the commands of one invocation.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	redis   *redis.Client
	tracker *ratelimit.Tracker
	counts  *cache.CachedClient
	retrier *retry.Retrier
	server  *http.Server
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: log.Logger}

	var store ratelimit.Store
	var manager *cache.Manager
	if cfg.RedisURL != "" {
		rdb, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = rdb
		store = ratelimit.NewRedisStore(rdb)
		manager = cache.NewManager(rdb)
		a.logger.Info().Str("addr", rdb.Options().Addr).Msg("Connected to Redis")
	}

	a.tracker = ratelimit.NewTracker(store, a.logger)

	ghCfg := cfg.GitHubSettings()
	ghCfg.RateLimit = a.tracker
	client, err := github.New(ghCfg, a.logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create github client: %w", err)
	}
	if cfg.GitHub.Token == "" {
		a.logger.Warn().Msg("No GitHub token set, anonymous search quota is small")
	}

	a.counts = cache.NewCachedClient(client, manager, cache.Config{TTL: cfg.CountCacheTTL}, a.logger)
	a.retrier = retry.New(cfg.RetryPolicy(), nil, a.logger)

	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr)
	}
	return a, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func (a *app) serveMetrics(addr string) {
	a.server = &http.Server{
		Addr:              addr,
		Handler:           metrics.NewMux(metrics.HealthHandler(a.health)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// health reports Redis reachability when Redis is in use.
func (a *app) health() error {
	if a.redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return a.redis.Ping(ctx).Err()
}

func (a *app) close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// estimatedRequests is the worst-case number of listing requests for n
// intervals: two full windows each.
func (a *app) estimatedRequests(n int) int {
	gh := a.cfg.GitHubSettings()
	pages := (gh.Cap + gh.PerPage - 1) / gh.PerPage
	return n * 2 * pages
}
