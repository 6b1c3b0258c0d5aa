// Package cache remembers interval result counts so that repeated planning
// runs do not spend search quota on probes already answered.
//
// The count cache sits between the planner and the search client:
//
//	client, _ := github.New(github.DefaultConfig(token, ua), logger)
//	counts := cache.NewCachedClient(client, cache.NewManager(redisClient), cache.Config{}, logger)
//	p := planner.New(counts, retrier, planner.DefaultConfig(), logger)
//
// A rerun of the planner over the same start replays its probes from memory
// or Redis and issues no search requests until it reaches new ground.
//
// # Keys
//
// Entries live under stars:count:low..high and are written as JSON
// {count, cached_at, expires} with a Redis TTL equal to the entry lifetime.
//
// # Metrics
//
//   - stars_cache_hits_total{layer="memory"|"redis"} - Cache hits
//   - stars_cache_misses_total - Probes sent upstream
//   - stars_cache_stores_total{layer} - Counts stored
//   - stars_cache_errors_total{operation} - Cache operation errors
package cache
