// Package ratelimit tracks the GitHub search quota reported in response headers.
// It reads X-RateLimit-Remaining, X-RateLimit-Limit and X-RateLimit-Reset and
// keeps the latest state in a Store shared between runs.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "stars:rate_limit:remaining"
	RedisKeyLimit          = "stars:rate_limit:limit"
	RedisKeyResetTimestamp = "stars:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "stars:rate_limit:last_update"
)

// Thresholds for rate limit health. The authenticated search quota is 30
// requests per minute.
const (
	// ThresholdExhausted means the next request will be rejected.
	ThresholdExhausted = 0

	// ThresholdWarning marks a nearly spent quota.
	ThresholdWarning = 5

	// ThresholdHealthy indicates normal operation.
	ThresholdHealthy = 10
)

// RateLimitState represents the current search quota.
type RateLimitState struct {
	// Remaining is the number of requests left in the window.
	// Extracted from the X-RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// Limit is the window size in requests (X-RateLimit-Limit).
	Limit int `json:"limit"`

	// ResetAt is when the window refills (X-RateLimit-Reset, epoch seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsExhausted returns true if the quota is spent and has not reset yet.
func (s *RateLimitState) IsExhausted() bool {
	return s.Remaining <= ThresholdExhausted && s.TimeUntilReset() > 0
}

// IsLow returns true if the quota is below the warning threshold but not spent.
func (s *RateLimitState) IsLow() bool {
	return s.Remaining < ThresholdWarning && s.Remaining > ThresholdExhausted
}

// TimeUntilReset returns the duration until the quota resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
