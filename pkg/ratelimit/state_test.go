package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *RateLimitState
		maxAge   time.Duration
		expected bool
	}{
		{
			name: "fresh state",
			state: &RateLimitState{
				LastUpdate: time.Now(),
			},
			maxAge:   time.Minute,
			expected: false,
		},
		{
			name: "stale state",
			state: &RateLimitState{
				LastUpdate: time.Now().Add(-2 * time.Minute),
			},
			maxAge:   time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.state.IsStale(tt.maxAge)
			if result != tt.expected {
				t.Errorf("IsStale() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestRateLimitState_IsExhausted(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		resetAt   time.Time
		expected  bool
	}{
		{
			name:      "quota left",
			remaining: 12,
			resetAt:   time.Now().Add(30 * time.Second),
			expected:  false,
		},
		{
			name:      "spent before reset",
			remaining: 0,
			resetAt:   time.Now().Add(30 * time.Second),
			expected:  true,
		},
		{
			name:      "spent but window already reset",
			remaining: 0,
			resetAt:   time.Now().Add(-time.Second),
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{Remaining: tt.remaining, ResetAt: tt.resetAt}
			if got := state.IsExhausted(); got != tt.expected {
				t.Errorf("IsExhausted() = %v, want %v (remaining=%d)", got, tt.expected, tt.remaining)
			}
		})
	}
}

func TestRateLimitState_IsLow(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		expected  bool
	}{
		{name: "healthy", remaining: 25, expected: false},
		{name: "at warning threshold", remaining: ThresholdWarning, expected: false},
		{name: "just below warning threshold", remaining: ThresholdWarning - 1, expected: true},
		{name: "exhausted is not low", remaining: 0, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{Remaining: tt.remaining}
			if got := state.IsLow(); got != tt.expected {
				t.Errorf("IsLow() = %v, want %v (remaining=%d)", got, tt.expected, tt.remaining)
			}
		})
	}
}

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	future := &RateLimitState{ResetAt: time.Now().Add(45 * time.Second)}
	if d := future.TimeUntilReset(); d < 44*time.Second || d > 45*time.Second {
		t.Errorf("TimeUntilReset() = %v, want approximately 45s", d)
	}

	past := &RateLimitState{ResetAt: time.Now().Add(-time.Minute)}
	if d := past.TimeUntilReset(); d != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0 for past reset time", d)
	}
}

func TestRateLimitState_UpdateHealth(t *testing.T) {
	tests := []struct {
		name            string
		remaining       int
		expectedHealthy bool
	}{
		{name: "full window", remaining: 30, expectedHealthy: true},
		{name: "at healthy threshold", remaining: ThresholdHealthy, expectedHealthy: true},
		{name: "just below healthy threshold", remaining: ThresholdHealthy - 1, expectedHealthy: false},
		{name: "exhausted", remaining: 0, expectedHealthy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{Remaining: tt.remaining}
			state.UpdateHealth()

			if state.IsHealthy != tt.expectedHealthy {
				t.Errorf("UpdateHealth() set IsHealthy = %v, want %v (remaining=%d)",
					state.IsHealthy, tt.expectedHealthy, tt.remaining)
			}
		})
	}
}

func TestThresholdConstants(t *testing.T) {
	if ThresholdExhausted >= ThresholdWarning {
		t.Errorf("ThresholdExhausted (%d) must be less than ThresholdWarning (%d)",
			ThresholdExhausted, ThresholdWarning)
	}

	if ThresholdWarning >= ThresholdHealthy {
		t.Errorf("ThresholdWarning (%d) must be less than ThresholdHealthy (%d)",
			ThresholdWarning, ThresholdHealthy)
	}
}
