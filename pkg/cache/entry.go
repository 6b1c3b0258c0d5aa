package cache

import "time"

// Entry is a cached count.
type Entry struct {
	// Count is the total_count the search service reported.
	Count int `json:"count"`

	// CachedAt is when we cached this count
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the count is considered stale
	Expires time.Time `json:"expires"`
}

// NewEntry creates an entry valid for ttl from now.
func NewEntry(count int, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{Count: count, CachedAt: now, Expires: now.Add(ttl)}
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
