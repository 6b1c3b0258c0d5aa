package cache

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/star-sweep/pkg/plan"
)

// KeyPrefix namespaces every count entry.
const KeyPrefix = "stars:count"

// CountKey identifies the cached result count of one star interval.
type CountKey struct {
	Interval plan.Interval

	// Query holds extra search qualifiers, if any. Empty for a bare star search.
	Query string
}

// String generates a deterministic cache key string.
// Format: stars:count:low..high[:query]
//
// Example:
//
//	stars:count:50..100
func (k CountKey) String() string {
	parts := []string{KeyPrefix, k.Interval.String()}
	if q := strings.Join(strings.Fields(k.Query), "+"); q != "" {
		parts = append(parts, q)
	}
	return strings.Join(parts, ":")
}

// ParseCountKey is the inverse of CountKey.String.
func ParseCountKey(s string) (CountKey, error) {
	rest, ok := strings.CutPrefix(s, KeyPrefix+":")
	if !ok {
		return CountKey{}, fmt.Errorf("%w: missing prefix in %q", ErrInvalidEntry, s)
	}
	ivPart, query, _ := strings.Cut(rest, ":")
	p, err := plan.Parse(strings.NewReader(ivPart))
	if err != nil || len(p) != 1 {
		return CountKey{}, fmt.Errorf("%w: bad interval in %q", ErrInvalidEntry, s)
	}
	return CountKey{Interval: p[0], Query: strings.ReplaceAll(query, "+", " ")}, nil
}
