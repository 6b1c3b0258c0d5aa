// Package search defines the capability the planner and fetcher consume: a
// scored-range query that either counts matches or lists them lazily.
package search

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/Sternrassler/star-sweep/pkg/plan"
)

// Order selects the secondary ranking used when listing an interval.
type Order string

const (
	// Ascending lists least recently updated items first.
	Ascending Order = "asc"

	// Descending lists most recently updated items first.
	Descending Order = "desc"
)

// Item is a single search result. The core never looks inside Data.
type Item struct {
	// ID is a stable identity for the record, used only for optional deduplication.
	ID string `json:"id"`

	// Data is the raw record as returned by the search service.
	Data json.RawMessage `json:"data"`
}

// Listing is the result of a List call.
type Listing struct {
	// Total is the true number of matches reported by the service.
	Total int

	// Items yields at most the service cap regardless of Total. Paging is lazy and
	// may fail part way through.
	Items iter.Seq2[Item, error]
}

// Counter returns the number of items whose score lies in an interval.
type Counter interface {
	Count(ctx context.Context, r plan.Interval) (int, error)
}

// Lister lists the items whose score lies in an interval in the given order.
type Lister interface {
	List(ctx context.Context, r plan.Interval, order Order) (*Listing, error)
}

// Client is the full search capability.
type Client interface {
	Counter
	Lister
}

// Collect drains a listing, stopping at the first error.
func Collect(items iter.Seq2[Item, error]) ([]Item, error) {
	var out []Item
	for item, err := range items {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}
