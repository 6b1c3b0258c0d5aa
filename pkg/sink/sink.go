// Package sink persists fetched search items.
package sink

import (
	"context"
	"errors"

	"github.com/Sternrassler/star-sweep/pkg/search"
)

// Sink receives fetched items.
type Sink interface {
	// Write stores items. Items already stored may be written again.
	Write(ctx context.Context, items []search.Item) error

	// Close flushes and releases the sink.
	Close() error
}

// Multi writes every batch to all sinks in order.
type Multi []Sink

// Write implements Sink. It stops at the first failing sink.
func (m Multi) Write(ctx context.Context, items []search.Item) error {
	for _, s := range m {
		if err := s.Write(ctx, items); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Sink. Every sink is closed.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
