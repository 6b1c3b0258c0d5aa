package pagination

import (
	"context"
	"iter"

	"github.com/rs/zerolog/log"
)

// PageFunc fetches page number page (1-based).
type PageFunc[T any] func(ctx context.Context, page int) ([]T, error)

// Pager yields the items of a paginated result sequentially.
type Pager[T any] struct {
	// Fetch retrieves one page.
	Fetch PageFunc[T]

	// PerPage is the requested page size; a shorter page ends the walk.
	PerPage int

	// Limit caps the number of items yielded. Zero means no cap.
	Limit int
}

// All yields the items of first (page 1) followed by later pages on demand.
func (p *Pager[T]) All(ctx context.Context, first []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yielded := 0
		items := first

		for page := 1; ; page++ {
			for _, item := range items {
				if p.Limit > 0 && yielded >= p.Limit {
					return
				}
				if !yield(item, nil) {
					return
				}
				yielded++
			}

			if len(items) < p.PerPage || (p.Limit > 0 && yielded >= p.Limit) {
				log.Debug().
					Int("pages", page).
					Int("items", yielded).
					Msg("Pagination complete")
				return
			}

			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}

			next, err := p.Fetch(ctx, page+1)
			if err != nil {
				log.Debug().
					Err(err).
					Int("page", page+1).
					Msg("Page fetch failed")
				yield(zero, err)
				return
			}
			items = next
		}
	}
}
