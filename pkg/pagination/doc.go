// Package pagination walks paginated search results lazily.
//
// GitHub search returns at most 1000 results per query, spread over pages of up
// to 100 items. A Pager yields items page by page and only requests the next
// page once the consumer has drained the current one, so a consumer that stops
// early (the descending window of a stitched interval) never pays for pages it
// does not read.
//
// Example usage:
//
//	pager := pagination.Pager[search.Item]{
//		Fetch:   fetchPage,
//		PerPage: 100,
//		Limit:   1000,
//	}
//	for item, err := range pager.All(ctx, firstPage) {
//		...
//	}
//
// The pager stops when:
//   - Limit items have been yielded
//   - a page is shorter than PerPage
//   - the consumer breaks out of the loop
//   - a page fetch fails (the error is yielded once)
package pagination
