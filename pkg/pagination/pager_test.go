package pagination

import (
	"context"
	"errors"
	"testing"
)

// pages returns a PageFunc serving n items in pages of size per, recording
// every page requested.
func pages(n, per int, requested *[]int) PageFunc[int] {
	return func(_ context.Context, page int) ([]int, error) {
		*requested = append(*requested, page)
		var out []int
		for i := (page - 1) * per; i < n && i < page*per; i++ {
			out = append(out, i)
		}
		return out, nil
	}
}

func TestPager_All(t *testing.T) {
	tests := []struct {
		name          string
		total         int
		perPage       int
		limit         int
		wantItems     int
		wantRequested int
	}{
		{name: "single short page", total: 40, perPage: 100, limit: 1000, wantItems: 40, wantRequested: 0},
		{name: "several pages", total: 250, perPage: 100, limit: 1000, wantItems: 250, wantRequested: 2},
		{name: "exact multiple probes one empty page", total: 200, perPage: 100, limit: 1000, wantItems: 200, wantRequested: 2},
		{name: "capped at limit", total: 1500, perPage: 100, limit: 1000, wantItems: 1000, wantRequested: 9},
		{name: "no limit", total: 320, perPage: 100, limit: 0, wantItems: 320, wantRequested: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requested []int
			fetch := pages(tt.total, tt.perPage, &requested)
			first, _ := fetch(context.Background(), 1)
			requested = nil

			p := &Pager[int]{Fetch: fetch, PerPage: tt.perPage, Limit: tt.limit}

			count := 0
			for item, err := range p.All(context.Background(), first) {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if item != count {
					t.Fatalf("Item %d out of order: got %d", count, item)
				}
				count++
			}

			if count != tt.wantItems {
				t.Errorf("Yielded %d items, want %d", count, tt.wantItems)
			}
			if len(requested) != tt.wantRequested {
				t.Errorf("Requested %d pages (%v), want %d", len(requested), requested, tt.wantRequested)
			}
		})
	}
}

func TestPager_EarlyBreakStopsFetching(t *testing.T) {
	var requested []int
	fetch := pages(1000, 100, &requested)
	first, _ := fetch(context.Background(), 1)
	requested = nil

	p := &Pager[int]{Fetch: fetch, PerPage: 100, Limit: 1000}

	count := 0
	for range p.All(context.Background(), first) {
		count++
		if count == 150 {
			break
		}
	}

	if len(requested) != 1 || requested[0] != 2 {
		t.Errorf("Expected only page 2 to be requested, got %v", requested)
	}
}

func TestPager_PageError(t *testing.T) {
	failure := errors.New("page 3 failed")
	fetch := func(_ context.Context, page int) ([]int, error) {
		if page == 3 {
			return nil, failure
		}
		return make([]int, 100), nil
	}

	p := &Pager[int]{Fetch: fetch, PerPage: 100, Limit: 1000}

	count := 0
	var gotErr error
	for _, err := range p.All(context.Background(), make([]int, 100)) {
		if err != nil {
			gotErr = err
			break
		}
		count++
	}

	if !errors.Is(gotErr, failure) {
		t.Errorf("Expected page failure, got %v", gotErr)
	}
	if count != 200 {
		t.Errorf("Expected 200 items before failure, got %d", count)
	}
}

func TestPager_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetch := func(context.Context, int) ([]int, error) {
		t.Fatal("Fetch should not be called with a cancelled context")
		return nil, nil
	}
	p := &Pager[int]{Fetch: fetch, PerPage: 10}

	var gotErr error
	for _, err := range p.All(ctx, make([]int, 10)) {
		gotErr = err
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", gotErr)
	}
}
