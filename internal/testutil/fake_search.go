// Package testutil provides testing utilities for the star sweep: an in-memory
// search capability, a recording clock, and a mock GitHub search server.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/star-sweep/pkg/plan"
	"github.com/Sternrassler/star-sweep/pkg/search"
)

// DefaultCap mirrors the GitHub search result cap.
const DefaultCap = 1000

// Distribution is a population of items identified by their position, each with
// a star score. Position doubles as the secondary "updated" ranking.
type Distribution struct {
	scores []int // item index -> score
	sorted []int // scores in ascending order
}

// NewDistribution builds a distribution from per-item scores.
func NewDistribution(scores []int) *Distribution {
	sorted := append([]int(nil), scores...)
	sort.Ints(sorted)
	return &Distribution{scores: append([]int(nil), scores...), sorted: sorted}
}

// Uniform spreads n items evenly across [low, high].
func Uniform(n, low, high int) *Distribution {
	scores := make([]int, n)
	width := high - low + 1
	for i := range scores {
		scores[i] = low + i%width
	}
	return NewDistribution(scores)
}

// FromHistogram builds a distribution from score -> count.
func FromHistogram(hist map[int]int) *Distribution {
	var scores []int
	keys := make([]int, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		for i := 0; i < hist[k]; i++ {
			scores = append(scores, k)
		}
	}
	return NewDistribution(scores)
}

// RandomPowerLaw draws n scores in [floor, floor+span] with a heavy tail,
// roughly like stars.
func RandomPowerLaw(rng *rand.Rand, n, floor, span int) *Distribution {
	scores := make([]int, n)
	for i := range scores {
		u := rng.Float64()
		if u < 1e-9 {
			u = 1e-9
		}
		// Pareto with alpha ~1.2
		tail := float64(floor) * (1/math.Pow(u, 1/1.2) - 1)
		scores[i] = floor + int(math.Min(tail, float64(span)))
	}
	return NewDistribution(scores)
}

// Count returns the number of items with score in r.
func (d *Distribution) Count(r plan.Interval) int {
	lo := sort.SearchInts(d.sorted, r.Low)
	hi := sort.SearchInts(d.sorted, r.High+1)
	return hi - lo
}

// Len returns the population size.
func (d *Distribution) Len() int {
	return len(d.scores)
}

// Matching returns the indexes of items in r ordered by the secondary ranking.
func (d *Distribution) Matching(r plan.Interval, order search.Order) []int {
	var idx []int
	for i, s := range d.scores {
		if r.Contains(s) {
			idx = append(idx, i)
		}
	}
	if order == search.Descending {
		for i, j := 0, len(idx)-1; i < j; i, j = i+1, j-1 {
			idx[i], idx[j] = idx[j], idx[i]
		}
	}
	return idx
}

// Score returns the score of item i.
func (d *Distribution) Score(i int) int {
	return d.scores[i]
}

// ItemAt renders item i as a search result.
func (d *Distribution) ItemAt(i int) search.Item {
	data, _ := json.Marshal(map[string]int{"id": i, "stargazers_count": d.scores[i]})
	return search.Item{ID: fmt.Sprintf("%d", i), Data: data}
}

// FakeSearch is an in-memory search.Client over a Distribution.
type FakeSearch struct {
	Dist *Distribution
	Cap  int

	mu         sync.Mutex
	failures   []error
	listFault  error
	listFaultN int
	Counts     []plan.Interval
	Lists      []ListCall
}

// ListCall records one List invocation.
type ListCall struct {
	Interval plan.Interval
	Order    search.Order
}

// NewFakeSearch creates a fake with the default cap.
func NewFakeSearch(dist *Distribution) *FakeSearch {
	return &FakeSearch{Dist: dist, Cap: DefaultCap}
}

// FailNext queues errors returned by the next calls to Count or List, in order.
func (f *FakeSearch) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, errs...)
}

// FailListAfter makes the next List iteration fail with err after n items.
func (f *FakeSearch) FailListAfter(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFault = err
	f.listFaultN = n
}

func (f *FakeSearch) popFailure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failures) == 0 {
		return nil
	}
	err := f.failures[0]
	f.failures = f.failures[1:]
	return err
}

// Count implements search.Counter.
func (f *FakeSearch) Count(ctx context.Context, r plan.Interval) (int, error) {
	f.mu.Lock()
	f.Counts = append(f.Counts, r)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := f.popFailure(); err != nil {
		return 0, err
	}
	return f.Dist.Count(r), nil
}

// List implements search.Lister.
func (f *FakeSearch) List(ctx context.Context, r plan.Interval, order search.Order) (*search.Listing, error) {
	f.mu.Lock()
	f.Lists = append(f.Lists, ListCall{Interval: r, Order: order})
	fault, faultN := f.listFault, f.listFaultN
	f.listFault = nil
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.popFailure(); err != nil {
		return nil, err
	}

	idx := f.Dist.Matching(r, order)
	total := len(idx)
	if len(idx) > f.Cap {
		idx = idx[:f.Cap]
	}

	items := func(yield func(search.Item, error) bool) {
		for n, i := range idx {
			if fault != nil && n == faultN {
				yield(search.Item{}, fault)
				return
			}
			if !yield(f.Dist.ItemAt(i), nil) {
				return
			}
		}
	}
	return &search.Listing{Total: total, Items: items}, nil
}

// CountCalls returns the number of Count invocations.
func (f *FakeSearch) CountCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Counts)
}

// FakeClock records requested waits and fires immediately.
type FakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

// After implements retry.Clock.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

// Waits returns every wait requested so far.
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}
