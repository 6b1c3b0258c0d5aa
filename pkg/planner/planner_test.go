package planner

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/Sternrassler/star-sweep/internal/testutil"
	"github.com/Sternrassler/star-sweep/pkg/plan"
	"github.com/Sternrassler/star-sweep/pkg/retry"
	"github.com/Sternrassler/star-sweep/pkg/search"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlanner(fake *testutil.FakeSearch, clock *testutil.FakeClock) *Planner {
	r := retry.New(retry.DefaultPolicy(), clock, zerolog.Nop())
	return New(fake, r, DefaultConfig(), zerolog.Nop())
}

func TestBuild_EmptySpace(t *testing.T) {
	fake := testutil.NewFakeSearch(testutil.NewDistribution(nil))
	p := newTestPlanner(fake, &testutil.FakeClock{})

	got, report, err := p.Build(context.Background(), 50)
	require.NoError(t, err)

	assert.Empty(t, got)
	assert.Empty(t, report.Skipped)
	// multiplier 1, 2, ..., 2^19 grow; the probe at 2^20 ends planning
	assert.Equal(t, 21, report.Probes)
	assert.Equal(t, plan.Interval{Low: 50, High: 50}, fake.Counts[0])
}

func TestBuild_SkipsUnsplittableSingleton(t *testing.T) {
	dist := testutil.FromHistogram(map[int]int{50: 2500, 51: 10, 60: 5})
	fake := testutil.NewFakeSearch(dist)
	p := newTestPlanner(fake, &testutil.FakeClock{})

	got, report, err := p.Build(context.Background(), 50)
	require.NoError(t, err)

	require.Len(t, report.Skipped, 1)
	assert.Equal(t, Skip{Score: 50, Count: 2500}, report.Skipped[0])
	assert.Equal(t, plan.Interval{Low: 51, High: 51}, fake.Counts[1], "probing resumes at 51")

	require.NotEmpty(t, got)
	assert.Equal(t, 51, got[0].Low)
	assert.True(t, got[0].Contains(60))
	require.NoError(t, got.Validate())
}

func TestBuild_UniformUnderCap(t *testing.T) {
	dist := testutil.Uniform(1500, 50, 100)
	fake := testutil.NewFakeSearch(dist)
	p := newTestPlanner(fake, &testutil.FakeClock{})

	got, _, err := p.Build(context.Background(), 50)
	require.NoError(t, err)
	require.NoError(t, got.Validate())

	covered := 0
	for _, iv := range got {
		n := dist.Count(iv)
		assert.LessOrEqual(t, n, 2*DefaultConfig().Cap, "interval %s", iv)
		covered += n
	}
	assert.Equal(t, 1500, covered)
	assert.Equal(t, 50, got[0].Low)
}

func TestBuild_RandomDistributions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	limit := DefaultConfig().Cap

	for run := 0; run < 25; run++ {
		start := 10 + rng.Intn(90)
		dist := testutil.RandomPowerLaw(rng, 5000+rng.Intn(40000), start, 400000)
		fake := testutil.NewFakeSearch(dist)
		p := newTestPlanner(fake, &testutil.FakeClock{})

		got, report, err := p.Build(context.Background(), start)
		require.NoError(t, err)
		require.NoError(t, got.Validate(), "run %d", run)

		covered := 0
		for _, iv := range got {
			require.LessOrEqual(t, iv.Low, iv.High)
			n := dist.Count(iv)
			require.LessOrEqual(t, n, 2*limit, "run %d interval %s", run, iv)
			covered += n
		}
		for _, s := range report.Skipped {
			covered += s.Count
		}
		assert.Equal(t, dist.Len(), covered, "run %d: plan and skips cover every item", run)
	}
}

func TestBuild_Idempotent(t *testing.T) {
	dist := testutil.RandomPowerLaw(rand.New(rand.NewSource(3)), 30000, 50, 200000)

	first, _, err := newTestPlanner(testutil.NewFakeSearch(dist), &testutil.FakeClock{}).Build(context.Background(), 50)
	require.NoError(t, err)
	second, _, err := newTestPlanner(testutil.NewFakeSearch(dist), &testutil.FakeClock{}).Build(context.Background(), 50)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResume_ExtendsPriorPlan(t *testing.T) {
	dist := testutil.RandomPowerLaw(rand.New(rand.NewSource(11)), 30000, 50, 200000)

	full, _, err := newTestPlanner(testutil.NewFakeSearch(dist), &testutil.FakeClock{}).Build(context.Background(), 50)
	require.NoError(t, err)
	require.Greater(t, len(full), 3)

	prior := full[:3]
	fake := testutil.NewFakeSearch(dist)
	resumed, _, err := newTestPlanner(fake, &testutil.FakeClock{}).Resume(context.Background(), prior, 50)
	require.NoError(t, err)
	require.NoError(t, resumed.Validate())

	assert.Equal(t, prior, resumed[:3], "prior intervals are kept verbatim")
	for _, iv := range resumed[3:] {
		assert.Greater(t, iv.Low, prior[2].High)
	}
	for _, probe := range fake.Counts {
		assert.Greater(t, probe.Low, prior[2].High, "committed ranges are not re-probed")
	}
}

func TestResume_InvalidPrior(t *testing.T) {
	p := newTestPlanner(testutil.NewFakeSearch(testutil.NewDistribution(nil)), &testutil.FakeClock{})

	_, _, err := p.Resume(context.Background(), plan.Plan{{Low: 60, High: 70}, {Low: 65, High: 80}}, 50)
	assert.ErrorIs(t, err, plan.ErrOutOfOrder)
}

func TestBuild_InvalidStart(t *testing.T) {
	p := newTestPlanner(testutil.NewFakeSearch(testutil.NewDistribution(nil)), &testutil.FakeClock{})

	_, _, err := p.Build(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidStart)
}

func TestBuild_RateLimitedOnce(t *testing.T) {
	dist := testutil.Uniform(1500, 50, 100)

	baseline, _, err := newTestPlanner(testutil.NewFakeSearch(dist), &testutil.FakeClock{}).Build(context.Background(), 50)
	require.NoError(t, err)

	fake := testutil.NewFakeSearch(dist)
	fake.FailNext(search.RateLimited(403, "API rate limit exceeded", time.Time{}))
	clock := &testutil.FakeClock{}

	got, report, err := newTestPlanner(fake, clock).Build(context.Background(), 50)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{60 * time.Second}, clock.Waits())
	assert.Equal(t, baseline, got, "a retried probe does not alter planner state")
	assert.Equal(t, fake.CountCalls()-1, report.Probes)
	assert.Equal(t, fake.Counts[0], fake.Counts[1], "the failed probe is repeated as-is")
}

func TestBuild_TransientErrorsUseShortWait(t *testing.T) {
	fake := testutil.NewFakeSearch(testutil.Uniform(100, 50, 60))
	fake.FailNext(errors.New("unexpected EOF"), search.Transient(502, "bad gateway", nil))
	clock := &testutil.FakeClock{}

	_, _, err := newTestPlanner(fake, clock).Build(context.Background(), 50)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, clock.Waits())
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPlanner(testutil.NewFakeSearch(testutil.Uniform(100, 50, 60)), &testutil.FakeClock{})

	_, _, err := p.Build(ctx, 50)
	assert.ErrorIs(t, err, retry.ErrCancelled)
}
