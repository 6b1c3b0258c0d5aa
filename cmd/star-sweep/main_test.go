package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/star-sweep/internal/testutil"
	"github.com/Sternrassler/star-sweep/pkg/config"
	"github.com/Sternrassler/star-sweep/pkg/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sweepEnv points the command at mock and isolates it from the host
// environment.
func sweepEnv(t *testing.T, mock *testutil.MockGitHub) {
	t.Helper()
	t.Setenv("GITHUB_API_URL", mock.URL())
	t.Setenv("GITHUB_TOKEN", "test-token")
	t.Setenv("STARS_START", "1")
	t.Setenv("STARS_CEILING", "64")
	t.Setenv("LOG_FORMAT", "plain")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_PRETTY", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("METRICS_ADDR", "")
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var v map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &v), "line %d is not JSON", n+1)
		n++
	}
	require.NoError(t, scanner.Err())
	return n
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	stdout, _, err := execute(t, "--help")

	require.NoError(t, err)
	assert.Contains(t, stdout, "star-sweep")
	assert.Contains(t, stdout, "--token")
	assert.Contains(t, stdout, "--start")
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	for _, want := range []string{"plan", "fetch", "run", "cache"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.Uniform(10, 1, 5))
	defer mock.Close()
	sweepEnv(t, mock)

	_, _, err := execute(t, "plan", "--start", "0")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "STARS_START")
	assert.Zero(t, mock.GetRequestCount())
}

func TestPlanCmd_PrintsPlan(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.Uniform(300, 1, 30))
	defer mock.Close()
	sweepEnv(t, mock)

	stdout, _, err := execute(t, "plan")
	require.NoError(t, err)

	p, err := plan.Parse(strings.NewReader(stdout))
	require.NoError(t, err)
	require.NotEmpty(t, p)
	assert.Equal(t, 1, p[0].Low)
	assert.NoError(t, p.Validate())
	assert.Equal(t, "test-token", strings.TrimPrefix(mock.LastHeader().Get("Authorization"), "Bearer "))
}

func TestPlanCmd_SaveAndResume(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.Uniform(300, 1, 30))
	defer mock.Close()
	sweepEnv(t, mock)

	dir := t.TempDir()
	first := filepath.Join(dir, "first.plan")
	stdout, _, err := execute(t, "plan", "--save-plan", first)
	require.NoError(t, err)
	assert.Empty(t, stdout, "saved plans are not printed")

	saved, err := plan.ReadFile(first)
	require.NoError(t, err)
	require.NotEmpty(t, saved)

	second := filepath.Join(dir, "second.plan")
	_, _, err = execute(t, "plan", "--plan", first, "--save-plan", second)
	require.NoError(t, err)

	resumed, err := plan.ReadFile(second)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(resumed), len(saved))
	assert.Equal(t, saved, resumed[:len(saved)], "resuming keeps the prior intervals")
	assert.Equal(t, len(saved), len(resumed), "nothing is left above the prior plan")
}

func TestRunCmd_WritesEveryRepository(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.Uniform(300, 1, 30))
	defer mock.Close()
	sweepEnv(t, mock)

	dir := t.TempDir()
	out := filepath.Join(dir, "repos.jsonl")
	planFile := filepath.Join(dir, "repos.plan")

	stdout, _, err := execute(t, "run", "--save-plan", planFile, "-o", out)
	require.NoError(t, err)

	assert.Contains(t, stdout, "The result was written to "+out)
	assert.Equal(t, 300, countLines(t, out))

	p, err := plan.ReadFile(planFile)
	require.NoError(t, err)
	assert.NotEmpty(t, p)
}

func TestFetchCmd_StitchesCappedInterval(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.Uniform(150, 7, 7))
	defer mock.Close()
	sweepEnv(t, mock)
	t.Setenv("STARS_CAP", "100")

	dir := t.TempDir()
	planFile := filepath.Join(dir, "single.plan")
	require.NoError(t, plan.WriteFile(planFile, plan.Plan{{Low: 7, High: 7}}))
	out := filepath.Join(dir, "repos.jsonl")

	_, _, err := execute(t, "fetch", "--plan", planFile, "-o", out, "--dedup")
	require.NoError(t, err)

	assert.Equal(t, 150, countLines(t, out), "ascending and descending windows cover the interval")
}

func TestFetchCmd_Strict(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.Uniform(250, 7, 7))
	defer mock.Close()
	sweepEnv(t, mock)
	t.Setenv("STARS_CAP", "100")

	dir := t.TempDir()
	planFile := filepath.Join(dir, "single.plan")
	require.NoError(t, plan.WriteFile(planFile, plan.Plan{{Low: 7, High: 7}}))
	out := filepath.Join(dir, "repos.jsonl")

	_, _, err := execute(t, "fetch", "--plan", planFile, "-o", out)
	require.NoError(t, err, "gaps are only reported by default")

	_, _, err = execute(t, "fetch", "--plan", planFile, "-o", out, "--strict")
	require.Error(t, err)
	assert.Equal(t, 200, countLines(t, out), "collected items are written despite the gap")
}

func TestFetchCmd_RequiresPlan(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.Uniform(10, 1, 5))
	defer mock.Close()
	sweepEnv(t, mock)

	_, _, err := execute(t, "fetch", "-o", filepath.Join(t.TempDir(), "x.jsonl"))
	require.Error(t, err)
}

func TestFetchCmd_RequiresOutput(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.Uniform(10, 1, 5))
	defer mock.Close()
	sweepEnv(t, mock)

	planFile := filepath.Join(t.TempDir(), "p.plan")
	require.NoError(t, plan.WriteFile(planFile, plan.Plan{{Low: 1, High: 5}}))

	_, _, err := execute(t, "fetch", "--plan", planFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no output")
}

func TestCachePurge_RequiresRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_FORMAT", "plain")

	_, _, err := execute(t, "cache", "purge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestApp_WithoutRedis(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.Uniform(10, 1, 5))
	defer mock.Close()
	sweepEnv(t, mock)

	a, err := newApp(context.Background(), loadTestConfig(t))
	require.NoError(t, err)
	defer a.close()

	assert.Nil(t, a.redis)
	assert.NoError(t, a.health())
	assert.Equal(t, 20, a.estimatedRequests(1), "two windows of ten pages")
	assert.Zero(t, mock.GetRequestCount(), "nothing is requested before a command runs")
}

func TestApp_BadRedisURL(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.Uniform(10, 1, 5))
	defer mock.Close()
	sweepEnv(t, mock)
	t.Setenv("REDIS_URL", "not-a-url")

	_, err := newApp(context.Background(), loadTestConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestPlanCmd_PrintsPartialPlanOnCancel(t *testing.T) {
	mock := testutil.NewMockGitHub(testutil.Uniform(300, 1, 30))
	defer mock.Close()
	sweepEnv(t, mock)
	t.Setenv("RATE_LIMIT_WAIT", "1h")
	mock.Enqueue(testutil.NewRateLimitResponse())

	prior := filepath.Join(t.TempDir(), "prior.plan")
	require.NoError(t, plan.WriteFile(prior, plan.Plan{{Low: 1, High: 10}, {Low: 11, High: 20}}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	cmd := newRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs([]string{"--env-file", "", "plan", "--plan", prior})
	err := cmd.ExecuteContext(ctx)

	require.Error(t, err, "planning waits on the rate limit until the context ends")
	p, perr := plan.Parse(strings.NewReader(stdout.String()))
	require.NoError(t, perr)
	assert.Equal(t, plan.Plan{{Low: 1, High: 10}, {Low: 11, High: 20}}, p, "committed intervals are printed")
}
