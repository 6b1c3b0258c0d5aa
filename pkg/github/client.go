// Package github implements the search capability against the GitHub
// repository search API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/star-sweep/pkg/pagination"
	"github.com/Sternrassler/star-sweep/pkg/plan"
	"github.com/Sternrassler/star-sweep/pkg/ratelimit"
	"github.com/Sternrassler/star-sweep/pkg/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for GitHub search requests.
var (
	githubRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stars_github_requests_total",
		Help: "Total GitHub search requests by kind and status",
	}, []string{"kind", "status"})

	githubRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stars_github_request_duration_seconds",
		Help:    "GitHub search request duration in seconds by kind",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})

	githubErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stars_github_errors_total",
		Help: "Total GitHub search errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the public GitHub API.
	DefaultBaseURL = "https://api.github.com"

	// MaxPerPage is the largest page size GitHub search accepts.
	MaxPerPage = 100

	searchPath = "/search/repositories"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, without trailing slash.
	BaseURL string

	// Token is sent as a bearer token when set. Anonymous search has a much
	// smaller quota.
	Token string

	// User-Agent header (REQUIRED by GitHub)
	UserAgent string

	// PerPage is the listing page size, 1..100.
	PerPage int

	// Cap is the number of results the API exposes per query.
	Cap int

	// Timeout bounds one HTTP request.
	Timeout time.Duration

	// RateLimit records quota headers. Optional.
	RateLimit *ratelimit.Tracker
}

// DefaultConfig returns a configuration for the public API.
func DefaultConfig(token, userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Token:     token,
		UserAgent: userAgent,
		PerPage:   MaxPerPage,
		Cap:       1000,
		Timeout:   30 * time.Second,
	}
}

// Client talks to the GitHub search API. It performs exactly one HTTP request
// per call and classifies failures; retrying is the caller's concern.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	logger     zerolog.Logger
}

var _ search.Client = (*Client)(nil)

// New creates a new GitHub search client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.PerPage < 1 || cfg.PerPage > MaxPerPage {
		return nil, fmt.Errorf("per_page must be within 1..%d (got %d)", MaxPerPage, cfg.PerPage)
	}
	if cfg.Cap < 1 {
		return nil, fmt.Errorf("cap must be positive (got %d)", cfg.Cap)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		config:     cfg,
		logger:     logger.With().Str("component", "github").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Count returns the number of repositories whose star count lies in iv.
func (c *Client) Count(ctx context.Context, iv plan.Interval) (int, error) {
	page, err := c.searchPage(ctx, "count", query(iv, "", 1, 1))
	if err != nil {
		return 0, err
	}
	return page.TotalCount, nil
}

// List returns up to Cap repositories in iv ordered by update time. The first
// page is fetched before returning; later pages are requested while the
// caller iterates.
func (c *Client) List(ctx context.Context, iv plan.Interval, order search.Order) (*search.Listing, error) {
	first, err := c.searchPage(ctx, "list", query(iv, order, c.config.PerPage, 1))
	if err != nil {
		return nil, err
	}

	items, err := decodeItems(first.Items)
	if err != nil {
		return nil, err
	}

	reachable := min(first.TotalCount, c.config.Cap)
	pager := &pagination.Pager[search.Item]{
		PerPage: c.config.PerPage,
		Limit:   reachable,
		Fetch: func(ctx context.Context, n int) ([]search.Item, error) {
			page, err := c.searchPage(ctx, "list", query(iv, order, c.config.PerPage, n))
			if err != nil {
				return nil, err
			}
			return decodeItems(page.Items)
		},
	}

	return &search.Listing{
		Total: first.TotalCount,
		Items: pager.All(ctx, items),
	}, nil
}

// query builds the search parameters for one page.
func query(iv plan.Interval, order search.Order, perPage, page int) url.Values {
	v := url.Values{}
	v.Set("q", "stars:"+iv.String())
	v.Set("per_page", strconv.Itoa(perPage))
	v.Set("page", strconv.Itoa(page))
	if order != "" {
		v.Set("sort", "updated")
		v.Set("order", string(order))
	}
	return v
}

type searchResponse struct {
	TotalCount        int               `json:"total_count"`
	IncompleteResults bool              `json:"incomplete_results"`
	Items             []json.RawMessage `json:"items"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// searchPage performs one search request.
func (c *Client) searchPage(ctx context.Context, kind string, params url.Values) (*searchResponse, error) {
	startTime := time.Now()
	defer func() {
		githubRequestDuration.WithLabelValues(kind).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+searchPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	c.logger.Debug().
		Str("kind", kind).
		Str("q", params.Get("q")).
		Str("page", params.Get("page")).
		Msg("Executing search request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		githubRequestsTotal.WithLabelValues(kind, "network_error").Inc()
		return nil, c.fail(kind, search.Transient(0, "request failed", err))
	}
	defer resp.Body.Close()

	githubRequestsTotal.WithLabelValues(kind, strconv.Itoa(resp.StatusCode)).Inc()

	if c.config.RateLimit != nil {
		if err := c.config.RateLimit.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.fail(kind, search.Transient(resp.StatusCode, "read body", err))
	}

	if resp.StatusCode != http.StatusOK {
		serr := classify(resp, body)
		if serr.Class == search.ErrorClassRateLimit && serr.ResetAt.IsZero() && c.config.RateLimit != nil {
			serr.ResetAt = c.config.RateLimit.ResetAt(ctx)
		}
		return nil, c.fail(kind, serr)
	}

	var page searchResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, c.fail(kind, search.Transient(resp.StatusCode, "decode response", err))
	}
	if page.IncompleteResults {
		c.logger.Debug().Str("q", params.Get("q")).Msg("GitHub reported incomplete results")
	}
	return &page, nil
}

func (c *Client) fail(kind string, err *search.Error) error {
	githubErrorsTotal.WithLabelValues(string(err.Class)).Inc()
	c.logger.Debug().
		Str("kind", kind).
		Int("status", err.StatusCode).
		Str("class", string(err.Class)).
		Msg("Error classified")
	return err
}

// classify maps a non-200 response onto a search error.
func classify(resp *http.Response, body []byte) *search.Error {
	var e errorResponse
	_ = json.Unmarshal(body, &e)
	msg := e.Message
	if msg == "" {
		msg = resp.Status
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		if resetAt, ok := rateLimitReset(resp.Header, msg); ok {
			return search.RateLimited(resp.StatusCode, msg, resetAt)
		}
	}
	return search.Transient(resp.StatusCode, msg, nil)
}

// rateLimitReset reports whether the response signals quota exhaustion and
// when the quota is expected back. The reset time is zero if unknown.
func rateLimitReset(h http.Header, msg string) (time.Time, bool) {
	if s := h.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil {
			return time.Now().Add(time.Duration(secs) * time.Second), true
		}
		return time.Time{}, true
	}
	if h.Get("X-RateLimit-Remaining") == "0" {
		if epoch, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			return time.Unix(epoch, 0), true
		}
		return time.Time{}, true
	}
	if strings.Contains(strings.ToLower(msg), "rate limit") {
		return time.Time{}, true
	}
	return time.Time{}, false
}

type repository struct {
	ID int64 `json:"id"`
}

func decodeItems(raw []json.RawMessage) ([]search.Item, error) {
	items := make([]search.Item, 0, len(raw))
	for _, r := range raw {
		var repo repository
		if err := json.Unmarshal(r, &repo); err != nil {
			return nil, search.Transient(http.StatusOK, "decode item", err)
		}
		items = append(items, search.Item{ID: strconv.FormatInt(repo.ID, 10), Data: r})
	}
	return items, nil
}
