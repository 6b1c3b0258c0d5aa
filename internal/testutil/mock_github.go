package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/star-sweep/pkg/plan"
	"github.com/Sternrassler/star-sweep/pkg/search"
)

// SearchPath is the repository search endpoint served by MockGitHub.
const SearchPath = "/search/repositories"

// MockGitHubResponse defines a canned response returned instead of search results.
type MockGitHubResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockGitHub is an httptest server answering repository searches over a
// Distribution the way the GitHub search API does: star qualifiers, sort by
// updated (item position), pages of per_page, and results past Cap refused.
type MockGitHub struct {
	server *httptest.Server
	dist   *Distribution
	cap    int

	mu     sync.RWMutex
	queued []MockGitHubResponse

	// Tracking
	RequestCount      int
	Queries           []url.Values
	LastRequestHeader http.Header
}

// NewMockGitHub starts a mock search server over dist.
func NewMockGitHub(dist *Distribution) *MockGitHub {
	mock := &MockGitHub{dist: dist, cap: DefaultCap}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.Queries = append(mock.Queries, r.URL.Query())
		mock.LastRequestHeader = r.Header.Clone()

		var canned *MockGitHubResponse
		if len(mock.queued) > 0 {
			canned = &mock.queued[0]
			mock.queued = mock.queued[1:]
		}
		mock.mu.Unlock()

		if canned != nil {
			writeCanned(w, *canned)
			return
		}

		if r.URL.Path != SearchPath {
			http.NotFound(w, r)
			return
		}
		mock.searchHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockGitHub) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGitHub) Close() {
	m.server.Close()
}

// Client returns an HTTP client for the mock server.
func (m *MockGitHub) Client() *http.Client {
	return m.server.Client()
}

// Enqueue makes the next requests return the given responses, in order.
func (m *MockGitHub) Enqueue(responses ...MockGitHubResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, responses...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGitHub) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// LastHeader returns the headers of the latest request.
func (m *MockGitHub) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// LastQuery returns the query string of the latest request.
func (m *MockGitHub) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.Queries) == 0 {
		return nil
	}
	return m.Queries[len(m.Queries)-1]
}

// CountRequests returns the number of requests made without a sort order,
// which is how counts are probed.
func (m *MockGitHub) CountRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, q := range m.Queries {
		if q.Get("sort") == "" {
			n++
		}
	}
	return n
}

type searchResponse struct {
	TotalCount        int               `json:"total_count"`
	IncompleteResults bool              `json:"incomplete_results"`
	Items             []json.RawMessage `json:"items"`
}

func (m *MockGitHub) searchHandler(w http.ResponseWriter, r *http.Request) {
	setQuotaHeaders(w.Header(), 29)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	q := r.URL.Query()
	iv, err := parseStars(q.Get("q"))
	if err != nil {
		writeMessage(w, http.StatusUnprocessableEntity, "Validation Failed")
		return
	}

	perPage := intParam(q, "per_page", 30)
	if perPage > 100 {
		perPage = 100
	}
	page := intParam(q, "page", 1)
	if page*perPage > m.cap {
		writeMessage(w, http.StatusUnprocessableEntity, "Only the first 1000 search results are available")
		return
	}

	order := search.Descending
	if q.Get("order") == string(search.Ascending) {
		order = search.Ascending
	}

	matching := m.dist.Matching(iv, order)
	resp := searchResponse{TotalCount: len(matching), Items: []json.RawMessage{}}
	for i := (page - 1) * perPage; i < len(matching) && i < page*perPage; i++ {
		resp.Items = append(resp.Items, m.dist.ItemAt(matching[i]).Data)
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// parseStars extracts the stars:L..H qualifier from a search query.
func parseStars(query string) (plan.Interval, error) {
	for _, term := range strings.Fields(query) {
		rest, ok := strings.CutPrefix(term, "stars:")
		if !ok {
			continue
		}
		lo, hi, ok := strings.Cut(rest, "..")
		if !ok {
			return plan.Interval{}, fmt.Errorf("bad stars qualifier %q", term)
		}
		low, err := strconv.Atoi(lo)
		if err != nil {
			return plan.Interval{}, err
		}
		high, err := strconv.Atoi(hi)
		if err != nil {
			return plan.Interval{}, err
		}
		return plan.NewInterval(low, high)
	}
	return plan.Interval{}, fmt.Errorf("no stars qualifier in %q", query)
}

func intParam(q url.Values, name string, def int) int {
	v, err := strconv.Atoi(q.Get(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}

func setQuotaHeaders(h http.Header, remaining int) {
	h.Set("X-RateLimit-Limit", "30")
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}

func writeCanned(w http.ResponseWriter, resp MockGitHubResponse) {
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewRateLimitResponse creates a 403 secondary-quota response with an exhausted window.
func NewRateLimitResponse() MockGitHubResponse {
	return MockGitHubResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"message": "API rate limit exceeded for user ID 1."}`,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "30",
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10),
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRetryAfterResponse creates a 429 response carrying Retry-After.
func NewRetryAfterResponse(seconds int) MockGitHubResponse {
	return MockGitHubResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "You have exceeded a secondary rate limit."}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(seconds),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockGitHubResponse {
	return MockGitHubResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Server Error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 response whose body is not valid JSON.
func NewMalformedResponse() MockGitHubResponse {
	return MockGitHubResponse{
		StatusCode: http.StatusOK,
		Body:       `{"total_count": `,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
