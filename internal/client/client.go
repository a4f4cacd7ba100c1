// Package client provides a REST client for the starmirror server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/lukaswerner/starmirror/internal/metrics"
	"github.com/lukaswerner/starmirror/internal/models"
)

// Client talks to a running starmirror server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. If baseURL is empty, uses the STARMIRROR_SERVER_URL
// env var or defaults to localhost:8184. Timeout can be configured via
// STARMIRROR_CLIENT_TIMEOUT (default 10m, sync runs can take a while).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("STARMIRROR_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8184"
	}

	timeout := 10 * time.Minute
	if t := os.Getenv("STARMIRROR_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the configured server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409 response, meaning a job of the
// same kind is already running.
func IsConflict(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusConflict
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, result any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		message := string(body)
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			message = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	return c.do(ctx, http.MethodGet, path, query, result)
}

func (c *Client) post(ctx context.Context, path string, query url.Values, result any) error {
	return c.do(ctx, http.MethodPost, path, query, result)
}

// TriggerSync starts a mirror run on the server.
func (c *Client) TriggerSync(ctx context.Context) error {
	return c.post(ctx, "/sync", nil, nil)
}

// SyncStatus returns the state of the sync job.
func (c *Client) SyncStatus(ctx context.Context) (*models.RunStatus, error) {
	var status models.RunStatus
	if err := c.get(ctx, "/sync/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TriggerReadmes starts an enrichment run. maxRepos 0 means all.
func (c *Client) TriggerReadmes(ctx context.Context, maxRepos int) error {
	var query url.Values
	if maxRepos > 0 {
		query = url.Values{"max_repos": {strconv.Itoa(maxRepos)}}
	}
	return c.post(ctx, "/readmes/process", query, nil)
}

// ReadmeStatus returns the state of the enrichment job.
func (c *Client) ReadmeStatus(ctx context.Context) (*models.RunStatus, error) {
	var status models.RunStatus
	if err := c.get(ctx, "/readmes/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ReadmeStats returns enrichment coverage.
func (c *Client) ReadmeStats(ctx context.Context) (*models.ReadmeStats, error) {
	var stats models.ReadmeStats
	if err := c.get(ctx, "/readmes/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SearchOptions configures a filtered search.
type SearchOptions struct {
	Query     string
	Language  string
	Owner     string
	MinStars  *int
	MaxStars  *int
	HasTopics bool
	IsFork    *bool
	Page      int
	PerPage   int
}

// SearchPage is one page of filtered search results.
type SearchPage struct {
	Items   []models.Repo `json:"items"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// Search performs a filtered metadata search.
func (c *Client) Search(ctx context.Context, opts SearchOptions) (*SearchPage, error) {
	query := url.Values{}
	if opts.Query != "" {
		query.Set("q", opts.Query)
	}
	if opts.Language != "" {
		query.Set("language", opts.Language)
	}
	if opts.Owner != "" {
		query.Set("owner", opts.Owner)
	}
	if opts.MinStars != nil {
		query.Set("min_stars", strconv.Itoa(*opts.MinStars))
	}
	if opts.MaxStars != nil {
		query.Set("max_stars", strconv.Itoa(*opts.MaxStars))
	}
	if opts.HasTopics {
		query.Set("has_topics", "true")
	}
	if opts.IsFork != nil {
		query.Set("is_fork", strconv.FormatBool(*opts.IsFork))
	}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PerPage > 0 {
		query.Set("per_page", strconv.Itoa(opts.PerPage))
	}

	var page SearchPage
	if err := c.get(ctx, "/repos/search", query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SemanticHit is one semantic search result.
type SemanticHit struct {
	Repo    models.Repo `json:"repo"`
	Score   float64     `json:"score"`
	Snippet string      `json:"snippet"`
}

// SemanticSearch searches readme content by meaning.
func (c *Client) SemanticSearch(ctx context.Context, q string, limit int) ([]SemanticHit, error) {
	query := url.Values{"q": {q}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Results []SemanticHit `json:"results"`
	}
	if err := c.get(ctx, "/repos/semantic-search", query, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetRepo retrieves one repository by its GitHub id.
func (c *Client) GetRepo(ctx context.Context, repoID int64) (*models.Repo, error) {
	var repo models.Repo
	if err := c.get(ctx, "/repos/"+strconv.FormatInt(repoID, 10), nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// DeleteAllRepos wipes the mirror and returns the number of deleted records.
func (c *Client) DeleteAllRepos(ctx context.Context) (int, error) {
	var resp struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/repos", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// Languages returns language counts across the mirror.
func (c *Client) Languages(ctx context.Context) ([]models.LanguageCount, error) {
	var languages []models.LanguageCount
	if err := c.get(ctx, "/languages", nil, &languages); err != nil {
		return nil, err
	}
	return languages, nil
}

// OwnerCount is one owner with its repository count.
type OwnerCount struct {
	Owner string `json:"owner"`
	Count int    `json:"count"`
}

// Owners returns owner counts across the mirror.
func (c *Client) Owners(ctx context.Context) ([]OwnerCount, error) {
	var owners []OwnerCount
	if err := c.get(ctx, "/owners", nil, &owners); err != nil {
		return nil, err
	}
	return owners, nil
}

// Stats returns collection-wide statistics.
func (c *Client) Stats(ctx context.Context) (*models.RepoStats, error) {
	var stats models.RepoStats
	if err := c.get(ctx, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// RateLimit proxies the GitHub rate limit query through the server.
func (c *Client) RateLimit(ctx context.Context) (map[string]any, error) {
	var rl map[string]any
	if err := c.get(ctx, "/github/rate-limit", nil, &rl); err != nil {
		return nil, err
	}
	return rl, nil
}

// ScheduledJobs returns the server's timer-driven jobs.
func (c *Client) ScheduledJobs(ctx context.Context) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	if err := c.get(ctx, "/scheduler/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Metrics returns the server's in-memory operation timings.
func (c *Client) Metrics(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.get(ctx, "/metrics", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil, nil)
}
