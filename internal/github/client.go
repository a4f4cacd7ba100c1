package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lukaswerner/starmirror/internal/metrics"
	"github.com/lukaswerner/starmirror/internal/models"
)

const (
	starredPageSize = 100
	requestTimeout  = 30 * time.Second

	// acceptStarJSON makes the starred listing include starred_at timestamps.
	acceptStarJSON = "application/vnd.github.v3.star+json"
)

// readmeCandidates is the ordered list of canonical README locations probed
// by FetchReadme. The first successful body wins.
var readmeCandidates = []string{
	"README.md", "readme.md", "Readme.md",
	"README.rst", "readme.rst", "Readme.rst",
	"README.txt", "readme.txt", "Readme.txt",
	"README", "readme", "Readme",
}

// Client is a GitHub REST API client scoped to the operations starmirror
// needs: starred listing, README content, rate limit, and user identity.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	metrics    *metrics.Collector
}

// NewClient creates a GitHub client. baseURL defaults to the public API when
// empty; mc may be nil.
func NewClient(baseURL, token string, mc *metrics.Collector) *Client {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
		metrics:    mc,
	}
}

// User holds the authenticated user's identity.
type User struct {
	Login     string  `json:"login"`
	Name      *string `json:"name,omitempty"`
	AvatarURL string  `json:"avatar_url"`
}

// Rate is one rate-limit bucket.
type Rate struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// RateLimit reports the current core API rate budget.
type RateLimit struct {
	Resources struct {
		Core Rate `json:"core"`
	} `json:"resources"`
	Rate Rate `json:"rate"`
}

func (c *Client) get(ctx context.Context, path, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	if accept == "" {
		accept = "application/vnd.github.v3+json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", "starmirror")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return resp, nil
}

// GetUser returns the authenticated user.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	resp, err := c.get(ctx, "/user", "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &user, nil
}

// GetRateLimit returns the current API rate budget.
func (c *Client) GetRateLimit(ctx context.Context) (*RateLimit, error) {
	resp, err := c.get(ctx, "/rate_limit", "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, fmt.Errorf("get rate limit: %w", err)
	}

	var rl RateLimit
	if err := json.NewDecoder(resp.Body).Decode(&rl); err != nil {
		return nil, fmt.Errorf("decode rate limit: %w", err)
	}
	return &rl, nil
}

// apiRepo is the wire shape of a repository payload.
type apiRepo struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     *string   `json:"description"`
	HTMLURL         string    `json:"html_url"`
	CloneURL        string    `json:"clone_url"`
	SSHURL          string    `json:"ssh_url"`
	Language        *string   `json:"language"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	OpenIssuesCount int       `json:"open_issues_count"`
	Topics          []string  `json:"topics"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Fork            bool      `json:"fork"`
	Private         bool      `json:"private"`
	Size            int       `json:"size"`
	DefaultBranch   string    `json:"default_branch"`
	Owner           struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	} `json:"owner"`
	License *struct {
		Name string `json:"name"`
		Key  string `json:"key"`
	} `json:"license"`
}

// starredItem is one element of the star+json listing.
type starredItem struct {
	StarredAt *time.Time `json:"starred_at"`
	Repo      *apiRepo   `json:"repo"`
}

func (r *apiRepo) toModel(starredAt *time.Time) models.Repo {
	topics := r.Topics
	if topics == nil {
		topics = []string{}
	}
	topicsJSON, _ := json.Marshal(topics)

	starred := time.Now().UTC()
	if starredAt != nil {
		starred = *starredAt
	}

	repo := models.Repo{
		RepoID:          r.ID,
		Name:            r.Name,
		FullName:        r.FullName,
		Description:     r.Description,
		HTMLURL:         r.HTMLURL,
		CloneURL:        r.CloneURL,
		SSHURL:          r.SSHURL,
		Language:        r.Language,
		StargazersCount: r.StargazersCount,
		ForksCount:      r.ForksCount,
		OpenIssuesCount: r.OpenIssuesCount,
		Topics:          string(topicsJSON),
		OwnerLogin:      r.Owner.Login,
		OwnerAvatarURL:  r.Owner.AvatarURL,
		StarredAt:       starred,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		IsFork:          r.Fork,
		IsPrivate:       r.Private,
		Size:            r.Size,
		DefaultBranch:   r.DefaultBranch,
	}
	if r.License != nil {
		repo.LicenseName = &r.License.Name
		repo.LicenseKey = &r.License.Key
	}
	return repo
}

// ListStarred pages through all starred repositories of username (the
// authenticated user when empty). A failed page fails the whole listing; the
// orchestrating run decides what to do with that.
func (c *Client) ListStarred(ctx context.Context, username string) ([]models.Repo, error) {
	if username == "" {
		user, err := c.GetUser(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve username: %w", err)
		}
		username = user.Login
	}

	var all []models.Repo
	for page := 1; ; page++ {
		start := time.Now()
		items, err := c.listStarredPage(ctx, username, page)
		c.metrics.RecordTiming(metrics.OpFetchList, time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("fetch starred page %d: %w", page, err)
		}

		all = append(all, items...)
		slog.Debug("fetched starred page", "username", username, "page", page, "items", len(items))

		if len(items) < starredPageSize {
			break
		}
	}

	slog.Info("fetched starred repositories", "username", username, "count", len(all))
	return all, nil
}

func (c *Client) listStarredPage(ctx context.Context, username string, page int) ([]models.Repo, error) {
	path := fmt.Sprintf("/users/%s/starred?page=%d&per_page=%d", username, page, starredPageSize)
	resp, err := c.get(ctx, path, acceptStarJSON)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	// Each element is either {starred_at, repo} (star+json) or a bare repo.
	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode starred page: %w", err)
	}

	repos := make([]models.Repo, 0, len(raw))
	for _, msg := range raw {
		var item starredItem
		if err := json.Unmarshal(msg, &item); err == nil && item.Repo != nil {
			repos = append(repos, item.Repo.toModel(item.StarredAt))
			continue
		}
		var repo apiRepo
		if err := json.Unmarshal(msg, &repo); err != nil {
			return nil, fmt.Errorf("decode starred item: %w", err)
		}
		repos = append(repos, repo.toModel(nil))
	}
	return repos, nil
}

// contentFile is the wire shape of the contents endpoint for files.
type contentFile struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// FetchReadme probes the candidate README locations for owner/repo and
// returns the first successfully retrieved body, decoded from its transport
// encoding. Returns ErrNotFound when every candidate is absent; a
// forbidden/unauthorized response aborts the search immediately since the
// remaining candidates would fail identically.
func (c *Client) FetchReadme(ctx context.Context, owner, repo string) (string, error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordTiming(metrics.OpFetchReadme, time.Since(start))
	}()

	for _, candidate := range readmeCandidates {
		content, err := c.fetchContentFile(ctx, owner, repo, candidate)
		switch {
		case err == nil:
			slog.Debug("readme found", "repo", owner+"/"+repo, "file", candidate)
			return content, nil
		case errors.Is(err, ErrNotFound):
			continue
		default:
			return "", fmt.Errorf("fetch %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf("no readme for %s/%s: %w", owner, repo, ErrNotFound)
}

func (c *Client) fetchContentFile(ctx context.Context, owner, repo, path string) (string, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, path), "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	var file contentFile
	if err := json.Unmarshal(body, &file); err != nil {
		return "", fmt.Errorf("decode content file: %w", err)
	}
	if file.Type != "file" || file.Content == "" {
		return "", fmt.Errorf("unexpected content payload for %s: %w", path, ErrNotFound)
	}

	// GitHub wraps base64 bodies across lines.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode base64 content: %w", err)
	}
	return string(decoded), nil
}
