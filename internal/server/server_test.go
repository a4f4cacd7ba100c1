package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lukaswerner/starmirror/internal/broadcast"
	"github.com/lukaswerner/starmirror/internal/db"
	"github.com/lukaswerner/starmirror/internal/github"
	"github.com/lukaswerner/starmirror/internal/metrics"
	"github.com/lukaswerner/starmirror/internal/models"
	"github.com/lukaswerner/starmirror/internal/scheduler"
	"github.com/lukaswerner/starmirror/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeJobs struct {
	syncErr   error
	readmeErr error
	gotMax    int
	gotCtx    context.Context
	sync      models.RunStatus
	readme    models.RunStatus
}

func (f *fakeJobs) StartSync(ctx context.Context) error {
	f.gotCtx = ctx
	return f.syncErr
}
func (f *fakeJobs) StartReadme(ctx context.Context, maxRepos int) error {
	f.gotCtx = ctx
	f.gotMax = maxRepos
	return f.readmeErr
}
func (f *fakeJobs) SyncStatus() models.RunStatus   { return f.sync }
func (f *fakeJobs) ReadmeStatus() models.RunStatus { return f.readme }
func (f *fakeJobs) Jobs() []models.ScheduledJob {
	return []models.ScheduledJob{{ID: "daily_sync", Name: "Daily", NextRunAt: time.Now()}}
}

type fakeRepoStore struct {
	repos     map[int64]models.Repo
	gotFilter db.SearchFilter
	deleted   int
}

func (f *fakeRepoStore) SearchRepos(_ context.Context, filter db.SearchFilter) ([]models.Repo, int, error) {
	f.gotFilter = filter
	out := make([]models.Repo, 0, len(f.repos))
	for _, r := range f.repos {
		out = append(out, r)
	}
	return out, len(out), nil
}

func (f *fakeRepoStore) GetRepo(_ context.Context, id int64) (*models.Repo, error) {
	r, ok := f.repos[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeRepoStore) GetLanguages(context.Context) ([]models.LanguageCount, error) {
	return []models.LanguageCount{{Language: "Go", Count: 3}}, nil
}

func (f *fakeRepoStore) GetOwners(context.Context) ([]db.OwnerCount, error) {
	return []db.OwnerCount{{Owner: "octocat", Count: 2}}, nil
}

func (f *fakeRepoStore) GetRepoStats(context.Context) (*models.RepoStats, error) {
	return &models.RepoStats{TotalRepos: len(f.repos)}, nil
}

func (f *fakeRepoStore) DeleteAllRepos(context.Context) (int, error) {
	f.deleted = len(f.repos)
	f.repos = map[int64]models.Repo{}
	return f.deleted, nil
}

type fakeReadmeInfo struct{}

func (fakeReadmeInfo) Stats(context.Context) (*models.ReadmeStats, error) {
	return &models.ReadmeStats{TotalRepos: 4, ProcessedRepos: 2, ProcessingRate: "50.0%"}, nil
}

type fakeSearcher struct {
	gotQuery string
	gotK     int
}

func (f *fakeSearcher) Semantic(_ context.Context, query string, k int) ([]service.SemanticResult, error) {
	f.gotQuery = query
	f.gotK = k
	return []service.SemanticResult{{Repo: models.Repo{RepoID: 1, FullName: "octocat/hit"}, Score: 0.9}}, nil
}

type fakeGitHub struct {
	err error
}

func (f *fakeGitHub) GetUser(context.Context) (*github.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &github.User{Login: "octocat"}, nil
}

func (f *fakeGitHub) GetRateLimit(context.Context) (*github.RateLimit, error) {
	if f.err != nil {
		return nil, f.err
	}
	rl := &github.RateLimit{}
	rl.Resources.Core.Remaining = 4000
	return rl, nil
}

func newTestServer(t *testing.T, jobs *fakeJobs, store *fakeRepoStore, hub *broadcast.Hub) (*Server, *fakeSearcher) {
	t.Helper()
	if jobs == nil {
		jobs = &fakeJobs{}
	}
	if store == nil {
		store = &fakeRepoStore{repos: map[int64]models.Repo{}}
	}
	searcher := &fakeSearcher{}
	return New("127.0.0.1:0", jobs, store, fakeReadmeInfo{}, searcher, &fakeGitHub{}, hub, metrics.NewCollector(), testLogger()), searcher
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTriggerSync(t *testing.T) {
	jobs := &fakeJobs{}
	s, _ := newTestServer(t, jobs, nil, nil)

	rec := doRequest(t, s, http.MethodPost, "/sync")
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}

	jobs.syncErr = scheduler.ErrAlreadyRunning
	rec = doRequest(t, s, http.MethodPost, "/sync")
	if rec.Code != http.StatusConflict {
		t.Errorf("concurrent trigger should return 409, got %d", rec.Code)
	}
}

func TestTriggeredRunOutlivesRequest(t *testing.T) {
	jobs := &fakeJobs{}
	s, _ := newTestServer(t, jobs, nil, nil)

	for _, path := range []string{"/sync", "/readmes/process"} {
		reqCtx, cancel := context.WithCancel(context.Background())
		req := httptest.NewRequest(http.MethodPost, path, nil).WithContext(reqCtx)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("%s: expected 202, got %d", path, rec.Code)
		}

		// The request context dies with the handler; the job's must not.
		cancel()
		if jobs.gotCtx == nil {
			t.Fatalf("%s: job never received a context", path)
		}
		if err := jobs.gotCtx.Err(); err != nil {
			t.Errorf("%s: job context canceled with the request: %v", path, err)
		}
	}
}

func TestTriggerReadmesForwardsLimit(t *testing.T) {
	jobs := &fakeJobs{}
	s, _ := newTestServer(t, jobs, nil, nil)

	rec := doRequest(t, s, http.MethodPost, "/readmes/process?max_repos=25")
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	if jobs.gotMax != 25 {
		t.Errorf("expected max_repos=25 forwarded, got %d", jobs.gotMax)
	}

	rec = doRequest(t, s, http.MethodPost, "/readmes/process?max_repos=nope")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad max_repos, got %d", rec.Code)
	}
}

func TestSyncStatus(t *testing.T) {
	jobs := &fakeJobs{sync: models.RunStatus{Running: true, Message: "syncing"}}
	s, _ := newTestServer(t, jobs, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/sync/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var status models.RunStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !status.Running || status.Message != "syncing" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestSearchParsesFilters(t *testing.T) {
	store := &fakeRepoStore{repos: map[int64]models.Repo{1: {RepoID: 1, FullName: "octocat/a"}}}
	s, _ := newTestServer(t, nil, store, nil)

	rec := doRequest(t, s, http.MethodGet,
		"/repos/search?q=vector&language=go&min_stars=10&is_fork=false&page=2&per_page=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	f := store.gotFilter
	if f.Query != "vector" || f.Language != "go" {
		t.Errorf("unexpected filter %+v", f)
	}
	if f.MinStars == nil || *f.MinStars != 10 {
		t.Error("min_stars should be parsed")
	}
	if f.IsFork == nil || *f.IsFork {
		t.Error("is_fork=false should be parsed as set-and-false")
	}
	if f.Page != 2 || f.PerPage != 5 {
		t.Errorf("pagination not forwarded: %+v", f)
	}

	var resp searchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Total != 1 || resp.Page != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestSearchRejectsBadStars(t *testing.T) {
	s, _ := newTestServer(t, nil, nil, nil)
	rec := doRequest(t, s, http.MethodGet, "/repos/search?min_stars=many")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSemanticSearch(t *testing.T) {
	s, searcher := newTestServer(t, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/repos/semantic-search?q=vector+db&limit=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if searcher.gotQuery != "vector db" || searcher.gotK != 5 {
		t.Errorf("query not forwarded: %q k=%d", searcher.gotQuery, searcher.gotK)
	}

	rec = doRequest(t, s, http.MethodGet, "/repos/semantic-search")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing q should return 400, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/repos/semantic-search?q=x&limit=1000")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("out-of-range limit should return 400, got %d", rec.Code)
	}
}

func TestGetRepo(t *testing.T) {
	store := &fakeRepoStore{repos: map[int64]models.Repo{42: {RepoID: 42, FullName: "octocat/answer"}}}
	s, _ := newTestServer(t, nil, store, nil)

	rec := doRequest(t, s, http.MethodGet, "/repos/42")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "octocat/answer") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/repos/7")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/repos/not-a-number")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteRepos(t *testing.T) {
	store := &fakeRepoStore{repos: map[int64]models.Repo{1: {}, 2: {}}}
	s, _ := newTestServer(t, nil, store, nil)

	rec := doRequest(t, s, http.MethodDelete, "/repos")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"deleted":2`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestUpstreamErrorMapping(t *testing.T) {
	gh := &fakeGitHub{err: github.ErrRateLimited}
	s, _ := newTestServer(t, nil, nil, nil)
	s.gh = gh

	rec := doRequest(t, s, http.MethodGet, "/github/rate-limit")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("rate limited upstream should map to 429, got %d", rec.Code)
	}

	gh.err = errors.New("connection refused")
	rec = doRequest(t, s, http.MethodGet, "/github/user")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("generic upstream failure should map to 502, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, nil, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from metrics, got %d", rec.Code)
	}
	var snap metrics.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Errorf("metrics response should decode: %v", err)
	}
}

func TestWebSocketSnapshotAndEvents(t *testing.T) {
	hub := broadcast.NewHub()
	jobs := &fakeJobs{sync: models.RunStatus{Message: "idle"}}
	s, _ := newTestServer(t, jobs, nil, hub)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Join snapshot: sync status then readme status.
	for _, want := range []string{broadcast.EventSyncStatus, broadcast.EventReadmeStatus} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev broadcast.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read snapshot: %v", err)
		}
		if ev.Type != want {
			t.Errorf("expected snapshot %s, got %s", want, ev.Type)
		}
	}

	// Live events flow through the hub.
	hub.Publish(broadcast.Event{Type: broadcast.EventSyncProgress, Data: map[string]int{"done": 5}})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev broadcast.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != broadcast.EventSyncProgress {
		t.Errorf("expected progress event, got %s", ev.Type)
	}
}
