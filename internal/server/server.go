// Package server provides the HTTP API with lifecycle management: REST
// endpoints for mirroring and search plus a WebSocket event stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/lukaswerner/starmirror/internal/broadcast"
	"github.com/lukaswerner/starmirror/internal/db"
	"github.com/lukaswerner/starmirror/internal/github"
	"github.com/lukaswerner/starmirror/internal/metrics"
	"github.com/lukaswerner/starmirror/internal/models"
	"github.com/lukaswerner/starmirror/internal/service"
)

const shutdownTimeout = 10 * time.Second

// JobControl triggers and reports on the background jobs.
type JobControl interface {
	StartSync(ctx context.Context) error
	StartReadme(ctx context.Context, maxRepos int) error
	SyncStatus() models.RunStatus
	ReadmeStatus() models.RunStatus
	Jobs() []models.ScheduledJob
}

// RepoStore answers repository queries.
type RepoStore interface {
	SearchRepos(ctx context.Context, f db.SearchFilter) ([]models.Repo, int, error)
	GetRepo(ctx context.Context, repoID int64) (*models.Repo, error)
	GetLanguages(ctx context.Context) ([]models.LanguageCount, error)
	GetOwners(ctx context.Context) ([]db.OwnerCount, error)
	GetRepoStats(ctx context.Context) (*models.RepoStats, error)
	DeleteAllRepos(ctx context.Context) (int, error)
}

// ReadmeInfo reports enrichment coverage.
type ReadmeInfo interface {
	Stats(ctx context.Context) (*models.ReadmeStats, error)
}

// Searcher answers semantic queries.
type Searcher interface {
	Semantic(ctx context.Context, query string, k int) ([]service.SemanticResult, error)
}

// GitHubInfo proxies identity and quota queries to the remote API.
type GitHubInfo interface {
	GetUser(ctx context.Context) (*github.User, error)
	GetRateLimit(ctx context.Context) (*github.RateLimit, error)
}

// Server is the HTTP API server.
type Server struct {
	jobs    JobControl
	store   RepoStore
	readmes ReadmeInfo
	search  Searcher
	gh      GitHubInfo
	hub     *broadcast.Hub
	metrics *metrics.Collector
	logger  *slog.Logger

	httpServer *http.Server
}

// New creates the API server. hub and mc may be nil.
func New(addr string, jobs JobControl, store RepoStore, readmes ReadmeInfo, search Searcher, gh GitHubInfo, hub *broadcast.Hub, mc *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		jobs:    jobs,
		store:   store,
		readmes: readmes,
		search:  search,
		gh:      gh,
		hub:     hub,
		metrics: mc,
		logger:  logger,
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sync", s.handleTriggerSync)
	mux.HandleFunc("GET /sync/status", s.handleSyncStatus)

	mux.HandleFunc("POST /readmes/process", s.handleTriggerReadmes)
	mux.HandleFunc("GET /readmes/status", s.handleReadmeStatus)
	mux.HandleFunc("GET /readmes/stats", s.handleReadmeStats)

	mux.HandleFunc("GET /repos/search", s.handleSearch)
	mux.HandleFunc("GET /repos/semantic-search", s.handleSemanticSearch)
	mux.HandleFunc("GET /repos/{id}", s.handleGetRepo)
	mux.HandleFunc("DELETE /repos", s.handleDeleteRepos)

	mux.HandleFunc("GET /languages", s.handleLanguages)
	mux.HandleFunc("GET /owners", s.handleOwners)
	mux.HandleFunc("GET /stats", s.handleStats)

	mux.HandleFunc("GET /github/rate-limit", s.handleRateLimit)
	mux.HandleFunc("GET /github/user", s.handleGitHubUser)

	mux.HandleFunc("GET /scheduler/jobs", s.handleScheduledJobs)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return s.logRequests(mux)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
