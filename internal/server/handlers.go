package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/lukaswerner/starmirror/internal/db"
	"github.com/lukaswerner/starmirror/internal/github"
	"github.com/lukaswerner/starmirror/internal/scheduler"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	// The run outlives the request; net/http cancels r.Context() when the
	// handler returns, so the job must not inherit that cancellation.
	if err := s.jobs.StartSync(context.WithoutCancel(r.Context())); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "sync already running")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.SyncStatus())
}

func (s *Server) handleTriggerReadmes(w http.ResponseWriter, r *http.Request) {
	maxRepos := 0
	if v := r.URL.Query().Get("max_repos"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid max_repos")
			return
		}
		maxRepos = n
	}

	if err := s.jobs.StartReadme(context.WithoutCancel(r.Context()), maxRepos); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "readme processing already running")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleReadmeStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.ReadmeStatus())
}

func (s *Server) handleReadmeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.readmes.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// searchResponse is one page of filtered search results.
type searchResponse struct {
	Items   any `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := db.SearchFilter{
		Query:    q.Get("query"),
		Language: q.Get("language"),
		Owner:    q.Get("owner"),
	}
	if filter.Query == "" {
		filter.Query = q.Get("q")
	}

	var err error
	if filter.MinStars, err = optionalInt(q.Get("min_stars")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_stars")
		return
	}
	if filter.MaxStars, err = optionalInt(q.Get("max_stars")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_stars")
		return
	}
	filter.HasTopics = q.Get("has_topics") == "true"
	if v := q.Get("is_fork"); v != "" {
		isFork := v == "true"
		filter.IsFork = &isFork
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 30
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	repos, total, err := s.store.SearchRepos(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Items:   repos,
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
	})
}

func optionalInt(v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	results, err := s.search.Semantic(r.Context(), query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
	})
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid repository id")
		return
	}

	repo, err := s.store.GetRepo(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if repo == nil {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (s *Server) handleDeleteRepos(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.store.DeleteAllRepos(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	languages, err := s.store.GetLanguages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, languages)
}

func (s *Server) handleOwners(w http.ResponseWriter, r *http.Request) {
	owners, err := s.store.GetOwners(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, owners)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetRepoStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRateLimit(w http.ResponseWriter, r *http.Request) {
	rl, err := s.gh.GetRateLimit(r.Context())
	if err != nil {
		writeError(w, upstreamStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rl)
}

func (s *Server) handleGitHubUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.gh.GetUser(r.Context())
	if err != nil {
		writeError(w, upstreamStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// upstreamStatus maps remote API errors onto response codes.
func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, github.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, github.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleScheduledJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.Jobs())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
