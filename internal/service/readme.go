package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lukaswerner/starmirror/internal/github"
	"github.com/lukaswerner/starmirror/internal/models"
	"github.com/lukaswerner/starmirror/internal/readme"
	"github.com/lukaswerner/starmirror/internal/vector"
)

// ReadmeFetcher retrieves raw README content from the remote API.
type ReadmeFetcher interface {
	FetchReadme(ctx context.Context, owner, repo string) (string, error)
}

// ReadmeStore persists enrichment records and exposes the repo listing the
// enrichment run walks.
type ReadmeStore interface {
	ListRepos(ctx context.Context, limit int) ([]models.Repo, error)
	GetReadme(ctx context.Context, repoID int64) (*models.Readme, error)
	UpsertReadme(ctx context.Context, r models.Readme) error
	CountRepos(ctx context.Context) (int, error)
	CountReadmes(ctx context.Context) (int, error)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Outcome classifies one repository's enrichment attempt.
type Outcome int

const (
	// OutcomeIndexed means the README was embedded and written.
	OutcomeIndexed Outcome = iota
	// OutcomeUnchanged means the fingerprint matched and nothing was written.
	OutcomeUnchanged
	// OutcomeMissing means the repository has no README.
	OutcomeMissing
)

// ReadmeResult summarizes one enrichment run.
type ReadmeResult struct {
	Total     int           `json:"total"`
	Indexed   int           `json:"indexed"`
	Unchanged int           `json:"unchanged"`
	Missing   int           `json:"missing"`
	Failed    int           `json:"failed"`
	Errors    []string      `json:"errors,omitempty"`
	Duration  time.Duration `json:"-"`
}

// ReadmeService enriches mirrored repositories with normalized, embedded
// README content.
type ReadmeService struct {
	fetcher     ReadmeFetcher
	store       ReadmeStore
	index       vector.Index
	embedder    Embedder
	concurrency int
}

// NewReadmeService creates a readme enrichment service.
func NewReadmeService(fetcher ReadmeFetcher, store ReadmeStore, index vector.Index, embedder Embedder, concurrency int) *ReadmeService {
	return &ReadmeService{
		fetcher:     fetcher,
		store:       store,
		index:       index,
		embedder:    embedder,
		concurrency: concurrency,
	}
}

// ProcessRepo enriches a single repository. Unchanged content short-circuits
// before any embedding work. The vector index is written before the record so
// a crash between the two leaves the record stale, never dangling.
func (s *ReadmeService) ProcessRepo(ctx context.Context, repo models.Repo) (Outcome, error) {
	content, err := s.fetcher.FetchReadme(ctx, repo.OwnerLogin, repo.Name)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			slog.Debug("no readme", "repo", repo.FullName)
			return OutcomeMissing, nil
		}
		return 0, fmt.Errorf("%s: fetch readme: %w", repo.FullName, err)
	}

	normalized := readme.Normalize(content)
	hash := readme.Fingerprint(normalized)

	existing, err := s.store.GetReadme(ctx, repo.RepoID)
	if err != nil {
		return 0, fmt.Errorf("%s: load record: %w", repo.FullName, err)
	}
	var existingHash *string
	if existing != nil {
		existingHash = &existing.ContentHash
	}

	if change := readme.Decide(existingHash, hash); change == readme.ChangeUnchanged {
		slog.Debug("readme unchanged", "repo", repo.FullName)
		return OutcomeUnchanged, nil
	}

	embedding, err := s.embedder.Embed(ctx, normalized)
	if err != nil {
		return 0, fmt.Errorf("%s: embed: %w", repo.FullName, err)
	}

	docID := vector.DocumentID(repo.RepoID)
	metadata := map[string]any{
		"full_name": repo.FullName,
		"stars":     repo.StargazersCount,
	}
	if repo.Language != nil {
		metadata["language"] = *repo.Language
	}
	if repo.Description != nil {
		metadata["description"] = *repo.Description
	}

	err = s.index.Upsert(ctx, vector.Document{
		ID:        docID,
		RepoID:    repo.RepoID,
		Content:   normalized,
		Embedding: embedding,
		Metadata:  metadata,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: index: %w", repo.FullName, err)
	}

	err = s.store.UpsertReadme(ctx, models.Readme{
		RepoID:      repo.RepoID,
		Content:     normalized,
		ContentHash: hash,
		EmbeddingID: docID,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: store record: %w", repo.FullName, err)
	}

	slog.Debug("readme indexed", "repo", repo.FullName, "hash", hash)
	return OutcomeIndexed, nil
}

// ProcessAll enriches up to maxRepos repositories (0 means all), most
// recently starred first. onProgress, if non-nil, receives cumulative
// progress after each chunk.
func (s *ReadmeService) ProcessAll(ctx context.Context, maxRepos int, onProgress func(done, total int)) (*ReadmeResult, error) {
	start := time.Now()

	repos, err := s.store.ListRepos(ctx, maxRepos)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}

	var indexed, unchanged, missing atomic.Int32
	outcome := RunChunked(ctx, repos, s.concurrency, func(ctx context.Context, repo models.Repo) error {
		res, err := s.ProcessRepo(ctx, repo)
		if err != nil {
			return err
		}
		switch res {
		case OutcomeIndexed:
			indexed.Add(1)
		case OutcomeUnchanged:
			unchanged.Add(1)
		case OutcomeMissing:
			missing.Add(1)
		}
		return nil
	}, onProgress)

	result := &ReadmeResult{
		Total:     len(repos),
		Indexed:   int(indexed.Load()),
		Unchanged: int(unchanged.Load()),
		Missing:   int(missing.Load()),
		Failed:    outcome.Failed,
		Errors:    outcome.Errors,
		Duration:  time.Since(start),
	}
	slog.Info("readme run complete",
		"total", result.Total, "indexed", result.Indexed, "unchanged", result.Unchanged,
		"missing", result.Missing, "failed", result.Failed,
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// Stats reports enrichment coverage across the mirrored collection.
func (s *ReadmeService) Stats(ctx context.Context) (*models.ReadmeStats, error) {
	total, err := s.store.CountRepos(ctx)
	if err != nil {
		return nil, fmt.Errorf("count repos: %w", err)
	}
	processed, err := s.store.CountReadmes(ctx)
	if err != nil {
		return nil, fmt.Errorf("count readmes: %w", err)
	}
	vectors, err := s.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}

	rate := "0.0%"
	if total > 0 {
		rate = fmt.Sprintf("%.1f%%", float64(processed)/float64(total)*100)
	}

	return &models.ReadmeStats{
		TotalRepos:      total,
		ProcessedRepos:  processed,
		VectorDocuments: vectors,
		ProcessingRate:  rate,
	}, nil
}
