package service

import (
	"context"
	"fmt"

	"github.com/lukaswerner/starmirror/internal/db"
	"github.com/lukaswerner/starmirror/internal/models"
	"github.com/lukaswerner/starmirror/internal/vector"
)

// SearchStore answers filtered queries over the repository records.
type SearchStore interface {
	SearchRepos(ctx context.Context, f db.SearchFilter) ([]models.Repo, int, error)
	GetRepo(ctx context.Context, repoID int64) (*models.Repo, error)
}

// SemanticResult pairs a repository with its similarity score and a content
// snippet from the indexed README.
type SemanticResult struct {
	Repo    models.Repo `json:"repo"`
	Score   float64     `json:"score"`
	Snippet string      `json:"snippet"`
}

// snippetLength bounds the README excerpt returned with semantic results.
const snippetLength = 300

// SearchService answers filtered and semantic repository queries.
type SearchService struct {
	store    SearchStore
	index    vector.Index
	embedder Embedder
}

// NewSearchService creates a search service.
func NewSearchService(store SearchStore, index vector.Index, embedder Embedder) *SearchService {
	return &SearchService{store: store, index: index, embedder: embedder}
}

// Search runs a filtered substring search over the repository records.
func (s *SearchService) Search(ctx context.Context, f db.SearchFilter) ([]models.Repo, int, error) {
	return s.store.SearchRepos(ctx, f)
}

// Semantic embeds the query and returns the k nearest repositories by README
// similarity. Hits whose repository record has been deleted since indexing
// are dropped from the results.
func (s *SearchService) Semantic(ctx context.Context, query string, k int) ([]SemanticResult, error) {
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if k <= 0 {
		k = 10
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.index.Query(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	results := make([]SemanticResult, 0, len(hits))
	for _, hit := range hits {
		repo, err := s.store.GetRepo(ctx, hit.RepoID)
		if err != nil {
			return nil, fmt.Errorf("load repo %d: %w", hit.RepoID, err)
		}
		if repo == nil {
			continue
		}
		results = append(results, SemanticResult{
			Repo:    *repo,
			Score:   hit.Score,
			Snippet: snippet(hit.Content),
		})
	}
	return results, nil
}

func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetLength {
		return content
	}
	return string(runes[:snippetLength]) + "..."
}
