// Package vector maintains the README vector index backing semantic search.
package vector

import (
	"context"
	"strconv"
)

// Document is one indexed README with its embedding and display metadata.
type Document struct {
	ID        string         `json:"id"`
	RepoID    int64          `json:"repo_id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
}

// Hit is one semantic search result. Score is cosine similarity in [0, 1],
// higher is closer.
type Hit struct {
	RepoID   int64          `json:"repo_id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// Index stores README embeddings and answers nearest-neighbor queries.
type Index interface {
	// Upsert writes a document, replacing any previous version under the
	// same ID.
	Upsert(ctx context.Context, doc Document) error

	// Delete removes a document by ID. Deleting an absent ID is not an error.
	Delete(ctx context.Context, id string) error

	// Query returns up to k nearest documents for the embedding, best first.
	Query(ctx context.Context, embedding []float32, k int) ([]Hit, error)

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int, error)
}

// DocumentID returns the canonical index ID for a repository.
func DocumentID(repoID int64) string {
	return "repo_" + strconv.FormatInt(repoID, 10)
}
