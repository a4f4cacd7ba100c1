package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/lukaswerner/starmirror/internal/db"
	"github.com/lukaswerner/starmirror/internal/metrics"
)

// SurrealIndex implements Index on the readme_index table, sharing the
// database connection with the record store.
type SurrealIndex struct {
	client *db.Client
}

var _ Index = (*SurrealIndex)(nil)

// NewSurrealIndex creates a vector index on an existing database client.
func NewSurrealIndex(client *db.Client) *SurrealIndex {
	return &SurrealIndex{client: client}
}

// Upsert writes a document under its ID, replacing any previous version.
func (s *SurrealIndex) Upsert(ctx context.Context, doc Document) error {
	start := time.Now()
	defer func() { s.client.RecordQueryTiming(metrics.OpVectorUpsert, time.Since(start)) }()

	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err := surrealdb.Query[any](ctx, s.client.DB(), `
		UPSERT type::record("readme_index", $id) SET
			repo_id = $repo_id,
			content = $content,
			embedding = $embedding,
			metadata = $metadata,
			updated_at = time::now()
	`, map[string]any{
		"id":        doc.ID,
		"repo_id":   doc.RepoID,
		"content":   doc.Content,
		"embedding": doc.Embedding,
		"metadata":  metadata,
	})
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes a document by ID. Absent IDs are a no-op.
func (s *SurrealIndex) Delete(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, s.client.DB(), `
		DELETE type::record("readme_index", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// Query returns up to k nearest documents by cosine similarity, best first.
func (s *SurrealIndex) Query(ctx context.Context, embedding []float32, k int) ([]Hit, error) {
	start := time.Now()
	defer func() { s.client.RecordQueryTiming(metrics.OpDBSearch, time.Since(start)) }()

	if k <= 0 {
		k = 10
	}

	// HNSW k and ef must be literals; ef=40 for better recall.
	sql := fmt.Sprintf(`
		SELECT repo_id, content, metadata,
			vector::similarity::cosine(embedding, $emb) AS score
		FROM readme_index
		WHERE embedding <|%d,40|> $emb
		ORDER BY score DESC
	`, k)

	results, err := surrealdb.Query[[]Hit](ctx, s.client.DB(), sql, map[string]any{
		"emb": embedding,
	})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []Hit{}, nil
	}
	return (*results)[0].Result, nil
}

// Count returns the number of indexed documents.
func (s *SurrealIndex) Count(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]struct {
		Total int `json:"total"`
	}](ctx, s.client.DB(), `SELECT count() AS total FROM readme_index GROUP ALL`, nil)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Total, nil
}
