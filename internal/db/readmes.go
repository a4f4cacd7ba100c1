package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/lukaswerner/starmirror/internal/metrics"
	"github.com/lukaswerner/starmirror/internal/models"
)

// GetReadme retrieves the enrichment record for a repository.
// Returns nil if the repository has not been processed.
func (c *Client) GetReadme(ctx context.Context, repoID int64) (*models.Readme, error) {
	start := time.Now()
	defer func() { c.metrics.RecordTiming(metrics.OpDBQuery, time.Since(start)) }()

	results, err := surrealdb.Query[[]models.Readme](ctx, c.db, `
		SELECT * FROM type::record("readme", $id)
	`, map[string]any{"id": repoID})
	if err != nil {
		return nil, fmt.Errorf("get readme: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// UpsertReadme creates or updates the enrichment record for a repository.
// processed_at is set once on first processing and preserved afterwards;
// updated_at always advances.
func (c *Client) UpsertReadme(ctx context.Context, r models.Readme) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("readme", $id) SET
			repo_id = $repo_id,
			content = $content,
			content_hash = $content_hash,
			embedding_id = $embedding_id,
			processed_at = processed_at ?? time::now(),
			updated_at = time::now()
	`, map[string]any{
		"id":           r.RepoID,
		"repo_id":      r.RepoID,
		"content":      r.Content,
		"content_hash": r.ContentHash,
		"embedding_id": r.EmbeddingID,
	})
	if err != nil {
		return fmt.Errorf("upsert readme: %w", wrapQueryError(err))
	}
	return nil
}

// CountReadmes returns the number of processed enrichment records.
func (c *Client) CountReadmes(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]struct {
		Total int `json:"total"`
	}](ctx, c.db, `SELECT count() AS total FROM readme GROUP ALL`, nil)
	if err != nil {
		return 0, fmt.Errorf("count readmes: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Total, nil
}
