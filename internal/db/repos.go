package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/lukaswerner/starmirror/internal/metrics"
	"github.com/lukaswerner/starmirror/internal/models"
)

// BulkResult reports the outcome of a bulk repository upsert.
type BulkResult struct {
	// Processed is the number of repositories written.
	Processed int `json:"processed"`
	// Created and Updated split Processed into new vs pre-existing records.
	// SplitExact reports whether that split is reliable: the fast path does
	// not distinguish the two and reports everything as Updated.
	Created    int  `json:"created"`
	Updated    int  `json:"updated"`
	SplitExact bool `json:"split_exact"`
	// Batches is the number of transactional batches committed.
	Batches int `json:"batches"`
}

// BulkUpsertRepos writes repos in transactional batches of batchSize keyed by
// repo_id. Each batch commits atomically; a failed batch aborts the run and
// returns a BatchError identifying it, with all prior batches durable.
//
// The fast path upserts blindly and cannot tell creates from updates. The
// safe path checks membership first and splits exactly; it is also the
// fallback when a fast batch fails, since UPSERT contention surfaces as
// transaction conflicts under concurrent writers.
func (c *Client) BulkUpsertRepos(ctx context.Context, repos []models.Repo, batchSize int, fast bool) (*BulkResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	result := &BulkResult{SplitExact: !fast}
	for start := 0; start < len(repos); start += batchSize {
		end := min(start+batchSize, len(repos))
		batch := repos[start:end]

		var (
			created, updated int
			err              error
		)
		if fast {
			err = c.upsertBatchFast(ctx, batch)
			updated = len(batch)
			if err != nil {
				created, updated, err = c.upsertBatchSafe(ctx, batch)
				if err == nil {
					// The fallback split is exact for this batch, but the
					// run as a whole stays inexact once any fast batch
					// committed.
					c.logger.Warn("fast upsert batch failed, safe fallback succeeded",
						"batch", result.Batches)
				}
			}
		} else {
			created, updated, err = c.upsertBatchSafe(ctx, batch)
		}
		if err != nil {
			return result, &BatchError{Batch: result.Batches, Err: wrapQueryError(err)}
		}

		result.Processed += len(batch)
		result.Created += created
		result.Updated += updated
		result.Batches++
	}
	return result, nil
}

// upsertBatchSafe determines membership first, then creates and updates in one
// transaction. Returns the exact created/updated split.
func (c *Client) upsertBatchSafe(ctx context.Context, batch []models.Repo) (int, int, error) {
	ids := make([]int64, len(batch))
	for i, r := range batch {
		ids[i] = r.RepoID
	}

	existing, err := surrealdb.Query[[]int64](ctx, c.db, `
		SELECT VALUE repo_id FROM repo WHERE repo_id IN $ids
	`, map[string]any{"ids": ids})
	if err != nil {
		return 0, 0, fmt.Errorf("check membership: %w", err)
	}

	known := make(map[int64]bool)
	if existing != nil && len(*existing) > 0 {
		for _, id := range (*existing)[0].Result {
			known[id] = true
		}
	}

	var creates, updates []models.Repo
	for _, r := range batch {
		if known[r.RepoID] {
			updates = append(updates, r)
		} else {
			creates = append(creates, r)
		}
	}

	_, err = surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		FOR $r IN $creates {
			CREATE type::record("repo", $r.repo_id) CONTENT $r;
		};
		FOR $r IN $updates {
			UPDATE type::record("repo", $r.repo_id) CONTENT $r;
		};
		COMMIT TRANSACTION;
	`, map[string]any{
		"creates": orEmpty(creates),
		"updates": orEmpty(updates),
	})
	if err != nil {
		return 0, 0, err
	}
	return len(creates), len(updates), nil
}

// upsertBatchFast writes the whole batch with UPSERT in one transaction.
func (c *Client) upsertBatchFast(ctx context.Context, batch []models.Repo) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		FOR $r IN $batch {
			UPSERT type::record("repo", $r.repo_id) CONTENT $r;
		};
		COMMIT TRANSACTION;
	`, map[string]any{"batch": batch})
	return err
}

func orEmpty(repos []models.Repo) []models.Repo {
	if repos == nil {
		return []models.Repo{}
	}
	return repos
}

// GetRepo retrieves a repository by its GitHub id.
// Returns nil if not found.
func (c *Client) GetRepo(ctx context.Context, repoID int64) (*models.Repo, error) {
	start := time.Now()
	defer func() { c.metrics.RecordTiming(metrics.OpDBQuery, time.Since(start)) }()

	results, err := surrealdb.Query[[]models.Repo](ctx, c.db, `
		SELECT * FROM type::record("repo", $id)
	`, map[string]any{"id": repoID})
	if err != nil {
		return nil, fmt.Errorf("get repo: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ListRepos returns repositories ordered by starred_at descending. limit <= 0
// returns everything.
func (c *Client) ListRepos(ctx context.Context, limit int) ([]models.Repo, error) {
	start := time.Now()
	defer func() { c.metrics.RecordTiming(metrics.OpDBQuery, time.Since(start)) }()

	sql := "SELECT * FROM repo ORDER BY starred_at DESC"
	vars := map[string]any{}
	if limit > 0 {
		sql += " LIMIT $limit"
		vars["limit"] = limit
	}

	results, err := surrealdb.Query[[]models.Repo](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Repo{}, nil
	}
	return (*results)[0].Result, nil
}

// SearchFilter narrows a repository search. Zero values mean "no filter";
// pointer fields distinguish unset from false/zero.
type SearchFilter struct {
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

// SearchRepos performs a filtered substring search over name, full name, and
// description. Returns one page plus the total match count.
func (c *Client) SearchRepos(ctx context.Context, f SearchFilter) ([]models.Repo, int, error) {
	start := time.Now()
	defer func() { c.metrics.RecordTiming(metrics.OpDBSearch, time.Since(start)) }()

	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 30
	}

	var clauses []string
	vars := map[string]any{}

	if f.Query != "" {
		clauses = append(clauses, `(string::contains(string::lowercase(name), $q)
			OR string::contains(string::lowercase(full_name), $q)
			OR string::contains(string::lowercase(description ?? ""), $q))`)
		vars["q"] = strings.ToLower(f.Query)
	}
	if f.Language != "" {
		clauses = append(clauses, "string::lowercase(language ?? '') = $language")
		vars["language"] = strings.ToLower(f.Language)
	}
	if f.Owner != "" {
		clauses = append(clauses, "string::lowercase(owner_login) = $owner")
		vars["owner"] = strings.ToLower(f.Owner)
	}
	if f.MinStars != nil {
		clauses = append(clauses, "stargazers_count >= $min_stars")
		vars["min_stars"] = *f.MinStars
	}
	if f.MaxStars != nil {
		clauses = append(clauses, "stargazers_count <= $max_stars")
		vars["max_stars"] = *f.MaxStars
	}
	if f.HasTopics {
		clauses = append(clauses, `topics != "[]"`)
	}
	if f.IsFork != nil {
		clauses = append(clauses, "is_fork = $is_fork")
		vars["is_fork"] = *f.IsFork
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	countSQL := fmt.Sprintf("SELECT count() AS total FROM repo %s GROUP ALL", where)
	counts, err := surrealdb.Query[[]struct {
		Total int `json:"total"`
	}](ctx, c.db, countSQL, vars)
	if err != nil {
		return nil, 0, fmt.Errorf("count search: %w", err)
	}
	total := 0
	if counts != nil && len(*counts) > 0 && len((*counts)[0].Result) > 0 {
		total = (*counts)[0].Result[0].Total
	}

	pageSQL := fmt.Sprintf(`
		SELECT * FROM repo %s
		ORDER BY starred_at DESC
		LIMIT $limit START $start
	`, where)
	vars["limit"] = f.PerPage
	vars["start"] = (f.Page - 1) * f.PerPage

	results, err := surrealdb.Query[[]models.Repo](ctx, c.db, pageSQL, vars)
	if err != nil {
		return nil, 0, fmt.Errorf("search repos: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Repo{}, total, nil
	}
	return (*results)[0].Result, total, nil
}

// GetLanguages returns distinct languages with repository counts, most common
// first. Repositories without a language are excluded.
func (c *Client) GetLanguages(ctx context.Context) ([]models.LanguageCount, error) {
	results, err := surrealdb.Query[[]models.LanguageCount](ctx, c.db, `
		SELECT language, count() AS count FROM repo
		WHERE language != NONE
		GROUP BY language ORDER BY count DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("get languages: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.LanguageCount{}, nil
	}
	return (*results)[0].Result, nil
}

// OwnerCount is one entry of the owner statistics.
type OwnerCount struct {
	Owner string `json:"owner"`
	Count int    `json:"count"`
}

// GetOwners returns distinct repository owners with counts, most starred-from
// first.
func (c *Client) GetOwners(ctx context.Context) ([]OwnerCount, error) {
	results, err := surrealdb.Query[[]OwnerCount](ctx, c.db, `
		SELECT owner_login AS owner, count() AS count FROM repo
		GROUP BY owner ORDER BY count DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("get owners: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []OwnerCount{}, nil
	}
	return (*results)[0].Result, nil
}

// GetRepoStats summarizes the mirrored collection: totals plus the ten most
// common languages.
func (c *Client) GetRepoStats(ctx context.Context) (*models.RepoStats, error) {
	totals, err := surrealdb.Query[[]struct {
		Repos int   `json:"repos"`
		Stars int64 `json:"stars"`
		Forks int64 `json:"forks"`
	}](ctx, c.db, `
		SELECT count() AS repos,
			math::sum(stargazers_count) AS stars,
			math::sum(forks_count) AS forks
		FROM repo GROUP ALL
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("repo stats: %w", err)
	}

	stats := &models.RepoStats{TopLanguages: []models.LanguageCount{}}
	if totals != nil && len(*totals) > 0 && len((*totals)[0].Result) > 0 {
		t := (*totals)[0].Result[0]
		stats.TotalRepos = t.Repos
		stats.TotalStars = t.Stars
		stats.TotalForks = t.Forks
	}

	languages, err := c.GetLanguages(ctx)
	if err != nil {
		return nil, err
	}
	if len(languages) > 10 {
		languages = languages[:10]
	}
	stats.TopLanguages = languages
	return stats, nil
}

// CountRepos returns the number of mirrored repositories.
func (c *Client) CountRepos(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]struct {
		Total int `json:"total"`
	}](ctx, c.db, `SELECT count() AS total FROM repo GROUP ALL`, nil)
	if err != nil {
		return 0, fmt.Errorf("count repos: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Total, nil
}

// DeleteAllRepos removes every repository record and returns the count
// deleted. README records and the vector index are untouched; callers wanting
// a full reset wipe those separately.
func (c *Client) DeleteAllRepos(ctx context.Context) (int, error) {
	count, err := c.CountRepos(ctx)
	if err != nil {
		return 0, err
	}

	if _, err := surrealdb.Query[any](ctx, c.db, `DELETE repo`, nil); err != nil {
		return 0, fmt.Errorf("delete repos: %w", err)
	}
	return count, nil
}
