package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukaswerner/starmirror/internal/db"
	"github.com/lukaswerner/starmirror/internal/models"
)

// RepoLister fetches the full starred listing from the remote API.
type RepoLister interface {
	ListStarred(ctx context.Context, username string) ([]models.Repo, error)
}

// RepoWriter persists repository records in bulk.
type RepoWriter interface {
	BulkUpsertRepos(ctx context.Context, repos []models.Repo, batchSize int, fast bool) (*db.BulkResult, error)
}

// SyncResult summarizes one mirror run.
type SyncResult struct {
	Fetched    int           `json:"fetched"`
	Processed  int           `json:"processed"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	SplitExact bool          `json:"split_exact"`
	Batches    int           `json:"batches"`
	Duration   time.Duration `json:"-"`
}

// SyncService mirrors the starred listing into the repository store.
type SyncService struct {
	lister    RepoLister
	store     RepoWriter
	username  string
	batchSize int
	fast      bool
}

// NewSyncService creates a sync service. username empty means the
// authenticated user.
func NewSyncService(lister RepoLister, store RepoWriter, username string, batchSize int, fast bool) *SyncService {
	return &SyncService{
		lister:    lister,
		store:     store,
		username:  username,
		batchSize: batchSize,
		fast:      fast,
	}
}

// Run fetches the complete starred listing and writes it wholesale. Every
// stored record gets the same synced_at stamp for the run.
func (s *SyncService) Run(ctx context.Context) (*SyncResult, error) {
	start := time.Now()

	repos, err := s.lister.ListStarred(ctx, s.username)
	if err != nil {
		return nil, fmt.Errorf("list starred: %w", err)
	}

	syncedAt := time.Now().UTC()
	for i := range repos {
		repos[i].SyncedAt = &syncedAt
	}

	result, err := s.store.BulkUpsertRepos(ctx, repos, s.batchSize, s.fast)
	if err != nil {
		// A mid-run batch failure still committed earlier batches; report
		// what landed alongside the error.
		if result != nil {
			slog.Warn("sync aborted mid-run", "processed", result.Processed, "batches", result.Batches, "error", err)
		}
		return nil, fmt.Errorf("store repos: %w", err)
	}

	out := &SyncResult{
		Fetched:    len(repos),
		Processed:  result.Processed,
		Created:    result.Created,
		Updated:    result.Updated,
		SplitExact: result.SplitExact,
		Batches:    result.Batches,
		Duration:   time.Since(start),
	}
	slog.Info("sync complete",
		"fetched", out.Fetched, "created", out.Created, "updated", out.Updated,
		"batches", out.Batches, "duration_ms", out.Duration.Milliseconds())
	return out, nil
}
