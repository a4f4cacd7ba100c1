// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lukaswerner/starmirror/internal/models"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx, 384); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

// mustWipe resets all tables so counting tests start from zero.
func mustWipe(t *testing.T) {
	t.Helper()
	if err := testDB.WipeData(context.Background()); err != nil {
		t.Fatalf("WipeData failed: %v", err)
	}
}

func makeRepo(id int64, name, language string, stars int) models.Repo {
	lang := language
	desc := "Description of " + name
	return models.Repo{
		RepoID:          id,
		Name:            name,
		FullName:        "octocat/" + name,
		Description:     &desc,
		HTMLURL:         "https://github.com/octocat/" + name,
		CloneURL:        "https://github.com/octocat/" + name + ".git",
		SSHURL:          "git@github.com:octocat/" + name + ".git",
		Language:        &lang,
		StargazersCount: stars,
		ForksCount:      stars / 10,
		Topics:          "[]",
		OwnerLogin:      "octocat",
		OwnerAvatarURL:  "https://example.com/a.png",
		StarredAt:       time.Now().UTC().Add(-time.Duration(id) * time.Minute),
		CreatedAt:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Now().UTC(),
		DefaultBranch:   "main",
	}
}

// =============================================================================
// REPO UPSERT TESTS
// =============================================================================

func TestBulkUpsertReposSafeSplit(t *testing.T) {
	mustWipe(t)
	ctx := context.Background()

	repos := []models.Repo{
		makeRepo(1, "alpha", "Go", 100),
		makeRepo(2, "beta", "Python", 50),
		makeRepo(3, "gamma", "Rust", 25),
	}

	result, err := testDB.BulkUpsertRepos(ctx, repos, 100, false)
	if err != nil {
		t.Fatalf("BulkUpsertRepos failed: %v", err)
	}
	if result.Processed != 3 || result.Created != 3 || result.Updated != 0 {
		t.Errorf("First run: expected 3 created, got %+v", result)
	}
	if !result.SplitExact {
		t.Error("Safe path should report an exact split")
	}

	// Re-run with one new repo: 3 updates, 1 create.
	repos = append(repos, makeRepo(4, "delta", "Go", 10))
	result, err = testDB.BulkUpsertRepos(ctx, repos, 100, false)
	if err != nil {
		t.Fatalf("Second BulkUpsertRepos failed: %v", err)
	}
	if result.Created != 1 || result.Updated != 3 {
		t.Errorf("Second run: expected 1 created / 3 updated, got %+v", result)
	}

	count, err := testDB.CountRepos(ctx)
	if err != nil {
		t.Fatalf("CountRepos failed: %v", err)
	}
	if count != 4 {
		t.Errorf("Expected 4 repos, got %d", count)
	}
}

func TestBulkUpsertReposOverwritesWholesale(t *testing.T) {
	mustWipe(t)
	ctx := context.Background()

	repo := makeRepo(10, "evolving", "Go", 100)
	if _, err := testDB.BulkUpsertRepos(ctx, []models.Repo{repo}, 100, false); err != nil {
		t.Fatalf("initial upsert failed: %v", err)
	}

	repo.StargazersCount = 250
	newDesc := "Rewritten description"
	repo.Description = &newDesc
	if _, err := testDB.BulkUpsertRepos(ctx, []models.Repo{repo}, 100, false); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := testDB.GetRepo(ctx, 10)
	if err != nil {
		t.Fatalf("GetRepo failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetRepo returned nil")
	}
	if got.StargazersCount != 250 {
		t.Errorf("Expected 250 stars after re-sync, got %d", got.StargazersCount)
	}
	if got.Description == nil || *got.Description != newDesc {
		t.Errorf("Expected overwritten description, got %v", got.Description)
	}
}

func TestBulkUpsertReposBatching(t *testing.T) {
	mustWipe(t)
	ctx := context.Background()

	repos := make([]models.Repo, 250)
	for i := range repos {
		repos[i] = makeRepo(int64(1000+i), fmt.Sprintf("bulk-%d", i), "Go", i)
	}

	result, err := testDB.BulkUpsertRepos(ctx, repos, 100, false)
	if err != nil {
		t.Fatalf("BulkUpsertRepos failed: %v", err)
	}
	if result.Batches != 3 {
		t.Errorf("250 repos at batch size 100: expected 3 batches, got %d", result.Batches)
	}
	if result.Processed != 250 {
		t.Errorf("Expected 250 processed, got %d", result.Processed)
	}

	count, err := testDB.CountRepos(ctx)
	if err != nil {
		t.Fatalf("CountRepos failed: %v", err)
	}
	if count != 250 {
		t.Errorf("Expected 250 repos stored, got %d", count)
	}
}

func TestBulkUpsertReposFastPath(t *testing.T) {
	mustWipe(t)
	ctx := context.Background()

	repos := []models.Repo{
		makeRepo(20, "fast-a", "Go", 1),
		makeRepo(21, "fast-b", "Go", 2),
	}

	result, err := testDB.BulkUpsertRepos(ctx, repos, 100, true)
	if err != nil {
		t.Fatalf("fast BulkUpsertRepos failed: %v", err)
	}
	if result.Processed != 2 {
		t.Errorf("Expected 2 processed, got %d", result.Processed)
	}
	if result.SplitExact {
		t.Error("Fast path should report an inexact created/updated split")
	}

	// Idempotent: a second fast run leaves exactly 2 records.
	if _, err := testDB.BulkUpsertRepos(ctx, repos, 100, true); err != nil {
		t.Fatalf("second fast BulkUpsertRepos failed: %v", err)
	}
	count, err := testDB.CountRepos(ctx)
	if err != nil {
		t.Fatalf("CountRepos failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 repos after idempotent re-run, got %d", count)
	}
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestGetRepoNotFound(t *testing.T) {
	repo, err := testDB.GetRepo(context.Background(), 999999999)
	if err != nil {
		t.Fatalf("GetRepo with unknown id should not error: %v", err)
	}
	if repo != nil {
		t.Error("GetRepo with unknown id should return nil")
	}
}

func TestListReposOrderedByStarredAt(t *testing.T) {
	mustWipe(t)
	ctx := context.Background()

	// makeRepo sets starred_at further in the past for larger ids.
	repos := []models.Repo{
		makeRepo(31, "older", "Go", 1),
		makeRepo(30, "newer", "Go", 1),
		makeRepo(32, "oldest", "Go", 1),
	}
	if _, err := testDB.BulkUpsertRepos(ctx, repos, 100, false); err != nil {
		t.Fatalf("BulkUpsertRepos failed: %v", err)
	}

	listed, err := testDB.ListRepos(ctx, 0)
	if err != nil {
		t.Fatalf("ListRepos failed: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("Expected 3 repos, got %d", len(listed))
	}
	if listed[0].Name != "newer" || listed[2].Name != "oldest" {
		t.Errorf("Expected starred_at DESC order, got %s, %s, %s",
			listed[0].Name, listed[1].Name, listed[2].Name)
	}

	limited, err := testDB.ListRepos(ctx, 2)
	if err != nil {
		t.Fatalf("ListRepos with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 repos with limit, got %d", len(limited))
	}
}

func TestSearchRepos(t *testing.T) {
	mustWipe(t)
	ctx := context.Background()

	goRepo := makeRepo(40, "gin-router", "Go", 500)
	pyRepo := makeRepo(41, "flask-helper", "Python", 50)
	forkRepo := makeRepo(42, "gin-fork", "Go", 5)
	forkRepo.IsFork = true
	topicRepo := makeRepo(43, "tagged", "Go", 80)
	topicRepo.Topics = `["web","http"]`

	repos := []models.Repo{goRepo, pyRepo, forkRepo, topicRepo}
	if _, err := testDB.BulkUpsertRepos(ctx, repos, 100, false); err != nil {
		t.Fatalf("BulkUpsertRepos failed: %v", err)
	}

	// Case-insensitive substring match on name.
	results, total, err := testDB.SearchRepos(ctx, SearchFilter{Query: "GIN"})
	if err != nil {
		t.Fatalf("SearchRepos failed: %v", err)
	}
	if total != 2 || len(results) != 2 {
		t.Errorf("Expected 2 gin matches, got total=%d len=%d", total, len(results))
	}

	// Language filter.
	_, total, err = testDB.SearchRepos(ctx, SearchFilter{Language: "python"})
	if err != nil {
		t.Fatalf("SearchRepos language failed: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected 1 Python repo, got %d", total)
	}

	// Star range.
	minStars := 60
	_, total, err = testDB.SearchRepos(ctx, SearchFilter{MinStars: &minStars})
	if err != nil {
		t.Fatalf("SearchRepos min_stars failed: %v", err)
	}
	if total != 2 {
		t.Errorf("Expected 2 repos with >= 60 stars, got %d", total)
	}

	// Fork filter.
	noForks := false
	_, total, err = testDB.SearchRepos(ctx, SearchFilter{IsFork: &noForks})
	if err != nil {
		t.Fatalf("SearchRepos is_fork failed: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected 3 non-fork repos, got %d", total)
	}

	// Topics filter.
	_, total, err = testDB.SearchRepos(ctx, SearchFilter{HasTopics: true})
	if err != nil {
		t.Fatalf("SearchRepos has_topics failed: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected 1 repo with topics, got %d", total)
	}

	// Pagination: total reflects all matches, page is capped.
	results, total, err = testDB.SearchRepos(ctx, SearchFilter{Page: 1, PerPage: 3})
	if err != nil {
		t.Fatalf("SearchRepos pagination failed: %v", err)
	}
	if total != 4 {
		t.Errorf("Expected total 4, got %d", total)
	}
	if len(results) != 3 {
		t.Errorf("Expected page of 3, got %d", len(results))
	}
	results, _, err = testDB.SearchRepos(ctx, SearchFilter{Page: 2, PerPage: 3})
	if err != nil {
		t.Fatalf("SearchRepos page 2 failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected 1 result on page 2, got %d", len(results))
	}
}

func TestLanguageAndOwnerStats(t *testing.T) {
	mustWipe(t)
	ctx := context.Background()

	repos := []models.Repo{
		makeRepo(50, "a", "Go", 100),
		makeRepo(51, "b", "Go", 200),
		makeRepo(52, "c", "Rust", 10),
	}
	noLang := makeRepo(53, "d", "", 5)
	noLang.Language = nil
	other := makeRepo(54, "e", "Go", 1)
	other.OwnerLogin = "someone-else"
	repos = append(repos, noLang, other)

	if _, err := testDB.BulkUpsertRepos(ctx, repos, 100, false); err != nil {
		t.Fatalf("BulkUpsertRepos failed: %v", err)
	}

	languages, err := testDB.GetLanguages(ctx)
	if err != nil {
		t.Fatalf("GetLanguages failed: %v", err)
	}
	if len(languages) != 2 {
		t.Fatalf("Expected 2 languages (nil excluded), got %d: %v", len(languages), languages)
	}
	if languages[0].Language != "Go" || languages[0].Count != 3 {
		t.Errorf("Expected Go first with count 3, got %+v", languages[0])
	}

	owners, err := testDB.GetOwners(ctx)
	if err != nil {
		t.Fatalf("GetOwners failed: %v", err)
	}
	if len(owners) != 2 {
		t.Fatalf("Expected 2 owners, got %d", len(owners))
	}
	if owners[0].Owner != "octocat" || owners[0].Count != 4 {
		t.Errorf("Expected octocat first with count 4, got %+v", owners[0])
	}

	stats, err := testDB.GetRepoStats(ctx)
	if err != nil {
		t.Fatalf("GetRepoStats failed: %v", err)
	}
	if stats.TotalRepos != 5 {
		t.Errorf("Expected 5 total repos, got %d", stats.TotalRepos)
	}
	if stats.TotalStars != 316 {
		t.Errorf("Expected 316 total stars, got %d", stats.TotalStars)
	}
	if len(stats.TopLanguages) != 2 {
		t.Errorf("Expected 2 top languages, got %d", len(stats.TopLanguages))
	}
}

func TestDeleteAllRepos(t *testing.T) {
	mustWipe(t)
	ctx := context.Background()

	repos := []models.Repo{makeRepo(60, "x", "Go", 1), makeRepo(61, "y", "Go", 2)}
	if _, err := testDB.BulkUpsertRepos(ctx, repos, 100, false); err != nil {
		t.Fatalf("BulkUpsertRepos failed: %v", err)
	}

	deleted, err := testDB.DeleteAllRepos(ctx)
	if err != nil {
		t.Fatalf("DeleteAllRepos failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted, got %d", deleted)
	}

	count, err := testDB.CountRepos(ctx)
	if err != nil {
		t.Fatalf("CountRepos failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 repos after delete, got %d", count)
	}

	// Idempotent on an empty table.
	deleted, err = testDB.DeleteAllRepos(ctx)
	if err != nil {
		t.Fatalf("second DeleteAllRepos failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected 0 deleted on empty table, got %d", deleted)
	}
}

// =============================================================================
// README TESTS
// =============================================================================

func TestUpsertReadmePreservesProcessedAt(t *testing.T) {
	mustWipe(t)
	ctx := context.Background()

	first := models.Readme{
		RepoID:      70,
		Content:     "# First version",
		ContentHash: "hash-v1",
		EmbeddingID: "repo_70",
	}
	if err := testDB.UpsertReadme(ctx, first); err != nil {
		t.Fatalf("UpsertReadme failed: %v", err)
	}

	got, err := testDB.GetReadme(ctx, 70)
	if err != nil {
		t.Fatalf("GetReadme failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetReadme returned nil after upsert")
	}
	if got.ContentHash != "hash-v1" {
		t.Errorf("Expected hash-v1, got %q", got.ContentHash)
	}
	firstProcessed := got.ProcessedAt

	time.Sleep(10 * time.Millisecond)

	second := first
	second.Content = "# Second version"
	second.ContentHash = "hash-v2"
	if err := testDB.UpsertReadme(ctx, second); err != nil {
		t.Fatalf("second UpsertReadme failed: %v", err)
	}

	got, err = testDB.GetReadme(ctx, 70)
	if err != nil {
		t.Fatalf("GetReadme after update failed: %v", err)
	}
	if got.ContentHash != "hash-v2" {
		t.Errorf("Expected hash-v2 after update, got %q", got.ContentHash)
	}
	if !got.ProcessedAt.Equal(firstProcessed) {
		t.Errorf("processed_at should be preserved across updates: first=%v now=%v",
			firstProcessed, got.ProcessedAt)
	}
	if !got.UpdatedAt.After(firstProcessed) {
		t.Errorf("updated_at should advance: %v", got.UpdatedAt)
	}
}

func TestGetReadmeNotFound(t *testing.T) {
	readme, err := testDB.GetReadme(context.Background(), 888888888)
	if err != nil {
		t.Fatalf("GetReadme with unknown id should not error: %v", err)
	}
	if readme != nil {
		t.Error("GetReadme with unknown id should return nil")
	}
}

func TestCountReadmes(t *testing.T) {
	mustWipe(t)
	ctx := context.Background()

	for i := int64(80); i < 83; i++ {
		err := testDB.UpsertReadme(ctx, models.Readme{
			RepoID:      i,
			Content:     "content",
			ContentHash: fmt.Sprintf("hash-%d", i),
			EmbeddingID: fmt.Sprintf("repo_%d", i),
		})
		if err != nil {
			t.Fatalf("UpsertReadme %d failed: %v", i, err)
		}
	}

	count, err := testDB.CountReadmes(ctx)
	if err != nil {
		t.Fatalf("CountReadmes failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 readmes, got %d", count)
	}
}

// =============================================================================
// ERROR WRAPPING TESTS
// =============================================================================

func TestBatchErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := &BatchError{Batch: 2, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("BatchError should unwrap to its inner error")
	}
	if err.Error() != "batch 2: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
