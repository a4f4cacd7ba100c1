// Package models defines the data types shared across starmirror packages.
package models

import "time"

// Repo is one mirrored starred repository. RepoID is the immutable GitHub
// repository id and is the record key; every sync overwrites all other fields
// wholesale (last-write-wins, no field-level merge).
type Repo struct {
	RepoID          int64      `json:"repo_id"`
	Name            string     `json:"name"`
	FullName        string     `json:"full_name"`
	Description     *string    `json:"description,omitempty"`
	HTMLURL         string     `json:"html_url"`
	CloneURL        string     `json:"clone_url"`
	SSHURL          string     `json:"ssh_url"`
	Language        *string    `json:"language,omitempty"`
	StargazersCount int        `json:"stargazers_count"`
	ForksCount      int        `json:"forks_count"`
	OpenIssuesCount int        `json:"open_issues_count"`
	Topics          string     `json:"topics"`
	OwnerLogin      string     `json:"owner_login"`
	OwnerAvatarURL  string     `json:"owner_avatar_url"`
	StarredAt       time.Time  `json:"starred_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	IsFork          bool       `json:"is_fork"`
	IsPrivate       bool       `json:"is_private"`
	Size            int        `json:"size"`
	DefaultBranch   string     `json:"default_branch"`
	LicenseName     *string    `json:"license_name,omitempty"`
	LicenseKey      *string    `json:"license_key,omitempty"`
	SyncedAt        *time.Time `json:"synced_at,omitempty"`
}

// Readme is the enrichment record for one repository. At most one exists per
// RepoID. ContentHash always reflects the content currently stored in the
// vector index under EmbeddingID: the index is written first, the record
// second, so a crash leaves the record absent or stale but never pointing at
// a vector that no longer matches.
type Readme struct {
	RepoID      int64     `json:"repo_id"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	EmbeddingID string    `json:"embedding_id"`
	ProcessedAt time.Time `json:"processed_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LanguageCount is one entry of the top-language statistics.
type LanguageCount struct {
	Language string `json:"language"`
	Count    int    `json:"count"`
}

// RepoStats summarizes the mirrored collection.
type RepoStats struct {
	TotalRepos   int             `json:"total_repos"`
	TotalStars   int64           `json:"total_stars"`
	TotalForks   int64           `json:"total_forks"`
	TopLanguages []LanguageCount `json:"top_languages"`
}

// ReadmeStats summarizes enrichment coverage.
type ReadmeStats struct {
	TotalRepos      int    `json:"total_repos"`
	ProcessedRepos  int    `json:"processed_repos"`
	VectorDocuments int    `json:"vector_documents"`
	ProcessingRate  string `json:"processing_rate"`
}
