package db

// schemaTemplate contains the database schema initialization SQL. The single
// %d is the HNSW embedding dimension.
const schemaTemplate = `
    -- ==========================================================================
    -- REPO TABLE (mirrored starred repositories)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS repo SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS repo_id ON repo TYPE int;
    DEFINE FIELD IF NOT EXISTS name ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS full_name ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON repo TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS html_url ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS clone_url ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS ssh_url ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS language ON repo TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS stargazers_count ON repo TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS forks_count ON repo TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS open_issues_count ON repo TYPE int DEFAULT 0;
    -- topics serialized as a JSON string array, matching the search contract
    DEFINE FIELD IF NOT EXISTS topics ON repo TYPE string DEFAULT "[]";
    DEFINE FIELD IF NOT EXISTS owner_login ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS owner_avatar_url ON repo TYPE string;
    DEFINE FIELD IF NOT EXISTS starred_at ON repo TYPE datetime;
    DEFINE FIELD IF NOT EXISTS created_at ON repo TYPE datetime;
    DEFINE FIELD IF NOT EXISTS updated_at ON repo TYPE datetime;
    DEFINE FIELD IF NOT EXISTS is_fork ON repo TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS is_private ON repo TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS size ON repo TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS default_branch ON repo TYPE string DEFAULT "main";
    DEFINE FIELD IF NOT EXISTS license_name ON repo TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS license_key ON repo TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS synced_at ON repo TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS repo_repo_id ON repo FIELDS repo_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS repo_owner ON repo FIELDS owner_login;
    DEFINE INDEX IF NOT EXISTS repo_language ON repo FIELDS language;
    DEFINE INDEX IF NOT EXISTS repo_starred_at ON repo FIELDS starred_at;

    -- ==========================================================================
    -- README TABLE (enrichment records, one per repo)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS readme SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS repo_id ON readme TYPE int;
    DEFINE FIELD IF NOT EXISTS content ON readme TYPE string;
    DEFINE FIELD IF NOT EXISTS content_hash ON readme TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding_id ON readme TYPE string;
    DEFINE FIELD IF NOT EXISTS processed_at ON readme TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON readme TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS readme_repo_id ON readme FIELDS repo_id UNIQUE;

    -- ==========================================================================
    -- README_INDEX TABLE (vector index backing semantic search)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS readme_index SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS repo_id ON readme_index TYPE int;
    DEFINE FIELD IF NOT EXISTS content ON readme_index TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON readme_index TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS metadata ON readme_index TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS updated_at ON readme_index TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS readme_index_repo_id ON readme_index FIELDS repo_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS readme_index_embedding ON readme_index FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
`
