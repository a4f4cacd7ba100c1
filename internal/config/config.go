// Package config loads starmirror configuration from the environment with an
// optional YAML overlay.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider identifies an embedding backend.
type Provider string

const (
	ProviderOllama  Provider = "ollama"
	ProviderOpenAI  Provider = "openai"
	ProviderBedrock Provider = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// GitHub API
	GitHubToken   string
	GitHubBaseURL string
	GitHubUser    string

	// Embedding
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int
	OllamaHost     string
	OpenAIAPIKey   string
	BedrockModel   string
	AWSRegion      string

	// Sync
	SyncBatchSize int
	FastUpsert    bool

	// README enrichment
	ReadmeConcurrency int
	IncrementalLimit  int

	// Server
	ServerPort string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables. When
// STARMIRROR_CONFIG points at a YAML file, its values override the
// environment-derived ones.
func Load() (Config, error) {
	cfg := Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "starmirror"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "mirror"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		GitHubToken:   os.Getenv("GITHUB_TOKEN"),
		GitHubBaseURL: getEnv("GITHUB_API_URL", "https://api.github.com"),
		GitHubUser:    os.Getenv("GITHUB_USERNAME"),

		EmbedProvider:  Provider(getEnv("STARMIRROR_EMBED_PROVIDER", string(ProviderOllama))),
		EmbedModel:     getEnv("STARMIRROR_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("STARMIRROR_EMBED_DIMENSION", 384),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		BedrockModel:   getEnv("STARMIRROR_BEDROCK_MODEL", "amazon.titan-embed-text-v2:0"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),

		SyncBatchSize: getEnvInt("STARMIRROR_SYNC_BATCH_SIZE", 100),
		FastUpsert:    getEnv("STARMIRROR_FAST_UPSERT", "true") == "true",

		ReadmeConcurrency: getEnvInt("STARMIRROR_README_CONCURRENCY", 5),
		IncrementalLimit:  getEnvInt("STARMIRROR_INCREMENTAL_LIMIT", 50),

		ServerPort: getEnv("STARMIRROR_PORT", "8184"),

		LogFile:  getEnv("STARMIRROR_LOG_FILE", "/tmp/starmirror.log"),
		LogLevel: parseLogLevel(getEnv("STARMIRROR_LOG_LEVEL", "INFO")),
	}

	if path := os.Getenv("STARMIRROR_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	return cfg, nil
}

// fileConfig mirrors the YAML overlay. Only set fields override.
type fileConfig struct {
	SurrealDB struct {
		URL       string `yaml:"url"`
		Namespace string `yaml:"namespace"`
		Database  string `yaml:"database"`
		User      string `yaml:"user"`
		Pass      string `yaml:"pass"`
	} `yaml:"surrealdb"`
	GitHub struct {
		Token    string `yaml:"token"`
		Username string `yaml:"username"`
	} `yaml:"github"`
	Embedding struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		Dimension int    `yaml:"dimension"`
	} `yaml:"embedding"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	setIf(&c.SurrealDBURL, fc.SurrealDB.URL)
	setIf(&c.SurrealDBNamespace, fc.SurrealDB.Namespace)
	setIf(&c.SurrealDBDatabase, fc.SurrealDB.Database)
	setIf(&c.SurrealDBUser, fc.SurrealDB.User)
	setIf(&c.SurrealDBPass, fc.SurrealDB.Pass)
	setIf(&c.GitHubToken, fc.GitHub.Token)
	setIf(&c.GitHubUser, fc.GitHub.Username)
	if fc.Embedding.Provider != "" {
		c.EmbedProvider = Provider(fc.Embedding.Provider)
	}
	setIf(&c.EmbedModel, fc.Embedding.Model)
	if fc.Embedding.Dimension > 0 {
		c.EmbedDimension = fc.Embedding.Dimension
	}
	setIf(&c.ServerPort, fc.Server.Port)

	return nil
}

func setIf(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
