// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.lore/config.yaml, or ./config.yaml)
//  3. Default values
//
// Sensitive values (API keys, the Supabase service key, the Postgres
// password) come from the environment only and are never written to disk.
// Validation is fail-fast: Load returns an error before any component sees a
// bad value.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates the Gemini API key is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates an empty or malformed model name.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates a temperature outside [0, 2].
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidDimension indicates a non-positive embedding dimension.
	ErrInvalidDimension = errors.New("invalid embedder dimension")

	// ErrInvalidRetrieveK indicates a non-positive retrieval count.
	ErrInvalidRetrieveK = errors.New("invalid retrieve_k")

	// ErrInvalidMinScore indicates a similarity floor outside [-1, 1].
	ErrInvalidMinScore = errors.New("invalid min_score")

	// ErrInvalidChunking indicates chunk size and overlap that cannot make
	// forward progress.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidBudget indicates a non-positive token budget.
	ErrInvalidBudget = errors.New("invalid token budget")

	// ErrInvalidStorageBackend indicates an unknown storage backend name.
	ErrInvalidStorageBackend = errors.New("invalid storage backend")

	// ErrMissingSupabaseCredentials indicates the Supabase backend is
	// selected without URL or key.
	ErrMissingSupabaseCredentials = errors.New("missing Supabase credentials")

	// ErrInvalidPostgresPort indicates a Postgres port outside 1..65535.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")
)

// Storage backend identifiers used in Config.StorageBackend.
const (
	BackendSupabase = "supabase"
	BackendFS       = "fs"
)

// Config stores application configuration. Sensitive fields are env-only.
type Config struct {
	// Generation
	ModelName       string  `mapstructure:"model_name"`
	Temperature     float32 `mapstructure:"temperature"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens"`
	MaxRetries      int     `mapstructure:"max_retries"`
	RequestsPerMin  int     `mapstructure:"requests_per_minute"`
	GeminiAPIKey    string  `mapstructure:"gemini_api_key"` // SENSITIVE: env only

	// Embedding
	EmbedderModel     string `mapstructure:"embedder_model"`
	EmbedderDimension int    `mapstructure:"embedder_dimension"`

	// Retrieval and assembly
	RetrieveK     int     `mapstructure:"retrieve_k"`
	MinScore      float32 `mapstructure:"min_score"`
	ChunkSize     int     `mapstructure:"chunk_size"`
	ChunkOverlap  int     `mapstructure:"chunk_overlap"`
	ContextBudget int     `mapstructure:"context_budget"`
	HistoryBudget int     `mapstructure:"history_budget"`
	MaxTurns      int     `mapstructure:"max_turns"`

	// Snapshot storage
	StorageBackend string `mapstructure:"storage_backend"` // "supabase" or "fs"
	SupabaseURL    string `mapstructure:"supabase_url"`
	SupabaseKey    string `mapstructure:"supabase_key"` // SENSITIVE: env only
	Bucket         string `mapstructure:"bucket"`
	SnapshotKey    string `mapstructure:"snapshot_key"`
	LocalPath      string `mapstructure:"local_path"` // Local working copy; empty disables
	FSRoot         string `mapstructure:"fs_root"`    // Root directory for the fs backend

	// Turn audit log (optional)
	AuditLog         bool   `mapstructure:"audit_log"`
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: env only
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Crawler
	CrawlMaxDepth         int `mapstructure:"crawl_max_depth"`
	CrawlMaxPages         int `mapstructure:"crawl_max_pages"`
	CrawlParallelism      int `mapstructure:"crawl_parallelism"`
	CrawlDelayMS          int `mapstructure:"crawl_delay_ms"`
	CrawlMinContentLength int `mapstructure:"crawl_min_content_length"`

	// Tracing
	TracingEnabled  bool   `mapstructure:"tracing_enabled"`
	TracingEndpoint string `mapstructure:"tracing_endpoint"`
	ServiceName     string `mapstructure:"service_name"`
	Environment     string `mapstructure:"environment"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load reads configuration with priority env > file > defaults and validates
// it before returning.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".lore")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual Postgres fields.
	if err := cfg.parseDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every default value.
func setDefaults(v *viper.Viper, configDir string) {
	// Generation
	v.SetDefault("model_name", "gemini-2.0-flash")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_output_tokens", 2048)
	v.SetDefault("max_retries", 3)
	v.SetDefault("requests_per_minute", 30)

	// Embedding
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("embedder_dimension", 768)

	// Retrieval and assembly
	v.SetDefault("retrieve_k", 4)
	v.SetDefault("min_score", 0.0)
	v.SetDefault("chunk_size", 500)
	v.SetDefault("chunk_overlap", 100)
	v.SetDefault("context_budget", 3000)
	v.SetDefault("history_budget", 800)
	v.SetDefault("max_turns", 8)

	// Snapshot storage
	v.SetDefault("storage_backend", BackendSupabase)
	v.SetDefault("bucket", "vectorstore-bucket")
	v.SetDefault("snapshot_key", "vectorstore/index.json")
	v.SetDefault("local_path", filepath.Join(configDir, "snapshots"))
	v.SetDefault("fs_root", filepath.Join(configDir, "objects"))

	// Turn audit log
	v.SetDefault("audit_log", false)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "lore")
	v.SetDefault("postgres_db_name", "lore")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Crawler
	v.SetDefault("crawl_max_depth", 2)
	v.SetDefault("crawl_max_pages", 50)
	v.SetDefault("crawl_parallelism", 2)
	v.SetDefault("crawl_delay_ms", 500)
	v.SetDefault("crawl_min_content_length", 200)

	// Tracing
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_endpoint", "localhost:4318")
	v.SetDefault("service_name", "lore")
	v.SetDefault("environment", "dev")

	// Logging
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds the env-only secrets and common overrides. Binds of
// hardcoded keys cannot fail; a failure here is a bug, so it panics.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("supabase_url", "SUPABASE_URL")
	mustBind("supabase_key", "SUPABASE_KEY")
	mustBind("postgres_password", "POSTGRES_PASSWORD")

	mustBind("model_name", "LORE_MODEL_NAME")
	mustBind("embedder_model", "LORE_EMBEDDER_MODEL")
	mustBind("storage_backend", "LORE_STORAGE_BACKEND")
	mustBind("log_level", "LORE_LOG_LEVEL")
	mustBind("tracing_endpoint", "LORE_TRACING_ENDPOINT")
}

// parseDatabaseURL splits a postgres:// URL into the individual fields.
// An empty input leaves the config untouched.
func (c *Config) parseDatabaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", port, err)
		}
		c.PostgresPort = p
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := filepath.Base(u.Path); db != "" && db != "/" && db != "." {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// DatabaseURL renders the Postgres connection URL from the individual
// fields.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	if c.PostgresUser != "" {
		if c.PostgresPassword != "" {
			u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
		} else {
			u.User = url.User(c.PostgresUser)
		}
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
