package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"8080"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Database settings
	Database DatabaseConfig

	// Storage (MinIO/S3) settings for PDFs and TEI documents
	Storage StorageConfig

	// GROBID PDF parsing service
	Grobid GrobidConfig

	// LLM configuration (extraction and linking)
	LLM LLMConfig

	// Embeddings configuration
	Embeddings EmbeddingsConfig

	// Worker pool and job queue settings
	Worker WorkerConfig

	// Linking engine settings
	Linking LinkingConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"litgraph"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"litgraph"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// StorageConfig holds storage (MinIO/S3) configuration
type StorageConfig struct {
	Endpoint        string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	AccessKeyID     string `env:"MINIO_ACCESS_KEY" envDefault:""`
	SecretAccessKey string `env:"MINIO_SECRET_KEY" envDefault:""`
	Bucket          string `env:"MINIO_BUCKET" envDefault:"litgraph"`
	UseSSL          bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	Region          string `env:"MINIO_REGION" envDefault:"us-east-1"`
}

// IsConfigured returns true if storage is configured
func (s *StorageConfig) IsConfigured() bool {
	return s.Endpoint != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// GrobidConfig holds GROBID parsing service configuration
type GrobidConfig struct {
	// ServiceURL is the GROBID service base URL
	ServiceURL string `env:"GROBID_URL" envDefault:"http://localhost:8070"`
	// Timeout is the per-request timeout
	Timeout time.Duration `env:"GROBID_TIMEOUT" envDefault:"5m"`
	// ConsolidateHeader enables header consolidation against CrossRef
	ConsolidateHeader bool `env:"GROBID_CONSOLIDATE_HEADER" envDefault:"false"`
}

// LLMConfig holds LLM (chat completion) configuration
type LLMConfig struct {
	// GoogleAPIKey authenticates against the Gemini API
	GoogleAPIKey string `env:"GOOGLE_API_KEY" envDefault:""`

	// Model is the chat model name
	Model string `env:"LLM_MODEL" envDefault:"gemini-3-flash-preview"`

	// MaxOutputTokens caps completion length
	MaxOutputTokens int `env:"LLM_MAX_OUTPUT_TOKENS" envDefault:"65536"`

	// Temperature for completions (0.0-1.0)
	Temperature float64 `env:"LLM_TEMPERATURE" envDefault:"0"`

	// Timeout per request; linking calls can be slow
	Timeout time.Duration `env:"LLM_TIMEOUT" envDefault:"600s"`

	// NetworkDisabled disables LLM calls (for testing)
	NetworkDisabled bool `env:"LLM_NETWORK_DISABLED" envDefault:"false"`
}

// IsEnabled returns true if the LLM is configured
func (l *LLMConfig) IsEnabled() bool {
	if l.NetworkDisabled {
		return false
	}
	return l.GoogleAPIKey != ""
}

// EmbeddingsConfig holds embedding service configuration
type EmbeddingsConfig struct {
	// GoogleAPIKey authenticates against the Gemini API
	GoogleAPIKey string `env:"GOOGLE_API_KEY" envDefault:""`

	// Model is the embedding model name
	Model string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-004"`

	// Dimension of produced vectors (768 for text-embedding-004)
	Dimension int `env:"EMBEDDING_DIMENSION" envDefault:"768"`

	// NetworkDisabled disables embedding calls (for testing)
	NetworkDisabled bool `env:"EMBEDDINGS_NETWORK_DISABLED" envDefault:"false"`
}

// IsEnabled returns true if embeddings are configured
func (e *EmbeddingsConfig) IsEnabled() bool {
	if e.NetworkDisabled {
		return false
	}
	return e.GoogleAPIKey != ""
}

// WorkerConfig holds worker pool and job queue settings
type WorkerConfig struct {
	// Count is the number of concurrent workers
	Count int `env:"WORKER_COUNT" envDefault:"4"`
	// PollInterval is the sleep between claims when the queue is empty
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"5s"`
	// StaleAfter is how long a running job may sit unclaimed-by-a-live-worker
	// before the sweeper returns it to pending
	StaleAfter time.Duration `env:"WORKER_STALE_AFTER" envDefault:"30m"`
	// MaxAttempts is the default attempt budget for new jobs
	MaxAttempts int `env:"JOB_MAX_ATTEMPTS" envDefault:"3"`
	// RetryBaseDelay is the base of the retry backoff curve
	RetryBaseDelay time.Duration `env:"JOB_RETRY_BASE_DELAY" envDefault:"5s"`
	// RetryMaxDelay caps the retry backoff
	RetryMaxDelay time.Duration `env:"JOB_RETRY_MAX_DELAY" envDefault:"10m"`
}

// LinkingConfig holds linking engine settings
type LinkingConfig struct {
	// SimilarityThreshold is the cosine score a claim pair must reach to
	// become a claim-to-claim candidate
	SimilarityThreshold float64 `env:"LINK_SIMILARITY_THRESHOLD" envDefault:"0.35"`
	// DebounceWindow suppresses duplicate LINK_LIBRARY triggers
	DebounceWindow time.Duration `env:"LINK_DEBOUNCE_WINDOW" envDefault:"3m"`
	// C2CConcurrency bounds in-flight pairwise LLM calls
	C2CConcurrency int `env:"LINK_C2C_CONCURRENCY" envDefault:"200"`
	// C2OConcurrency bounds in-flight claim-to-observation LLM calls
	C2OConcurrency int `env:"LINK_C2O_CONCURRENCY" envDefault:"100"`
	// BatchSize is the number of input claims persisted per progress checkpoint
	BatchSize int `env:"LINK_BATCH_SIZE" envDefault:"20"`
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.Int("workers", cfg.Worker.Count),
	)

	return cfg, nil
}
