package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"docchat"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"docchat"`

	// Vector index backend: "weaviate" or "memory". The memory backend keeps
	// the whole index in-process; useful for local runs and tests.
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"weaviate"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	GenerationModel string `envconfig:"GENERATION_MODEL" default:"gemini-2.0-flash"`
	EmbeddingDim    int    `envconfig:"EMBEDDING_DIM" default:"768"`

	// Ingestion
	ChunkSize            int     `envconfig:"CHUNK_SIZE" default:"1400"`
	ChunkOverlap         float64 `envconfig:"CHUNK_OVERLAP" default:"0.15"`
	MaxEmbedBatch        int     `envconfig:"MAX_EMBED_BATCH" default:"16"`
	IngestionConcurrency int     `envconfig:"INGESTION_CONCURRENCY" default:"4"`
	IngestMaxAttempts    int     `envconfig:"INGEST_MAX_ATTEMPTS" default:"5"`
	MigrationPath        string  `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Retrieval
	TopK           int     `envconfig:"TOP_K" default:"5"`
	MinScore       float64 `envconfig:"MIN_SCORE" default:"0.35"`
	DedupeOverlap  float64 `envconfig:"DEDUPE_OVERLAP" default:"0.5"`
	RewriteQueries bool    `envconfig:"REWRITE_QUERIES" default:"true"`

	// Provider throttling
	EmbedRatePerSec  float64 `envconfig:"EMBED_RATE_PER_SEC" default:"5"`
	EmbedRateBurst   int     `envconfig:"EMBED_RATE_BURST" default:"10"`
	EmbedMaxAttempts int     `envconfig:"EMBED_MAX_ATTEMPTS" default:"3"`

	// Session memory
	HistoryBudgetChars int    `envconfig:"HISTORY_BUDGET_CHARS" default:"6000"`
	HistoryPolicy      string `envconfig:"HISTORY_POLICY" default:"truncate"`    // truncate | summarize
	SessionBusyPolicy  string `envconfig:"SESSION_BUSY_POLICY" default:"reject"` // reject | queue

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"10"`
	UploadDir       string `envconfig:"DOCCHAT_UPLOAD_DIR" default:"./uploads"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root.
	// Ignore errors, as env vars might be set in the shell.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: EMBEDDING_DIM must be positive", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrMissingRequired)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= 1 {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0,1)", ErrMissingRequired)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: TOP_K must be positive", ErrMissingRequired)
	}
	switch c.VectorBackend {
	case "weaviate", "memory":
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND must be weaviate or memory", ErrMissingRequired)
	}
	switch c.HistoryPolicy {
	case "truncate", "summarize":
	default:
		return fmt.Errorf("%w: HISTORY_POLICY must be truncate or summarize", ErrMissingRequired)
	}
	switch c.SessionBusyPolicy {
	case "reject", "queue":
	default:
		return fmt.Errorf("%w: SESSION_BUSY_POLICY must be reject or queue", ErrMissingRequired)
	}
	return nil
}
