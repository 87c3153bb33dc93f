package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"docchat/internal/config"
)

func TestLoadConfig(t *testing.T) {
	// Set env var directly to test envconfig logic
	os.Setenv("DB_HOST", "test-host")
	defer os.Unsetenv("DB_HOST")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	// Create a temp .env file
	content := []byte("DB_HOST=loaded-from-file")
	err := os.WriteFile(".env", content, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(".env")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "weaviate", cfg.VectorBackend)
	assert.Equal(t, 768, cfg.EmbeddingDim)
	assert.Equal(t, 1400, cfg.ChunkSize)
	assert.Equal(t, 0.15, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, "truncate", cfg.HistoryPolicy)
	assert.Equal(t, "reject", cfg.SessionBusyPolicy)
	assert.Equal(t, 5, cfg.IngestMaxAttempts)
}

func TestLoadConfig_Overrides(t *testing.T) {
	os.Setenv("VECTOR_BACKEND", "memory")
	os.Setenv("REWRITE_QUERIES", "false")
	os.Setenv("INGESTION_CONCURRENCY", "10")
	defer os.Unsetenv("VECTOR_BACKEND")
	defer os.Unsetenv("REWRITE_QUERIES")
	defer os.Unsetenv("INGESTION_CONCURRENCY")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "memory", cfg.VectorBackend)
	assert.False(t, cfg.RewriteQueries)
	assert.Equal(t, 10, cfg.IngestionConcurrency)
}
