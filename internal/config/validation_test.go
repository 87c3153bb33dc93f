package config_test

import (
	"errors"
	"testing"

	"docchat/internal/config"

	"github.com/stretchr/testify/assert"
)

func validConfig() config.Config {
	return config.Config{
		DBHost:            "localhost",
		DBUser:            "user",
		DBName:            "db",
		VectorBackend:     "memory",
		EmbeddingDim:      768,
		ChunkSize:         1400,
		ChunkOverlap:      0.15,
		TopK:              5,
		HistoryPolicy:     "truncate",
		SessionBusyPolicy: "reject",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{
			name:    "Valid Config",
			mutate:  func(c *config.Config) {},
			wantErr: false,
		},
		{
			name:    "Missing DBHost",
			mutate:  func(c *config.Config) { c.DBHost = "" },
			wantErr: true,
		},
		{
			name:    "Missing DBUser",
			mutate:  func(c *config.Config) { c.DBUser = "" },
			wantErr: true,
		},
		{
			name:    "Missing DBName",
			mutate:  func(c *config.Config) { c.DBName = "" },
			wantErr: true,
		},
		{
			name:    "Zero EmbeddingDim",
			mutate:  func(c *config.Config) { c.EmbeddingDim = 0 },
			wantErr: true,
		},
		{
			name:    "Zero ChunkSize",
			mutate:  func(c *config.Config) { c.ChunkSize = 0 },
			wantErr: true,
		},
		{
			name:    "Negative ChunkOverlap",
			mutate:  func(c *config.Config) { c.ChunkOverlap = -0.1 },
			wantErr: true,
		},
		{
			name:    "ChunkOverlap At One",
			mutate:  func(c *config.Config) { c.ChunkOverlap = 1 },
			wantErr: true,
		},
		{
			name:    "Zero TopK",
			mutate:  func(c *config.Config) { c.TopK = 0 },
			wantErr: true,
		},
		{
			name:    "Unknown VectorBackend",
			mutate:  func(c *config.Config) { c.VectorBackend = "pinecone" },
			wantErr: true,
		},
		{
			name:    "Unknown HistoryPolicy",
			mutate:  func(c *config.Config) { c.HistoryPolicy = "forget" },
			wantErr: true,
		},
		{
			name:    "Unknown SessionBusyPolicy",
			mutate:  func(c *config.Config) { c.SessionBusyPolicy = "drop" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, config.ErrMissingRequired))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
