package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Dimension = 768
	cfg.LLM.Provider = "ollama"
	return cfg
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{
			name:   "overlap equal to chunk size",
			mutate: func(c *AppConfig) { c.RAG.ChunkOverlap = c.RAG.ChunkSize },
			field:  "rag.chunkOverlap",
		},
		{
			name:   "overlap larger than chunk size",
			mutate: func(c *AppConfig) { c.RAG.ChunkOverlap = c.RAG.ChunkSize + 1 },
			field:  "rag.chunkOverlap",
		},
		{
			name:   "negative topK",
			mutate: func(c *AppConfig) { c.RAG.TopK = -1 },
			field:  "rag.topK",
		},
		{
			name:   "threshold above one",
			mutate: func(c *AppConfig) { c.RAG.MinScore = 1.5 },
			field:  "rag.minScore",
		},
		{
			name:   "history budget swallows context budget",
			mutate: func(c *AppConfig) { c.RAG.HistoryTokenBudget = c.RAG.ContextTokenBudget },
			field:  "rag.historyTokenBudget",
		},
		{
			name:   "missing embedding dimension",
			mutate: func(c *AppConfig) { c.Embedding.Dimension = 0 },
			field:  "embedding.dimension",
		},
		{
			name:   "unknown embedding provider",
			mutate: func(c *AppConfig) { c.Embedding.Provider = "tfidf" },
			field:  "embedding.provider",
		},
		{
			name:   "unknown llm provider",
			mutate: func(c *AppConfig) { c.LLM.Provider = "gpt2" },
			field:  "llm.provider",
		},
		{
			name:   "milvus without address",
			mutate: func(c *AppConfig) { c.VectorIndex.Provider = "milvus" },
			field:  "vectorIndex.milvus.address",
		},
		{
			name:   "kafka brokers without topic",
			mutate: func(c *AppConfig) { c.Databases.Kafka.Brokers = []string{"localhost:9092"} },
			field:  "databases.kafka.topic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte(`
app:
  name: compliance-rag
embedding:
  provider: ollama
  dimension: 768
  ollama:
    model: nomic-embed-text
llm:
  provider: ollama
  ollama:
    model: llama3
`)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, "memory", cfg.VectorIndex.Provider)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadConfig_InvalidFailsFast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := []byte(`
embedding:
  provider: ollama
  dimension: 768
llm:
  provider: ollama
rag:
  chunkSize: 100
  chunkOverlap: 100
`)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err := LoadConfig(path)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
