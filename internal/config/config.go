package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppInfo holds basic application metadata.
type AppInfo struct {
	Name        string `yaml:"name"`        // application name
	Version     string `yaml:"version"`     // application version
	Environment string `yaml:"environment"` // e.g. "development", "production"
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
}

// AuthConfig configures how the user identity is extracted from requests.
// Issuing tokens is the job of the auth collaborator; this service only
// verifies and reads them.
type AuthConfig struct {
	JwtSecret string `yaml:"jwtSecret"` // HMAC secret shared with the auth service
}

// GeminiConfig holds credentials and model selection for the hosted
// Google GenAI backends.
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// OllamaConfig holds the connection settings for a local Ollama instance.
type OllamaConfig struct {
	BaseURL string `yaml:"baseURL"` // defaults to http://localhost:11434
	Model   string `yaml:"model"`
}

// LLMConfig selects and configures the answer-generation backend.
type LLMConfig struct {
	Provider string       `yaml:"provider"` // "gemini" or "ollama"
	Gemini   GeminiConfig `yaml:"gemini"`
	Ollama   OllamaConfig `yaml:"ollama"`
}

// EmbeddingConfig selects and configures the embedding backend.
// Dimension must match the model's output dimension; it is also the
// dimension enforced by the vector index.
type EmbeddingConfig struct {
	Provider  string       `yaml:"provider"` // "gemini" or "ollama"
	Dimension int          `yaml:"dimension"`
	Gemini    GeminiConfig `yaml:"gemini"`
	Ollama    OllamaConfig `yaml:"ollama"`
}

// RetryConfig bounds retries against transient embedding-service failures.
type RetryConfig struct {
	Attempts    int    `yaml:"attempts"`    // total attempts including the first
	BaseBackoff string `yaml:"baseBackoff"` // e.g. "200ms"; doubled per attempt
}

// BaseBackoffDuration parses the backoff, defaulting to 200ms.
func (r RetryConfig) BaseBackoffDuration() time.Duration {
	d, err := time.ParseDuration(r.BaseBackoff)
	if err != nil || d <= 0 {
		return 200 * time.Millisecond
	}
	return d
}

// RAGConfig holds the retrieval pipeline knobs. All of it is validated
// once at boot; components receive the values through constructors and
// never re-validate per request.
type RAGConfig struct {
	ChunkSize          int         `yaml:"chunkSize"`          // chunk window, in characters
	ChunkOverlap       int         `yaml:"chunkOverlap"`       // trailing overlap, in characters
	TopK               int         `yaml:"topK"`               // candidates returned to the prompt builder
	OverfetchFactor    int         `yaml:"overfetchFactor"`    // index is searched with topK*overfetchFactor
	MinScore           float64     `yaml:"minScore"`           // relevance threshold; below it candidates are discarded
	DedupWindow        int         `yaml:"dedupWindow"`        // chunk-index proximity that counts as the same passage
	ContextTokenBudget int         `yaml:"contextTokenBudget"` // total prompt budget, in tokens
	HistoryTokenBudget int         `yaml:"historyTokenBudget"` // sub-budget for conversation history
	MaxHistoryTurns    int         `yaml:"maxHistoryTurns"`    // newest history turns considered at all
	EmbedRetry         RetryConfig `yaml:"embedRetry"`
}

// MySQLConfig holds the MySQL connection settings.
type MySQLConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // seconds
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MilvusConfig holds the Milvus connection settings, used when the
// vector index provider is "milvus".
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
}

// KafkaConfig configures the optional ingestion-trigger consumer.
// Leave Brokers empty to disable it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"groupID"`
}

// VectorIndexConfig selects the vector index backend.
type VectorIndexConfig struct {
	Provider string       `yaml:"provider"` // "memory" or "milvus"
	Milvus   MilvusConfig `yaml:"milvus"`
}

// DatabaseConfigs groups the external datastore settings.
type DatabaseConfigs struct {
	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address string `yaml:"address"` // e.g. ":8080"
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App         AppInfo           `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Logger      LoggerConfig      `yaml:"logger"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	RAG         RAGConfig         `yaml:"rag"`
	VectorIndex VectorIndexConfig `yaml:"vectorIndex"`
	Databases   DatabaseConfigs   `yaml:"databases"`
}

// ConfigurationError is a fatal boot-time error. It is never retried;
// the process must not come up with an invalid configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// LoadConfig reads, parses, and validates the YAML configuration file.
// Defaults for optional knobs are applied before validation.
func LoadConfig(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = 1000
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = 200
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = 5
	}
	if c.RAG.OverfetchFactor == 0 {
		c.RAG.OverfetchFactor = 3
	}
	if c.RAG.MinScore == 0 {
		c.RAG.MinScore = 0.5
	}
	if c.RAG.DedupWindow == 0 {
		c.RAG.DedupWindow = 1
	}
	if c.RAG.ContextTokenBudget == 0 {
		c.RAG.ContextTokenBudget = 6000
	}
	if c.RAG.HistoryTokenBudget == 0 {
		c.RAG.HistoryTokenBudget = 1500
	}
	if c.RAG.MaxHistoryTurns == 0 {
		c.RAG.MaxHistoryTurns = 10
	}
	if c.RAG.EmbedRetry.Attempts == 0 {
		c.RAG.EmbedRetry.Attempts = 3
	}
	if c.VectorIndex.Provider == "" {
		c.VectorIndex.Provider = "memory"
	}
}

// Validate checks the configuration for structural errors. Invalid
// combinations fail here, at boot, never per request.
func (c *AppConfig) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return &ConfigurationError{Field: "rag.chunkSize", Reason: "must be positive"}
	}
	if c.RAG.ChunkOverlap < 0 {
		return &ConfigurationError{Field: "rag.chunkOverlap", Reason: "must not be negative"}
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return &ConfigurationError{Field: "rag.chunkOverlap", Reason: "must be smaller than rag.chunkSize"}
	}
	if c.RAG.TopK <= 0 {
		return &ConfigurationError{Field: "rag.topK", Reason: "must be positive"}
	}
	if c.RAG.OverfetchFactor <= 0 {
		return &ConfigurationError{Field: "rag.overfetchFactor", Reason: "must be positive"}
	}
	if c.RAG.MinScore < 0 || c.RAG.MinScore > 1 {
		return &ConfigurationError{Field: "rag.minScore", Reason: "must be within [0, 1]"}
	}
	if c.RAG.DedupWindow < 0 {
		return &ConfigurationError{Field: "rag.dedupWindow", Reason: "must not be negative"}
	}
	if c.RAG.ContextTokenBudget <= 0 {
		return &ConfigurationError{Field: "rag.contextTokenBudget", Reason: "must be positive"}
	}
	if c.RAG.HistoryTokenBudget < 0 {
		return &ConfigurationError{Field: "rag.historyTokenBudget", Reason: "must not be negative"}
	}
	if c.RAG.HistoryTokenBudget >= c.RAG.ContextTokenBudget {
		return &ConfigurationError{Field: "rag.historyTokenBudget", Reason: "must be smaller than rag.contextTokenBudget"}
	}
	if c.RAG.EmbedRetry.Attempts <= 0 {
		return &ConfigurationError{Field: "rag.embedRetry.attempts", Reason: "must be positive"}
	}
	if c.Embedding.Dimension <= 0 {
		return &ConfigurationError{Field: "embedding.dimension", Reason: "must be positive"}
	}

	switch c.Embedding.Provider {
	case "gemini", "ollama":
	default:
		return &ConfigurationError{Field: "embedding.provider", Reason: fmt.Sprintf("unsupported provider %q", c.Embedding.Provider)}
	}
	switch c.LLM.Provider {
	case "gemini", "ollama":
	default:
		return &ConfigurationError{Field: "llm.provider", Reason: fmt.Sprintf("unsupported provider %q", c.LLM.Provider)}
	}
	switch c.VectorIndex.Provider {
	case "memory":
	case "milvus":
		if c.VectorIndex.Milvus.Address == "" {
			return &ConfigurationError{Field: "vectorIndex.milvus.address", Reason: "required when provider is milvus"}
		}
		if c.VectorIndex.Milvus.Collection == "" {
			return &ConfigurationError{Field: "vectorIndex.milvus.collection", Reason: "required when provider is milvus"}
		}
	default:
		return &ConfigurationError{Field: "vectorIndex.provider", Reason: fmt.Sprintf("unsupported provider %q", c.VectorIndex.Provider)}
	}

	if len(c.Databases.Kafka.Brokers) > 0 && c.Databases.Kafka.Topic == "" {
		return &ConfigurationError{Field: "databases.kafka.topic", Reason: "required when brokers are configured"}
	}
	return nil
}
