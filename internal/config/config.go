// Package config loads application configuration from environment
// variables, following the donor's envStr/envInt/envFloat-helper,
// hard-fail-on-missing-required-keys idiom (internal/config/config.go),
// retargeted from the donor's GCP/Postgres surface to this system's
// Qdrant/Redis/LLM-provider surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns.
type Config struct {
	Port        int
	Environment string
	FrontendURL string
	Version     string

	LLMProvider string // "claude" | "openai" | "ollama"
	LLMAPIKey   string
	LLMBaseURL  string
	LLMModel    string

	EmbeddingServiceURL string
	EmbeddingDim        int
	EmbeddingModelID    string

	RerankServiceURL string

	QdrantAddr           string
	QdrantAPIKey         string
	QdrantCollectionName string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    int // seconds

	RetrievalTopK          int
	RetrievalPrefetchLimit int
	RerankTopK             int
	RRFConstant            int
	MaxRetries             int
	MaxQueryLength         int
	StrictOutputGuardrails bool

	ChunkSize    int
	ChunkOverlap int

	QueryRateLimitPerMinute   int
	GeneralRateLimitPerMinute int
}

// Load reads configuration from environment variables. LLM_PROVIDER and
// QDRANT_ADDR are required; everything else falls back to the defaults
// spec.md §6/§10 name.
func Load() (*Config, error) {
	llmProvider := os.Getenv("LLM_PROVIDER")
	if llmProvider == "" {
		return nil, fmt.Errorf("config.Load: LLM_PROVIDER is required")
	}

	qdrantAddr := os.Getenv("QDRANT_ADDR")
	if qdrantAddr == "" {
		return nil, fmt.Errorf("config.Load: QDRANT_ADDR is required")
	}

	cfg := &Config{
		Port:        envInt("PORT", 8080),
		Environment: envStr("ENVIRONMENT", "development"),
		FrontendURL: envStr("FRONTEND_URL", "http://localhost:3000"),
		Version:     envStr("VERSION", "0.1.0"),

		LLMProvider: strings.ToLower(llmProvider),
		LLMAPIKey:   envStr("LLM_API_KEY", ""),
		LLMBaseURL:  envStr("LLM_BASE_URL", ""),
		LLMModel:    envStr("LLM_MODEL", "claude-sonnet-4-5"),

		EmbeddingServiceURL: envStr("EMBEDDING_SERVICE_URL", "http://localhost:9001"),
		EmbeddingDim:        envInt("EMBEDDING_DIM", 1536),
		EmbeddingModelID:    envStr("EMBEDDING_MODEL_ID", "text-embedding-3-large"),

		RerankServiceURL: envStr("RERANK_SERVICE_URL", "http://localhost:9002"),

		QdrantAddr:           qdrantAddr,
		QdrantAPIKey:         envStr("QDRANT_API_KEY", ""),
		QdrantCollectionName: envStr("QDRANT_COLLECTION_NAME", "documents"),

		RedisAddr:     envStr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),
		SessionTTL:    envInt("SESSION_TTL_SECONDS", 86400),

		RetrievalTopK:          envInt("RETRIEVAL_TOP_K", 10),
		RetrievalPrefetchLimit: envInt("RETRIEVAL_PREFETCH_LIMIT", 20),
		RerankTopK:             envInt("RERANK_TOP_K", 5),
		RRFConstant:            envInt("RRF_K", 60),
		MaxRetries:             envInt("MAX_RETRIES", 3),
		MaxQueryLength:         envInt("MAX_QUERY_LENGTH", 2000),
		StrictOutputGuardrails: envBool("STRICT_OUTPUT_GUARDRAILS", false),

		ChunkSize:    envInt("CHUNK_SIZE", 512),
		ChunkOverlap: envInt("CHUNK_OVERLAP", 64),

		QueryRateLimitPerMinute:   envInt("QUERY_RATE_LIMIT_PER_MINUTE", 20),
		GeneralRateLimitPerMinute: envInt("GENERAL_RATE_LIMIT_PER_MINUTE", 120),
	}

	switch cfg.LLMProvider {
	case "claude", "openai", "ollama":
	default:
		return nil, fmt.Errorf("config.Load: unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}

	if cfg.LLMProvider != "ollama" && cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("config.Load: LLM_API_KEY is required for provider %q", cfg.LLMProvider)
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
