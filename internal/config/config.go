package config

import (
	"context"
	"fmt"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the agent memory service.
type Config struct {
	// Mode controls background-service behavior: "prod" (default) or "testing".
	Mode string

	// Working memory store (C3).
	RedisURL                    string
	WMStoreBackend              string // "redis" or "memory"
	DefaultWMTTL                time.Duration
	SummarizationTokenThreshold int

	// Long-term memory store (C4) and vector store (C2).
	VectorStoreBackend    string // "redis", "pgvector", "sqlitevec", or "qdrant"
	VectorMigrateAtStart  bool
	VectorDimensions      int
	DistanceMetric        string // "cosine", "dot", or "l2"
	IndexingAlgorithm     string // "hnsw" or "flat"
	LongTermMemoryEnabled bool

	DBURL          string
	DBMaxOpenConns int
	DBMaxIdleConns int
	SQLiteVecPath  string

	QdrantHost             string
	QdrantPort             int
	QdrantCollectionPrefix string
	QdrantAPIKey           string
	QdrantUseTLS           bool
	QdrantStartupTimeout   time.Duration

	// Embedding / generation providers.
	EmbedType           string // "local" or "openai"
	OpenAIAPIKey        string
	OpenAIModelName     string
	OpenAIBaseURL       string
	OpenAIDimensions    int
	GenerationModelFast string
	GenerationModelSlow string

	// Enrichment pipeline (C5) toggles.
	EnableDiscreteExtraction bool
	EnableTopicExtraction    bool
	EnableNER                bool
	TopicModelSource         string // "llm" or "local"
	DedupDistanceThreshold   float64

	// Forgetting / compaction.
	ForgettingEnabled      bool
	ForgettingMaxAgeDays   int
	ForgettingMinAccess    int
	CompactionEveryMinutes int
	ForgettingEveryMinutes int

	// Re-rank weights (alpha=similarity, beta=recency, gamma=access frequency).
	RerankAlpha float64
	RerankBeta  float64
	RerankGamma float64

	// Background task runtime (C6).
	TaskStoreBackend string // "postgres" or "mongo"
	TaskPollInterval time.Duration
	TaskBatchSize    int
	TaskRetryDelay   time.Duration
	TaskMaxAttempts  int

	// Rate limiting (per-provider token buckets).
	EmbedRateLimitPerSecond int
	LLMRateLimitPerSecond   int

	// MCP tool surface.
	MCPListenAddress string
	MCPTransport     string // "http" (default) or "stdio"
	MCPServerName    string
	MCPServerVersion string

	// Extraction prompt policy (C5's custom strategy guardrail).
	ExtractionPolicyDir string

	// Metrics.
	MetricsLabels string

	// ManagementListenAddress serves /health, /ready, and /metrics.
	ManagementListenAddress string

	// DrainTimeout bounds how long shutdown waits for in-flight work.
	DrainTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                        ModeProd,
		WMStoreBackend:              "redis",
		DefaultWMTTL:                24 * time.Hour,
		SummarizationTokenThreshold: 4000,

		VectorStoreBackend:    "redis",
		VectorMigrateAtStart:  true,
		VectorDimensions:      384,
		DistanceMetric:        "cosine",
		IndexingAlgorithm:     "hnsw",
		LongTermMemoryEnabled: true,

		DBMaxOpenConns: 25,
		DBMaxIdleConns: 5,

		QdrantHost:             "localhost",
		QdrantPort:             6334,
		QdrantCollectionPrefix: "agent-memory",
		QdrantStartupTimeout:   30 * time.Second,

		EmbedType:           "local",
		OpenAIModelName:     "text-embedding-3-small",
		OpenAIBaseURL:       "https://api.openai.com/v1",
		GenerationModelFast: "gpt-4o-mini",
		GenerationModelSlow: "gpt-4o",

		EnableDiscreteExtraction: true,
		EnableTopicExtraction:    true,
		EnableNER:                true,
		TopicModelSource:         "local",
		DedupDistanceThreshold:   0.1,

		ForgettingEnabled:      false,
		ForgettingMaxAgeDays:   90,
		ForgettingMinAccess:    1,
		CompactionEveryMinutes: 60,
		ForgettingEveryMinutes: 1440,

		RerankAlpha: 0.8,
		RerankBeta:  0.1,
		RerankGamma: 0.1,

		TaskStoreBackend: "postgres",
		TaskPollInterval: time.Minute,
		TaskBatchSize:    100,
		TaskRetryDelay:   10 * time.Minute,
		TaskMaxAttempts:  5,

		EmbedRateLimitPerSecond: 50,
		LLMRateLimitPerSecond:   20,

		MCPListenAddress: ":8000",
		MCPTransport:     "http",
		MCPServerName:    "agent-memory-service",
		MCPServerVersion: "dev",
		MetricsLabels:    "service=agent-memory-service",

		ManagementListenAddress: ":8001",
		DrainTimeout:            30 * time.Second,
	}
}

// QdrantAddress returns the host:port gRPC dial target for the Qdrant backend.
func (c *Config) QdrantAddress() string {
	if c == nil {
		return "localhost:6334"
	}
	host := c.QdrantHost
	if host == "" {
		host = "localhost"
	}
	port := c.QdrantPort
	if port == 0 {
		port = 6334
	}
	return fmt.Sprintf("%s:%d", host, port)
}
