// Package serve wires the CLI entrypoint for running the agent memory
// service as a standing process: every registry plugin, the C5
// pipeline, the C6 task runtime, and the MCP tool surface of §6,
// grounded on the teacher's internal/cmd/serve/serve.go Command/flags/
// run shape (urfave/cli/v3, Destination-bound flags grouped by
// Category, a config.WithContext(ctx, &cfg) context carried into every
// Select(...)-returned loader).
package serve

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/agent-memory-service/internal/config"
	registryembed "github.com/chirino/agent-memory-service/internal/registry/embed"
	registrytaskstore "github.com/chirino/agent-memory-service/internal/registry/taskstore"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
	registrywmstore "github.com/chirino/agent-memory-service/internal/registry/wmstore"

	// Import all plugins to trigger init() registration.
	_ "github.com/chirino/agent-memory-service/internal/plugin/embed/disabled"
	_ "github.com/chirino/agent-memory-service/internal/plugin/embed/local"
	_ "github.com/chirino/agent-memory-service/internal/plugin/embed/openai"
	_ "github.com/chirino/agent-memory-service/internal/plugin/llm/openai"
	_ "github.com/chirino/agent-memory-service/internal/plugin/taskstore/mongo"
	_ "github.com/chirino/agent-memory-service/internal/plugin/taskstore/postgres"
	_ "github.com/chirino/agent-memory-service/internal/plugin/vector/pgvector"
	_ "github.com/chirino/agent-memory-service/internal/plugin/vector/qdrant"
	_ "github.com/chirino/agent-memory-service/internal/plugin/vector/redis"
	_ "github.com/chirino/agent-memory-service/internal/plugin/vector/sqlitevec"
	_ "github.com/chirino/agent-memory-service/internal/plugin/wmstore/memory"
	_ "github.com/chirino/agent-memory-service/internal/plugin/wmstore/redis"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the agent memory service: MCP tool surface, background enrichment pipeline, task runtime",
		Flags: flags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mode",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "Background-service behavior (" + config.ModeProd + "|" + config.ModeTesting + ")",
		},
		&cli.StringFlag{
			Name:        "extraction-policy-dir",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_EXTRACTION_POLICY_DIR"),
			Destination: &cfg.ExtractionPolicyDir,
			Usage:       "Directory containing prompt.rego for the custom extraction strategy's prompt-injection guard; built-in policy if unset",
		},
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
		&cli.StringFlag{
			Name:        "management-listen-address",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_MANAGEMENT_LISTEN_ADDRESS"),
			Destination: &cfg.ManagementListenAddress,
			Value:       cfg.ManagementListenAddress,
			Usage:       "Address serving /health, /ready, and /metrics",
		},
		&cli.DurationFlag{
			Name:        "drain-timeout",
			Category:    "Server:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DRAIN_TIMEOUT"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "How long shutdown waits for in-flight requests and tasks to drain",
		},

		// ── MCP Tool Surface ──────────────────────────────────────
		&cli.StringFlag{
			Name:        "mcp-listen-address",
			Category:    "MCP:",
			Sources:     cli.EnvVars("AGENT_MEMORY_MCP_LISTEN_ADDRESS"),
			Destination: &cfg.MCPListenAddress,
			Value:       cfg.MCPListenAddress,
			Usage:       "Address serving the MCP tool surface over streamable HTTP",
		},
		&cli.StringFlag{
			Name:        "mcp-transport",
			Category:    "MCP:",
			Sources:     cli.EnvVars("AGENT_MEMORY_MCP_TRANSPORT"),
			Destination: &cfg.MCPTransport,
			Value:       cfg.MCPTransport,
			Usage:       "MCP transport (http|stdio)",
		},
		&cli.StringFlag{
			Name:        "mcp-server-name",
			Category:    "MCP:",
			Sources:     cli.EnvVars("AGENT_MEMORY_MCP_SERVER_NAME"),
			Destination: &cfg.MCPServerName,
			Value:       cfg.MCPServerName,
		},
		&cli.StringFlag{
			Name:        "mcp-server-version",
			Category:    "MCP:",
			Sources:     cli.EnvVars("AGENT_MEMORY_MCP_SERVER_VERSION"),
			Destination: &cfg.MCPServerVersion,
			Value:       cfg.MCPServerVersion,
		},

		// ── Working Memory (C3) ───────────────────────────────────
		&cli.StringFlag{
			Name:        "wmstore-kind",
			Category:    "Working Memory:",
			Sources:     cli.EnvVars("AGENT_MEMORY_WMSTORE_KIND"),
			Destination: &cfg.WMStoreBackend,
			Value:       cfg.WMStoreBackend,
			Usage:       "Working memory backend (" + strings.Join(registrywmstore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Working Memory:",
			Sources:     cli.EnvVars("AGENT_MEMORY_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL, shared by the redis working-memory and vector store backends",
		},
		&cli.DurationFlag{
			Name:        "default-wm-ttl",
			Category:    "Working Memory:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DEFAULT_WM_TTL"),
			Destination: &cfg.DefaultWMTTL,
			Value:       cfg.DefaultWMTTL,
			Usage:       "Default working-memory session TTL",
		},
		&cli.IntFlag{
			Name:        "summarization-token-threshold",
			Category:    "Working Memory:",
			Sources:     cli.EnvVars("AGENT_MEMORY_SUMMARIZATION_TOKEN_THRESHOLD"),
			Destination: &cfg.SummarizationTokenThreshold,
			Value:       cfg.SummarizationTokenThreshold,
			Usage:       "Transcript token count that triggers abstractive summarization",
		},

		// ── Long-Term Memory / Vector Store (C2/C4) ───────────────
		&cli.StringFlag{
			Name:        "vector-kind",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_KIND"),
			Destination: &cfg.VectorStoreBackend,
			Value:       cfg.VectorStoreBackend,
			Usage:       "Vector store backend (" + strings.Join(registryvector.Names(), "|") + ")",
		},
		&cli.BoolFlag{
			Name:        "vector-migrate-at-start",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_MIGRATE_AT_START"),
			Destination: &cfg.VectorMigrateAtStart,
			Value:       cfg.VectorMigrateAtStart,
			Usage:       "Run the vector store's schema migration at startup",
		},
		&cli.IntFlag{
			Name:        "vector-dimensions",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_VECTOR_DIMENSIONS"),
			Destination: &cfg.VectorDimensions,
			Value:       cfg.VectorDimensions,
			Usage:       "Embedding vector dimensionality",
		},
		&cli.StringFlag{
			Name:        "distance-metric",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DISTANCE_METRIC"),
			Destination: &cfg.DistanceMetric,
			Value:       cfg.DistanceMetric,
			Usage:       "Vector distance metric (cosine|dot|l2)",
		},
		&cli.StringFlag{
			Name:        "indexing-algorithm",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_INDEXING_ALGORITHM"),
			Destination: &cfg.IndexingAlgorithm,
			Value:       cfg.IndexingAlgorithm,
			Usage:       "Vector index algorithm (hnsw|flat)",
		},
		&cli.BoolFlag{
			Name:        "long-term-memory-enabled",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("AGENT_MEMORY_LONG_TERM_MEMORY_ENABLED"),
			Destination: &cfg.LongTermMemoryEnabled,
			Value:       cfg.LongTermMemoryEnabled,
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Postgres connection URL, used by the pgvector vector store and the postgres task store",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
		},
		&cli.StringFlag{
			Name:        "sqlitevec-path",
			Category:    "Database:",
			Sources:     cli.EnvVars("AGENT_MEMORY_SQLITEVEC_PATH"),
			Destination: &cfg.SQLiteVecPath,
			Usage:       "SQLite file path for the sqlitevec vector store backend",
		},

		// ── Qdrant ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "qdrant-host",
			Category:    "Qdrant:",
			Sources:     cli.EnvVars("AGENT_MEMORY_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantHost,
		},
		&cli.IntFlag{
			Name:        "qdrant-port",
			Category:    "Qdrant:",
			Sources:     cli.EnvVars("AGENT_MEMORY_QDRANT_PORT"),
			Destination: &cfg.QdrantPort,
			Value:       cfg.QdrantPort,
		},
		&cli.StringFlag{
			Name:        "qdrant-collection-prefix",
			Category:    "Qdrant:",
			Sources:     cli.EnvVars("AGENT_MEMORY_QDRANT_COLLECTION_PREFIX"),
			Destination: &cfg.QdrantCollectionPrefix,
			Value:       cfg.QdrantCollectionPrefix,
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Category:    "Qdrant:",
			Sources:     cli.EnvVars("AGENT_MEMORY_QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
		},
		&cli.BoolFlag{
			Name:        "qdrant-use-tls",
			Category:    "Qdrant:",
			Sources:     cli.EnvVars("AGENT_MEMORY_QDRANT_USE_TLS"),
			Destination: &cfg.QdrantUseTLS,
			Value:       cfg.QdrantUseTLS,
		},
		&cli.DurationFlag{
			Name:        "qdrant-startup-timeout",
			Category:    "Qdrant:",
			Sources:     cli.EnvVars("AGENT_MEMORY_QDRANT_STARTUP_TIMEOUT"),
			Destination: &cfg.QdrantStartupTimeout,
			Value:       cfg.QdrantStartupTimeout,
		},

		// ── Embedding / Generation ────────────────────────────────
		&cli.StringFlag{
			Name:        "embedding-kind",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_EMBEDDING_KIND"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedding provider (" + strings.Join(registryembed.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-model-name",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_OPENAI_MODEL_NAME"),
			Destination: &cfg.OpenAIModelName,
			Value:       cfg.OpenAIModelName,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_OPENAI_BASE_URL"),
			Destination: &cfg.OpenAIBaseURL,
			Value:       cfg.OpenAIBaseURL,
		},
		&cli.IntFlag{
			Name:        "openai-dimensions",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_OPENAI_DIMENSIONS"),
			Destination: &cfg.OpenAIDimensions,
		},
		&cli.StringFlag{
			Name:        "generation-model-fast",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_GENERATION_MODEL_FAST"),
			Destination: &cfg.GenerationModelFast,
			Value:       cfg.GenerationModelFast,
		},
		&cli.StringFlag{
			Name:        "generation-model-slow",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("AGENT_MEMORY_GENERATION_MODEL_SLOW"),
			Destination: &cfg.GenerationModelSlow,
			Value:       cfg.GenerationModelSlow,
		},

		// ── Enrichment Pipeline (C5) ──────────────────────────────
		&cli.BoolFlag{
			Name:        "enable-discrete-extraction",
			Category:    "Enrichment:",
			Sources:     cli.EnvVars("AGENT_MEMORY_ENABLE_DISCRETE_EXTRACTION"),
			Destination: &cfg.EnableDiscreteExtraction,
			Value:       cfg.EnableDiscreteExtraction,
		},
		&cli.BoolFlag{
			Name:        "enable-topic-extraction",
			Category:    "Enrichment:",
			Sources:     cli.EnvVars("AGENT_MEMORY_ENABLE_TOPIC_EXTRACTION"),
			Destination: &cfg.EnableTopicExtraction,
			Value:       cfg.EnableTopicExtraction,
		},
		&cli.BoolFlag{
			Name:        "enable-ner",
			Category:    "Enrichment:",
			Sources:     cli.EnvVars("AGENT_MEMORY_ENABLE_NER"),
			Destination: &cfg.EnableNER,
			Value:       cfg.EnableNER,
		},
		&cli.StringFlag{
			Name:        "topic-model-source",
			Category:    "Enrichment:",
			Sources:     cli.EnvVars("AGENT_MEMORY_TOPIC_MODEL_SOURCE"),
			Destination: &cfg.TopicModelSource,
			Value:       cfg.TopicModelSource,
			Usage:       "Topic tagging source (llm|local)",
		},
		&cli.FloatFlag{
			Name:        "dedup-distance-threshold",
			Category:    "Enrichment:",
			Sources:     cli.EnvVars("AGENT_MEMORY_DEDUP_DISTANCE_THRESHOLD"),
			Destination: &cfg.DedupDistanceThreshold,
			Value:       cfg.DedupDistanceThreshold,
		},

		// ── Forgetting / Compaction ───────────────────────────────
		&cli.BoolFlag{
			Name:        "forgetting-enabled",
			Category:    "Forgetting:",
			Sources:     cli.EnvVars("AGENT_MEMORY_FORGETTING_ENABLED"),
			Destination: &cfg.ForgettingEnabled,
			Value:       cfg.ForgettingEnabled,
		},
		&cli.IntFlag{
			Name:        "forgetting-max-age-days",
			Category:    "Forgetting:",
			Sources:     cli.EnvVars("AGENT_MEMORY_FORGETTING_MAX_AGE_DAYS"),
			Destination: &cfg.ForgettingMaxAgeDays,
			Value:       cfg.ForgettingMaxAgeDays,
		},
		&cli.IntFlag{
			Name:        "forgetting-min-access",
			Category:    "Forgetting:",
			Sources:     cli.EnvVars("AGENT_MEMORY_FORGETTING_MIN_ACCESS"),
			Destination: &cfg.ForgettingMinAccess,
			Value:       cfg.ForgettingMinAccess,
		},
		&cli.IntFlag{
			Name:        "compaction-every-minutes",
			Category:    "Forgetting:",
			Sources:     cli.EnvVars("AGENT_MEMORY_COMPACTION_EVERY_MINUTES"),
			Destination: &cfg.CompactionEveryMinutes,
			Value:       cfg.CompactionEveryMinutes,
		},
		&cli.IntFlag{
			Name:        "forgetting-every-minutes",
			Category:    "Forgetting:",
			Sources:     cli.EnvVars("AGENT_MEMORY_FORGETTING_EVERY_MINUTES"),
			Destination: &cfg.ForgettingEveryMinutes,
			Value:       cfg.ForgettingEveryMinutes,
		},

		// ── Re-rank ───────────────────────────────────────────────
		&cli.FloatFlag{
			Name:        "rerank-alpha",
			Category:    "Re-rank:",
			Sources:     cli.EnvVars("AGENT_MEMORY_RERANK_ALPHA"),
			Destination: &cfg.RerankAlpha,
			Value:       cfg.RerankAlpha,
			Usage:       "Similarity weight",
		},
		&cli.FloatFlag{
			Name:        "rerank-beta",
			Category:    "Re-rank:",
			Sources:     cli.EnvVars("AGENT_MEMORY_RERANK_BETA"),
			Destination: &cfg.RerankBeta,
			Value:       cfg.RerankBeta,
			Usage:       "Recency weight",
		},
		&cli.FloatFlag{
			Name:        "rerank-gamma",
			Category:    "Re-rank:",
			Sources:     cli.EnvVars("AGENT_MEMORY_RERANK_GAMMA"),
			Destination: &cfg.RerankGamma,
			Value:       cfg.RerankGamma,
			Usage:       "Access-frequency weight",
		},

		// ── Task Runtime (C6) ─────────────────────────────────────
		&cli.StringFlag{
			Name:        "taskstore-kind",
			Category:    "Task Runtime:",
			Sources:     cli.EnvVars("AGENT_MEMORY_TASKSTORE_KIND"),
			Destination: &cfg.TaskStoreBackend,
			Value:       cfg.TaskStoreBackend,
			Usage:       "Task store backend (" + strings.Join(registrytaskstore.Names(), "|") + ")",
		},
		&cli.DurationFlag{
			Name:        "task-poll-interval",
			Category:    "Task Runtime:",
			Sources:     cli.EnvVars("AGENT_MEMORY_TASK_POLL_INTERVAL"),
			Destination: &cfg.TaskPollInterval,
			Value:       cfg.TaskPollInterval,
		},
		&cli.IntFlag{
			Name:        "task-batch-size",
			Category:    "Task Runtime:",
			Sources:     cli.EnvVars("AGENT_MEMORY_TASK_BATCH_SIZE"),
			Destination: &cfg.TaskBatchSize,
			Value:       cfg.TaskBatchSize,
		},
		&cli.DurationFlag{
			Name:        "task-retry-delay",
			Category:    "Task Runtime:",
			Sources:     cli.EnvVars("AGENT_MEMORY_TASK_RETRY_DELAY"),
			Destination: &cfg.TaskRetryDelay,
			Value:       cfg.TaskRetryDelay,
		},
		&cli.IntFlag{
			Name:        "task-max-attempts",
			Category:    "Task Runtime:",
			Sources:     cli.EnvVars("AGENT_MEMORY_TASK_MAX_ATTEMPTS"),
			Destination: &cfg.TaskMaxAttempts,
			Value:       cfg.TaskMaxAttempts,
		},

		// ── Rate Limiting ─────────────────────────────────────────
		&cli.IntFlag{
			Name:        "embed-rate-limit-per-second",
			Category:    "Rate Limiting:",
			Sources:     cli.EnvVars("AGENT_MEMORY_EMBED_RATE_LIMIT_PER_SECOND"),
			Destination: &cfg.EmbedRateLimitPerSecond,
			Value:       cfg.EmbedRateLimitPerSecond,
		},
		&cli.IntFlag{
			Name:        "llm-rate-limit-per-second",
			Category:    "Rate Limiting:",
			Sources:     cli.EnvVars("AGENT_MEMORY_LLM_RATE_LIMIT_PER_SECOND"),
			Destination: &cfg.LLMRateLimitPerSecond,
			Value:       cfg.LLMRateLimitPerSecond,
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}
