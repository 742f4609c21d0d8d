// Package migrate is the one-shot CLI entrypoint running every
// registered schema migration without standing up the MCP tool surface,
// grounded directly on the teacher's internal/cmd/migrate/migrate.go.
package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/agent-memory-service/internal/config"
	registrymigrate "github.com/chirino/agent-memory-service/internal/registry/migrate"

	// Import plugins to trigger init() registration of their migrators.
	_ "github.com/chirino/agent-memory-service/internal/plugin/taskstore/postgres"
	_ "github.com/chirino/agent-memory-service/internal/plugin/vector/pgvector"
	_ "github.com/chirino/agent-memory-service/internal/plugin/vector/qdrant"
	_ "github.com/chirino/agent-memory-service/internal/plugin/vector/redis"
	_ "github.com/chirino/agent-memory-service/internal/plugin/vector/sqlitevec"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run vector store and task store schema migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-url",
				Sources: cli.EnvVars("AGENT_MEMORY_DB_URL"),
				Usage:   "Postgres connection URL for the postgres task store and pgvector vector store",
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Sources: cli.EnvVars("AGENT_MEMORY_REDIS_URL"),
				Usage:   "Redis connection URL for the redis vector store",
			},
			&cli.StringFlag{
				Name:    "taskstore-kind",
				Sources: cli.EnvVars("AGENT_MEMORY_TASKSTORE_KIND"),
				Usage:   "Task store backend (postgres|mongo)",
				Value:   "postgres",
			},
			&cli.StringFlag{
				Name:    "vector-kind",
				Sources: cli.EnvVars("AGENT_MEMORY_VECTOR_KIND"),
				Usage:   "Vector store backend (redis|pgvector|qdrant|sqlitevec)",
				Value:   "redis",
			},
			&cli.StringFlag{
				Name:    "sqlitevec-path",
				Sources: cli.EnvVars("AGENT_MEMORY_SQLITEVEC_PATH"),
				Usage:   "SQLite file path for the sqlitevec vector store",
			},
			&cli.StringFlag{
				Name:    "vector-qdrant-host",
				Sources: cli.EnvVars("AGENT_MEMORY_QDRANT_HOST"),
				Usage:   "Qdrant host",
				Value:   "localhost",
			},
			&cli.IntFlag{
				Name:    "vector-dimensions",
				Sources: cli.EnvVars("AGENT_MEMORY_VECTOR_DIMENSIONS"),
				Usage:   "Embedding vector dimensionality",
				Value:   384,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.RedisURL = cmd.String("redis-url")
			cfg.TaskStoreBackend = cmd.String("taskstore-kind")
			cfg.VectorStoreBackend = cmd.String("vector-kind")
			cfg.SQLiteVecPath = cmd.String("sqlitevec-path")
			cfg.QdrantHost = cmd.String("vector-qdrant-host")
			cfg.VectorDimensions = int(cmd.Int("vector-dimensions"))
			cfg.VectorMigrateAtStart = true
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
