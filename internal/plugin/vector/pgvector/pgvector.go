// Package pgvector adapts C2 (VectorStore) onto Postgres + the pgvector
// extension, grounded on the teacher's internal/plugin/vector/pgvector
// (same raw-SQL upsert-on-conflict/cosine-order-by shape, same lazy
// schema migrator registered through internal/registry/migrate),
// generalized from per-entry embeddings to per-MemoryRecord embeddings
// with a JSONB metadata column filter pushdown renders against.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chirino/agent-memory-service/internal/config"
	registrymigrate "github.com/chirino/agent-memory-service/internal/registry/migrate"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
)

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS memory_vectors (
	id         text PRIMARY KEY,
	user_id    text NOT NULL,
	namespace  text NOT NULL,
	hash       text NOT NULL,
	embedding  vector,
	metadata   jsonb NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS memory_vectors_namespace_idx ON memory_vectors (user_id, namespace);
CREATE INDEX IF NOT EXISTS memory_vectors_hash_idx ON memory_vectors (user_id, namespace, hash);
`

type migrator struct{}

func (m *migrator) Name() string { return "pgvector" }

func (m *migrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.VectorMigrateAtStart || cfg.VectorStoreBackend != "pgvector" || cfg.DBURL == "" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	return db.Exec(schemaSQL).Error
}

func init() {
	registryvector.Register(registryvector.Plugin{Name: "pgvector", Loader: load})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &migrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("pgvector: missing config in context")
	}
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}
	return &Store{db: db}, nil
}

func openDB(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
}

// Store implements VectorStore using the pgvector extension.
type Store struct {
	db *gorm.DB
}

func (s *Store) Name() string    { return "pgvector" }
func (s *Store) IsEnabled() bool { return true }

func (s *Store) Put(ctx context.Context, rec registryvector.Record) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	vec := pgvec.NewVector(rec.Vector)
	return s.db.WithContext(ctx).Exec(`
		INSERT INTO memory_vectors (id, user_id, namespace, hash, embedding, metadata)
		VALUES (?, ?, ?, ?, ?::vector, ?::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			namespace = EXCLUDED.namespace, hash = EXCLUDED.hash,
			embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`,
		rec.ID, rec.UserID, rec.Namespace, rec.Hash, vec, string(metadata),
	).Error
}

func (s *Store) Get(ctx context.Context, id string) (*registryvector.Record, error) {
	row := s.db.WithContext(ctx).Raw(
		`SELECT id, user_id, namespace, hash, metadata FROM memory_vectors WHERE id = ?`, id,
	).Row()
	var rec registryvector.Record
	var metadata string
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Namespace, &rec.Hash, &metadata); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Exec(`DELETE FROM memory_vectors WHERE id = ?`, id).Error
}

func (s *Store) UpdateFields(ctx context.Context, id string, metadata map[string]any, vector []float32) error {
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		if err := s.db.WithContext(ctx).Exec(
			`UPDATE memory_vectors SET metadata = metadata || ?::jsonb WHERE id = ?`, string(b), id,
		).Error; err != nil {
			return err
		}
	}
	if vector != nil {
		vec := pgvec.NewVector(vector)
		if err := s.db.WithContext(ctx).Exec(
			`UPDATE memory_vectors SET embedding = ?::vector WHERE id = ?`, vec, id,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	where := "user_id = ? AND namespace LIKE ?"
	args := []any{req.UserID, req.Namespace + "%"}

	if clause, fargs := req.Filter.BuildSQLFilter("metadata"); clause != "" {
		where += " AND " + clause
		args = append(args, fargs...)
	}

	var rows *gorm.DB
	if req.Vector != nil {
		vec := pgvec.NewVector(req.Vector)
		query := fmt.Sprintf(`
			SELECT id, metadata, 1 - (embedding <=> ?::vector) AS score
			FROM memory_vectors WHERE %s
			ORDER BY embedding <=> ?::vector LIMIT ?`, where)
		fullArgs := append([]any{vec}, args...)
		fullArgs = append(fullArgs, vec, req.Limit)
		rows = s.db.WithContext(ctx).Raw(query, fullArgs...)
	} else {
		query := fmt.Sprintf(`SELECT id, metadata, 1.0 AS score FROM memory_vectors WHERE %s LIMIT ?`, where)
		args = append(args, req.Limit)
		rows = s.db.WithContext(ctx).Raw(query, args...)
	}

	result, err := rows.Rows()
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var out []registryvector.SearchResult
	for result.Next() {
		var r registryvector.SearchResult
		var metadata string
		if err := result.Scan(&r.ID, &metadata, &r.Score); err != nil {
			log.Error("pgvector scan error", "err", err)
			continue
		}
		_ = json.Unmarshal([]byte(metadata), &r.Metadata)
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, userID, namespacePrefix string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT count(*) FROM memory_vectors WHERE user_id = ? AND namespace LIKE ?
			AND coalesce(metadata->>'deleted_at', '') = ''`,
		userID, namespacePrefix+"%",
	).Row().Scan(&count)
	return int(count), err
}

var _ registryvector.VectorStore = (*Store)(nil)
