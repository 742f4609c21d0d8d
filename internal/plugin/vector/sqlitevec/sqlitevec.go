// Package sqlitevec adapts C2 (VectorStore) onto SQLite plus the
// asg017/sqlite-vec extension, the embedded single-file alternative to
// pgvector.go's Postgres-backed adapter for local/dev deployments that
// don't want to run a database server. Grounded on pgvector.go's
// gorm-over-raw-SQL shape and migrator registration, with redis.go's
// binary-encoded vector field convention standing in for a vector
// readback path: vec0's KNN index exposes no supported way to read a
// stored vector back out, so the raw encoding is kept in a companion
// metadata row instead.
package sqlitevec

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/charmbracelet/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chirino/agent-memory-service/internal/config"
	registrymigrate "github.com/chirino/agent-memory-service/internal/registry/migrate"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
)

var registerVecExtensionOnce sync.Once

const schemaSQL = `
CREATE TABLE IF NOT EXISTS memory_vectors_meta (
	id        TEXT PRIMARY KEY,
	user_id   TEXT NOT NULL,
	namespace TEXT NOT NULL,
	hash      TEXT NOT NULL,
	embedding BLOB NOT NULL,
	metadata  TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS memory_vectors_meta_namespace_idx ON memory_vectors_meta (user_id, namespace);
CREATE INDEX IF NOT EXISTS memory_vectors_meta_hash_idx ON memory_vectors_meta (user_id, namespace, hash);
`

func vecTableSQL(dimensions int) string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS memory_vectors_vec USING vec0(
		id TEXT PRIMARY KEY,
		embedding FLOAT[%d]
	)`, dimensions)
}

type migrator struct{}

func (m *migrator) Name() string { return "sqlitevec" }

func (m *migrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.VectorMigrateAtStart || cfg.VectorStoreBackend != "sqlitevec" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := openDB(cfg.SQLiteVecPath)
	if err != nil {
		return fmt.Errorf("sqlitevec migrate: %w", err)
	}
	if err := db.Exec(schemaSQL).Error; err != nil {
		return err
	}
	return db.Exec(vecTableSQL(cfg.VectorDimensions)).Error
}

func init() {
	registryvector.Register(registryvector.Plugin{Name: "sqlitevec", Loader: load})
	registrymigrate.Register(registrymigrate.Plugin{Order: 210, Migrator: &migrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("sqlitevec: missing config in context")
	}
	db, err := openDB(cfg.SQLiteVecPath)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: %w", err)
	}
	return &Store{db: db, dimensions: cfg.VectorDimensions}, nil
}

func openDB(path string) (*gorm.DB, error) {
	registerVecExtensionOnce.Do(sqlite_vec.Auto)
	if path == "" {
		path = "agent-memory.db"
	}
	return gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
}

// Store implements VectorStore over a local SQLite file, using a vec0
// virtual table purely as an ANN index and a companion metadata table
// (also carrying the raw vector bytes) for everything a lookup or
// filter-only search needs.
type Store struct {
	db         *gorm.DB
	dimensions int
}

func (s *Store) Name() string    { return "sqlitevec" }
func (s *Store) IsEnabled() bool { return true }

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func (s *Store) Put(ctx context.Context, rec registryvector.Record) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Exec(`
		INSERT INTO memory_vectors_meta (id, user_id, namespace, hash, embedding, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			namespace = excluded.namespace, hash = excluded.hash,
			embedding = excluded.embedding, metadata = excluded.metadata`,
		rec.ID, rec.UserID, rec.Namespace, rec.Hash, encodeVector(rec.Vector), string(metadata),
	).Error; err != nil {
		return err
	}
	return s.putVec(ctx, rec.ID, rec.Vector)
}

// putVec replaces the ANN index row for id. vec0 tables don't support
// INSERT ... ON CONFLICT, so a stale entry is deleted first.
func (s *Store) putVec(ctx context.Context, id string, vector []float32) error {
	if len(vector) == 0 {
		return nil
	}
	serialized, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Exec(`DELETE FROM memory_vectors_vec WHERE id = ?`, id).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Exec(`INSERT INTO memory_vectors_vec (id, embedding) VALUES (?, ?)`, id, serialized).Error
}

func (s *Store) Get(ctx context.Context, id string) (*registryvector.Record, error) {
	row := s.db.WithContext(ctx).Raw(
		`SELECT id, user_id, namespace, hash, embedding, metadata FROM memory_vectors_meta WHERE id = ?`, id,
	).Row()
	var rec registryvector.Record
	var embedding []byte
	var metadata string
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Namespace, &rec.Hash, &embedding, &metadata); err != nil {
		return nil, err
	}
	rec.Vector = decodeVector(embedding)
	if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Exec(`DELETE FROM memory_vectors_vec WHERE id = ?`, id).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Exec(`DELETE FROM memory_vectors_meta WHERE id = ?`, id).Error
}

func (s *Store) UpdateFields(ctx context.Context, id string, metadata map[string]any, vector []float32) error {
	if metadata != nil {
		existing, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		for k, v := range metadata {
			existing.Metadata[k] = v
		}
		b, err := json.Marshal(existing.Metadata)
		if err != nil {
			return err
		}
		if err := s.db.WithContext(ctx).Exec(
			`UPDATE memory_vectors_meta SET metadata = ? WHERE id = ?`, string(b), id,
		).Error; err != nil {
			return err
		}
	}
	if vector != nil {
		if err := s.db.WithContext(ctx).Exec(
			`UPDATE memory_vectors_meta SET embedding = ? WHERE id = ?`, encodeVector(vector), id,
		).Error; err != nil {
			return err
		}
		if err := s.putVec(ctx, id, vector); err != nil {
			return err
		}
	}
	return nil
}

// candidateLimit bounds how many rows an ANN probe returns before
// app-side filter.Match narrows them to req.Limit, the same client-side
// filtering shape memtest.Store and redis.Store use since neither
// SQLite nor vec0 understand the Postgres-flavored
// filter.Expression.BuildSQLFilter dialect.
const candidateLimit = 500

func (s *Store) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	if req.Vector != nil {
		return s.searchByVector(ctx, req)
	}
	return s.searchByFilter(ctx, req)
}

func (s *Store) searchByVector(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	serialized, err := sqlite_vec.SerializeFloat32(req.Vector)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT id, distance FROM memory_vectors_vec
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`, serialized, candidateLimit).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []registryvector.SearchResult
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			log.Error("sqlitevec scan error", "err", err)
			continue
		}
		rec, err := s.Get(ctx, id)
		if err != nil || rec.UserID != req.UserID || !hasNamespacePrefix(rec.Namespace, req.Namespace) {
			continue
		}
		if req.Filter != nil && !req.Filter.Match(rec.Metadata) {
			continue
		}
		out = append(out, registryvector.SearchResult{ID: id, Score: 1 - distance, Metadata: rec.Metadata})
		if len(out) >= req.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) searchByFilter(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	rows, err := s.db.WithContext(ctx).Raw(
		`SELECT id, metadata FROM memory_vectors_meta WHERE user_id = ? AND namespace LIKE ? LIMIT ?`,
		req.UserID, req.Namespace+"%", candidateLimit,
	).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []registryvector.SearchResult
	for rows.Next() {
		var id, metadataRaw string
		if err := rows.Scan(&id, &metadataRaw); err != nil {
			log.Error("sqlitevec scan error", "err", err)
			continue
		}
		var metadata map[string]any
		if err := json.Unmarshal([]byte(metadataRaw), &metadata); err != nil {
			continue
		}
		if req.Filter != nil && !req.Filter.Match(metadata) {
			continue
		}
		out = append(out, registryvector.SearchResult{ID: id, Score: 1.0, Metadata: metadata})
		if len(out) >= req.Limit {
			break
		}
	}
	return out, nil
}

func hasNamespacePrefix(namespace, prefix string) bool {
	return len(namespace) >= len(prefix) && namespace[:len(prefix)] == prefix
}

// Count excludes tombstoned records (metadata.deleted_at set), matching
// the visibility rule Search already applies at the query.Service layer.
func (s *Store) Count(ctx context.Context, userID, namespacePrefix string) (int, error) {
	rows, err := s.db.WithContext(ctx).Raw(
		`SELECT metadata FROM memory_vectors_meta WHERE user_id = ? AND namespace LIKE ?`,
		userID, namespacePrefix+"%",
	).Rows()
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var metadataRaw string
		if err := rows.Scan(&metadataRaw); err != nil {
			log.Error("sqlitevec scan error", "err", err)
			continue
		}
		var metadata map[string]any
		if err := json.Unmarshal([]byte(metadataRaw), &metadata); err != nil {
			continue
		}
		if deletedAt, _ := metadata["deleted_at"].(string); deletedAt != "" {
			continue
		}
		count++
	}
	return count, nil
}

var _ registryvector.VectorStore = (*Store)(nil)
