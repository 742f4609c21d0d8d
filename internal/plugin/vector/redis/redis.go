// Package redis adapts C2 (VectorStore) onto Redis Stack, the default
// backend named in SPEC_FULL.md §4.2. Grounded on the teacher's
// internal/plugin/cache/redis (same LoadFromURL/client/TTL conventions)
// and internal/plugin/vector/qdrant's lazy-migrate-on-first-use shape,
// generalized to RediSearch HNSW vector fields: each MemoryRecord is one
// hash with a binary-encoded vector field plus JSON-tagged metadata
// fields, addressed through an FT.SEARCH KNN query.
package redis

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chirino/agent-memory-service/internal/config"
	"github.com/chirino/agent-memory-service/internal/filter"
	registrymigrate "github.com/chirino/agent-memory-service/internal/registry/migrate"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
)

const indexName = "idx:memory_vectors"
const keyPrefix = "mv:"

type migrator struct{ store *Store }

func (m *migrator) Name() string { return "redis-vectorstore" }

func (m *migrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.VectorStoreBackend != "redis" || !cfg.VectorMigrateAtStart {
		return nil
	}
	client, err := dial(cfg)
	if err != nil {
		return fmt.Errorf("redis vectorstore migrate: %w", err)
	}
	defer client.Close()
	return ensureIndex(ctx, client, cfg.VectorDimensions)
}

func ensureIndex(ctx context.Context, client *goredis.Client, dimensions int) error {
	args := []any{
		"FT.CREATE", indexName, "ON", "HASH", "PREFIX", "1", keyPrefix,
		"SCHEMA",
		"user_id", "TAG",
		"namespace", "TEXT",
		"hash", "TAG",
		"metadata", "TEXT",
		"vector", "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32", "DIM", dimensions, "DISTANCE_METRIC", "COSINE",
	}
	err := client.Do(ctx, args...).Err()
	if err != nil && strings.Contains(err.Error(), "Index already exists") {
		return nil
	}
	return err
}

func init() {
	registryvector.Register(registryvector.Plugin{Name: "redis", Loader: load})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &migrator{}})
}

func dial(cfg *config.Config) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return goredis.NewClient(opts), nil
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis vectorstore: redis_url is required")
	}
	client, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis vectorstore: ping: %w", err)
	}
	return &Store{client: client, dimensions: cfg.VectorDimensions}, nil
}

// Store implements VectorStore against a RediSearch HNSW index.
type Store struct {
	client     *goredis.Client
	dimensions int
}

func (s *Store) Name() string    { return "redis" }
func (s *Store) IsEnabled() bool { return true }

func key(id string) string { return keyPrefix + id }

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
	fields := map[string]any{
		"user_id":   rec.UserID,
		"namespace": rec.Namespace,
		"hash":      rec.Hash,
		"metadata":  encodeMetadata(rec.Metadata),
	}
	if rec.Vector != nil {
		fields["vector"] = encodeVector(rec.Vector)
	}
	return s.client.HSet(ctx, key(rec.ID), fields).Err()
}

func (s *Store) Get(ctx context.Context, id string) (*registryvector.Record, error) {
	vals, err := s.client.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("redis vectorstore: record %s not found", id)
	}
	return &registryvector.Record{
		ID:        id,
		UserID:    vals["user_id"],
		Namespace: vals["namespace"],
		Hash:      vals["hash"],
		Metadata:  decodeMetadata(vals["metadata"]),
	}, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, key(id)).Err()
}

func (s *Store) UpdateFields(ctx context.Context, id string, metadata map[string]any, vector []float32) error {
	if len(metadata) == 0 && vector == nil {
		return nil
	}
	if len(metadata) > 0 {
		existing, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		for k, v := range metadata {
			existing.Metadata[k] = v
		}
		if err := s.client.HSet(ctx, key(id), "metadata", encodeMetadata(existing.Metadata)).Err(); err != nil {
			return err
		}
	}
	if vector != nil {
		if err := s.client.HSet(ctx, key(id), "vector", encodeVector(vector)).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	query := fmt.Sprintf("@user_id:{%s}", escapeTag(req.UserID))
	if req.Namespace != "" {
		query += fmt.Sprintf(" @namespace:%s*", req.Namespace)
	}

	if req.Vector == nil {
		args := []any{"FT.SEARCH", indexName, query, "LIMIT", 0, req.Limit}
		res, err := s.client.Do(ctx, args...).Result()
		if err != nil {
			return nil, err
		}
		return parseSearchResults(res, req.Filter), nil
	}

	knnQuery := fmt.Sprintf("(%s)=>[KNN %d @vector $vec AS score]", query, req.Limit)
	args := []any{
		"FT.SEARCH", indexName, knnQuery,
		"PARAMS", 2, "vec", encodeVector(req.Vector),
		"SORTBY", "score",
		"DIALECT", 2,
		"LIMIT", 0, req.Limit,
	}
	res, err := s.client.Do(ctx, args...).Result()
	if err != nil {
		return nil, err
	}
	return parseSearchResults(res, req.Filter), nil
}

// countLimit bounds how many documents Count fetches to filter
// tombstones out in Go, RediSearch having no indexed field to exclude
// them with server-side (metadata is a single opaque TEXT field).
const countLimit = 10000

func (s *Store) Count(ctx context.Context, userID, namespacePrefix string) (int, error) {
	query := fmt.Sprintf("@user_id:{%s}", escapeTag(userID))
	if namespacePrefix != "" {
		query += fmt.Sprintf(" @namespace:%s*", namespacePrefix)
	}
	res, err := s.client.Do(ctx, "FT.SEARCH", indexName, query, "LIMIT", 0, countLimit).Result()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range parseSearchResults(res, nil) {
		if deletedAt, _ := r.Metadata["deleted_at"].(string); deletedAt != "" {
			continue
		}
		count++
	}
	return count, nil
}

func escapeTag(s string) string {
	return strings.NewReplacer("-", "\\-", " ", "\\ ").Replace(s)
}

func encodeMetadata(m map[string]any) string {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeMetadata(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

// parseSearchResults decodes an FT.SEARCH reply of the shape
// [total, docID1, [field, value, ...], docID2, [field, value, ...], ...]
// applying req.Filter as a post-filter since RediSearch's own filter
// syntax cannot express the generic Expression shape.
func parseSearchResults(reply any, expr filter.Expression) []registryvector.SearchResult {
	arr, ok := reply.([]any)
	if !ok || len(arr) < 1 {
		return nil
	}
	var out []registryvector.SearchResult
	for i := 1; i+1 < len(arr); i += 2 {
		docID, _ := arr[i].(string)
		id := strings.TrimPrefix(docID, keyPrefix)
		fieldsArr, ok := arr[i+1].([]any)
		if !ok {
			continue
		}
		result := registryvector.SearchResult{ID: id, Metadata: map[string]any{}}
		for j := 0; j+1 < len(fieldsArr); j += 2 {
			name, _ := fieldsArr[j].(string)
			switch name {
			case "metadata":
				if s, ok := fieldsArr[j+1].(string); ok {
					result.Metadata = decodeMetadata(s)
				}
			case "score":
				if s, ok := fieldsArr[j+1].(string); ok {
					var f float64
					if _, err := fmt.Sscanf(s, "%g", &f); err == nil {
						result.Score = 1 - f
					}
				}
			}
		}
		if expr != nil && !expr.Match(result.Metadata) {
			continue
		}
		out = append(out, result)
	}
	return out
}

var _ registryvector.VectorStore = (*Store)(nil)
