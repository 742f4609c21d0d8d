// Package qdrant adapts C2 (VectorStore) onto Qdrant, grounded on the
// teacher's internal/plugin/vector/qdrant (same lazy collection-create
// migrator, API-key PerRPCCredentials, and collection-name derivation
// from embedder model + dimension), generalized from per-entry payloads
// keyed by conversation_group_id to per-MemoryRecord payloads keyed by
// (user_id, namespace). user_id and namespace are pushed down as Qdrant
// filter conditions; metadata filters are applied in Go to the points
// Qdrant returns, so a filtered search sees only the first Limit points
// matching user_id/namespace.
package qdrant

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/chirino/agent-memory-service/internal/config"
	registrymigrate "github.com/chirino/agent-memory-service/internal/registry/migrate"
	registryvector "github.com/chirino/agent-memory-service/internal/registry/vectorstore"
)

type migrator struct{}

func (m *migrator) Name() string { return "qdrant" }

func (m *migrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.VectorStoreBackend != "qdrant" || !cfg.VectorMigrateAtStart {
		return nil
	}

	log.Info("Running migration", "name", m.Name())
	migrateCtx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("qdrant migrate: connect: %w", err)
	}
	defer conn.Close()

	client := pb.NewCollectionsClient(conn)
	collectionName := effectiveCollectionName(cfg)

	if _, err := client.Get(migrateCtx, &pb.GetCollectionInfoRequest{CollectionName: collectionName}); err == nil {
		return nil
	}

	vectorSize := effectiveEmbeddingDimension(cfg)
	_, err = client.Create(migrateCtx, &pb.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: vectorSize, Distance: pb.Distance_Cosine},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 newUint64(16),
			EfConstruct:       newUint64(64),
			FullScanThreshold: newUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: create collection: %w", err)
	}
	log.Info("Created Qdrant collection", "name", collectionName)
	return nil
}

func init() {
	registryvector.Register(registryvector.Plugin{Name: "qdrant", Loader: load})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &migrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: missing config in context")
	}
	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &Store{
		points:         pb.NewPointsClient(conn),
		conn:           conn,
		collectionName: effectiveCollectionName(cfg),
	}, nil
}

// Store implements VectorStore using a Qdrant collection.
type Store struct {
	points         pb.PointsClient
	conn           *grpc.ClientConn
	collectionName string
}

func (s *Store) Name() string    { return "qdrant" }
func (s *Store) IsEnabled() bool { return true }

func (s *Store) Put(ctx context.Context, rec registryvector.Record) error {
	payload := metadataToPayload(rec.Metadata)
	payload["user_id"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: rec.UserID}}
	payload["namespace"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: rec.Namespace}}
	payload["hash"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: rec.Hash}}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collectionName,
		Points: []*pb.PointStruct{{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: rec.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Vector}}},
			Payload: payload,
		}},
	})
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*registryvector.Record, error) {
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collectionName,
		Ids:            []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.GetResult()) == 0 {
		return nil, fmt.Errorf("qdrant: point %s not found", id)
	}
	pt := resp.GetResult()[0]
	return &registryvector.Record{
		ID:        id,
		UserID:    stringField(pt.GetPayload(), "user_id"),
		Namespace: stringField(pt.GetPayload(), "namespace"),
		Hash:      stringField(pt.GetPayload(), "hash"),
		Metadata:  payloadToMetadata(pt.GetPayload()),
	}, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collectionName,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}}},
		}},
	})
	return err
}

func (s *Store) UpdateFields(ctx context.Context, id string, metadata map[string]any, vector []float32) error {
	if len(metadata) > 0 {
		payload := metadataToPayload(metadata)
		if _, err := s.points.SetPayload(ctx, &pb.SetPayloadPoints{
			CollectionName: s.collectionName,
			Payload:        payload,
			PointsSelector: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}}},
			}},
		}); err != nil {
			return err
		}
	}
	if vector != nil {
		if _, err := s.points.UpdateVectors(ctx, &pb.UpdatePointVectors{
			CollectionName: s.collectionName,
			Points: []*pb.PointVectors{{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
			}},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, req registryvector.SearchRequest) ([]registryvector.SearchResult, error) {
	must := []*pb.Condition{
		matchKeyword("user_id", req.UserID),
	}
	if req.Namespace != "" {
		must = append(must, matchTextPrefix("namespace", req.Namespace))
	}

	if req.Vector != nil {
		resp, err := s.points.Search(ctx, &pb.SearchPoints{
			CollectionName: s.collectionName,
			Vector:         req.Vector,
			Limit:          uint64(req.Limit),
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			Filter:         &pb.Filter{Must: must},
		})
		if err != nil {
			return nil, err
		}
		var out []registryvector.SearchResult
		for _, pt := range resp.GetResult() {
			metadata := payloadToMetadata(pt.GetPayload())
			if req.Filter != nil && !req.Filter.Match(metadata) {
				continue
			}
			out = append(out, registryvector.SearchResult{
				ID:       pt.GetId().GetUuid(),
				Score:    float64(pt.GetScore()),
				Metadata: metadata,
			})
		}
		return out, nil
	}

	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: s.collectionName,
		Filter:         &pb.Filter{Must: must},
		Limit:          uint32Ptr(uint32(req.Limit)),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, err
	}
	var out []registryvector.SearchResult
	for _, pt := range resp.GetResult() {
		metadata := payloadToMetadata(pt.GetPayload())
		if req.Filter != nil && !req.Filter.Match(metadata) {
			continue
		}
		out = append(out, registryvector.SearchResult{
			ID:       pt.GetId().GetUuid(),
			Score:    1.0,
			Metadata: metadata,
		})
	}
	return out, nil
}

// countScrollLimit bounds how many points Count scrolls through to
// exclude tombstones in Go; Qdrant's CountPoints filter can't express
// "payload field absent", so the deleted_at check happens application
// side like Search's own payload-metadata decoding.
const countScrollLimit = 10000

func (s *Store) Count(ctx context.Context, userID, namespacePrefix string) (int, error) {
	must := []*pb.Condition{matchKeyword("user_id", userID)}
	if namespacePrefix != "" {
		must = append(must, matchTextPrefix("namespace", namespacePrefix))
	}
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: s.collectionName,
		Filter:         &pb.Filter{Must: must},
		Limit:          uint32Ptr(countScrollLimit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, pt := range resp.GetResult() {
		metadata := payloadToMetadata(pt.GetPayload())
		if deletedAt, _ := metadata["deleted_at"].(string); deletedAt != "" {
			continue
		}
		count++
	}
	return count, nil
}

func matchKeyword(key, value string) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{
		Field: &pb.FieldCondition{Key: key, Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}}},
	}}
}

func matchTextPrefix(key, prefix string) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{
		Field: &pb.FieldCondition{Key: key, Match: &pb.Match{MatchValue: &pb.Match_Text{Text: prefix}}},
	}}
}

func metadataToPayload(metadata map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(metadata))
	for k, v := range metadata {
		switch t := v.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: t}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: t}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(t)}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: t}}
		}
	}
	return payload
}

func payloadToMetadata(payload map[string]*pb.Value) map[string]any {
	metadata := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *pb.Value_StringValue:
			metadata[k] = kind.StringValue
		case *pb.Value_DoubleValue:
			metadata[k] = kind.DoubleValue
		case *pb.Value_IntegerValue:
			metadata[k] = kind.IntegerValue
		case *pb.Value_BoolValue:
			metadata[k] = kind.BoolValue
		}
	}
	return metadata
}

func stringField(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key].GetKind().(*pb.Value_StringValue); ok {
		return v.StringValue
	}
	return ""
}

func newUint64(v uint64) *uint64 { return &v }
func uint32Ptr(v uint32) *uint32 { return &v }

func dialOptions(cfg *config.Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{
			apiKey:     cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	return opts
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}

func effectiveEmbeddingDimension(cfg *config.Config) uint64 {
	if cfg == nil {
		return 1536
	}
	if cfg.VectorDimensions > 0 {
		return uint64(cfg.VectorDimensions)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.EmbedType)) {
	case "local":
		return 384
	default:
		return 1536
	}
}

func effectiveCollectionName(cfg *config.Config) string {
	if cfg == nil {
		return "agent-memory_local-384"
	}
	prefix := strings.TrimSpace(cfg.QdrantCollectionPrefix)
	if prefix == "" {
		prefix = "agent-memory"
	}
	model := "openai-" + cfg.OpenAIModelName
	if strings.ToLower(strings.TrimSpace(cfg.EmbedType)) == "local" {
		model = "local-all-minilm-l6-v2"
	}
	model = strings.NewReplacer("/", "-", " ", "-", "_", "-").Replace(strings.ToLower(model))
	return fmt.Sprintf("%s_%s-%d", prefix, model, effectiveEmbeddingDimension(cfg))
}

var _ registryvector.VectorStore = (*Store)(nil)
