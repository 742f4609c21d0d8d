// Package mongo adapts C6's durable TaskStore onto MongoDB, grounded on
// the teacher's internal/plugin/store/mongo connection setup
// (mongo.Connect + Ping-to-fail-fast, pool size from DBMaxOpenConns/
// DBMaxIdleConns) and its CreateTask/ClaimReadyTasks/FailTask/DeleteTask
// quartet, generalized from the teacher's nullable-taskName upsert
// singleton to a required unique fingerprint. ClaimReady claims up to
// limit tasks per call by repeating FindOneAndUpdate, one atomic claim
// per task, until limit is reached or no ready task remains.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/chirino/agent-memory-service/internal/config"
	registrytaskstore "github.com/chirino/agent-memory-service/internal/registry/taskstore"
	"github.com/chirino/agent-memory-service/internal/ulid"
)

func init() {
	registrytaskstore.Register(registrytaskstore.Plugin{Name: "mongo", Loader: load})
}

func load(ctx context.Context) (registrytaskstore.TaskStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DBURL == "" {
		return nil, fmt.Errorf("mongo taskstore: db_url is required")
	}
	opts := options.Client().ApplyURI(cfg.DBURL)
	if cfg.DBMaxOpenConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
	}
	if cfg.DBMaxIdleConns > 0 {
		opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("mongo taskstore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo taskstore: ping: %w", err)
	}
	db := client.Database("agent_memory_service")
	return &Store{client: client, tasks: db.Collection("tasks")}, nil
}

// Store implements TaskStore against a MongoDB "tasks" collection.
type Store struct {
	client *mongo.Client
	tasks  *mongo.Collection
}

type taskDoc struct {
	ID           string         `bson:"_id"`
	TaskName     string         `bson:"task_name"`
	Fingerprint  string         `bson:"fingerprint"`
	Args         map[string]any `bson:"args"`
	Periodic     bool           `bson:"periodic"`
	IntervalMs   int64          `bson:"interval_ms"`
	CreatedAt    time.Time      `bson:"created_at"`
	RetryAt      time.Time      `bson:"retry_at"`
	ProcessingAt *time.Time     `bson:"processing_at"`
	RetryCount   int            `bson:"retry_count"`
	LastError    string         `bson:"last_error"`
}

func fromDoc(d taskDoc) registrytaskstore.Task {
	return registrytaskstore.Task{
		ID:          d.ID,
		TaskName:    d.TaskName,
		Fingerprint: d.Fingerprint,
		Args:        d.Args,
		Periodic:    d.Periodic,
		Interval:    time.Duration(d.IntervalMs) * time.Millisecond,
		CreatedAt:   d.CreatedAt,
		RetryAt:     d.RetryAt,
		RetryCount:  d.RetryCount,
		LastError:   d.LastError,
	}
}

func (s *Store) Enqueue(ctx context.Context, t registrytaskstore.Task) error {
	if t.ID == "" {
		t.ID = ulid.New()
	}
	now := time.Now()
	doc := taskDoc{
		ID: t.ID, TaskName: t.TaskName, Fingerprint: t.Fingerprint, Args: t.Args,
		Periodic: t.Periodic, IntervalMs: t.Interval.Milliseconds(),
		CreatedAt: now, RetryAt: now,
	}
	_, err := s.tasks.UpdateOne(ctx,
		bson.M{"fingerprint": t.Fingerprint},
		bson.M{"$setOnInsert": doc},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (s *Store) SchedulePeriodic(ctx context.Context, t registrytaskstore.Task) error {
	if t.ID == "" {
		t.ID = ulid.New()
	}
	now := time.Now()
	_, err := s.tasks.UpdateOne(ctx,
		bson.M{"fingerprint": t.Fingerprint},
		bson.M{
			"$setOnInsert": bson.M{"_id": t.ID, "task_name": t.TaskName, "fingerprint": t.Fingerprint,
				"args": t.Args, "periodic": true, "created_at": now, "retry_at": now},
			"$set": bson.M{"interval_ms": t.Interval.Milliseconds()},
		},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (s *Store) ClaimReady(ctx context.Context, limit int) ([]registrytaskstore.Task, error) {
	now := time.Now()
	staleClaimCutoff := now.Add(-5 * time.Minute)

	var tasks []registrytaskstore.Task
	for i := 0; i < limit; i++ {
		filter := bson.M{
			"retry_at": bson.M{"$lte": now},
			"$or": []bson.M{
				{"processing_at": nil},
				{"processing_at": bson.M{"$lt": staleClaimCutoff}},
			},
		}
		update := bson.M{"$set": bson.M{"processing_at": now, "retry_at": now.Add(5 * time.Minute)}}
		opts := options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "retry_at", Value: 1}, {Key: "created_at", Value: 1}}).
			SetReturnDocument(options.After)

		var doc taskDoc
		err := s.tasks.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				break
			}
			return nil, fmt.Errorf("mongo taskstore: claim ready: %w", err)
		}
		tasks = append(tasks, fromDoc(doc))
	}
	return tasks, nil
}

func (s *Store) Fail(ctx context.Context, id string, errMsg string, retryDelay time.Duration) error {
	_, err := s.tasks.UpdateByID(ctx, id, bson.M{
		"$inc": bson.M{"retry_count": 1},
		"$set": bson.M{
			"retry_at":      time.Now().Add(retryDelay),
			"last_error":    errMsg,
			"processing_at": nil,
		},
	})
	return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.tasks.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *Store) Reschedule(ctx context.Context, id string, delay time.Duration) error {
	_, err := s.tasks.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"retry_at": time.Now().Add(delay), "processing_at": nil},
	})
	return err
}

var _ registrytaskstore.TaskStore = (*Store)(nil)
