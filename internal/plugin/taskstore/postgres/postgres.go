// Package postgres adapts C6's durable TaskStore onto Postgres via gorm,
// grounded directly on the teacher's internal/plugin/store/postgres
// CreateTask/ClaimReadyTasks/FailTask/DeleteTask quartet: the same
// FOR UPDATE SKIP LOCKED claim CTE and unique-violation-as-no-op enqueue
// idempotency, generalized with a fingerprint column (replacing the
// teacher's nullable taskName singleton column) and a periodic/interval
// pair for schedule_periodic.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chirino/agent-memory-service/internal/config"
	registrymigrate "github.com/chirino/agent-memory-service/internal/registry/migrate"
	registrytaskstore "github.com/chirino/agent-memory-service/internal/registry/taskstore"
	"github.com/chirino/agent-memory-service/internal/ulid"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id           text PRIMARY KEY,
	task_name    text NOT NULL,
	fingerprint  text NOT NULL UNIQUE,
	args         jsonb NOT NULL DEFAULT '{}'::jsonb,
	periodic     boolean NOT NULL DEFAULT false,
	interval_ms  bigint NOT NULL DEFAULT 0,
	created_at   timestamptz NOT NULL DEFAULT now(),
	retry_at     timestamptz NOT NULL DEFAULT now(),
	retry_count  integer NOT NULL DEFAULT 0,
	last_error   text NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS tasks_retry_at_idx ON tasks (retry_at);
`

type migrator struct{}

func (m *migrator) Name() string { return "postgres-taskstore" }

func (m *migrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.TaskStoreBackend != "postgres" || cfg.DBURL == "" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("postgres taskstore migrate: %w", err)
	}
	return db.Exec(schemaSQL).Error
}

func init() {
	registrytaskstore.Register(registrytaskstore.Plugin{Name: "postgres", Loader: load})
	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &migrator{}})
}

func openDB(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
}

func load(ctx context.Context) (registrytaskstore.TaskStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("postgres taskstore: missing config in context")
	}
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("postgres taskstore: %w", err)
	}
	return &Store{db: db}, nil
}

type taskRow struct {
	ID          string    `gorm:"column:id;primaryKey"`
	TaskName    string    `gorm:"column:task_name"`
	Fingerprint string    `gorm:"column:fingerprint"`
	Args        string    `gorm:"column:args"`
	Periodic    bool      `gorm:"column:periodic"`
	IntervalMs  int64     `gorm:"column:interval_ms"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	RetryAt     time.Time `gorm:"column:retry_at"`
	RetryCount  int       `gorm:"column:retry_count"`
	LastError   string    `gorm:"column:last_error"`
}

func (taskRow) TableName() string { return "tasks" }

func toRow(t registrytaskstore.Task) (taskRow, error) {
	if t.ID == "" {
		t.ID = ulid.New()
	}
	args, err := json.Marshal(t.Args)
	if err != nil {
		return taskRow{}, err
	}
	return taskRow{
		ID:          t.ID,
		TaskName:    t.TaskName,
		Fingerprint: t.Fingerprint,
		Args:        string(args),
		Periodic:    t.Periodic,
		IntervalMs:  t.Interval.Milliseconds(),
		RetryAt:     time.Now(),
	}, nil
}

func fromRow(r taskRow) registrytaskstore.Task {
	var args map[string]any
	_ = json.Unmarshal([]byte(r.Args), &args)
	return registrytaskstore.Task{
		ID:          r.ID,
		TaskName:    r.TaskName,
		Fingerprint: r.Fingerprint,
		Args:        args,
		Periodic:    r.Periodic,
		Interval:    time.Duration(r.IntervalMs) * time.Millisecond,
		CreatedAt:   r.CreatedAt,
		RetryAt:     r.RetryAt,
		RetryCount:  r.RetryCount,
		LastError:   r.LastError,
	}
}

// Store implements TaskStore against a Postgres "tasks" table.
type Store struct {
	db *gorm.DB
}

func (s *Store) Enqueue(ctx context.Context, t registrytaskstore.Task) error {
	row, err := toRow(t)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Create(&row).Error
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// Fingerprint already in flight; idempotent no-op.
		return nil
	}
	return err
}

func (s *Store) SchedulePeriodic(ctx context.Context, t registrytaskstore.Task) error {
	t.Periodic = true
	row, err := toRow(t)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Exec(`
			INSERT INTO tasks (id, task_name, fingerprint, args, periodic, interval_ms, retry_at)
			VALUES (?, ?, ?, ?::jsonb, true, ?, now())
			ON CONFLICT (fingerprint) DO UPDATE SET interval_ms = EXCLUDED.interval_ms`,
			row.ID, row.TaskName, row.Fingerprint, row.Args, row.IntervalMs,
		).Error
}

func (s *Store) ClaimReady(ctx context.Context, limit int) ([]registrytaskstore.Task, error) {
	var rows []taskRow
	err := s.db.WithContext(ctx).Raw(`
		WITH claimed AS (
			SELECT id
			FROM tasks
			WHERE retry_at <= NOW()
			ORDER BY retry_at, created_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		UPDATE tasks t
		SET retry_at = NOW() + INTERVAL '5 minutes'
		FROM claimed
		WHERE t.id = claimed.id
		RETURNING t.*
	`, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	tasks := make([]registrytaskstore.Task, len(rows))
	for i, r := range rows {
		tasks[i] = fromRow(r)
	}
	return tasks, nil
}

func (s *Store) Fail(ctx context.Context, id string, errMsg string, retryDelay time.Duration) error {
	return s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", id).Updates(map[string]any{
		"retry_count": gorm.Expr("retry_count + 1"),
		"retry_at":    time.Now().Add(retryDelay),
		"last_error":  errMsg,
	}).Error
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&taskRow{}).Error
}

func (s *Store) Reschedule(ctx context.Context, id string, delay time.Duration) error {
	return s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", id).
		Update("retry_at", time.Now().Add(delay)).Error
}

var _ registrytaskstore.TaskStore = (*Store)(nil)
