package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/macrador/distill/types"
)

// postgresSchema bootstraps the tables on first connect. Message and event
// logs are append-only; working memory, long-term memory and metrics are
// one latest-value row per run.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS distill_runs (
	id          TEXT PRIMARY KEY,
	objective   TEXT NOT NULL,
	scenario    TEXT NOT NULL DEFAULT 'C',
	config      JSONB NOT NULL,
	step_index  INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS distill_messages (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES distill_runs(id),
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	step_index  INTEGER NOT NULL,
	ts          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_distill_messages_run_ts ON distill_messages(run_id, ts);

CREATE TABLE IF NOT EXISTS distill_events (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES distill_runs(id),
	step_index  INTEGER NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	type        TEXT NOT NULL,
	payload     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_distill_events_run_ts ON distill_events(run_id, ts);

CREATE TABLE IF NOT EXISTS distill_working_memory (
	run_id      TEXT PRIMARY KEY REFERENCES distill_runs(id),
	cwm         JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS distill_long_term_memory (
	run_id      TEXT PRIMARY KEY REFERENCES distill_runs(id),
	ltm         JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS distill_metrics (
	run_id      TEXT PRIMARY KEY REFERENCES distill_runs(id),
	metrics     JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
`

// PostgresStore implements Store on PostgreSQL with pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connString, bootstraps the schema, and
// returns the store.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewPostgresStoreFromPool wraps an existing pool without migrating.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

// CreateRun implements Store.
func (s *PostgresStore) CreateRun(ctx context.Context, run *types.Run) error {
	config, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO distill_runs (id, objective, scenario, config, step_index, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Objective, run.Scenario, config, run.StepIndex, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun implements Store.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	var run types.Run
	var config []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, objective, scenario, config, step_index, created_at, updated_at
		FROM distill_runs WHERE id = $1`, runID).Scan(
		&run.ID, &run.Objective, &run.Scenario, &config, &run.StepIndex, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if err := json.Unmarshal(config, &run.Config); err != nil {
		return nil, fmt.Errorf("decode run config: %w", err)
	}
	return &run, nil
}

// UpdateRun implements Store.
func (s *PostgresStore) UpdateRun(ctx context.Context, runID string, stepIndex int, updatedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE distill_runs SET step_index = $2, updated_at = $3 WHERE id = $1`,
		runID, stepIndex, updatedAt)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// AppendMessage implements Store.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *types.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO distill_messages (id, run_id, role, content, step_index, ts)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.RunID, string(msg.Role), msg.Content, msg.StepIndex, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages implements Store.
func (s *PostgresStore) ListMessages(ctx context.Context, runID string, limit int) ([]types.Message, error) {
	limit = normalizeLimit(limit, DefaultMessageLimit)

	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, role, content, step_index, ts
		FROM distill_messages WHERE run_id = $1
		ORDER BY ts ASC LIMIT $2`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListSTMTail implements Store.
func (s *PostgresStore) ListSTMTail(ctx context.Context, runID string, limit int) ([]types.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, role, content, step_index, ts
		FROM distill_messages WHERE run_id = $1
		ORDER BY ts DESC LIMIT $2`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list stm tail: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// AppendEvent implements Store.
func (s *PostgresStore) AppendEvent(ctx context.Context, event *types.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO distill_events (id, run_id, step_index, ts, type, payload)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.RunID, event.StepIndex, event.Timestamp, string(event.Type), payload)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents implements Store.
func (s *PostgresStore) ListEvents(ctx context.Context, runID string, limit int) ([]types.Event, error) {
	limit = normalizeLimit(limit, DefaultEventLimit)

	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, step_index, ts, type, payload
		FROM distill_events WHERE run_id = $1
		ORDER BY ts ASC LIMIT $2`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var ev types.Event
		var evType string
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.StepIndex, &ev.Timestamp, &evType, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = types.EventType(evType)
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SetWorkingMemory implements Store.
func (s *PostgresStore) SetWorkingMemory(ctx context.Context, runID string, wm *types.WorkingMemory) error {
	return s.upsertJSON(ctx, "distill_working_memory", "cwm", runID, wm)
}

// GetWorkingMemory implements Store.
func (s *PostgresStore) GetWorkingMemory(ctx context.Context, runID string) (*types.WorkingMemory, error) {
	var wm types.WorkingMemory
	ok, err := s.getJSON(ctx, "distill_working_memory", "cwm", runID, &wm)
	if err != nil || !ok {
		return nil, err
	}
	return &wm, nil
}

// SetLongTermMemory implements Store.
func (s *PostgresStore) SetLongTermMemory(ctx context.Context, runID string, ltm *types.LongTermMemory) error {
	return s.upsertJSON(ctx, "distill_long_term_memory", "ltm", runID, ltm)
}

// GetLongTermMemory implements Store.
func (s *PostgresStore) GetLongTermMemory(ctx context.Context, runID string) (*types.LongTermMemory, error) {
	var ltm types.LongTermMemory
	ok, err := s.getJSON(ctx, "distill_long_term_memory", "ltm", runID, &ltm)
	if err != nil || !ok {
		return nil, err
	}
	return &ltm, nil
}

// SetMetrics implements Store.
func (s *PostgresStore) SetMetrics(ctx context.Context, runID string, metrics *types.Metrics) error {
	return s.upsertJSON(ctx, "distill_metrics", "metrics", runID, metrics)
}

// GetMetrics implements Store.
func (s *PostgresStore) GetMetrics(ctx context.Context, runID string) (*types.Metrics, error) {
	var m types.Metrics
	if _, err := s.getJSON(ctx, "distill_metrics", "metrics", runID, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) upsertJSON(ctx context.Context, table, column, runID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", column, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, %s, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO UPDATE SET %s = $2, updated_at = $3`,
		table, column, column)
	if _, err := s.pool.Exec(ctx, query, runID, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert %s: %w", column, err)
	}
	return nil
}

func (s *PostgresStore) getJSON(ctx context.Context, table, column, runID string, v any) (bool, error) {
	var data []byte
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE run_id = $1`, column, table)
	err := s.pool.QueryRow(ctx, query, runID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", column, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", column, err)
	}
	return true, nil
}

func scanMessages(rows pgx.Rows) ([]types.Message, error) {
	var msgs []types.Message
	for rows.Next() {
		var m types.Message
		var role string
		if err := rows.Scan(&m.ID, &m.RunID, &role, &m.Content, &m.StepIndex, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = types.Role(role)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func reverse(msgs []types.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
