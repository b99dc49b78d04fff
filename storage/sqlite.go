package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/macrador/distill/types"
)

// sqliteSchema mirrors the Postgres layout on a single local file.
// Timestamps are stored as fixed-width RFC 3339 text, which sorts
// chronologically.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	objective   TEXT NOT NULL,
	scenario    TEXT NOT NULL DEFAULT 'C',
	config      TEXT NOT NULL,
	step_index  INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	step_index  INTEGER NOT NULL,
	ts          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_run_ts ON messages(run_id, ts);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	step_index  INTEGER NOT NULL,
	ts          TEXT NOT NULL,
	type        TEXT NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_run_ts ON events(run_id, ts);

CREATE TABLE IF NOT EXISTS working_memory (
	run_id      TEXT PRIMARY KEY REFERENCES runs(id),
	cwm         TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS long_term_memory (
	run_id      TEXT PRIMARY KEY REFERENCES runs(id),
	ltm         TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metrics (
	run_id      TEXT PRIMARY KEY REFERENCES runs(id),
	metrics     TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// SQLiteStore implements Store on a single-file SQLite database. It is the
// zero-infrastructure backend used by the CLI.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// CreateRun implements Store.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *types.Run) error {
	config, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, objective, scenario, config, step_index, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Objective, run.Scenario, string(config), run.StepIndex,
		formatTime(run.CreatedAt), formatTime(run.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun implements Store.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	var run types.Run
	var config, createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, objective, scenario, config, step_index, created_at, updated_at
		FROM runs WHERE id = ?`, runID).Scan(
		&run.ID, &run.Objective, &run.Scenario, &config, &run.StepIndex, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if err := json.Unmarshal([]byte(config), &run.Config); err != nil {
		return nil, fmt.Errorf("decode run config: %w", err)
	}
	run.CreatedAt = parseTime(createdAt)
	run.UpdatedAt = parseTime(updatedAt)
	return &run, nil
}

// UpdateRun implements Store.
func (s *SQLiteStore) UpdateRun(ctx context.Context, runID string, stepIndex int, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET step_index = ?, updated_at = ? WHERE id = ?`,
		stepIndex, formatTime(updatedAt), runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// AppendMessage implements Store.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *types.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, run_id, role, content, step_index, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.RunID, string(msg.Role), msg.Content, msg.StepIndex, formatTime(msg.Timestamp))
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages implements Store.
func (s *SQLiteStore) ListMessages(ctx context.Context, runID string, limit int) ([]types.Message, error) {
	limit = normalizeLimit(limit, DefaultMessageLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, role, content, step_index, ts
		FROM messages WHERE run_id = ?
		ORDER BY ts ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	return scanSQLiteMessages(rows)
}

// ListSTMTail implements Store.
func (s *SQLiteStore) ListSTMTail(ctx context.Context, runID string, limit int) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, role, content, step_index, ts
		FROM messages WHERE run_id = ?
		ORDER BY ts DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list stm tail: %w", err)
	}
	defer rows.Close()

	msgs, err := scanSQLiteMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// AppendEvent implements Store.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *types.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, run_id, step_index, ts, type, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.RunID, event.StepIndex, formatTime(event.Timestamp),
		string(event.Type), string(payload))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents implements Store.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, limit int) ([]types.Event, error) {
	limit = normalizeLimit(limit, DefaultEventLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, step_index, ts, type, payload
		FROM events WHERE run_id = ?
		ORDER BY ts ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var ev types.Event
		var ts, evType, payload string
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.StepIndex, &ts, &evType, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Timestamp = parseTime(ts)
		ev.Type = types.EventType(evType)
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SetWorkingMemory implements Store.
func (s *SQLiteStore) SetWorkingMemory(ctx context.Context, runID string, wm *types.WorkingMemory) error {
	return s.upsertJSON(ctx, "working_memory", "cwm", runID, wm)
}

// GetWorkingMemory implements Store.
func (s *SQLiteStore) GetWorkingMemory(ctx context.Context, runID string) (*types.WorkingMemory, error) {
	var wm types.WorkingMemory
	ok, err := s.getJSON(ctx, "working_memory", "cwm", runID, &wm)
	if err != nil || !ok {
		return nil, err
	}
	return &wm, nil
}

// SetLongTermMemory implements Store.
func (s *SQLiteStore) SetLongTermMemory(ctx context.Context, runID string, ltm *types.LongTermMemory) error {
	return s.upsertJSON(ctx, "long_term_memory", "ltm", runID, ltm)
}

// GetLongTermMemory implements Store.
func (s *SQLiteStore) GetLongTermMemory(ctx context.Context, runID string) (*types.LongTermMemory, error) {
	var ltm types.LongTermMemory
	ok, err := s.getJSON(ctx, "long_term_memory", "ltm", runID, &ltm)
	if err != nil || !ok {
		return nil, err
	}
	return &ltm, nil
}

// SetMetrics implements Store.
func (s *SQLiteStore) SetMetrics(ctx context.Context, runID string, metrics *types.Metrics) error {
	return s.upsertJSON(ctx, "metrics", "metrics", runID, metrics)
}

// GetMetrics implements Store.
func (s *SQLiteStore) GetMetrics(ctx context.Context, runID string) (*types.Metrics, error) {
	var m types.Metrics
	if _, err := s.getJSON(ctx, "metrics", "metrics", runID, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) upsertJSON(ctx context.Context, table, column, runID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", column, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, %s, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET %s = excluded.%s, updated_at = excluded.updated_at`,
		table, column, column, column)
	if _, err := s.db.ExecContext(ctx, query, runID, string(data), formatTime(time.Now().UTC())); err != nil {
		return fmt.Errorf("upsert %s: %w", column, err)
	}
	return nil
}

func (s *SQLiteStore) getJSON(ctx context.Context, table, column, runID string, v any) (bool, error) {
	var data string
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE run_id = ?`, column, table)
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", column, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", column, err)
	}
	return true, nil
}

func scanSQLiteMessages(rows *sql.Rows) ([]types.Message, error) {
	var msgs []types.Message
	for rows.Next() {
		var m types.Message
		var role, ts string
		if err := rows.Scan(&m.ID, &m.RunID, &role, &m.Content, &m.StepIndex, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = types.Role(role)
		m.Timestamp = parseTime(ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// sqliteTimeLayout fixes the fractional-second width so the stored text
// sorts chronologically; RFC3339Nano trims trailing zeros and would not.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
