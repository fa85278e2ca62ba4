package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/callbus/pkg/callbus"
)

// SQLiteStore persists bus activity to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS callback_tasks (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL,
		event_name TEXT NOT NULL,
		namespace TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL,
		once INTEGER NOT NULL,
		async INTEGER NOT NULL,
		global INTEGER NOT NULL,
		filters TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL,
		execution_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		last_executed INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS callback_events (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source TEXT NOT NULL,
		namespace TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS callback_executions (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		completed_at INTEGER NOT NULL DEFAULT 0,
		duration_ms REAL NOT NULL DEFAULT 0,
		result TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_callback_tasks_event ON callback_tasks(event_name, active)`,
	`CREATE INDEX IF NOT EXISTS idx_callback_events_created ON callback_events(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_callback_executions_started ON callback_executions(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_callback_executions_event ON callback_executions(event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_callback_executions_task ON callback_executions(task_id)`,
}

// NewSQLiteStore creates a new SQLite store.
// The path should be a file path (e.g., "./callbus.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would get its own private database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func jsonText(v any) string {
	return string(encodeJSON(v))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveTask implements Store.
func (s *SQLiteStore) SaveTask(ctx context.Context, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	filters := ""
	if task.Filters != nil {
		filters = jsonText(task.Filters)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO callback_tasks (
			id, subscription_id, event_name, namespace, priority, once, async, global,
			filters, active, execution_count, created_at, last_executed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subscription_id = excluded.subscription_id,
			event_name = excluded.event_name,
			namespace = excluded.namespace,
			priority = excluded.priority,
			once = excluded.once,
			async = excluded.async,
			global = excluded.global,
			filters = excluded.filters,
			active = excluded.active,
			execution_count = excluded.execution_count,
			created_at = excluded.created_at,
			last_executed = excluded.last_executed
	`, task.ID, task.SubscriptionID, task.EventName, task.Namespace, int(task.Priority),
		boolInt(task.Once), boolInt(task.Async), boolInt(task.Global), filters,
		boolInt(task.Active), task.ExecutionCount, toNanos(task.CreatedAt), toNanos(task.LastExecuted))
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// SaveEvent implements Store.
func (s *SQLiteStore) SaveEvent(ctx context.Context, evt EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	metadata := ""
	if evt.Metadata != nil {
		metadata = jsonText(evt.Metadata)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO callback_events (
			id, name, source, namespace, session_id, user_id, data, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, evt.ID, evt.Name, evt.Source, evt.Namespace, evt.SessionID, evt.UserID,
		jsonText(evt.Data), metadata, toNanos(evt.CreatedAt))
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// StartExecution implements Store.
func (s *SQLiteStore) StartExecution(ctx context.Context, exec Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	execCtx := ""
	if exec.Context != nil {
		execCtx = jsonText(exec.Context)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO callback_executions (
			id, task_id, event_id, status, started_at, context
		) VALUES (?, ?, ?, ?, ?, ?)
	`, exec.ID, exec.TaskID, exec.EventID, string(StatusRunning), toNanos(exec.StartedAt), execCtx)
	if err != nil {
		return fmt.Errorf("start execution: %w", err)
	}
	return nil
}

// CompleteExecution implements Store.
func (s *SQLiteStore) CompleteExecution(ctx context.Context, id string, result any, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var taskID string
	var startedAt int64
	err = tx.QueryRowContext(ctx, `
		SELECT task_id, started_at FROM callback_executions WHERE id = ?
	`, id).Scan(&taskID, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load execution: %w", err)
	}

	status, resultText := StatusCompleted, jsonText(result)
	if errMsg != "" {
		status, resultText = StatusFailed, ""
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE callback_executions
		SET status = ?, completed_at = ?, duration_ms = ?, result = ?, error = ?
		WHERE id = ?
	`, string(status), toNanos(at), durationMs(fromNanos(startedAt), at), resultText, errMsg, id); err != nil {
		return fmt.Errorf("complete execution: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE callback_tasks
		SET execution_count = execution_count + 1,
			last_executed = ?,
			active = CASE WHEN once = 1 THEN 0 ELSE active END
		WHERE id = ?
	`, toNanos(at), taskID); err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ActiveTasks implements Store.
func (s *SQLiteStore) ActiveTasks(ctx context.Context, eventName, namespace string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subscription_id, event_name, namespace, priority, once, async, global,
			filters, active, execution_count, created_at, last_executed
		FROM callback_tasks
		WHERE active = 1
			AND (? = '' OR event_name = ?)
			AND (? = '' OR namespace = ?)
		ORDER BY priority, created_at, id
	`, eventName, eventName, namespace, namespace)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		var t Task
		var priority int
		var once, async, global, active int
		var filters string
		var createdAt, lastExecuted int64
		if err := rows.Scan(&t.ID, &t.SubscriptionID, &t.EventName, &t.Namespace, &priority,
			&once, &async, &global, &filters, &active, &t.ExecutionCount, &createdAt, &lastExecuted); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Priority = callbus.Priority(priority)
		t.Once, t.Async, t.Global, t.Active = once == 1, async == 1, global == 1, active == 1
		t.Filters = decodeMap([]byte(filters))
		t.CreatedAt = fromNanos(createdAt)
		t.LastExecuted = fromNanos(lastExecuted)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// History implements Store.
func (s *SQLiteStore) History(ctx context.Context, eventName string, limit int) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.task_id, e.event_id, e.status, e.started_at, e.completed_at,
			e.duration_ms, e.result, e.error, e.context,
			COALESCE(ev.name, ''), COALESCE(ev.namespace, '')
		FROM callback_executions e
		LEFT JOIN callback_events ev ON ev.id = e.event_id
		WHERE (? = '' OR ev.name = ?)
		ORDER BY e.started_at DESC, e.id
		LIMIT ?
	`, eventName, eventName, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var h HistoryEntry
		var status, result, execCtx string
		var startedAt, completedAt int64
		if err := rows.Scan(&h.ID, &h.TaskID, &h.EventID, &status, &startedAt, &completedAt,
			&h.DurationMs, &result, &h.Error, &execCtx, &h.EventName, &h.Namespace); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		h.Status = Status(status)
		h.StartedAt = fromNanos(startedAt)
		h.CompletedAt = fromNanos(completedAt)
		h.Result = decodeJSON([]byte(result))
		h.Context = decodeMap([]byte(execCtx))
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context, since time.Time) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Stats{}, ErrStoreClosed
	}

	st := Stats{Since: since, GeneratedAt: time.Now()}
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM callback_events),
			(SELECT COUNT(*) FROM callback_executions),
			(SELECT COUNT(*) FROM callback_executions WHERE status = 'completed'),
			(SELECT COUNT(*) FROM callback_executions WHERE status = 'failed'),
			(SELECT COUNT(*) FROM callback_executions e
				JOIN callback_tasks t ON t.id = e.task_id WHERE t.async = 1),
			(SELECT AVG(duration_ms) FROM callback_executions WHERE completed_at != 0),
			(SELECT COUNT(*) FROM callback_tasks WHERE active = 1)
	`).Scan(&st.TotalEvents, &st.TotalExecutions, &st.SuccessfulExecutions,
		&st.FailedExecutions, &st.AsyncExecutions, &avg, &st.ActiveTasks)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	st.AvgDurationMs = avg.Float64
	st.SuccessRate = successRate(st.SuccessfulExecutions, st.TotalExecutions)

	if st.TopEvents, err = s.top(ctx, "name", since); err != nil {
		return Stats{}, err
	}
	if st.TopNamespaces, err = s.top(ctx, "namespace", since); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// top counts events by column. column is always a trusted literal.
func (s *SQLiteStore) top(ctx context.Context, column string, since time.Time) ([]NameCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+column+`, COUNT(*) AS c
		FROM callback_events
		WHERE created_at >= ? AND `+column+` != ''
		GROUP BY `+column+`
		ORDER BY c DESC, `+column+`
		LIMIT ?
	`, toNanos(since), topLimit)
	if err != nil {
		return nil, fmt.Errorf("query top %s: %w", column, err)
	}
	defer rows.Close()

	out := []NameCount{}
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("scan top %s: %w", column, err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

// Cleanup implements Store.
func (s *SQLiteStore) Cleanup(ctx context.Context, before time.Time) (CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return CleanupResult{}, ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := toNanos(before)
	var res CleanupResult
	steps := []struct {
		query string
		count *int64
	}{
		{`DELETE FROM callback_executions WHERE started_at < ?`, &res.Executions},
		{`DELETE FROM callback_events WHERE created_at < ?
			AND NOT EXISTS (SELECT 1 FROM callback_executions e WHERE e.event_id = callback_events.id)`, &res.Events},
		{`DELETE FROM callback_tasks WHERE active = 0 AND created_at < ?
			AND NOT EXISTS (SELECT 1 FROM callback_executions e WHERE e.task_id = callback_tasks.id)`, &res.Tasks},
	}
	for _, step := range steps {
		r, err := tx.ExecContext(ctx, step.query, cutoff)
		if err != nil {
			return CleanupResult{}, fmt.Errorf("cleanup: %w", err)
		}
		if *step.count, err = r.RowsAffected(); err != nil {
			return CleanupResult{}, fmt.Errorf("cleanup: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return CleanupResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
