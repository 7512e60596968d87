package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"clawbot/internal/errs"
	"clawbot/internal/task"
	"clawbot/internal/task/schedule"
	logx "clawbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is the SQLite-backed task store. It also keeps interactive agent
// transcripts so a session handle can be resumed after a restart.
type Store struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

var _ task.Store = (*Store)(nil)

func openSQLite(cfg Config, log logx.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errs.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errs.Storage(err, "create store dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Storage(err, "open")
	}
	// SQLite prefers a single writer; this also keeps a :memory: db alive and shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := newStore(db, log)
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func newStore(db *sql.DB, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{db: db, log: log, now: time.Now}
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return errs.Storage(err, "read migrations")
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return errs.Storage(err, "migrate")
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- tasks ----

const taskColumns = `id, chat_id, prompt, schedule_type, schedule_value, next_run, last_run, last_result, status, created_at`

func newTaskID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (s *Store) Create(ctx context.Context, in task.NewTask) (string, error) {
	if s == nil || s.db == nil {
		return "", errs.Storage(ErrClosed, "create task")
	}
	created := s.now().UnixMilli()

	// 8 hex chars collide rarely; retry a fresh id on a primary key clash.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		id := newTaskID()
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO scheduled_tasks(id, chat_id, prompt, schedule_type, schedule_value, next_run, status, created_at)
			 VALUES(?,?,?,?,?,?,?,?)`,
			id, in.OwnerID, in.Prompt, string(in.Schedule.Type), in.Schedule.Value,
			nullMillis(in.NextRun), string(task.StatusActive), created,
		)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !isConstraintErr(err) {
			break
		}
		s.log.Debug("task id collision; retrying", logx.String("id", id))
	}
	return "", errs.Storage(lastErr, "create task")
}

func (s *Store) Get(ctx context.Context, id string) (task.Task, bool, error) {
	if s == nil || s.db == nil {
		return task.Task{}, false, errs.Storage(ErrClosed, "get task")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errs.Is(err, sql.ErrNoRows) {
		return task.Task{}, false, nil
	}
	if err != nil {
		return task.Task{}, false, errs.Storage(err, "get task")
	}
	return t, true, nil
}

func (s *Store) ListAll(ctx context.Context) ([]task.Task, error) {
	if s == nil || s.db == nil {
		return nil, errs.Storage(ErrClosed, "list tasks")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, errs.Storage(err, "list tasks")
	}
	return collectTasks(rows, "list tasks")
}

func (s *Store) Due(ctx context.Context, now time.Time) ([]task.Task, error) {
	if s == nil || s.db == nil {
		return nil, errs.Storage(ErrClosed, "due tasks")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE status = ? AND next_run IS NOT NULL AND next_run <= ?
		 ORDER BY next_run, id`,
		string(task.StatusActive), now.UnixMilli(),
	)
	if err != nil {
		return nil, errs.Storage(err, "due tasks")
	}
	return collectTasks(rows, "due tasks")
}

func (s *Store) SetStatus(ctx context.Context, id string, status task.Status) (bool, error) {
	if s == nil || s.db == nil {
		return false, errs.Storage(ErrClosed, "set status")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_tasks SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return false, errs.Storage(err, "set status")
	}
	return affected(res, "set status")
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errs.Storage(ErrClosed, "delete task")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return false, errs.Storage(err, "delete task")
	}
	return affected(res, "delete task")
}

func (s *Store) RecordRunOutcome(ctx context.Context, id string, out task.Outcome) error {
	if s == nil || s.db == nil {
		return errs.Storage(ErrClosed, "record outcome")
	}
	ranAt := out.RanAt
	if ranAt.IsZero() {
		ranAt = s.now()
	}
	// A pause that landed while the task was running wins over the
	// post-run "active"; only the owner resumes a paused task.
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET last_run = ?, last_result = ?, next_run = ?,
			status = CASE WHEN status = 'paused' AND ? = 'active' THEN status ELSE ? END
		WHERE id = ?`,
		ranAt.UnixMilli(), nullStr(out.LastResult), nullMillis(out.NextRun), string(out.Status), string(out.Status), id,
	)
	if err != nil {
		return errs.Storage(err, "record outcome")
	}
	return nil
}

// ---- run log ----

func (s *Store) AppendRunLog(ctx context.Context, e task.RunLogEntry) error {
	if s == nil || s.db == nil {
		return errs.Storage(ErrClosed, "append run log")
	}
	if e.RunAt.IsZero() {
		e.RunAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_run_logs(task_id, run_at, duration_ms, status, result, error) VALUES(?,?,?,?,?,?)`,
		e.TaskID, e.RunAt.UnixMilli(), e.Duration.Milliseconds(), string(e.Status), nullStr(e.Result), nullStr(e.Error),
	)
	if err != nil {
		return errs.Storage(err, "append run log")
	}
	return nil
}

// Runs returns the most recent run log entries of a task, newest first.
func (s *Store) Runs(ctx context.Context, taskID string, limit int) ([]task.RunLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, errs.Storage(ErrClosed, "list runs")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, run_at, duration_ms, status, result, error FROM task_run_logs
		 WHERE task_id = ? ORDER BY run_at DESC, id DESC LIMIT ?`,
		taskID, limit,
	)
	if err != nil {
		return nil, errs.Storage(err, "list runs")
	}
	defer rows.Close()

	var out []task.RunLogEntry
	for rows.Next() {
		var (
			e              task.RunLogEntry
			runAt, durMS   int64
			status         string
			result, errStr sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &runAt, &durMS, &status, &result, &errStr); err != nil {
			return nil, errs.Storage(err, "scan run")
		}
		e.RunAt = time.UnixMilli(runAt)
		e.Duration = time.Duration(durMS) * time.Millisecond
		e.Status = task.RunStatus(status)
		e.Result = result.String
		e.Error = errStr.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err, "list runs")
	}
	return out, nil
}

// ---- transcripts ----

func (s *Store) AppendTranscript(ctx context.Context, sessionID string, entries []TranscriptEntry) error {
	if s == nil || s.db == nil {
		return errs.Storage(ErrClosed, "append transcript")
	}
	if sessionID == "" || len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage(err, "append transcript")
	}
	defer func() { _ = tx.Rollback() }()
	for _, e := range entries {
		at := e.At
		if at.IsZero() {
			at = s.now()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO agent_transcripts(session_id, role, content, created_at) VALUES(?,?,?,?)`,
			sessionID, e.Role, e.Content, at.UnixMilli(),
		); err != nil {
			return errs.Storage(err, "append transcript")
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Storage(err, "append transcript")
	}
	return nil
}

// LoadTranscript returns up to limit most recent entries of a session in
// chronological order.
func (s *Store) LoadTranscript(ctx context.Context, sessionID string, limit int) ([]TranscriptEntry, error) {
	if s == nil || s.db == nil {
		return nil, errs.Storage(ErrClosed, "load transcript")
	}
	if limit <= 0 {
		limit = 40
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM (
			SELECT id, role, content, created_at FROM agent_transcripts
			WHERE session_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, errs.Storage(err, "load transcript")
	}
	defer rows.Close()

	var out []TranscriptEntry
	for rows.Next() {
		var (
			e  TranscriptEntry
			at int64
		)
		if err := rows.Scan(&e.Role, &e.Content, &at); err != nil {
			return nil, errs.Storage(err, "scan transcript")
		}
		e.At = time.UnixMilli(at)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err, "load transcript")
	}
	return out, nil
}

// ---- helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (task.Task, error) {
	var (
		t                     task.Task
		stype, svalue, status string
		nextRun, lastRun      sql.NullInt64
		lastResult            sql.NullString
		createdAt             int64
	)
	if err := r.Scan(&t.ID, &t.OwnerID, &t.Prompt, &stype, &svalue, &nextRun, &lastRun, &lastResult, &status, &createdAt); err != nil {
		return task.Task{}, err
	}
	t.Schedule = schedule.Spec{Type: schedule.Type(stype), Value: svalue}
	t.NextRun = millisPtr(nextRun)
	t.LastRun = millisPtr(lastRun)
	t.LastResult = lastResult.String
	t.Status = task.Status(status)
	t.CreatedAt = time.UnixMilli(createdAt)
	return t, nil
}

func collectTasks(rows *sql.Rows, op string) ([]task.Task, error) {
	defer rows.Close()
	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errs.Storage(err, op)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err, op)
	}
	return out, nil
}

func affected(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Storage(err, op)
	}
	return n > 0, nil
}

func isConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "constraint")
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
