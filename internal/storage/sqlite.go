package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/yourname/focustracker/internal"
)

// Timestamps are stored as unix nanoseconds so range predicates compare
// integers rather than formatted strings.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS time_records (
	id               TEXT PRIMARY KEY,
	owner_id         TEXT NOT NULL,
	task_id          TEXT NOT NULL DEFAULT '',
	kind             TEXT NOT NULL,
	started_at       INTEGER NOT NULL,
	ended_at         INTEGER,
	duration_minutes INTEGER,
	note             TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_time_records_one_open
	ON time_records (owner_id) WHERE ended_at IS NULL;

CREATE TABLE IF NOT EXISTS pomodoro_cycles (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	task_id         TEXT NOT NULL DEFAULT '',
	planned_minutes INTEGER NOT NULL CHECK (planned_minutes > 0),
	actual_minutes  INTEGER,
	state           TEXT NOT NULL CHECK (state IN ('RUNNING', 'COMPLETED', 'ABANDONED')),
	started_at      INTEGER NOT NULL,
	ended_at        INTEGER,
	abandon_reason  TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_pomodoro_cycles_one_running
	ON pomodoro_cycles (owner_id) WHERE state = 'RUNNING';

CREATE TABLE IF NOT EXISTS tasks (
	id       TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title    TEXT NOT NULL,
	status   TEXT NOT NULL,
	priority TEXT NOT NULL,
	due_date INTEGER
);

CREATE TABLE IF NOT EXISTS reminder_notifications (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	kind            TEXT NOT NULL,
	related_task_id TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	title           TEXT NOT NULL,
	message         TEXT NOT NULL,
	read            INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_reminder_dedup
	ON reminder_notifications (owner_id, kind, related_task_id, created_at);
`

// SQLiteStorage is the single-node SQL backend. Every transaction starts
// with BEGIN IMMEDIATE, so check-then-insert sequences hold the write lock.
type SQLiteStorage struct {
	db     *sql.DB
	logger internal.Logger
}

func NewSQLiteStorage(dbPath string, logger internal.Logger) (*SQLiteStorage, error) {
	if strings.HasPrefix(dbPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		logger.Errorf("storage: failed to apply sqlite schema: %v", err)
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &SQLiteStorage{db: db, logger: logger}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nanos(t time.Time) int64 { return t.UnixNano() }

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func fromNullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func isSQLiteUnique(err error, table string) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique &&
		strings.Contains(se.Error(), table+".owner_id")
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- SessionStore ---

func scanSQLiteRecord(row rowScanner) (*internal.TimeRecord, error) {
	var (
		r        internal.TimeRecord
		started  int64
		ended    sql.NullInt64
		duration sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.OwnerID, &r.TaskID, &r.Kind, &started, &ended, &duration, &r.Note); err != nil {
		return nil, err
	}
	r.StartedAt = fromNanos(started)
	r.EndedAt = fromNullNanos(ended)
	r.DurationMinutes = fromNullInt(duration)
	return &r, nil
}

func (s *SQLiteStorage) CreateOpen(ctx context.Context, rec *internal.TimeRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO time_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, NULL, NULL, ?)`,
		rec.ID, rec.OwnerID, rec.TaskID, string(rec.Kind), nanos(rec.StartedAt), rec.Note)
	if isSQLiteUnique(err, "time_records") {
		return internal.ConflictError(internal.CodeActiveSessionExists, "open session exists for "+rec.OwnerID)
	}
	if err != nil {
		return fmt.Errorf("storage: insert time record: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetRecord(ctx context.Context, id string) (*internal.TimeRecord, error) {
	r, err := scanSQLiteRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM time_records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, internal.NotFoundErrorf("time record %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get time record: %w", err)
	}
	return r, nil
}

func (s *SQLiteStorage) CloseRecord(ctx context.Context, id string, endedAt time.Time, minutes int) (*internal.TimeRecord, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE time_records SET ended_at = ?, duration_minutes = ? WHERE id = ? AND ended_at IS NULL`,
		nanos(endedAt), minutes, id)
	if err != nil {
		return nil, fmt.Errorf("storage: close time record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("storage: close time record: %w", err)
	}
	r, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, internal.StateErrorf(internal.CodeAlreadyEnded, "time record %s", id)
	}
	return r, nil
}

func (s *SQLiteStorage) FindOpen(ctx context.Context, ownerID string) (*internal.TimeRecord, error) {
	r, err := scanSQLiteRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM time_records WHERE owner_id = ? AND ended_at IS NULL`, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, internal.NotFoundErrorf("no open session for %s", ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: find open record: %w", err)
	}
	return r, nil
}

func (s *SQLiteStorage) queryRecords(ctx context.Context, query string, args ...any) ([]internal.TimeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query time records: %w", err)
	}
	defer rows.Close()

	out := []internal.TimeRecord{}
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan time record: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) ListOpen(ctx context.Context) ([]internal.TimeRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM time_records WHERE ended_at IS NULL ORDER BY started_at`)
}

func (s *SQLiteStorage) ListRecords(ctx context.Context, ownerID string) ([]internal.TimeRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM time_records WHERE owner_id = ? ORDER BY started_at DESC`, ownerID)
}

// --- PomodoroStore ---

func scanSQLiteCycle(row rowScanner) (*internal.PomodoroCycle, error) {
	var (
		c       internal.PomodoroCycle
		actual  sql.NullInt64
		started int64
		ended   sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.TaskID, &c.PlannedMinutes, &actual, &c.State, &started, &ended, &c.AbandonReason); err != nil {
		return nil, err
	}
	c.ActualMinutes = fromNullInt(actual)
	c.StartedAt = fromNanos(started)
	c.EndedAt = fromNullNanos(ended)
	return &c, nil
}

func (s *SQLiteStorage) CreateRunning(ctx context.Context, c *internal.PomodoroCycle) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO pomodoro_cycles (`+cycleColumns+`) VALUES (?, ?, ?, ?, NULL, ?, ?, NULL, '')`,
		c.ID, c.OwnerID, c.TaskID, c.PlannedMinutes, string(c.State), nanos(c.StartedAt))
	if isSQLiteUnique(err, "pomodoro_cycles") {
		return internal.ConflictError(internal.CodeActivePomodoroExists, "running cycle exists for "+c.OwnerID)
	}
	if err != nil {
		return fmt.Errorf("storage: insert pomodoro cycle: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetCycle(ctx context.Context, id string) (*internal.PomodoroCycle, error) {
	c, err := scanSQLiteCycle(s.db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM pomodoro_cycles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, internal.NotFoundErrorf("pomodoro cycle %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get pomodoro cycle: %w", err)
	}
	return c, nil
}

func (s *SQLiteStorage) FinishCycle(ctx context.Context, c *internal.PomodoroCycle) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pomodoro_cycles SET state = ?, actual_minutes = ?, ended_at = ?, abandon_reason = ?
		 WHERE id = ? AND state = 'RUNNING'`,
		string(c.State), nullInt(c.ActualMinutes), nullNanos(c.EndedAt), c.AbandonReason, c.ID)
	if err != nil {
		return fmt.Errorf("storage: finish pomodoro cycle: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}
	cur, err := s.GetCycle(ctx, c.ID)
	if err != nil {
		return err
	}
	return internal.StateErrorf(internal.CodeNotRunning, "cycle is %s", cur.State)
}

func (s *SQLiteStorage) FindRunning(ctx context.Context, ownerID string) (*internal.PomodoroCycle, error) {
	c, err := scanSQLiteCycle(s.db.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM pomodoro_cycles WHERE owner_id = ? AND state = 'RUNNING'`, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, internal.NotFoundErrorf("no running pomodoro for %s", ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: find running cycle: %w", err)
	}
	return c, nil
}

func (s *SQLiteStorage) ListCycles(ctx context.Context, ownerID string) ([]internal.PomodoroCycle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cycleColumns+` FROM pomodoro_cycles WHERE owner_id = ? ORDER BY started_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("storage: list pomodoro cycles: %w", err)
	}
	defer rows.Close()

	out := []internal.PomodoroCycle{}
	for rows.Next() {
		c, err := scanSQLiteCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan pomodoro cycle: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// --- TaskSource ---

func (s *SQLiteStorage) SaveTask(ctx context.Context, t *internal.Task) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tasks (id, owner_id, title, status, priority, due_date) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Title, string(t.Status), string(t.Priority), nullNanos(t.DueDate))
	if err != nil {
		return fmt.Errorf("storage: save task: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) queryTasks(ctx context.Context, where string, args ...any) ([]internal.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, title, status, priority, due_date FROM tasks WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query tasks: %w", err)
	}
	defer rows.Close()

	out := []internal.Task{}
	for rows.Next() {
		var (
			t   internal.Task
			due sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Status, &t.Priority, &due); err != nil {
			return nil, fmt.Errorf("storage: scan task: %w", err)
		}
		t.DueDate = fromNullNanos(due)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) FindDueWithin(ctx context.Context, ownerID string, now time.Time, horizon time.Duration) ([]internal.Task, error) {
	return s.queryTasks(ctx, `(?1 = '' OR owner_id = ?1) AND status = 'TODO' AND due_date > ?2 AND due_date <= ?3`,
		ownerID, nanos(now), nanos(now.Add(horizon)))
}

func (s *SQLiteStorage) FindOverdue(ctx context.Context, ownerID string, now time.Time) ([]internal.Task, error) {
	return s.queryTasks(ctx, `(?1 = '' OR owner_id = ?1) AND status = 'TODO' AND due_date < ?2`, ownerID, nanos(now))
}

func (s *SQLiteStorage) FindHighPriorityOpen(ctx context.Context, ownerID string) ([]internal.Task, error) {
	return s.queryTasks(ctx, `(?1 = '' OR owner_id = ?1) AND status = 'TODO' AND priority = 'HIGH'`, ownerID)
}

// --- NotificationSink ---

const sqliteExistsRecent = `SELECT EXISTS (
	SELECT 1 FROM reminder_notifications
	WHERE owner_id = ? AND kind = ? AND related_task_id = ? AND created_at >= ?)`

const sqliteInsertNotification = `INSERT INTO reminder_notifications
	(id, owner_id, kind, related_task_id, created_at, title, message, read)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStorage) ExistsWithin(ctx context.Context, key internal.DedupKey, since time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, sqliteExistsRecent, key.OwnerID, string(key.Kind), key.RelatedTaskID, nanos(since)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: notification lookup: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStorage) Create(ctx context.Context, n *internal.ReminderNotification) error {
	_, err := s.db.ExecContext(ctx, sqliteInsertNotification,
		n.ID, n.OwnerID, string(n.Kind), n.RelatedTaskID, nanos(n.CreatedAt), n.Payload.Title, n.Payload.Message, n.Read)
	if err != nil {
		return fmt.Errorf("storage: insert notification: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CreateUnlessRecent(ctx context.Context, n *internal.ReminderNotification, since time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, sqliteExistsRecent, n.OwnerID, string(n.Kind), n.RelatedTaskID, nanos(since)).Scan(&exists); err != nil {
		return false, fmt.Errorf("storage: notification lookup: %w", err)
	}
	if exists {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, sqliteInsertNotification,
		n.ID, n.OwnerID, string(n.Kind), n.RelatedTaskID, nanos(n.CreatedAt), n.Payload.Title, n.Payload.Message, n.Read); err != nil {
		return false, fmt.Errorf("storage: insert notification: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("storage: commit: %w", err)
	}
	return true, nil
}

func (s *SQLiteStorage) ListNotifications(ctx context.Context, ownerID string) ([]internal.ReminderNotification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, kind, related_task_id, created_at, title, message, read
		 FROM reminder_notifications WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("storage: list notifications: %w", err)
	}
	defer rows.Close()

	out := []internal.ReminderNotification{}
	for rows.Next() {
		var (
			n       internal.ReminderNotification
			created int64
		)
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Kind, &n.RelatedTaskID, &created, &n.Payload.Title, &n.Payload.Message, &n.Read); err != nil {
			return nil, fmt.Errorf("storage: scan notification: %w", err)
		}
		n.CreatedAt = fromNanos(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) MarkRead(ctx context.Context, id, ownerID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reminder_notifications SET read = 1 WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("storage: mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return internal.NotFoundErrorf("notification %s", id)
	}
	return nil
}

// --- Compile-time assertions ---
var _ Store = (*SQLiteStorage)(nil)
