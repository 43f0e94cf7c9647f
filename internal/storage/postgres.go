package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yourname/focustracker/internal"
)

const pgUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS time_records (
	id               TEXT PRIMARY KEY,
	owner_id         TEXT NOT NULL,
	task_id          TEXT NOT NULL DEFAULT '',
	kind             TEXT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	ended_at         TIMESTAMPTZ,
	duration_minutes INTEGER,
	note             TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_time_records_one_open
	ON time_records (owner_id) WHERE ended_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_time_records_owner_start
	ON time_records (owner_id, started_at DESC);

CREATE TABLE IF NOT EXISTS pomodoro_cycles (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	task_id         TEXT NOT NULL DEFAULT '',
	planned_minutes INTEGER NOT NULL CHECK (planned_minutes > 0),
	actual_minutes  INTEGER,
	state           TEXT NOT NULL CHECK (state IN ('RUNNING', 'COMPLETED', 'ABANDONED')),
	started_at      TIMESTAMPTZ NOT NULL,
	ended_at        TIMESTAMPTZ,
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
	due_date TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS reminder_notifications (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	kind            TEXT NOT NULL,
	related_task_id TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	title           TEXT NOT NULL,
	message         TEXT NOT NULL,
	read            BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_reminder_dedup
	ON reminder_notifications (owner_id, kind, related_task_id, created_at DESC);
`

type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger internal.Logger
}

func NewPostgresStorage(ctx context.Context, dsn string, logger internal.Logger) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf("failed to connect to postgres: %v", err)
		return nil, err
	}
	p := &PostgresStorage{pool: pool, logger: logger}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresStorage) migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		p.logger.Errorf("failed to apply postgres schema: %v", err)
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}

// --- SessionStore ---

const recordColumns = `id, owner_id, task_id, kind, started_at, ended_at, duration_minutes, note`

func scanRecord(row pgx.Row) (*internal.TimeRecord, error) {
	var r internal.TimeRecord
	if err := row.Scan(&r.ID, &r.OwnerID, &r.TaskID, &r.Kind, &r.StartedAt, &r.EndedAt, &r.DurationMinutes, &r.Note); err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStorage) CreateOpen(ctx context.Context, rec *internal.TimeRecord) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO time_records (`+recordColumns+`) VALUES ($1, $2, $3, $4, $5, NULL, NULL, $6)`,
		rec.ID, rec.OwnerID, rec.TaskID, rec.Kind, rec.StartedAt, rec.Note)
	if isUniqueViolation(err, "ux_time_records_one_open") {
		return internal.ConflictError(internal.CodeActiveSessionExists, "open session exists for "+rec.OwnerID)
	}
	if err != nil {
		p.logger.Errorf("failed to insert time record: %v", err)
		return fmt.Errorf("storage: insert time record: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetRecord(ctx context.Context, id string) (*internal.TimeRecord, error) {
	r, err := scanRecord(p.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM time_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.NotFoundErrorf("time record %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get time record: %w", err)
	}
	return r, nil
}

func (p *PostgresStorage) CloseRecord(ctx context.Context, id string, endedAt time.Time, minutes int) (*internal.TimeRecord, error) {
	r, err := scanRecord(p.pool.QueryRow(ctx,
		`UPDATE time_records SET ended_at = $2, duration_minutes = $3
		 WHERE id = $1 AND ended_at IS NULL RETURNING `+recordColumns, id, endedAt, minutes))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("storage: close time record: %w", err)
	}
	if _, err := p.GetRecord(ctx, id); err != nil {
		return nil, err
	}
	return nil, internal.StateErrorf(internal.CodeAlreadyEnded, "time record %s", id)
}

func (p *PostgresStorage) FindOpen(ctx context.Context, ownerID string) (*internal.TimeRecord, error) {
	r, err := scanRecord(p.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM time_records WHERE owner_id = $1 AND ended_at IS NULL`, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.NotFoundErrorf("no open session for %s", ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: find open record: %w", err)
	}
	return r, nil
}

func (p *PostgresStorage) queryRecords(ctx context.Context, sql string, args ...any) ([]internal.TimeRecord, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		p.logger.Errorf("failed to query time records: %v", err)
		return nil, fmt.Errorf("storage: query time records: %w", err)
	}
	defer rows.Close()

	out := []internal.TimeRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan time record: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (p *PostgresStorage) ListOpen(ctx context.Context) ([]internal.TimeRecord, error) {
	return p.queryRecords(ctx, `SELECT `+recordColumns+` FROM time_records WHERE ended_at IS NULL ORDER BY started_at`)
}

func (p *PostgresStorage) ListRecords(ctx context.Context, ownerID string) ([]internal.TimeRecord, error) {
	return p.queryRecords(ctx, `SELECT `+recordColumns+` FROM time_records WHERE owner_id = $1 ORDER BY started_at DESC`, ownerID)
}

// --- PomodoroStore ---

const cycleColumns = `id, owner_id, task_id, planned_minutes, actual_minutes, state, started_at, ended_at, abandon_reason`

func scanCycle(row pgx.Row) (*internal.PomodoroCycle, error) {
	var c internal.PomodoroCycle
	if err := row.Scan(&c.ID, &c.OwnerID, &c.TaskID, &c.PlannedMinutes, &c.ActualMinutes, &c.State, &c.StartedAt, &c.EndedAt, &c.AbandonReason); err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStorage) CreateRunning(ctx context.Context, c *internal.PomodoroCycle) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO pomodoro_cycles (`+cycleColumns+`) VALUES ($1, $2, $3, $4, NULL, $5, $6, NULL, '')`,
		c.ID, c.OwnerID, c.TaskID, c.PlannedMinutes, c.State, c.StartedAt)
	if isUniqueViolation(err, "ux_pomodoro_cycles_one_running") {
		return internal.ConflictError(internal.CodeActivePomodoroExists, "running cycle exists for "+c.OwnerID)
	}
	if err != nil {
		p.logger.Errorf("failed to insert pomodoro cycle: %v", err)
		return fmt.Errorf("storage: insert pomodoro cycle: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetCycle(ctx context.Context, id string) (*internal.PomodoroCycle, error) {
	c, err := scanCycle(p.pool.QueryRow(ctx, `SELECT `+cycleColumns+` FROM pomodoro_cycles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.NotFoundErrorf("pomodoro cycle %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get pomodoro cycle: %w", err)
	}
	return c, nil
}

func (p *PostgresStorage) FinishCycle(ctx context.Context, c *internal.PomodoroCycle) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE pomodoro_cycles SET state = $2, actual_minutes = $3, ended_at = $4, abandon_reason = $5
		 WHERE id = $1 AND state = 'RUNNING'`,
		c.ID, c.State, c.ActualMinutes, c.EndedAt, c.AbandonReason)
	if err != nil {
		return fmt.Errorf("storage: finish pomodoro cycle: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	cur, err := p.GetCycle(ctx, c.ID)
	if err != nil {
		return err
	}
	return internal.StateErrorf(internal.CodeNotRunning, "cycle is %s", cur.State)
}

func (p *PostgresStorage) FindRunning(ctx context.Context, ownerID string) (*internal.PomodoroCycle, error) {
	c, err := scanCycle(p.pool.QueryRow(ctx, `SELECT `+cycleColumns+` FROM pomodoro_cycles WHERE owner_id = $1 AND state = 'RUNNING'`, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.NotFoundErrorf("no running pomodoro for %s", ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: find running cycle: %w", err)
	}
	return c, nil
}

func (p *PostgresStorage) ListCycles(ctx context.Context, ownerID string) ([]internal.PomodoroCycle, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+cycleColumns+` FROM pomodoro_cycles WHERE owner_id = $1 ORDER BY started_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("storage: list pomodoro cycles: %w", err)
	}
	defer rows.Close()

	out := []internal.PomodoroCycle{}
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan pomodoro cycle: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// --- TaskSource ---

func (p *PostgresStorage) SaveTask(ctx context.Context, t *internal.Task) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO tasks (id, owner_id, title, status, priority, due_date) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, title = EXCLUDED.title,
		 status = EXCLUDED.status, priority = EXCLUDED.priority, due_date = EXCLUDED.due_date`,
		t.ID, t.OwnerID, t.Title, t.Status, t.Priority, t.DueDate)
	if err != nil {
		return fmt.Errorf("storage: save task: %w", err)
	}
	return nil
}

func (p *PostgresStorage) queryTasks(ctx context.Context, where string, args ...any) ([]internal.Task, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, owner_id, title, status, priority, due_date FROM tasks WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		p.logger.Errorf("failed to query tasks: %v", err)
		return nil, fmt.Errorf("storage: query tasks: %w", err)
	}
	defer rows.Close()

	out := []internal.Task{}
	for rows.Next() {
		var t internal.Task
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Status, &t.Priority, &t.DueDate); err != nil {
			return nil, fmt.Errorf("storage: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// An empty owner matches every row: ($1 = '' OR owner_id = $1).

func (p *PostgresStorage) FindDueWithin(ctx context.Context, ownerID string, now time.Time, horizon time.Duration) ([]internal.Task, error) {
	return p.queryTasks(ctx, `($1 = '' OR owner_id = $1) AND status = 'TODO' AND due_date > $2 AND due_date <= $3`,
		ownerID, now, now.Add(horizon))
}

func (p *PostgresStorage) FindOverdue(ctx context.Context, ownerID string, now time.Time) ([]internal.Task, error) {
	return p.queryTasks(ctx, `($1 = '' OR owner_id = $1) AND status = 'TODO' AND due_date < $2`, ownerID, now)
}

func (p *PostgresStorage) FindHighPriorityOpen(ctx context.Context, ownerID string) ([]internal.Task, error) {
	return p.queryTasks(ctx, `($1 = '' OR owner_id = $1) AND status = 'TODO' AND priority = 'HIGH'`, ownerID)
}

// --- NotificationSink ---

const existsRecentSQL = `SELECT EXISTS (
	SELECT 1 FROM reminder_notifications
	WHERE owner_id = $1 AND kind = $2 AND related_task_id = $3 AND created_at >= $4)`

const insertNotificationSQL = `INSERT INTO reminder_notifications
	(id, owner_id, kind, related_task_id, created_at, title, message, read)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (p *PostgresStorage) ExistsWithin(ctx context.Context, key internal.DedupKey, since time.Time) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, existsRecentSQL, key.OwnerID, key.Kind, key.RelatedTaskID, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: notification lookup: %w", err)
	}
	return exists, nil
}

func (p *PostgresStorage) Create(ctx context.Context, n *internal.ReminderNotification) error {
	_, err := p.pool.Exec(ctx, insertNotificationSQL,
		n.ID, n.OwnerID, n.Kind, n.RelatedTaskID, n.CreatedAt, n.Payload.Title, n.Payload.Message, n.Read)
	if err != nil {
		return fmt.Errorf("storage: insert notification: %w", err)
	}
	return nil
}

// CreateUnlessRecent serializes writers of the same dedup key with a
// transaction-scoped advisory lock, then checks and inserts.
func (p *PostgresStorage) CreateUnlessRecent(ctx context.Context, n *internal.ReminderNotification, since time.Time) (bool, error) {
	created := false
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, n.Key().String()); err != nil {
			return err
		}
		var exists bool
		if err := tx.QueryRow(ctx, existsRecentSQL, n.OwnerID, n.Kind, n.RelatedTaskID, since).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}
		if _, err := tx.Exec(ctx, insertNotificationSQL,
			n.ID, n.OwnerID, n.Kind, n.RelatedTaskID, n.CreatedAt, n.Payload.Title, n.Payload.Message, n.Read); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("storage: create notification: %w", err)
	}
	return created, nil
}

func (p *PostgresStorage) ListNotifications(ctx context.Context, ownerID string) ([]internal.ReminderNotification, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, owner_id, kind, related_task_id, created_at, title, message, read
		 FROM reminder_notifications WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("storage: list notifications: %w", err)
	}
	defer rows.Close()

	out := []internal.ReminderNotification{}
	for rows.Next() {
		var n internal.ReminderNotification
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Kind, &n.RelatedTaskID, &n.CreatedAt, &n.Payload.Title, &n.Payload.Message, &n.Read); err != nil {
			return nil, fmt.Errorf("storage: scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p *PostgresStorage) MarkRead(ctx context.Context, id, ownerID string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE reminder_notifications SET read = TRUE WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("storage: mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return internal.NotFoundErrorf("notification %s", id)
	}
	return nil
}

// --- Compile-time assertions ---
var _ Store = (*PostgresStorage)(nil)
