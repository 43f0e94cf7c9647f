package storage

import (
	"context"
	"time"

	"github.com/yourname/focustracker/internal"
)

// SessionStore persists TimeRecords. CreateOpen must be atomic with the
// "no open record for this owner" check and fail with a conflict error
// carrying CodeActiveSessionExists.
type SessionStore interface {
	CreateOpen(ctx context.Context, rec *internal.TimeRecord) error
	GetRecord(ctx context.Context, id string) (*internal.TimeRecord, error)
	// CloseRecord sets EndedAt and DurationMinutes only if the record is
	// still open; otherwise it returns a CodeAlreadyEnded state error.
	CloseRecord(ctx context.Context, id string, endedAt time.Time, minutes int) (*internal.TimeRecord, error)
	FindOpen(ctx context.Context, ownerID string) (*internal.TimeRecord, error)
	ListOpen(ctx context.Context) ([]internal.TimeRecord, error)
	ListRecords(ctx context.Context, ownerID string) ([]internal.TimeRecord, error)
}

// PomodoroStore persists PomodoroCycles. CreateRunning fails with
// CodeActivePomodoroExists when the owner already has a running cycle.
type PomodoroStore interface {
	CreateRunning(ctx context.Context, c *internal.PomodoroCycle) error
	GetCycle(ctx context.Context, id string) (*internal.PomodoroCycle, error)
	// FinishCycle writes the terminal fields of c only if the stored cycle is
	// still RUNNING; otherwise it returns a CodeNotRunning state error.
	FinishCycle(ctx context.Context, c *internal.PomodoroCycle) error
	FindRunning(ctx context.Context, ownerID string) (*internal.PomodoroCycle, error)
	ListCycles(ctx context.Context, ownerID string) ([]internal.PomodoroCycle, error)
}

// TaskSource is the read-only query surface over tasks. An empty ownerID
// matches every owner.
type TaskSource interface {
	FindDueWithin(ctx context.Context, ownerID string, now time.Time, horizon time.Duration) ([]internal.Task, error)
	FindOverdue(ctx context.Context, ownerID string, now time.Time) ([]internal.Task, error)
	FindHighPriorityOpen(ctx context.Context, ownerID string) ([]internal.Task, error)
}

// TaskWriter loads tasks from the owning system into the local read model.
type TaskWriter interface {
	SaveTask(ctx context.Context, t *internal.Task) error
}

// NotificationSink stores generated reminders.
type NotificationSink interface {
	ExistsWithin(ctx context.Context, key internal.DedupKey, since time.Time) (bool, error)
	Create(ctx context.Context, n *internal.ReminderNotification) error
	// CreateUnlessRecent inserts n unless a notification with the same key
	// was created at or after since. The check and insert are atomic.
	CreateUnlessRecent(ctx context.Context, n *internal.ReminderNotification, since time.Time) (bool, error)
	ListNotifications(ctx context.Context, ownerID string) ([]internal.ReminderNotification, error)
	MarkRead(ctx context.Context, id, ownerID string) error
}

// Store bundles every repository a backend provides.
type Store interface {
	SessionStore
	PomodoroStore
	TaskSource
	TaskWriter
	NotificationSink
	Close() error
}
