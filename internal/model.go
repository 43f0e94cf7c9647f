package internal

import "time"

type RecordKind string

const (
	RecordWork RecordKind = "WORK"
	RecordRest RecordKind = "REST"
)

// TimeRecord is one work or rest interval. A record with EndedAt == nil is
// the owner's open session.
type TimeRecord struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	TaskID          string     `json:"task_id,omitempty"`
	Kind            RecordKind `json:"kind"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Note            string     `json:"note,omitempty"`
}

func (r *TimeRecord) IsOpen() bool { return r.EndedAt == nil }

// ElapsedMinutes returns whole minutes between StartedAt and now, or the
// stored duration once the record is closed.
func (r *TimeRecord) ElapsedMinutes(now time.Time) int {
	if r.DurationMinutes != nil {
		return *r.DurationMinutes
	}
	return WholeMinutes(r.StartedAt, now)
}

type PomodoroCycle struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	TaskID         string     `json:"task_id,omitempty"`
	PlannedMinutes int        `json:"planned_minutes"`
	ActualMinutes  *int       `json:"actual_minutes,omitempty"`
	State          CycleState `json:"state"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	AbandonReason  string     `json:"abandon_reason,omitempty"`
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
)

// Task is the read-only view of a task consumed by the reminder scans.
type Task struct {
	ID       string       `json:"id"`
	OwnerID  string       `json:"owner_id"`
	Title    string       `json:"title"`
	Status   TaskStatus   `json:"status"`
	Priority TaskPriority `json:"priority"`
	DueDate  *time.Time   `json:"due_date,omitempty"`
}

type NotificationKind string

const (
	KindTaskDeadline  NotificationKind = "TASK_DEADLINE"
	KindTaskOverdue   NotificationKind = "TASK_OVERDUE"
	KindImportantTask NotificationKind = "IMPORTANT_TASK"
	KindRestReminder  NotificationKind = "REST_REMINDER"
)

// NotificationKinds lists every kind in scan order.
var NotificationKinds = []NotificationKind{KindTaskDeadline, KindTaskOverdue, KindImportantTask, KindRestReminder}

type Payload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type ReminderNotification struct {
	ID            string           `json:"id"`
	OwnerID       string           `json:"owner_id"`
	Kind          NotificationKind `json:"kind"`
	RelatedTaskID string           `json:"related_task_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	Payload       Payload          `json:"payload"`
	Read          bool             `json:"read"`
}

// DedupKey identifies notifications that suppress each other inside a window.
type DedupKey struct {
	OwnerID       string
	Kind          NotificationKind
	RelatedTaskID string
}

func (n *ReminderNotification) Key() DedupKey {
	return DedupKey{OwnerID: n.OwnerID, Kind: n.Kind, RelatedTaskID: n.RelatedTaskID}
}

func (k DedupKey) String() string {
	return k.OwnerID + "|" + string(k.Kind) + "|" + k.RelatedTaskID
}

// WholeMinutes is floor((to - from) / minute), never negative.
func WholeMinutes(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
