package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/clock"
	"github.com/yourname/focustracker/internal/config"
	"github.com/yourname/focustracker/internal/storage"
)

// Window is a dedup window. A rolling window covers Span before now; a
// calendar-day window starts at local midnight.
type Window struct {
	Span        time.Duration
	CalendarDay bool
}

func (w Window) Since(now time.Time, loc *time.Location) time.Time {
	if w.CalendarDay {
		return clock.StartOfDay(now, loc)
	}
	return now.Add(-w.Span)
}

type ReminderPolicy struct {
	RestThresholdMinutes int
	DeadlineHorizon      time.Duration
	Windows              map[internal.NotificationKind]Window
	Location             *time.Location
}

func DefaultReminderPolicy() ReminderPolicy {
	return ReminderPolicy{
		RestThresholdMinutes: 50,
		DeadlineHorizon:      24 * time.Hour,
		Windows: map[internal.NotificationKind]Window{
			internal.KindTaskDeadline:  {Span: 24 * time.Hour},
			internal.KindTaskOverdue:   {CalendarDay: true},
			internal.KindImportantTask: {CalendarDay: true},
			internal.KindRestReminder:  {Span: time.Hour},
		},
		Location: time.Local,
	}
}

func PolicyFromConfig(cfg *config.Config) ReminderPolicy {
	p := DefaultReminderPolicy()
	p.RestThresholdMinutes = cfg.RestThresholdMinutes
	p.DeadlineHorizon = cfg.DeadlineHorizon
	p.Windows[internal.KindTaskDeadline] = Window{Span: cfg.DeadlineWindow}
	p.Windows[internal.KindRestReminder] = Window{Span: cfg.RestWindow}
	if cfg.Location != nil {
		p.Location = cfg.Location
	}
	return p
}

// Kinds grouped by the cadence that scans them.
var (
	HourlyKinds = []internal.NotificationKind{internal.KindTaskDeadline, internal.KindRestReminder}
	DailyKinds  = []internal.NotificationKind{internal.KindTaskOverdue, internal.KindImportantTask}
)

type KindReport struct {
	Candidates  int  `json:"candidates"`
	Created     int  `json:"created"`
	Skipped     int  `json:"skipped"`
	Failed      int  `json:"failed"`
	QueryFailed bool `json:"query_failed,omitempty"`
}

type ScanReport struct {
	StartedAt time.Time                                `json:"started_at"`
	Kinds     map[internal.NotificationKind]*KindReport `json:"kinds"`
}

func (r ScanReport) Created() int {
	n := 0
	for _, k := range r.Kinds {
		n += k.Created
	}
	return n
}

func (r ScanReport) Failed() int {
	n := 0
	for _, k := range r.Kinds {
		n += k.Failed
	}
	return n
}

type candidate struct {
	ownerID string
	taskID  string
	payload internal.Payload
	err     error
}

// ReminderScheduler turns task and session state into deduplicated
// notifications. Each candidate is independent: a failed insert is logged
// and left for the next scan.
type ReminderScheduler struct {
	tasks    storage.TaskSource
	sessions storage.SessionStore
	sink     storage.NotificationSink
	clock    clock.Clock
	locks    *OwnerLocks
	policy   ReminderPolicy
	logger   internal.Logger
}

func NewReminderScheduler(tasks storage.TaskSource, sessions storage.SessionStore, sink storage.NotificationSink,
	c clock.Clock, locks *OwnerLocks, policy ReminderPolicy, logger internal.Logger) *ReminderScheduler {
	return &ReminderScheduler{
		tasks:    tasks,
		sessions: sessions,
		sink:     sink,
		clock:    c,
		locks:    locks,
		policy:   policy,
		logger:   logger,
	}
}

// ScanAll runs every notification kind.
func (r *ReminderScheduler) ScanAll(ctx context.Context) ScanReport {
	return r.Scan(ctx, internal.NotificationKinds...)
}

// Scan evaluates the given kinds against the current state. It never
// returns an error; failures are recorded in the report.
func (r *ReminderScheduler) Scan(ctx context.Context, kinds ...internal.NotificationKind) ScanReport {
	now := r.clock.Now()
	report := ScanReport{StartedAt: now, Kinds: make(map[internal.NotificationKind]*KindReport, len(kinds))}
	for _, kind := range kinds {
		kr := &KindReport{}
		report.Kinds[kind] = kr
		if ctx.Err() != nil {
			kr.QueryFailed = true
			continue
		}

		cands, err := r.candidates(ctx, kind, now)
		if err != nil {
			kr.QueryFailed = true
			r.logger.Errorf("reminder: %s query failed: %v", kind, err)
			continue
		}
		kr.Candidates = len(cands)
		for _, c := range cands {
			if c.err != nil {
				kr.Failed++
				r.logger.Warnf("reminder: %s for owner=%s task=%s skipped: %v", kind, c.ownerID, c.taskID, c.err)
				continue
			}
			created, err := r.emit(ctx, kind, c, now)
			switch {
			case err != nil:
				kr.Failed++
				r.logger.Warnf("reminder: %s for owner=%s task=%s not created, retrying next scan: %v", kind, c.ownerID, c.taskID, err)
			case created:
				kr.Created++
			default:
				kr.Skipped++
			}
		}
	}
	r.logger.Infof("reminder: scan finished created=%d failed=%d", report.Created(), report.Failed())
	return report
}

// CheckRestReminder creates a REST_REMINDER for ownerID if their open WORK
// session has run past the threshold and none was sent inside the window.
// An open REST session never triggers one.
func (r *ReminderScheduler) CheckRestReminder(ctx context.Context, ownerID string) (bool, error) {
	if err := validateOwner(ownerID); err != nil {
		return false, err
	}
	rec, err := r.sessions.FindOpen(ctx, ownerID)
	if errors.Is(err, internal.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reminder: find open session: %w", err)
	}
	now := r.clock.Now()
	c, ok := r.restCandidate(rec, now)
	if !ok {
		return false, nil
	}
	return r.emit(ctx, internal.KindRestReminder, c, now)
}

func (r *ReminderScheduler) candidates(ctx context.Context, kind internal.NotificationKind, now time.Time) ([]candidate, error) {
	switch kind {
	case internal.KindTaskDeadline:
		tasks, err := r.tasks.FindDueWithin(ctx, "", now, r.policy.DeadlineHorizon)
		if err != nil {
			return nil, err
		}
		return taskCandidates(tasks, func(t internal.Task) (internal.Payload, error) {
			if t.DueDate == nil {
				return internal.Payload{}, errNoDueDate
			}
			return internal.Payload{
				Title:   "Task due soon",
				Message: fmt.Sprintf("%q is due %s", t.Title, t.DueDate.In(r.location()).Format("Jan 2 15:04")),
			}, nil
		}), nil
	case internal.KindTaskOverdue:
		tasks, err := r.tasks.FindOverdue(ctx, "", now)
		if err != nil {
			return nil, err
		}
		return taskCandidates(tasks, func(t internal.Task) (internal.Payload, error) {
			if t.DueDate == nil {
				return internal.Payload{}, errNoDueDate
			}
			return internal.Payload{
				Title:   "Task overdue",
				Message: fmt.Sprintf("%q was due %s", t.Title, t.DueDate.In(r.location()).Format("Jan 2 15:04")),
			}, nil
		}), nil
	case internal.KindImportantTask:
		tasks, err := r.tasks.FindHighPriorityOpen(ctx, "")
		if err != nil {
			return nil, err
		}
		return taskCandidates(tasks, func(t internal.Task) (internal.Payload, error) {
			return internal.Payload{
				Title:   "Important task pending",
				Message: fmt.Sprintf("%q is high priority and still to do", t.Title),
			}, nil
		}), nil
	case internal.KindRestReminder:
		open, err := r.sessions.ListOpen(ctx)
		if err != nil {
			return nil, err
		}
		var out []candidate
		for i := range open {
			if c, ok := r.restCandidate(&open[i], now); ok {
				out = append(out, c)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown notification kind %q", kind)
	}
}

var errNoDueDate = errors.New("task has no due date")

// taskCandidates renders one candidate per task. A task that cannot be
// rendered still yields a candidate, carrying the error.
func taskCandidates(tasks []internal.Task, render func(internal.Task) (internal.Payload, error)) []candidate {
	out := make([]candidate, 0, len(tasks))
	for _, t := range tasks {
		p, err := render(t)
		out = append(out, candidate{ownerID: t.OwnerID, taskID: t.ID, payload: p, err: err})
	}
	return out
}

func (r *ReminderScheduler) restCandidate(rec *internal.TimeRecord, now time.Time) (candidate, bool) {
	if !rec.IsOpen() || rec.Kind != internal.RecordWork {
		return candidate{}, false
	}
	elapsed := rec.ElapsedMinutes(now)
	if elapsed < r.policy.RestThresholdMinutes {
		return candidate{}, false
	}
	return candidate{
		ownerID: rec.OwnerID,
		payload: internal.Payload{
			Title:   "Time for a break",
			Message: fmt.Sprintf("You have been working for %d minutes. Take a short rest.", elapsed),
		},
	}, true
}

func (r *ReminderScheduler) emit(ctx context.Context, kind internal.NotificationKind, c candidate, now time.Time) (bool, error) {
	unlock := r.locks.Lock(c.ownerID)
	defer unlock()

	n := &internal.ReminderNotification{
		ID:            uuid.NewString(),
		OwnerID:       c.ownerID,
		Kind:          kind,
		RelatedTaskID: c.taskID,
		CreatedAt:     now,
		Payload:       c.payload,
	}
	since := r.window(kind).Since(now, r.location())
	created, err := r.sink.CreateUnlessRecent(ctx, n, since)
	if err != nil {
		return false, fmt.Errorf("%w: %v", internal.ErrTransient, err)
	}
	if created {
		r.logger.Debugf("reminder: created %s for owner=%s task=%s", kind, c.ownerID, c.taskID)
	}
	return created, nil
}

func (r *ReminderScheduler) window(kind internal.NotificationKind) Window {
	if w, ok := r.policy.Windows[kind]; ok {
		return w
	}
	return DefaultReminderPolicy().Windows[kind]
}

func (r *ReminderScheduler) location() *time.Location {
	if r.policy.Location != nil {
		return r.policy.Location
	}
	return time.Local
}
