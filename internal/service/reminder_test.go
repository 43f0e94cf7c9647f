package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourname/focustracker/internal"
)

func TestReminder_DeadlineWithinRollingWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTask(t, internal.Task{ID: "T", OwnerID: "userA", Title: "report", Status: internal.TaskTodo,
		Priority: internal.PriorityMedium, DueDate: ptr(t0.Add(23 * time.Hour))})

	report := f.reminder.Scan(ctx, HourlyKinds...)
	assert.Equal(t, 1, report.Kinds[internal.KindTaskDeadline].Created)
	require.Len(t, f.notifications(t, "userA", internal.KindTaskDeadline), 1)

	f.clock.Advance(time.Minute)
	report = f.reminder.Scan(ctx, HourlyKinds...)
	assert.Equal(t, 0, report.Created())
	assert.Equal(t, 1, report.Kinds[internal.KindTaskDeadline].Skipped)
	assert.Len(t, f.notifications(t, "userA", internal.KindTaskDeadline), 1)
}

func TestReminder_OverdueOncePerCalendarDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTask(t, internal.Task{ID: "T", OwnerID: "userA", Title: "invoice", Status: internal.TaskTodo,
		Priority: internal.PriorityLow, DueDate: ptr(t0.Add(-2 * time.Hour))})

	report := f.reminder.ScanAll(ctx)
	assert.Equal(t, 1, report.Created())
	assert.Equal(t, 1, report.Kinds[internal.KindTaskOverdue].Created)

	// 15:00 the same day
	f.clock.Advance(5 * time.Hour)
	report = f.reminder.ScanAll(ctx)
	assert.Equal(t, 0, report.Created())

	// 09:00 the next day
	f.clock.Advance(18 * time.Hour)
	report = f.reminder.ScanAll(ctx)
	assert.Equal(t, 1, report.Kinds[internal.KindTaskOverdue].Created)
	assert.Len(t, f.notifications(t, "userA", internal.KindTaskOverdue), 2)
}

func TestReminder_CalendarDayFollowsLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokyo := time.FixedZone("JST", 9*60*60)
	f.reminder.policy.Location = tokyo

	// t0 is 19:00 in JST; six hours later is still the same day in UTC but
	// 01:00 the next day in JST.
	f.addTask(t, internal.Task{ID: "T", OwnerID: "userA", Title: "x", Status: internal.TaskTodo,
		Priority: internal.PriorityLow, DueDate: ptr(t0.Add(-time.Hour))})
	f.reminder.Scan(ctx, internal.KindTaskOverdue)

	f.clock.Advance(6 * time.Hour)
	report := f.reminder.Scan(ctx, internal.KindTaskOverdue)
	assert.Equal(t, 1, report.Created())
}

func TestReminder_RestReminderRollingHour(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.Start(ctx, "userA", StartSessionRequest{})
	require.NoError(t, err)
	f.clock.Advance(52 * time.Minute)

	created, err := f.reminder.CheckRestReminder(ctx, "userA")
	require.NoError(t, err)
	assert.True(t, created)

	f.clock.Advance(10 * time.Minute)
	created, err = f.reminder.CheckRestReminder(ctx, "userA")
	require.NoError(t, err)
	assert.False(t, created)

	f.clock.Advance(51 * time.Minute)
	created, err = f.reminder.CheckRestReminder(ctx, "userA")
	require.NoError(t, err)
	assert.True(t, created)

	assert.Len(t, f.notifications(t, "userA", internal.KindRestReminder), 2)
}

func TestReminder_RestReminderBelowThresholdOrIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.reminder.CheckRestReminder(ctx, "userA")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = f.tracker.Start(ctx, "userA", StartSessionRequest{})
	require.NoError(t, err)
	f.clock.Advance(49*time.Minute + 59*time.Second)
	created, err = f.reminder.CheckRestReminder(ctx, "userA")
	require.NoError(t, err)
	assert.False(t, created)

	f.clock.Advance(time.Second)
	report := f.reminder.Scan(ctx, internal.KindRestReminder)
	assert.Equal(t, 1, report.Kinds[internal.KindRestReminder].Created)

	_, err = f.reminder.CheckRestReminder(ctx, "")
	assert.ErrorIs(t, err, internal.ErrValidation)
}

func TestReminder_OpenRestSessionNeverTriggers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.Start(ctx, "userA", StartSessionRequest{Kind: internal.RecordRest})
	require.NoError(t, err)
	f.clock.Advance(55 * time.Minute)

	created, err := f.reminder.CheckRestReminder(ctx, "userA")
	require.NoError(t, err)
	assert.False(t, created)

	report := f.reminder.Scan(ctx, internal.KindRestReminder)
	assert.Equal(t, 0, report.Kinds[internal.KindRestReminder].Candidates)
	assert.Empty(t, f.notifications(t, "userA", internal.KindRestReminder))
}

func TestReminder_TaskWithoutDueDateCountsAsFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTask(t, internal.Task{ID: "H", OwnerID: "userA", Title: "ship", Status: internal.TaskTodo,
		Priority: internal.PriorityHigh})
	r := NewReminderScheduler(nilDueTasks{TaskSource: f.store}, f.store, f.store, f.clock, f.locks, f.reminder.policy, internal.NopLogger())

	var report ScanReport
	require.NotPanics(t, func() { report = r.ScanAll(ctx) })
	overdue := report.Kinds[internal.KindTaskOverdue]
	assert.Equal(t, 1, overdue.Candidates)
	assert.Equal(t, 1, overdue.Failed)
	assert.Equal(t, 0, overdue.Created)
	assert.Equal(t, 1, report.Kinds[internal.KindImportantTask].Created)
	assert.Empty(t, f.notifications(t, "userA", internal.KindTaskOverdue))
}

func TestReminder_ScanIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTask(t, internal.Task{ID: "a", OwnerID: "userA", Title: "a", Status: internal.TaskTodo,
		Priority: internal.PriorityHigh, DueDate: ptr(t0.Add(-time.Hour))})
	f.addTask(t, internal.Task{ID: "b", OwnerID: "userB", Title: "b", Status: internal.TaskTodo,
		Priority: internal.PriorityMedium, DueDate: ptr(t0.Add(2 * time.Hour))})
	f.addTask(t, internal.Task{ID: "c", OwnerID: "userB", Title: "c", Status: internal.TaskDone,
		Priority: internal.PriorityHigh, DueDate: ptr(t0.Add(-time.Hour))})

	first := f.reminder.ScanAll(ctx)
	// a: overdue + important, b: deadline, c: done
	assert.Equal(t, 3, first.Created())
	assert.Len(t, f.notifications(t, "userA", internal.KindTaskOverdue), 1)
	assert.Len(t, f.notifications(t, "userA", internal.KindImportantTask), 1)
	assert.Len(t, f.notifications(t, "userB", internal.KindTaskDeadline), 1)

	second := f.reminder.ScanAll(ctx)
	assert.Equal(t, 0, second.Created())
	assert.Equal(t, 0, second.Failed())
}

func TestReminder_DeadlineDoesNotSuppressOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTask(t, internal.Task{ID: "T", OwnerID: "userA", Title: "x", Status: internal.TaskTodo,
		Priority: internal.PriorityLow, DueDate: ptr(t0.Add(30 * time.Minute))})

	f.reminder.ScanAll(ctx)
	require.Len(t, f.notifications(t, "userA", internal.KindTaskDeadline), 1)

	f.clock.Advance(time.Hour)
	report := f.reminder.ScanAll(ctx)
	assert.Equal(t, 1, report.Kinds[internal.KindTaskOverdue].Created)
	assert.Equal(t, 0, report.Kinds[internal.KindTaskDeadline].Candidates)
}

func TestReminder_FailedCandidateDoesNotStopScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"t1", "t-bad", "t3"} {
		f.addTask(t, internal.Task{ID: id, OwnerID: "userA", Title: id, Status: internal.TaskTodo,
			Priority: internal.PriorityLow, DueDate: ptr(t0.Add(-time.Hour))})
	}
	sink := &flakySink{NotificationSink: f.store, failTask: "t-bad"}
	r := NewReminderScheduler(f.store, f.store, sink, f.clock, f.locks, f.reminder.policy, internal.NopLogger())

	report := r.Scan(ctx, internal.KindTaskOverdue)
	kr := report.Kinds[internal.KindTaskOverdue]
	assert.Equal(t, 3, kr.Candidates)
	assert.Equal(t, 2, kr.Created)
	assert.Equal(t, 1, kr.Failed)
	assert.EqualValues(t, 1, sink.failures)

	// the failed candidate is picked up once the sink recovers
	sink.failTask = ""
	report = r.Scan(ctx, internal.KindTaskOverdue)
	assert.Equal(t, 1, report.Created())
	assert.Len(t, f.notifications(t, "userA", internal.KindTaskOverdue), 3)
}

func TestReminder_QueryFailureSkipsOnlyThatKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTask(t, internal.Task{ID: "T", OwnerID: "userA", Title: "x", Status: internal.TaskTodo,
		Priority: internal.PriorityHigh, DueDate: ptr(t0.Add(-time.Hour))})
	r := NewReminderScheduler(failingTasks{TaskSource: f.store}, f.store, f.store, f.clock, f.locks, f.reminder.policy, internal.NopLogger())

	report := r.ScanAll(ctx)
	assert.True(t, report.Kinds[internal.KindTaskDeadline].QueryFailed)
	assert.False(t, report.Kinds[internal.KindTaskOverdue].QueryFailed)
	assert.Equal(t, 1, report.Kinds[internal.KindTaskOverdue].Created)
	assert.Equal(t, 1, report.Kinds[internal.KindImportantTask].Created)
}

func TestReminder_CanceledContextMarksKindsFailed(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := f.reminder.ScanAll(ctx)
	for _, kind := range internal.NotificationKinds {
		assert.True(t, report.Kinds[kind].QueryFailed, kind)
	}
}

func TestWindowSince(t *testing.T) {
	now := time.Date(2024, 5, 6, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, now.Add(-time.Hour), Window{Span: time.Hour}.Since(now, time.UTC))
	assert.Equal(t, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), Window{CalendarDay: true}.Since(now, time.UTC))

	ny := time.FixedZone("EDT", -4*60*60)
	assert.Equal(t, time.Date(2024, 5, 5, 0, 0, 0, 0, ny), Window{CalendarDay: true}.Since(now, ny))
}
