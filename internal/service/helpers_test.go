package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/clock"
	"github.com/yourname/focustracker/internal/storage"
)

var t0 = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *storage.FileStorage
	clock    *clock.Fake
	locks    *OwnerLocks
	tracker  *TimeRecordTracker
	engine   *PomodoroEngine
	reminder *ReminderScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: storage.NewMemoryStorage(internal.NopLogger()),
		clock: clock.NewFake(t0),
		locks: NewOwnerLocks(),
	}
	log := internal.NopLogger()
	f.tracker = NewTimeRecordTracker(f.store, f.clock, f.locks, log)
	f.engine = NewPomodoroEngine(f.store, f.clock, f.locks, PomodoroLimits{MaxMinutes: 120, DefaultMinutes: 25}, log)
	policy := DefaultReminderPolicy()
	policy.Location = time.UTC
	f.reminder = NewReminderScheduler(f.store, f.store, f.store, f.clock, f.locks, policy, log)
	return f
}

func (f *fixture) addTask(t *testing.T, task internal.Task) {
	t.Helper()
	if err := f.store.SaveTask(context.Background(), &task); err != nil {
		t.Fatalf("saving task: %v", err)
	}
}

func (f *fixture) notifications(t *testing.T, owner string, kind internal.NotificationKind) []internal.ReminderNotification {
	t.Helper()
	all, err := f.store.ListNotifications(context.Background(), owner)
	if err != nil {
		t.Fatalf("listing notifications: %v", err)
	}
	var out []internal.ReminderNotification
	for _, n := range all {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// flakySink fails inserts for one task id and delegates the rest.
type flakySink struct {
	storage.NotificationSink
	failTask string
	failures int32
}

func (s *flakySink) CreateUnlessRecent(ctx context.Context, n *internal.ReminderNotification, since time.Time) (bool, error) {
	if n.RelatedTaskID == s.failTask {
		atomic.AddInt32(&s.failures, 1)
		return false, errors.New("connection reset")
	}
	return s.NotificationSink.CreateUnlessRecent(ctx, n, since)
}

// failingTasks fails every due-date query.
type failingTasks struct {
	storage.TaskSource
}

func (failingTasks) FindDueWithin(context.Context, string, time.Time, time.Duration) ([]internal.Task, error) {
	return nil, errors.New("query timeout")
}

// nilDueTasks reports a TODO task with no due date as overdue.
type nilDueTasks struct {
	storage.TaskSource
}

func (s nilDueTasks) FindOverdue(ctx context.Context, ownerID string, now time.Time) ([]internal.Task, error) {
	tasks, err := s.TaskSource.FindOverdue(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}
	return append(tasks, internal.Task{ID: "broken", OwnerID: "userA", Title: "broken", Status: internal.TaskTodo}), nil
}
