package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourname/focustracker/internal"
)

var base = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	b := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStorage(internal.NopLogger())
		},
		"file": func(t *testing.T) Store {
			s, err := NewFileStorage(filepath.Join(t.TempDir(), "data.json"), internal.NopLogger())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "focus.db"), internal.NopLogger())
			require.NoError(t, err)
			return s
		},
	}
	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		b["postgres"] = func(t *testing.T) Store {
			s, err := NewPostgresStorage(context.Background(), dsn, internal.NopLogger())
			require.NoError(t, err)
			for _, table := range []string{"time_records", "pomodoro_cycles", "tasks", "reminder_notifications"} {
				_, err := s.pool.Exec(context.Background(), "TRUNCATE "+table)
				require.NoError(t, err)
			}
			return s
		}
	}
	return b
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			fn(t, s)
		})
	}
}

func newRecord(owner string, at time.Time) *internal.TimeRecord {
	return &internal.TimeRecord{ID: uuid.NewString(), OwnerID: owner, Kind: internal.RecordWork, StartedAt: at}
}

func TestStore_OneOpenRecordPerOwner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		first := newRecord("alice", base)
		require.NoError(t, s.CreateOpen(ctx, first))

		err := s.CreateOpen(ctx, newRecord("alice", base.Add(time.Minute)))
		assert.ErrorIs(t, err, internal.ErrConflict)
		assert.Equal(t, internal.CodeActiveSessionExists, internal.CodeOf(err))

		require.NoError(t, s.CreateOpen(ctx, newRecord("bob", base)))

		closed, err := s.CloseRecord(ctx, first.ID, base.Add(30*time.Minute), 30)
		require.NoError(t, err)
		require.NotNil(t, closed.DurationMinutes)
		assert.Equal(t, 30, *closed.DurationMinutes)

		_, err = s.CloseRecord(ctx, first.ID, base.Add(40*time.Minute), 40)
		assert.ErrorIs(t, err, internal.ErrState)
		assert.Equal(t, internal.CodeAlreadyEnded, internal.CodeOf(err))

		got, err := s.GetRecord(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, 30, *got.DurationMinutes)
		assert.True(t, got.EndedAt.Equal(base.Add(30*time.Minute)))

		require.NoError(t, s.CreateOpen(ctx, newRecord("alice", base.Add(time.Hour))))

		open, err := s.ListOpen(ctx)
		require.NoError(t, err)
		assert.Len(t, open, 2)

		all, err := s.ListRecords(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.True(t, all[0].StartedAt.After(all[1].StartedAt))
	})
}

func TestStore_ConcurrentCreateOpen(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		var ok, conflicts int32
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.CreateOpen(ctx, newRecord("carol", base))
				switch {
				case err == nil:
					atomic.AddInt32(&ok, 1)
				case errors.Is(err, internal.ErrConflict):
					atomic.AddInt32(&conflicts, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, ok)
		assert.EqualValues(t, 15, conflicts)
	})
}

func TestStore_MissingRecords(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.GetRecord(ctx, "nope")
		assert.ErrorIs(t, err, internal.ErrNotFound)
		_, err = s.CloseRecord(ctx, "nope", base, 0)
		assert.ErrorIs(t, err, internal.ErrNotFound)
		_, err = s.FindOpen(ctx, "nobody")
		assert.ErrorIs(t, err, internal.ErrNotFound)
		_, err = s.GetCycle(ctx, "nope")
		assert.ErrorIs(t, err, internal.ErrNotFound)
		_, err = s.FindRunning(ctx, "nobody")
		assert.ErrorIs(t, err, internal.ErrNotFound)
		assert.ErrorIs(t, s.MarkRead(ctx, "nope", "nobody"), internal.ErrNotFound)
	})
}

func TestStore_PomodoroCycleCompareAndSet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		c := &internal.PomodoroCycle{
			ID: uuid.NewString(), OwnerID: "alice", PlannedMinutes: 25,
			State: internal.CycleRunning, StartedAt: base,
		}
		require.NoError(t, s.CreateRunning(ctx, c))

		dup := *c
		dup.ID = uuid.NewString()
		err := s.CreateRunning(ctx, &dup)
		assert.ErrorIs(t, err, internal.ErrConflict)
		assert.Equal(t, internal.CodeActivePomodoroExists, internal.CodeOf(err))

		running, err := s.FindRunning(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, c.ID, running.ID)

		done := *c
		end := base.Add(25 * time.Minute)
		actual := 25
		done.State = internal.CycleCompleted
		done.EndedAt = &end
		done.ActualMinutes = &actual
		require.NoError(t, s.FinishCycle(ctx, &done))

		again := done
		again.State = internal.CycleAbandoned
		again.AbandonReason = "late"
		err = s.FinishCycle(ctx, &again)
		assert.ErrorIs(t, err, internal.ErrState)
		assert.Equal(t, internal.CodeNotRunning, internal.CodeOf(err))

		got, err := s.GetCycle(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, internal.CycleCompleted, got.State)
		assert.Equal(t, 25, *got.ActualMinutes)
		assert.Empty(t, got.AbandonReason)

		_, err = s.FindRunning(ctx, "alice")
		assert.ErrorIs(t, err, internal.ErrNotFound)

		cycles, err := s.ListCycles(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, cycles, 1)
	})
}

func TestStore_TaskQueries(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		due := func(d time.Duration) *time.Time { v := base.Add(d); return &v }
		tasks := []*internal.Task{
			{ID: "t1", OwnerID: "alice", Title: "soon", Status: internal.TaskTodo, Priority: internal.PriorityLow, DueDate: due(23 * time.Hour)},
			{ID: "t2", OwnerID: "alice", Title: "late", Status: internal.TaskTodo, Priority: internal.PriorityHigh, DueDate: due(-2 * time.Hour)},
			{ID: "t3", OwnerID: "alice", Title: "far", Status: internal.TaskTodo, Priority: internal.PriorityMedium, DueDate: due(48 * time.Hour)},
			{ID: "t4", OwnerID: "alice", Title: "done", Status: internal.TaskDone, Priority: internal.PriorityHigh, DueDate: due(-time.Hour)},
			{ID: "t5", OwnerID: "bob", Title: "bob soon", Status: internal.TaskTodo, Priority: internal.PriorityHigh, DueDate: due(time.Hour)},
			{ID: "t6", OwnerID: "bob", Title: "no date", Status: internal.TaskTodo, Priority: internal.PriorityLow},
		}
		for _, task := range tasks {
			require.NoError(t, s.SaveTask(ctx, task))
		}

		ids := func(ts []internal.Task) []string {
			out := []string{}
			for _, t := range ts {
				out = append(out, t.ID)
			}
			return out
		}

		dueSoon, err := s.FindDueWithin(ctx, "", base, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t5"}, ids(dueSoon))

		dueAlice, err := s.FindDueWithin(ctx, "alice", base, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, []string{"t1"}, ids(dueAlice))

		overdue, err := s.FindOverdue(ctx, "", base)
		require.NoError(t, err)
		assert.Equal(t, []string{"t2"}, ids(overdue))

		important, err := s.FindHighPriorityOpen(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"t2", "t5"}, ids(important))
	})
}

func TestStore_NotificationDedup(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mk := func(at time.Time) *internal.ReminderNotification {
			return &internal.ReminderNotification{
				ID: uuid.NewString(), OwnerID: "alice", Kind: internal.KindTaskDeadline,
				RelatedTaskID: "t1", CreatedAt: at, Payload: internal.Payload{Title: "Due soon", Message: "t1"},
			}
		}
		key := internal.DedupKey{OwnerID: "alice", Kind: internal.KindTaskDeadline, RelatedTaskID: "t1"}

		exists, err := s.ExistsWithin(ctx, key, base.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.False(t, exists)

		created, err := s.CreateUnlessRecent(ctx, mk(base), base.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.True(t, created)

		created, err = s.CreateUnlessRecent(ctx, mk(base.Add(time.Minute)), base.Add(time.Minute-24*time.Hour))
		require.NoError(t, err)
		assert.False(t, created)

		other := mk(base)
		other.Kind = internal.KindTaskOverdue
		created, err = s.CreateUnlessRecent(ctx, other, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.True(t, created)

		later := base.Add(25 * time.Hour)
		created, err = s.CreateUnlessRecent(ctx, mk(later), later.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.True(t, created)

		exists, err = s.ExistsWithin(ctx, key, later)
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, s.Create(ctx, mk(later.Add(time.Hour))))

		list, err := s.ListNotifications(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, list, 4)
		assert.True(t, list[0].CreatedAt.Equal(later.Add(time.Hour)))

		require.NoError(t, s.MarkRead(ctx, list[0].ID, "alice"))
		assert.ErrorIs(t, s.MarkRead(ctx, list[0].ID, "mallory"), internal.ErrNotFound)
		list, err = s.ListNotifications(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, list[0].Read)
	})
}

func TestStore_ConcurrentCreateUnlessRecent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		var created int32
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n := &internal.ReminderNotification{
					ID: uuid.NewString(), OwnerID: "dave", Kind: internal.KindRestReminder,
					CreatedAt: base, Payload: internal.Payload{Title: "Rest", Message: "break"},
				}
				ok, err := s.CreateUnlessRecent(ctx, n, base.Add(-time.Hour))
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if ok {
					atomic.AddInt32(&created, 1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, created)
	})
}
