package api

import (
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/service"
	"github.com/yourname/focustracker/internal/storage"
)

type App interface {
	Logger() internal.Logger
	Tracker() *service.TimeRecordTracker
	Pomodoro() *service.PomodoroEngine
	Reminders() *service.ReminderScheduler
	Notifications() storage.NotificationSink
}

// Container is the App used by the server and by tests.
type Container struct {
	Log      internal.Logger
	Sessions *service.TimeRecordTracker
	Cycles   *service.PomodoroEngine
	Reminder *service.ReminderScheduler
	Sink     storage.NotificationSink
}

func (c *Container) Logger() internal.Logger                 { return c.Log }
func (c *Container) Tracker() *service.TimeRecordTracker     { return c.Sessions }
func (c *Container) Pomodoro() *service.PomodoroEngine       { return c.Cycles }
func (c *Container) Reminders() *service.ReminderScheduler   { return c.Reminder }
func (c *Container) Notifications() storage.NotificationSink { return c.Sink }

var _ App = (*Container)(nil)
