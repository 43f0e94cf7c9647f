package main

import (
	"context"
	"fmt"

	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/api"
	"github.com/yourname/focustracker/internal/clock"
	"github.com/yourname/focustracker/internal/config"
	"github.com/yourname/focustracker/internal/scheduler"
	"github.com/yourname/focustracker/internal/service"
	"github.com/yourname/focustracker/internal/storage"
)

// deps is everything a command needs, built from the environment.
type deps struct {
	cfg      *config.Config
	logger   *internal.ZapLogger
	clock    clock.Clock
	store    storage.Store
	tracker  *service.TimeRecordTracker
	engine   *service.PomodoroEngine
	reminder *service.ReminderScheduler
}

func setup(ctx context.Context) (*deps, error) {
	cfg := config.Load()
	logger, err := internal.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	store, err := storage.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("storage: %w", err)
	}

	c := clock.System{}
	locks := service.NewOwnerLocks()
	d := &deps{
		cfg:     cfg,
		logger:  logger,
		clock:   c,
		store:   store,
		tracker: service.NewTimeRecordTracker(store, c, locks, logger.With("component", "tracker")),
		engine: service.NewPomodoroEngine(store, c, locks, service.PomodoroLimits{
			MaxMinutes:     cfg.PomodoroMaxMinutes,
			DefaultMinutes: cfg.PomodoroDefaultMinutes,
		}, logger.With("component", "pomodoro")),
		reminder: service.NewReminderScheduler(store, store, store, c, locks,
			service.PolicyFromConfig(cfg), logger.With("component", "reminder")),
	}
	logger.Infof("using %s storage", cfg.DBType)
	return d, nil
}

func (d *deps) app() api.App {
	return &api.Container{
		Log:      d.logger,
		Sessions: d.tracker,
		Cycles:   d.engine,
		Reminder: d.reminder,
		Sink:     d.store,
	}
}

// jobs maps scan cadences to the notification kinds they cover. onReport,
// if set, receives each finished scan's report.
func (d *deps) jobs(onReport func(service.ScanReport)) []scheduler.Job {
	scan := func(kinds []internal.NotificationKind) func(context.Context) {
		return func(ctx context.Context) {
			report := d.reminder.Scan(ctx, kinds...)
			if onReport != nil {
				onReport(report)
			}
		}
	}
	return []scheduler.Job{
		{Name: "hourly", Interval: d.cfg.HourlyInterval, Run: scan(service.HourlyKinds)},
		{Name: "daily", Interval: d.cfg.DailyInterval, Run: scan(service.DailyKinds)},
		{Name: "all", Run: scan(internal.NotificationKinds)},
	}
}

// periodicJobs are the jobs the serve command puts on a ticker.
func (d *deps) periodicJobs() []scheduler.Job {
	var out []scheduler.Job
	for _, j := range d.jobs(nil) {
		if j.Interval > 0 {
			out = append(out, j)
		}
	}
	return out
}

func (d *deps) Close() {
	if err := d.store.Close(); err != nil {
		d.logger.Errorf("closing storage: %v", err)
	}
	_ = d.logger.Sync()
}
