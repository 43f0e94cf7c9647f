package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/clock"
	"github.com/yourname/focustracker/internal/storage"
)

type StartPomodoroRequest struct {
	TaskID string `json:"task_id,omitempty" validate:"omitempty,max=64"`
	// PlannedMinutes falls back to the configured default when nil.
	PlannedMinutes *int `json:"planned_minutes,omitempty"`
}

type PomodoroLimits struct {
	MaxMinutes     int
	DefaultMinutes int
}

type PomodoroEngine struct {
	cycles storage.PomodoroStore
	clock  clock.Clock
	locks  *OwnerLocks
	limits PomodoroLimits
	logger internal.Logger
}

func NewPomodoroEngine(cycles storage.PomodoroStore, c clock.Clock, locks *OwnerLocks, limits PomodoroLimits, logger internal.Logger) *PomodoroEngine {
	return &PomodoroEngine{cycles: cycles, clock: c, locks: locks, limits: limits, logger: logger}
}

func (e *PomodoroEngine) Start(ctx context.Context, ownerID string, req StartPomodoroRequest) (*internal.PomodoroCycle, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validate.Struct(&req); err != nil {
		return nil, validationError(err)
	}
	planned := e.limits.DefaultMinutes
	if req.PlannedMinutes != nil {
		planned = *req.PlannedMinutes
	}
	if err := validate.Var(planned, fmt.Sprintf("gte=1,lte=%d", e.limits.MaxMinutes)); err != nil {
		return nil, internal.ValidationErrorf("planned_minutes must be between 1 and %d, got %d", e.limits.MaxMinutes, planned)
	}

	unlock := e.locks.Lock(ownerID)
	defer unlock()

	c := &internal.PomodoroCycle{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		TaskID:         req.TaskID,
		PlannedMinutes: planned,
		State:          internal.CycleRunning,
		StartedAt:      e.clock.Now(),
	}
	if err := e.cycles.CreateRunning(ctx, c); err != nil {
		return nil, err
	}
	e.logger.Debugf("pomodoro %s started for %s (%d min)", c.ID, ownerID, planned)
	return c, nil
}

func (e *PomodoroEngine) Complete(ctx context.Context, cycleID, ownerID string) (*internal.PomodoroCycle, error) {
	return e.finish(ctx, cycleID, ownerID, internal.EventComplete, "")
}

func (e *PomodoroEngine) Abandon(ctx context.Context, cycleID, ownerID, reason string) (*internal.PomodoroCycle, error) {
	return e.finish(ctx, cycleID, ownerID, internal.EventAbandon, reason)
}

// finish applies a terminal event. The stored write is conditional on the
// cycle still being RUNNING, so a terminal cycle is never rewritten.
func (e *PomodoroEngine) finish(ctx context.Context, cycleID, ownerID string, ev internal.CycleEvent, reason string) (*internal.PomodoroCycle, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validate.Var(reason, "max=500"); err != nil {
		return nil, internal.ValidationErrorf("abandon reason is too long")
	}

	unlock := e.locks.Lock(ownerID)
	defer unlock()

	c, err := e.cycles.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, internal.NotFoundErrorf("pomodoro cycle %s", cycleID)
	}
	next, err := internal.Transition(c.State, ev)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	actual := internal.WholeMinutes(c.StartedAt, now)
	c.State = next
	c.EndedAt = &now
	c.ActualMinutes = &actual
	if ev == internal.EventAbandon {
		c.AbandonReason = reason
	}
	if err := e.cycles.FinishCycle(ctx, c); err != nil {
		return nil, err
	}
	e.logger.Debugf("pomodoro %s %s for %s after %d min", cycleID, ev, ownerID, actual)
	return c, nil
}

func (e *PomodoroEngine) Running(ctx context.Context, ownerID string) (*internal.PomodoroCycle, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	return e.cycles.FindRunning(ctx, ownerID)
}

func (e *PomodoroEngine) List(ctx context.Context, ownerID string) ([]internal.PomodoroCycle, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	return e.cycles.ListCycles(ctx, ownerID)
}
