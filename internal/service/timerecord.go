package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/clock"
	"github.com/yourname/focustracker/internal/storage"
)

type StartSessionRequest struct {
	TaskID string              `json:"task_id,omitempty" validate:"omitempty,max=64"`
	Kind   internal.RecordKind `json:"kind,omitempty" validate:"omitempty,oneof=WORK REST"`
	Note   string              `json:"note,omitempty" validate:"omitempty,max=500"`
}

// TimeRecordTracker starts and stops work sessions. Sessions have no
// timeout; a record stays open until the owner stops it.
type TimeRecordTracker struct {
	sessions storage.SessionStore
	clock    clock.Clock
	locks    *OwnerLocks
	logger   internal.Logger
}

func NewTimeRecordTracker(sessions storage.SessionStore, c clock.Clock, locks *OwnerLocks, logger internal.Logger) *TimeRecordTracker {
	return &TimeRecordTracker{sessions: sessions, clock: c, locks: locks, logger: logger}
}

func (t *TimeRecordTracker) Start(ctx context.Context, ownerID string, req StartSessionRequest) (*internal.TimeRecord, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validate.Struct(&req); err != nil {
		return nil, validationError(err)
	}
	kind := req.Kind
	if kind == "" {
		kind = internal.RecordWork
	}

	unlock := t.locks.Lock(ownerID)
	defer unlock()

	rec := &internal.TimeRecord{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		TaskID:    req.TaskID,
		Kind:      kind,
		StartedAt: t.clock.Now(),
		Note:      req.Note,
	}
	if err := t.sessions.CreateOpen(ctx, rec); err != nil {
		return nil, err
	}
	t.logger.Debugf("session %s started for %s", rec.ID, ownerID)
	return rec, nil
}

// Stop closes the owner's record. A record owned by someone else is
// reported as not found.
func (t *TimeRecordTracker) Stop(ctx context.Context, recordID, ownerID string) (*internal.TimeRecord, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}

	unlock := t.locks.Lock(ownerID)
	defer unlock()

	rec, err := t.sessions.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, internal.NotFoundErrorf("time record %s", recordID)
	}
	if !rec.IsOpen() {
		return nil, internal.StateErrorf(internal.CodeAlreadyEnded, "time record %s", recordID)
	}

	now := t.clock.Now()
	closed, err := t.sessions.CloseRecord(ctx, recordID, now, internal.WholeMinutes(rec.StartedAt, now))
	if err != nil {
		return nil, err
	}
	t.logger.Debugf("session %s stopped for %s after %d min", recordID, ownerID, *closed.DurationMinutes)
	return closed, nil
}

func (t *TimeRecordTracker) Active(ctx context.Context, ownerID string) (*internal.TimeRecord, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	return t.sessions.FindOpen(ctx, ownerID)
}

func (t *TimeRecordTracker) List(ctx context.Context, ownerID string) ([]internal.TimeRecord, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}
	return t.sessions.ListRecords(ctx, ownerID)
}
