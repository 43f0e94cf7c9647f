package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/yourname/focustracker/internal"
)

// FileStorage keeps everything in memory and snapshots it to a JSON file.
// All check-then-write operations run under the single write lock, which is
// what makes CreateOpen, CreateRunning and CreateUnlessRecent atomic.
type FileStorage struct {
	records       map[string]*internal.TimeRecord // id -> record
	openByOwner   map[string]string               // ownerID -> open record id
	cycles        map[string]*internal.PomodoroCycle
	runningByUser map[string]string // ownerID -> running cycle id
	tasks         map[string]*internal.Task
	notifications []*internal.ReminderNotification // creation order
	latestByKey   map[internal.DedupKey]time.Time  // dedup key -> newest CreatedAt
	mu            sync.RWMutex

	dataFile     string
	saveChan     chan struct{}
	shutdownChan chan struct{}
	doneChan     chan struct{}
	saveDelay    time.Duration
	closeOnce    sync.Once
	logger       internal.Logger
}

type snapshot struct {
	Records       []*internal.TimeRecord           `json:"time_records"`
	Cycles        []*internal.PomodoroCycle        `json:"pomodoro_cycles"`
	Tasks         []*internal.Task                 `json:"tasks"`
	Notifications []*internal.ReminderNotification `json:"notifications"`
}

// NewMemoryStorage returns a FileStorage that never touches disk.
func NewMemoryStorage(logger internal.Logger) *FileStorage {
	s, _ := NewFileStorage("", logger)
	return s
}

func NewFileStorage(dataFile string, logger internal.Logger) (*FileStorage, error) {
	s := &FileStorage{
		records:       make(map[string]*internal.TimeRecord),
		openByOwner:   make(map[string]string),
		cycles:        make(map[string]*internal.PomodoroCycle),
		runningByUser: make(map[string]string),
		tasks:         make(map[string]*internal.Task),
		latestByKey:   make(map[internal.DedupKey]time.Time),
		dataFile:      dataFile,
		saveChan:      make(chan struct{}, 1),
		shutdownChan:  make(chan struct{}),
		doneChan:      make(chan struct{}),
		saveDelay:     500 * time.Millisecond,
		logger:        logger,
	}
	if dataFile == "" {
		close(s.doneChan)
		return s, nil
	}

	if err := s.load(); err != nil {
		logger.Errorf("storage: failed to load %s: %v", dataFile, err)
		return nil, err
	}

	go s.saveWorker()

	return s, nil
}

func (s *FileStorage) load() error {
	file, err := os.Open(s.dataFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	var snap snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range snap.Records {
		s.records[r.ID] = r
		if r.IsOpen() {
			s.openByOwner[r.OwnerID] = r.ID
		}
	}
	for _, c := range snap.Cycles {
		s.cycles[c.ID] = c
		if c.State == internal.CycleRunning {
			s.runningByUser[c.OwnerID] = c.ID
		}
	}
	for _, t := range snap.Tasks {
		s.tasks[t.ID] = t
	}
	s.notifications = snap.Notifications
	sort.SliceStable(s.notifications, func(i, j int) bool {
		return s.notifications[i].CreatedAt.Before(s.notifications[j].CreatedAt)
	})
	for _, n := range s.notifications {
		s.indexLocked(n)
	}
	return nil
}

func atomicWriteFileJSON(filePath string, data interface{}) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	tempFile := filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, filePath)
}

func (s *FileStorage) save() error {
	s.mu.RLock()
	snap := snapshot{
		Records:       make([]*internal.TimeRecord, 0, len(s.records)),
		Cycles:        make([]*internal.PomodoroCycle, 0, len(s.cycles)),
		Tasks:         make([]*internal.Task, 0, len(s.tasks)),
		Notifications: make([]*internal.ReminderNotification, len(s.notifications)),
	}
	for _, r := range s.records {
		cp := *r
		snap.Records = append(snap.Records, &cp)
	}
	for _, c := range s.cycles {
		cp := *c
		snap.Cycles = append(snap.Cycles, &cp)
	}
	for _, t := range s.tasks {
		cp := *t
		snap.Tasks = append(snap.Tasks, &cp)
	}
	for i, n := range s.notifications {
		cp := *n
		snap.Notifications[i] = &cp
	}
	s.mu.RUnlock()

	return atomicWriteFileJSON(s.dataFile, snap)
}

// saveWorker batches snapshot writes to avoid frequent disk writes.
func (s *FileStorage) saveWorker() {
	defer close(s.doneChan)
	timer := time.NewTimer(s.saveDelay)
	timer.Stop()

	for {
		select {
		case <-s.saveChan:
			timer.Reset(s.saveDelay)
		case <-timer.C:
			if err := s.save(); err != nil {
				s.logger.Errorf("storage: error saving %s: %v", s.dataFile, err)
			}
		case <-s.shutdownChan:
			timer.Stop()
			return
		}
	}
}

// markDirty signals the save worker without blocking. Callers hold s.mu.
func (s *FileStorage) markDirty() {
	if s.dataFile == "" {
		return
	}
	select {
	case s.saveChan <- struct{}{}:
	default:
	}
}

// Close stops the save worker and writes pending data synchronously.
func (s *FileStorage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.dataFile == "" {
			return
		}
		close(s.shutdownChan)
		<-s.doneChan
		err = s.save()
	})
	return err
}

// --- SessionStore ---

func (s *FileStorage) CreateOpen(ctx context.Context, rec *internal.TimeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.openByOwner[rec.OwnerID]; ok {
		return internal.ConflictError(internal.CodeActiveSessionExists, "open session "+id)
	}
	cp := *rec
	s.records[rec.ID] = &cp
	s.openByOwner[rec.OwnerID] = rec.ID
	s.markDirty()
	return nil
}

func (s *FileStorage) GetRecord(ctx context.Context, id string) (*internal.TimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, internal.NotFoundErrorf("time record %s", id)
	}
	cp := *r
	return &cp, nil
}

func (s *FileStorage) CloseRecord(ctx context.Context, id string, endedAt time.Time, minutes int) (*internal.TimeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, internal.NotFoundErrorf("time record %s", id)
	}
	if !r.IsOpen() {
		return nil, internal.StateErrorf(internal.CodeAlreadyEnded, "time record %s", id)
	}
	end := endedAt
	dur := minutes
	r.EndedAt = &end
	r.DurationMinutes = &dur
	if s.openByOwner[r.OwnerID] == id {
		delete(s.openByOwner, r.OwnerID)
	}
	s.markDirty()
	cp := *r
	return &cp, nil
}

func (s *FileStorage) FindOpen(ctx context.Context, ownerID string) (*internal.TimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.openByOwner[ownerID]
	if !ok {
		return nil, internal.NotFoundErrorf("no open session for %s", ownerID)
	}
	cp := *s.records[id]
	return &cp, nil
}

func (s *FileStorage) ListOpen(ctx context.Context) ([]internal.TimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]internal.TimeRecord, 0, len(s.openByOwner))
	for _, id := range s.openByOwner {
		out = append(out, *s.records[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *FileStorage) ListRecords(ctx context.Context, ownerID string) ([]internal.TimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.TimeRecord{}
	for _, r := range s.records {
		if r.OwnerID == ownerID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// --- PomodoroStore ---

func (s *FileStorage) CreateRunning(ctx context.Context, c *internal.PomodoroCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.runningByUser[c.OwnerID]; ok {
		return internal.ConflictError(internal.CodeActivePomodoroExists, "running cycle "+id)
	}
	cp := *c
	s.cycles[c.ID] = &cp
	s.runningByUser[c.OwnerID] = c.ID
	s.markDirty()
	return nil
}

func (s *FileStorage) GetCycle(ctx context.Context, id string) (*internal.PomodoroCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cycles[id]
	if !ok {
		return nil, internal.NotFoundErrorf("pomodoro cycle %s", id)
	}
	cp := *c
	return &cp, nil
}

func (s *FileStorage) FinishCycle(ctx context.Context, c *internal.PomodoroCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cycles[c.ID]
	if !ok {
		return internal.NotFoundErrorf("pomodoro cycle %s", c.ID)
	}
	if cur.State != internal.CycleRunning {
		return internal.StateErrorf(internal.CodeNotRunning, "cycle is %s", cur.State)
	}
	cp := *c
	s.cycles[c.ID] = &cp
	if s.runningByUser[cur.OwnerID] == c.ID {
		delete(s.runningByUser, cur.OwnerID)
	}
	s.markDirty()
	return nil
}

func (s *FileStorage) FindRunning(ctx context.Context, ownerID string) (*internal.PomodoroCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.runningByUser[ownerID]
	if !ok {
		return nil, internal.NotFoundErrorf("no running pomodoro for %s", ownerID)
	}
	cp := *s.cycles[id]
	return &cp, nil
}

func (s *FileStorage) ListCycles(ctx context.Context, ownerID string) ([]internal.PomodoroCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.PomodoroCycle{}
	for _, c := range s.cycles {
		if c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// --- TaskSource ---

// SaveTask upserts a task. Tasks are owned by the CRUD layer; this exists
// so the file backend can be seeded.
func (s *FileStorage) SaveTask(ctx context.Context, t *internal.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.ID] = &cp
	s.markDirty()
	return nil
}

func (s *FileStorage) filterTasks(ownerID string, keep func(*internal.Task) bool) []internal.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.Task{}
	for _, t := range s.tasks {
		if ownerID != "" && t.OwnerID != ownerID {
			continue
		}
		if keep(t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *FileStorage) FindDueWithin(ctx context.Context, ownerID string, now time.Time, horizon time.Duration) ([]internal.Task, error) {
	limit := now.Add(horizon)
	return s.filterTasks(ownerID, func(t *internal.Task) bool {
		return t.Status == internal.TaskTodo && t.DueDate != nil &&
			t.DueDate.After(now) && !t.DueDate.After(limit)
	}), nil
}

func (s *FileStorage) FindOverdue(ctx context.Context, ownerID string, now time.Time) ([]internal.Task, error) {
	return s.filterTasks(ownerID, func(t *internal.Task) bool {
		return t.Status == internal.TaskTodo && t.DueDate != nil && t.DueDate.Before(now)
	}), nil
}

func (s *FileStorage) FindHighPriorityOpen(ctx context.Context, ownerID string) ([]internal.Task, error) {
	return s.filterTasks(ownerID, func(t *internal.Task) bool {
		return t.Status == internal.TaskTodo && t.Priority == internal.PriorityHigh
	}), nil
}

// --- NotificationSink ---

func (s *FileStorage) existsSinceLocked(key internal.DedupKey, since time.Time) bool {
	latest, ok := s.latestByKey[key]
	return ok && !latest.Before(since)
}

func (s *FileStorage) indexLocked(n *internal.ReminderNotification) {
	key := n.Key()
	if latest, ok := s.latestByKey[key]; !ok || n.CreatedAt.After(latest) {
		s.latestByKey[key] = n.CreatedAt
	}
}

func (s *FileStorage) ExistsWithin(ctx context.Context, key internal.DedupKey, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.existsSinceLocked(key, since), nil
}

func (s *FileStorage) Create(ctx context.Context, n *internal.ReminderNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(n)
	return nil
}

func (s *FileStorage) appendLocked(n *internal.ReminderNotification) {
	cp := *n
	s.notifications = append(s.notifications, &cp)
	s.indexLocked(&cp)
	s.markDirty()
}

func (s *FileStorage) CreateUnlessRecent(ctx context.Context, n *internal.ReminderNotification, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsSinceLocked(n.Key(), since) {
		return false, nil
	}
	s.appendLocked(n)
	return true, nil
}

func (s *FileStorage) ListNotifications(ctx context.Context, ownerID string) ([]internal.ReminderNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []internal.ReminderNotification{}
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if n := s.notifications[i]; n.OwnerID == ownerID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *FileStorage) MarkRead(ctx context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id && n.OwnerID == ownerID {
			n.Read = true
			s.markDirty()
			return nil
		}
	}
	return internal.NotFoundErrorf("notification %s", id)
}

// --- Compile-time assertions ---
var _ Store = (*FileStorage)(nil)
