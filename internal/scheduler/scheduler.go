// Package scheduler runs the periodic reminder scans. Scans are single-flight:
// a tick that arrives while any scan is still running is dropped, not queued.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourname/focustracker/internal"
	"github.com/yourname/focustracker/internal/clock"
)

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

type Scheduler struct {
	clock  clock.Clock
	logger internal.Logger
	jobs   []Job

	running  atomic.Bool
	inflight sync.WaitGroup
	runs     atomic.Int64
	dropped  atomic.Int64
}

func New(c clock.Clock, logger internal.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{clock: c, logger: logger, jobs: jobs}
}

// Run starts one ticker per job and blocks until ctx is done and any
// in-flight scan has returned.
func (s *Scheduler) Run(ctx context.Context) {
	tickers := make([]clock.Ticker, len(s.jobs))
	for i, j := range s.jobs {
		tickers[i] = s.clock.NewTicker(j.Interval)
		s.logger.Infof("scheduler: %s every %s", j.Name, j.Interval)
	}

	var loops sync.WaitGroup
	for i := range s.jobs {
		loops.Add(1)
		go func(j Job, t clock.Ticker) {
			defer loops.Done()
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C():
					s.fire(ctx, j)
				}
			}
		}(s.jobs[i], tickers[i])
	}

	loops.Wait()
	s.inflight.Wait()
	s.logger.Info("scheduler: stopped")
}

func (s *Scheduler) fire(ctx context.Context, j Job) {
	if !s.running.CompareAndSwap(false, true) {
		s.dropped.Add(1)
		s.logger.Warnf("scheduler: %s tick dropped, previous scan still running", j.Name)
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.execute(ctx, j)
	}()
}

// TriggerNow runs the named job synchronously under the same single-flight
// guard. It reports false if another scan was already running.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) (bool, error) {
	for _, j := range s.jobs {
		if j.Name != name {
			continue
		}
		if !s.running.CompareAndSwap(false, true) {
			return false, nil
		}
		s.execute(ctx, j)
		return true, nil
	}
	return false, fmt.Errorf("scheduler: unknown job %q", name)
}

// execute must be entered with running already set.
func (s *Scheduler) execute(ctx context.Context, j Job) {
	defer s.runs.Add(1)
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("scheduler: %s panicked: %v", j.Name, r)
		}
	}()

	start := s.clock.Now()
	j.Run(ctx)
	s.logger.Debugf("scheduler: %s finished in %s", j.Name, s.clock.Now().Sub(start))
}

func (s *Scheduler) Runs() int64    { return s.runs.Load() }
func (s *Scheduler) Dropped() int64 { return s.dropped.Load() }
