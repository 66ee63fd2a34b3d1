// Package scheduler drives the periodic sweeps. Each job runs on its own
// ticker with an immediate first pass, so a freshly started jobs process
// catches up without waiting a full interval. A panicking job is contained
// to its tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds one tick. Zero means the interval is the bound.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Scheduler struct {
	jobs []Job
	log  *zap.Logger
}

func New(log *zap.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, log: log}
}

// Start blocks until ctx is cancelled and every job loop has drained.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(s.jobs[i])
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	s.runOnce(ctx, j)
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	tickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", zap.String("job", j.Name), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := j.Run(tickCtx); err != nil {
		s.log.Warn("job failed",
			zap.String("job", j.Name),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	s.log.Debug("job done", zap.String("job", j.Name), zap.Duration("took", time.Since(start)))
}
