package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a periodic unit of work driven by the scheduler.
type Task func(context.Context)

// Scheduler invokes registered tasks on fixed intervals. It replaces the
// cron hooks the legacy plugin relied on with an explicit ticker loop.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries []entry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

type entry struct {
	name     string
	interval time.Duration
	task     Task
}

// NewScheduler builds an empty scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger}
}

// Every registers a task to run on the given interval. Must be called
// before Start.
func (s *Scheduler) Every(interval time.Duration, name string, task Task) {
	if interval <= 0 || task == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{name: name, interval: interval, task: task})
}

// Start launches one goroutine per registered task. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.run(ctx, e)
	}
	s.started = true
	s.logger.Sugar().Infow("scheduler started", "tasks", len(s.entries))
}

// Stop cancels all task loops and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Sugar().Infow("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, e entry) {
	defer s.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Sugar().Debugw("scheduled task firing", "task", e.name)
			e.task(ctx)
		}
	}
}
