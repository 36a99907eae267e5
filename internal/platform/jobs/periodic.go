package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of background work executed on a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// Timeout bounds a single run. Zero means the interval.
	Timeout time.Duration
}

// Scheduler runs periodic tasks until its context is cancelled.
type Scheduler struct {
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewScheduler constructs a Scheduler that logs task failures to logger.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger}
}

// Start launches task in its own goroutine. Tasks without an interval or run function are ignored.
func (s *Scheduler) Start(ctx context.Context, task Task) {
	if task.Interval <= 0 || task.Run == nil {
		s.logger.Debug("jobs: task disabled", zap.String("task", task.Name))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, task)
	}()
}

// Wait blocks until every started task has observed cancellation.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	logger := s.logger.With(zap.String("task", task.Name))
	logger.Info("jobs: task started", zap.Duration("interval", task.Interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("jobs: task stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, logger, task)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, logger *zap.Logger, task Task) {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = task.Interval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("jobs: task panicked", zap.Any("panic", rec))
		}
	}()

	start := time.Now()
	if err := task.Run(runCtx); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		logger.Warn("jobs: task failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	logger.Debug("jobs: task completed", zap.Duration("elapsed", time.Since(start)))
}
