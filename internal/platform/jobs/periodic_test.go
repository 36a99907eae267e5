package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scheduler := NewScheduler(zap.NewNop())

	var runs atomic.Int32
	scheduler.Start(ctx, Task{
		Name:     "idempotency.cleanup",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	scheduler.Wait()

	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, stopped, runs.Load(), "task must not run after Wait returns")
}

func TestSchedulerLogsFailuresAndPanics(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx, cancel := context.WithCancel(context.Background())
	scheduler := NewScheduler(zap.New(core))

	var calls atomic.Int32
	scheduler.Start(ctx, Task{
		Name:     "ratelimit.sweep",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			if calls.Add(1) == 1 {
				return errors.New("firestore unavailable")
			}
			panic("boom")
		},
	})

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	scheduler.Wait()

	require.GreaterOrEqual(t, logs.FilterMessage("jobs: task failed").Len(), 1)
	require.GreaterOrEqual(t, logs.FilterMessage("jobs: task panicked").Len(), 1)
	require.Equal(t, "ratelimit.sweep", logs.FilterMessage("jobs: task failed").All()[0].ContextMap()["task"])
}

func TestSchedulerIgnoresDisabledTasks(t *testing.T) {
	scheduler := NewScheduler(nil)
	scheduler.Start(context.Background(), Task{Name: "off", Interval: 0, Run: func(context.Context) error { return nil }})
	scheduler.Start(context.Background(), Task{Name: "nil", Interval: time.Second})
	scheduler.Wait()
}
