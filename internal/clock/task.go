package clock

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFunc runs on every tick. Returning false ends the task.
type TaskFunc func(now time.Time) bool

// Task is a cancelable recurring callback driven by a Clock ticker.
type Task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	logger   *zap.Logger
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// Every starts a task calling fn every interval until fn returns false or Stop is called.
// fn must not call Stop on its own task.
func Every(name string, c Clock, interval time.Duration, fn TaskFunc, logger *zap.Logger) *Task {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	ticker := c.NewTicker(interval)
	go t.run(ctx, ticker)
	logger.Info("task started", zap.String("task", name), zap.Duration("interval", interval))
	return t
}

// Stop cancels the task and waits for its loop to exit. Safe to call more than once
// and after the task ended on its own.
func (t *Task) Stop() {
	t.stopOnce.Do(t.cancel)
	<-t.done
}

// Cancel asks the task to stop without waiting for its loop. Unlike Stop it may be
// called from inside the task's own callback.
func (t *Task) Cancel() {
	t.stopOnce.Do(t.cancel)
}

// Done is closed once the loop has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) run(ctx context.Context, ticker Ticker) {
	defer close(t.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("task stopped", zap.String("task", t.name))
			return
		case now := <-ticker.C():
			if !t.fn(now) {
				t.logger.Info("task finished", zap.String("task", t.name))
				return
			}
		}
	}
}
