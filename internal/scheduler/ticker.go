// Package scheduler provides the timer that drives the engine's tick loop.
package scheduler

import (
	"context"
	"time"

	"autotrader/internal/logger"
)

// Ticker invokes a task on a fixed cadence until its context is cancelled.
// The task itself must be dispatch-and-continue; the ticker never inspects
// its outcome.
type Ticker struct {
	Interval       time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewTicker(ctx context.Context, interval time.Duration) *Ticker {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Ticker{
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks, firing task every Interval, until the context is done.
func (t *Ticker) Start(task func()) {
	if t == nil {
		return
	}
	if task == nil {
		logger.Warnf("Ticker: task is nil, exit")
		return
	}
	if t.Interval <= 0 {
		logger.Warnf("Ticker: invalid interval=%s, exit", t.Interval)
		return
	}
	if t.ctx == nil {
		t.ctx = context.Background()
	}
	if t.nowFn == nil {
		t.nowFn = time.Now
	}

	startAt := t.nowFn().UTC()
	logger.Infof("Ticker: started interval=%s run_immediately=%v at=%s",
		t.Interval, t.RunImmediately, startAt.Format(time.RFC3339))

	if t.RunImmediately {
		task()
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			logger.Infof("Ticker: ctx done, exit")
			return
		case <-ticker.C:
			task()
		}
	}
}
