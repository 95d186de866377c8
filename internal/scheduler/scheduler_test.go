package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickerFiresUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tk := NewTicker(ctx, 10*time.Millisecond)

	var fired atomic.Int32
	done := make(chan struct{})
	go func() {
		tk.Start(func() { fired.Add(1) })
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop after cancel")
	}
	assert.GreaterOrEqual(t, fired.Load(), int32(2))
}

func TestTickerRunImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tk := NewTicker(ctx, time.Hour)
	tk.RunImmediately = true

	var fired atomic.Int32
	done := make(chan struct{})
	go func() {
		tk.Start(func() { fired.Add(1) })
		close(done)
	}()

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestTickerInvalidInterval(t *testing.T) {
	tk := NewTicker(context.Background(), 0)
	tk.Start(func() { t.Fatal("task must not fire") })
}

func TestParseIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"15m": 15 * time.Minute,
		"30m": 30 * time.Minute,
		"1h":  time.Hour,
		"4h":  4 * time.Hour,
		"12h": 12 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, ok := ParseIntervalDuration(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	// Timeframes outside the source's bar set are rejected, not scaled.
	for _, in := range []string{"", "h", "0m", "-5m", "7m", "10x", "2w", "abc"} {
		_, ok := ParseIntervalDuration(in)
		assert.False(t, ok, in)
	}
}
