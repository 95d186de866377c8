package engine

import (
	"context"
	"testing"
	"time"

	"autotrader/internal/gateway/broker"
	"autotrader/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleTransitions(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	s := r.sched

	snap, err := s.Snapshot("s1")
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, snap.Status)

	require.NoError(t, s.Start("s1"))
	require.NoError(t, s.Start("s1")) // idempotent
	snap, _ = s.Snapshot("s1")
	assert.Equal(t, StatusActive, snap.Status)

	require.NoError(t, s.Pause("s1"))
	require.NoError(t, s.Pause("s1"))
	snap, _ = s.Snapshot("s1")
	assert.Equal(t, StatusPaused, snap.Status)

	require.NoError(t, s.Start("s1"))
	require.NoError(t, s.Stop("s1"))
	require.NoError(t, s.Stop("s1"))
	snap, _ = s.Snapshot("s1")
	assert.Equal(t, StatusStopped, snap.Status)
}

func TestLifecycleUnknownID(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	assert.ErrorIs(t, r.sched.Start("nope"), ErrUnknownStrategy)
	assert.ErrorIs(t, r.sched.Stop("nope"), ErrUnknownStrategy)
	assert.ErrorIs(t, r.sched.Pause("nope"), ErrUnknownStrategy)
	_, err := r.sched.Snapshot("nope")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestStartFromErrorClearsLastError(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	ls := r.sched.strategies["s1"]
	ls.status = StatusError
	ls.lastErr = "market data unavailable"

	require.NoError(t, r.sched.Start("s1"))
	snap, _ := r.sched.Snapshot("s1")
	assert.Equal(t, StatusActive, snap.Status)
	assert.Empty(t, snap.LastError)
}

func TestRemoveRequiresStopped(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	require.NoError(t, r.sched.Start("s1"))
	assert.ErrorIs(t, r.sched.Remove("s1"), ErrNotStopped)

	require.NoError(t, r.sched.Stop("s1"))
	require.NoError(t, r.sched.Remove("s1"))
	assert.ErrorIs(t, r.sched.Start("s1"), ErrUnknownStrategy)
}

func TestUpdateRequiresStopped(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	require.NoError(t, r.sched.Start("s1"))

	cfg := testConfig("s1")
	cfg.CheckInterval = 120
	assert.ErrorIs(t, r.sched.Update(cfg), ErrNotStopped)

	require.NoError(t, r.sched.Stop("s1"))
	require.NoError(t, r.sched.Update(cfg))
	snap, _ := r.sched.Snapshot("s1")
	assert.Equal(t, 120, snap.Config.CheckInterval)
}

func TestAddRejectsInvalidConfig(t *testing.T) {
	r := newTestRig(testConfig("s1"))

	bad := testConfig("s2")
	bad.Symbols = nil
	assert.Error(t, r.sched.Add(bad))

	bad = testConfig("s3")
	bad.CheckInterval = 10
	assert.Error(t, r.sched.Add(bad))

	bad = testConfig("s4")
	bad.Kind = "no_such_kind"
	assert.Error(t, r.sched.Add(bad))
}

func TestTickSkipsInactiveStrategies(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	r.tick()
	assert.Equal(t, 0, r.source.calls())

	require.NoError(t, r.sched.Start("s1"))
	require.NoError(t, r.sched.Pause("s1"))
	r.tick()
	assert.Equal(t, 0, r.source.calls())
}

func TestTickRespectsCheckInterval(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	require.NoError(t, r.sched.Start("s1"))

	r.tick()
	assert.Equal(t, 1, r.source.calls())

	// 30s later the 60s interval has not elapsed.
	r.advance(30 * time.Second)
	r.tick()
	assert.Equal(t, 1, r.source.calls())

	r.advance(31 * time.Second)
	r.tick()
	assert.Equal(t, 2, r.source.calls())
}

func TestLastCheckMonotonic(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	require.NoError(t, r.sched.Start("s1"))

	r.tick()
	first, _ := r.sched.Snapshot("s1")
	r.advance(61 * time.Second)
	r.tick()
	second, _ := r.sched.Snapshot("s1")
	assert.False(t, second.LastCheck.Before(first.LastCheck))
}

func TestActionableBuyExecutesOrder(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	r.plugin.setSignal(strategy.Signal{Type: strategy.SignalBuy, Strength: 0.9})
	require.NoError(t, r.sched.Start("s1"))

	r.tick()

	subs := r.broker.submitted()
	require.Len(t, subs, 1)
	// floor(100000 * 0.02 / 100) = 20
	assert.Equal(t, 20.0, subs[0].Quantity)
	assert.Equal(t, "BTCUSDT", subs[0].Symbol)
	assert.Contains(t, subs[0].ClientOrderID, "s1-BTCUSDT")

	entries := r.log.all()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Executed)
	assert.NotEmpty(t, entries[0].OrderRef)

	snap, _ := r.sched.Snapshot("s1")
	assert.Equal(t, int64(1), snap.Metrics.SignalsDetected)
	assert.Equal(t, int64(1), snap.Metrics.TradesExecuted)
	assert.Equal(t, strategy.SignalBuy, snap.LastSignal["BTCUSDT"])
}

func TestDuplicateSignalSuppressed(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	r.plugin.setSignal(strategy.Signal{Type: strategy.SignalBuy, Strength: 0.9})
	require.NoError(t, r.sched.Start("s1"))

	r.tick()
	r.advance(61 * time.Second)
	r.tick()

	// Second identical BUY is classified HOLD: no new order, no new entry.
	assert.Len(t, r.broker.submitted(), 1)
	assert.Len(t, r.log.all(), 1)
	snap, _ := r.sched.Snapshot("s1")
	assert.Equal(t, int64(1), snap.Metrics.SignalsDetected)
}

func TestQuietSymbolRecordedOnce(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	require.NoError(t, r.sched.Start("s1"))

	// Plugin holds throughout; repeated HOLDs must not pile up history rows.
	for i := 0; i < 5; i++ {
		r.tick()
		r.advance(61 * time.Second)
	}

	entries := r.log.all()
	require.Len(t, entries, 1)
	assert.Equal(t, string(strategy.SignalHold), entries[0].SignalType)
	snap, _ := r.sched.Snapshot("s1")
	assert.Zero(t, snap.Metrics.SignalsDetected)
}

func TestSignalBelowThresholdRecordedNotExecuted(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	r.plugin.setSignal(strategy.Signal{Type: strategy.SignalBuy, Strength: 0.4})
	require.NoError(t, r.sched.Start("s1"))

	r.tick()

	assert.Empty(t, r.broker.submitted())
	entries := r.log.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Executed)
	snap, _ := r.sched.Snapshot("s1")
	assert.Equal(t, int64(1), snap.Metrics.SignalsDetected)
}

func TestAutoExecuteDisabledRecordsOnly(t *testing.T) {
	cfg := testConfig("s1")
	cfg.AutoExecute = false
	r := newTestRig(cfg)
	r.plugin.setSignal(strategy.Signal{Type: strategy.SignalSell, Strength: 0.8})
	require.NoError(t, r.sched.Start("s1"))

	r.tick()

	assert.Empty(t, r.broker.submitted())
	entries := r.log.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Executed)
	assert.Contains(t, entries[0].Note, "auto-execute disabled")
}

func TestDailyLossLimitBlocks(t *testing.T) {
	cfg := testConfig("s1")
	cfg.DailyLossLimit = 500
	r := newTestRig(cfg)
	r.plugin.setSignal(strategy.Signal{Type: strategy.SignalBuy, Strength: 0.9})
	require.NoError(t, r.sched.Start("s1"))
	require.NoError(t, r.sched.AdjustPnL("s1", -500.01))

	r.tick()

	assert.Empty(t, r.broker.submitted())
	entries := r.log.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Executed)
	assert.Contains(t, entries[0].Note, "daily loss limit")

	// A risk breach is a business decision, not an error.
	snap, _ := r.sched.Snapshot("s1")
	assert.Equal(t, StatusActive, snap.Status)
}

func TestZeroQuantityIsRecordedNoOp(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	r.source.price = 10_000_000 // pct * equity / price < 1
	r.plugin.setSignal(strategy.Signal{Type: strategy.SignalBuy, Strength: 0.9})
	require.NoError(t, r.sched.Start("s1"))

	r.tick()

	assert.Empty(t, r.broker.submitted())
	entries := r.log.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Executed)
	assert.Contains(t, entries[0].Note, "zero quantity")
	snap, _ := r.sched.Snapshot("s1")
	assert.Equal(t, StatusActive, snap.Status)
}

func TestStopDuringCheckSkipsExecution(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	r.plugin.setSignal(strategy.Signal{Type: strategy.SignalBuy, Strength: 0.9})
	r.broker.snapshotGate = make(chan struct{})
	r.broker.snapshotEntered = make(chan struct{})
	require.NoError(t, r.sched.Start("s1"))

	r.sched.Tick(context.Background())
	<-r.broker.snapshotEntered
	require.NoError(t, r.sched.Stop("s1"))
	close(r.broker.snapshotGate)
	r.sched.Wait()

	assert.Empty(t, r.broker.submitted())
	entries := r.log.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Executed)
	assert.Contains(t, entries[0].Note, "no longer active")

	// Stopped strategies are not in the next due set.
	r.advance(61 * time.Second)
	calls := r.source.calls()
	r.tick()
	assert.Equal(t, calls, r.source.calls())
}

func TestBrokerFailureTwiceMarksErrorAndNotifiesOnce(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	r.plugin.setSignal(strategy.Signal{Type: strategy.SignalBuy, Strength: 0.9})
	r.broker.submitErrs = 2 // initial attempt + its single retry both fail
	require.NoError(t, r.sched.Start("s1"))

	r.tick()

	snap, _ := r.sched.Snapshot("s1")
	assert.Equal(t, StatusError, snap.Status)
	assert.Contains(t, snap.LastError, "exchange rejected order")
	assert.Equal(t, 1, r.notes.count())

	entries := r.log.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Executed)
}

func TestBrokerFailureOnceRecoversViaRetry(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	r.plugin.setSignal(strategy.Signal{Type: strategy.SignalBuy, Strength: 0.9})
	r.broker.submitErrs = 1
	require.NoError(t, r.sched.Start("s1"))

	r.tick()

	assert.Len(t, r.broker.submitted(), 1)
	snap, _ := r.sched.Snapshot("s1")
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, int64(1), snap.Metrics.TradesExecuted)
}

func TestMarketDataFailureMarksErrorAndNotifies(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	r.source.failsLeft = 100
	require.NoError(t, r.sched.Start("s1"))

	r.tick()

	snap, _ := r.sched.Snapshot("s1")
	assert.Equal(t, StatusError, snap.Status)
	assert.Contains(t, snap.LastError, "market data unavailable")
	assert.Equal(t, 1, r.notes.count())

	// ERROR strategies are skipped until restarted.
	r.advance(61 * time.Second)
	calls := r.source.calls()
	r.tick()
	assert.Equal(t, calls, r.source.calls())
}

func TestDailyPnLResetsExactlyOnceAtDayBoundary(t *testing.T) {
	r := newTestRig(testConfig("s1"))
	require.NoError(t, r.sched.Start("s1"))
	require.NoError(t, r.sched.AdjustPnL("s1", -120))

	// Same trading day: no reset.
	r.tick()
	snap, _ := r.sched.Snapshot("s1")
	assert.Equal(t, -120.0, snap.Metrics.DailyPnL)

	// First check after midnight UTC resets the daily counter.
	r.advance(13 * time.Hour)
	r.tick()
	snap, _ = r.sched.Snapshot("s1")
	assert.Equal(t, 0.0, snap.Metrics.DailyPnL)
	assert.Equal(t, -120.0, snap.Metrics.TotalPnL)

	// Further checks the same day must not reset again.
	require.NoError(t, r.sched.AdjustPnL("s1", -40))
	r.advance(61 * time.Second)
	r.tick()
	snap, _ = r.sched.Snapshot("s1")
	assert.Equal(t, -40.0, snap.Metrics.DailyPnL)
}

func TestCloseExistingPositionOnRuleBreach(t *testing.T) {
	cfg := testConfig("s1")
	cfg.Rules = []RiskRule{{Type: RuleMaxDrawdown, Threshold: 100, Action: ActionClosePosition}}
	r := newTestRig(cfg)
	r.plugin.setSignal(strategy.Signal{Type: strategy.SignalBuy, Strength: 0.9})
	r.broker.positions = []broker.Position{
		{Symbol: "BTCUSDT", Side: "long", Quantity: 3, EntryPrice: 100, MarkPrice: 100},
	}
	require.NoError(t, r.sched.Start("s1"))
	require.NoError(t, r.sched.AdjustPnL("s1", -150))

	r.tick()

	subs := r.broker.submitted()
	require.Len(t, subs, 1)
	// The original BUY is replaced by an offsetting exit of the long.
	assert.Equal(t, "SELL", string(subs[0].Side))
	assert.Equal(t, 3.0, subs[0].Quantity)
}
