package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autotrader/internal/gateway/broker"
	"autotrader/internal/market"
	"autotrader/internal/store/history"
	"autotrader/internal/strategy"
)

// stubPlugin returns a fixed signal, letting tests drive the pipeline
// without engineering bar data for a real indicator.
type stubPlugin struct {
	mu  sync.Mutex
	sig strategy.Signal
}

func (p *stubPlugin) Kind() string  { return "stub" }
func (p *stubPlugin) Lookback() int { return 10 }

func (p *stubPlugin) ComputeIndicators([]market.Candle) (strategy.IndicatorSet, error) {
	return strategy.IndicatorSet{}, nil
}

func (p *stubPlugin) GenerateSignal(strategy.IndicatorSet) strategy.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sig
}

func (p *stubPlugin) setSignal(sig strategy.Signal) {
	p.mu.Lock()
	p.sig = sig
	p.mu.Unlock()
}

type fakeSource struct {
	mu         sync.Mutex
	price      float64
	failsLeft  int
	fetchCalls int
}

func (f *fakeSource) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.failsLeft > 0 {
		f.failsLeft--
		return nil, errors.New("upstream timeout")
	}
	out := make([]market.Candle, limit)
	for i := range out {
		out[i] = market.Candle{Open: f.price, High: f.price, Low: f.price, Close: f.price}
	}
	return out, nil
}

func (f *fakeSource) GetQuote(ctx context.Context, symbol string) (market.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return market.Quote{Symbol: symbol, Price: f.price}, nil
}

func (f *fakeSource) Stats() market.SourceStats { return market.SourceStats{} }
func (f *fakeSource) Close() error              { return nil }

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

type fakeBroker struct {
	mu          sync.Mutex
	equity      float64
	positions   []broker.Position
	submitErrs  int
	submissions []broker.OrderRequest

	// snapshotGate, when set, blocks AccountSnapshot until released;
	// snapshotEntered is closed on first entry. Used to freeze a check
	// mid-flight.
	snapshotGate    chan struct{}
	snapshotEntered chan struct{}
	enteredOnce     sync.Once
}

func (f *fakeBroker) Name() string { return "fake" }

func (f *fakeBroker) AccountSnapshot(ctx context.Context) (broker.AccountSnapshot, error) {
	if f.snapshotEntered != nil {
		f.enteredOnce.Do(func() { close(f.snapshotEntered) })
	}
	if f.snapshotGate != nil {
		select {
		case <-f.snapshotGate:
		case <-ctx.Done():
			return broker.AccountSnapshot{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return broker.AccountSnapshot{
		Equity:      f.equity,
		BuyingPower: f.equity,
		Positions:   append([]broker.Position(nil), f.positions...),
		UpdatedAt:   time.Now(),
	}, nil
}

func (f *fakeBroker) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErrs > 0 {
		f.submitErrs--
		return broker.OrderResult{}, errors.New("exchange rejected order")
	}
	f.submissions = append(f.submissions, req)
	return broker.OrderResult{
		OrderRef:  fmt.Sprintf("ord-%d", len(f.submissions)),
		FilledQty: req.Quantity,
		AvgPrice:  req.Price,
	}, nil
}

func (f *fakeBroker) OpenPositions(ctx context.Context) ([]broker.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broker.Position(nil), f.positions...), nil
}

func (f *fakeBroker) submitted() []broker.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broker.OrderRequest(nil), f.submissions...)
}

// memLog is an in-memory SignalLog.
type memLog struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (l *memLog) Append(ctx context.Context, e history.Entry) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = int64(len(l.entries) + 1)
	l.entries = append(l.entries, e)
	return e.ID, nil
}

func (l *memLog) AttachOutcome(ctx context.Context, id int64, executed bool, orderRef, note string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries[i].Executed = executed
			l.entries[i].OrderRef = orderRef
			l.entries[i].Note = note
			return nil
		}
	}
	return fmt.Errorf("entry %d not found", id)
}

func (l *memLog) all() []history.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]history.Entry(nil), l.entries...)
}

type countNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *countNotifier) SendText(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *countNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.texts)
}

func noSleep(context.Context, time.Duration) error { return nil }

func testConfig(id string) Config {
	return Config{
		ID:              id,
		Name:            id,
		Kind:            "ma_cross",
		Symbols:         []string{"BTCUSDT"},
		Timeframe:       "1h",
		CheckInterval:   60,
		AutoExecute:     true,
		MaxPositions:    5,
		PositionSizePct: 0.02,
	}
}

type testRig struct {
	sched  *Scheduler
	source *fakeSource
	broker *fakeBroker
	log    *memLog
	notes  *countNotifier
	plugin *stubPlugin
	now    time.Time
	nowMu  sync.Mutex
}

func newTestRig(cfg Config) *testRig {
	cal, _ := market.NewCalendar("UTC")
	r := &testRig{
		source: &fakeSource{price: 100},
		broker: &fakeBroker{equity: 100_000},
		log:    &memLog{},
		notes:  &countNotifier{},
		plugin: &stubPlugin{sig: strategy.Hold()},
		now:    time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}
	r.sched = NewScheduler(r.source, r.broker, r.log, r.notes, cal, 4)
	r.sched.nowFn = r.nowFunc
	r.sched.monitor.sleepFn = noSleep
	r.sched.executor.sleepFn = noSleep

	r.sched.strategies[cfg.ID] = &liveStrategy{
		cfg:        cfg,
		plugin:     r.plugin,
		status:     StatusStopped,
		lastSignal: make(map[string]strategy.SignalType),
		day:        r.nowFunc(),
	}
	return r
}

func (r *testRig) nowFunc() time.Time {
	r.nowMu.Lock()
	defer r.nowMu.Unlock()
	return r.now
}

func (r *testRig) advance(d time.Duration) {
	r.nowMu.Lock()
	r.now = r.now.Add(d)
	r.nowMu.Unlock()
}

func (r *testRig) tick() {
	r.sched.Tick(context.Background())
	r.sched.Wait()
}
