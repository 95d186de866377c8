package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"autotrader/internal/gateway/broker"
	"autotrader/internal/gateway/notifier"
	"autotrader/internal/logger"
	"autotrader/internal/market"
	"autotrader/internal/store/history"
	"autotrader/internal/strategy"

	"golang.org/x/sync/semaphore"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrNotStopped      = errors.New("strategy must be stopped first")
	ErrAlreadyExists   = errors.New("strategy already exists")
)

// SignalLog is the append-only sink for detected signals. Appends happen at
// detection time; the execution outcome is attached exactly once afterwards.
type SignalLog interface {
	Append(ctx context.Context, e history.Entry) (int64, error)
	AttachOutcome(ctx context.Context, id int64, executed bool, orderRef, note string) error
}

// liveStrategy is one schedulable unit. checkMu serializes checks so two
// checks for the same strategy can never overlap; mu guards the runtime
// state so status() stays safe during an in-flight check.
type liveStrategy struct {
	checkMu sync.Mutex

	mu         sync.Mutex
	cfg        Config
	plugin     strategy.Strategy
	status     Status
	lastCheck  time.Time
	lastSignal map[string]strategy.SignalType
	metrics    Metrics
	lastErr    string
	day        time.Time
}

// Scheduler owns the in-memory working set of live strategies and drives the
// signal monitor -> risk manager -> sizer -> executor pipeline for each due
// strategy on every tick. Ticks are dispatch-and-continue: the tick loop
// never blocks on an individual strategy's check.
type Scheduler struct {
	monitor  *Monitor
	risk     *RiskManager
	sizer    *Sizer
	executor *Executor
	broker   broker.Broker
	log      SignalLog
	notify   notifier.TextNotifier
	calendar *market.Calendar

	sem   *semaphore.Weighted
	wg    sync.WaitGroup
	nowFn func() time.Time

	mu         sync.RWMutex
	strategies map[string]*liveStrategy
}

func NewScheduler(source market.Source, b broker.Broker, log SignalLog, notify notifier.TextNotifier, cal *market.Calendar, workers int64) *Scheduler {
	if workers <= 0 {
		workers = 8
	}
	if notify == nil {
		notify = notifier.Noop{}
	}
	return &Scheduler{
		monitor:    NewMonitor(source),
		risk:       NewRiskManager(),
		sizer:      NewSizer(),
		executor:   NewExecutor(b),
		broker:     b,
		log:        log,
		notify:     notify,
		calendar:   cal,
		sem:        semaphore.NewWeighted(workers),
		nowFn:      time.Now,
		strategies: make(map[string]*liveStrategy),
	}
}

// Add registers a new strategy in STOPPED status. The configuration is
// validated and the plugin is built up front so bad configs never reach the
// polling loop.
func (s *Scheduler) Add(cfg Config) error {
	return s.hydrate(cfg, StatusStopped, Metrics{})
}

// Hydrate registers a strategy with a restored status and counters, used
// when rebuilding the working set from the persistence layer on startup.
func (s *Scheduler) Hydrate(cfg Config, status Status, m Metrics) error {
	switch status {
	case StatusStopped, StatusActive, StatusPaused, StatusError:
	default:
		status = StatusStopped
	}
	return s.hydrate(cfg, status, m)
}

func (s *Scheduler) hydrate(cfg Config, status Status, m Metrics) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	plugin, err := strategy.New(cfg.Kind, cfg.Params)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.strategies[cfg.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, cfg.ID)
	}
	s.strategies[cfg.ID] = &liveStrategy{
		cfg:        cfg,
		plugin:     plugin,
		status:     status,
		metrics:    m,
		lastSignal: make(map[string]strategy.SignalType),
		day:        s.nowFn(),
	}
	logger.Infof("strategy registered id=%s kind=%s symbols=%v status=%s", cfg.ID, cfg.Kind, cfg.Symbols, status)
	return nil
}

// Update replaces a strategy's configuration. Only STOPPED strategies may be
// edited; a strategy mid-check is never mutated.
func (s *Scheduler) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	plugin, err := strategy.New(cfg.Kind, cfg.Params)
	if err != nil {
		return err
	}
	ls, err := s.get(cfg.ID)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.status != StatusStopped {
		return fmt.Errorf("%w: %s is %s", ErrNotStopped, cfg.ID, ls.status)
	}
	ls.cfg = cfg
	ls.plugin = plugin
	ls.lastSignal = make(map[string]strategy.SignalType)
	return nil
}

// Remove deletes a strategy from the working set. Requires STOPPED.
func (s *Scheduler) Remove(id string) error {
	ls, err := s.get(id)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	st := ls.status
	ls.mu.Unlock()
	if st != StatusStopped {
		return fmt.Errorf("%w: %s is %s", ErrNotStopped, id, st)
	}
	s.mu.Lock()
	delete(s.strategies, id)
	s.mu.Unlock()
	return nil
}

// Start transitions a strategy to ACTIVE. Idempotent; restarting from ERROR
// clears the recorded error.
func (s *Scheduler) Start(id string) error {
	ls, err := s.get(id)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.status == StatusActive {
		return nil
	}
	ls.status = StatusActive
	ls.lastErr = ""
	logger.Infof("strategy started id=%s", id)
	return nil
}

// Pause suspends polling without losing runtime state. Only valid from
// ACTIVE; pausing an already paused strategy is a no-op.
func (s *Scheduler) Pause(id string) error {
	ls, err := s.get(id)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	switch ls.status {
	case StatusPaused:
		return nil
	case StatusActive:
		ls.status = StatusPaused
		logger.Infof("strategy paused id=%s", id)
		return nil
	default:
		return fmt.Errorf("cannot pause strategy %s from %s", id, ls.status)
	}
}

// Stop takes effect immediately for scheduling purposes: the strategy is
// skipped from the next tick's due set. An in-flight check completes but
// skips execution once it observes the STOPPED status.
func (s *Scheduler) Stop(id string) error {
	ls, err := s.get(id)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.status == StatusStopped {
		return nil
	}
	ls.status = StatusStopped
	logger.Infof("strategy stopped id=%s", id)
	return nil
}

// Snapshot returns a point-in-time view, safe to call concurrently with an
// in-progress check for the same strategy.
func (s *Scheduler) Snapshot(id string) (Snapshot, error) {
	ls, err := s.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return snapshotLocked(ls), nil
}

// Snapshots returns views of the whole working set.
func (s *Scheduler) Snapshots() []Snapshot {
	s.mu.RLock()
	all := make([]*liveStrategy, 0, len(s.strategies))
	for _, ls := range s.strategies {
		all = append(all, ls)
	}
	s.mu.RUnlock()
	out := make([]Snapshot, 0, len(all))
	for _, ls := range all {
		ls.mu.Lock()
		out = append(out, snapshotLocked(ls))
		ls.mu.Unlock()
	}
	return out
}

func snapshotLocked(ls *liveStrategy) Snapshot {
	last := make(map[string]strategy.SignalType, len(ls.lastSignal))
	for k, v := range ls.lastSignal {
		last[k] = v
	}
	return Snapshot{
		ID:         ls.cfg.ID,
		Name:       ls.cfg.Name,
		Kind:       ls.cfg.Kind,
		Status:     ls.status,
		LastCheck:  ls.lastCheck,
		LastError:  ls.lastErr,
		Metrics:    ls.metrics,
		LastSignal: last,
		Config:     ls.cfg,
	}
}

// AdjustPnL applies a realized profit-or-loss delta to a strategy's daily
// and cumulative counters. Called by the reconciliation layer when fills
// settle.
func (s *Scheduler) AdjustPnL(id string, delta float64) error {
	ls, err := s.get(id)
	if err != nil {
		return err
	}
	ls.mu.Lock()
	ls.metrics.DailyPnL += delta
	ls.metrics.TotalPnL += delta
	ls.mu.Unlock()
	return nil
}

func (s *Scheduler) get(id string) (*liveStrategy, error) {
	s.mu.RLock()
	ls, ok := s.strategies[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, id)
	}
	return ls, nil
}

// Tick scans the working set and dispatches a check for every ACTIVE
// strategy whose interval has elapsed. Each check runs as its own goroutine
// bounded by the worker semaphore; a failing strategy never aborts the tick
// for its siblings.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.nowFn()
	s.mu.RLock()
	var due []*liveStrategy
	for _, ls := range s.strategies {
		ls.mu.Lock()
		ready := ls.status == StatusActive && now.Sub(ls.lastCheck) >= ls.cfg.interval()
		ls.mu.Unlock()
		if ready {
			due = append(due, ls)
		}
	}
	s.mu.RUnlock()

	for _, ls := range due {
		ls := ls
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer s.sem.Release(1)
			s.runCheck(ctx, ls)
		}()
	}
}

// Wait blocks until all dispatched checks have finished. Used on shutdown
// and by tests that need deterministic tick completion.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runCheck(ctx context.Context, ls *liveStrategy) {
	// A check still running from a previous tick keeps its slot; this tick
	// simply skips the strategy instead of queueing a second check.
	if !ls.checkMu.TryLock() {
		return
	}
	defer ls.checkMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("strategy check panicked: %v\n%s", r, debug.Stack())
			s.failStrategy(ls, fmt.Sprintf("check panicked: %v", r))
		}
	}()

	now := s.nowFn()
	ls.mu.Lock()
	if ls.status != StatusActive || now.Sub(ls.lastCheck) < ls.cfg.interval() {
		ls.mu.Unlock()
		return
	}
	if now.After(ls.lastCheck) {
		ls.lastCheck = now
	}
	if s.calendar != nil && !s.calendar.SameTradingDay(ls.day, now) {
		ls.metrics.DailyPnL = 0
		ls.day = now
		logger.Infof("daily pnl reset id=%s day=%s", ls.cfg.ID, s.calendar.DayOpen(now).Format("2006-01-02"))
	}
	cfg := ls.cfg
	plugin := ls.plugin
	ls.mu.Unlock()

	for _, symbol := range cfg.Symbols {
		if err := s.checkSymbol(ctx, ls, cfg, plugin, symbol); err != nil {
			s.failStrategy(ls, err.Error())
			return
		}
	}
}

func (s *Scheduler) checkSymbol(ctx context.Context, ls *liveStrategy, cfg Config, plugin strategy.Strategy, symbol string) error {
	ls.mu.Lock()
	last := ls.lastSignal[symbol]
	ls.mu.Unlock()

	obs, err := s.monitor.Observe(ctx, plugin, symbol, cfg.timeframe(), last)
	if err != nil {
		return err
	}
	if obs.Duplicate {
		logger.Debugf("duplicate signal suppressed id=%s symbol=%s last=%s", cfg.ID, symbol, last)
		return nil
	}

	entryID := s.appendEntry(ctx, cfg.ID, symbol, obs)

	ls.mu.Lock()
	ls.lastSignal[symbol] = obs.Signal.Type
	if obs.Signal.Type != strategy.SignalHold {
		ls.metrics.SignalsDetected++
	}
	metrics := ls.metrics
	ls.mu.Unlock()

	if !obs.Actionable {
		return nil
	}
	logger.Infof("actionable signal id=%s symbol=%s type=%s strength=%.2f price=%.4f",
		cfg.ID, symbol, obs.Signal.Type, obs.Signal.Strength, obs.Price)
	if !cfg.AutoExecute {
		s.attachOutcome(ctx, entryID, false, "", "auto-execute disabled")
		return nil
	}

	acct, err := s.broker.AccountSnapshot(ctx)
	if err != nil {
		s.attachOutcome(ctx, entryID, false, "", "account snapshot unavailable")
		return fmt.Errorf("account snapshot failed: %w", err)
	}

	side := broker.SideBuy
	if obs.Signal.Type == strategy.SignalSell {
		side = broker.SideSell
	}
	proposal := Proposal{
		Symbol: symbol,
		Side:   side,
		Price:  obs.Price,
		Value:  acct.Equity * cfg.PositionSizePct,
	}
	decision := s.risk.Evaluate(cfg, metrics, acct, proposal)
	for _, alert := range decision.Alerts {
		s.sendEvent(notifier.Event{
			Icon: "⚠️", Title: "Risk alert",
			StrategyID: cfg.ID, Symbol: symbol,
			Lines: []string{alert},
		})
	}
	if !decision.Proceed {
		logger.Infof("risk blocked id=%s symbol=%s: %s", cfg.ID, symbol, decision.Reason)
		s.attachOutcome(ctx, entryID, false, "", decision.Reason)
		return nil
	}

	req := broker.OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Price:         obs.Price,
		ClientOrderID: fmt.Sprintf("%s-%s-%d", cfg.ID, symbol, entryID),
	}
	if decision.Exit {
		pos, ok := findPosition(acct.Positions, symbol)
		if !ok {
			s.attachOutcome(ctx, entryID, false, "", decision.Reason+"; no open position to close")
			return nil
		}
		req.Side = exitSide(pos)
		req.Quantity = pos.Quantity
	} else {
		req.Quantity = s.sizer.Quantity(acct.Equity, cfg.PositionSizePct, obs.Price, decision.SizeCap)
	}
	if req.Quantity <= 0 {
		logger.Infof("zero quantity id=%s symbol=%s price=%.4f, nothing to execute", cfg.ID, symbol, obs.Price)
		s.attachOutcome(ctx, entryID, false, "", "zero quantity")
		return nil
	}

	// stop() may have raced with this check; the check completes but must
	// not execute against a strategy no longer ACTIVE.
	ls.mu.Lock()
	active := ls.status == StatusActive
	ls.mu.Unlock()
	if !active {
		s.attachOutcome(ctx, entryID, false, "", "execution skipped: strategy no longer active")
		return nil
	}

	res, err := s.executor.Execute(ctx, req)
	if err != nil {
		s.attachOutcome(ctx, entryID, false, "", err.Error())
		return err
	}

	ls.mu.Lock()
	ls.metrics.TradesExecuted++
	ls.mu.Unlock()
	s.attachOutcome(ctx, entryID, true, res.OrderRef, "")
	logger.Infof("order executed id=%s symbol=%s side=%s qty=%.4f ref=%s",
		cfg.ID, symbol, req.Side, req.Quantity, res.OrderRef)
	return nil
}

// appendEntry writes the history record for a freshly detected signal. A
// persistence failure is logged but never blocks trading.
func (s *Scheduler) appendEntry(ctx context.Context, strategyID, symbol string, obs Observation) int64 {
	if s.log == nil {
		return 0
	}
	id, err := s.log.Append(ctx, history.Entry{
		StrategyID: strategyID,
		Symbol:     symbol,
		SignalType: string(obs.Signal.Type),
		Price:      obs.Price,
		Strength:   obs.Signal.Strength,
	})
	if err != nil {
		logger.Warnf("signal history append failed id=%s symbol=%s: %v", strategyID, symbol, err)
		return 0
	}
	return id
}

func (s *Scheduler) attachOutcome(ctx context.Context, entryID int64, executed bool, orderRef, note string) {
	if s.log == nil || entryID <= 0 {
		return
	}
	if err := s.log.AttachOutcome(ctx, entryID, executed, orderRef, note); err != nil {
		logger.Warnf("signal history outcome update failed entry=%d: %v", entryID, err)
	}
}

// failStrategy contains a failure to the offending strategy: it records the
// error, flips the status to ERROR and emits one notification event.
func (s *Scheduler) failStrategy(ls *liveStrategy, reason string) {
	ls.mu.Lock()
	if ls.status == StatusError {
		ls.mu.Unlock()
		return
	}
	ls.status = StatusError
	ls.lastErr = reason
	cfg := ls.cfg
	ls.mu.Unlock()

	logger.Errorf("strategy entered ERROR id=%s: %s", cfg.ID, reason)
	s.sendEvent(notifier.Event{
		Icon: "🛑", Title: "Strategy error",
		StrategyID: cfg.ID,
		Lines:      []string{reason, "Restart the strategy after resolving the issue."},
	})
}

// sendEvent is fire-and-forget: notification failures never affect trading.
func (s *Scheduler) sendEvent(evt notifier.Event) {
	if s.notify == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.nowFn()
	}
	if err := s.notify.SendText(evt.RenderText()); err != nil {
		logger.Warnf("notification failed: %v", err)
	}
}

func findPosition(positions []broker.Position, symbol string) (broker.Position, bool) {
	for _, pos := range positions {
		if pos.Symbol == symbol && pos.Quantity != 0 {
			return pos, true
		}
	}
	return broker.Position{}, false
}

func exitSide(pos broker.Position) broker.Side {
	if pos.Side == "short" {
		return broker.SideBuy
	}
	return broker.SideSell
}
