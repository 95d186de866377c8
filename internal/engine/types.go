// Package engine is the live automation core: it owns the working set of
// schedulable strategies and drives signal monitoring, risk evaluation,
// position sizing and order execution for each of them on a fixed cadence.
package engine

import (
	"fmt"
	"strings"
	"time"

	"autotrader/internal/gateway/broker"
	"autotrader/internal/strategy"
)

// Status is the lifecycle state of one live strategy.
type Status string

const (
	StatusStopped Status = "STOPPED"
	StatusActive  Status = "ACTIVE"
	StatusPaused  Status = "PAUSED"
	StatusError   Status = "ERROR"
)

// RuleType identifies a risk rule attached to a strategy.
type RuleType string

const (
	RuleMaxPositionSize RuleType = "max_position_size"
	RuleMaxDailyLoss    RuleType = "max_daily_loss"
	RuleMaxDrawdown     RuleType = "max_drawdown"
	RulePositionCount   RuleType = "position_count"
	RuleMaxLeverage     RuleType = "max_leverage"
)

// RuleAction is what happens when a rule's threshold is breached.
type RuleAction string

const (
	ActionBlock         RuleAction = "BLOCK"
	ActionAlert         RuleAction = "ALERT"
	ActionReduceSize    RuleAction = "REDUCE_SIZE"
	ActionClosePosition RuleAction = "CLOSE_POSITION"
)

// RiskRule is one strategy-attached limit. Rules are evaluated in the order
// they are attached; the first breached rule determines the action.
type RiskRule struct {
	Type      RuleType   `json:"type" mapstructure:"type"`
	Threshold float64    `json:"threshold" mapstructure:"threshold"`
	Action    RuleAction `json:"action" mapstructure:"action"`
}

// Config is the operator-supplied configuration of one live strategy.
// It is immutable while the strategy is running; edits require STOPPED.
type Config struct {
	ID              string     `json:"id" mapstructure:"id"`
	Name            string     `json:"name" mapstructure:"name"`
	Kind            string     `json:"kind" mapstructure:"kind"`
	Params          string     `json:"params" mapstructure:"params"`
	Symbols         []string   `json:"symbols" mapstructure:"symbols"`
	Timeframe       string     `json:"timeframe" mapstructure:"timeframe"`
	CheckInterval   int        `json:"check_interval" mapstructure:"check_interval"` // seconds
	AutoExecute     bool       `json:"auto_execute" mapstructure:"auto_execute"`
	MaxPositionSize float64    `json:"max_position_size" mapstructure:"max_position_size"` // notional value
	MaxPositions    int        `json:"max_positions" mapstructure:"max_positions"`
	DailyLossLimit  float64    `json:"daily_loss_limit" mapstructure:"daily_loss_limit"`
	PositionSizePct float64    `json:"position_size_pct" mapstructure:"position_size_pct"`
	Rules           []RiskRule `json:"rules,omitempty" mapstructure:"rules"`
}

const (
	MinCheckInterval = 60
	MaxCheckInterval = 3600
	MinPositionPct   = 0.001
	MaxPositionPct   = 0.5
	MaxPositionCount = 20
)

// Validate rejects configurations that must never reach the scheduler.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("strategy id must not be empty")
	}
	if strings.TrimSpace(c.Kind) == "" {
		return fmt.Errorf("strategy kind must not be empty")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("strategy requires at least one symbol")
	}
	for _, sym := range c.Symbols {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("strategy symbols must not be blank")
		}
	}
	if c.CheckInterval < MinCheckInterval || c.CheckInterval > MaxCheckInterval {
		return fmt.Errorf("check_interval %d out of range [%d, %d]", c.CheckInterval, MinCheckInterval, MaxCheckInterval)
	}
	if c.MaxPositions < 1 || c.MaxPositions > MaxPositionCount {
		return fmt.Errorf("max_positions %d out of range [1, %d]", c.MaxPositions, MaxPositionCount)
	}
	if c.PositionSizePct < MinPositionPct || c.PositionSizePct > MaxPositionPct {
		return fmt.Errorf("position_size_pct %.4f out of range [%.3f, %.1f]", c.PositionSizePct, MinPositionPct, MaxPositionPct)
	}
	if c.MaxPositionSize < 0 {
		return fmt.Errorf("max_position_size must not be negative")
	}
	if c.DailyLossLimit < 0 {
		return fmt.Errorf("daily_loss_limit must not be negative")
	}
	for _, r := range c.Rules {
		if r.Threshold <= 0 {
			return fmt.Errorf("risk rule %s requires a positive threshold", r.Type)
		}
		switch r.Action {
		case ActionBlock, ActionAlert, ActionReduceSize, ActionClosePosition:
		default:
			return fmt.Errorf("risk rule %s has unknown action %q", r.Type, r.Action)
		}
	}
	return nil
}

func (c Config) interval() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}

func (c Config) timeframe() string {
	if strings.TrimSpace(c.Timeframe) == "" {
		return "1h"
	}
	return c.Timeframe
}

// Metrics are the per-strategy runtime counters.
type Metrics struct {
	SignalsDetected int64   `json:"signals_detected"`
	TradesExecuted  int64   `json:"trades_executed"`
	DailyPnL        float64 `json:"daily_pnl"`
	TotalPnL        float64 `json:"total_pnl"`
}

// Snapshot is a point-in-time view of one strategy, safe to read while a
// check for the same strategy is in progress.
type Snapshot struct {
	ID         string                         `json:"id"`
	Name       string                         `json:"name"`
	Kind       string                         `json:"kind"`
	Status     Status                         `json:"status"`
	LastCheck  time.Time                      `json:"last_check"`
	LastError  string                         `json:"last_error,omitempty"`
	Metrics    Metrics                        `json:"metrics"`
	LastSignal map[string]strategy.SignalType `json:"last_signal,omitempty"`
	Config     Config                         `json:"config"`
}

// Decision is the risk manager's verdict on one actionable signal. The risk
// manager never mutates broker or strategy state; it only decides.
type Decision struct {
	Proceed bool
	// SizeCap caps the order's notional value when > 0 (REDUCE_SIZE).
	SizeCap float64
	// Exit substitutes an offsetting exit of the existing position in the
	// signal's symbol for the original order (CLOSE_POSITION).
	Exit bool
	// Alerts are notified but do not block the trade.
	Alerts []string
	Reason string
}

// Proposal is the trade the risk manager is asked to judge.
type Proposal struct {
	Symbol string
	Side   broker.Side
	Price  float64
	// Value is the proposed notional before any clamping.
	Value float64
}
