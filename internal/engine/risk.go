package engine

import (
	"fmt"

	"autotrader/internal/gateway/broker"
)

// RiskManager is a pure decision function over the strategy's configuration,
// its runtime metrics and the broker's account snapshot. Checks run in a
// fixed order and the first breach wins:
//
//  1. daily loss limit (BLOCK)
//  2. max concurrent positions (BLOCK)
//  3. max position size (REDUCE_SIZE, clamp rather than block)
//  4. attached risk rules, in attachment order
type RiskManager struct{}

func NewRiskManager() *RiskManager { return &RiskManager{} }

func (r *RiskManager) Evaluate(cfg Config, m Metrics, acct broker.AccountSnapshot, p Proposal) Decision {
	if cfg.DailyLossLimit > 0 && m.DailyPnL <= -cfg.DailyLossLimit {
		return Decision{Reason: fmt.Sprintf("daily loss limit reached: pnl=%.2f limit=%.2f", m.DailyPnL, cfg.DailyLossLimit)}
	}

	open := len(acct.Positions)
	if !hasPosition(acct.Positions, p.Symbol) && open+1 > cfg.MaxPositions {
		return Decision{Reason: fmt.Sprintf("max positions reached: open=%d limit=%d", open, cfg.MaxPositions)}
	}

	d := Decision{Proceed: true}
	if cfg.MaxPositionSize > 0 && p.Value > cfg.MaxPositionSize {
		d.SizeCap = cfg.MaxPositionSize
	}

	for _, rule := range cfg.Rules {
		if !r.breached(rule, cfg, m, acct, p) {
			continue
		}
		reason := fmt.Sprintf("risk rule %s breached (threshold=%.2f)", rule.Type, rule.Threshold)
		switch rule.Action {
		case ActionBlock:
			return Decision{Reason: reason}
		case ActionAlert:
			d.Alerts = append(d.Alerts, reason)
			d.Reason = reason
		case ActionReduceSize:
			if d.SizeCap == 0 || rule.Threshold < d.SizeCap {
				d.SizeCap = rule.Threshold
			}
			d.Reason = reason
		case ActionClosePosition:
			d.Exit = true
			d.Reason = reason
		}
		// First breached rule determines the action.
		return d
	}
	return d
}

func (r *RiskManager) breached(rule RiskRule, cfg Config, m Metrics, acct broker.AccountSnapshot, p Proposal) bool {
	switch rule.Type {
	case RuleMaxDailyLoss:
		return m.DailyPnL <= -rule.Threshold
	case RuleMaxDrawdown:
		return m.TotalPnL <= -rule.Threshold
	case RulePositionCount:
		return !hasPosition(acct.Positions, p.Symbol) && float64(len(acct.Positions)+1) > rule.Threshold
	case RuleMaxPositionSize:
		return p.Value > rule.Threshold
	case RuleMaxLeverage:
		if acct.Equity <= 0 {
			return true
		}
		exposure := p.Value
		for _, pos := range acct.Positions {
			exposure += pos.Quantity * pos.MarkPrice
		}
		return exposure > acct.Equity*rule.Threshold
	default:
		return false
	}
}

func hasPosition(positions []broker.Position, symbol string) bool {
	for _, pos := range positions {
		if pos.Symbol == symbol && pos.Quantity != 0 {
			return true
		}
	}
	return false
}
