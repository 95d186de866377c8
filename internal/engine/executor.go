package engine

import (
	"context"
	"fmt"
	"time"

	"autotrader/internal/gateway/broker"
	"autotrader/internal/logger"
	"autotrader/internal/pkg/circuit"
)

// Executor submits sized orders through the broker. A failed submission is
// retried once after a short delay; a second failure is returned to the
// caller, which marks the strategy ERROR. The circuit breaker guards the
// broker against hammering while it is rejecting everything.
type Executor struct {
	broker     broker.Broker
	breaker    *circuit.Breaker
	retryDelay time.Duration

	sleepFn func(ctx context.Context, d time.Duration) error
}

func NewExecutor(b broker.Broker) *Executor {
	return &Executor{
		broker:     b,
		breaker:    circuit.NewBreaker("broker", 5, 30*time.Second),
		retryDelay: 2 * time.Second,
		sleepFn:    sleepCtx,
	}
}

// Execute submits req, retrying once on failure. The request's ClientOrderID
// carries the strategy+symbol idempotency key.
func (e *Executor) Execute(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	var res broker.OrderResult
	submit := func() error {
		var err error
		res, err = e.broker.SubmitOrder(ctx, req)
		return err
	}

	err := e.breaker.Do(submit)
	if err == nil {
		return res, nil
	}
	logger.Warnf("order submission failed symbol=%s side=%s qty=%.4f, retrying once: %v",
		req.Symbol, req.Side, req.Quantity, err)

	if serr := e.sleepFn(ctx, e.retryDelay); serr != nil {
		return broker.OrderResult{}, fmt.Errorf("order submission aborted: %w", serr)
	}
	if err = e.breaker.Do(submit); err != nil {
		return broker.OrderResult{}, fmt.Errorf("order submission failed after retry: %w", err)
	}
	return res, nil
}
