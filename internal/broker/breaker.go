package broker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nileshsurve/dalal_condor/internal/models"
)

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality so a
// flapping gateway stops absorbing calls until it recovers.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // max requests when half-open
	Interval     time.Duration // reset counts interval
	Timeout      time.Duration // open circuit duration
	MinRequests  uint32        // min requests before tripping
	FailureRatio float64       // failure ratio threshold
}

// NewCircuitBreakerBroker creates a CircuitBreakerBroker with sensible defaults.
func NewCircuitBreakerBroker(broker Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings.
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Authenticate wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) Authenticate(ctx context.Context) error {
	_, err := execCircuitBreaker(c.breaker, c.broker, func(b Broker) (struct{}, error) {
		return struct{}{}, b.Authenticate(ctx)
	})
	return err
}

// FundsSummary wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) FundsSummary(ctx context.Context) (*FundsSummary, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*FundsSummary, error) {
		return b.FundsSummary(ctx)
	})
}

// Positions wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) Positions(ctx context.Context) ([]PositionRecord, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]PositionRecord, error) {
		return b.Positions(ctx)
	})
}

// OrderHistory wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) OrderHistory(ctx context.Context) ([]OrderRecord, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]OrderRecord, error) {
		return b.OrderHistory(ctx)
	})
}

// Quote wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) Quote(ctx context.Context, symbol string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (float64, error) {
		return b.Quote(ctx, symbol)
	})
}

// ChainMaster wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) ChainMaster(ctx context.Context) ([]ExpiryEntry, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]ExpiryEntry, error) {
		return b.ChainMaster(ctx)
	})
}

// Chain wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) Chain(ctx context.Context, expiry time.Time, expiryTimestamp, instrumentToken string) (*models.OptionChain, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*models.OptionChain, error) {
		return b.Chain(ctx, expiry, expiryTimestamp, instrumentToken)
	})
}

// PlaceOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (string, error) {
		return b.PlaceOrder(ctx, req)
	})
}

// ModifyOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) ModifyOrder(ctx context.Context, orderID string, req OrderRequest) error {
	_, err := execCircuitBreaker(c.breaker, c.broker, func(b Broker) (struct{}, error) {
		return struct{}{}, b.ModifyOrder(ctx, orderID, req)
	})
	return err
}

// CancelOrder wraps the underlying broker call with circuit breaker.
func (c *CircuitBreakerBroker) CancelOrder(ctx context.Context, orderID string) error {
	_, err := execCircuitBreaker(c.breaker, c.broker, func(b Broker) (struct{}, error) {
		return struct{}{}, b.CancelOrder(ctx, orderID)
	})
	return err
}
