package broker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerPassesThroughSuccess(t *testing.T) {
	stub := &stubBroker{funds: FundsSummary{AvailableFunds: 5000}}
	cb := NewCircuitBreakerBroker(stub)

	funds, err := cb.FundsSummary(context.Background())
	if err != nil {
		t.Fatalf("FundsSummary: %v", err)
	}
	if funds.AvailableFunds != 5000 {
		t.Errorf("AvailableFunds = %v", funds.AvailableFunds)
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	stub := &stubBroker{err: errors.New("transport down")}
	cb := NewCircuitBreakerBrokerWithSettings(stub, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 1.0,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cb.FundsSummary(ctx); err == nil {
			t.Fatal("expected failure")
		}
	}

	before := stub.calls
	if _, err := cb.FundsSummary(ctx); err == nil {
		t.Fatal("expected open-circuit failure")
	}
	if stub.calls != before {
		t.Errorf("open circuit still reached the broker (calls %d -> %d)", before, stub.calls)
	}
}

func TestCircuitBreakerPropagatesError(t *testing.T) {
	wantErr := errors.New("rejected")
	cb := NewCircuitBreakerBroker(&stubBroker{err: wantErr})

	if _, err := cb.PlaceOrder(context.Background(), OrderRequest{}); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, expected %v", err, wantErr)
	}
}
