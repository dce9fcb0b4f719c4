package models

import "testing"

func TestOrderStatusCanAdvanceTo(t *testing.T) {
	tests := []struct {
		name     string
		from     OrderStatus
		to       OrderStatus
		expected bool
	}{
		{"pending to open", StatusPending, StatusOpen, true},
		{"pending to complete", StatusPending, StatusComplete, true},
		{"pending to rejected", StatusPending, StatusRejected, true},
		{"open to complete", StatusOpen, StatusComplete, true},
		{"open to cancelled", StatusOpen, StatusCancelled, true},
		{"open back to pending", StatusOpen, StatusPending, false},
		{"complete to open", StatusComplete, StatusOpen, false},
		{"complete to cancelled", StatusComplete, StatusCancelled, false},
		{"rejected to complete", StatusRejected, StatusComplete, false},
		{"cancelled to open", StatusCancelled, StatusOpen, false},
		{"same state", StatusOpen, StatusOpen, true},
		{"terminal same state", StatusComplete, StatusComplete, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanAdvanceTo(tt.to); got != tt.expected {
				t.Errorf("CanAdvanceTo(%v -> %v) = %v, expected %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestOrderAdvanceStatus(t *testing.T) {
	o := Order{Status: StatusPending}

	if !o.AdvanceStatus(StatusOpen) {
		t.Fatal("pending -> open should advance")
	}
	if !o.AdvanceStatus(StatusComplete) {
		t.Fatal("open -> complete should advance")
	}
	if o.AdvanceStatus(StatusCancelled) {
		t.Error("terminal order advanced")
	}
	if o.Status != StatusComplete {
		t.Errorf("Status = %v after rejected transition, expected COMPLETE", o.Status)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	for _, s := range []OrderStatus{StatusComplete, StatusRejected, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
	for _, s := range []OrderStatus{StatusPending, StatusOpen} {
		if s.Terminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
}

func TestSideOpposite(t *testing.T) {
	if Buy.Opposite() != Sell || Sell.Opposite() != Buy {
		t.Error("Opposite() is not an involution over {BUY, SELL}")
	}
}

func TestOrderKindValid(t *testing.T) {
	for _, k := range []OrderKind{OrderMarket, OrderLimit, OrderStop, OrderStopMarket} {
		if !k.Valid() {
			t.Errorf("%v should be valid", k)
		}
	}
	if OrderKind("GTT").Valid() {
		t.Error("unknown kind reported valid")
	}
}
