// Package models defines the core data types shared across the bot: orders,
// positions, option contracts and chains, and the NIFTY symbol encoding.
package models

import "time"

// OrderKind is the brokerage order type.
type OrderKind string

const (
	// OrderMarket executes at the current market price.
	OrderMarket OrderKind = "MARKET"
	// OrderLimit executes at the given price or better.
	OrderLimit OrderKind = "LIMIT"
	// OrderStop is a stop-loss limit order (SL).
	OrderStop OrderKind = "SL"
	// OrderStopMarket is a stop-loss market order (SL-M).
	OrderStopMarket OrderKind = "SL-M"
)

// Valid returns true if the OrderKind is one of the defined constants.
func (k OrderKind) Valid() bool {
	switch k {
	case OrderMarket, OrderLimit, OrderStop, OrderStopMarket:
		return true
	default:
		return false
	}
}

// Side is the direction of an order or position.
type Side string

const (
	// Buy opens or adds to a long exposure.
	Buy Side = "BUY"
	// Sell opens or adds to a short exposure.
	Sell Side = "SELL"
)

// Opposite returns the closing side for this side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderStatus is the lifecycle state of an order.
// Pending and Open may advance; Complete, Rejected and Cancelled are terminal.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusOpen      OrderStatus = "OPEN"
	StatusComplete  OrderStatus = "COMPLETE"
	StatusRejected  OrderStatus = "REJECTED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Terminal returns true once the order can no longer change state.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanAdvanceTo reports whether a transition from s to next is legal.
// A status never regresses and never leaves a terminal state.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusOpen || next.Terminal()
	case StatusOpen:
		return next.Terminal()
	default:
		return false
	}
}

// ProductType is the brokerage product classification for an order.
type ProductType string

const (
	// ProductNormal is overnight F&O margin (NRML).
	ProductNormal ProductType = "NRML"
	// ProductIntraday is margin intraday squareoff (MIS).
	ProductIntraday ProductType = "MIS"
	// ProductDelivery is cash-and-carry (CNC).
	ProductDelivery ProductType = "CNC"
)

// OptionType distinguishes calls from puts in the NSE convention.
type OptionType string

const (
	// Call option (CE).
	Call OptionType = "CE"
	// Put option (PE).
	Put OptionType = "PE"
)

// Order is a single brokerage instruction. Orders are immutable after
// placement except for Status, which only the ledger sync may advance.
type Order struct {
	OrderID      string      `json:"order_id,omitempty"`
	Tag          string      `json:"tag,omitempty"`
	Symbol       string      `json:"symbol"`
	Exchange     string      `json:"exchange"`
	Kind         OrderKind   `json:"kind"`
	Side         Side        `json:"side"`
	Quantity     int         `json:"quantity"`
	Product      ProductType `json:"product"`
	Price        float64     `json:"price,omitempty"`
	TriggerPrice float64     `json:"trigger_price,omitempty"`
	Status       OrderStatus `json:"status"`
	OptionType   OptionType  `json:"option_type,omitempty"`
	Strike       int         `json:"strike,omitempty"`
	Expiry       time.Time   `json:"expiry,omitempty"`
	IsHedge      bool        `json:"is_hedge,omitempty"`
	IsMartingale bool        `json:"is_martingale,omitempty"`
	PlacedAt     time.Time   `json:"placed_at,omitempty"`
}

// AdvanceStatus applies a status transition reported by the gateway.
// Illegal transitions (regressions, moves out of a terminal state) are
// ignored and reported false.
func (o *Order) AdvanceStatus(next OrderStatus) bool {
	if !o.Status.CanAdvanceTo(next) {
		return false
	}
	o.Status = next
	return true
}
