// Package broker provides the gateway to the mStock trading API: the Broker
// interface, the HTTP client implementation, a circuit-breaker wrapper, and a
// mutex-guarded handle for atomic client exchange during reconnection.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/nileshsurve/dalal_condor/internal/models"
)

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// FundsSummary is the account funds snapshot.
type FundsSummary struct {
	AvailableFunds float64 `json:"availableFunds"`
	UsedMargin     float64 `json:"usedMargin"`
	TotalBalance   float64 `json:"totalBalance"`
}

// PositionRecord is one raw net-position row as reported by the gateway.
type PositionRecord struct {
	TradingSymbol string  `json:"tradingSymbol"`
	Exchange      string  `json:"exchange"`
	NetQuantity   int     `json:"netQuantity"`
	AveragePrice  float64 `json:"averagePrice"`
	Product       string  `json:"product"`
	PnL           float64 `json:"pnl"`
}

// OrderRecord is one raw order row from the gateway's order book.
type OrderRecord struct {
	OrderID       string  `json:"orderId"`
	TradingSymbol string  `json:"tradingSymbol"`
	Exchange      string  `json:"exchange"`
	Side          string  `json:"transactionType"`
	Kind          string  `json:"orderType"`
	Quantity      int     `json:"quantity"`
	Product       string  `json:"product"`
	Price         float64 `json:"price"`
	TriggerPrice  float64 `json:"triggerPrice"`
	Status        string  `json:"status"`
	Tag           string  `json:"tag"`
}

// ExpiryEntry is one row of the option chain master: an available expiry with
// the tokens needed to fetch its chain.
type ExpiryEntry struct {
	Expiry          time.Time
	ExpiryTimestamp string
	InstrumentToken string
}

// OrderRequest carries the fields of a new or modified order.
type OrderRequest struct {
	Symbol       string
	Exchange     string
	Side         models.Side
	Kind         models.OrderKind
	Quantity     int
	Product      models.ProductType
	Price        float64
	TriggerPrice float64
	Tag          string
}

// Broker defines the interface for interacting with the brokerage.
// Every call takes a context and respects its deadline.
type Broker interface {
	// Authentication
	Authenticate(ctx context.Context) error

	// Account operations
	FundsSummary(ctx context.Context) (*FundsSummary, error)
	Positions(ctx context.Context) ([]PositionRecord, error)
	OrderHistory(ctx context.Context) ([]OrderRecord, error)

	// Market data
	Quote(ctx context.Context, symbol string) (float64, error)
	ChainMaster(ctx context.Context) ([]ExpiryEntry, error)
	Chain(ctx context.Context, expiry time.Time, expiryTimestamp, instrumentToken string) (*models.OptionChain, error)

	// Order operations
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	ModifyOrder(ctx context.Context, orderID string, req OrderRequest) error
	CancelOrder(ctx context.Context, orderID string) error
}
