// Package mock provides a simulated broker gateway for paper trading.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/nileshsurve/dalal_condor/internal/broker"
	"github.com/nileshsurve/dalal_condor/internal/calendar"
	"github.com/nileshsurve/dalal_condor/internal/models"
	"github.com/nileshsurve/dalal_condor/internal/util"
)

const (
	paperFunds    = 1000000.0
	strikeStep    = 50
	strikeSpread  = 1500 // strikes generated around spot
	weeklyExpires = 8    // expiries listed by the chain master
)

// secureFloat64 generates a cryptographically secure random float64 in [0, 1).
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

func secureInt63n(n int64) int64 {
	r, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return n / 2
	}
	return r.Int64()
}

// PaperGateway simulates the broker against a synthetic drifting NIFTY spot.
// Market orders fill immediately at the synthetic premium; stop orders rest
// in the order book until cancelled. Safe for concurrent use.
type PaperGateway struct {
	mu          sync.Mutex
	spot        float64
	nextOrderID int
	orders      []broker.OrderRecord
	positions   map[string]*paperPosition
	logger      *log.Logger
	now         func() time.Time
}

type paperPosition struct {
	netQuantity  int
	averagePrice float64
	product      string
}

var _ broker.Broker = (*PaperGateway)(nil)

// NewPaperGateway creates a simulated gateway with the spot near 20000.
func NewPaperGateway(logger *log.Logger) *PaperGateway {
	if logger == nil {
		logger = log.Default()
	}
	return &PaperGateway{
		spot:      19900 + secureFloat64()*200,
		positions: make(map[string]*paperPosition),
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock used for expiry generation. Test hook.
func (g *PaperGateway) WithNow(now func() time.Time) *PaperGateway {
	g.now = now
	return g
}

func (g *PaperGateway) Authenticate(context.Context) error {
	g.logger.Printf("paper gateway: session established")
	return nil
}

func (g *PaperGateway) FundsSummary(context.Context) (*broker.FundsSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var margin float64
	for symbol, p := range g.positions {
		if p.netQuantity < 0 {
			margin += g.premiumLocked(symbol) * float64(-p.netQuantity) * 5
		}
	}
	return &broker.FundsSummary{
		AvailableFunds: paperFunds - margin,
		UsedMargin:     margin,
		TotalBalance:   paperFunds,
	}, nil
}

func (g *PaperGateway) Positions(context.Context) ([]broker.PositionRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	records := make([]broker.PositionRecord, 0, len(g.positions))
	for symbol, p := range g.positions {
		if p.netQuantity == 0 {
			continue
		}
		last := g.premiumLocked(symbol)
		pnl := (p.averagePrice - last) * float64(-p.netQuantity)
		records = append(records, broker.PositionRecord{
			TradingSymbol: symbol,
			Exchange:      "NSE",
			NetQuantity:   p.netQuantity,
			AveragePrice:  p.averagePrice,
			Product:       p.product,
			PnL:           pnl,
		})
	}
	return records, nil
}

func (g *PaperGateway) OrderHistory(context.Context) ([]broker.OrderRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]broker.OrderRecord, len(g.orders))
	copy(out, g.orders)
	return out, nil
}

// Quote returns the drifting index level for NIFTY and a synthetic premium
// for option symbols.
func (g *PaperGateway) Quote(_ context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if symbol == "NIFTY" {
		g.spot += (secureFloat64() - 0.5) * 20
		return g.spot, nil
	}
	price := g.premiumLocked(symbol)
	if price <= 0 {
		return 0, fmt.Errorf("paper gateway: no quote for %s", symbol)
	}
	return price, nil
}

// ChainMaster lists the next weekly Thursday expiries.
func (g *PaperGateway) ChainMaster(context.Context) ([]broker.ExpiryEntry, error) {
	today := g.now()
	entries := make([]broker.ExpiryEntry, 0, weeklyExpires)
	for i := 0; i < weeklyExpires; i++ {
		expiry := calendar.ExpiryNWeeksAhead(today, i)
		entries = append(entries, broker.ExpiryEntry{
			Expiry:          expiry,
			ExpiryTimestamp: expiry.Format(calendar.DateLayout),
			InstrumentToken: "26009",
		})
	}
	return entries, nil
}

// Chain generates a synthetic chain around the current spot.
func (g *PaperGateway) Chain(_ context.Context, expiry time.Time, _, _ string) (*models.OptionChain, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	oc := models.NewOptionChain(expiry, g.spot)
	center := util.RoundToStrike(g.spot, strikeStep)
	for strike := center - strikeSpread; strike <= center+strikeSpread; strike += strikeStep {
		for _, ot := range []models.OptionType{models.Call, models.Put} {
			last := g.priceOptionLocked(strike, ot, expiry)
			oc.Add(models.OptionContract{
				Symbol:       models.EncodeSymbol("NIFTY", strike, ot, expiry),
				Strike:       strike,
				OptionType:   ot,
				Expiry:       expiry,
				LastPrice:    last,
				BidPrice:     last - 0.5,
				AskPrice:     last + 0.5,
				Volume:       secureInt63n(500000),
				OpenInterest: secureInt63n(2000000),
			})
		}
	}
	return oc, nil
}

// PlaceOrder fills market orders immediately against the synthetic book.
func (g *PaperGateway) PlaceOrder(_ context.Context, req broker.OrderRequest) (string, error) {
	if req.Quantity <= 0 {
		return "", fmt.Errorf("paper gateway: quantity must be positive")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextOrderID++
	orderID := fmt.Sprintf("PAPER-%06d", g.nextOrderID)

	status := string(models.StatusOpen)
	if req.Kind == models.OrderMarket {
		g.fillLocked(req)
		status = string(models.StatusComplete)
	}
	g.orders = append(g.orders, broker.OrderRecord{
		OrderID:       orderID,
		TradingSymbol: req.Symbol,
		Exchange:      req.Exchange,
		Side:          string(req.Side),
		Kind:          string(req.Kind),
		Quantity:      req.Quantity,
		Product:       string(req.Product),
		Price:         req.Price,
		TriggerPrice:  req.TriggerPrice,
		Status:        status,
		Tag:           req.Tag,
	})
	g.logger.Printf("paper gateway: %s %s %s x%d (%s)", status, req.Side, req.Symbol, req.Quantity, req.Kind)
	return orderID, nil
}

func (g *PaperGateway) ModifyOrder(_ context.Context, orderID string, req broker.OrderRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.orders {
		if g.orders[i].OrderID == orderID {
			g.orders[i].Price = req.Price
			g.orders[i].TriggerPrice = req.TriggerPrice
			g.orders[i].Quantity = req.Quantity
			return nil
		}
	}
	return fmt.Errorf("paper gateway: unknown order %s", orderID)
}

func (g *PaperGateway) CancelOrder(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.orders {
		if g.orders[i].OrderID == orderID {
			g.orders[i].Status = string(models.StatusCancelled)
			return nil
		}
	}
	return fmt.Errorf("paper gateway: unknown order %s", orderID)
}

// fillLocked applies a filled order to the position book.
func (g *PaperGateway) fillLocked(req broker.OrderRequest) {
	price := g.premiumLocked(req.Symbol)
	qty := req.Quantity
	if req.Side == models.Sell {
		qty = -qty
	}

	p, ok := g.positions[req.Symbol]
	if !ok {
		product := string(req.Product)
		if product == "" {
			product = string(models.ProductNormal)
		}
		g.positions[req.Symbol] = &paperPosition{netQuantity: qty, averagePrice: price, product: product}
		return
	}

	// Same direction averages in; crossing through zero resets the basis.
	switch {
	case p.netQuantity == 0 || (p.netQuantity > 0) == (qty > 0):
		total := p.netQuantity + qty
		if total != 0 {
			p.averagePrice = (p.averagePrice*absFloat(p.netQuantity) + price*absFloat(qty)) / absFloat(total)
		}
		p.netQuantity = total
	default:
		p.netQuantity += qty
		if p.netQuantity == 0 {
			delete(g.positions, req.Symbol)
		} else if (p.netQuantity > 0) != (p.netQuantity-qty > 0) {
			p.averagePrice = price
		}
	}
}

// premiumLocked prices a symbol off its parsed strike and expiry.
func (g *PaperGateway) premiumLocked(symbol string) float64 {
	meta, err := models.ParseSymbol(symbol)
	if err != nil {
		return 0
	}
	return g.priceOptionLocked(meta.Strike, meta.OptionType, meta.Expiry)
}

// priceOptionLocked approximates an option premium: intrinsic value plus a
// time value decaying with distance from spot.
func (g *PaperGateway) priceOptionLocked(strike int, ot models.OptionType, expiry time.Time) float64 {
	dte := expiry.Sub(g.now()).Hours() / 24
	if dte < 0 {
		dte = 0
	}

	intrinsic := 0.0
	if ot == models.Call && g.spot > float64(strike) {
		intrinsic = g.spot - float64(strike)
	}
	if ot == models.Put && g.spot < float64(strike) {
		intrinsic = float64(strike) - g.spot
	}

	distance := math.Abs(g.spot - float64(strike))
	timeValue := g.spot * 0.012 * math.Sqrt(math.Max(dte, 0.5)/365) * math.Exp(-distance/800)
	return util.RoundToTick(math.Max(intrinsic+timeValue, 0.05), 0.05)
}

func absFloat(n int) float64 {
	if n < 0 {
		return float64(-n)
	}
	return float64(n)
}
