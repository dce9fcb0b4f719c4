// Package strategy implements the iron-condor decision core: strangle entry,
// stop-loss re-entry, martingale scaling, expiry close, and hedge rolling.
package strategy

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nileshsurve/dalal_condor/internal/broker"
	"github.com/nileshsurve/dalal_condor/internal/calendar"
	"github.com/nileshsurve/dalal_condor/internal/chain"
	"github.com/nileshsurve/dalal_condor/internal/config"
	"github.com/nileshsurve/dalal_condor/internal/ledger"
	"github.com/nileshsurve/dalal_condor/internal/models"
	"github.com/nileshsurve/dalal_condor/internal/util"
)

const (
	// spotSymbol is the underlying index quote symbol.
	spotSymbol = "NIFTY"
	// orderExchange is the exchange code sent with new orders.
	orderExchange = "NSE"
	// strikeStep is the NIFTY strike grid increment.
	strikeStep = 50
)

// Engine is the strategy decision core. All collaborators are injected at
// construction; operations are safe to call repeatedly per cycle and hold no
// cross-call locks.
type Engine struct {
	cfg    *config.Config
	handle *broker.Handle
	chains *chain.Cache
	book   *ledger.Ledger
	logger *log.Logger
	now    func() time.Time
}

// New creates a strategy engine.
func New(cfg *config.Config, handle *broker.Handle, chains *chain.Cache, book *ledger.Ledger, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		cfg:    cfg,
		handle: handle,
		chains: chains,
		book:   book,
		logger: logger,
		now:    time.Now,
	}
}

// WithNow overrides the engine clock. Test hook.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Ledger exposes the position book for the console's read endpoints.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.book
}

// InvestmentAmount returns the available funds from the gateway, falling back
// to the configured base investment when the funds call fails.
func (e *Engine) InvestmentAmount(ctx context.Context) float64 {
	funds, err := e.handle.Get().FundsSummary(ctx)
	if err != nil {
		e.logger.Printf("funds summary failed, using base investment %.0f: %v",
			e.cfg.Investment.BaseInvestment, err)
		return e.cfg.Investment.BaseInvestment
	}
	return funds.AvailableFunds
}

// SpotPrice returns the current NIFTY index level.
func (e *Engine) SpotPrice(ctx context.Context) (float64, error) {
	price, err := e.handle.Get().Quote(ctx, spotSymbol)
	if err != nil {
		return 0, fmt.Errorf("%w: spot quote: %v", ErrTransport, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: spot quote returned %v", ErrDataUnavailable, price)
	}
	return price, nil
}

// sameDayOrBefore compares calendar dates, ignoring time of day.
func sameDayOrBefore(a, b time.Time) bool {
	return a.Format(calendar.DateLayout) <= b.Format(calendar.DateLayout)
}

// placeLeg submits one order, records it in the ledger, and returns it.
func (e *Engine) placeLeg(ctx context.Context, contract models.OptionContract, side models.Side,
	kind models.OrderKind, quantity int, price, trigger float64, hedge, martingale bool) (models.Order, error) {

	tag := "condor-" + uuid.NewString()[:8]
	orderID, err := e.handle.Get().PlaceOrder(ctx, broker.OrderRequest{
		Symbol:       contract.Symbol,
		Exchange:     orderExchange,
		Side:         side,
		Kind:         kind,
		Quantity:     quantity,
		Product:      models.ProductNormal,
		Price:        price,
		TriggerPrice: trigger,
		Tag:          tag,
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("%w: placing %s %s x%d: %v", ErrTransport, side, contract.Symbol, quantity, err)
	}

	order := models.Order{
		OrderID:      orderID,
		Tag:          tag,
		Symbol:       contract.Symbol,
		Exchange:     orderExchange,
		Kind:         kind,
		Side:         side,
		Quantity:     quantity,
		Product:      models.ProductNormal,
		Price:        price,
		TriggerPrice: trigger,
		Status:       models.StatusPending,
		OptionType:   contract.OptionType,
		Strike:       contract.Strike,
		Expiry:       contract.Expiry,
		IsHedge:      hedge,
		IsMartingale: martingale,
		PlacedAt:     e.now(),
	}
	e.book.RecordOrder(order)
	e.logger.Printf("placed %s %s x%d (%s), order id %s", side, contract.Symbol, quantity, kind, orderID)
	return order, nil
}

// sellLeg places a market SELL at the given strike on the chain.
func (e *Engine) sellLeg(ctx context.Context, oc *models.OptionChain, strike int, ot models.OptionType, quantity int, martingale bool) (models.Order, error) {
	contract, ok := oc.Contract(strike, ot)
	if !ok {
		return models.Order{}, fmt.Errorf("%w: no %s contract at strike %d for %s",
			ErrDataUnavailable, ot, strike, oc.Expiry.Format(calendar.DateLayout))
	}
	return e.placeLeg(ctx, contract, models.Sell, models.OrderMarket, quantity, 0, 0, false, martingale)
}

// hedgeLeg places a market BUY one strike beyond the sell strike: above for
// calls, below for puts.
func (e *Engine) hedgeLeg(ctx context.Context, oc *models.OptionChain, sellStrike int, ot models.OptionType, quantity int) (models.Order, error) {
	hedgeStrike := sellStrike + strikeStep
	if ot == models.Put {
		hedgeStrike = sellStrike - strikeStep
	}
	contract, ok := oc.Contract(hedgeStrike, ot)
	if !ok {
		return models.Order{}, fmt.Errorf("%w: no %s hedge contract at strike %d for %s",
			ErrDataUnavailable, ot, hedgeStrike, oc.Expiry.Format(calendar.DateLayout))
	}
	return e.placeLeg(ctx, contract, models.Buy, models.OrderMarket, quantity, 0, 0, true, false)
}

// EnterStrangle opens the four-legged position: SELL call and put around the
// spot on the far expiry, BUY protective hedges one strike further out on the
// near expiry. Legs are placed independently with no cross-leg rollback; a
// failed leg is logged and already-placed legs stay live.
func (e *Engine) EnterStrangle(ctx context.Context, investmentAmount, spotPrice float64) error {
	quantity := e.cfg.Investment.LotSize * e.cfg.Investment.LotsPerInvestment
	callStrike := util.RoundToStrike(spotPrice+float64(e.cfg.Strategy.StrangleDistance), strikeStep)
	putStrike := util.RoundToStrike(spotPrice-float64(e.cfg.Strategy.StrangleDistance), strikeStep)

	premiumTarget := e.cfg.Investment.InvestmentPerLot * e.cfg.Strategy.LegPremiumTarget
	e.logger.Printf("entering strangle: spot %.2f, CE %d / PE %d, qty %d, investment %.0f, leg premium target %.0f",
		spotPrice, callStrike, putStrike, quantity, investmentAmount, premiumTarget)

	today := e.now()
	sellExpiry := calendar.ExpiryNWeeksAhead(today, e.cfg.Strategy.SellExpiryWeeks)
	hedgeExpiry := calendar.ExpiryNWeeksAhead(today, e.cfg.Strategy.HedgeExpiryWeeks)

	sellChain, err := e.chains.ForExpiry(ctx, sellExpiry)
	if err != nil {
		return fmt.Errorf("%w: sell chain: %v", ErrDataUnavailable, err)
	}
	hedgeChain, err := e.chains.ForExpiry(ctx, hedgeExpiry)
	if err != nil {
		return fmt.Errorf("%w: hedge chain: %v", ErrDataUnavailable, err)
	}

	var failures int
	if _, err := e.sellLeg(ctx, sellChain, callStrike, models.Call, quantity, false); err != nil {
		e.logger.Printf("strangle CE sell leg failed: %v", err)
		failures++
	}
	if _, err := e.sellLeg(ctx, sellChain, putStrike, models.Put, quantity, false); err != nil {
		e.logger.Printf("strangle PE sell leg failed: %v", err)
		failures++
	}
	if _, err := e.hedgeLeg(ctx, hedgeChain, callStrike, models.Call, quantity); err != nil {
		e.logger.Printf("strangle CE hedge leg failed: %v", err)
		failures++
	}
	if _, err := e.hedgeLeg(ctx, hedgeChain, putStrike, models.Put, quantity); err != nil {
		e.logger.Printf("strangle PE hedge leg failed: %v", err)
		failures++
	}

	if failures > 0 {
		return fmt.Errorf("strangle entry incomplete: %d of 4 legs failed, placed legs remain live", failures)
	}
	e.logger.Printf("strangle entered: CE %d / PE %d, sell expiry %s, hedge expiry %s",
		callStrike, putStrike, sellExpiry.Format(calendar.DateLayout), hedgeExpiry.Format(calendar.DateLayout))
	return nil
}

// HandleStopLoss defends a SELL leg whose premium has collapsed. When the
// drop from the average price reaches the trigger (inclusive), it places a
// buy-to-close stop order at avg x stopLossPercentage and immediately
// attempts re-entry at the same strike, type, expiry, and quantity. Reports
// true once the stop order is placed, regardless of re-entry outcome.
func (e *Engine) HandleStopLoss(ctx context.Context, position models.Position, currentPrice float64) (bool, error) {
	if position.Side != models.Sell || position.AveragePrice <= 0 {
		return false, nil
	}

	priceDrop := (position.AveragePrice - currentPrice) / position.AveragePrice
	if priceDrop < e.cfg.Strategy.StopLossTrigger {
		return false, nil
	}
	e.logger.Printf("stop loss triggered for %s: drop %.2f%%", position.Symbol, priceDrop*100)

	stopPrice := util.RoundToTick(position.AveragePrice*e.cfg.Strategy.StopLossPercentage, 0.05)
	contract := models.OptionContract{
		Symbol:     position.Symbol,
		Strike:     position.Strike,
		OptionType: position.OptionType,
		Expiry:     position.Expiry,
	}
	if _, err := e.placeLeg(ctx, contract, models.Buy, models.OrderStop, position.Quantity, stopPrice, stopPrice, false, false); err != nil {
		return false, err
	}

	// Re-entry at current market premium; no premium re-validation.
	oc, err := e.chains.ForExpiry(ctx, position.Expiry)
	if err != nil {
		e.logger.Printf("stop loss re-entry skipped for %s, chain unavailable: %v", position.Symbol, err)
		return true, nil
	}
	if _, err := e.sellLeg(ctx, oc, position.Strike, position.OptionType, position.Quantity, false); err != nil {
		e.logger.Printf("stop loss re-entry failed for %s: %v", position.Symbol, err)
	}
	return true, nil
}

// HandleMartingale scales against a SELL leg whose premium has multiplied.
// When current/avg reaches the trigger, it buys one hedge at the next strike
// out and fans out new SELL legs at every strike whose premium falls within
// [0.8, 1.2] of the hedge premium divided by the configured divisor. The
// fan-out is deliberately uncapped: one trigger may open many legs.
func (e *Engine) HandleMartingale(ctx context.Context, position models.Position, currentPrice float64, oc *models.OptionChain) (bool, error) {
	if position.Side != models.Sell || position.AveragePrice <= 0 {
		return false, nil
	}

	priceRatio := currentPrice / position.AveragePrice
	if priceRatio < e.cfg.Strategy.MartingaleTrigger {
		return false, nil
	}
	e.logger.Printf("martingale triggered for %s: ratio %.2fx", position.Symbol, priceRatio)

	martingaleStrike := position.Strike + strikeStep
	if position.OptionType == models.Put {
		martingaleStrike = position.Strike - strikeStep
	}
	contract, ok := oc.Contract(martingaleStrike, position.OptionType)
	if !ok {
		e.logger.Printf("martingale skipped for %s: no %s contract at strike %d",
			position.Symbol, position.OptionType, martingaleStrike)
		return false, fmt.Errorf("%w: martingale strike %d absent from chain", ErrDataUnavailable, martingaleStrike)
	}

	if _, err := e.placeLeg(ctx, contract, models.Buy, models.OrderMarket, position.Quantity, 0, 0, false, true); err != nil {
		return false, err
	}

	targetPremium := contract.LastPrice / e.cfg.Strategy.MartingalePremiumDivisor
	newQuantity := int(math.Floor(float64(position.Quantity) * e.cfg.Strategy.MartingaleQuantityMultiplier))
	e.logger.Printf("martingale fan-out for %s: target premium %.2f, quantity %d",
		position.Symbol, targetPremium, newQuantity)

	var placed int
	for _, strike := range oc.Strikes() {
		candidate, ok := oc.Contract(strike, position.OptionType)
		if !ok {
			continue
		}
		premium := candidate.LastPrice
		if premium < 0.8*targetPremium || premium > 1.2*targetPremium {
			continue
		}
		if _, err := e.sellLeg(ctx, oc, strike, position.OptionType, newQuantity, true); err != nil {
			e.logger.Printf("martingale sell failed at strike %d: %v", strike, err)
			continue
		}
		placed++
	}
	e.logger.Printf("martingale placed %d sell legs for %s", placed, position.Symbol)
	return true, nil
}

// closePosition submits the opposite-side market order for the full quantity.
func (e *Engine) closePosition(ctx context.Context, position models.Position) error {
	exchange := position.Exchange
	if exchange == "" {
		exchange = orderExchange
	}
	tag := "condor-" + uuid.NewString()[:8]
	orderID, err := e.handle.Get().PlaceOrder(ctx, broker.OrderRequest{
		Symbol:   position.Symbol,
		Exchange: exchange,
		Side:     position.Side.Opposite(),
		Kind:     models.OrderMarket,
		Quantity: position.Quantity,
		Product:  position.Product,
		Tag:      tag,
	})
	if err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrTransport, position.Symbol, err)
	}
	e.book.RecordOrder(models.Order{
		OrderID:    orderID,
		Tag:        tag,
		Symbol:     position.Symbol,
		Exchange:   exchange,
		Kind:       models.OrderMarket,
		Side:       position.Side.Opposite(),
		Quantity:   position.Quantity,
		Product:    position.Product,
		Status:     models.StatusPending,
		OptionType: position.OptionType,
		Strike:     position.Strike,
		Expiry:     position.Expiry,
		PlacedAt:   e.now(),
	})
	e.logger.Printf("closed position %s (%s x%d), order id %s",
		position.Symbol, position.Side.Opposite(), position.Quantity, orderID)
	return nil
}

// ClosePositionsAtExpiry closes every position whose expiry falls on or
// before today + closeAfterWeeks. The window moves forward with each call.
// Individual close failures are logged and skipped; the ledger resyncs after
// all closes are attempted, and a failed resync is returned alongside the
// count so callers know the book may be stale.
func (e *Engine) ClosePositionsAtExpiry(ctx context.Context) (int, error) {
	closeDate := calendar.ExpiryNWeeksAhead(e.now(), e.cfg.Strategy.CloseAfterWeeks)

	var qualifying []models.Position
	for _, p := range e.book.Positions() {
		if !p.Expiry.IsZero() && sameDayOrBefore(p.Expiry, closeDate) {
			qualifying = append(qualifying, p)
		}
	}
	if len(qualifying) == 0 {
		return 0, nil
	}
	e.logger.Printf("closing %d positions expiring on or before %s",
		len(qualifying), closeDate.Format(calendar.DateLayout))

	var closed int
	for _, p := range qualifying {
		if err := e.closePosition(ctx, p); err != nil {
			e.logger.Printf("close at expiry failed for %s: %v", p.Symbol, err)
			continue
		}
		closed++
	}

	if err := e.book.SyncPositions(ctx); err != nil {
		return closed, fmt.Errorf("%w: resync after expiry close: %v", ErrTransport, err)
	}
	return closed, nil
}

// RollHedgePositions closes hedge legs that have reached expiry (today or
// earlier) and reopens them at the same strike, type, and quantity against
// the fresh hedge expiry. A failed close skips the replacement; a failed
// reopen leaves the book unhedged until the next cycle. Returns the number of
// hedges rolled; a failed ledger resync afterwards is returned with the count.
func (e *Engine) RollHedgePositions(ctx context.Context) (int, error) {
	today := e.now()

	var expiring []models.Position
	for _, p := range e.book.Positions() {
		if p.IsHedge && !p.Expiry.IsZero() && sameDayOrBefore(p.Expiry, today) {
			expiring = append(expiring, p)
		}
	}
	if len(expiring) == 0 {
		return 0, nil
	}

	hedgeExpiry := calendar.ExpiryNWeeksAhead(today, e.cfg.Strategy.HedgeExpiryWeeks)
	oc, err := e.chains.ForExpiry(ctx, hedgeExpiry)
	if err != nil {
		return 0, fmt.Errorf("%w: hedge roll chain: %v", ErrDataUnavailable, err)
	}
	e.logger.Printf("rolling %d hedge positions to %s", len(expiring), hedgeExpiry.Format(calendar.DateLayout))

	var rolled int
	for _, p := range expiring {
		if err := e.closePosition(ctx, p); err != nil {
			e.logger.Printf("hedge close failed for %s, keeping old leg: %v", p.Symbol, err)
			continue
		}

		contract, ok := oc.Contract(p.Strike, p.OptionType)
		if !ok {
			e.logger.Printf("hedge reopen skipped for %s: no %s contract at strike %d on %s",
				p.Symbol, p.OptionType, p.Strike, hedgeExpiry.Format(calendar.DateLayout))
			continue
		}
		if _, err := e.placeLeg(ctx, contract, models.Buy, models.OrderMarket, p.Quantity, 0, 0, true, false); err != nil {
			e.logger.Printf("hedge reopen failed for %s, unhedged until next cycle: %v", p.Symbol, err)
			continue
		}
		rolled++
	}

	if err := e.book.SyncPositions(ctx); err != nil {
		return rolled, fmt.Errorf("%w: resync after hedge roll: %v", ErrTransport, err)
	}
	return rolled, nil
}

// CloseAllPositions closes every active position with opposite-side market
// orders. Console operation; failures on individual legs are logged and
// skipped. Returns the number of positions closed; a failed ledger resync
// afterwards is returned with the count.
func (e *Engine) CloseAllPositions(ctx context.Context) (int, error) {
	positions := e.book.Positions()
	if len(positions) == 0 {
		return 0, nil
	}
	e.logger.Printf("closing all %d positions", len(positions))

	var closed int
	for _, p := range positions {
		if err := e.closePosition(ctx, p); err != nil {
			e.logger.Printf("close-all failed for %s: %v", p.Symbol, err)
			continue
		}
		closed++
	}

	if err := e.book.SyncPositions(ctx); err != nil {
		return closed, fmt.Errorf("%w: resync after close-all: %v", ErrTransport, err)
	}
	return closed, nil
}
