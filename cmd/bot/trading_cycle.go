package main

import (
	"context"
	"errors"
	"time"

	"github.com/nileshsurve/dalal_condor/internal/calendar"
	"github.com/nileshsurve/dalal_condor/internal/models"
	"github.com/nileshsurve/dalal_condor/internal/strategy"
)

// runCycle executes one pass of the trading checklist. Every step isolates
// its own failures: a broken step is logged and the cycle moves on, so one
// bad quote never wedges the loop.
func (b *Bot) runCycle(ctx context.Context) {
	now := b.now()
	holidays := b.cfg.HolidaySet()

	if !calendar.IsTradingDay(now, holidays) {
		b.logger.Printf("market closed today, next trading day %s",
			calendar.NextTradingDay(now, holidays).Format(calendar.DateLayout))
		return
	}
	if !calendar.IsTradingTime(now, b.cfg.TradingStart(), b.cfg.TradingEnd()) {
		b.logger.Printf("outside trading hours (%s - %s), skipping cycle",
			b.cfg.Schedule.StartTime, b.cfg.Schedule.EndTime)
		return
	}

	b.logger.Println("trading cycle start")

	if err := b.book.SyncPositions(ctx); err != nil {
		b.logger.Printf("position sync failed, skipping cycle: %v", err)
		return
	}
	if err := b.book.SyncOrders(ctx); err != nil {
		b.logger.Printf("order sync failed: %v", err)
	}
	if err := b.book.RefreshPnL(ctx); err != nil {
		b.logger.Printf("pnl refresh failed: %v", err)
	}

	if summary, err := b.stops.ReconcileStops(ctx); err != nil {
		b.logger.Printf("stop reconciliation failed: %v", err)
	} else if summary.Cancelled > 0 || summary.Repriced > 0 {
		b.logger.Printf("stop reconciliation: %s", summary)
	}

	if b.book.ActiveCount() == 0 {
		b.enterNewStrangle(ctx)
	} else {
		b.defendPositions(ctx)
	}

	if closed, err := b.engine.ClosePositionsAtExpiry(ctx); err != nil {
		b.logger.Printf("expiry close failed: %v", err)
	} else if closed > 0 {
		b.logger.Printf("closed %d positions at expiry window", closed)
	}

	if rolled, err := b.engine.RollHedgePositions(ctx); err != nil {
		b.logger.Printf("hedge roll failed: %v", err)
	} else if rolled > 0 {
		b.logger.Printf("rolled %d hedge positions", rolled)
	}

	b.persistState(now)
	b.logger.Println("trading cycle complete")
}

func (b *Bot) enterNewStrangle(ctx context.Context) {
	spot, err := b.engine.SpotPrice(ctx)
	if err != nil {
		b.logger.Printf("spot price unavailable, no entry this cycle: %v", err)
		return
	}
	investment := b.engine.InvestmentAmount(ctx)

	if err := b.engine.EnterStrangle(ctx, investment, spot); err != nil {
		b.logger.Printf("strangle entry failed: %v", err)
	}
}

// defendPositions runs stop-loss and martingale checks on every short leg.
func (b *Bot) defendPositions(ctx context.Context) {
	gw := b.handle.Get()

	for _, position := range b.book.Positions() {
		if position.Side != models.Sell {
			continue
		}

		currentPrice, err := gw.Quote(ctx, position.Symbol)
		if err != nil {
			b.logger.Printf("quote failed for %s, skipping checks: %v", position.Symbol, err)
			continue
		}

		stopped, err := b.engine.HandleStopLoss(ctx, position, currentPrice)
		if err != nil {
			b.logger.Printf("stop loss check failed for %s: %v", position.Symbol, err)
			continue
		}
		if stopped {
			continue // martingale never fires on a stopped-out leg
		}

		oc, err := b.chains.ForExpiry(ctx, position.Expiry)
		if err != nil {
			b.logger.Printf("chain unavailable for %s, skipping martingale: %v", position.Symbol, err)
			continue
		}
		if _, err := b.engine.HandleMartingale(ctx, position, currentPrice, oc); err != nil &&
			!errors.Is(err, strategy.ErrDataUnavailable) {
			b.logger.Printf("martingale check failed for %s: %v", position.Symbol, err)
		}
	}
}

// persistState writes the order trail and the day's mark-to-market P/L.
func (b *Bot) persistState(now time.Time) {
	if err := b.store.SaveOrders(b.book.Orders()); err != nil {
		b.logger.Printf("persisting orders failed: %v", err)
	}
	if err := b.store.RecordDailyPnL(now.Format(calendar.DateLayout), b.book.TotalPnL()); err != nil {
		b.logger.Printf("persisting daily pnl failed: %v", err)
	}
}
