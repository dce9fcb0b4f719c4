// Package ledger holds the bot's view of account positions and in-flight
// orders. Positions are replaced wholesale from the gateway each sync cycle;
// order statuses advance only through SyncOrders.
package ledger

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/nileshsurve/dalal_condor/internal/broker"
	"github.com/nileshsurve/dalal_condor/internal/models"
)

// Ledger owns the positions and orders maps. All access goes through its
// methods; accessors return copies.
type Ledger struct {
	handle *broker.Handle
	logger *log.Logger

	mu        sync.Mutex
	positions map[string]models.Position
	orders    map[string]models.Order
}

// New creates an empty ledger reading through the given gateway handle.
func New(handle *broker.Handle, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.Default()
	}
	return &Ledger{
		handle:    handle,
		logger:    logger,
		positions: make(map[string]models.Position),
		orders:    make(map[string]models.Order),
	}
}

// SyncPositions replaces the position set from the gateway's snapshot.
// Exactly one Position per distinct symbol; nothing is merged incrementally.
// Hedge and martingale flags are carried over from recorded orders where the
// symbol inference alone cannot tell.
func (l *Ledger) SyncPositions(ctx context.Context) error {
	records, err := l.handle.Get().Positions(ctx)
	if err != nil {
		return fmt.Errorf("fetching positions: %w", err)
	}

	fresh := make(map[string]models.Position, len(records))
	for _, rec := range records {
		if rec.NetQuantity == 0 {
			continue
		}
		p := models.PositionFromNet(rec.TradingSymbol, rec.Exchange, rec.NetQuantity,
			rec.AveragePrice, models.ProductType(rec.Product), rec.PnL)
		fresh[p.Symbol] = p
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for symbol, p := range fresh {
		for _, o := range l.orders {
			if o.Symbol != symbol {
				continue
			}
			if o.IsMartingale {
				p.IsMartingale = true
			}
			if o.IsHedge && p.Side == models.Buy {
				p.IsHedge = true
			}
		}
		fresh[symbol] = p
	}
	l.positions = fresh
	l.logger.Printf("position sync: %d active positions", len(fresh))
	return nil
}

// SyncOrders advances recorded order statuses from the gateway's order book.
// This is the only code path that mutates an order's status. Regressions and
// moves out of terminal states reported by the gateway are ignored.
func (l *Ledger) SyncOrders(ctx context.Context) error {
	records, err := l.handle.Get().OrderHistory(ctx)
	if err != nil {
		return fmt.Errorf("fetching order history: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range records {
		order, ok := l.orders[rec.OrderID]
		if !ok {
			continue
		}
		next := models.OrderStatus(rec.Status)
		if order.Status == next {
			continue
		}
		if !order.AdvanceStatus(next) {
			l.logger.Printf("ignoring illegal status move %s -> %s for order %s",
				order.Status, next, rec.OrderID)
			continue
		}
		l.orders[rec.OrderID] = order
	}
	return nil
}

// RefreshPnL recomputes each position's P/L from live quotes. A failed quote
// for one symbol is logged and skipped; the rest proceed.
func (l *Ledger) RefreshPnL(ctx context.Context) error {
	gw := l.handle.Get()

	l.mu.Lock()
	symbols := make([]string, 0, len(l.positions))
	for symbol := range l.positions {
		symbols = append(symbols, symbol)
	}
	l.mu.Unlock()
	sort.Strings(symbols)

	for _, symbol := range symbols {
		price, err := gw.Quote(ctx, symbol)
		if err != nil {
			l.logger.Printf("quote failed for %s, keeping stale P/L: %v", symbol, err)
			continue
		}
		l.mu.Lock()
		if p, ok := l.positions[symbol]; ok {
			p.UpdatePnL(price)
			l.positions[symbol] = p
		}
		l.mu.Unlock()
	}
	return nil
}

// RecordOrder registers a newly placed order so later syncs can track it.
func (l *Ledger) RecordOrder(order models.Order) {
	if order.OrderID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders[order.OrderID] = order
}

// Positions returns a copy of all active positions, sorted by symbol.
func (l *Ledger) Positions() []models.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Position returns the position for a symbol, if any.
func (l *Ledger) Position(symbol string) (models.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	return p, ok
}

// Orders returns a copy of all recorded orders, sorted by order id.
func (l *Ledger) Orders() []models.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Order, 0, len(l.orders))
	for _, o := range l.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// TotalPnL sums the computed P/L across active positions.
func (l *Ledger) TotalPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, p := range l.positions {
		total += p.PnL
	}
	return total
}

// ActiveCount returns the number of active positions.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}
