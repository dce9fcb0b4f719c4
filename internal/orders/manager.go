// Package orders reconciles resting stop orders against the position book.
package orders

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/nileshsurve/dalal_condor/internal/broker"
	"github.com/nileshsurve/dalal_condor/internal/ledger"
	"github.com/nileshsurve/dalal_condor/internal/models"
	"github.com/nileshsurve/dalal_condor/internal/util"
)

const tickSize = 0.05

// Manager keeps resting stop orders consistent with the book. Stops whose
// position is gone get cancelled; stops whose position basis drifted get
// repriced.
type Manager struct {
	handle  *broker.Handle
	book    *ledger.Ledger
	stopPct float64
	logger  *log.Logger
}

// Summary counts the reconciliation actions taken in one pass.
type Summary struct {
	Cancelled int
	Repriced  int
}

func NewManager(handle *broker.Handle, book *ledger.Ledger, stopPct float64, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		handle:  handle,
		book:    book,
		stopPct: stopPct,
		logger:  logger,
	}
}

// ReconcileStops walks every non-terminal stop order in the book. An order
// whose position no longer exists is cancelled. An order whose trigger no
// longer matches the position's average price (after martingale averaging)
// is modified in place. Per-order failures are logged and skipped.
func (m *Manager) ReconcileStops(ctx context.Context) (Summary, error) {
	gw := m.handle.Get()

	var summary Summary
	for _, order := range m.book.Orders() {
		if order.Kind != models.OrderStop || order.Status.Terminal() {
			continue
		}

		position, ok := m.book.Position(order.Symbol)
		if !ok {
			if err := gw.CancelOrder(ctx, order.OrderID); err != nil {
				m.logger.Printf("cancelling orphaned stop %s for %s failed: %v", order.OrderID, order.Symbol, err)
				continue
			}
			order.Status = models.StatusCancelled
			m.book.RecordOrder(order)
			m.logger.Printf("cancelled orphaned stop %s for %s", order.OrderID, order.Symbol)
			summary.Cancelled++
			continue
		}

		target := util.RoundToTick(position.AveragePrice*m.stopPct, tickSize)
		if math.Abs(target-order.TriggerPrice) < tickSize {
			continue
		}
		if err := gw.ModifyOrder(ctx, order.OrderID, broker.OrderRequest{
			Symbol:       order.Symbol,
			Exchange:     order.Exchange,
			Side:         order.Side,
			Kind:         order.Kind,
			Quantity:     position.Quantity,
			Product:      order.Product,
			Price:        target,
			TriggerPrice: target,
			Tag:          order.Tag,
		}); err != nil {
			m.logger.Printf("repricing stop %s for %s failed: %v", order.OrderID, order.Symbol, err)
			continue
		}
		m.logger.Printf("repriced stop %s for %s: %.2f -> %.2f", order.OrderID, order.Symbol, order.TriggerPrice, target)
		order.Price = target
		order.TriggerPrice = target
		order.Quantity = position.Quantity
		m.book.RecordOrder(order)
		summary.Repriced++
	}

	return summary, nil
}

func (s Summary) String() string {
	return fmt.Sprintf("cancelled=%d repriced=%d", s.Cancelled, s.Repriced)
}
