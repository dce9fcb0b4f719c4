package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nileshsurve/dalal_condor/internal/broker"
	"github.com/nileshsurve/dalal_condor/internal/ledger"
	"github.com/nileshsurve/dalal_condor/internal/models"
)

type fakeGateway struct {
	positions  []broker.PositionRecord
	cancelled  []string
	modified   map[string]broker.OrderRequest
	cancelErr  error
	modifyErr  error
}

var _ broker.Broker = (*fakeGateway)(nil)

func (f *fakeGateway) Authenticate(context.Context) error { return nil }

func (f *fakeGateway) FundsSummary(context.Context) (*broker.FundsSummary, error) {
	return &broker.FundsSummary{}, nil
}

func (f *fakeGateway) Positions(context.Context) ([]broker.PositionRecord, error) {
	return f.positions, nil
}

func (f *fakeGateway) OrderHistory(context.Context) ([]broker.OrderRecord, error) { return nil, nil }
func (f *fakeGateway) Quote(context.Context, string) (float64, error)             { return 0, nil }
func (f *fakeGateway) ChainMaster(context.Context) ([]broker.ExpiryEntry, error)  { return nil, nil }

func (f *fakeGateway) Chain(context.Context, time.Time, string, string) (*models.OptionChain, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) PlaceOrder(context.Context, broker.OrderRequest) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeGateway) ModifyOrder(_ context.Context, orderID string, req broker.OrderRequest) error {
	if f.modifyErr != nil {
		return f.modifyErr
	}
	if f.modified == nil {
		f.modified = make(map[string]broker.OrderRequest)
	}
	f.modified[orderID] = req
	return nil
}

func (f *fakeGateway) CancelOrder(_ context.Context, orderID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

const (
	liveSymbol   = "NIFTY26O0121000CE"
	orphanSymbol = "NIFTY26O0119000PE"
)

func stopOrder(id, symbol string, trigger float64) models.Order {
	return models.Order{
		OrderID:      id,
		Symbol:       symbol,
		Exchange:     "NSE",
		Kind:         models.OrderStop,
		Side:         models.Buy,
		Quantity:     75,
		Product:      models.ProductNormal,
		Price:        trigger,
		TriggerPrice: trigger,
		Status:       models.StatusOpen,
	}
}

func setup(t *testing.T, gw *fakeGateway) (*Manager, *ledger.Ledger) {
	t.Helper()
	handle := broker.NewHandle(gw)
	book := ledger.New(handle, nil)
	if err := book.SyncPositions(context.Background()); err != nil {
		t.Fatalf("SyncPositions: %v", err)
	}
	return NewManager(handle, book, 0.90, nil), book
}

func TestReconcileCancelsOrphanedStop(t *testing.T) {
	gw := &fakeGateway{
		positions: []broker.PositionRecord{
			{TradingSymbol: liveSymbol, Exchange: "NSE", NetQuantity: -75, AveragePrice: 100, Product: "NRML"},
		},
	}
	manager, book := setup(t, gw)
	book.RecordOrder(stopOrder("ORD-1", liveSymbol, 90))
	book.RecordOrder(stopOrder("ORD-2", orphanSymbol, 85.50))

	summary, err := manager.ReconcileStops(context.Background())
	if err != nil {
		t.Fatalf("ReconcileStops: %v", err)
	}
	if summary.Cancelled != 1 {
		t.Errorf("cancelled = %d", summary.Cancelled)
	}
	if len(gw.cancelled) != 1 || gw.cancelled[0] != "ORD-2" {
		t.Errorf("gateway cancels = %v", gw.cancelled)
	}

	for _, o := range book.Orders() {
		switch o.OrderID {
		case "ORD-1":
			if o.Status != models.StatusOpen {
				t.Errorf("live stop status = %s", o.Status)
			}
		case "ORD-2":
			if o.Status != models.StatusCancelled {
				t.Errorf("orphaned stop status = %s", o.Status)
			}
		}
	}
}

func TestReconcileRepricesDriftedStop(t *testing.T) {
	// Martingale averaging moved the basis from 100 to 150; the stop must
	// follow to 150 * 0.90 = 135.
	gw := &fakeGateway{
		positions: []broker.PositionRecord{
			{TradingSymbol: liveSymbol, Exchange: "NSE", NetQuantity: -150, AveragePrice: 150, Product: "NRML"},
		},
	}
	manager, book := setup(t, gw)
	book.RecordOrder(stopOrder("ORD-1", liveSymbol, 90))

	summary, err := manager.ReconcileStops(context.Background())
	if err != nil {
		t.Fatalf("ReconcileStops: %v", err)
	}
	if summary.Repriced != 1 {
		t.Fatalf("repriced = %d", summary.Repriced)
	}

	req, ok := gw.modified["ORD-1"]
	if !ok {
		t.Fatal("ModifyOrder not called")
	}
	if req.TriggerPrice != 135 || req.Price != 135 {
		t.Errorf("new trigger = %v/%v", req.TriggerPrice, req.Price)
	}
	if req.Quantity != 150 {
		t.Errorf("quantity = %d, must track the position", req.Quantity)
	}

	for _, o := range book.Orders() {
		if o.OrderID == "ORD-1" && o.TriggerPrice != 135 {
			t.Errorf("ledger trigger = %v", o.TriggerPrice)
		}
	}
}

func TestReconcileLeavesAlignedStopAlone(t *testing.T) {
	gw := &fakeGateway{
		positions: []broker.PositionRecord{
			{TradingSymbol: liveSymbol, Exchange: "NSE", NetQuantity: -75, AveragePrice: 100, Product: "NRML"},
		},
	}
	manager, book := setup(t, gw)
	book.RecordOrder(stopOrder("ORD-1", liveSymbol, 90))

	summary, err := manager.ReconcileStops(context.Background())
	if err != nil {
		t.Fatalf("ReconcileStops: %v", err)
	}
	if summary.Cancelled != 0 || summary.Repriced != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if len(gw.cancelled) != 0 || len(gw.modified) != 0 {
		t.Error("gateway touched for an aligned stop")
	}
}

func TestReconcileSkipsTerminalAndNonStopOrders(t *testing.T) {
	gw := &fakeGateway{}
	manager, book := setup(t, gw)

	done := stopOrder("ORD-1", orphanSymbol, 90)
	done.Status = models.StatusComplete
	book.RecordOrder(done)

	market := stopOrder("ORD-2", orphanSymbol, 0)
	market.Kind = models.OrderMarket
	book.RecordOrder(market)

	summary, err := manager.ReconcileStops(context.Background())
	if err != nil {
		t.Fatalf("ReconcileStops: %v", err)
	}
	if summary.Cancelled != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if len(gw.cancelled) != 0 {
		t.Errorf("cancels = %v", gw.cancelled)
	}
}

func TestReconcileCancelFailureKeepsOrder(t *testing.T) {
	gw := &fakeGateway{cancelErr: errors.New("gateway down")}
	manager, book := setup(t, gw)
	book.RecordOrder(stopOrder("ORD-1", orphanSymbol, 90))

	summary, err := manager.ReconcileStops(context.Background())
	if err != nil {
		t.Fatalf("ReconcileStops: %v", err)
	}
	if summary.Cancelled != 0 {
		t.Errorf("summary = %+v", summary)
	}
	for _, o := range book.Orders() {
		if o.OrderID == "ORD-1" && o.Status != models.StatusOpen {
			t.Errorf("status = %s, failed cancel must leave the order open", o.Status)
		}
	}
}
