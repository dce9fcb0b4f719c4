package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nileshsurve/dalal_condor/internal/models"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, path
}

func TestStoreRoundTrip(t *testing.T) {
	s, path := tempStore(t)

	orders := []models.Order{
		{OrderID: "ORD-1", Symbol: "NIFTY26O0121000CE", Side: models.Sell, Quantity: 75, Status: models.StatusComplete},
		{OrderID: "ORD-2", Symbol: "NIFTY26O0119000PE", Side: models.Sell, Quantity: 75, Status: models.StatusOpen, IsMartingale: true},
	}
	if err := s.SaveOrders(orders); err != nil {
		t.Fatalf("SaveOrders: %v", err)
	}
	if err := s.RecordDailyPnL("2026-08-28", 4125); err != nil {
		t.Fatalf("RecordDailyPnL: %v", err)
	}

	// Reopen from disk.
	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore reopen: %v", err)
	}

	got := reopened.Orders()
	if len(got) != 2 {
		t.Fatalf("orders = %d", len(got))
	}
	if got[1].OrderID != "ORD-2" || !got[1].IsMartingale {
		t.Errorf("order = %+v", got[1])
	}
	if pnl := reopened.DailyPnL("2026-08-28"); pnl != 4125 {
		t.Errorf("daily pnl = %v", pnl)
	}
	if pnl := reopened.DailyPnL("2026-08-27"); pnl != 0 {
		t.Errorf("absent day pnl = %v", pnl)
	}
	if reopened.LastUpdated().IsZero() {
		t.Error("LastUpdated not set")
	}
}

func TestStoreMissingFileStartsEmpty(t *testing.T) {
	s, _ := tempStore(t)
	if len(s.Orders()) != 0 {
		t.Errorf("orders = %v", s.Orders())
	}
	if len(s.PnLHistory()) != 0 {
		t.Errorf("history = %v", s.PnLHistory())
	}
}

func TestStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := NewStore(path); err == nil {
		t.Fatal("expected error for corrupt state file")
	}
}

func TestStoreNoTempFileLeftBehind(t *testing.T) {
	s, path := tempStore(t)
	if err := s.SaveOrders(nil); err != nil {
		t.Fatalf("SaveOrders: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	s, _ := tempStore(t)
	if err := s.SaveOrders([]models.Order{{OrderID: "ORD-1"}}); err != nil {
		t.Fatalf("SaveOrders: %v", err)
	}

	orders := s.Orders()
	orders[0].OrderID = "mutated"
	if s.Orders()[0].OrderID != "ORD-1" {
		t.Error("Orders returned internal slice")
	}

	history := s.PnLHistory()
	history["2026-08-28"] = 1
	if s.DailyPnL("2026-08-28") != 0 {
		t.Error("PnLHistory returned internal map")
	}
}
