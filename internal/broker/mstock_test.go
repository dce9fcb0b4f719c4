package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nileshsurve/dalal_condor/internal/models"
)

func testCreds() Credentials {
	return Credentials{
		APIKey:       "key123",
		Username:     "MA000001",
		Password:     "secret",
		RequestToken: "424242",
	}
}

func newTestAPI(t *testing.T, handler http.Handler) (*MStockAPI, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	api := NewMStockAPI(srv.URL, "1", testCreds(), nil)
	return api, srv
}

func TestAuthenticate(t *testing.T) {
	var gotLogin, gotSession bool
	mux := http.NewServeMux()
	mux.HandleFunc("/openapi/typea/connect/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("login method = %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("username") != "MA000001" || r.PostForm.Get("password") != "secret" {
			t.Errorf("unexpected login form: %v", r.PostForm)
		}
		gotLogin = true
		fmt.Fprint(w, `{"status":"success","data":{}}`)
	})
	mux.HandleFunc("/openapi/typea/session/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("api_key") != "key123" || r.PostForm.Get("request_token") != "424242" {
			t.Errorf("unexpected session form: %v", r.PostForm)
		}
		gotSession = true
		fmt.Fprint(w, `{"status":"success","data":{"access_token":"tok-1"}}`)
	})
	mux.HandleFunc("/openapi/typea/funds", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token key123:tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-Mirae-Version"); got != "1" {
			t.Errorf("X-Mirae-Version = %q", got)
		}
		fmt.Fprint(w, `{"status":"success","data":{"availableFunds":245000.50,"usedMargin":55000}}`)
	})

	api, _ := newTestAPI(t, mux)
	ctx := context.Background()
	if err := api.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !gotLogin || !gotSession {
		t.Fatalf("login/session not both hit: %v %v", gotLogin, gotSession)
	}

	funds, err := api.FundsSummary(ctx)
	if err != nil {
		t.Fatalf("FundsSummary: %v", err)
	}
	if funds.AvailableFunds != 245000.50 {
		t.Errorf("AvailableFunds = %v", funds.AvailableFunds)
	}
}

func TestAuthenticateMissingToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/openapi/typea/connect/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{}}`)
	})
	mux.HandleFunc("/openapi/typea/session/token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{}}`)
	})

	api, _ := newTestAPI(t, mux)
	if err := api.Authenticate(context.Background()); err == nil {
		t.Fatal("expected error when access token missing")
	}
}

func TestPositions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/openapi/typea/portfolio/positions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"net":[
			{"tradingSymbol":"NIFTY2690321000CE","exchange":"NFO","netQuantity":-75,"averagePrice":110.5,"product":"NRML","pnl":1500},
			{"tradingSymbol":"NIFTY2690319000PE","exchange":"NFO","netQuantity":-75,"averagePrice":98.0,"product":"NRML","pnl":-320}
		]}}`)
	})

	api, _ := newTestAPI(t, mux)
	positions, err := api.Positions(context.Background())
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("len = %d", len(positions))
	}
	if positions[0].NetQuantity != -75 || positions[0].TradingSymbol != "NIFTY2690321000CE" {
		t.Errorf("positions[0] = %+v", positions[0])
	}
}

func TestQuote(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/openapi/typea/quote/NIFTY2690321000CE", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"lastPrice":112.35}}`)
	})

	api, _ := newTestAPI(t, mux)
	price, err := api.Quote(context.Background(), "NIFTY2690321000CE")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if price != 112.35 {
		t.Errorf("price = %v", price)
	}
}

func TestChainMasterAndChain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/openapi/typea/getoptionchainmaster/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{
			"expiryDates":[
				{"expiryDate":"2026-09-03","timestamp":"1756891800"},
				{"expiryDate":"2026-09-10","timestamp":"1757496600"},
				{"expiryDate":"bogus","timestamp":"0"}
			],
			"token":"26009"
		}}`)
	})
	mux.HandleFunc("/openapi/typea/GetOptionChain/2/1756891800/26009", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{
			"spotPrice":20950.25,
			"strikePrices":{
				"21000":{
					"CE":{"tradingSymbol":"NIFTY2690321000CE","strikePrice":21000,"optionType":"CE","lastPrice":110.5,"volume":120000,"openInterest":5400,"bidPrice":110.0,"askPrice":111.0},
					"PE":{"tradingSymbol":"NIFTY2690321000PE","strikePrice":21000,"optionType":"PE","lastPrice":160.0}
				},
				"19000":{
					"PE":{"tradingSymbol":"NIFTY2690319000PE","strikePrice":19000,"optionType":"PE","lastPrice":95.2}
				}
			}
		}}`)
	})

	api, _ := newTestAPI(t, mux)
	ctx := context.Background()

	entries, err := api.ChainMaster(ctx)
	if err != nil {
		t.Fatalf("ChainMaster: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, bad expiry rows should be skipped", len(entries))
	}
	if entries[0].InstrumentToken != "26009" || entries[0].ExpiryTimestamp != "1756891800" {
		t.Errorf("entries[0] = %+v", entries[0])
	}

	chain, err := api.Chain(ctx, entries[0].Expiry, entries[0].ExpiryTimestamp, entries[0].InstrumentToken)
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if chain.SpotPrice != 20950.25 {
		t.Errorf("SpotPrice = %v", chain.SpotPrice)
	}
	call, ok := chain.Contract(21000, models.Call)
	if !ok || call.LastPrice != 110.5 {
		t.Errorf("call contract = %+v ok=%v", call, ok)
	}
	if _, ok := chain.Contract(19000, models.Call); ok {
		t.Error("unexpected call at 19000")
	}
	if got := chain.Strikes(); len(got) != 2 || got[0] != 19000 || got[1] != 21000 {
		t.Errorf("Strikes() = %v", got)
	}
}

func TestPlaceOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/openapi/typea/order/place", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		for key, want := range map[string]string{
			"trading_symbol":   "NIFTY2690321000CE",
			"exchange":         "NFO",
			"transaction_type": "SELL",
			"order_type":       "MARKET",
			"quantity":         "75",
			"product":          "NRML",
		} {
			if got := r.PostForm.Get(key); got != want {
				t.Errorf("form[%s] = %q, expected %q", key, got, want)
			}
		}
		fmt.Fprint(w, `{"status":"success","data":{"orderId":"ORD-1001"}}`)
	})

	api, _ := newTestAPI(t, mux)
	id, err := api.PlaceOrder(context.Background(), OrderRequest{
		Symbol:   "NIFTY2690321000CE",
		Exchange: "NFO",
		Side:     models.Sell,
		Kind:     models.OrderMarket,
		Quantity: 75,
		Product:  models.ProductNormal,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if id != "ORD-1001" {
		t.Errorf("order id = %q", id)
	}
}

func TestPlaceOrderRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/openapi/typea/order/place", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error","message":"insufficient margin"}`)
	})

	api, _ := newTestAPI(t, mux)
	if _, err := api.PlaceOrder(context.Background(), OrderRequest{Symbol: "X"}); err == nil {
		t.Fatal("expected rejection error")
	}
}

func TestCancelOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/openapi/typea/order/cancel", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("order_id"); got != "ORD-7" {
			t.Errorf("order_id = %q", got)
		}
		fmt.Fprint(w, `{"status":"success","data":{}}`)
	})

	api, _ := newTestAPI(t, mux)
	if err := api.CancelOrder(context.Background(), "ORD-7"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
}

func TestCallReturnsAPIErrorOnHTTPFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	})

	api, _ := newTestAPI(t, handler)
	_, err := api.FundsSummary(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d", apiErr.Status)
	}
}

func TestCallRespectsContextDeadline(t *testing.T) {
	block := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	api, _ := newTestAPI(t, handler)
	t.Cleanup(func() { close(block) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := api.Quote(ctx, "NIFTY"); err == nil {
		t.Fatal("expected deadline error")
	}
}
