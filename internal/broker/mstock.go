package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nileshsurve/dalal_condor/internal/calendar"
	"github.com/nileshsurve/dalal_condor/internal/models"
)

const (
	// nseSegment is the mStock segment code for NSE derivatives.
	nseSegment = "2"

	defaultTimeout = 10 * time.Second
)

// Credentials holds everything needed to open an mStock session. RequestToken
// is the OTP/TOTP generated out of band; interactive prompts are not supported.
type Credentials struct {
	APIKey       string
	Username     string
	Password     string
	RequestToken string
}

// MStockAPI is the HTTP client for the mStock type-A trading API.
// Authenticate must succeed before any other call; the access token is
// written once during authentication, so a client is rebuilt, not re-logged,
// on reconnection.
type MStockAPI struct {
	client      *http.Client
	baseURL     string
	version     string
	creds       Credentials
	accessToken string
	timeout     time.Duration
	logger      *log.Logger
}

// Ensure MStockAPI implements Broker at compile time.
var _ Broker = (*MStockAPI)(nil)

// NewMStockAPI creates a new mStock API client.
func NewMStockAPI(baseURL, version string, creds Credentials, logger *log.Logger) *MStockAPI {
	if logger == nil {
		logger = log.Default()
	}
	return &MStockAPI{
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		creds:   creds,
		timeout: defaultTimeout,
		logger:  logger,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (m *MStockAPI) WithHTTPClient(c *http.Client) *MStockAPI {
	if c != nil {
		m.client = c
	}
	return m
}

// WithTimeout sets the per-request timeout.
func (m *MStockAPI) WithTimeout(timeout time.Duration) *MStockAPI {
	m.timeout = timeout
	if m.client != nil {
		m.client.Timeout = timeout
	}
	return m
}

// envelope is the common mStock response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Authenticate performs the two-step mStock login: password login followed by
// session-token generation with the out-of-band request token. On success the
// access token is attached to all subsequent requests.
func (m *MStockAPI) Authenticate(ctx context.Context) error {
	login := url.Values{}
	login.Set("username", m.creds.Username)
	login.Set("password", m.creds.Password)
	if _, err := m.call(ctx, http.MethodPost, "/openapi/typea/connect/login", login); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	session := url.Values{}
	session.Set("api_key", m.creds.APIKey)
	session.Set("request_token", m.creds.RequestToken)
	session.Set("checksum", "L")
	data, err := m.call(ctx, http.MethodPost, "/openapi/typea/session/token", session)
	if err != nil {
		return fmt.Errorf("session token: %w", err)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("decoding session token: %w", err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("session response carried no access token")
	}
	m.accessToken = token.AccessToken
	m.logger.Printf("mStock session established for user %s", m.creds.Username)
	return nil
}

// FundsSummary returns the account funds snapshot.
func (m *MStockAPI) FundsSummary(ctx context.Context) (*FundsSummary, error) {
	data, err := m.call(ctx, http.MethodGet, "/openapi/typea/funds", nil)
	if err != nil {
		return nil, err
	}
	var funds FundsSummary
	if err := json.Unmarshal(data, &funds); err != nil {
		return nil, fmt.Errorf("decoding funds summary: %w", err)
	}
	return &funds, nil
}

// Positions returns the net position rows for the account.
func (m *MStockAPI) Positions(ctx context.Context) ([]PositionRecord, error) {
	data, err := m.call(ctx, http.MethodGet, "/openapi/typea/portfolio/positions", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Net []PositionRecord `json:"net"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decoding positions: %w", err)
	}
	return payload.Net, nil
}

// OrderHistory returns the day's order book.
func (m *MStockAPI) OrderHistory(ctx context.Context) ([]OrderRecord, error) {
	data, err := m.call(ctx, http.MethodGet, "/openapi/typea/orders", nil)
	if err != nil {
		return nil, err
	}
	var orders []OrderRecord
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("decoding order history: %w", err)
	}
	return orders, nil
}

// Quote returns the last traded price for a symbol.
func (m *MStockAPI) Quote(ctx context.Context, symbol string) (float64, error) {
	data, err := m.call(ctx, http.MethodGet, "/openapi/typea/quote/"+url.PathEscape(symbol), nil)
	if err != nil {
		return 0, err
	}
	var quote struct {
		LastPrice float64 `json:"lastPrice"`
	}
	if err := json.Unmarshal(data, &quote); err != nil {
		return 0, fmt.Errorf("decoding quote for %s: %w", symbol, err)
	}
	return quote.LastPrice, nil
}

// ChainMaster lists the available expiries with their chain tokens.
func (m *MStockAPI) ChainMaster(ctx context.Context) ([]ExpiryEntry, error) {
	data, err := m.call(ctx, http.MethodGet, "/openapi/typea/getoptionchainmaster/"+nseSegment, nil)
	if err != nil {
		return nil, err
	}
	var master struct {
		ExpiryDates []struct {
			ExpiryDate string `json:"expiryDate"`
			Timestamp  string `json:"timestamp"`
		} `json:"expiryDates"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &master); err != nil {
		return nil, fmt.Errorf("decoding chain master: %w", err)
	}

	entries := make([]ExpiryEntry, 0, len(master.ExpiryDates))
	for _, e := range master.ExpiryDates {
		date, err := time.Parse(calendar.DateLayout, e.ExpiryDate)
		if err != nil {
			m.logger.Printf("skipping chain master entry with bad expiry %q: %v", e.ExpiryDate, err)
			continue
		}
		entries = append(entries, ExpiryEntry{
			Expiry:          date,
			ExpiryTimestamp: e.Timestamp,
			InstrumentToken: master.Token,
		})
	}
	return entries, nil
}

// chainContract is the wire form of one option quote in a chain response.
type chainContract struct {
	TradingSymbol string  `json:"tradingSymbol"`
	StrikePrice   int     `json:"strikePrice"`
	OptionType    string  `json:"optionType"`
	LastPrice     float64 `json:"lastPrice"`
	ChangePercent float64 `json:"changePercent"`
	Volume        int64   `json:"volume"`
	OpenInterest  int64   `json:"openInterest"`
	BidPrice      float64 `json:"bidPrice"`
	AskPrice      float64 `json:"askPrice"`
}

// Chain fetches the full strike table for one expiry and assembles the chain.
func (m *MStockAPI) Chain(ctx context.Context, expiry time.Time, expiryTimestamp, instrumentToken string) (*models.OptionChain, error) {
	endpoint := fmt.Sprintf("/openapi/typea/GetOptionChain/%s/%s/%s",
		nseSegment, url.PathEscape(expiryTimestamp), url.PathEscape(instrumentToken))
	data, err := m.call(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		SpotPrice    float64                             `json:"spotPrice"`
		StrikePrices map[string]map[string]chainContract `json:"strikePrices"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decoding option chain: %w", err)
	}

	chain := models.NewOptionChain(expiry, payload.SpotPrice)
	for strikeStr, byType := range payload.StrikePrices {
		strike, err := strconv.Atoi(strikeStr)
		if err != nil {
			m.logger.Printf("skipping chain strike %q: %v", strikeStr, err)
			continue
		}
		for typeStr, c := range byType {
			ot := models.OptionType(typeStr)
			if ot != models.Call && ot != models.Put {
				continue
			}
			chain.Add(models.OptionContract{
				Symbol:        c.TradingSymbol,
				Strike:        strike,
				OptionType:    ot,
				Expiry:        expiry,
				LastPrice:     c.LastPrice,
				ChangePercent: c.ChangePercent,
				Volume:        c.Volume,
				OpenInterest:  c.OpenInterest,
				BidPrice:      c.BidPrice,
				AskPrice:      c.AskPrice,
			})
		}
	}
	return chain, nil
}

func orderForm(req OrderRequest) url.Values {
	form := url.Values{}
	form.Set("trading_symbol", req.Symbol)
	form.Set("exchange", req.Exchange)
	form.Set("transaction_type", string(req.Side))
	form.Set("order_type", string(req.Kind))
	form.Set("quantity", strconv.Itoa(req.Quantity))
	form.Set("product", string(req.Product))
	form.Set("price", strconv.FormatFloat(req.Price, 'f', 2, 64))
	if req.TriggerPrice > 0 {
		form.Set("trigger_price", strconv.FormatFloat(req.TriggerPrice, 'f', 2, 64))
	}
	if req.Tag != "" {
		form.Set("tag", req.Tag)
	}
	return form
}

// PlaceOrder submits a new order and returns the assigned order id.
func (m *MStockAPI) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	data, err := m.call(ctx, http.MethodPost, "/openapi/typea/order/place", orderForm(req))
	if err != nil {
		return "", err
	}
	var placed struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &placed); err != nil {
		return "", fmt.Errorf("decoding order response: %w", err)
	}
	if placed.OrderID == "" {
		return "", fmt.Errorf("order accepted without an order id")
	}
	return placed.OrderID, nil
}

// ModifyOrder updates price/quantity fields of an open order.
func (m *MStockAPI) ModifyOrder(ctx context.Context, orderID string, req OrderRequest) error {
	form := orderForm(req)
	form.Set("order_id", orderID)
	_, err := m.call(ctx, http.MethodPost, "/openapi/typea/order/modify", form)
	return err
}

// CancelOrder cancels an open order.
func (m *MStockAPI) CancelOrder(ctx context.Context, orderID string) error {
	form := url.Values{}
	form.Set("order_id", orderID)
	_, err := m.call(ctx, http.MethodPost, "/openapi/typea/order/cancel", form)
	return err
}

// call issues one HTTP request with the per-call timeout, unwraps the mStock
// response envelope, and returns the raw data payload.
func (m *MStockAPI) call(ctx context.Context, method, endpoint string, form url.Values) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var req *http.Request
	var err error
	if method == http.MethodPost && form != nil {
		req, err = http.NewRequestWithContext(ctx, method, m.baseURL+endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, m.baseURL+endpoint, http.NoBody)
		if err != nil {
			return nil, err
		}
	}

	req.Header.Set("X-Mirae-Version", m.version)
	req.Header.Set("Accept", "application/json")
	if m.accessToken != "" {
		req.Header.Set("Authorization", "token "+m.creds.APIKey+":"+m.accessToken)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			m.logger.Printf("failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // cap error bodies at 64KB
		if readErr != nil {
			return nil, &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		return nil, &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(body))}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response envelope: %w", err)
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("gateway rejected %s %s: %s", method, endpoint, env.Message)
	}
	return env.Data, nil
}
