// Package kucoin implements the venue adapter for the KuCoin exchange.
// KuCoin uses passphrase-HMAC authentication: the request signature covers
// timestamp+method+path+body and the API passphrase is itself HMAC-signed.
// Symbols are hyphenated (BTC-USDT). Orders are placed taker-only; the
// post-only flag is not wired and maker requests are downgraded upstream.
package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/crypto"
	"github.com/faridmah/arbot/internal/domain"
	"github.com/faridmah/arbot/internal/venue"
)

// Client is the KuCoin venue adapter.
type Client struct {
	transport *venue.Transport
	auth      crypto.HMACAuth
	makerFee  decimal.Decimal
	takerFee  decimal.Decimal
	logger    *slog.Logger
}

// Config carries the adapter's construction parameters.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Passphrase string
	MakerFee   decimal.Decimal
	TakerFee   decimal.Decimal
	Retry      venue.RetryPolicy
	NetTimeout time.Duration
	Logger     *slog.Logger
}

// New creates a KuCoin adapter; incomplete credentials mean read-only mode.
func New(cfg Config) *Client {
	spec := domain.VenueKucoin.Spec()
	base := cfg.BaseURL
	if base == "" {
		base = spec.BaseURL
	}
	maker, taker := cfg.MakerFee, cfg.TakerFee
	if maker.IsZero() {
		maker = spec.MakerFee
	}
	if taker.IsZero() {
		taker = spec.TakerFee
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: venue.NewTransport(venue.TransportConfig{
			Venue:             domain.VenueKucoin,
			BaseURL:           base,
			RequestsPerSecond: 10,
			Burst:             5,
			Retry:             cfg.Retry,
			NetTimeout:        cfg.NetTimeout,
			Logger:            logger,
		}),
		auth:     crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret, Passphrase: cfg.Passphrase},
		makerFee: maker,
		takerFee: taker,
		logger:   logger.With(slog.String("venue", "kucoin")),
	}
}

func (c *Client) Name() domain.Venue        { return domain.VenueKucoin }
func (c *Client) MakerFee() decimal.Decimal { return c.makerFee }
func (c *Client) TakerFee() decimal.Decimal { return c.takerFee }
func (c *Client) SupportsPostOnly() bool    { return false }
func (c *Client) IsAuthenticated() bool     { return c.auth.Configured(true) }

func (c *Client) requireAuth(sym domain.Symbol) error {
	if !c.IsAuthenticated() {
		return &domain.VenueError{
			Venue: domain.VenueKucoin, Symbol: sym.String(), Kind: domain.ErrKindAuth,
			Message: "api key, secret and passphrase required", Err: domain.ErrNotAuthenticated,
		}
	}
	return nil
}

// signedHeaders signs pathWithQuery (the exact request target) and the body.
func (c *Client) signedHeaders(method, pathWithQuery, body string) map[string]string {
	return c.auth.PassphraseHeaders(method, pathWithQuery, body)
}

func (c *Client) renderSymbol(symbol domain.Symbol) (string, error) {
	rendered, err := domain.RenderSymbol(symbol, domain.VenueKucoin)
	if err != nil {
		return "", &domain.VenueError{
			Venue: domain.VenueKucoin, Symbol: symbol.String(), Kind: domain.ErrKindInvalid,
			Message: err.Error(), Err: domain.ErrInvalidSymbol,
		}
	}
	return rendered, nil
}

// envelope is KuCoin's uniform {"code": "200000", "data": ...} wrapper.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) decode(body []byte, symbol domain.Symbol, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("kucoin: decode envelope: %w", err)
	}
	if env.Code != "200000" {
		kind, sentinel := domain.ErrKindBusiness, domain.ErrOrderRejected
		switch env.Code {
		case "400100":
			if strings.Contains(strings.ToLower(env.Msg), "balance") {
				sentinel = domain.ErrInsufficientBalance
			}
		case "400003", "400004", "400005", "400006", "400007", "411100":
			kind, sentinel = domain.ErrKindAuth, domain.ErrAuth
		case "404000":
			sentinel = domain.ErrOrderNotFound
		}
		return &domain.VenueError{
			Venue: domain.VenueKucoin, Symbol: symbol.String(), Kind: kind,
			Message: fmt.Sprintf("code %s: %s", env.Code, env.Msg), Err: sentinel,
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("kucoin: decode data: %w", err)
	}
	return nil
}

// FetchOrderBook implements venue.Adapter. The aggregated level-2 endpoint
// serves fixed depths of 20 or 100.
func (c *Client) FetchOrderBook(ctx context.Context, symbol domain.Symbol, depth int) (domain.OrderBook, error) {
	depth, err := venue.ClampDepth(domain.VenueKucoin, depth)
	if err != nil {
		return domain.OrderBook{}, err
	}
	rendered, err := c.renderSymbol(symbol)
	if err != nil {
		return domain.OrderBook{}, err
	}

	endpointDepth := 20
	if depth > 20 {
		endpointDepth = 100
	}
	query := url.Values{}
	query.Set("symbol", rendered)

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   fmt.Sprintf("/api/v1/market/orderbook/level2_%d", endpointDepth),
		Query:  query,
	})
	if err != nil {
		return domain.OrderBook{}, err
	}

	var data struct {
		Time json.Number `json:"time"`
		Bids [][]string  `json:"bids"`
		Asks [][]string  `json:"asks"`
	}
	if err := c.decode(body, symbol, &data); err != nil {
		return domain.OrderBook{}, err
	}

	ts := time.Now().UTC()
	if ms, err := data.Time.Int64(); err == nil && ms > 0 {
		ts = time.UnixMilli(ms).UTC()
	}

	book := domain.OrderBook{
		Venue:     domain.VenueKucoin,
		Symbol:    symbol,
		Timestamp: ts,
		Bids:      parsePairs(data.Bids, depth),
		Asks:      parsePairs(data.Asks, depth),
	}
	if err := book.Validate(); err != nil {
		return domain.OrderBook{}, fmt.Errorf("kucoin: %w", err)
	}
	return book, nil
}

func parsePairs(raw [][]string, depth int) []domain.BookLevel {
	levels := make([]domain.BookLevel, 0, depth)
	for _, entry := range raw {
		if len(levels) == depth {
			break
		}
		if len(entry) < 2 {
			continue
		}
		price, err1 := decimal.NewFromString(entry[0])
		qty, err2 := decimal.NewFromString(entry[1])
		if err1 != nil || err2 != nil {
			continue
		}
		levels = append(levels, domain.BookLevel{Price: price, Quantity: qty})
	}
	return levels
}

// PlaceOrder implements venue.Adapter. Orders always go out as taker; a
// post-only request is ignored here and recorded as a downgrade by the
// executor.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if err := venue.ValidateOrderRequest(domain.VenueKucoin, req); err != nil {
		return domain.Order{}, err
	}
	if err := c.requireAuth(req.Symbol); err != nil {
		return domain.Order{}, err
	}
	rendered, err := c.renderSymbol(req.Symbol)
	if err != nil {
		return domain.Order{}, err
	}

	clientOid := uuid.New().String()
	payload := map[string]any{
		"clientOid": clientOid,
		"symbol":    rendered,
		"side":      string(req.Side),
		"type":      string(req.Type),
		"size":      venue.RenderDecimal(req.Quantity),
	}
	if req.Type == domain.OrderTypeLimit {
		payload["price"] = venue.RenderDecimal(req.Price)
	}

	const path = "/api/v1/orders"
	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "POST",
		Path:   path,
		Build: func() ([]byte, map[string]string, error) {
			b, err := json.Marshal(payload)
			if err != nil {
				return nil, nil, err
			}
			return b, c.signedHeaders("POST", path, string(b)), nil
		},
	})
	if err != nil {
		return domain.Order{}, err
	}

	var data struct {
		OrderID string `json:"orderId"`
	}
	if err := c.decode(body, req.Symbol, &data); err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	return domain.Order{
		Venue:     domain.VenueKucoin,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Price:     req.Price,
		VenueID:   data.OrderID,
		Status:    domain.OrderStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CancelOrder implements venue.Adapter. KuCoin reports an already-settled
// order as 400100 "order cannot be canceled"; that is verified terminal and
// reported as success.
func (c *Client) CancelOrder(ctx context.Context, venueID string, symbol domain.Symbol) (bool, error) {
	if err := c.requireAuth(symbol); err != nil {
		return false, err
	}

	path := "/api/v1/orders/" + url.PathEscape(venueID)
	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "DELETE",
		Path:   path,
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.signedHeaders("DELETE", path, ""), nil
		},
	})
	if err == nil {
		err = c.decode(body, symbol, nil)
	}
	if err != nil {
		order, getErr := c.GetOrder(ctx, venueID, symbol)
		if getErr == nil && order.Status.Terminal() {
			return true, nil
		}
		return false, err
	}
	return true, nil
}

type orderData struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Side        string      `json:"side"`
	Type        string      `json:"type"`
	Price       string      `json:"price"`
	Size        string      `json:"size"`
	DealSize    string      `json:"dealSize"`
	DealFunds   string      `json:"dealFunds"`
	Fee         string      `json:"fee"`
	IsActive    bool        `json:"isActive"`
	CancelExist bool        `json:"cancelExist"`
	PostOnly    bool        `json:"postOnly"`
	CreatedAt   json.Number `json:"createdAt"`
}

func (d orderData) toOrder(symbol domain.Symbol, now time.Time) domain.Order {
	o := domain.Order{
		Venue:     domain.VenueKucoin,
		Symbol:    symbol,
		Side:      domain.Side(strings.ToLower(d.Side)),
		Type:      domain.OrderType(strings.ToLower(d.Type)),
		VenueID:   d.ID,
		PostOnly:  d.PostOnly,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.Quantity = parseDec(d.Size)
	o.Price = parseDec(d.Price)
	o.FilledQty = parseDec(d.DealSize)
	o.Fee = parseDec(d.Fee)
	// Average price derives from dealFunds/dealSize when anything filled.
	if o.FilledQty.IsPositive() {
		if funds := parseDec(d.DealFunds); funds.IsPositive() {
			o.AvgPrice = funds.Div(o.FilledQty)
		}
	}

	switch {
	case d.IsActive && o.FilledQty.IsPositive():
		o.Status = domain.OrderStatusPartiallyFilled
	case d.IsActive:
		o.Status = domain.OrderStatusOpen
	case d.CancelExist:
		o.Status = domain.OrderStatusCancelled
	case o.FilledQty.GreaterThanOrEqual(o.Quantity) && o.Quantity.IsPositive():
		o.Status = domain.OrderStatusFilled
	case o.FilledQty.IsPositive():
		// Inactive with a partial fill and no cancel on record: the venue
		// settled it short (e.g. market order); treat as filled.
		o.Status = domain.OrderStatusFilled
	default:
		o.Status = domain.OrderStatusCancelled
	}
	return o
}

func parseDec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// GetOrder implements venue.Adapter.
func (c *Client) GetOrder(ctx context.Context, venueID string, symbol domain.Symbol) (domain.Order, error) {
	if err := c.requireAuth(symbol); err != nil {
		return domain.Order{}, err
	}

	path := "/api/v1/orders/" + url.PathEscape(venueID)
	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   path,
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.signedHeaders("GET", path, ""), nil
		},
	})
	if err != nil {
		return domain.Order{}, err
	}

	var data orderData
	if err := c.decode(body, symbol, &data); err != nil {
		return domain.Order{}, err
	}
	if data.ID == "" {
		return domain.Order{}, &domain.VenueError{
			Venue: domain.VenueKucoin, Symbol: symbol.String(), Kind: domain.ErrKindBusiness,
			Message: "order not found", Err: domain.ErrOrderNotFound,
		}
	}
	return data.toOrder(symbol, time.Now().UTC()), nil
}

// GetOpenOrders implements venue.Adapter.
func (c *Client) GetOpenOrders(ctx context.Context, symbol domain.Symbol) ([]domain.Order, error) {
	if err := c.requireAuth(symbol); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("status", "active")
	if !symbol.IsZero() {
		rendered, err := c.renderSymbol(symbol)
		if err != nil {
			return nil, err
		}
		query.Set("symbol", rendered)
	}

	pathWithQuery := "/api/v1/orders?" + query.Encode()
	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/api/v1/orders",
		Query:  query,
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.signedHeaders("GET", pathWithQuery, ""), nil
		},
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		Items []orderData `json:"items"`
	}
	if err := c.decode(body, symbol, &data); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	orders := make([]domain.Order, 0, len(data.Items))
	for _, item := range data.Items {
		sym := symbol
		if sym.IsZero() {
			parsed, err := domain.ParseSymbol(item.Symbol)
			if err != nil {
				continue
			}
			sym = parsed
		}
		orders = append(orders, item.toOrder(sym, now))
	}
	return orders, nil
}

// GetBalance implements venue.Adapter, reading the trade account.
func (c *Client) GetBalance(ctx context.Context, currency string) (domain.Balance, error) {
	if err := c.requireAuth(domain.Symbol{}); err != nil {
		return domain.Balance{}, err
	}

	query := url.Values{}
	query.Set("currency", strings.ToUpper(currency))
	query.Set("type", "trade")

	pathWithQuery := "/api/v1/accounts?" + query.Encode()
	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/api/v1/accounts",
		Query:  query,
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.signedHeaders("GET", pathWithQuery, ""), nil
		},
	})
	if err != nil {
		return domain.Balance{}, err
	}

	var accounts []struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
		Holds     string `json:"holds"`
	}
	if err := c.decode(body, domain.Symbol{}, &accounts); err != nil {
		return domain.Balance{}, err
	}

	want := strings.ToUpper(currency)
	for _, a := range accounts {
		if strings.ToUpper(a.Currency) != want {
			continue
		}
		return domain.Balance{
			Currency:  want,
			Available: parseDec(a.Available),
			Locked:    parseDec(a.Holds),
		}, nil
	}
	return domain.Balance{Currency: want}, nil
}
