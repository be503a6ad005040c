// Package wallex implements the venue adapter for the Wallex exchange.
// Wallex authenticates with an API key header (x-api-key), quotes Iranian
// pairs as TMN and spells symbols without a separator. It exposes no
// post-only flag; maker requests are downgraded by the executor.
package wallex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/domain"
	"github.com/faridmah/arbot/internal/venue"
)

// Client is the Wallex venue adapter.
type Client struct {
	transport *venue.Transport
	apiKey    string
	makerFee  decimal.Decimal
	takerFee  decimal.Decimal
	logger    *slog.Logger
}

// Config carries the adapter's construction parameters.
type Config struct {
	BaseURL    string
	APIKey     string
	MakerFee   decimal.Decimal
	TakerFee   decimal.Decimal
	Retry      venue.RetryPolicy
	NetTimeout time.Duration
	Logger     *slog.Logger
}

// New creates a Wallex adapter; an empty API key means read-only mode.
func New(cfg Config) *Client {
	spec := domain.VenueWallex.Spec()
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
			Venue:             domain.VenueWallex,
			BaseURL:           base,
			RequestsPerSecond: 10,
			Burst:             5,
			Retry:             cfg.Retry,
			NetTimeout:        cfg.NetTimeout,
			Logger:            logger,
		}),
		apiKey:   cfg.APIKey,
		makerFee: maker,
		takerFee: taker,
		logger:   logger.With(slog.String("venue", "wallex")),
	}
}

func (c *Client) Name() domain.Venue        { return domain.VenueWallex }
func (c *Client) MakerFee() decimal.Decimal { return c.makerFee }
func (c *Client) TakerFee() decimal.Decimal { return c.takerFee }
func (c *Client) SupportsPostOnly() bool    { return false }
func (c *Client) IsAuthenticated() bool     { return c.apiKey != "" }

// Wallex uses the lowercase header name x-api-key.
func (c *Client) authHeaders() map[string]string {
	return map[string]string{"x-api-key": c.apiKey}
}

func (c *Client) requireAuth(sym domain.Symbol) error {
	if c.apiKey == "" {
		return &domain.VenueError{
			Venue: domain.VenueWallex, Symbol: sym.String(), Kind: domain.ErrKindAuth,
			Message: "no api key configured", Err: domain.ErrNotAuthenticated,
		}
	}
	return nil
}

func (c *Client) renderSymbol(symbol domain.Symbol) (string, error) {
	rendered, err := domain.RenderSymbol(symbol, domain.VenueWallex)
	if err != nil {
		return "", &domain.VenueError{
			Venue: domain.VenueWallex, Symbol: symbol.String(), Kind: domain.ErrKindInvalid,
			Message: err.Error(), Err: domain.ErrInvalidSymbol,
		}
	}
	return rendered, nil
}

// envelope is Wallex's uniform {"result": ..., "success": bool} wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type depthLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type depthResult struct {
	Bid []depthLevel `json:"bid"`
	Ask []depthLevel `json:"ask"`
}

// FetchOrderBook implements venue.Adapter.
func (c *Client) FetchOrderBook(ctx context.Context, symbol domain.Symbol, depth int) (domain.OrderBook, error) {
	depth, err := venue.ClampDepth(domain.VenueWallex, depth)
	if err != nil {
		return domain.OrderBook{}, err
	}
	rendered, err := c.renderSymbol(symbol)
	if err != nil {
		return domain.OrderBook{}, err
	}

	query := url.Values{}
	query.Set("symbol", rendered)
	body, _, err := c.transport.Do(ctx, venue.Request{Method: "GET", Path: "/v1/depth", Query: query})
	if err != nil {
		return domain.OrderBook{}, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.OrderBook{}, fmt.Errorf("wallex: decode depth: %w", err)
	}
	if !env.Success {
		return domain.OrderBook{}, c.apiError(symbol, env.Message)
	}
	var result depthResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return domain.OrderBook{}, fmt.Errorf("wallex: decode depth result: %w", err)
	}

	book := domain.OrderBook{
		Venue:     domain.VenueWallex,
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Bids:      parseLevels(result.Bid, depth),
		Asks:      parseLevels(result.Ask, depth),
	}
	if err := book.Validate(); err != nil {
		return domain.OrderBook{}, fmt.Errorf("wallex: %w", err)
	}
	return book, nil
}

func parseLevels(raw []depthLevel, depth int) []domain.BookLevel {
	levels := make([]domain.BookLevel, 0, depth)
	for _, entry := range raw {
		if len(levels) == depth {
			break
		}
		price, err1 := decimal.NewFromString(entry.Price)
		qty, err2 := decimal.NewFromString(entry.Quantity)
		if err1 != nil || err2 != nil {
			continue
		}
		levels = append(levels, domain.BookLevel{Price: price, Quantity: qty})
	}
	return levels
}

type orderResult struct {
	OrderID     json.Number `json:"orderId"`
	ClientID    string      `json:"clientOrderId"`
	Symbol      string      `json:"symbol"`
	Side        string      `json:"side"`
	Type        string      `json:"type"`
	Status      string      `json:"status"`
	OrigQty     string      `json:"origQty"`
	ExecutedQty string      `json:"executedQty"`
	Price       string      `json:"price"`
	AvgPrice    string      `json:"avgPrice"`
	Fee         string      `json:"fee"`
}

var statusMap = map[string]domain.OrderStatus{
	"NEW":              domain.OrderStatusOpen,
	"PARTIALLY_FILLED": domain.OrderStatusPartiallyFilled,
	"FILLED":           domain.OrderStatusFilled,
	"CANCELED":         domain.OrderStatusCancelled,
	"REJECTED":         domain.OrderStatusRejected,
	"EXPIRED":          domain.OrderStatusCancelled,
}

func (r orderResult) toOrder(symbol domain.Symbol, now time.Time) domain.Order {
	status, ok := statusMap[r.Status]
	if !ok {
		status = domain.OrderStatusUnknown
	}
	o := domain.Order{
		Venue:     domain.VenueWallex,
		Symbol:    symbol,
		Side:      domain.Side(strings.ToLower(r.Side)),
		Type:      domain.OrderType(strings.ToLower(r.Type)),
		VenueID:   r.OrderID.String(),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.Quantity = parseDec(r.OrigQty)
	o.Price = parseDec(r.Price)
	o.FilledQty = parseDec(r.ExecutedQty)
	o.AvgPrice = parseDec(r.AvgPrice)
	o.Fee = parseDec(r.Fee)
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

// PlaceOrder implements venue.Adapter. All values are transmitted as plain
// decimal strings; Wallex rejects scientific notation.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if err := venue.ValidateOrderRequest(domain.VenueWallex, req); err != nil {
		return domain.Order{}, err
	}
	if err := c.requireAuth(req.Symbol); err != nil {
		return domain.Order{}, err
	}
	rendered, err := c.renderSymbol(req.Symbol)
	if err != nil {
		return domain.Order{}, err
	}

	payload := map[string]any{
		"symbol":   rendered,
		"side":     strings.ToUpper(string(req.Side)),
		"type":     strings.ToUpper(string(req.Type)),
		"quantity": venue.RenderDecimal(req.Quantity),
	}
	if req.Type == domain.OrderTypeLimit {
		payload["price"] = venue.RenderDecimal(req.Price)
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "POST",
		Path:   "/v1/account/orders",
		Build: func() ([]byte, map[string]string, error) {
			b, err := json.Marshal(payload)
			return b, c.authHeaders(), err
		},
	})
	if err != nil {
		return domain.Order{}, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Order{}, fmt.Errorf("wallex: decode order response: %w", err)
	}
	if !env.Success {
		if strings.Contains(strings.ToLower(env.Message), "balance") {
			return domain.Order{}, &domain.VenueError{
				Venue: domain.VenueWallex, Symbol: req.Symbol.String(), Kind: domain.ErrKindBusiness,
				Message: env.Message, Err: domain.ErrInsufficientBalance,
			}
		}
		return domain.Order{}, c.apiError(req.Symbol, env.Message)
	}

	var result orderResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return domain.Order{}, fmt.Errorf("wallex: decode order result: %w", err)
	}

	order := result.toOrder(req.Symbol, time.Now().UTC())
	order.Side = req.Side
	order.Type = req.Type
	if order.Quantity.IsZero() {
		order.Quantity = req.Quantity
	}
	if order.Price.IsZero() {
		order.Price = req.Price
	}
	if order.Status == domain.OrderStatusUnknown {
		order.Status = domain.OrderStatusPending
	}
	return order, nil
}

// CancelOrder implements venue.Adapter.
func (c *Client) CancelOrder(ctx context.Context, venueID string, symbol domain.Symbol) (bool, error) {
	if err := c.requireAuth(symbol); err != nil {
		return false, err
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "DELETE",
		Path:   "/v1/orders/" + url.PathEscape(venueID),
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.authHeaders(), nil
		},
	})
	if err != nil {
		return false, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false, fmt.Errorf("wallex: decode cancel response: %w", err)
	}
	if !env.Success {
		// A terminal order cannot be cancelled again; confirm and treat as
		// success to keep cancellation idempotent.
		order, getErr := c.GetOrder(ctx, venueID, symbol)
		if getErr == nil && order.Status.Terminal() {
			return true, nil
		}
		return false, c.apiError(symbol, env.Message)
	}
	return true, nil
}

// GetOrder implements venue.Adapter.
func (c *Client) GetOrder(ctx context.Context, venueID string, symbol domain.Symbol) (domain.Order, error) {
	if err := c.requireAuth(symbol); err != nil {
		return domain.Order{}, err
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/v1/orders/" + url.PathEscape(venueID),
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.authHeaders(), nil
		},
	})
	if err != nil {
		return domain.Order{}, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Order{}, fmt.Errorf("wallex: decode order: %w", err)
	}
	if !env.Success {
		return domain.Order{}, &domain.VenueError{
			Venue: domain.VenueWallex, Symbol: symbol.String(), Kind: domain.ErrKindBusiness,
			Message: env.Message, Err: domain.ErrOrderNotFound,
		}
	}
	var result orderResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return domain.Order{}, fmt.Errorf("wallex: decode order result: %w", err)
	}
	return result.toOrder(symbol, time.Now().UTC()), nil
}

// GetOpenOrders implements venue.Adapter.
func (c *Client) GetOpenOrders(ctx context.Context, symbol domain.Symbol) ([]domain.Order, error) {
	if err := c.requireAuth(symbol); err != nil {
		return nil, err
	}

	query := url.Values{}
	if !symbol.IsZero() {
		rendered, err := c.renderSymbol(symbol)
		if err != nil {
			return nil, err
		}
		query.Set("symbol", rendered)
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/v1/account/openOrders",
		Query:  query,
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.authHeaders(), nil
		},
	})
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("wallex: decode open orders: %w", err)
	}
	if !env.Success {
		return nil, c.apiError(symbol, env.Message)
	}
	var result struct {
		Orders []orderResult `json:"orders"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("wallex: decode open orders result: %w", err)
	}

	now := time.Now().UTC()
	orders := make([]domain.Order, 0, len(result.Orders))
	for _, r := range result.Orders {
		sym := symbol
		if sym.IsZero() {
			parsed, err := domain.ParseSymbol(r.Symbol)
			if err != nil {
				continue
			}
			sym = parsed
		}
		orders = append(orders, r.toOrder(sym, now))
	}
	return orders, nil
}

// GetBalance implements venue.Adapter.
func (c *Client) GetBalance(ctx context.Context, currency string) (domain.Balance, error) {
	if err := c.requireAuth(domain.Symbol{}); err != nil {
		return domain.Balance{}, err
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/v1/account/balances",
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.authHeaders(), nil
		},
	})
	if err != nil {
		return domain.Balance{}, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.Balance{}, fmt.Errorf("wallex: decode balances: %w", err)
	}
	if !env.Success {
		return domain.Balance{}, c.apiError(domain.Symbol{}, env.Message)
	}
	var result struct {
		Balances map[string]struct {
			Value  string `json:"value"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return domain.Balance{}, fmt.Errorf("wallex: decode balances result: %w", err)
	}

	want := strings.ToUpper(currency)
	for curr, b := range result.Balances {
		if strings.ToUpper(curr) != want {
			continue
		}
		return domain.Balance{
			Currency:  want,
			Available: parseDec(b.Value),
			Locked:    parseDec(b.Locked),
		}, nil
	}
	return domain.Balance{Currency: want}, nil
}

func (c *Client) apiError(symbol domain.Symbol, message string) error {
	if message == "" {
		message = "api error"
	}
	return &domain.VenueError{
		Venue: domain.VenueWallex, Symbol: symbol.String(), Kind: domain.ErrKindBusiness,
		Message: message, Err: domain.ErrOrderRejected,
	}
}
