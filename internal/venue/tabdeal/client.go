// Package tabdeal implements the venue adapter for the Tabdeal exchange.
// Tabdeal signs requests Binance-style: an HMAC-SHA256 over the canonical
// query string (millisecond timestamp included) travels as a query
// parameter next to the X-MBX-APIKEY header. Iranian pairs quote as IRT,
// symbols have no separator, and limit orders may be flagged post-only.
package tabdeal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/crypto"
	"github.com/faridmah/arbot/internal/domain"
	"github.com/faridmah/arbot/internal/venue"
)

// Client is the Tabdeal venue adapter.
type Client struct {
	transport *venue.Transport
	auth      crypto.HMACAuth
	makerFee  decimal.Decimal
	takerFee  decimal.Decimal
	logger    *slog.Logger
	now       func() time.Time
}

// Config carries the adapter's construction parameters.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	MakerFee   decimal.Decimal
	TakerFee   decimal.Decimal
	Retry      venue.RetryPolicy
	NetTimeout time.Duration
	Logger     *slog.Logger
}

// New creates a Tabdeal adapter; empty credentials mean read-only mode.
func New(cfg Config) *Client {
	spec := domain.VenueTabdeal.Spec()
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
			Venue:             domain.VenueTabdeal,
			BaseURL:           base,
			RequestsPerSecond: 10,
			Burst:             5,
			Retry:             cfg.Retry,
			NetTimeout:        cfg.NetTimeout,
			Logger:            logger,
		}),
		auth:     crypto.HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret},
		makerFee: maker,
		takerFee: taker,
		logger:   logger.With(slog.String("venue", "tabdeal")),
		now:      time.Now,
	}
}

func (c *Client) Name() domain.Venue        { return domain.VenueTabdeal }
func (c *Client) MakerFee() decimal.Decimal { return c.makerFee }
func (c *Client) TakerFee() decimal.Decimal { return c.takerFee }
func (c *Client) SupportsPostOnly() bool    { return true }
func (c *Client) IsAuthenticated() bool     { return c.auth.Configured(false) }

func (c *Client) requireAuth(sym domain.Symbol) error {
	if !c.IsAuthenticated() {
		return &domain.VenueError{
			Venue: domain.VenueTabdeal, Symbol: sym.String(), Kind: domain.ErrKindAuth,
			Message: "no api credentials configured", Err: domain.ErrNotAuthenticated,
		}
	}
	return nil
}

// sign stamps params with the millisecond timestamp, signs the canonical
// query encoding (the exact byte sequence the server re-encodes), and
// appends the hex signature.
func (c *Client) sign(params url.Values) url.Values {
	signed := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			signed.Add(k, v)
		}
	}
	signed.Set("timestamp", fmt.Sprintf("%d", c.now().UnixMilli()))
	signed.Set("signature", c.auth.QuerySignature(signed.Encode()))
	return signed
}

func (c *Client) renderSymbol(symbol domain.Symbol) (string, error) {
	rendered, err := domain.RenderSymbol(symbol, domain.VenueTabdeal)
	if err != nil {
		return "", &domain.VenueError{
			Venue: domain.VenueTabdeal, Symbol: symbol.String(), Kind: domain.ErrKindInvalid,
			Message: err.Error(), Err: domain.ErrInvalidSymbol,
		}
	}
	return rendered, nil
}

// FetchOrderBook implements venue.Adapter. The depth endpoint is public and
// returns Binance-shaped [price, qty] string pairs.
func (c *Client) FetchOrderBook(ctx context.Context, symbol domain.Symbol, depth int) (domain.OrderBook, error) {
	depth, err := venue.ClampDepth(domain.VenueTabdeal, depth)
	if err != nil {
		return domain.OrderBook{}, err
	}
	rendered, err := c.renderSymbol(symbol)
	if err != nil {
		return domain.OrderBook{}, err
	}

	query := url.Values{}
	query.Set("symbol", rendered)
	query.Set("limit", fmt.Sprintf("%d", depth))

	body, _, err := c.transport.Do(ctx, venue.Request{Method: "GET", Path: "/api/v1/depth", Query: query})
	if err != nil {
		return domain.OrderBook{}, err
	}

	var resp struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("tabdeal: decode depth: %w", err)
	}

	book := domain.OrderBook{
		Venue:     domain.VenueTabdeal,
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Bids:      parsePairs(resp.Bids, depth),
		Asks:      parsePairs(resp.Asks, depth),
	}
	if err := book.Validate(); err != nil {
		return domain.OrderBook{}, fmt.Errorf("tabdeal: %w", err)
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

type orderJSON struct {
	ID          json.Number `json:"id"`
	Symbol      string      `json:"symbol"`
	Side        string      `json:"side"`
	Type        string      `json:"type"`
	Status      string      `json:"status"`
	Amount      string      `json:"amount"`
	Price       string      `json:"price"`
	FilledAmount string     `json:"filledAmount"`
	AvgPrice    string      `json:"avgPrice"`
	Fee         string      `json:"fee"`
}

var statusMap = map[string]domain.OrderStatus{
	"new":              domain.OrderStatusOpen,
	"open":             domain.OrderStatusOpen,
	"partially_filled": domain.OrderStatusPartiallyFilled,
	"filled":           domain.OrderStatusFilled,
	"canceled":         domain.OrderStatusCancelled,
	"cancelled":        domain.OrderStatusCancelled,
	"rejected":         domain.OrderStatusRejected,
}

func (j orderJSON) toOrder(symbol domain.Symbol, now time.Time) domain.Order {
	status, ok := statusMap[strings.ToLower(j.Status)]
	if !ok {
		status = domain.OrderStatusUnknown
	}
	o := domain.Order{
		Venue:     domain.VenueTabdeal,
		Symbol:    symbol,
		Side:      domain.Side(strings.ToLower(j.Side)),
		Type:      domain.OrderType(strings.ToLower(j.Type)),
		VenueID:   j.ID.String(),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.Quantity = parseDec(j.Amount)
	o.Price = parseDec(j.Price)
	o.FilledQty = parseDec(j.FilledAmount)
	o.AvgPrice = parseDec(j.AvgPrice)
	o.Fee = parseDec(j.Fee)
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

// PlaceOrder implements venue.Adapter. The JSON body carries the order; the
// signature over the canonical parameter encoding travels in the query.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if err := venue.ValidateOrderRequest(domain.VenueTabdeal, req); err != nil {
		return domain.Order{}, err
	}
	if err := c.requireAuth(req.Symbol); err != nil {
		return domain.Order{}, err
	}
	rendered, err := c.renderSymbol(req.Symbol)
	if err != nil {
		return domain.Order{}, err
	}

	params := url.Values{}
	params.Set("symbol", rendered)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("amount", venue.RenderDecimal(req.Quantity))
	if req.Type == domain.OrderTypeLimit {
		params.Set("price", venue.RenderDecimal(req.Price))
	}
	if req.PostOnly {
		params.Set("postOnly", "true")
	}

	payload := map[string]any{
		"symbol": rendered,
		"side":   string(req.Side),
		"type":   string(req.Type),
		"amount": venue.RenderDecimal(req.Quantity),
	}
	if req.Type == domain.OrderTypeLimit {
		payload["price"] = venue.RenderDecimal(req.Price)
	}
	if req.PostOnly {
		payload["postOnly"] = true
	}

	signed := c.sign(params)
	query := url.Values{}
	query.Set("timestamp", signed.Get("timestamp"))
	query.Set("signature", signed.Get("signature"))

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "POST",
		Path:   "/api/v1/orders",
		Query:  query,
		Build: func() ([]byte, map[string]string, error) {
			b, err := json.Marshal(payload)
			return b, map[string]string{"X-MBX-APIKEY": c.auth.Key}, err
		},
	})
	if err != nil {
		return domain.Order{}, err
	}

	var resp orderJSON
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("tabdeal: decode order response: %w", err)
	}
	if resp.ID.String() == "" {
		return domain.Order{}, &domain.VenueError{
			Venue: domain.VenueTabdeal, Symbol: req.Symbol.String(), Kind: domain.ErrKindBusiness,
			Message: "order response carried no id", Err: domain.ErrOrderRejected,
		}
	}

	order := resp.toOrder(req.Symbol, time.Now().UTC())
	order.Side = req.Side
	order.Type = req.Type
	order.PostOnly = req.PostOnly
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
	rendered, err := c.renderSymbol(symbol)
	if err != nil {
		return false, err
	}

	params := url.Values{}
	params.Set("symbol", rendered)

	_, _, err = c.transport.Do(ctx, venue.Request{
		Method: "DELETE",
		Path:   "/api/v1/orders/" + url.PathEscape(venueID),
		Query:  c.sign(params),
		Build: func() ([]byte, map[string]string, error) {
			return nil, map[string]string{"X-MBX-APIKEY": c.auth.Key}, nil
		},
	})
	if err != nil {
		if ve, ok := domain.AsVenueError(err); ok && ve.Err == domain.ErrOrderNotFound {
			// Idempotent cancel: verify the order is terminal before
			// claiming success.
			order, getErr := c.GetOrder(ctx, venueID, symbol)
			if getErr == nil && order.Status.Terminal() {
				return true, nil
			}
		}
		return false, err
	}
	return true, nil
}

// GetOrder implements venue.Adapter.
func (c *Client) GetOrder(ctx context.Context, venueID string, symbol domain.Symbol) (domain.Order, error) {
	if err := c.requireAuth(symbol); err != nil {
		return domain.Order{}, err
	}
	rendered, err := c.renderSymbol(symbol)
	if err != nil {
		return domain.Order{}, err
	}

	params := url.Values{}
	params.Set("symbol", rendered)

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/api/v1/orders/" + url.PathEscape(venueID),
		Query:  c.sign(params),
		Build: func() ([]byte, map[string]string, error) {
			return nil, map[string]string{"X-MBX-APIKEY": c.auth.Key}, nil
		},
	})
	if err != nil {
		return domain.Order{}, err
	}

	var resp orderJSON
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("tabdeal: decode order: %w", err)
	}
	return resp.toOrder(symbol, time.Now().UTC()), nil
}

// GetOpenOrders implements venue.Adapter.
func (c *Client) GetOpenOrders(ctx context.Context, symbol domain.Symbol) ([]domain.Order, error) {
	if err := c.requireAuth(symbol); err != nil {
		return nil, err
	}

	params := url.Values{}
	if !symbol.IsZero() {
		rendered, err := c.renderSymbol(symbol)
		if err != nil {
			return nil, err
		}
		params.Set("symbol", rendered)
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/api/v1/openOrders",
		Query:  c.sign(params),
		Build: func() ([]byte, map[string]string, error) {
			return nil, map[string]string{"X-MBX-APIKEY": c.auth.Key}, nil
		},
	})
	if err != nil {
		return nil, err
	}

	var resp []orderJSON
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tabdeal: decode open orders: %w", err)
	}

	now := time.Now().UTC()
	orders := make([]domain.Order, 0, len(resp))
	for _, j := range resp {
		sym := symbol
		if sym.IsZero() {
			parsed, err := domain.ParseSymbol(j.Symbol)
			if err != nil {
				continue
			}
			sym = parsed
		}
		orders = append(orders, j.toOrder(sym, now))
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
		Path:   "/api/v1/account/balances",
		Query:  c.sign(url.Values{}),
		Build: func() ([]byte, map[string]string, error) {
			return nil, map[string]string{"X-MBX-APIKEY": c.auth.Key}, nil
		},
	})
	if err != nil {
		return domain.Balance{}, err
	}

	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Balance{}, fmt.Errorf("tabdeal: decode balances: %w", err)
	}

	want := strings.ToUpper(currency)
	for _, b := range resp.Balances {
		if strings.ToUpper(b.Asset) != want {
			continue
		}
		return domain.Balance{
			Currency:  want,
			Available: parseDec(b.Free),
			Locked:    parseDec(b.Locked),
		}, nil
	}
	return domain.Balance{Currency: want}, nil
}
