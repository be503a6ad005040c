// Package nobitex implements the venue adapter for the Nobitex exchange.
// Nobitex authenticates with a bearer token ("Authorization: Token <t>"),
// quotes Iranian pairs as IRT and spells symbols without a separator.
package nobitex

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

// Client is the Nobitex venue adapter.
type Client struct {
	transport *venue.Transport
	token     string
	makerFee  decimal.Decimal
	takerFee  decimal.Decimal
	logger    *slog.Logger
}

// Config carries the adapter's construction parameters. Zero fee values
// fall back to the venue registry defaults.
type Config struct {
	BaseURL    string
	Token      string
	MakerFee   decimal.Decimal
	TakerFee   decimal.Decimal
	Retry      venue.RetryPolicy
	NetTimeout time.Duration
	Logger     *slog.Logger
}

// New creates a Nobitex adapter. An empty token leaves the adapter in
// read-only mode: public order books work, authenticated calls fail with
// ErrNotAuthenticated.
func New(cfg Config) *Client {
	spec := domain.VenueNobitex.Spec()
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
			Venue:             domain.VenueNobitex,
			BaseURL:           base,
			RequestsPerSecond: 10,
			Burst:             5,
			Retry:             cfg.Retry,
			NetTimeout:        cfg.NetTimeout,
			Logger:            logger,
		}),
		token:    cfg.Token,
		makerFee: maker,
		takerFee: taker,
		logger:   logger.With(slog.String("venue", "nobitex")),
	}
}

func (c *Client) Name() domain.Venue        { return domain.VenueNobitex }
func (c *Client) MakerFee() decimal.Decimal { return c.makerFee }
func (c *Client) TakerFee() decimal.Decimal { return c.takerFee }
func (c *Client) SupportsPostOnly() bool    { return true }
func (c *Client) IsAuthenticated() bool     { return c.token != "" }

func (c *Client) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Token " + c.token}
}

func (c *Client) requireAuth(sym domain.Symbol) error {
	if c.token == "" {
		return &domain.VenueError{
			Venue: domain.VenueNobitex, Symbol: sym.String(), Kind: domain.ErrKindAuth,
			Message: "no token configured", Err: domain.ErrNotAuthenticated,
		}
	}
	return nil
}

// orderbookResponse is the /v3/orderbook payload: price/amount pairs as
// decimal strings, bids descending, asks ascending.
type orderbookResponse struct {
	Status     string     `json:"status"`
	LastUpdate int64      `json:"lastUpdate"`
	Bids       [][]string `json:"bids"`
	Asks       [][]string `json:"asks"`
	Message    string     `json:"message"`
}

// FetchOrderBook implements venue.Adapter.
func (c *Client) FetchOrderBook(ctx context.Context, symbol domain.Symbol, depth int) (domain.OrderBook, error) {
	depth, err := venue.ClampDepth(domain.VenueNobitex, depth)
	if err != nil {
		return domain.OrderBook{}, err
	}
	rendered, err := domain.RenderSymbol(symbol, domain.VenueNobitex)
	if err != nil {
		return domain.OrderBook{}, &domain.VenueError{
			Venue: domain.VenueNobitex, Symbol: symbol.String(), Kind: domain.ErrKindInvalid,
			Message: err.Error(), Err: domain.ErrInvalidSymbol,
		}
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/v3/orderbook/" + rendered,
	})
	if err != nil {
		return domain.OrderBook{}, err
	}

	var resp orderbookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("nobitex: decode orderbook: %w", err)
	}
	if resp.Status != "ok" {
		return domain.OrderBook{}, c.apiError(symbol, resp.Message)
	}

	book := domain.OrderBook{
		Venue:     domain.VenueNobitex,
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Bids:      parseLevels(resp.Bids, depth),
		Asks:      parseLevels(resp.Asks, depth),
	}
	if err := book.Validate(); err != nil {
		return domain.OrderBook{}, fmt.Errorf("nobitex: %w", err)
	}
	return book, nil
}

func parseLevels(raw [][]string, depth int) []domain.BookLevel {
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

// orderEnvelope wraps the "order" object Nobitex returns from order calls.
type orderEnvelope struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Order   orderJSON `json:"order"`
	Orders  []orderJSON `json:"orders"`
}

type orderJSON struct {
	ID            int64  `json:"id"`
	Market        string `json:"market"`
	Type          string `json:"type"` // buy / sell
	OrderType     string `json:"orderType"`
	Amount        string `json:"amount"`
	Price         string `json:"price"`
	Status        string `json:"status"`
	MatchedAmount string `json:"matchedAmount"`
	AveragePrice  string `json:"averagePrice"`
	Fee           string `json:"fee"`
}

// statusMap translates Nobitex order states to the canonical lifecycle.
var statusMap = map[string]domain.OrderStatus{
	"Active":           domain.OrderStatusOpen,
	"Inactive":         domain.OrderStatusPending,
	"PartiallyMatched": domain.OrderStatusPartiallyFilled,
	"Matched":          domain.OrderStatusFilled,
	"Done":             domain.OrderStatusFilled,
	"Canceled":         domain.OrderStatusCancelled,
	"Rejected":         domain.OrderStatusRejected,
}

func (j orderJSON) toOrder(symbol domain.Symbol, now time.Time) domain.Order {
	status, ok := statusMap[j.Status]
	if !ok {
		status = domain.OrderStatusUnknown
	}
	o := domain.Order{
		Venue:     domain.VenueNobitex,
		Symbol:    symbol,
		Side:      domain.Side(strings.ToLower(j.Type)),
		Type:      domain.OrderType(strings.ToLower(j.OrderType)),
		VenueID:   fmt.Sprintf("%d", j.ID),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if o.Type == "" {
		o.Type = domain.OrderTypeLimit
	}
	o.Quantity = parseDec(j.Amount)
	o.Price = parseDec(j.Price)
	o.FilledQty = parseDec(j.MatchedAmount)
	o.AvgPrice = parseDec(j.AveragePrice)
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

// PlaceOrder implements venue.Adapter. Post-only requests go out as maker
// execution with the postOnly flag; market orders are always taker.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if err := venue.ValidateOrderRequest(domain.VenueNobitex, req); err != nil {
		return domain.Order{}, err
	}
	if err := c.requireAuth(req.Symbol); err != nil {
		return domain.Order{}, err
	}
	rendered, err := domain.RenderSymbol(req.Symbol, domain.VenueNobitex)
	if err != nil {
		return domain.Order{}, &domain.VenueError{
			Venue: domain.VenueNobitex, Symbol: req.Symbol.String(), Kind: domain.ErrKindInvalid,
			Message: err.Error(), Err: domain.ErrInvalidSymbol,
		}
	}

	execution := "taker"
	if req.PostOnly && req.Type == domain.OrderTypeLimit {
		execution = "maker"
	}
	payload := map[string]any{
		"type":      string(req.Side),
		"symbol":    rendered,
		"amount":    venue.RenderDecimal(req.Quantity),
		"execution": execution,
	}
	if req.Type == domain.OrderTypeLimit {
		payload["price"] = venue.RenderDecimal(req.Price)
		if req.PostOnly {
			payload["postOnly"] = true
		}
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method:  "POST",
		Path:    "/v2/orders/add",
		NoRetry: false,
		Build: func() ([]byte, map[string]string, error) {
			b, err := json.Marshal(payload)
			return b, c.authHeaders(), err
		},
	})
	if err != nil {
		return domain.Order{}, err
	}

	var resp orderEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("nobitex: decode order response: %w", err)
	}
	if resp.Status != "ok" {
		if strings.Contains(strings.ToLower(resp.Message), "balance") {
			return domain.Order{}, &domain.VenueError{
				Venue: domain.VenueNobitex, Symbol: req.Symbol.String(), Kind: domain.ErrKindBusiness,
				Message: resp.Message, Err: domain.ErrInsufficientBalance,
			}
		}
		return domain.Order{}, c.apiError(req.Symbol, resp.Message)
	}

	now := time.Now().UTC()
	order := resp.Order.toOrder(req.Symbol, now)
	order.Side = req.Side
	order.Type = req.Type
	order.Quantity = req.Quantity
	order.Price = req.Price
	order.PostOnly = req.PostOnly
	if order.Status == domain.OrderStatusUnknown {
		order.Status = domain.OrderStatusPending
	}
	return order, nil
}

// CancelOrder implements venue.Adapter. Cancelling a terminal order returns
// success, keeping the operation idempotent.
func (c *Client) CancelOrder(ctx context.Context, venueID string, symbol domain.Symbol) (bool, error) {
	if err := c.requireAuth(symbol); err != nil {
		return false, err
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "POST",
		Path:   "/v2/orders/" + url.PathEscape(venueID) + "/cancel",
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.authHeaders(), nil
		},
	})
	if err != nil {
		return false, err
	}

	var resp orderEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("nobitex: decode cancel response: %w", err)
	}
	if resp.Status != "ok" {
		// Already-terminal orders come back as a business "cannot cancel";
		// confirm via a status read and report success when terminal.
		order, getErr := c.GetOrder(ctx, venueID, symbol)
		if getErr == nil && order.Status.Terminal() {
			return true, nil
		}
		return false, c.apiError(symbol, resp.Message)
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
		Path:   "/v2/orders/" + url.PathEscape(venueID),
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.authHeaders(), nil
		},
	})
	if err != nil {
		return domain.Order{}, err
	}

	var resp orderEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("nobitex: decode order: %w", err)
	}
	if resp.Status != "ok" || resp.Order.ID == 0 {
		return domain.Order{}, &domain.VenueError{
			Venue: domain.VenueNobitex, Symbol: symbol.String(), Kind: domain.ErrKindBusiness,
			Message: resp.Message, Err: domain.ErrOrderNotFound,
		}
	}
	return resp.Order.toOrder(symbol, time.Now().UTC()), nil
}

// GetOpenOrders implements venue.Adapter.
func (c *Client) GetOpenOrders(ctx context.Context, symbol domain.Symbol) ([]domain.Order, error) {
	if err := c.requireAuth(symbol); err != nil {
		return nil, err
	}

	query := url.Values{}
	if !symbol.IsZero() {
		rendered, err := domain.RenderSymbol(symbol, domain.VenueNobitex)
		if err != nil {
			return nil, &domain.VenueError{
				Venue: domain.VenueNobitex, Symbol: symbol.String(), Kind: domain.ErrKindInvalid,
				Message: err.Error(), Err: domain.ErrInvalidSymbol,
			}
		}
		query.Set("market", rendered)
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/v2/orders/open",
		Query:  query,
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.authHeaders(), nil
		},
	})
	if err != nil {
		return nil, err
	}

	var resp orderEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("nobitex: decode open orders: %w", err)
	}
	if resp.Status != "ok" {
		return nil, c.apiError(symbol, resp.Message)
	}

	now := time.Now().UTC()
	orders := make([]domain.Order, 0, len(resp.Orders))
	for _, j := range resp.Orders {
		sym := symbol
		if sym.IsZero() {
			parsed, err := domain.ParseSymbol(j.Market)
			if err != nil {
				continue
			}
			sym = parsed
		}
		orders = append(orders, j.toOrder(sym, now))
	}
	return orders, nil
}

// walletsResponse is the /v2/wallets payload keyed by currency code.
type walletsResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Wallets map[string]struct {
		Balance string `json:"balance"`
		Blocked string `json:"blocked"`
	} `json:"wallets"`
}

// GetBalance implements venue.Adapter.
func (c *Client) GetBalance(ctx context.Context, currency string) (domain.Balance, error) {
	if err := c.requireAuth(domain.Symbol{}); err != nil {
		return domain.Balance{}, err
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/v2/wallets",
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.authHeaders(), nil
		},
	})
	if err != nil {
		return domain.Balance{}, err
	}

	var resp walletsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Balance{}, fmt.Errorf("nobitex: decode wallets: %w", err)
	}
	if resp.Status != "ok" {
		return domain.Balance{}, c.apiError(domain.Symbol{}, resp.Message)
	}

	want := strings.ToUpper(currency)
	for curr, w := range resp.Wallets {
		if strings.ToUpper(curr) != want {
			continue
		}
		return domain.Balance{
			Currency:  want,
			Available: parseDec(w.Balance),
			Locked:    parseDec(w.Blocked),
		}, nil
	}
	return domain.Balance{Currency: want}, nil
}

func (c *Client) apiError(symbol domain.Symbol, message string) error {
	if message == "" {
		message = "api error"
	}
	return &domain.VenueError{
		Venue: domain.VenueNobitex, Symbol: symbol.String(), Kind: domain.ErrKindBusiness,
		Message: message, Err: domain.ErrOrderRejected,
	}
}
