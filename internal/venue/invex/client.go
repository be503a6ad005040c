// Package invex implements the venue adapter for the Invex exchange.
// Invex signs every authenticated call with RSA-PSS-SHA256 over the
// canonical sorted-key JSON of the request data, which always includes an
// expire_at timestamp in the venue's local-time convention; the hex
// signature is injected back into the body (or appended to the query for
// GETs). Iranian pairs quote as IRR, symbols use an underscore.
package invex

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

// expireTTL is how far in the future signed requests expire.
const expireTTL = 30 * time.Minute

// validDepths are the only depth values the market-depth endpoint accepts.
var validDepths = []int{5, 20, 50}

// Client is the Invex venue adapter.
type Client struct {
	transport *venue.Transport
	apiKey    string
	signer    *crypto.BodySigner
	makerFee  decimal.Decimal
	takerFee  decimal.Decimal
	logger    *slog.Logger
	now       func() time.Time
}

// Config carries the adapter's construction parameters. APISecret is the
// RSA private key (hex DER or PEM).
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

// New creates an Invex adapter. Empty or unparseable credentials leave the
// adapter in read-only mode.
func New(cfg Config) *Client {
	spec := domain.VenueInvex.Spec()
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

	var signer *crypto.BodySigner
	if cfg.APIKey != "" && cfg.APISecret != "" {
		loc, locErr := time.LoadLocation("Asia/Tehran")
		if locErr != nil {
			loc = time.Local
		}
		s, err := crypto.NewBodySigner(cfg.APISecret, loc)
		if err != nil {
			logger.Warn("invex: private key unusable, running read-only",
				slog.String("error", err.Error()))
		} else {
			signer = s
		}
	}

	return &Client{
		transport: venue.NewTransport(venue.TransportConfig{
			Venue:             domain.VenueInvex,
			BaseURL:           base,
			RequestsPerSecond: 5,
			Burst:             3,
			Retry:             cfg.Retry,
			NetTimeout:        cfg.NetTimeout,
			Logger:            logger,
		}),
		apiKey:   cfg.APIKey,
		signer:   signer,
		makerFee: maker,
		takerFee: taker,
		logger:   logger.With(slog.String("venue", "invex")),
		now:      time.Now,
	}
}

func (c *Client) Name() domain.Venue        { return domain.VenueInvex }
func (c *Client) MakerFee() decimal.Decimal { return c.makerFee }
func (c *Client) TakerFee() decimal.Decimal { return c.takerFee }
func (c *Client) SupportsPostOnly() bool    { return false }
func (c *Client) IsAuthenticated() bool     { return c.signer != nil }

func (c *Client) requireAuth(sym domain.Symbol) error {
	if c.signer == nil {
		return &domain.VenueError{
			Venue: domain.VenueInvex, Symbol: sym.String(), Kind: domain.ErrKindAuth,
			Message: "no signing key configured", Err: domain.ErrNotAuthenticated,
		}
	}
	return nil
}

func (c *Client) authHeaders() map[string]string {
	return map[string]string{"X-API-Key-Invex": c.apiKey}
}

// signedQuery signs the data map and renders it as query parameters with
// the signature appended, the venue's GET convention.
func (c *Client) signedQuery(data map[string]any) (url.Values, error) {
	data["expire_at"] = c.signer.ExpireAt(c.now(), expireTTL)
	_, sig, err := c.signer.SignBody(data)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	for k, v := range data {
		query.Set(k, fmt.Sprintf("%v", v))
	}
	query.Set("signature", sig)
	return query, nil
}

func (c *Client) renderSymbol(symbol domain.Symbol) (string, error) {
	rendered, err := domain.RenderSymbol(symbol, domain.VenueInvex)
	if err != nil {
		return "", &domain.VenueError{
			Venue: domain.VenueInvex, Symbol: symbol.String(), Kind: domain.ErrKindInvalid,
			Message: err.Error(), Err: domain.ErrInvalidSymbol,
		}
	}
	return rendered, nil
}

// clampInvexDepth rounds a depth request up to the next value the endpoint
// accepts (5, 20 or 50).
func clampInvexDepth(depth int) int {
	for _, d := range validDepths {
		if depth <= d {
			return d
		}
	}
	return validDepths[len(validDepths)-1]
}

type depthEntry struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// FetchOrderBook implements venue.Adapter. The market-depth endpoint is
// public.
func (c *Client) FetchOrderBook(ctx context.Context, symbol domain.Symbol, depth int) (domain.OrderBook, error) {
	depth, err := venue.ClampDepth(domain.VenueInvex, depth)
	if err != nil {
		return domain.OrderBook{}, err
	}
	rendered, err := c.renderSymbol(symbol)
	if err != nil {
		return domain.OrderBook{}, err
	}

	query := url.Values{}
	query.Set("symbol", rendered)
	query.Set("depth", fmt.Sprintf("%d", clampInvexDepth(depth)))

	body, _, err := c.transport.Do(ctx, venue.Request{Method: "GET", Path: "/market-depth", Query: query})
	if err != nil {
		return domain.OrderBook{}, err
	}

	var resp struct {
		BidOrders []depthEntry `json:"bid_orders"`
		AskOrders []depthEntry `json:"ask_orders"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("invex: decode market depth: %w", err)
	}

	book := domain.OrderBook{
		Venue:     domain.VenueInvex,
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Bids:      parseLevels(resp.BidOrders, depth),
		Asks:      parseLevels(resp.AskOrders, depth),
	}
	if err := book.Validate(); err != nil {
		return domain.OrderBook{}, fmt.Errorf("invex: %w", err)
	}
	return book, nil
}

func parseLevels(raw []depthEntry, depth int) []domain.BookLevel {
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

var statusMap = map[string]domain.OrderStatus{
	"NOT_FILLED":               domain.OrderStatusOpen,
	"PARTIALLY_FILLED":         domain.OrderStatusPartiallyFilled,
	"FULL_FILLED":              domain.OrderStatusFilled,
	"CANCELED_BY_USER":         domain.OrderStatusCancelled,
	"CANCELED_BY_MATCH_ENGINE": domain.OrderStatusCancelled,
	"REJECTED":                 domain.OrderStatusRejected,
}

type orderJSON struct {
	OrderID      json.Number `json:"order_id"`
	Symbol       string      `json:"symbol"`
	Side         string      `json:"side"` // BUYER / SELLER
	Type         string      `json:"type"` // LIMIT / MARKET_BY_AMOUNT
	Status       string      `json:"status"`
	Quantity     string      `json:"quantity"`
	Price        string      `json:"price"`
	DealQuantity string      `json:"deal_quantity"`
	DealPrice    string      `json:"deal_price"`
	Fee          string      `json:"fee"`
}

func (j orderJSON) toOrder(symbol domain.Symbol, now time.Time) domain.Order {
	status, ok := statusMap[j.Status]
	if !ok {
		status = domain.OrderStatusUnknown
	}
	side := domain.SideSell
	if j.Side == "BUYER" {
		side = domain.SideBuy
	}
	typ := domain.OrderTypeLimit
	if strings.HasPrefix(j.Type, "MARKET") {
		typ = domain.OrderTypeMarket
	}
	o := domain.Order{
		Venue:     domain.VenueInvex,
		Symbol:    symbol,
		Side:      side,
		Type:      typ,
		VenueID:   j.OrderID.String(),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.Quantity = parseDec(j.Quantity)
	o.Price = parseDec(j.Price)
	o.FilledQty = parseDec(j.DealQuantity)
	o.AvgPrice = parseDec(j.DealPrice)
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

// PlaceOrder implements venue.Adapter. The canonical payload (sorted keys,
// expire_at included) is signed before the signature key is added; the
// augmented body is what goes on the wire.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if err := venue.ValidateOrderRequest(domain.VenueInvex, req); err != nil {
		return domain.Order{}, err
	}
	if err := c.requireAuth(req.Symbol); err != nil {
		return domain.Order{}, err
	}
	rendered, err := c.renderSymbol(req.Symbol)
	if err != nil {
		return domain.Order{}, err
	}

	side := "SELLER"
	if req.Side == domain.SideBuy {
		side = "BUYER"
	}
	orderType := "LIMIT"
	if req.Type == domain.OrderTypeMarket {
		orderType = "MARKET_BY_AMOUNT"
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "POST",
		Path:   "/orders",
		Build: func() ([]byte, map[string]string, error) {
			payload := map[string]any{
				"symbol":    rendered,
				"side":      side,
				"type":      orderType,
				"quantity":  venue.RenderDecimal(req.Quantity),
				"expire_at": c.signer.ExpireAt(c.now(), expireTTL),
			}
			if req.Type == domain.OrderTypeLimit {
				payload["price"] = venue.RenderDecimal(req.Price)
			}
			signed, _, err := c.signer.SignBody(payload)
			return signed, c.authHeaders(), err
		},
	})
	if err != nil {
		return domain.Order{}, err
	}

	var resp struct {
		OrderID json.Number `json:"order_id"`
		ID      json.Number `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("invex: decode order response: %w", err)
	}
	venueID := resp.OrderID.String()
	if venueID == "" {
		venueID = resp.ID.String()
	}
	if venueID == "" {
		return domain.Order{}, &domain.VenueError{
			Venue: domain.VenueInvex, Symbol: req.Symbol.String(), Kind: domain.ErrKindBusiness,
			Message: "order response carried no id", Err: domain.ErrOrderRejected,
		}
	}

	now := time.Now().UTC()
	return domain.Order{
		Venue:     domain.VenueInvex,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Price:     req.Price,
		VenueID:   venueID,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CancelOrder implements venue.Adapter. The cancel body is signed the same
// way as placement.
func (c *Client) CancelOrder(ctx context.Context, venueID string, symbol domain.Symbol) (bool, error) {
	if err := c.requireAuth(symbol); err != nil {
		return false, err
	}
	rendered, err := c.renderSymbol(symbol)
	if err != nil {
		return false, err
	}

	_, _, err = c.transport.Do(ctx, venue.Request{
		Method: "DELETE",
		Path:   "/orders/" + url.PathEscape(venueID),
		Build: func() ([]byte, map[string]string, error) {
			payload := map[string]any{
				"symbol":    rendered,
				"expire_at": c.signer.ExpireAt(c.now(), expireTTL),
			}
			signed, _, err := c.signer.SignBody(payload)
			return signed, c.authHeaders(), err
		},
	})
	if err != nil {
		if ve, ok := domain.AsVenueError(err); ok && ve.Err == domain.ErrOrderNotFound {
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

	query, err := c.signedQuery(map[string]any{"order_id": venueID})
	if err != nil {
		return domain.Order{}, err
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/order",
		Query:  query,
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.authHeaders(), nil
		},
	})
	if err != nil {
		return domain.Order{}, err
	}

	var resp struct {
		Order orderJSON `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("invex: decode order: %w", err)
	}
	if resp.Order.OrderID.String() == "" {
		return domain.Order{}, &domain.VenueError{
			Venue: domain.VenueInvex, Symbol: symbol.String(), Kind: domain.ErrKindBusiness,
			Message: "order not found", Err: domain.ErrOrderNotFound,
		}
	}
	return resp.Order.toOrder(symbol, time.Now().UTC()), nil
}

// GetOpenOrders implements venue.Adapter.
func (c *Client) GetOpenOrders(ctx context.Context, symbol domain.Symbol) ([]domain.Order, error) {
	if err := c.requireAuth(symbol); err != nil {
		return nil, err
	}

	data := map[string]any{
		"status":    "NOT_FILLED",
		"page":      1,
		"page_size": 100,
	}
	if !symbol.IsZero() {
		rendered, err := c.renderSymbol(symbol)
		if err != nil {
			return nil, err
		}
		data["symbol"] = rendered
	}
	query, err := c.signedQuery(data)
	if err != nil {
		return nil, err
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/orders",
		Query:  query,
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.authHeaders(), nil
		},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Orders []orderJSON `json:"orders"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("invex: decode open orders: %w", err)
	}

	now := time.Now().UTC()
	orders := make([]domain.Order, 0, len(resp.Orders))
	for _, j := range resp.Orders {
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

// GetBalance implements venue.Adapter. The accounts endpoint is known to
// return 404 on some deployments; callers treat that as "balance unknown"
// rather than a connectivity failure.
func (c *Client) GetBalance(ctx context.Context, currency string) (domain.Balance, error) {
	if err := c.requireAuth(domain.Symbol{}); err != nil {
		return domain.Balance{}, err
	}

	query, err := c.signedQuery(map[string]any{"currency": strings.ToUpper(currency)})
	if err != nil {
		return domain.Balance{}, err
	}

	body, _, err := c.transport.Do(ctx, venue.Request{
		Method: "GET",
		Path:   "/accounts",
		Query:  query,
		Build: func() ([]byte, map[string]string, error) {
			return nil, c.authHeaders(), nil
		},
	})
	if err != nil {
		return domain.Balance{}, err
	}

	var resp struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
		Blocked   string `json:"blocked"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Balance{}, fmt.Errorf("invex: decode account: %w", err)
	}

	return domain.Balance{
		Currency:  strings.ToUpper(currency),
		Available: parseDec(resp.Available),
		Locked:    parseDec(resp.Blocked),
	}, nil
}
