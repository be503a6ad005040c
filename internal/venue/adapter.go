// Package venue defines the uniform adapter contract over heterogeneous
// trading venues and the shared transport (rate limiting, bounded retry,
// error classification) every concrete adapter is built on.
package venue

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/domain"
)

// Adapter is the uniform capability surface over one venue. Every operation
// is cancellable through its context; adapters never retry auth errors,
// malformed input, or business rejections.
type Adapter interface {
	Name() domain.Venue

	// FetchOrderBook returns a validated snapshot. depth is clamped to the
	// venue's supported cap; depth < 1 is an invalid-input error.
	FetchOrderBook(ctx context.Context, symbol domain.Symbol, depth int) (domain.OrderBook, error)

	// PlaceOrder submits an order. The returned order carries at least
	// PENDING status and, when the venue acknowledges synchronously, the
	// venue-assigned id.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error)

	// CancelOrder cancels by venue id. Cancelling an already-terminal order
	// is a no-op returning true.
	CancelOrder(ctx context.Context, venueID string, symbol domain.Symbol) (bool, error)

	// GetOrder returns the current state of an order by venue id.
	GetOrder(ctx context.Context, venueID string, symbol domain.Symbol) (domain.Order, error)

	// GetOpenOrders lists open orders, optionally filtered by symbol (zero
	// Symbol means all). Used for orphan recovery at startup.
	GetOpenOrders(ctx context.Context, symbol domain.Symbol) ([]domain.Order, error)

	// GetBalance returns the available and locked amounts of one currency.
	GetBalance(ctx context.Context, currency string) (domain.Balance, error)

	MakerFee() decimal.Decimal
	TakerFee() decimal.Decimal
	SupportsPostOnly() bool
	IsAuthenticated() bool
}

// Registry holds the constructed adapters for the session.
type Registry struct {
	adapters map[domain.Venue]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[domain.Venue]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for v.
func (r *Registry) Get(v domain.Venue) (Adapter, error) {
	a, ok := r.adapters[v]
	if !ok {
		return nil, fmt.Errorf("venue: no adapter registered for %s", v)
	}
	return a, nil
}

// Venues returns the registered venues in lexicographic order.
func (r *Registry) Venues() []domain.Venue {
	out := make([]domain.Venue, 0, len(r.adapters))
	for v := range r.adapters {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int { return len(r.adapters) }

// ValidateOrderRequest applies the input constraints shared by every
// adapter before any bytes hit the wire.
func ValidateOrderRequest(v domain.Venue, req domain.OrderRequest) error {
	if !req.Quantity.IsPositive() {
		return &domain.VenueError{
			Venue: v, Symbol: req.Symbol.String(), Kind: domain.ErrKindInvalid,
			Message: "quantity must be positive", Err: domain.ErrInvalidInput,
		}
	}
	if req.Type == domain.OrderTypeLimit && !req.Price.IsPositive() {
		return &domain.VenueError{
			Venue: v, Symbol: req.Symbol.String(), Kind: domain.ErrKindInvalid,
			Message: "limit orders require a positive price", Err: domain.ErrInvalidInput,
		}
	}
	return nil
}

// ClampDepth bounds a depth request to [1, venue cap]. Depth below 1 is an
// invalid-input error; anything above the cap is silently clamped.
func ClampDepth(v domain.Venue, depth int) (int, error) {
	if depth < 1 {
		return 0, &domain.VenueError{
			Venue: v, Kind: domain.ErrKindInvalid,
			Message: "depth must be >= 1", Err: domain.ErrInvalidInput,
		}
	}
	if cap := v.Spec().DepthCap; cap > 0 && depth > cap {
		return cap, nil
	}
	return depth, nil
}
