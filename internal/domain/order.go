package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether an order buys or sells the base currency.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderStatus tracks the order lifecycle as reported by the venue.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusUnknown         OrderStatus = "unknown"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// OrderRequest is what the caller asks an adapter to place. Price is
// required for limit orders. PostOnly is honoured only on venues that
// support it; adapters ignore it otherwise.
type OrderRequest struct {
	Symbol   Symbol
	Side     Side
	Type     OrderType
	Quantity decimal.Decimal
	Price    decimal.Decimal
	PostOnly bool
}

// Order is the live state of a submitted order. It is created by place and
// mutated only through ApplyUpdate with status-poll results; once terminal,
// only the update timestamp may still move.
type Order struct {
	Venue       Venue
	Symbol      Symbol
	Side        Side
	Type        OrderType
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	VenueID     string // empty until the venue acknowledges
	Status      OrderStatus
	FilledQty   decimal.Decimal
	AvgPrice    decimal.Decimal
	Fee         decimal.Decimal
	PostOnly    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ApplyUpdate folds a status-poll result into the order. Terminal states
// never regress: updates against a terminal order only refresh UpdatedAt.
// It returns true when anything other than the timestamp changed.
func (o *Order) ApplyUpdate(update Order, now time.Time) bool {
	o.UpdatedAt = now
	if o.Status.Terminal() {
		return false
	}

	changed := false
	if update.Status != "" && update.Status != OrderStatusUnknown && update.Status != o.Status {
		o.Status = update.Status
		changed = true
	}
	if update.VenueID != "" && o.VenueID == "" {
		o.VenueID = update.VenueID
		changed = true
	}
	if update.FilledQty.GreaterThan(o.FilledQty) {
		o.FilledQty = update.FilledQty
		changed = true
	}
	if update.AvgPrice.IsPositive() && !update.AvgPrice.Equal(o.AvgPrice) {
		o.AvgPrice = update.AvgPrice
		changed = true
	}
	if update.Fee.IsPositive() && !update.Fee.Equal(o.Fee) {
		o.Fee = update.Fee
		changed = true
	}
	return changed
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQty)
}

// Balance is the available and locked amount of one currency on a venue.
type Balance struct {
	Currency  string
	Available decimal.Decimal
	Locked    decimal.Decimal
}

// Total returns available plus locked.
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}
