package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BookLevel is a single resting price level.
type BookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// OrderBook is an immutable snapshot of the resting bids and asks for one
// (venue, symbol) at a point in time. Bids descend, asks ascend; depth is
// bounded by the venue's cap. Consumers must not mutate the level slices.
type OrderBook struct {
	Venue     Venue
	Symbol    Symbol
	Bids      []BookLevel
	Asks      []BookLevel
	Timestamp time.Time
}

// BestBid returns the highest resting bid, or false when the side is empty.
func (b OrderBook) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest resting ask, or false when the side is empty.
func (b OrderBook) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// Age returns how old the snapshot is at now.
func (b OrderBook) Age(now time.Time) time.Duration {
	return now.Sub(b.Timestamp)
}

// Stale reports whether the snapshot has reached the staleness budget.
// A snapshot at exactly maxAge is stale.
func (b OrderBook) Stale(now time.Time, maxAge time.Duration) bool {
	return b.Age(now) >= maxAge
}

// Validate checks the snapshot invariants: strictly descending bids,
// strictly ascending asks, and positive price and quantity on every level.
func (b OrderBook) Validate() error {
	for i, lvl := range b.Bids {
		if !lvl.Price.IsPositive() || !lvl.Quantity.IsPositive() {
			return fmt.Errorf("bid level %d of %s@%s has non-positive price or quantity", i, b.Symbol, b.Venue)
		}
		if i > 0 && lvl.Price.GreaterThanOrEqual(b.Bids[i-1].Price) {
			return fmt.Errorf("bids of %s@%s not strictly descending at level %d", b.Symbol, b.Venue, i)
		}
	}
	for i, lvl := range b.Asks {
		if !lvl.Price.IsPositive() || !lvl.Quantity.IsPositive() {
			return fmt.Errorf("ask level %d of %s@%s has non-positive price or quantity", i, b.Symbol, b.Venue)
		}
		if i > 0 && lvl.Price.LessThanOrEqual(b.Asks[i-1].Price) {
			return fmt.Errorf("asks of %s@%s not strictly ascending at level %d", b.Symbol, b.Venue, i)
		}
	}
	return nil
}
