package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a derived, ephemeral assertion that buying on BuyVenue and
// simultaneously selling on SellVenue nets positive profit after fees. It is
// valid only while both source snapshots are within the staleness budget.
type Opportunity struct {
	ID        string
	Symbol    Symbol
	BuyVenue  Venue
	SellVenue Venue

	// Quantity is the executable size, bounded by top-of-book depth on both
	// sides and the position cap, truncated to the venue quantity step.
	Quantity decimal.Decimal

	BuyPrice    decimal.Decimal
	SellPrice   decimal.Decimal
	GrossSpread decimal.Decimal // (sell - buy) / buy
	BuyFee      decimal.Decimal // rate applied to the buy leg
	SellFee     decimal.Decimal // rate applied to the sell leg

	// NetProfitQuote is the expected profit in the symbol's quote currency;
	// NetProfitRef is the same converted to the reference currency.
	// Unconverted marks opportunities whose quote has no reference rate.
	NetProfitQuote decimal.Decimal
	NetProfitRef   decimal.Decimal
	Unconverted    bool

	BuyBookTime  time.Time
	SellBookTime time.Time
	DetectedAt   time.Time
}

// SnapshotAge returns the combined age of the two source snapshots at now,
// the detector's latency tie-break.
func (o Opportunity) SnapshotAge(now time.Time) time.Duration {
	return now.Sub(o.BuyBookTime) + now.Sub(o.SellBookTime)
}

// Fresh reports whether both source snapshots are still within maxAge.
func (o Opportunity) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(o.BuyBookTime) < maxAge && now.Sub(o.SellBookTime) < maxAge
}
