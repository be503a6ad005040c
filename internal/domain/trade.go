package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord links the two final orders of one execution attempt. It is
// created once both legs reach a terminal state, handed to the journal, and
// never retained by the core.
type TradeRecord struct {
	ID            string
	OpportunityID string
	Symbol        Symbol
	BuyVenue      Venue
	SellVenue     Venue

	BuyOrder  Order
	SellOrder Order

	// MatchedQty is min(buy fill, sell fill): the portion actually arbitraged.
	MatchedQty decimal.Decimal
	// NetProfit is the realised profit over the matched quantity, in quote
	// units, with the observed per-leg fees applied.
	NetProfit decimal.Decimal

	// ExposureQty and ExposureSide describe any residual directional
	// exposure (one leg filled more than the other). Zero when balanced.
	ExposureQty  decimal.Decimal
	ExposureSide Side
	ExposureCcy  string

	Result    string // executor result code
	Mode      string // journaling mode: realistic, paper, dry-run
	CreatedAt time.Time
}

// FeatureRecord captures the order-book features surrounding one leg, fed to
// the maker/taker advisor's training pipeline through the repository.
type FeatureRecord struct {
	Venue      Venue
	Symbol     Symbol
	Side       Side
	BestBid    decimal.Decimal
	BestAsk    decimal.Decimal
	SpreadBps  decimal.Decimal
	BidDepth   decimal.Decimal
	AskDepth   decimal.Decimal
	UsedMaker  bool
	Filled     bool
	RecordedAt time.Time
}
