package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// AdvisorFeatures summarises the order book around one prospective leg.
type AdvisorFeatures struct {
	Venue     Venue
	Symbol    Symbol
	Side      Side
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	SpreadBps decimal.Decimal
	BidDepth  decimal.Decimal
	AskDepth  decimal.Decimal
}

// MakerAdvice is the advisor's recommendation for one leg.
type MakerAdvice struct {
	UseMaker   bool
	Confidence float64
	// PredictedFillPrice is zero when the advisor offers no price forecast.
	PredictedFillPrice decimal.Decimal
}

// MakerAdvisor predicts whether a leg should be placed as a post-only maker
// order. Advisors are optional and advisory: any error from AdviseMaker must
// be treated as "use taker" by the caller, never as a fatal condition.
type MakerAdvisor interface {
	AdviseMaker(ctx context.Context, f AdvisorFeatures) (MakerAdvice, error)
}
