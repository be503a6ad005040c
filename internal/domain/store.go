package domain

import "context"

// OrderStore is the append-only journaling surface for order state. The core
// writes through it on placement, every status change, and cancellation;
// reads are out of scope.
type OrderStore interface {
	RecordOrder(ctx context.Context, o Order, mode string) error
}

// TradeStore persists completed trade records.
type TradeStore interface {
	RecordTrade(ctx context.Context, t TradeRecord) error
}

// FeatureStore persists order-book feature rows for advisor retraining.
type FeatureStore interface {
	RecordFeatures(ctx context.Context, f FeatureRecord, mode string) error
}
