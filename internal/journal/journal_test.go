package journal

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/faridmah/arbot/internal/domain"
)

type failingStores struct{ calls int }

func (f *failingStores) RecordOrder(ctx context.Context, o domain.Order, mode string) error {
	f.calls++
	return errors.New("database gone")
}

func (f *failingStores) RecordTrade(ctx context.Context, t domain.TradeRecord) error {
	f.calls++
	return errors.New("database gone")
}

func (f *failingStores) RecordFeatures(ctx context.Context, r domain.FeatureRecord, mode string) error {
	f.calls++
	return errors.New("database gone")
}

// Store failures are swallowed: journaling never alters a trade outcome.
func TestJournalSwallowsStoreFailures(t *testing.T) {
	stores := &failingStores{}
	j := New(stores, stores, stores, "realistic", slog.Default())

	ctx := context.Background()
	j.RecordOrder(ctx, domain.Order{Venue: domain.VenueNobitex, VenueID: "1"})
	j.RecordTrade(ctx, domain.TradeRecord{ID: "t1", MatchedQty: decimal.Zero, CreatedAt: time.Now()})
	j.RecordFeatures(ctx, domain.FeatureRecord{Venue: domain.VenueNobitex})

	assert.Equal(t, 3, stores.calls, "every record reached its store")
}

// With no stores wired (dry-run), records go to the log only.
func TestJournalDryRun(t *testing.T) {
	j := New(nil, nil, nil, "dry-run", slog.Default())
	ctx := context.Background()
	j.RecordOrder(ctx, domain.Order{})
	j.RecordTrade(ctx, domain.TradeRecord{MatchedQty: decimal.Zero, NetProfit: decimal.Zero})
	j.RecordFeatures(ctx, domain.FeatureRecord{})
}
