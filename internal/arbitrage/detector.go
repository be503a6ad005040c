// Package arbitrage detects cross-venue arbitrage opportunities from fresh
// order-book snapshots: fee- and depth-aware profit scoring over every
// ordered venue pair with compatible symbols.
package arbitrage

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/domain"
)

// Fees reports the fee rates for one venue. The venue registry satisfies it
// through a thin wrapper; tests inject fixtures.
type Fees interface {
	MakerFee(v domain.Venue) decimal.Decimal
	TakerFee(v domain.Venue) decimal.Decimal
}

// Config holds the detector thresholds. Percent fields are fractions of one
// (0.003 = 0.3%).
type Config struct {
	MinSpread       decimal.Decimal // minimum gross spread
	MinProfitRef    decimal.Decimal // minimum net profit in reference units
	MinOrderSize    decimal.Decimal // opportunities sized below this are dropped
	MaxPositionSize decimal.Decimal // per-opportunity quantity cap, base units
	QuantityStep    decimal.Decimal // venue quantity step; sizes truncate to it
	MaxAge          time.Duration   // staleness budget for input snapshots

	// TakerOnly overrides the default pessimistic fee assumption
	// (max(maker, taker) per leg) with plain taker fees. The executor later
	// recomputes with the fee class it actually uses.
	TakerOnly bool
}

// Detector enumerates opportunities across venues.
type Detector struct {
	fees   Fees
	rates  *RateTable
	cfg    Config
	logger *slog.Logger
}

// New creates a Detector.
func New(fees Fees, rates *RateTable, cfg Config, logger *slog.Logger) *Detector {
	if cfg.QuantityStep.IsZero() {
		cfg.QuantityStep = decimal.New(1, -8)
	}
	return &Detector{
		fees:   fees,
		rates:  rates,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// legFee returns the fee rate the detector assumes for a leg.
func (d *Detector) legFee(v domain.Venue) decimal.Decimal {
	taker := d.fees.TakerFee(v)
	if d.cfg.TakerOnly {
		return taker
	}
	if maker := d.fees.MakerFee(v); maker.GreaterThan(taker) {
		return maker
	}
	return taker
}

// FindOpportunities scans every ordered pair of venues holding a snapshot
// for sym and returns the surviving opportunities ranked best-first. Stale
// snapshots are rejected here rather than rewritten.
func (d *Detector) FindOpportunities(now time.Time, sym domain.Symbol, books map[domain.Venue]domain.OrderBook) []domain.Opportunity {
	fresh := make(map[domain.Venue]domain.OrderBook, len(books))
	for v, book := range books {
		if d.cfg.MaxAge > 0 && book.Stale(now, d.cfg.MaxAge) {
			continue
		}
		if !domain.Compatible(book.Symbol, sym) {
			continue
		}
		fresh[v] = book
	}
	if len(fresh) < 2 {
		return nil
	}

	venues := make([]domain.Venue, 0, len(fresh))
	for v := range fresh {
		venues = append(venues, v)
	}
	sort.Slice(venues, func(i, j int) bool { return venues[i] < venues[j] })

	var opps []domain.Opportunity
	for _, buyVenue := range venues {
		for _, sellVenue := range venues {
			if buyVenue == sellVenue {
				continue
			}
			if opp, ok := d.evaluate(now, sym, buyVenue, sellVenue, fresh[buyVenue], fresh[sellVenue]); ok {
				opps = append(opps, opp)
			}
		}
	}

	rank(opps, now)
	return opps
}

// evaluate scores one ordered (buy, sell) pair.
func (d *Detector) evaluate(now time.Time, sym domain.Symbol, buyVenue, sellVenue domain.Venue, buyBook, sellBook domain.OrderBook) (domain.Opportunity, bool) {
	ask, okAsk := buyBook.BestAsk()
	bid, okBid := sellBook.BestBid()
	if !okAsk || !okBid {
		return domain.Opportunity{}, false
	}

	// Must be able to buy below where we sell.
	if ask.Price.GreaterThanOrEqual(bid.Price) {
		return domain.Opportunity{}, false
	}

	// Executable size: bounded by depth on both sides and the position cap,
	// truncated toward zero at the quantity step.
	qty := decimal.Min(ask.Quantity, bid.Quantity)
	if d.cfg.MaxPositionSize.IsPositive() {
		qty = decimal.Min(qty, d.cfg.MaxPositionSize)
	}
	qty = qty.Div(d.cfg.QuantityStep).Truncate(0).Mul(d.cfg.QuantityStep)
	if !qty.IsPositive() {
		return domain.Opportunity{}, false
	}
	// A top level too thin to carry the minimum order size is dropped
	// entirely, never partially accepted.
	if d.cfg.MinOrderSize.IsPositive() && qty.LessThan(d.cfg.MinOrderSize) {
		return domain.Opportunity{}, false
	}

	spread := bid.Price.Sub(ask.Price).Div(ask.Price)
	if spread.LessThan(d.cfg.MinSpread) {
		return domain.Opportunity{}, false
	}

	buyFee := d.legFee(buyVenue)
	sellFee := d.legFee(sellVenue)

	one := decimal.NewFromInt(1)
	netQuote := qty.Mul(bid.Price.Mul(one.Sub(sellFee)).Sub(ask.Price.Mul(one.Add(buyFee))))

	netRef, converted := d.rates.Convert(sym.QuoteCurrency(), netQuote)
	if !netRef.GreaterThan(d.cfg.MinProfitRef) {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		ID:             uuid.New().String(),
		Symbol:         sym,
		BuyVenue:       buyVenue,
		SellVenue:      sellVenue,
		Quantity:       qty,
		BuyPrice:       ask.Price,
		SellPrice:      bid.Price,
		GrossSpread:    spread,
		BuyFee:         buyFee,
		SellFee:        sellFee,
		NetProfitQuote: netQuote,
		NetProfitRef:   netRef,
		Unconverted:    !converted,
		BuyBookTime:    buyBook.Timestamp,
		SellBookTime:   sellBook.Timestamp,
		DetectedAt:     now,
	}, true
}

// rank orders opportunities by net profit descending, ties broken by lower
// combined snapshot age, then lexicographic (buy venue, sell venue).
func rank(opps []domain.Opportunity, now time.Time) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if !a.NetProfitRef.Equal(b.NetProfitRef) {
			return a.NetProfitRef.GreaterThan(b.NetProfitRef)
		}
		ageA, ageB := a.SnapshotAge(now), b.SnapshotAge(now)
		if ageA != ageB {
			return ageA < ageB
		}
		if a.BuyVenue != b.BuyVenue {
			return a.BuyVenue < b.BuyVenue
		}
		return a.SellVenue < b.SellVenue
	})
}
