// Package executor turns detected opportunities into matched dual-leg
// executions: freshness recheck, risk gate, advisor consultation,
// concurrent placement, poll-to-fill, orphan cancellation, compensation and
// journaling.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/domain"
	"github.com/faridmah/arbot/internal/risk"
	"github.com/faridmah/arbot/internal/venue"
)

// Journal is the executor's write-through sink; implementations swallow
// their own failures.
type Journal interface {
	RecordOrder(ctx context.Context, o domain.Order)
	RecordTrade(ctx context.Context, t domain.TradeRecord)
	RecordFeatures(ctx context.Context, f domain.FeatureRecord)
}

// Config holds the executor's timing and threshold parameters.
type Config struct {
	PollInterval  time.Duration
	TotalDeadline time.Duration
	NetTimeout    time.Duration
	MaxAge        time.Duration
	// Refetch re-reads both books before placing and rejects with
	// spread_collapsed when the recomputed profit falls through the floor.
	Refetch      bool
	MinProfitRef decimal.Decimal
	// SlippageTolerance bounds how far the live top of book may have moved
	// from the opportunity price before a leg placement is abandoned.
	SlippageTolerance decimal.Decimal
	Mode              string
}

// Executor places and settles dual-leg arbitrage executions.
type Executor struct {
	registry *venue.Registry
	risk     *risk.Manager
	advisor  domain.MakerAdvisor // nil = always taker
	journal  Journal
	rates    interface {
		Convert(quote string, amount decimal.Decimal) (decimal.Decimal, bool)
	}
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	dedup  *Dedup

	advisorWarnings atomic.Int64
	makerDowngrades atomic.Int64

	// ordersMu guards the in-flight order registry; it is held only for
	// insert/lookup/update, never across I/O.
	ordersMu sync.Mutex
	orders   map[string]*domain.Order
}

// New creates an Executor. advisor may be nil.
func New(registry *venue.Registry, riskMgr *risk.Manager, advisor domain.MakerAdvisor, journal Journal, rates interface {
	Convert(quote string, amount decimal.Decimal) (decimal.Decimal, bool)
}, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{
		registry: registry,
		risk:     riskMgr,
		advisor:  advisor,
		journal:  journal,
		rates:    rates,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "executor")),
		now:      time.Now,
		dedup:    NewDedup(2 * time.Minute),
		orders:   make(map[string]*domain.Order),
	}
}

// AdvisorWarnings returns how many advisor consultations failed and fell
// back to taker.
func (e *Executor) AdvisorWarnings() int64 { return e.advisorWarnings.Load() }

// MakerDowngrades returns how many maker requests were downgraded because
// the venue does not honour post-only.
func (e *Executor) MakerDowngrades() int64 { return e.makerDowngrades.Load() }

// leg is the executor-side state of one side of the execution.
type leg struct {
	side       domain.Side
	venueName  domain.Venue
	adapter    venue.Adapter
	price      decimal.Decimal
	useMaker   bool
	downgraded bool
	feeRate    decimal.Decimal

	order    *domain.Order
	placeErr error
}

// Execute runs the full execution protocol for opp and returns one of the
// enumerated results. Cancelling ctx tears down polling, issues best-effort
// cancels for acknowledged legs, and yields ResultCancelled.
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity) Result {
	log := e.logger.With(
		slog.String("opp_id", opp.ID),
		slog.String("symbol", opp.Symbol.String()),
		slog.String("buy_venue", string(opp.BuyVenue)),
		slog.String("sell_venue", string(opp.SellVenue)),
	)

	buyAdapter, err := e.registry.Get(opp.BuyVenue)
	if err != nil {
		return Result{Code: ResultFailed, Reason: ReasonInternal, Detail: err.Error()}
	}
	sellAdapter, err := e.registry.Get(opp.SellVenue)
	if err != nil {
		return Result{Code: ResultFailed, Reason: ReasonInternal, Detail: err.Error()}
	}

	// 1. Freshness recheck.
	now := e.now()
	if !opp.Fresh(now, e.cfg.MaxAge) {
		return Result{Code: ResultRejected, Reason: ReasonStale,
			Detail: fmt.Sprintf("snapshots older than %s", e.cfg.MaxAge)}
	}
	if e.cfg.Refetch {
		if res, collapsed := e.recheckSpread(ctx, &opp, buyAdapter, sellAdapter); collapsed {
			return res
		}
	}

	// 2. Risk gate.
	if err := e.risk.CheckTrade(ctx, opp, buyAdapter, sellAdapter); err != nil {
		var rej *risk.Rejection
		if errors.As(err, &rej) {
			log.Warn("risk gate rejected opportunity",
				slog.String("reason", rej.Reason),
				slog.String("detail", rej.Detail),
			)
			return Result{Code: ResultRejected, Reason: rej.Reason, Detail: rej.Detail}
		}
		return Result{Code: ResultRejected, Reason: ReasonInternal, Detail: err.Error()}
	}

	// 3. Advisor consultation, with silent taker downgrade where the venue
	// cannot honour post-only.
	buyLeg := &leg{side: domain.SideBuy, venueName: opp.BuyVenue, adapter: buyAdapter, price: opp.BuyPrice}
	sellLeg := &leg{side: domain.SideSell, venueName: opp.SellVenue, adapter: sellAdapter, price: opp.SellPrice}
	e.consultAdvisor(ctx, opp, buyLeg)
	e.consultAdvisor(ctx, opp, sellLeg)
	buyLeg.feeRate = feeFor(buyAdapter, buyLeg.useMaker)
	sellLeg.feeRate = feeFor(sellAdapter, sellLeg.useMaker)

	// A replayed opportunity never trades twice: the ID is claimed exactly
	// once, here, after the checks that leave no orders behind.
	if e.dedup.IsDuplicate(opp.ID) {
		return Result{Code: ResultRejected, Reason: ReasonDuplicate,
			Detail: "opportunity already executed"}
	}
	e.dedup.Cleanup()

	// 4. Concurrent placement: both legs submitted before either is polled.
	var wg sync.WaitGroup
	for _, l := range []*leg{buyLeg, sellLeg} {
		wg.Add(1)
		go func(l *leg) {
			defer wg.Done()
			e.placeLeg(ctx, opp, l)
		}(l)
	}
	wg.Wait()

	if ctx.Err() != nil {
		e.teardown(buyLeg, sellLeg)
		return Result{Code: ResultCancelled, Reason: "context_cancelled", Detail: ctx.Err().Error()}
	}

	buyAcked := buyLeg.order != nil
	sellAcked := sellLeg.order != nil
	switch {
	case !buyAcked && !sellAcked:
		detail := "both legs failed to place"
		if buyLeg.placeErr != nil && sellLeg.placeErr != nil {
			detail = fmt.Sprintf("buy: %v; sell: %v", buyLeg.placeErr, sellLeg.placeErr)
		}
		log.Warn("execution failed on placement", slog.String("detail", detail))
		return Result{Code: ResultFailed, Reason: ReasonBothRejected, Detail: detail}

	case buyAcked != sellAcked:
		// One orphan leg: cancel it and settle whatever already filled.
		orphan := buyLeg
		failed := sellLeg
		if sellAcked {
			orphan, failed = sellLeg, buyLeg
		}
		log.Warn("one leg failed to place, cancelling orphan",
			slog.String("orphan_venue", string(orphan.venueName)),
			slog.String("error", fmt.Sprintf("%v", failed.placeErr)),
		)
		e.cancelUntilSettled(ctx, orphan)
		return e.reconcile(ctx, opp, buyLeg, sellLeg, ResultPartial)
	}

	// 5. Fill polling until both legs are terminal or the deadline lapses.
	timedOut := e.pollToTerminal(ctx, buyLeg, sellLeg)
	if ctx.Err() != nil {
		e.teardown(buyLeg, sellLeg)
		return Result{Code: ResultCancelled, Reason: "context_cancelled", Detail: ctx.Err().Error()}
	}

	if timedOut {
		// 6b/6c. Deadline: cancel whatever is still open, then settle on
		// the final fills.
		for _, l := range []*leg{buyLeg, sellLeg} {
			if l.order != nil && !l.order.Status.Terminal() {
				e.cancelUntilSettled(ctx, l)
			}
		}
		if legFill(buyLeg).IsZero() && legFill(sellLeg).IsZero() {
			res := e.reconcile(ctx, opp, buyLeg, sellLeg, ResultTimeout)
			res.Code = ResultTimeout
			res.Reason = "deadline_elapsed"
			return res
		}
		return e.reconcile(ctx, opp, buyLeg, sellLeg, ResultPartial)
	}

	return e.reconcile(ctx, opp, buyLeg, sellLeg, ResultSuccess)
}

// recheckSpread re-fetches both top-of-book levels and recomputes the net
// profit; a collapse below the floor rejects before any order is placed.
func (e *Executor) recheckSpread(ctx context.Context, opp *domain.Opportunity, buy, sell venue.Adapter) (Result, bool) {
	buyBook, err1 := buy.FetchOrderBook(ctx, opp.Symbol, 1)
	sellBook, err2 := sell.FetchOrderBook(ctx, opp.Symbol, 1)
	if err1 != nil || err2 != nil {
		// The risk gate and placement still guard the trade; a failed
		// recheck is not itself fatal.
		return Result{}, false
	}
	ask, okAsk := buyBook.BestAsk()
	bid, okBid := sellBook.BestBid()
	if !okAsk || !okBid {
		return Result{Code: ResultRejected, Reason: ReasonSpreadCollapsed, Detail: "book side emptied"}, true
	}

	one := decimal.NewFromInt(1)
	qty := decimal.Min(opp.Quantity, decimal.Min(ask.Quantity, bid.Quantity))
	netQuote := qty.Mul(bid.Price.Mul(one.Sub(opp.SellFee)).Sub(ask.Price.Mul(one.Add(opp.BuyFee))))
	netRef, _ := e.rates.Convert(opp.Symbol.QuoteCurrency(), netQuote)
	if !netRef.GreaterThan(e.cfg.MinProfitRef) {
		return Result{Code: ResultRejected, Reason: ReasonSpreadCollapsed,
			Detail: fmt.Sprintf("recomputed profit %s below floor %s", netRef, e.cfg.MinProfitRef)}, true
	}

	// Trade against the refreshed books.
	opp.Quantity = qty
	opp.BuyPrice = ask.Price
	opp.SellPrice = bid.Price
	opp.NetProfitQuote = netQuote
	opp.NetProfitRef = netRef
	opp.BuyBookTime = buyBook.Timestamp
	opp.SellBookTime = sellBook.Timestamp
	return Result{}, false
}

// consultAdvisor decides maker vs taker for one leg. Advisor absence or
// failure means taker; a maker verdict on a venue without post-only is
// silently downgraded and counted.
func (e *Executor) consultAdvisor(ctx context.Context, opp domain.Opportunity, l *leg) {
	if e.advisor == nil {
		return
	}

	features := domain.AdvisorFeatures{
		Venue:  l.venueName,
		Symbol: opp.Symbol,
		Side:   l.side,
	}
	if l.side == domain.SideBuy {
		features.BestAsk = opp.BuyPrice
	} else {
		features.BestBid = opp.SellPrice
	}
	if opp.BuyPrice.IsPositive() {
		features.SpreadBps = opp.GrossSpread.Mul(decimal.NewFromInt(10_000))
	}

	advice, err := e.advisor.AdviseMaker(ctx, features)
	if err != nil {
		e.advisorWarnings.Add(1)
		e.logger.Warn("advisor failed, defaulting to taker",
			slog.String("venue", string(l.venueName)),
			slog.String("error", err.Error()),
		)
		return
	}
	if !advice.UseMaker {
		return
	}
	if !l.adapter.SupportsPostOnly() {
		e.makerDowngrades.Add(1)
		l.downgraded = true
		e.logger.Info("maker advice downgraded to taker",
			slog.String("venue", string(l.venueName)),
		)
		return
	}
	l.useMaker = true
	if advice.PredictedFillPrice.IsPositive() {
		// A predicted fill must never cross the opportunity out of profit.
		if l.side == domain.SideBuy && advice.PredictedFillPrice.LessThan(l.price) {
			l.price = advice.PredictedFillPrice
		}
		if l.side == domain.SideSell && advice.PredictedFillPrice.GreaterThan(l.price) {
			l.price = advice.PredictedFillPrice
		}
	}
}

func feeFor(a venue.Adapter, maker bool) decimal.Decimal {
	if maker {
		return a.MakerFee()
	}
	return a.TakerFee()
}

// placeLeg checks slippage against the live top of book and submits the
// order. The adapter's transport owns transient retry; business rejections
// surface immediately.
func (e *Executor) placeLeg(ctx context.Context, opp domain.Opportunity, l *leg) {
	if e.cfg.SlippageTolerance.IsPositive() {
		if book, err := l.adapter.FetchOrderBook(ctx, opp.Symbol, 1); err == nil {
			var live decimal.Decimal
			if l.side == domain.SideBuy {
				if ask, ok := book.BestAsk(); ok {
					live = ask.Price
				}
			} else {
				if bid, ok := book.BestBid(); ok {
					live = bid.Price
				}
			}
			if live.IsPositive() {
				drift := live.Sub(l.price).Abs().Div(l.price)
				if drift.GreaterThan(e.cfg.SlippageTolerance) {
					l.placeErr = fmt.Errorf("%w: price drifted %s beyond tolerance %s",
						domain.ErrOrderRejected, drift, e.cfg.SlippageTolerance)
					return
				}
			}
		}
	}

	order, err := l.adapter.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:   opp.Symbol,
		Side:     l.side,
		Type:     domain.OrderTypeLimit,
		Quantity: opp.Quantity,
		Price:    l.price,
		PostOnly: l.useMaker,
	})
	e.risk.ObserveVenueResult(l.venueName, err)
	if err != nil {
		l.placeErr = err
		return
	}

	l.order = &order
	e.trackOrder(&order)
	if e.journal != nil {
		e.journal.RecordOrder(ctx, order)
	}
}

// pollToTerminal polls both legs until terminal or deadline. Returns true
// when the deadline lapsed first.
func (e *Executor) pollToTerminal(ctx context.Context, legs ...*leg) (timedOut bool) {
	deadline := e.now().Add(e.cfg.TotalDeadline)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		allTerminal := true
		for _, l := range legs {
			if l.order == nil {
				continue
			}
			if l.order.Status.Terminal() {
				continue
			}
			e.pollOnce(ctx, l)
			if !l.order.Status.Terminal() {
				allTerminal = false
			}
		}
		if allTerminal {
			return false
		}
		if e.now().After(deadline) {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// pollOnce refreshes one leg's order state. Status transitions are
// monotonic: ApplyUpdate ignores regressions from terminal states.
func (e *Executor) pollOnce(ctx context.Context, l *leg) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.NetTimeout)
	defer cancel()

	update, err := l.adapter.GetOrder(callCtx, l.order.VenueID, l.order.Symbol)
	e.risk.ObserveVenueResult(l.venueName, err)
	if err != nil {
		e.logger.Warn("order poll failed",
			slog.String("venue", string(l.venueName)),
			slog.String("venue_id", l.order.VenueID),
			slog.String("error", err.Error()),
		)
		return
	}

	e.ordersMu.Lock()
	changed := l.order.ApplyUpdate(update, e.now())
	e.ordersMu.Unlock()

	if changed && e.journal != nil {
		e.journal.RecordOrder(ctx, *l.order)
	}
}

// cancelUntilSettled cancels a leg, retrying up to five attempts in all
// until the venue reports the order absent or terminal. An order still live
// after the fifth attempt is left in the state last read.
func (e *Executor) cancelUntilSettled(ctx context.Context, l *leg) {
	if l.order == nil || l.order.VenueID == "" {
		return
	}
	const attempts = 5
	for i := 0; i < attempts; i++ {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.NetTimeout)
		ok, err := l.adapter.CancelOrder(callCtx, l.order.VenueID, l.order.Symbol)
		cancel()
		e.risk.ObserveVenueResult(l.venueName, err)

		if err != nil {
			if ve, isVe := domain.AsVenueError(err); isVe && errors.Is(ve.Err, domain.ErrOrderNotFound) {
				break
			}
		}

		// Read back the final state; the cancel may have raced a fill.
		e.pollOnce(ctx, l)
		if ok || l.order.Status.Terminal() {
			if !l.order.Status.Terminal() {
				e.ordersMu.Lock()
				l.order.ApplyUpdate(domain.Order{Status: domain.OrderStatusCancelled}, e.now())
				e.ordersMu.Unlock()
			}
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.cfg.PollInterval):
		}
	}
	if e.journal != nil {
		e.journal.RecordOrder(ctx, *l.order)
	}
}

// teardown issues best-effort cancels with a detached short-lived context,
// used when the execution itself was cancelled.
func (e *Executor) teardown(legs ...*leg) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, l := range legs {
		if l.order != nil && !l.order.Status.Terminal() {
			e.cancelUntilSettled(ctx, l)
		}
	}
}

func legFill(l *leg) decimal.Decimal {
	if l.order == nil {
		return decimal.Zero
	}
	return l.order.FilledQty
}

func legPrice(l *leg) decimal.Decimal {
	if l.order == nil {
		return decimal.Zero
	}
	if l.order.AvgPrice.IsPositive() {
		return l.order.AvgPrice
	}
	return l.order.Price
}

// reconcile settles the execution: matched quantity, residual exposure,
// realised profit, risk tracking and journaling. hint selects the result
// family for the balanced cases.
func (e *Executor) reconcile(ctx context.Context, opp domain.Opportunity, buyLeg, sellLeg *leg, hint ResultCode) Result {
	buyFill := legFill(buyLeg)
	sellFill := legFill(sellLeg)
	matched := decimal.Min(buyFill, sellFill)

	one := decimal.NewFromInt(1)
	var realised decimal.Decimal
	if matched.IsPositive() {
		buyCost := legPrice(buyLeg).Mul(matched).Mul(one.Add(buyLeg.feeRate))
		sellRevenue := legPrice(sellLeg).Mul(matched).Mul(one.Sub(sellLeg.feeRate))
		realised = sellRevenue.Sub(buyCost)
	}

	trade := domain.TradeRecord{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Symbol:        opp.Symbol,
		BuyVenue:      opp.BuyVenue,
		SellVenue:     opp.SellVenue,
		MatchedQty:    matched,
		NetProfit:     realised,
		Mode:          e.cfg.Mode,
		CreatedAt:     e.now(),
	}
	if buyLeg.order != nil {
		trade.BuyOrder = *buyLeg.order
	}
	if sellLeg.order != nil {
		trade.SellOrder = *sellLeg.order
	}

	// Residual directional exposure: the overfilled side.
	exposure := buyFill.Sub(sellFill)
	switch {
	case exposure.IsPositive():
		trade.ExposureQty = exposure
		trade.ExposureSide = domain.SideBuy
		trade.ExposureCcy = opp.Symbol.Base
	case exposure.IsNegative():
		trade.ExposureQty = exposure.Neg()
		trade.ExposureSide = domain.SideSell
		trade.ExposureCcy = opp.Symbol.Base
	}

	result := Result{Code: hint, Trade: &trade}
	switch {
	case trade.ExposureQty.IsPositive():
		result.Code = ResultPartial
		result.Reason = "unmatched_fill"
		result.Detail = fmt.Sprintf("exposure %s %s %s on %s",
			trade.ExposureSide, trade.ExposureQty, trade.ExposureCcy, exposureVenue(trade))
		e.logger.Warn("execution left residual exposure",
			slog.String("opp_id", opp.ID),
			slog.String("side", string(trade.ExposureSide)),
			slog.String("quantity", trade.ExposureQty.String()),
		)
	case hint == ResultSuccess && matched.IsPositive():
		result.Reason = "matched"
		result.Detail = fmt.Sprintf("matched %s at profit %s", matched, realised)
	case hint == ResultSuccess:
		// Both legs terminal with zero fills (e.g. both cancelled).
		result.Code = ResultFailed
		result.Reason = ReasonBothRejected
		result.Detail = "both legs terminal with no fills"
	}
	trade.Result = string(result.Code)

	// Risk tracking: realised PnL in reference units, positions in quote.
	realisedRef, _ := e.rates.Convert(opp.Symbol.QuoteCurrency(), realised)
	buyNotional := legPrice(buyLeg).Mul(buyFill)
	sellNotional := legPrice(sellLeg).Mul(sellFill)
	e.risk.RecordExecution(opp.BuyVenue, opp.SellVenue, buyNotional, sellNotional, realisedRef)

	// 8. Journaling: exactly one trade record per execution, best-effort.
	if e.journal != nil {
		e.journal.RecordTrade(ctx, trade)
		e.recordFeatures(ctx, opp, buyLeg)
		e.recordFeatures(ctx, opp, sellLeg)
	}
	e.untrack(buyLeg)
	e.untrack(sellLeg)

	return result
}

func exposureVenue(t domain.TradeRecord) domain.Venue {
	if t.ExposureSide == domain.SideBuy {
		return t.BuyVenue
	}
	return t.SellVenue
}

func (e *Executor) recordFeatures(ctx context.Context, opp domain.Opportunity, l *leg) {
	if l.order == nil {
		return
	}
	e.journal.RecordFeatures(ctx, domain.FeatureRecord{
		Venue:      l.venueName,
		Symbol:     opp.Symbol,
		Side:       l.side,
		BestBid:    opp.SellPrice,
		BestAsk:    opp.BuyPrice,
		SpreadBps:  opp.GrossSpread.Mul(decimal.NewFromInt(10_000)),
		UsedMaker:  l.useMaker,
		Filled:     l.order.Status == domain.OrderStatusFilled,
		RecordedAt: e.now(),
	})
}

// trackOrder and untrack maintain the in-flight order registry.
func (e *Executor) trackOrder(o *domain.Order) {
	if o.VenueID == "" {
		return
	}
	e.ordersMu.Lock()
	e.orders[string(o.Venue)+":"+o.VenueID] = o
	e.ordersMu.Unlock()
}

func (e *Executor) untrack(l *leg) {
	if l.order == nil || l.order.VenueID == "" {
		return
	}
	e.ordersMu.Lock()
	delete(e.orders, string(l.order.Venue)+":"+l.order.VenueID)
	e.ordersMu.Unlock()
}

// ActiveOrders returns a copy of the in-flight order registry.
func (e *Executor) ActiveOrders() []domain.Order {
	e.ordersMu.Lock()
	defer e.ordersMu.Unlock()
	out := make([]domain.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	return out
}

// RecoverOpenOrders lists open orders on every authenticated venue at
// startup and cancels every one it finds, without checking the order
// registry, so orphans from a crashed session never sit on the books.
func (e *Executor) RecoverOpenOrders(ctx context.Context) {
	for _, v := range e.registry.Venues() {
		adapter, err := e.registry.Get(v)
		if err != nil || !adapter.IsAuthenticated() {
			continue
		}
		open, err := adapter.GetOpenOrders(ctx, domain.Symbol{})
		e.risk.ObserveVenueResult(v, err)
		if err != nil {
			e.logger.Warn("open-order recovery failed",
				slog.String("venue", string(v)),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, o := range open {
			e.logger.Warn("cancelling orphan order from previous session",
				slog.String("venue", string(v)),
				slog.String("venue_id", o.VenueID),
				slog.String("symbol", o.Symbol.String()),
			)
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.NetTimeout)
			_, cancelErr := adapter.CancelOrder(callCtx, o.VenueID, o.Symbol)
			cancel()
			if cancelErr != nil {
				e.logger.Error("orphan cancel failed",
					slog.String("venue", string(v)),
					slog.String("venue_id", o.VenueID),
					slog.String("error", cancelErr.Error()),
				)
			}
		}
	}
}
