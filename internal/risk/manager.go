package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/domain"
)

// Rejection reason codes surfaced by the pre-trade gate.
const (
	ReasonConnectivityBreaker = "connectivity_breaker"
	ReasonErrorRateBreaker    = "error_rate_breaker"
	ReasonVolatilityBreaker   = "volatility_breaker"
	ReasonVenuePositionLimit  = "position_limit_venue"
	ReasonTotalPositionLimit  = "position_limit_total"
	ReasonDailyLossLimit      = "daily_loss_limit"
	ReasonPerTradeLossLimit   = "per_trade_loss_limit"
	ReasonMaxDrawdown         = "max_drawdown"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonBalanceUnknown      = "balance_unknown"
)

// Rejection is a failed pre-trade check: a machine-readable reason code
// plus a human-readable detail.
type Rejection struct {
	Reason string
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("risk: %s: %s", r.Reason, r.Detail)
}

// BalanceReader is the slice of the venue adapter the gate needs.
type BalanceReader interface {
	GetBalance(ctx context.Context, currency string) (domain.Balance, error)
}

// Limits holds the gate's thresholds. Percent fields are fractions of one.
type Limits struct {
	MaxPositionPerVenue decimal.Decimal
	MaxTotalPosition    decimal.Decimal
	DailyLossLimit      decimal.Decimal
	PerTradeLossLimit   decimal.Decimal
	MaxDrawdown         decimal.Decimal // fraction of peak balance
	SlippageTolerance   decimal.Decimal // worst-slippage fraction for loss bounds
	BalanceSafetyMargin decimal.Decimal // extra fraction of required balance
}

// Manager composes the three breakers with position, loss, drawdown and
// balance limits into the serial pre-trade gate of the executor.
type Manager struct {
	Volatility   *VolatilityBreaker
	Connectivity *ConnectivityBreaker
	ErrorRate    *ErrorRateBreaker

	limits Limits
	logger *slog.Logger
	now    func() time.Time

	mu             sync.Mutex
	dailyPnL       decimal.Decimal
	positions      map[domain.Venue]decimal.Decimal // notional per venue, quote units
	initialBalance decimal.Decimal
	peakBalance    decimal.Decimal
	lastBalances   map[domain.Venue]map[string]domain.Balance
}

// NewManager creates a Manager around the given breakers.
func NewManager(vol *VolatilityBreaker, conn *ConnectivityBreaker, rate *ErrorRateBreaker, limits Limits, logger *slog.Logger) *Manager {
	return &Manager{
		Volatility:   vol,
		Connectivity: conn,
		ErrorRate:    rate,
		limits:       limits,
		logger:       logger.With(slog.String("component", "risk")),
		now:          time.Now,
		positions:    make(map[domain.Venue]decimal.Decimal),
		lastBalances: make(map[domain.Venue]map[string]domain.Balance),
	}
}

// InitializeBalance seeds drawdown tracking with the session's starting
// balance in reference units.
func (m *Manager) InitializeBalance(initial decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialBalance = initial
	m.peakBalance = initial
}

// ObserveVenueResult feeds a venue-call outcome into the connectivity and
// error-rate breakers. Network and auth failures, and errors that carry no
// venue classification, count against connectivity; other venue errors,
// such as business rejections, count only toward the error rate.
func (m *Manager) ObserveVenueResult(v domain.Venue, err error) {
	now := m.now()
	if err == nil {
		m.Connectivity.RecordSuccess(v)
		m.ErrorRate.Record(v, true, now)
		return
	}
	// Local cancellations say nothing about the venue.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if ve, ok := domain.AsVenueError(err); ok {
		switch ve.Kind {
		case domain.ErrKindNetwork, domain.ErrKindAuth:
			m.Connectivity.RecordFailure(v, now)
		}
	} else {
		m.Connectivity.RecordFailure(v, now)
	}
	m.ErrorRate.Record(v, false, now)
}

// ObservePrice feeds a best-price observation into the volatility breaker.
func (m *Manager) ObservePrice(sym domain.Symbol, price decimal.Decimal) {
	m.Volatility.Observe(sym, price, m.now())
}

// CheckTrade runs the serial pre-trade checks for opp against the balances
// served by buyVenue and sellVenue readers. It returns nil when every check
// passes, or the first failing check as a *Rejection.
func (m *Manager) CheckTrade(ctx context.Context, opp domain.Opportunity, buyBal, sellBal BalanceReader) error {
	now := m.now()

	// 1. Connectivity and error-rate breakers on both venues.
	for _, v := range []domain.Venue{opp.BuyVenue, opp.SellVenue} {
		if !m.Connectivity.Allowed(v, now) {
			return &Rejection{ReasonConnectivityBreaker, fmt.Sprintf("venue %s connectivity breaker open", v)}
		}
		if !m.ErrorRate.Allowed(v, now) {
			return &Rejection{ReasonErrorRateBreaker, fmt.Sprintf("venue %s error-rate breaker open", v)}
		}
	}

	// 2. Volatility breaker on the symbol.
	if !m.Volatility.Allowed(opp.Symbol, now) {
		return &Rejection{ReasonVolatilityBreaker, fmt.Sprintf("symbol %s volatility breaker open", opp.Symbol)}
	}

	notional := opp.BuyPrice.Mul(opp.Quantity)

	m.mu.Lock()
	buyPos := m.positions[opp.BuyVenue]
	sellPos := m.positions[opp.SellVenue]
	var total decimal.Decimal
	for _, p := range m.positions {
		total = total.Add(p)
	}
	dailyPnL := m.dailyPnL
	initial, peak := m.initialBalance, m.peakBalance
	m.mu.Unlock()

	// 3. Projected per-venue position.
	if m.limits.MaxPositionPerVenue.IsPositive() {
		if buyPos.Add(notional).GreaterThan(m.limits.MaxPositionPerVenue) {
			return &Rejection{ReasonVenuePositionLimit,
				fmt.Sprintf("projected %s position %s exceeds %s", opp.BuyVenue, buyPos.Add(notional), m.limits.MaxPositionPerVenue)}
		}
		if sellPos.Add(notional).GreaterThan(m.limits.MaxPositionPerVenue) {
			return &Rejection{ReasonVenuePositionLimit,
				fmt.Sprintf("projected %s position %s exceeds %s", opp.SellVenue, sellPos.Add(notional), m.limits.MaxPositionPerVenue)}
		}
	}

	// 4. Projected total position.
	if m.limits.MaxTotalPosition.IsPositive() && total.Add(notional).GreaterThan(m.limits.MaxTotalPosition) {
		return &Rejection{ReasonTotalPositionLimit,
			fmt.Sprintf("projected total position %s exceeds %s", total.Add(notional), m.limits.MaxTotalPosition)}
	}

	// Worst-case loss of this trade under the slippage assumption.
	worstLoss := notional.Mul(m.limits.SlippageTolerance)

	// 5. Day's realised loss plus this trade's worst case.
	if m.limits.DailyLossLimit.IsPositive() {
		realisedLoss := decimal.Zero
		if dailyPnL.IsNegative() {
			realisedLoss = dailyPnL.Neg()
		}
		if realisedLoss.Add(worstLoss).GreaterThan(m.limits.DailyLossLimit) {
			return &Rejection{ReasonDailyLossLimit,
				fmt.Sprintf("daily loss %s plus worst case %s exceeds %s", realisedLoss, worstLoss, m.limits.DailyLossLimit)}
		}
	}

	// 6. Per-trade loss bound.
	if m.limits.PerTradeLossLimit.IsPositive() && worstLoss.GreaterThan(m.limits.PerTradeLossLimit) {
		return &Rejection{ReasonPerTradeLossLimit,
			fmt.Sprintf("worst-case loss %s exceeds %s", worstLoss, m.limits.PerTradeLossLimit)}
	}

	// 7. Drawdown fraction against the peak balance.
	if m.limits.MaxDrawdown.IsPositive() && initial.IsPositive() && peak.IsPositive() {
		current := initial.Add(dailyPnL)
		drawdown := peak.Sub(current).Div(peak)
		if drawdown.GreaterThan(m.limits.MaxDrawdown) {
			return &Rejection{ReasonMaxDrawdown,
				fmt.Sprintf("drawdown %s exceeds %s", drawdown, m.limits.MaxDrawdown)}
		}
	}

	// 8. Balance on each venue, with the safety margin. The buy leg needs
	// quote currency, the sell leg needs base currency.
	margin := decimal.NewFromInt(1).Add(m.limits.BalanceSafetyMargin)
	quoteNeeded := notional.Mul(decimal.NewFromInt(1).Add(opp.BuyFee)).Mul(margin)
	baseNeeded := opp.Quantity.Mul(margin)

	if err := m.checkBalance(ctx, opp.BuyVenue, buyBal, opp.Symbol.QuoteCurrency(), quoteNeeded); err != nil {
		return err
	}
	if err := m.checkBalance(ctx, opp.SellVenue, sellBal, opp.Symbol.Base, baseNeeded); err != nil {
		return err
	}

	return nil
}

// checkBalance verifies available funds on one venue. A failing balance
// endpoint does not trip any breaker: the gate falls back to the last known
// balance and rejects only when none has ever been observed.
func (m *Manager) checkBalance(ctx context.Context, v domain.Venue, reader BalanceReader, currency string, needed decimal.Decimal) error {
	if reader == nil {
		return nil
	}

	bal, err := reader.GetBalance(ctx, currency)
	if err != nil {
		m.logger.Warn("balance check failed, falling back to last known",
			slog.String("venue", string(v)),
			slog.String("currency", currency),
			slog.String("error", err.Error()),
		)
		m.mu.Lock()
		cached, ok := m.lastBalances[v][currency]
		m.mu.Unlock()
		if !ok {
			return &Rejection{ReasonBalanceUnknown,
				fmt.Sprintf("no balance known for %s on %s", currency, v)}
		}
		bal = cached
	} else {
		m.mu.Lock()
		if m.lastBalances[v] == nil {
			m.lastBalances[v] = make(map[string]domain.Balance)
		}
		m.lastBalances[v][currency] = bal
		m.mu.Unlock()
	}

	if bal.Available.LessThan(needed) {
		return &Rejection{ReasonInsufficientBalance,
			fmt.Sprintf("%s on %s: available %s < required %s", currency, v, bal.Available, needed)}
	}
	return nil
}

// RecordExecution updates position and PnL tracking after an execution
// settles. buyNotional and sellNotional are the notionals added on the buy
// and sell venues; realised is
// the realised profit (negative for losses) in reference units.
func (m *Manager) RecordExecution(buyVenue, sellVenue domain.Venue, buyNotional, sellNotional, realised decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if buyNotional.IsPositive() {
		m.positions[buyVenue] = m.positions[buyVenue].Add(buyNotional)
	}
	if sellNotional.IsPositive() {
		m.positions[sellVenue] = m.positions[sellVenue].Add(sellNotional)
	}
	m.dailyPnL = m.dailyPnL.Add(realised)

	current := m.initialBalance.Add(m.dailyPnL)
	if current.GreaterThan(m.peakBalance) {
		m.peakBalance = current
	}
}

// ResetDaily clears the day's PnL and position tracking.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyPnL = decimal.Zero
	m.positions = make(map[domain.Venue]decimal.Decimal)
	m.peakBalance = m.initialBalance.Add(m.dailyPnL)
	m.logger.Info("daily risk tracking reset")
}

// Metrics is a point-in-time view of the risk tracking state.
type Metrics struct {
	DailyPnL      decimal.Decimal
	TotalPosition decimal.Decimal
	Positions     map[domain.Venue]decimal.Decimal
	Drawdown      decimal.Decimal
}

// Snapshot returns the current risk metrics.
func (m *Manager) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total decimal.Decimal
	positions := make(map[domain.Venue]decimal.Decimal, len(m.positions))
	for v, p := range m.positions {
		positions[v] = p
		total = total.Add(p)
	}
	var drawdown decimal.Decimal
	if m.peakBalance.IsPositive() {
		drawdown = m.peakBalance.Sub(m.initialBalance.Add(m.dailyPnL)).Div(m.peakBalance)
	}
	return Metrics{
		DailyPnL:      m.dailyPnL,
		TotalPosition: total,
		Positions:     positions,
		Drawdown:      drawdown,
	}
}
