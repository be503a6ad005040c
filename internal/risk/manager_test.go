package risk

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faridmah/arbot/internal/domain"
)

type stubBalance struct {
	balances map[string]domain.Balance
	err      error
}

func (s stubBalance) GetBalance(ctx context.Context, currency string) (domain.Balance, error) {
	if s.err != nil {
		return domain.Balance{}, s.err
	}
	return s.balances[currency], nil
}

func richBalance() stubBalance {
	return stubBalance{balances: map[string]domain.Balance{
		"USDT": {Currency: "USDT", Available: dec("10000000")},
		"BTC":  {Currency: "BTC", Available: dec("100")},
	}}
}

func testManager(limits Limits) *Manager {
	logger := slog.Default()
	return NewManager(
		NewVolatilityBreaker(time.Minute, dec("0.05"), time.Minute, logger),
		NewConnectivityBreaker(3, time.Minute, logger),
		NewErrorRateBreaker(20, 5, 0.5, time.Minute, logger),
		limits, logger,
	)
}

func testOpp() domain.Opportunity {
	return domain.Opportunity{
		ID:        "opp-1",
		Symbol:    domain.MustParseSymbol("BTCUSDT"),
		BuyVenue:  domain.VenueNobitex,
		SellVenue: domain.VenueWallex,
		Quantity:  dec("1"),
		BuyPrice:  dec("65000"),
		SellPrice: dec("65300"),
		BuyFee:    dec("0.001"),
		SellFee:   dec("0.001"),
	}
}

func reason(t *testing.T, err error) string {
	t.Helper()
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	return rej.Reason
}

func TestCheckTradePasses(t *testing.T) {
	m := testManager(Limits{
		MaxPositionPerVenue: dec("100000"),
		MaxTotalPosition:    dec("200000"),
		DailyLossLimit:      dec("10000"),
		PerTradeLossLimit:   dec("1000"),
		SlippageTolerance:   dec("0.005"),
	})
	require.NoError(t, m.CheckTrade(context.Background(), testOpp(), richBalance(), richBalance()))
}

func TestCheckTradeConnectivityBreaker(t *testing.T) {
	m := testManager(Limits{})
	now := time.Now()
	for i := 0; i < 3; i++ {
		m.Connectivity.RecordFailure(domain.VenueNobitex, now)
	}
	err := m.CheckTrade(context.Background(), testOpp(), richBalance(), richBalance())
	assert.Equal(t, ReasonConnectivityBreaker, reason(t, err))
}

func TestCheckTradeVolatilityBreaker(t *testing.T) {
	m := testManager(Limits{})
	sym := domain.MustParseSymbol("BTCUSDT")
	m.ObservePrice(sym, dec("65000"))
	m.ObservePrice(sym, dec("75000"))
	err := m.CheckTrade(context.Background(), testOpp(), richBalance(), richBalance())
	assert.Equal(t, ReasonVolatilityBreaker, reason(t, err))
}

func TestCheckTradePositionLimits(t *testing.T) {
	m := testManager(Limits{MaxPositionPerVenue: dec("60000")})
	err := m.CheckTrade(context.Background(), testOpp(), richBalance(), richBalance())
	assert.Equal(t, ReasonVenuePositionLimit, reason(t, err))

	m = testManager(Limits{MaxTotalPosition: dec("60000")})
	err = m.CheckTrade(context.Background(), testOpp(), richBalance(), richBalance())
	assert.Equal(t, ReasonTotalPositionLimit, reason(t, err))
}

func TestCheckTradeLossLimits(t *testing.T) {
	// Worst case = notional · slippage = 65000 · 0.01 = 650.
	m := testManager(Limits{
		PerTradeLossLimit: dec("500"),
		SlippageTolerance: dec("0.01"),
	})
	err := m.CheckTrade(context.Background(), testOpp(), richBalance(), richBalance())
	assert.Equal(t, ReasonPerTradeLossLimit, reason(t, err))

	// Realised daily loss of 600 plus 650 worst case exceeds 1000.
	m = testManager(Limits{
		DailyLossLimit:    dec("1000"),
		SlippageTolerance: dec("0.01"),
	})
	m.RecordExecution(domain.VenueNobitex, domain.VenueWallex, decimal.Zero, decimal.Zero, dec("-600"))
	err = m.CheckTrade(context.Background(), testOpp(), richBalance(), richBalance())
	assert.Equal(t, ReasonDailyLossLimit, reason(t, err))
}

func TestCheckTradeDrawdown(t *testing.T) {
	m := testManager(Limits{MaxDrawdown: dec("0.1")})
	m.InitializeBalance(dec("10000"))
	m.RecordExecution(domain.VenueNobitex, domain.VenueWallex, decimal.Zero, decimal.Zero, dec("-2000"))
	err := m.CheckTrade(context.Background(), testOpp(), richBalance(), richBalance())
	assert.Equal(t, ReasonMaxDrawdown, reason(t, err))
}

func TestBalanceFallbackAndUnknown(t *testing.T) {
	m := testManager(Limits{})
	opp := testOpp()

	// No balance ever observed and the endpoint is failing: reject, and do
	// not trip the connectivity breaker for it.
	failing := stubBalance{err: errors.New("http 404")}
	err := m.CheckTrade(context.Background(), opp, failing, richBalance())
	assert.Equal(t, ReasonBalanceUnknown, reason(t, err))
	assert.Equal(t, StateClosed, m.Connectivity.State(opp.BuyVenue))

	// Seed a last-known balance through one successful check, then fail the
	// endpoint: the gate falls back and passes.
	require.NoError(t, m.CheckTrade(context.Background(), opp, richBalance(), richBalance()))
	require.NoError(t, m.CheckTrade(context.Background(), opp, failing, richBalance()))
}

func TestCheckTradeInsufficientBalance(t *testing.T) {
	m := testManager(Limits{})
	poor := stubBalance{balances: map[string]domain.Balance{
		"USDT": {Currency: "USDT", Available: dec("100")},
	}}
	err := m.CheckTrade(context.Background(), testOpp(), poor, richBalance())
	assert.Equal(t, ReasonInsufficientBalance, reason(t, err))
}

func TestSnapshotMetrics(t *testing.T) {
	m := testManager(Limits{})
	m.InitializeBalance(dec("1000"))
	m.RecordExecution(domain.VenueNobitex, domain.VenueWallex, dec("500"), dec("500"), dec("-100"))

	metrics := m.Snapshot()
	assert.True(t, metrics.DailyPnL.Equal(dec("-100")))
	assert.True(t, metrics.TotalPosition.Equal(dec("1000")))
	assert.True(t, metrics.Drawdown.Equal(dec("0.1")))
}
