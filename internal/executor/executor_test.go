package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faridmah/arbot/internal/arbitrage"
	"github.com/faridmah/arbot/internal/domain"
	"github.com/faridmah/arbot/internal/risk"
	"github.com/faridmah/arbot/internal/venue"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeAdapter is a scripted venue adapter.
type fakeAdapter struct {
	mu sync.Mutex

	name     domain.Venue
	bestBid  decimal.Decimal
	bestAsk  decimal.Decimal
	postOnly bool

	placeErr    error          // returned by PlaceOrder when set
	fillQty     decimal.Decimal // what GetOrder reports as filled
	fillStatus  domain.OrderStatus
	placeCalls  int
	cancelCalls int

	placed *domain.Order
}

func newFake(name domain.Venue, bid, ask string) *fakeAdapter {
	return &fakeAdapter{
		name:       name,
		bestBid:    dec(bid),
		bestAsk:    dec(ask),
		fillStatus: domain.OrderStatusOpen,
	}
}

func (f *fakeAdapter) Name() domain.Venue        { return f.name }
func (f *fakeAdapter) MakerFee() decimal.Decimal { return dec("0.001") }
func (f *fakeAdapter) TakerFee() decimal.Decimal { return dec("0.001") }
func (f *fakeAdapter) SupportsPostOnly() bool    { return f.postOnly }
func (f *fakeAdapter) IsAuthenticated() bool     { return true }

func (f *fakeAdapter) FetchOrderBook(ctx context.Context, symbol domain.Symbol, depth int) (domain.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.OrderBook{
		Venue:     f.name,
		Symbol:    symbol,
		Timestamp: time.Now(),
		Bids:      []domain.BookLevel{{Price: f.bestBid, Quantity: dec("10")}},
		Asks:      []domain.BookLevel{{Price: f.bestAsk, Quantity: dec("10")}},
	}, nil
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placeCalls++
	if f.placeErr != nil {
		return domain.Order{}, f.placeErr
	}
	now := time.Now()
	o := domain.Order{
		Venue:     f.name,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Price:     req.Price,
		VenueID:   string(f.name) + "-1",
		Status:    domain.OrderStatusOpen,
		PostOnly:  req.PostOnly,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.placed = &o
	return o, nil
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, venueID string, symbol domain.Symbol) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	if !f.fillStatus.Terminal() {
		f.fillStatus = domain.OrderStatusCancelled
	}
	return true, nil
}

func (f *fakeAdapter) GetOrder(ctx context.Context, venueID string, symbol domain.Symbol) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Order{
		Venue:     f.name,
		Symbol:    symbol,
		VenueID:   venueID,
		Status:    f.fillStatus,
		FilledQty: f.fillQty,
		AvgPrice:  f.bestAsk,
	}, nil
}

func (f *fakeAdapter) GetOpenOrders(ctx context.Context, symbol domain.Symbol) ([]domain.Order, error) {
	return nil, nil
}

func (f *fakeAdapter) GetBalance(ctx context.Context, currency string) (domain.Balance, error) {
	return domain.Balance{Currency: currency, Available: dec("100000000")}, nil
}

// failingAdvisor always errors.
type failingAdvisor struct{}

func (failingAdvisor) AdviseMaker(ctx context.Context, f domain.AdvisorFeatures) (domain.MakerAdvice, error) {
	return domain.MakerAdvice{}, errors.New("model unavailable")
}

// makerAdvisor always recommends maker.
type makerAdvisor struct{}

func (makerAdvisor) AdviseMaker(ctx context.Context, f domain.AdvisorFeatures) (domain.MakerAdvice, error) {
	return domain.MakerAdvice{UseMaker: true, Confidence: 0.9}, nil
}

// countingJournal counts records.
type countingJournal struct {
	mu     sync.Mutex
	orders int
	trades []domain.TradeRecord
}

func (j *countingJournal) RecordOrder(ctx context.Context, o domain.Order) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders++
}

func (j *countingJournal) RecordTrade(ctx context.Context, t domain.TradeRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
}

func (j *countingJournal) RecordFeatures(ctx context.Context, f domain.FeatureRecord) {}

func (j *countingJournal) tradeCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.trades)
}

func testRisk() *risk.Manager {
	logger := slog.Default()
	return risk.NewManager(
		risk.NewVolatilityBreaker(100*time.Millisecond, dec("0.05"), 150*time.Millisecond, logger),
		risk.NewConnectivityBreaker(10, time.Minute, logger),
		risk.NewErrorRateBreaker(50, 20, 0.9, time.Minute, logger),
		risk.Limits{}, logger,
	)
}

func testConfig() Config {
	return Config{
		PollInterval:  5 * time.Millisecond,
		TotalDeadline: 500 * time.Millisecond,
		NetTimeout:    time.Second,
		MaxAge:        3 * time.Second,
		MinProfitRef:  decimal.Zero,
		Mode:          "paper",
	}
}

func testOpp() domain.Opportunity {
	now := time.Now()
	return domain.Opportunity{
		ID:           "opp-1",
		Symbol:       domain.MustParseSymbol("BTCUSDT"),
		BuyVenue:     domain.VenueNobitex,
		SellVenue:    domain.VenueWallex,
		Quantity:     dec("1"),
		BuyPrice:     dec("65000"),
		SellPrice:    dec("65300"),
		BuyFee:       dec("0.001"),
		SellFee:      dec("0.001"),
		BuyBookTime:  now,
		SellBookTime: now,
		DetectedAt:   now,
	}
}

func testRates() *arbitrage.RateTable {
	return arbitrage.NewRateTable("USDT", map[string]decimal.Decimal{"USDT": dec("1")})
}

func newTestExecutor(buy, sell *fakeAdapter, adv domain.MakerAdvisor, jrnl Journal, cfg Config) *Executor {
	registry := venue.NewRegistry(buy, sell)
	return New(registry, testRisk(), adv, jrnl, testRates(), cfg, slog.Default())
}

func TestExecuteBothLegsFill(t *testing.T) {
	buy := newFake(domain.VenueNobitex, "64900", "65000")
	sell := newFake(domain.VenueWallex, "65300", "65400")
	buy.fillStatus, buy.fillQty = domain.OrderStatusFilled, dec("1")
	sell.fillStatus, sell.fillQty = domain.OrderStatusFilled, dec("1")

	jrnl := &countingJournal{}
	exec := newTestExecutor(buy, sell, nil, jrnl, testConfig())

	result := exec.Execute(context.Background(), testOpp())
	require.Equal(t, ResultSuccess, result.Code, "detail: %s", result.Detail)
	require.NotNil(t, result.Trade)
	assert.True(t, result.Trade.MatchedQty.Equal(dec("1")))
	assert.True(t, result.Trade.ExposureQty.IsZero())
	assert.True(t, result.Trade.NetProfit.IsPositive())
	assert.Equal(t, 1, jrnl.tradeCount(), "exactly one trade record per execution")
	assert.Empty(t, exec.ActiveOrders(), "no in-flight orders retained after settlement")
}

func TestExecuteStaleOpportunity(t *testing.T) {
	buy := newFake(domain.VenueNobitex, "64900", "65000")
	sell := newFake(domain.VenueWallex, "65300", "65400")
	exec := newTestExecutor(buy, sell, nil, &countingJournal{}, testConfig())

	opp := testOpp()
	opp.BuyBookTime = time.Now().Add(-10 * time.Second)

	result := exec.Execute(context.Background(), opp)
	assert.Equal(t, ResultRejected, result.Code)
	assert.Equal(t, ReasonStale, result.Reason)
	assert.Zero(t, buy.placeCalls)
	assert.Zero(t, sell.placeCalls)
}

func TestExecuteSpreadCollapsed(t *testing.T) {
	// By execution time the buy ask has risen to 65250: the recomputed
	// profit is negative and no order may be placed.
	buy := newFake(domain.VenueNobitex, "64900", "65250")
	sell := newFake(domain.VenueWallex, "65300", "65400")

	cfg := testConfig()
	cfg.Refetch = true
	exec := newTestExecutor(buy, sell, nil, &countingJournal{}, cfg)

	result := exec.Execute(context.Background(), testOpp())
	assert.Equal(t, ResultRejected, result.Code)
	assert.Equal(t, ReasonSpreadCollapsed, result.Reason)
	assert.Zero(t, buy.placeCalls)
	assert.Zero(t, sell.placeCalls)
}

func TestExecuteOneLegFailure(t *testing.T) {
	// The buy leg fills half; the sell leg is rejected outright for
	// insufficient balance. The buy leg becomes an orphan: cancelled, its
	// fill surfaced as directional exposure.
	buy := newFake(domain.VenueNobitex, "64900", "65000")
	buy.fillStatus, buy.fillQty = domain.OrderStatusFilled, dec("0.5")
	sell := newFake(domain.VenueWallex, "65300", "65400")
	sell.placeErr = &domain.VenueError{
		Venue: domain.VenueWallex, Kind: domain.ErrKindBusiness,
		Message: "insufficient balance", Err: domain.ErrInsufficientBalance,
	}

	jrnl := &countingJournal{}
	exec := newTestExecutor(buy, sell, nil, jrnl, testConfig())

	result := exec.Execute(context.Background(), testOpp())
	require.Equal(t, ResultPartial, result.Code)
	require.NotNil(t, result.Trade)
	assert.True(t, result.Trade.MatchedQty.IsZero())
	assert.True(t, result.Trade.ExposureQty.Equal(dec("0.5")))
	assert.Equal(t, domain.SideBuy, result.Trade.ExposureSide)
	assert.Equal(t, "BTC", result.Trade.ExposureCcy)
	assert.Equal(t, 1, jrnl.tradeCount())
	assert.GreaterOrEqual(t, buy.cancelCalls, 1)
}

func TestExecuteBothLegsRejected(t *testing.T) {
	buy := newFake(domain.VenueNobitex, "64900", "65000")
	sell := newFake(domain.VenueWallex, "65300", "65400")
	rejection := &domain.VenueError{
		Venue: domain.VenueNobitex, Kind: domain.ErrKindBusiness,
		Message: "rejected", Err: domain.ErrOrderRejected,
	}
	buy.placeErr = rejection
	sell.placeErr = rejection

	exec := newTestExecutor(buy, sell, nil, &countingJournal{}, testConfig())
	result := exec.Execute(context.Background(), testOpp())
	assert.Equal(t, ResultFailed, result.Code)
	assert.Equal(t, ReasonBothRejected, result.Reason)
}

func TestExecuteTimeout(t *testing.T) {
	// Neither leg ever fills: the deadline lapses, both are cancelled.
	buy := newFake(domain.VenueNobitex, "64900", "65000")
	sell := newFake(domain.VenueWallex, "65300", "65400")

	cfg := testConfig()
	cfg.TotalDeadline = 30 * time.Millisecond
	exec := newTestExecutor(buy, sell, nil, &countingJournal{}, cfg)

	result := exec.Execute(context.Background(), testOpp())
	assert.Equal(t, ResultTimeout, result.Code)
	assert.GreaterOrEqual(t, buy.cancelCalls, 1)
	assert.GreaterOrEqual(t, sell.cancelCalls, 1)
}

func TestAdvisorFailureIsNonFatal(t *testing.T) {
	buy := newFake(domain.VenueNobitex, "64900", "65000")
	sell := newFake(domain.VenueWallex, "65300", "65400")
	buy.fillStatus, buy.fillQty = domain.OrderStatusFilled, dec("1")
	sell.fillStatus, sell.fillQty = domain.OrderStatusFilled, dec("1")

	exec := newTestExecutor(buy, sell, failingAdvisor{}, &countingJournal{}, testConfig())
	result := exec.Execute(context.Background(), testOpp())

	require.Equal(t, ResultSuccess, result.Code)
	// Both legs were placed as taker.
	assert.False(t, buy.placed.PostOnly)
	assert.False(t, sell.placed.PostOnly)
	assert.Equal(t, int64(2), exec.AdvisorWarnings())
}

func TestMakerDowngradeOnUnsupportedVenue(t *testing.T) {
	// Only the sell venue honours post-only; the buy leg's maker advice is
	// silently downgraded and counted.
	buy := newFake(domain.VenueNobitex, "64900", "65000")
	sell := newFake(domain.VenueWallex, "65300", "65400")
	sell.postOnly = true
	buy.fillStatus, buy.fillQty = domain.OrderStatusFilled, dec("1")
	sell.fillStatus, sell.fillQty = domain.OrderStatusFilled, dec("1")

	exec := newTestExecutor(buy, sell, makerAdvisor{}, &countingJournal{}, testConfig())
	result := exec.Execute(context.Background(), testOpp())

	require.Equal(t, ResultSuccess, result.Code)
	assert.False(t, buy.placed.PostOnly)
	assert.True(t, sell.placed.PostOnly)
	assert.Equal(t, int64(1), exec.MakerDowngrades())
	assert.Zero(t, exec.AdvisorWarnings())
}

func TestVolatilityBreakerBlocksExecution(t *testing.T) {
	buy := newFake(domain.VenueNobitex, "64900", "65000")
	sell := newFake(domain.VenueWallex, "65300", "65400")

	registry := venue.NewRegistry(buy, sell)
	riskMgr := testRisk()
	exec := New(registry, riskMgr, nil, &countingJournal{}, testRates(), testConfig(), slog.Default())

	sym := domain.MustParseSymbol("BTCUSDT")
	riskMgr.ObservePrice(sym, dec("65000"))
	riskMgr.ObservePrice(sym, dec("75000")) // > 5% move trips the breaker

	result := exec.Execute(context.Background(), testOpp())
	assert.Equal(t, ResultRejected, result.Code)
	assert.Equal(t, risk.ReasonVolatilityBreaker, result.Reason)
	assert.Zero(t, buy.placeCalls)

	// After the cooldown and in-bounds probe snapshots, execution resumes.
	time.Sleep(160 * time.Millisecond)
	assert.Equal(t, ResultRejected, exec.Execute(context.Background(), testOpp()).Code)
	riskMgr.ObservePrice(sym, dec("75000"))
	riskMgr.ObservePrice(sym, dec("75010"))

	buy.fillStatus, buy.fillQty = domain.OrderStatusFilled, dec("1")
	sell.fillStatus, sell.fillQty = domain.OrderStatusFilled, dec("1")
	result = exec.Execute(context.Background(), testOpp())
	assert.Equal(t, ResultSuccess, result.Code, "detail: %s", result.Detail)
}

// Replaying the same opportunity never produces a second trade.
func TestReplayedOpportunityRejected(t *testing.T) {
	buy := newFake(domain.VenueNobitex, "64900", "65000")
	sell := newFake(domain.VenueWallex, "65300", "65400")
	buy.fillStatus, buy.fillQty = domain.OrderStatusFilled, dec("1")
	sell.fillStatus, sell.fillQty = domain.OrderStatusFilled, dec("1")

	jrnl := &countingJournal{}
	exec := newTestExecutor(buy, sell, nil, jrnl, testConfig())

	opp := testOpp()
	require.Equal(t, ResultSuccess, exec.Execute(context.Background(), opp).Code)

	replay := exec.Execute(context.Background(), opp)
	assert.Equal(t, ResultRejected, replay.Code)
	assert.Equal(t, ReasonDuplicate, replay.Reason)
	assert.Equal(t, 1, jrnl.tradeCount())
	assert.Equal(t, 1, buy.placeCalls)
	assert.Equal(t, 1, sell.placeCalls)
}

func TestCancelledContext(t *testing.T) {
	buy := newFake(domain.VenueNobitex, "64900", "65000")
	sell := newFake(domain.VenueWallex, "65300", "65400")

	ctx, cancel := context.WithCancel(context.Background())
	exec := newTestExecutor(buy, sell, nil, &countingJournal{}, testConfig())

	done := make(chan Result, 1)
	go func() { done <- exec.Execute(ctx, testOpp()) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		assert.Equal(t, ResultCancelled, result.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("execute did not return after cancellation")
	}
}
