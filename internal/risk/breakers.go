// Package risk guards every order attempt: three circuit breakers
// (market volatility, venue connectivity, venue error rate) and the serial
// pre-trade gate that composes them with position, loss and balance limits.
package risk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/domain"
)

// BreakerState is the classic three-state breaker machine.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// ---------------------------------------------------------------------------
// Market volatility breaker (per canonical symbol)
// ---------------------------------------------------------------------------

type pricePoint struct {
	at    time.Time
	price decimal.Decimal
}

type volState struct {
	history  []pricePoint
	state    BreakerState
	openedAt time.Time
}

// VolatilityBreaker trips a symbol when the price moves more than maxMove
// (a fraction, 0.05 = 5%) against the oldest price inside the sliding
// window. While OPEN no orders are placed on the symbol; after the cooldown
// it half-opens and one in-bounds probe observation closes it.
type VolatilityBreaker struct {
	window   time.Duration
	maxMove  decimal.Decimal
	cooldown time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	symbols map[string]*volState
}

// NewVolatilityBreaker creates a VolatilityBreaker.
func NewVolatilityBreaker(window time.Duration, maxMove decimal.Decimal, cooldown time.Duration, logger *slog.Logger) *VolatilityBreaker {
	return &VolatilityBreaker{
		window:   window,
		maxMove:  maxMove,
		cooldown: cooldown,
		logger:   logger.With(slog.String("breaker", "volatility")),
		symbols:  make(map[string]*volState),
	}
}

func volKey(sym domain.Symbol) string {
	return sym.Base + domain.QuoteFamily(sym.Quote)
}

// Observe feeds a price observation for sym. While half-open the
// observation doubles as the probe: in-bounds closes the breaker,
// out-of-bounds re-opens it.
func (b *VolatilityBreaker) Observe(sym domain.Symbol, price decimal.Decimal, now time.Time) {
	if !price.IsPositive() {
		return
	}
	key := volKey(sym)

	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.symbols[key]
	if !ok {
		st = &volState{state: StateClosed}
		b.symbols[key] = st
	}

	st.history = append(st.history, pricePoint{at: now, price: price})
	cutoff := now.Add(-b.window)
	trimmed := st.history[:0]
	for _, p := range st.history {
		if !p.at.Before(cutoff) {
			trimmed = append(trimmed, p)
		}
	}
	st.history = trimmed
	if len(st.history) < 2 {
		return
	}

	ref := st.history[0].price
	move := price.Sub(ref).Abs().Div(ref)
	exceeded := move.GreaterThan(b.maxMove)

	switch st.state {
	case StateClosed:
		if exceeded {
			st.state = StateOpen
			st.openedAt = now
			b.logger.Warn("volatility breaker tripped",
				slog.String("symbol", key),
				slog.String("move", move.String()),
			)
		}
	case StateHalfOpen:
		if exceeded {
			st.state = StateOpen
			st.openedAt = now
		} else {
			st.state = StateClosed
			b.logger.Info("volatility breaker closed", slog.String("symbol", key))
		}
	case StateOpen:
		// Tripping is monotonic inside the cooldown; nothing to do until
		// Allowed half-opens it.
	}
}

// Allowed reports whether orders on sym may proceed, advancing OPEN to
// HALF_OPEN once the cooldown has elapsed.
func (b *VolatilityBreaker) Allowed(sym domain.Symbol, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.symbols[volKey(sym)]
	if !ok {
		return true
	}
	switch st.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(st.openedAt) >= b.cooldown {
			st.state = StateHalfOpen
			b.logger.Info("volatility breaker half-open", slog.String("symbol", volKey(sym)))
		}
		return false
	default:
		// Half-open: blocked until a probe snapshot lands in bounds.
		return false
	}
}

// State reports the breaker state for sym.
func (b *VolatilityBreaker) State(sym domain.Symbol) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.symbols[volKey(sym)]; ok {
		return st.state
	}
	return StateClosed
}

// ---------------------------------------------------------------------------
// Venue connectivity breaker (per venue)
// ---------------------------------------------------------------------------

type connState struct {
	consecutive int
	state       BreakerState
	openedAt    time.Time
}

// ConnectivityBreaker trips a venue after N consecutive network or auth
// failures. While OPEN the venue is excluded from detection and execution;
// after the cooldown a successful probe (any successful venue call) closes
// it.
type ConnectivityBreaker struct {
	failuresToTrip int
	cooldown       time.Duration
	logger         *slog.Logger

	mu     sync.Mutex
	venues map[domain.Venue]*connState
}

// NewConnectivityBreaker creates a ConnectivityBreaker.
func NewConnectivityBreaker(failuresToTrip int, cooldown time.Duration, logger *slog.Logger) *ConnectivityBreaker {
	if failuresToTrip < 1 {
		failuresToTrip = 1
	}
	return &ConnectivityBreaker{
		failuresToTrip: failuresToTrip,
		cooldown:       cooldown,
		logger:         logger.With(slog.String("breaker", "connectivity")),
		venues:         make(map[domain.Venue]*connState),
	}
}

func (b *ConnectivityBreaker) state(v domain.Venue) *connState {
	st, ok := b.venues[v]
	if !ok {
		st = &connState{state: StateClosed}
		b.venues[v] = st
	}
	return st
}

// RecordFailure counts a connectivity-class failure against v.
func (b *ConnectivityBreaker) RecordFailure(v domain.Venue, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(v)
	st.consecutive++
	switch st.state {
	case StateClosed:
		if st.consecutive >= b.failuresToTrip {
			st.state = StateOpen
			st.openedAt = now
			b.logger.Warn("connectivity breaker tripped",
				slog.String("venue", string(v)),
				slog.Int("consecutive_failures", st.consecutive),
			)
		}
	case StateHalfOpen:
		st.state = StateOpen
		st.openedAt = now
	}
}

// RecordSuccess resets the failure run and closes a half-open breaker.
func (b *ConnectivityBreaker) RecordSuccess(v domain.Venue) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(v)
	st.consecutive = 0
	if st.state == StateHalfOpen {
		st.state = StateClosed
		b.logger.Info("connectivity breaker closed", slog.String("venue", string(v)))
	}
}

// Allowed reports whether v may be used, advancing OPEN to HALF_OPEN after
// the cooldown. In HALF_OPEN every call is allowed until the next recorded
// result closes or re-opens the breaker.
func (b *ConnectivityBreaker) Allowed(v domain.Venue, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(v)
	switch st.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if now.Sub(st.openedAt) >= b.cooldown {
			st.state = StateHalfOpen
			b.logger.Info("connectivity breaker half-open", slog.String("venue", string(v)))
			return true
		}
		return false
	}
	return true
}

// State reports the breaker state for v.
func (b *ConnectivityBreaker) State(v domain.Venue) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state(v).state
}

// ---------------------------------------------------------------------------
// Error-rate breaker (per venue)
// ---------------------------------------------------------------------------

type rateState struct {
	results  []bool // ring of recent outcomes, true = success
	state    BreakerState
	openedAt time.Time
}

// ErrorRateBreaker trips a venue when the failure ratio over the last
// window operations exceeds maxRate, given at least minSamples outcomes.
type ErrorRateBreaker struct {
	window     int
	minSamples int
	maxRate    float64
	cooldown   time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	venues map[domain.Venue]*rateState
}

// NewErrorRateBreaker creates an ErrorRateBreaker.
func NewErrorRateBreaker(window, minSamples int, maxRate float64, cooldown time.Duration, logger *slog.Logger) *ErrorRateBreaker {
	if window < 1 {
		window = 50
	}
	if minSamples < 1 {
		minSamples = 1
	}
	return &ErrorRateBreaker{
		window:     window,
		minSamples: minSamples,
		maxRate:    maxRate,
		cooldown:   cooldown,
		logger:     logger.With(slog.String("breaker", "error_rate")),
		venues:     make(map[domain.Venue]*rateState),
	}
}

func (b *ErrorRateBreaker) state(v domain.Venue) *rateState {
	st, ok := b.venues[v]
	if !ok {
		st = &rateState{state: StateClosed}
		b.venues[v] = st
	}
	return st
}

// Record tracks one operation outcome for v.
func (b *ErrorRateBreaker) Record(v domain.Venue, success bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(v)
	st.results = append(st.results, success)
	if len(st.results) > b.window {
		st.results = st.results[len(st.results)-b.window:]
	}

	if st.state == StateHalfOpen {
		if success {
			st.state = StateClosed
			st.results = nil
			b.logger.Info("error-rate breaker closed", slog.String("venue", string(v)))
		} else {
			st.state = StateOpen
			st.openedAt = now
		}
		return
	}

	if st.state != StateClosed || len(st.results) < b.minSamples {
		return
	}
	failures := 0
	for _, ok := range st.results {
		if !ok {
			failures++
		}
	}
	ratio := float64(failures) / float64(len(st.results))
	if ratio > b.maxRate {
		st.state = StateOpen
		st.openedAt = now
		b.logger.Warn("error-rate breaker tripped",
			slog.String("venue", string(v)),
			slog.Float64("ratio", ratio),
		)
	}
}

// Allowed reports whether v may be used.
func (b *ErrorRateBreaker) Allowed(v domain.Venue, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(v)
	switch st.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if now.Sub(st.openedAt) >= b.cooldown {
			st.state = StateHalfOpen
			return true
		}
		return false
	}
	return true
}

// State reports the breaker state for v.
func (b *ErrorRateBreaker) State(v domain.Venue) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state(v).state
}
