// Package stream maintains the latest order-book snapshot for a configured
// set of (venue, symbol) pairs by periodic refresh, and fans snapshots out
// to subscribers. Delivery per pair is monotonic in snapshot timestamp;
// ordering across pairs is unspecified.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/faridmah/arbot/internal/domain"
	"github.com/faridmah/arbot/internal/venue"
)

// Pair is one polled (venue, symbol) combination.
type Pair struct {
	Venue  domain.Venue
	Symbol domain.Symbol
}

// PairState is the refresh-loop state of one pair.
type PairState string

const (
	StateIdle     PairState = "idle"
	StateFetching PairState = "fetching"
	StateFresh    PairState = "fresh"
	StateStale    PairState = "stale"
	StateStopped  PairState = "stopped"
)

// Listener receives every new snapshot. Listeners run on the pair's poll
// goroutine and must not block.
type Listener func(book domain.OrderBook)

// SnapshotCache is an optional write-through sink for the latest snapshot
// (the redis cache implements it).
type SnapshotCache interface {
	SetSnapshot(ctx context.Context, book domain.OrderBook) error
}

// Config holds the stream's tunables.
type Config struct {
	Interval            time.Duration
	Depth               int
	PerVenueConcurrency int
	MaxAge              time.Duration
	// MaxConsecutiveErrors stops a pair's loop after that many refresh
	// failures in a row.
	MaxConsecutiveErrors int
}

// Stream polls order books and publishes them.
type Stream struct {
	registry *venue.Registry
	pairs    []Pair
	cfg      Config
	cache    SnapshotCache
	logger   *slog.Logger

	// onResult, when set, observes every refresh outcome; the risk manager
	// hooks breaker accounting here.
	onResult func(v domain.Venue, err error)

	mu        sync.Mutex
	latest    map[Pair]domain.OrderBook
	states    map[Pair]PairState
	listeners []Listener

	sems    map[domain.Venue]*semaphore.Weighted
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a Stream over the given adapters and pairs.
func New(registry *venue.Registry, pairs []Pair, cfg Config, logger *slog.Logger) *Stream {
	if cfg.PerVenueConcurrency < 1 {
		cfg.PerVenueConcurrency = 1
	}
	if cfg.MaxConsecutiveErrors < 1 {
		cfg.MaxConsecutiveErrors = 5
	}
	if cfg.Depth < 1 {
		cfg.Depth = 20
	}
	sems := make(map[domain.Venue]*semaphore.Weighted)
	for _, p := range pairs {
		if _, ok := sems[p.Venue]; !ok {
			sems[p.Venue] = semaphore.NewWeighted(int64(cfg.PerVenueConcurrency))
		}
	}
	states := make(map[Pair]PairState, len(pairs))
	for _, p := range pairs {
		states[p] = StateIdle
	}
	return &Stream{
		registry: registry,
		pairs:    pairs,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "price_stream")),
		latest:   make(map[Pair]domain.OrderBook, len(pairs)),
		states:   states,
		sems:     sems,
	}
}

// SetCache installs a write-through snapshot cache. Must be called before
// Start.
func (s *Stream) SetCache(cache SnapshotCache) { s.cache = cache }

// SetResultHook installs the per-refresh outcome observer. Must be called
// before Start.
func (s *Stream) SetResultHook(hook func(v domain.Venue, err error)) { s.onResult = hook }

// Subscribe registers a listener for every new snapshot across all pairs.
func (s *Stream) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Start launches one poll loop per pair. It is a no-op when already running.
func (s *Stream) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("price stream already running")
		return
	}
	s.running = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, p := range s.pairs {
		wg.Add(1)
		go func(pair Pair) {
			defer wg.Done()
			s.pollLoop(runCtx, pair)
		}(p)
	}
	go func() {
		wg.Wait()
		close(s.done)
	}()

	s.logger.Info("price stream started",
		slog.Int("pairs", len(s.pairs)),
		slog.Duration("interval", s.cfg.Interval),
	)
}

// Stop cancels the poll loops and waits for in-flight refreshes to settle,
// bounded by timeout.
func (s *Stream) Stop(timeout time.Duration) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("price stream stop timed out", slog.Duration("timeout", timeout))
	}
	s.logger.Info("price stream stopped")
}

// pollLoop refreshes one pair until the context ends or the error budget is
// exhausted.
func (s *Stream) pollLoop(ctx context.Context, pair Pair) {
	adapter, err := s.registry.Get(pair.Venue)
	if err != nil {
		s.logger.Error("no adapter for pair", slog.String("venue", string(pair.Venue)))
		s.setState(pair, StateStopped)
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	consecutive := 0
	for {
		s.refresh(ctx, adapter, pair, &consecutive)
		if consecutive >= s.cfg.MaxConsecutiveErrors {
			s.logger.Error("pair stopped after repeated failures",
				slog.String("venue", string(pair.Venue)),
				slog.String("symbol", pair.Symbol.String()),
				slog.Int("failures", consecutive),
			)
			s.setState(pair, StateStopped)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Stream) refresh(ctx context.Context, adapter venue.Adapter, pair Pair, consecutive *int) {
	sem := s.sems[pair.Venue]
	if err := sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer sem.Release(1)

	s.setState(pair, StateFetching)
	book, err := adapter.FetchOrderBook(ctx, pair.Symbol, s.cfg.Depth)
	if s.onResult != nil && ctx.Err() == nil {
		s.onResult(pair.Venue, err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		*consecutive++
		s.setState(pair, StateStale)
		s.logger.Warn("orderbook refresh failed",
			slog.String("venue", string(pair.Venue)),
			slog.String("symbol", pair.Symbol.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	*consecutive = 0

	s.mu.Lock()
	prev, had := s.latest[pair]
	if had && book.Timestamp.Before(prev.Timestamp) {
		// Never deliver out of order for a pair.
		s.mu.Unlock()
		return
	}
	s.latest[pair] = book
	s.states[pair] = StateFresh
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.SetSnapshot(ctx, book); err != nil {
			s.logger.Warn("snapshot cache write failed", slog.String("error", err.Error()))
		}
	}

	for _, l := range listeners {
		l(book)
	}
}

func (s *Stream) setState(pair Pair, st PairState) {
	s.mu.Lock()
	s.states[pair] = st
	s.mu.Unlock()
}

// Snapshot returns the latest snapshot for a pair. The second result is
// false when no snapshot has been received or the snapshot has outlived the
// staleness budget; stale snapshots are never served as fresh.
func (s *Stream) Snapshot(v domain.Venue, sym domain.Symbol) (domain.OrderBook, bool) {
	s.mu.Lock()
	book, ok := s.latest[Pair{Venue: v, Symbol: sym}]
	s.mu.Unlock()
	if !ok {
		return domain.OrderBook{}, false
	}
	if s.cfg.MaxAge > 0 && book.Stale(time.Now(), s.cfg.MaxAge) {
		return book, false
	}
	return book, true
}

// Snapshots returns every fresh snapshot for the given symbol keyed by
// venue.
func (s *Stream) Snapshots(sym domain.Symbol) map[domain.Venue]domain.OrderBook {
	out := make(map[domain.Venue]domain.OrderBook)
	s.mu.Lock()
	pairs := make([]Pair, 0, len(s.latest))
	for p := range s.latest {
		pairs = append(pairs, p)
	}
	s.mu.Unlock()

	for _, p := range pairs {
		if !domain.Compatible(p.Symbol, sym) {
			continue
		}
		if book, ok := s.Snapshot(p.Venue, p.Symbol); ok {
			out[p.Venue] = book
		}
	}
	return out
}

// State reports the refresh-loop state of a pair.
func (s *Stream) State(v domain.Venue, sym domain.Symbol) PairState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[Pair{Venue: v, Symbol: sym}]
	if !ok {
		return StateIdle
	}
	return st
}
