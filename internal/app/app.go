// Package app owns the application lifecycle: dependency wiring, the
// stream → detector → executor loop, startup recovery and graceful
// shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/faridmah/arbot/internal/config"
	"github.com/faridmah/arbot/internal/domain"
	"github.com/faridmah/arbot/internal/executor"
)

// App is the root application object.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, recovers orphan orders, starts the price stream
// and drives the detection/execution loop until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting engine",
		slog.String("mode", a.cfg.Mode),
		slog.Int("symbols", len(a.cfg.Trading.Symbols)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Cancel anything a previous session left on the books before trading.
	if a.cfg.Mode == "realistic" {
		deps.Executor.RecoverOpenOrders(ctx)
	}

	// Volatility breaker probes come straight off the stream.
	deps.Stream.Subscribe(func(book domain.OrderBook) {
		if bid, ok := book.BestBid(); ok {
			deps.Risk.ObservePrice(book.Symbol, bid.Price)
		} else if ask, ok := book.BestAsk(); ok {
			deps.Risk.ObservePrice(book.Symbol, ask.Price)
		}
	})

	deps.Stream.Start(ctx)
	defer deps.Stream.Stop(10 * time.Second)

	interval := time.Duration(a.cfg.Stream.PollingIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.scan(ctx, deps)
		}
	}
}

// scan runs one detection pass across all configured symbols and executes
// the best surviving opportunity per symbol. Execution is serial: the core
// owns at most one in-flight dual-leg execution per scan.
func (a *App) scan(ctx context.Context, deps *Dependencies) {
	now := time.Now()
	for _, sym := range deps.Symbols {
		books := deps.Stream.Snapshots(sym)
		if len(books) < 2 {
			continue
		}
		opps := deps.Detector.FindOpportunities(now, sym, books)
		if len(opps) == 0 {
			continue
		}

		best := opps[0]
		a.logger.Info("opportunity detected",
			slog.String("symbol", sym.String()),
			slog.String("buy_venue", string(best.BuyVenue)),
			slog.String("sell_venue", string(best.SellVenue)),
			slog.String("quantity", best.Quantity.String()),
			slog.String("net_profit", best.NetProfitRef.String()),
			slog.Int("candidates", len(opps)),
		)

		result := deps.Executor.Execute(ctx, best)
		switch result.Code {
		case executor.ResultSuccess, executor.ResultPartial:
			if result.Trade != nil {
				deps.Notifier.NotifyTrade(ctx, *result.Trade)
			}
		case executor.ResultRejected:
			a.logger.Debug("opportunity rejected",
				slog.String("reason", result.Reason),
				slog.String("detail", result.Detail),
			)
		default:
			a.logger.Warn("execution did not complete",
				slog.String("code", string(result.Code)),
				slog.String("reason", result.Reason),
				slog.String("detail", result.Detail),
			)
		}
	}
}

// Close tears down all resources in reverse registration order.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
