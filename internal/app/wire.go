package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/faridmah/arbot/internal/advisor"
	"github.com/faridmah/arbot/internal/arbitrage"
	cacheredis "github.com/faridmah/arbot/internal/cache/redis"
	"github.com/faridmah/arbot/internal/config"
	"github.com/faridmah/arbot/internal/domain"
	"github.com/faridmah/arbot/internal/executor"
	"github.com/faridmah/arbot/internal/journal"
	"github.com/faridmah/arbot/internal/notify"
	"github.com/faridmah/arbot/internal/risk"
	"github.com/faridmah/arbot/internal/store/postgres"
	"github.com/faridmah/arbot/internal/stream"
	"github.com/faridmah/arbot/internal/venue"
	"github.com/faridmah/arbot/internal/venue/invex"
	"github.com/faridmah/arbot/internal/venue/kucoin"
	"github.com/faridmah/arbot/internal/venue/nobitex"
	"github.com/faridmah/arbot/internal/venue/tabdeal"
	"github.com/faridmah/arbot/internal/venue/wallex"
)

// Dependencies bundles everything the run loop needs. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Registry *venue.Registry
	Stream   *stream.Stream
	Detector *arbitrage.Detector
	Rates    *arbitrage.RateTable
	Risk     *risk.Manager
	Executor *executor.Executor
	Journal  *journal.Journal
	Notifier *notify.Notifier
	Symbols  []domain.Symbol
}

// registryFees adapts the venue registry to the detector's fee lookup,
// returning the maker and taker fees the adapters were configured with; the
// detector picks the pessimistic one per leg.
type registryFees struct{ registry *venue.Registry }

func (f registryFees) MakerFee(v domain.Venue) decimal.Decimal {
	a, err := f.registry.Get(v)
	if err != nil {
		return decimal.Zero
	}
	return a.MakerFee()
}

func (f registryFees) TakerFee(v domain.Venue) decimal.Decimal {
	a, err := f.registry.Get(v)
	if err != nil {
		return decimal.Zero
	}
	return a.TakerFee()
}

// Wire constructs all concrete dependencies from the configuration and
// returns them with a cleanup function to run at shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	retry := venue.RetryPolicy{
		MaxAttempts: cfg.Trading.MaxRetries + 1,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
	netTimeout := time.Duration(cfg.Executor.NetTimeoutMs) * time.Millisecond

	// --- Venue adapters ---
	var adapters []venue.Adapter
	for _, v := range cfg.EnabledVenues() {
		ex := cfg.Exchanges[string(v)]
		maker, taker := config.Dec(ex.MakerFee), config.Dec(ex.TakerFee)
		switch v {
		case domain.VenueNobitex:
			adapters = append(adapters, nobitex.New(nobitex.Config{
				BaseURL: ex.BaseURL, Token: ex.Token,
				MakerFee: maker, TakerFee: taker,
				Retry: retry, NetTimeout: netTimeout, Logger: logger,
			}))
		case domain.VenueWallex:
			adapters = append(adapters, wallex.New(wallex.Config{
				BaseURL: ex.BaseURL, APIKey: ex.APIKey,
				MakerFee: maker, TakerFee: taker,
				Retry: retry, NetTimeout: netTimeout, Logger: logger,
			}))
		case domain.VenueTabdeal:
			adapters = append(adapters, tabdeal.New(tabdeal.Config{
				BaseURL: ex.BaseURL, APIKey: ex.APIKey, APISecret: ex.APISecret,
				MakerFee: maker, TakerFee: taker,
				Retry: retry, NetTimeout: netTimeout, Logger: logger,
			}))
		case domain.VenueInvex:
			adapters = append(adapters, invex.New(invex.Config{
				BaseURL: ex.BaseURL, APIKey: ex.APIKey, APISecret: ex.APISecret,
				MakerFee: maker, TakerFee: taker,
				Retry: retry, NetTimeout: netTimeout, Logger: logger,
			}))
		case domain.VenueKucoin:
			adapters = append(adapters, kucoin.New(kucoin.Config{
				BaseURL: ex.BaseURL, APIKey: ex.APIKey, APISecret: ex.APISecret,
				Passphrase: ex.Passphrase,
				MakerFee:   maker, TakerFee: taker,
				Retry: retry, NetTimeout: netTimeout, Logger: logger,
			}))
		}
	}
	if len(adapters) < 2 {
		cleanup()
		return nil, nil, fmt.Errorf("app: at least two enabled venues required, have %d", len(adapters))
	}
	registry := venue.NewRegistry(adapters...)

	// --- Symbols and pairs ---
	symbols := make([]domain.Symbol, 0, len(cfg.Trading.Symbols))
	for _, raw := range cfg.Trading.Symbols {
		sym, err := domain.ParseSymbol(raw)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: %w", err)
		}
		symbols = append(symbols, sym)
	}
	var pairs []stream.Pair
	for _, sym := range symbols {
		for _, v := range registry.Venues() {
			if domain.SupportsSymbol(sym, v) {
				pairs = append(pairs, stream.Pair{Venue: v, Symbol: sym})
			}
		}
	}

	// --- Rates and detector ---
	rateMap := make(map[string]decimal.Decimal, len(cfg.Trading.Rates))
	for quote, rate := range cfg.Trading.Rates {
		rateMap[quote] = config.Dec(rate)
	}
	rates := arbitrage.NewRateTable(cfg.Trading.ReferenceCurrency, rateMap)

	maxAge := time.Duration(cfg.Trading.MaxSnapshotAgeMs) * time.Millisecond
	pct := decimal.NewFromInt(100)
	detector := arbitrage.New(registryFees{registry}, rates, arbitrage.Config{
		MinSpread:       config.Dec(cfg.Trading.MinSpreadPercent).Div(pct),
		MinProfitRef:    config.Dec(cfg.Trading.MinProfitReference),
		MinOrderSize:    config.Dec(cfg.Trading.MinOrderSize),
		MaxPositionSize: config.Dec(cfg.Trading.MaxPositionSize),
		MaxAge:          maxAge,
	}, logger)

	// --- Risk ---
	cooldown := time.Duration(cfg.Breakers.CooldownMs) * time.Millisecond
	vol := risk.NewVolatilityBreaker(
		time.Duration(cfg.Breakers.VolatilityWindowMs)*time.Millisecond,
		decimal.NewFromFloat(cfg.Breakers.VolatilityMaxPercent).Div(pct),
		cooldown, logger,
	)
	conn := risk.NewConnectivityBreaker(cfg.Breakers.ConnectivityFailuresToTrip, cooldown, logger)
	errRate := risk.NewErrorRateBreaker(
		cfg.Breakers.ErrorRateWindow, cfg.Breakers.ErrorRateMinSamples,
		cfg.Breakers.ErrorRateMax, cooldown, logger,
	)
	riskMgr := risk.NewManager(vol, conn, errRate, risk.Limits{
		MaxPositionPerVenue: config.Dec(cfg.Trading.MaxPositionPerVenue),
		MaxTotalPosition:    config.Dec(cfg.Trading.MaxTotalPosition),
		DailyLossLimit:      config.Dec(cfg.Trading.DailyLossLimit),
		PerTradeLossLimit:   config.Dec(cfg.Trading.PerTradeLossLimit),
		MaxDrawdown:         config.Dec(cfg.Trading.MaxDrawdownPercent).Div(pct),
		SlippageTolerance:   config.Dec(cfg.Trading.SlippageTolerancePercent).Div(pct),
		BalanceSafetyMargin: config.Dec(cfg.Trading.BalanceSafetyMarginPercent).Div(pct),
	}, logger)

	// --- Stream ---
	priceStream := stream.New(registry, pairs, stream.Config{
		Interval:             time.Duration(cfg.Stream.PollingIntervalMs) * time.Millisecond,
		Depth:                cfg.Stream.Depth,
		PerVenueConcurrency:  cfg.Stream.PerVenueConcurrency,
		MaxAge:               maxAge,
		MaxConsecutiveErrors: cfg.Stream.MaxConsecutiveErrors,
	}, logger)
	priceStream.SetResultHook(riskMgr.ObserveVenueResult)

	// --- Redis snapshot cache (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := cacheredis.New(ctx, cacheredis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		priceStream.SetCache(cacheredis.NewSnapshotCache(redisClient, 3*maxAge))
	}

	// --- Journal stores: postgres except in dry-run ---
	var (
		orderStore   domain.OrderStore
		tradeStore   domain.TradeStore
		featureStore domain.FeatureStore
	)
	if cfg.Mode != "dry-run" && (cfg.Database.DSN != "" || cfg.Database.Host != "") {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: %w", err)
		}
		orderStore = postgres.NewOrderStore(pg.Pool())
		tradeStore = postgres.NewTradeStore(pg.Pool())
		featureStore = postgres.NewFeatureStore(pg.Pool())
	}
	jrnl := journal.New(orderStore, tradeStore, featureStore, cfg.Mode, logger)

	// --- Advisor (optional) ---
	var makerAdvisor domain.MakerAdvisor
	if cfg.Advisor.URL != "" {
		makerAdvisor = advisor.NewHTTP(cfg.Advisor.URL,
			time.Duration(cfg.Advisor.TimeoutMs)*time.Millisecond, logger)
	}

	// --- Executor ---
	exec := executor.New(registry, riskMgr, makerAdvisor, jrnl, rates, executor.Config{
		PollInterval:      time.Duration(cfg.Executor.PollIntervalMs) * time.Millisecond,
		TotalDeadline:     time.Duration(cfg.Executor.TotalDeadlineMs) * time.Millisecond,
		NetTimeout:        netTimeout,
		MaxAge:            maxAge,
		Refetch:           cfg.Executor.RefetchOnExec,
		MinProfitRef:      config.Dec(cfg.Trading.MinProfitReference),
		SlippageTolerance: config.Dec(cfg.Trading.SlippageTolerancePercent).Div(pct),
		Mode:              cfg.Mode,
	}, logger)

	// --- Notifier ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return &Dependencies{
		Registry: registry,
		Stream:   priceStream,
		Detector: detector,
		Rates:    rates,
		Risk:     riskMgr,
		Executor: exec,
		Journal:  jrnl,
		Notifier: notifier,
		Symbols:  symbols,
	}, cleanup, nil
}
