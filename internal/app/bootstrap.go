package app

import (
	"log/slog"
	"time"

	"idxquote/internal/cache"
	"idxquote/internal/domain"
	"idxquote/internal/infra"
	"idxquote/internal/infra/coingecko"
	"idxquote/internal/infra/rediscache"
	"idxquote/internal/infra/storage"
	"idxquote/internal/infra/yahoo"
	"idxquote/internal/service"
	"idxquote/internal/session"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Clock   *session.Clock
	Redis   *rediscache.Cache
	Storage *storage.Storage
	Cache   *cache.TieredCache
	Metrics *infra.Metrics
	Service *service.MarketDataService
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize builds the system bottom up: config, logger, stores, providers,
// then the service. Any failure here is fatal; main handles the error.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping idxquote...")

	// 1. Load Config
	cfg, err := infra.LoadConfig("configs/config.yaml")
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Session Clock
	clock, err := session.NewClock(cfg.Session)
	if err != nil {
		return err
	}
	b.Clock = clock

	// 4. Durable Tier (SQLite)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Durable store initialized", slog.String("path", cfg.Storage.Path))

	// 5. Fast Tier (Redis)
	redis, err := rediscache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	b.Redis = redis
	slog.Info("✅ Redis connected", slog.String("addr", cfg.Redis.Addr))

	// 6. Tiered Cache + Metrics
	b.Metrics = infra.GlobalMetrics
	b.Cache = cache.New(redis, store, b.Metrics, logger)

	// 7. Quote Providers
	equities := yahoo.NewClient(cfg.Providers.Yahoo.BaseURL, providerTimeout(cfg.Providers.Yahoo.TimeoutSec))
	crypto := coingecko.NewClient(cfg.Providers.Coingecko.BaseURL, cfg.Providers.Coingecko.APIKey, providerTimeout(cfg.Providers.Coingecko.TimeoutSec))

	// 8. Market Data Service
	svc, err := service.New(service.Config{
		Clock:        clock,
		Cache:        b.Cache,
		Equities:     equities,
		Crypto:       crypto,
		Catalog:      domain.DefaultFallbackCatalog(),
		EquityTTL:    cfg.EquityTTL(),
		CryptoTTL:    cfg.CryptoTTL(),
		FetchTimeout: cfg.FetchTimeout(),
		Metrics:      b.Metrics,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	b.Service = svc
	slog.Info("✅ Market data service ready")

	return nil
}

func providerTimeout(sec int) time.Duration {
	if sec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(sec) * time.Second
}

// Close releases held connections in reverse construction order.
func (b *Bootstrap) Close() {
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			slog.Warn("Redis close failed", slog.Any("error", err))
		}
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Storage close failed", slog.Any("error", err))
		}
	}
}
