// Package service orchestrates quote retrieval: tiered cache first, then a
// session-gated live fetch, then stale/static fallback. The public entry
// points never fail for data unavailability; they always degrade to a Quote.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"idxquote/internal/cache"
	"idxquote/internal/domain"
	"idxquote/internal/infra"
	"idxquote/internal/session"
)

// Config wires the service's collaborators. Everything is injected so tests
// can substitute fakes; there are no package-level singletons.
type Config struct {
	Clock    *session.Clock
	Cache    *cache.TieredCache
	Equities domain.QuoteProvider
	Crypto   domain.QuoteProvider
	Catalog  *domain.FallbackCatalog

	EquityTTL    time.Duration
	CryptoTTL    time.Duration
	FetchTimeout time.Duration

	Metrics *infra.Metrics
	Logger  *slog.Logger
}

// MarketDataService answers "current price for symbol X" as fresh and cheaply
// as possible.
type MarketDataService struct {
	clock     *session.Clock
	cache     *cache.TieredCache
	providers map[domain.AssetClass]domain.QuoteProvider
	catalog   *domain.FallbackCatalog

	ttl          map[domain.AssetClass]time.Duration
	fetchTimeout time.Duration

	metrics *infra.Metrics
	logger  *slog.Logger

	// group collapses concurrent misses for the same cache key into a single
	// in-flight fetch. Keys are independent, so throughput scales with the
	// number of distinct symbols in flight.
	group singleflight.Group

	now func() time.Time
}

// New validates the wiring and builds the service. Missing collaborators are
// configuration errors: fatal at startup, not per request.
func New(cfg Config) (*MarketDataService, error) {
	if cfg.Clock == nil {
		return nil, &domain.ConfigError{Field: "clock", Err: fmt.Errorf("required")}
	}
	if cfg.Cache == nil {
		return nil, &domain.ConfigError{Field: "cache", Err: fmt.Errorf("required")}
	}
	if cfg.Equities == nil || cfg.Crypto == nil {
		return nil, &domain.ConfigError{Field: "providers", Err: fmt.Errorf("equities and crypto providers are required")}
	}
	if cfg.Catalog == nil {
		cfg.Catalog = domain.DefaultFallbackCatalog()
	}
	if cfg.EquityTTL <= 0 {
		cfg.EquityTTL = 5 * time.Minute
	}
	if cfg.CryptoTTL <= 0 {
		cfg.CryptoTTL = 5 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = infra.GlobalMetrics
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &MarketDataService{
		clock: cfg.Clock,
		cache: cfg.Cache,
		providers: map[domain.AssetClass]domain.QuoteProvider{
			domain.AssetSaham:  cfg.Equities,
			domain.AssetCrypto: cfg.Crypto,
		},
		catalog: cfg.Catalog,
		ttl: map[domain.AssetClass]time.Duration{
			domain.AssetSaham:  cfg.EquityTTL,
			domain.AssetCrypto: cfg.CryptoTTL,
		},
		fetchTimeout: cfg.FetchTimeout,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With(slog.String("module", "market_data")),
		now:          time.Now,
	}, nil
}

// GetQuote returns the best available quote for one symbol. It degrades
// through cache, live fetch and static fallback; the only error it returns is
// domain.ErrQuoteUnavailable for a symbol nothing knows about.
func (s *MarketDataService) GetQuote(ctx context.Context, class domain.AssetClass, symbol string) (domain.Quote, error) {
	quotes, err := s.GetQuotes(ctx, class, []string{symbol})
	if err != nil {
		return domain.Quote{}, err
	}
	if len(quotes) == 0 {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	return quotes[0], nil
}

// GetQuotes is the batch variant. An empty symbol list returns an empty
// result. Partial upstream failures are merged per symbol, with fallback
// applied only to the symbols that failed, never the whole batch. Symbols
// that are unknown everywhere are omitted from the result.
func (s *MarketDataService) GetQuotes(ctx context.Context, class domain.AssetClass, symbols []string) ([]domain.Quote, error) {
	key := cache.NewKey(class, symbols...)
	if len(key.Symbols) == 0 {
		return []domain.Quote{}, nil
	}

	v, err, shared := s.group.Do(key.String(), func() (any, error) {
		return s.resolve(ctx, class, key), nil
	})
	if err != nil {
		// resolve never returns an error; keep the check for form.
		return nil, err
	}
	if shared {
		s.metrics.RecordCoalesced()
	}
	return v.([]domain.Quote), nil
}

// resolve implements the refresh decision: cached -> live (session gated) ->
// stale row -> static catalog.
func (s *MarketDataService) resolve(ctx context.Context, class domain.AssetClass, key cache.Key) []domain.Quote {
	if quotes, ok := s.cache.Get(ctx, key); ok {
		return quotes
	}

	state := s.clock.Classify(s.now())
	live := make(map[string]domain.Quote)

	if s.shouldFetchLive(class, state) {
		live = s.fetchLive(ctx, class, key, state)
	}

	quotes := make([]domain.Quote, 0, len(key.Symbols))
	for _, symbol := range key.Symbols {
		if q, ok := live[symbol]; ok {
			quotes = append(quotes, q)
			continue
		}
		if q, ok := s.fallbackQuote(ctx, class, symbol, state); ok {
			quotes = append(quotes, q)
		}
	}
	return quotes
}

// shouldFetchLive is the refresh gate. Crypto trades around the clock and
// always fetches; equities only while the exchange is PRE, OPEN or POST.
func (s *MarketDataService) shouldFetchLive(class domain.AssetClass, state domain.SessionState) bool {
	if class == domain.AssetCrypto {
		return true
	}
	return state.Live()
}

// fetchLive calls the provider once for the whole key and caches whatever
// succeeded. The fetch runs detached from the caller's cancellation: if the
// original requester is gone, populating the cache for the next caller is
// still worth finishing.
func (s *MarketDataService) fetchLive(ctx context.Context, class domain.AssetClass, key cache.Key, state domain.SessionState) map[string]domain.Quote {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
	defer cancel()

	start := s.now()
	results, err := s.providers[class].Fetch(fetchCtx, key.Symbols)
	s.metrics.RecordProviderCall(time.Since(start).Nanoseconds())
	if err != nil {
		s.metrics.RecordProviderError()
		s.logger.Warn("provider batch failed",
			slog.String("provider", s.providers[class].Name()),
			slog.String("key", key.String()),
			slog.Any("error", err))
		return nil
	}

	live := make(map[string]domain.Quote, len(results))
	cacheable := make([]domain.Quote, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			s.logger.Warn("symbol failed upstream",
				slog.String("symbol", r.Symbol), slog.Any("error", r.Err))
			continue
		}
		q := *r.Quote
		q.Session = state
		live[r.Symbol] = q
		cacheable = append(cacheable, q)
	}

	if len(cacheable) > 0 {
		// Write back under the full key only when the whole set resolved, so
		// a later fast-tier hit never hides a symbol. Partial sets still land
		// per symbol in both tiers.
		if len(cacheable) == len(key.Symbols) {
			s.cache.Set(fetchCtx, key, cacheable, s.ttl[class])
		} else {
			for _, q := range cacheable {
				s.cache.Set(fetchCtx, cache.NewKey(class, q.Symbol), []domain.Quote{q}, s.ttl[class])
			}
		}
	}
	return live
}

// fallbackQuote degrades a single symbol: an expired durable row first, then
// the static catalog. Both are stamped with the current session state so
// consumers can judge freshness; catalog quotes additionally carry the
// Fallback marker.
func (s *MarketDataService) fallbackQuote(ctx context.Context, class domain.AssetClass, symbol string, state domain.SessionState) (domain.Quote, bool) {
	if stale, ok := s.cache.GetStale(ctx, cache.NewKey(class, symbol)); ok && len(stale) == 1 {
		q := stale[0]
		q.Session = state
		s.metrics.RecordFallback()
		return q, true
	}

	if q, ok := s.catalog.Quote(class, symbol, state, s.now()); ok {
		s.metrics.RecordFallback()
		return *q, true
	}

	s.logger.Warn("quote unavailable on every path",
		slog.String("symbol", symbol), slog.String("class", string(class)))
	return domain.Quote{}, false
}
