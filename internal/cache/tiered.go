// Package cache composes the fast (volatile, shared) tier and the durable
// tier into one read-through, write-through quote cache. The cache never
// calls the network; loading lives in the service layer via GetOrPopulate's
// loader callback.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"idxquote/internal/domain"
	"idxquote/internal/infra"
)

// TieredCache coordinates the two tiers. Tier errors are soft: a failing
// redis or sqlite call degrades to a miss and is logged, never surfaced.
type TieredCache struct {
	fast    domain.FastCache
	durable domain.DurableStore
	metrics *infra.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New builds a TieredCache over the given tiers.
func New(fast domain.FastCache, durable domain.DurableStore, metrics *infra.Metrics, logger *slog.Logger) *TieredCache {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &TieredCache{
		fast:    fast,
		durable: durable,
		metrics: metrics,
		logger:  logger.With(slog.String("module", "cache")),
		now:     time.Now,
	}
}

// Get returns the cached quote set for the key, or ok=false on a miss.
// Read order: fast tier first; on miss or tier failure, the durable tier is
// consulted per symbol. A durable hit opportunistically repopulates the fast
// tier with the remaining TTL so subsequent reads skip the round trip.
func (c *TieredCache) Get(ctx context.Context, key Key) ([]domain.Quote, bool) {
	if quotes, ok := c.fromFast(ctx, key); ok {
		c.metrics.RecordFastHit()
		return quotes, true
	}

	quotes, minExpiry, ok := c.fromDurable(ctx, key, false)
	if !ok {
		c.metrics.RecordMiss()
		return nil, false
	}
	c.metrics.RecordDurableHit()

	if remaining := minExpiry.Sub(c.now()); remaining > 0 {
		c.writeFast(ctx, key, quotes, remaining)
	}
	return quotes, true
}

// GetStale returns expired durable rows for the key, for use as a last-resort
// stale fallback when live fetch fails. Entries are returned regardless of
// expiry; callers opt in to staleness explicitly by calling this at all.
func (c *TieredCache) GetStale(ctx context.Context, key Key) ([]domain.Quote, bool) {
	quotes, _, ok := c.fromDurable(ctx, key, true)
	return quotes, ok
}

// Set writes the quote set to both tiers unconditionally. Caching is an
// optimization: failures on either tier are logged and swallowed so a failed
// cache write never fails the quote request itself.
func (c *TieredCache) Set(ctx context.Context, key Key, quotes []domain.Quote, ttl time.Duration) {
	c.writeFast(ctx, key, quotes, ttl)

	expiresAt := c.now().Add(ttl)
	for _, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			c.logger.Warn("quote serialization failed",
				slog.String("symbol", q.Symbol), slog.Any("error", err))
			continue
		}
		if err := c.durable.Store(ctx, key.Class, q.Symbol, data, expiresAt); err != nil {
			c.logger.Warn("durable tier write failed",
				slog.String("symbol", q.Symbol), slog.Any("error", err))
		}
	}
}

// GetOrPopulate returns the cached set or invokes loader on a miss, writing
// the loaded quotes through both tiers before returning them.
func (c *TieredCache) GetOrPopulate(ctx context.Context, key Key, ttl time.Duration,
	loader func(context.Context) ([]domain.Quote, error)) ([]domain.Quote, error) {

	if quotes, ok := c.Get(ctx, key); ok {
		return quotes, nil
	}

	quotes, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(ctx, key, quotes, ttl)
	return quotes, nil
}

func (c *TieredCache) fromFast(ctx context.Context, key Key) ([]domain.Quote, bool) {
	data, err := c.fast.Get(ctx, key.String())
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			// Unavailable fast tier is a soft miss, never a hard failure.
			c.logger.Warn("fast tier read failed",
				slog.String("key", key.String()), slog.Any("error", err))
		}
		return nil, false
	}

	var quotes []domain.Quote
	if err := json.Unmarshal(data, &quotes); err != nil {
		c.logger.Warn("fast tier entry corrupt",
			slog.String("key", key.String()), slog.Any("error", err))
		return nil, false
	}
	return quotes, true
}

// fromDurable loads every symbol of the key from the durable tier. The set
// hits only when all symbols are present; expired rows count as misses unless
// allowStale is set. minExpiry is the earliest expiry across the set.
func (c *TieredCache) fromDurable(ctx context.Context, key Key, allowStale bool) ([]domain.Quote, time.Time, bool) {
	now := c.now()
	quotes := make([]domain.Quote, 0, len(key.Symbols))
	var minExpiry time.Time

	for _, symbol := range key.Symbols {
		data, expiresAt, err := c.durable.Load(ctx, key.Class, symbol)
		if err != nil {
			if !errors.Is(err, domain.ErrCacheMiss) {
				c.logger.Warn("durable tier read failed",
					slog.String("symbol", symbol), slog.Any("error", err))
			}
			return nil, time.Time{}, false
		}
		if !allowStale && !expiresAt.After(now) {
			return nil, time.Time{}, false
		}

		var q domain.Quote
		if err := json.Unmarshal(data, &q); err != nil {
			c.logger.Warn("durable tier entry corrupt",
				slog.String("symbol", symbol), slog.Any("error", err))
			return nil, time.Time{}, false
		}
		quotes = append(quotes, q)

		if minExpiry.IsZero() || expiresAt.Before(minExpiry) {
			minExpiry = expiresAt
		}
	}

	if len(quotes) == 0 {
		return nil, time.Time{}, false
	}
	return quotes, minExpiry, true
}

func (c *TieredCache) writeFast(ctx context.Context, key Key, quotes []domain.Quote, ttl time.Duration) {
	data, err := json.Marshal(quotes)
	if err != nil {
		c.logger.Warn("quote set serialization failed",
			slog.String("key", key.String()), slog.Any("error", err))
		return
	}
	if err := c.fast.Set(ctx, key.String(), data, ttl); err != nil {
		c.logger.Warn("fast tier write failed",
			slog.String("key", key.String()), slog.Any("error", err))
	}
}
