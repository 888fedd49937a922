package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteProvider wraps one external data source. Fetch is batched: one network
// call for the whole symbol list where the upstream supports it. The returned
// slice carries one ProviderResult per requested symbol, in request order.
// An error return means the whole batch failed (transport-level).
type QuoteProvider interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) ([]ProviderResult, error)
}

// FastCache is the volatile low-latency cache tier, shared across instances.
// A miss (absent or expired key) is reported as ErrCacheMiss. Any other error
// means the tier is unhealthy; callers treat that as a soft miss.
type FastCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// DurableStore is the persisted tier of record: one row per (symbol, asset
// class) with a serialized quote and an absolute expiry. Load returns
// ErrCacheMiss for absent rows; expiry is the caller's concern so a stale row
// can still serve as a last-resort value.
type DurableStore interface {
	Load(ctx context.Context, class AssetClass, symbol string) (data []byte, expiresAt time.Time, err error)
	Store(ctx context.Context, class AssetClass, symbol string, data []byte, expiresAt time.Time) error
	Sweep(ctx context.Context, grace time.Duration) (int64, error)
}

// RateProvider is implemented by the USD/IDR rate poller used to convert
// stream prices quoted in dollars.
type RateProvider interface {
	Rate() decimal.Decimal
}
