package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FallbackRecord is a static last-known-good price for one symbol, used only
// when both cache tiers and the live fetch fail.
type FallbackRecord struct {
	Symbol string
	Name   string
	Price  decimal.Decimal
}

// FallbackCatalog holds the static seed prices per asset class. Read-only at
// runtime; constructed once at startup.
type FallbackCatalog struct {
	records map[AssetClass]map[string]FallbackRecord
}

// NewFallbackCatalog builds a catalog from the given records.
func NewFallbackCatalog(saham, crypto []FallbackRecord) *FallbackCatalog {
	c := &FallbackCatalog{records: map[AssetClass]map[string]FallbackRecord{
		AssetSaham:  make(map[string]FallbackRecord, len(saham)),
		AssetCrypto: make(map[string]FallbackRecord, len(crypto)),
	}}
	for _, r := range saham {
		c.records[AssetSaham][r.Symbol] = r
	}
	for _, r := range crypto {
		c.records[AssetCrypto][r.Symbol] = r
	}
	return c
}

// DefaultFallbackCatalog seeds the IDX blue chips and major crypto assets the
// platform tracks. Prices are continuity placeholders, not live data.
func DefaultFallbackCatalog() *FallbackCatalog {
	saham := []FallbackRecord{
		{Symbol: "BBCA", Name: "Bank Central Asia", Price: decimal.NewFromInt(9875)},
		{Symbol: "BBRI", Name: "Bank Rakyat Indonesia", Price: decimal.NewFromInt(4530)},
		{Symbol: "BMRI", Name: "Bank Mandiri", Price: decimal.NewFromInt(6275)},
		{Symbol: "BBNI", Name: "Bank Negara Indonesia", Price: decimal.NewFromInt(5325)},
		{Symbol: "TLKM", Name: "Telkom Indonesia", Price: decimal.NewFromInt(3190)},
		{Symbol: "ASII", Name: "Astra International", Price: decimal.NewFromInt(5150)},
		{Symbol: "UNVR", Name: "Unilever Indonesia", Price: decimal.NewFromInt(2480)},
		{Symbol: "GOTO", Name: "GoTo Gojek Tokopedia", Price: decimal.NewFromInt(63)},
		{Symbol: "ANTM", Name: "Aneka Tambang", Price: decimal.NewFromInt(1535)},
		{Symbol: "ICBP", Name: "Indofood CBP", Price: decimal.NewFromInt(11700)},
	}
	crypto := []FallbackRecord{
		{Symbol: "bitcoin", Name: "Bitcoin", Price: decimal.NewFromInt(1_650_000_000)},
		{Symbol: "ethereum", Name: "Ethereum", Price: decimal.NewFromInt(58_500_000)},
		{Symbol: "solana", Name: "Solana", Price: decimal.NewFromInt(3_250_000)},
		{Symbol: "binancecoin", Name: "BNB", Price: decimal.NewFromInt(13_800_000)},
		{Symbol: "ripple", Name: "XRP", Price: decimal.NewFromInt(42_000)},
	}
	return NewFallbackCatalog(saham, crypto)
}

// Lookup returns the record for a symbol, if one is seeded.
func (c *FallbackCatalog) Lookup(class AssetClass, symbol string) (FallbackRecord, bool) {
	r, ok := c.records[class][symbol]
	return r, ok
}

// Quote materializes a fallback record as a full Quote stamped with the
// current session state. Change and volume are zero; Fallback is set so
// consumers never mistake this for a flat trading day.
func (c *FallbackCatalog) Quote(class AssetClass, symbol string, session SessionState, asOf time.Time) (*Quote, bool) {
	r, ok := c.Lookup(class, symbol)
	if !ok {
		return nil, false
	}
	return &Quote{
		Symbol:     r.Symbol,
		Name:       r.Name,
		Price:      r.Price,
		Change:     decimal.Zero,
		ChangePct:  decimal.Zero,
		Volume:     decimal.Zero,
		AssetClass: class,
		AsOf:       asOf,
		Session:    session,
		Fallback:   true,
	}, true
}
