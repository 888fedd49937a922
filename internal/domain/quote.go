package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass identifies which market a symbol belongs to.
type AssetClass string

const (
	AssetSaham  AssetClass = "saham"  // IDX-listed equities
	AssetCrypto AssetClass = "crypto" // 24/7 crypto market
)

// SessionState describes the exchange trading status at a moment in time.
// It is derived from the wall clock, never persisted.
type SessionState string

const (
	SessionPre    SessionState = "PRE"
	SessionOpen   SessionState = "OPEN"
	SessionBreak  SessionState = "BREAK"
	SessionPost   SessionState = "POST"
	SessionClosed SessionState = "CLOSED"
)

// Live reports whether quotes are worth fetching from upstream in this state.
// Crypto trades around the clock and never consults this.
func (s SessionState) Live() bool {
	switch s {
	case SessionPre, SessionOpen, SessionPost:
		return true
	}
	return false
}

// Quote is a normalized price snapshot for one symbol. Symbols are canonical
// (exchange suffix stripped); provider-specific translation happens at the
// provider boundary. A Quote is immutable: it is produced fresh on every fetch
// or cache hit and replaced, never mutated.
//
// Extended fields are nil when the provider did not supply them, so callers
// can tell "no data" apart from zero.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Change    decimal.Decimal `json:"change"`
	ChangePct decimal.Decimal `json:"change_pct"`
	Volume    decimal.Decimal `json:"volume"`

	MarketCap     *decimal.Decimal `json:"market_cap,omitempty"`
	PERatio       *decimal.Decimal `json:"pe_ratio,omitempty"`
	DividendYield *decimal.Decimal `json:"dividend_yield,omitempty"`
	High52W       *decimal.Decimal `json:"high_52w,omitempty"`
	Low52W        *decimal.Decimal `json:"low_52w,omitempty"`

	AssetClass AssetClass   `json:"asset_class"`
	AsOf       time.Time    `json:"as_of"`
	Session    SessionState `json:"session"`

	// Fallback marks a quote served from the static catalog after every live
	// path failed. Shape is identical to a live quote; consumers that care
	// about freshness inspect this and Session instead of guessing from
	// zero change.
	Fallback bool `json:"fallback,omitempty"`
}

// ProviderResult is the per-symbol outcome of a batched provider fetch:
// either a normalized quote or an explicit failure reason.
type ProviderResult struct {
	Symbol string
	Quote  *Quote
	Err    error
}
