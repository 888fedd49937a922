package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a provider-transport error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "fetch", "decode")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrCacheMiss is returned by cache tiers when a key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrSymbolNotFound is returned per-symbol when the provider has no data for it.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrMalformedPayload is returned when a provider response cannot be decoded
	// or is missing the price field. Retried once, then treated as a miss.
	ErrMalformedPayload = errors.New("malformed provider payload")

	// ErrRateLimited is returned on an upstream 429. Retriable after backoff.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrQuoteUnavailable marks a symbol with no live data, no cached data and
	// no fallback record. It is the only "unavailable" signal callers see.
	ErrQuoteUnavailable = errors.New("quote unavailable")
)
