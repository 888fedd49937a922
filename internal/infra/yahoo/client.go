// Package yahoo fetches batched IDX equity quotes. Symbol translation (the
// ".JK" exchange suffix) happens here at the boundary; callers always use
// canonical symbols.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"idxquote/internal/domain"
)

const (
	DefaultBaseURL = "https://query1.finance.yahoo.com"
	quotePath      = "/v7/finance/quote"

	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	exchangeSuffix = ".JK"
	retryBackoff   = 500 * time.Millisecond
)

// quoteResult mirrors the upstream response shape. Optional fields decode as
// pointers so absent data never collapses into zero.
type quoteResult struct {
	Symbol                      string   `json:"symbol"`
	ShortName                   string   `json:"shortName"`
	RegularMarketPrice          *float64 `json:"regularMarketPrice"`
	RegularMarketChange         *float64 `json:"regularMarketChange"`
	RegularMarketChangePercent  *float64 `json:"regularMarketChangePercent"`
	RegularMarketVolume         *float64 `json:"regularMarketVolume"`
	RegularMarketTime           int64    `json:"regularMarketTime"`
	MarketCap                   *float64 `json:"marketCap"`
	TrailingPE                  *float64 `json:"trailingPE"`
	TrailingAnnualDividendYield *float64 `json:"trailingAnnualDividendYield"`
	FiftyTwoWeekHigh            *float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow             *float64 `json:"fiftyTwoWeekLow"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  any           `json:"error"`
	} `json:"quoteResponse"`
}

// Client is the equities quote client (Boundary Layer).
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new equities quote client. An empty baseURL selects the
// production endpoint.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: slog.Default().With("module", "yahoo_client"),
	}
}

func (c *Client) Name() string { return "yahoo" }

// Fetch requests quotes for the canonical symbols in one batched call. The
// result slice carries one entry per requested symbol in request order; each
// entry is a quote or an explicit per-symbol failure. Transient transport
// errors are retried once with backoff before the whole batch fails.
func (c *Client) Fetch(ctx context.Context, symbols []string) ([]domain.ProviderResult, error) {
	if len(symbols) == 0 {
		return []domain.ProviderResult{}, nil
	}

	resp, err := c.fetchBatch(ctx, symbols)
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]quoteResult, len(resp.QuoteResponse.Result))
	for _, r := range resp.QuoteResponse.Result {
		bySymbol[strings.TrimSuffix(r.Symbol, exchangeSuffix)] = r
	}

	results := make([]domain.ProviderResult, len(symbols))
	for i, symbol := range symbols {
		r, ok := bySymbol[symbol]
		if !ok {
			results[i] = domain.ProviderResult{Symbol: symbol, Err: domain.ErrSymbolNotFound}
			continue
		}
		if r.RegularMarketPrice == nil {
			results[i] = domain.ProviderResult{Symbol: symbol, Err: domain.ErrMalformedPayload}
			continue
		}
		results[i] = domain.ProviderResult{Symbol: symbol, Quote: c.normalize(symbol, r)}
	}
	return results, nil
}

// fetchBatch performs the HTTP call with a single retry on retriable failure.
func (c *Client) fetchBatch(ctx context.Context, symbols []string) (*quoteResponse, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			c.logger.Info("retrying equities fetch", slog.Int("attempt", attempt))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		resp, err := c.doFetch(ctx, symbols)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !domain.IsRetriable(err) {
			break
		}
		c.logger.Warn("equities fetch attempt failed", slog.Int("attempt", attempt+1), slog.Any("error", err))
	}
	return nil, lastErr
}

func (c *Client) doFetch(ctx context.Context, symbols []string) (*quoteResponse, error) {
	suffixed := make([]string, len(symbols))
	for i, s := range symbols {
		suffixed[i] = s + exchangeSuffix
	}

	q := url.Values{}
	q.Set("symbols", strings.Join(suffixed, ","))
	reqURL := c.baseURL + quotePath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, domain.NewFatalNetworkError("build request", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError("fetch", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError("read body", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewNetworkError("fetch", domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, domain.NewNetworkError("fetch", fmt.Errorf("upstream status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewFatalNetworkError("fetch", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var parsed quoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.NewNetworkError("decode", domain.ErrMalformedPayload)
	}
	return &parsed, nil
}

// normalize converts an upstream result into the canonical quote shape.
// Optional fields stay nil when the upstream omitted them.
func (c *Client) normalize(symbol string, r quoteResult) *domain.Quote {
	name := r.ShortName
	if name == "" {
		name = symbol
	}

	q := &domain.Quote{
		Symbol:     symbol,
		Name:       name,
		Price:      decimal.NewFromFloat(*r.RegularMarketPrice),
		AssetClass: domain.AssetSaham,
		AsOf:       time.Unix(r.RegularMarketTime, 0).UTC(),
	}
	if r.RegularMarketTime == 0 {
		q.AsOf = time.Now().UTC()
	}
	if r.RegularMarketChange != nil {
		q.Change = decimal.NewFromFloat(*r.RegularMarketChange)
	}
	if r.RegularMarketChangePercent != nil {
		q.ChangePct = decimal.NewFromFloat(*r.RegularMarketChangePercent)
	}
	if r.RegularMarketVolume != nil {
		q.Volume = decimal.NewFromFloat(*r.RegularMarketVolume)
	}
	q.MarketCap = toDecimalPtr(r.MarketCap)
	q.PERatio = toDecimalPtr(r.TrailingPE)
	q.DividendYield = toDecimalPtr(r.TrailingAnnualDividendYield)
	q.High52W = toDecimalPtr(r.FiftyTwoWeekHigh)
	q.Low52W = toDecimalPtr(r.FiftyTwoWeekLow)
	return q
}

func toDecimalPtr(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}
