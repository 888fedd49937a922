// Package coingecko fetches batched crypto quotes priced directly in rupiah,
// so no second currency conversion is needed downstream. Symbols are the
// provider-internal ids ("bitcoin", "ethereum") which double as the platform's
// canonical crypto symbols.
package coingecko

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
	DefaultBaseURL = "https://api.coingecko.com"
	marketsPath    = "/api/v3/coins/markets"
	vsCurrency     = "idr"
	retryBackoff   = 500 * time.Millisecond
)

type marketResult struct {
	ID                       string   `json:"id"`
	Name                     string   `json:"name"`
	CurrentPrice             *float64 `json:"current_price"`
	PriceChange24h           *float64 `json:"price_change_24h"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	MarketCap                *float64 `json:"market_cap"`
	TotalVolume              *float64 `json:"total_volume"`
	LastUpdated              string   `json:"last_updated"`
}

// Client is the crypto quote client (Boundary Layer).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new crypto quote client. apiKey may be empty for the
// public tier.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: slog.Default().With("module", "coingecko_client"),
	}
}

func (c *Client) Name() string { return "coingecko" }

// Fetch requests quotes for the given provider ids in one batched call and
// returns one result per id in request order.
func (c *Client) Fetch(ctx context.Context, ids []string) ([]domain.ProviderResult, error) {
	if len(ids) == 0 {
		return []domain.ProviderResult{}, nil
	}

	markets, err := c.fetchBatch(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]marketResult, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
	}

	results := make([]domain.ProviderResult, len(ids))
	for i, id := range ids {
		m, ok := byID[id]
		if !ok {
			results[i] = domain.ProviderResult{Symbol: id, Err: domain.ErrSymbolNotFound}
			continue
		}
		if m.CurrentPrice == nil {
			results[i] = domain.ProviderResult{Symbol: id, Err: domain.ErrMalformedPayload}
			continue
		}
		results[i] = domain.ProviderResult{Symbol: id, Quote: c.normalize(id, m)}
	}
	return results, nil
}

func (c *Client) fetchBatch(ctx context.Context, ids []string) ([]marketResult, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			c.logger.Info("retrying crypto fetch", slog.Int("attempt", attempt))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		markets, err := c.doFetch(ctx, ids)
		if err == nil {
			return markets, nil
		}
		lastErr = err
		if !domain.IsRetriable(err) {
			break
		}
		c.logger.Warn("crypto fetch attempt failed", slog.Int("attempt", attempt+1), slog.Any("error", err))
	}
	return nil, lastErr
}

func (c *Client) doFetch(ctx context.Context, ids []string) ([]marketResult, error) {
	q := url.Values{}
	q.Set("vs_currency", vsCurrency)
	q.Set("ids", strings.Join(ids, ","))
	reqURL := c.baseURL + marketsPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, domain.NewFatalNetworkError("build request", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

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

	var markets []marketResult
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, domain.NewNetworkError("decode", domain.ErrMalformedPayload)
	}
	return markets, nil
}

func (c *Client) normalize(id string, m marketResult) *domain.Quote {
	name := m.Name
	if name == "" {
		name = id
	}

	asOf := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, m.LastUpdated); err == nil {
		asOf = ts.UTC()
	}

	q := &domain.Quote{
		Symbol:     id,
		Name:       name,
		Price:      decimal.NewFromFloat(*m.CurrentPrice),
		AssetClass: domain.AssetCrypto,
		AsOf:       asOf,
	}
	if m.PriceChange24h != nil {
		q.Change = decimal.NewFromFloat(*m.PriceChange24h)
	}
	if m.PriceChangePercentage24h != nil {
		q.ChangePct = decimal.NewFromFloat(*m.PriceChangePercentage24h)
	}
	if m.TotalVolume != nil {
		q.Volume = decimal.NewFromFloat(*m.TotalVolume)
	}
	if m.MarketCap != nil {
		mc := decimal.NewFromFloat(*m.MarketCap)
		q.MarketCap = &mc
	}
	return q
}
