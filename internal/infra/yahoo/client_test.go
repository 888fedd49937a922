package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"idxquote/internal/domain"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second)
}

func TestFetchNormalizes(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbols"); got != "BBCA.JK" {
			t.Errorf("symbols param = %q, want BBCA.JK", got)
		}
		fmt.Fprint(w, `{"quoteResponse":{"result":[{
			"symbol":"BBCA.JK","shortName":"Bank Central Asia Tbk",
			"regularMarketPrice":9875,"regularMarketChange":125,
			"regularMarketChangePercent":1.28,"regularMarketVolume":52000000,
			"regularMarketTime":1762225800,"marketCap":1215000000000000,
			"trailingPE":24.6,"fiftyTwoWeekHigh":10450,"fiftyTwoWeekLow":8250
		}],"error":null}}`)
	})

	results, err := c.Fetch(context.Background(), []string{"BBCA"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}

	q := results[0].Quote
	if q == nil {
		t.Fatalf("expected quote, got err %v", results[0].Err)
	}
	if q.Symbol != "BBCA" {
		t.Errorf("symbol = %q, want canonical BBCA", q.Symbol)
	}
	if !q.Price.Equal(decimal.NewFromInt(9875)) {
		t.Errorf("price = %v", q.Price)
	}
	if q.PERatio == nil || q.High52W == nil || q.Low52W == nil {
		t.Error("extended fields should be populated when upstream supplies them")
	}
	// Upstream omitted dividend yield: must stay nil, not zero.
	if q.DividendYield != nil {
		t.Error("absent dividend yield must be nil")
	}
	if q.AssetClass != domain.AssetSaham {
		t.Errorf("asset class = %v", q.AssetClass)
	}
}

func TestFetchPartialBatch(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteResponse":{"result":[
			{"symbol":"BBCA.JK","regularMarketPrice":9875,"regularMarketTime":1762225800}
		],"error":null}}`)
	})

	results, err := c.Fetch(context.Background(), []string{"BBCA", "BBRI"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Quote == nil {
		t.Error("BBCA should have a quote")
	}
	if !errors.Is(results[1].Err, domain.ErrSymbolNotFound) {
		t.Errorf("BBRI err = %v, want ErrSymbolNotFound", results[1].Err)
	}
}

func TestFetchMissingPriceIsMalformed(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteResponse":{"result":[
			{"symbol":"BBCA.JK","shortName":"Bank Central Asia Tbk"}
		],"error":null}}`)
	})

	results, err := c.Fetch(context.Background(), []string{"BBCA"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !errors.Is(results[0].Err, domain.ErrMalformedPayload) {
		t.Errorf("err = %v, want ErrMalformedPayload", results[0].Err)
	}
}

func TestFetchRetriesOnceOnServerError(t *testing.T) {
	calls := 0
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"quoteResponse":{"result":[
			{"symbol":"BBCA.JK","regularMarketPrice":9875,"regularMarketTime":1762225800}
		],"error":null}}`)
	})

	results, err := c.Fetch(context.Background(), []string{"BBCA"})
	if err != nil {
		t.Fatalf("Fetch after retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("upstream called %d times, want 2", calls)
	}
	if results[0].Quote == nil {
		t.Error("expected quote after retry")
	}
}

func TestFetchGivesUpAfterOneRetry(t *testing.T) {
	calls := 0
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Fetch(context.Background(), []string{"BBCA"})
	if err == nil {
		t.Fatal("expected error when upstream keeps failing")
	}
	if calls != 2 {
		t.Errorf("upstream called %d times, want 2", calls)
	}
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("err = %v, want wrapped ErrRateLimited", err)
	}
}

func TestFetchNoRetryOnClientError(t *testing.T) {
	calls := 0
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})

	if _, err := c.Fetch(context.Background(), []string{"BBCA"}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("upstream called %d times, want 1 (4xx is not retriable)", calls)
	}
}

func TestFetchEmptySymbolList(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made for an empty symbol list")
	})

	results, err := c.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}
