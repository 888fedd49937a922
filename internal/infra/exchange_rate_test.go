package infra

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func rateServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestExchangeRateClient_FetchRate(t *testing.T) {
	srv := rateServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":"success","rates":{"IDR":16234.5,"KRW":1380.5}}`)
	})

	var updated decimal.Decimal
	client := NewExchangeRateClientWithConfig(func(r decimal.Decimal) { updated = r }, srv.URL, 1)

	if err := client.fetchRate(context.Background()); err != nil {
		t.Fatalf("fetchRate failed: %v", err)
	}

	want := decimal.NewFromFloat(16234.5)
	if !client.Rate().Equal(want) {
		t.Errorf("Rate() = %v, want %v", client.Rate(), want)
	}
	if !updated.Equal(want) {
		t.Errorf("onUpdate got %v, want %v", updated, want)
	}
}

func TestExchangeRateClient_StartStop(t *testing.T) {
	callCount := 0
	srv := rateServer(t, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		fmt.Fprint(w, `{"result":"success","rates":{"IDR":16234.5}}`)
	})

	client := NewExchangeRateClientWithConfig(nil, srv.URL, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for initial fetch
	time.Sleep(100 * time.Millisecond)

	if callCount < 1 {
		t.Error("Expected at least one API call")
	}

	// Stop should complete without hanging
	client.Stop()
}

func TestExchangeRateClient_MissingIDRRate(t *testing.T) {
	srv := rateServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":"success","rates":{"KRW":1380.5}}`)
	})

	client := NewExchangeRateClientWithConfig(nil, srv.URL, 1)

	if err := client.fetchRate(context.Background()); err == nil {
		t.Error("Response without IDR should return error")
	}
}

func TestExchangeRateClient_RetryOnFailure(t *testing.T) {
	callCount := 0
	srv := rateServer(t, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"result":"success","rates":{"IDR":16234.5}}`)
	})

	client := NewExchangeRateClientWithConfig(nil, srv.URL, 1)

	// Should retry twice and succeed on the third call
	if err := client.fetchRate(context.Background()); err != nil {
		t.Fatalf("fetchRate should succeed after retries: %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}
