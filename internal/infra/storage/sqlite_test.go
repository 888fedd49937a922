package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"idxquote/internal/domain"
)

func setupTestDB(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	return s
}

func TestStoreAndLoad(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	expiry := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	if err := s.Store(ctx, domain.AssetSaham, "BBCA", []byte(`{"symbol":"BBCA"}`), expiry); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	data, expiresAt, err := s.Load(ctx, domain.AssetSaham, "BBCA")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != `{"symbol":"BBCA"}` {
		t.Errorf("data = %s", data)
	}
	if !expiresAt.Truncate(time.Second).Equal(expiry) {
		t.Errorf("expiresAt = %v, want %v", expiresAt, expiry)
	}
}

func TestLoadMissing(t *testing.T) {
	s := setupTestDB(t)

	_, _, err := s.Load(context.Background(), domain.AssetSaham, "NOPE")
	if err != domain.ErrCacheMiss {
		t.Errorf("err = %v, want ErrCacheMiss", err)
	}
}

func TestStoreOverwrites(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	first := time.Now().Add(time.Minute)
	second := time.Now().Add(10 * time.Minute)

	if err := s.Store(ctx, domain.AssetSaham, "BBCA", []byte(`old`), first); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := s.Store(ctx, domain.AssetSaham, "BBCA", []byte(`new`), second); err != nil {
		t.Fatalf("second Store failed: %v", err)
	}

	data, expiresAt, err := s.Load(ctx, domain.AssetSaham, "BBCA")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != "new" {
		t.Errorf("data = %s, want new", data)
	}
	if expiresAt.Before(first.Add(time.Second)) {
		t.Error("expected expiry to be updated by overwrite")
	}
}

func TestSymbolIsScopedByAssetClass(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Minute)

	s.Store(ctx, domain.AssetSaham, "BTC", []byte(`equity`), expiry)
	s.Store(ctx, domain.AssetCrypto, "BTC", []byte(`coin`), expiry)

	data, _, err := s.Load(ctx, domain.AssetCrypto, "BTC")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != "coin" {
		t.Errorf("data = %s, want coin", data)
	}
}

func TestSweep(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	s.Store(ctx, domain.AssetSaham, "OLD", []byte(`x`), time.Now().Add(-2*time.Hour))
	s.Store(ctx, domain.AssetSaham, "STALE", []byte(`x`), time.Now().Add(-time.Minute))
	s.Store(ctx, domain.AssetSaham, "LIVE", []byte(`x`), time.Now().Add(time.Hour))

	// Grace of one hour: only OLD is past expiry+grace.
	n, err := s.Sweep(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d rows, want 1", n)
	}

	// STALE is expired but within grace; still loadable for stale fallback.
	if _, _, err := s.Load(ctx, domain.AssetSaham, "STALE"); err != nil {
		t.Errorf("STALE should survive sweep: %v", err)
	}
	if _, _, err := s.Load(ctx, domain.AssetSaham, "OLD"); err != domain.ErrCacheMiss {
		t.Errorf("OLD should be swept, got err = %v", err)
	}
}
