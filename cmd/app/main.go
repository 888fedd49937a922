package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"idxquote/internal/app"
	"idxquote/internal/infra"
	"idxquote/internal/infra/binance"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bootstrap.Config

	// 4. Exchange Rate Poller (USD/IDR for the stream conversion)
	rateClient := infra.NewExchangeRateClientWithConfig(nil, cfg.ExchangeRate.URL, cfg.ExchangeRate.PollIntervalSec)
	if err := rateClient.Start(ctx); err != nil {
		slog.Error("Failed to start exchange rate client", slog.Any("error", err))
	}
	defer rateClient.Stop()

	// 5. Optional Stream Pre-Warmer
	if cfg.Stream.Enabled {
		worker := binance.NewWorker(
			cfg.Stream.WSURL,
			cfg.Stream.Symbols,
			bootstrap.Cache,
			rateClient,
			bootstrap.Clock,
			cfg.CryptoTTL(),
			slog.Default(),
		)
		if err := worker.Connect(ctx); err != nil {
			slog.Error("Failed to start stream worker", slog.Any("error", err))
		} else {
			defer worker.Disconnect()
			slog.InfoContext(ctx, "✅ Stream pre-warmer started", slog.Int("symbols", len(cfg.Stream.Symbols)))
		}
	}

	// 6. Durable Tier Sweeper
	go runSweeper(ctx, bootstrap, cfg.SweepInterval(), cfg.SweepGrace())

	// 7. Periodic Metrics Snapshot
	go runMetricsReporter(ctx, bootstrap.Metrics)

	slog.InfoContext(ctx, "✨ idxquote engine fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
}

// runSweeper purges durable rows that outlived their stale-serving grace.
func runSweeper(ctx context.Context, b *app.Bootstrap, interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := b.Storage.Sweep(ctx, grace)
			if err != nil {
				slog.Warn("Durable sweep failed", slog.Any("error", err))
				continue
			}
			if swept > 0 {
				slog.Info("Durable sweep completed", slog.Int64("rows", swept))
			}
		}
	}
}

// runMetricsReporter logs a counter snapshot every minute.
func runMetricsReporter(ctx context.Context, m *infra.Metrics) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := m.Snapshot()
			slog.Info("📊 Cache metrics",
				slog.Uint64("fast_hits", snap.FastHits),
				slog.Uint64("durable_hits", snap.DurableHits),
				slog.Uint64("misses", snap.Misses),
				slog.Uint64("provider_calls", snap.ProviderCalls),
				slog.Uint64("provider_errors", snap.ProviderErrors),
				slog.Uint64("coalesced", snap.Coalesced),
				slog.Uint64("fallback_serves", snap.FallbackServes),
				slog.Duration("avg_provider_latency", time.Duration(snap.AvgLatencyNs)),
			)
		}
	}
}
