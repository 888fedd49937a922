// Package binance keeps the crypto side of the cache warm between request
// driven fetches. A miniTicker stream delivers dollar prices which are
// converted to rupiah with the polled USD/IDR rate and written through the
// tiered cache, so the next read is a fast-tier hit instead of a provider
// round trip.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"idxquote/internal/cache"
	"idxquote/internal/domain"
	"idxquote/internal/session"
)

const (
	DefaultWSURL = "wss://stream.binance.com:9443/stream"

	maxRetries   = 10
	baseDelay    = 1 * time.Second
	maxDelay     = 60 * time.Second
	readTimeout  = 90 * time.Second
	writeTimeout = 10 * time.Second
)

// miniTicker is the per-symbol payload of a combined stream message. Prices
// arrive as strings.
type miniTicker struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
}

type streamEnvelope struct {
	Stream string     `json:"stream"`
	Data   miniTicker `json:"data"`
}

// Worker maintains the WebSocket connection with automatic reconnection.
type Worker struct {
	wsURL string
	// pairs maps the exchange pair (BTCUSDT) to the platform's canonical
	// symbol (bitcoin).
	pairs map[string]string
	cache *cache.TieredCache
	rate  domain.RateProvider
	clock *session.Clock
	ttl   time.Duration

	logger *slog.Logger

	conn      *websocket.Conn
	mu        sync.RWMutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWorker creates a stream worker. rate supplies the USD/IDR conversion;
// updates arriving before the first successful rate fetch are dropped.
func NewWorker(wsURL string, pairs map[string]string, tiered *cache.TieredCache, rate domain.RateProvider, clock *session.Clock, ttl time.Duration, logger *slog.Logger) *Worker {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		wsURL:  wsURL,
		pairs:  pairs,
		cache:  tiered,
		rate:   rate,
		clock:  clock,
		ttl:    ttl,
		logger: logger.With(slog.String("module", "binance_stream")),
	}
}

// Connect starts the connection loop. It returns immediately; the loop keeps
// reconnecting until the context is cancelled or Disconnect is called.
func (w *Worker) Connect(ctx context.Context) error {
	if len(w.pairs) == 0 {
		return fmt.Errorf("no stream symbols configured")
	}

	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.connectionLoop(ctx)

	return nil
}

// connectionLoop handles connection and reconnection with exponential backoff
func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("stream panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stream connection loop stopped")
			return
		default:
		}

		err := w.connect(ctx)
		if err != nil {
			w.logger.Warn("stream connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)

			delay := calculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				w.logger.Error("stream max retries exceeded, resetting counter")
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		// Connection successful, reset retry counter
		retryCount = 0

		w.readLoop(ctx)
	}
}

func calculateBackoff(retryCount int) time.Duration {
	delay := baseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// connect dials the combined stream endpoint. Subscription is part of the URL
// so no separate subscribe message is needed.
func (w *Worker) connect(ctx context.Context) error {
	streams := make([]string, 0, len(w.pairs))
	for pair := range w.pairs {
		streams = append(streams, strings.ToLower(pair)+"@miniTicker")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL+"?streams="+strings.Join(streams, "/"), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	w.logger.Info("stream connected", slog.Int("symbols", len(w.pairs)))
	return nil
}

// readLoop reads messages until the connection drops.
func (w *Worker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.closeConnection()
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Warn("stream read error", slog.Any("error", err))
			}
			w.closeConnection()
			return
		}

		w.handleMessage(ctx, message)
	}
}

// handleMessage converts one miniTicker update into a cached rupiah quote.
func (w *Worker) handleMessage(ctx context.Context, message []byte) {
	var env streamEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		w.logger.Debug("stream message parse error", slog.Any("error", err))
		return
	}
	if env.Data.EventType != "24hrMiniTicker" {
		return
	}

	canonical, ok := w.pairs[env.Data.Symbol]
	if !ok {
		return
	}

	rate := w.rate.Rate()
	if rate.IsZero() {
		// No USD/IDR rate yet. Dropping the update is safe; the request path
		// still fetches rupiah prices directly.
		return
	}

	closeUSD, err := parsePrice(env.Data.Close)
	if err != nil {
		w.logger.Debug("stream price parse error", slog.String("pair", env.Data.Symbol), slog.Any("error", err))
		return
	}
	openUSD, err := parsePrice(env.Data.Open)
	if err != nil {
		openUSD = closeUSD
	}

	price := closeUSD.Mul(rate)
	change := closeUSD.Sub(openUSD).Mul(rate)
	changePct := decimal.Zero
	if !openUSD.IsZero() {
		changePct = closeUSD.Sub(openUSD).Div(openUSD).Mul(decimal.NewFromInt(100))
	}

	asOf := time.Now().UTC()
	if env.Data.EventTime > 0 {
		asOf = time.UnixMilli(env.Data.EventTime).UTC()
	}

	q := domain.Quote{
		Symbol:     canonical,
		Name:       canonical,
		Price:      price,
		Change:     change,
		ChangePct:  changePct,
		AssetClass: domain.AssetCrypto,
		AsOf:       asOf,
		Session:    w.clock.Classify(asOf),
	}
	if v, err := parsePrice(env.Data.Volume); err == nil {
		q.Volume = v
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	w.cache.Set(writeCtx, cache.NewKey(domain.AssetCrypto, canonical), []domain.Quote{q}, w.ttl)
}

func parsePrice(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty price")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(f), nil
}

// closeConnection safely closes the WebSocket connection
func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect closes the connection and waits for the loop to exit.
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	w.logger.Info("stream disconnected")
}

// IsConnected returns connection status
func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}
