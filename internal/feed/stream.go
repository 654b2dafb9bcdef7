package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"laggard/internal/config"
	"laggard/internal/metrics"
)

// SourceStream labels prices received over the websocket.
const SourceStream = "stream"

// Stream subscribes to a market websocket and republishes a full snapshot
// on every price update. Disconnects are retried with a fixed delay; once
// the reconnect budget is spent the feed degrades and hands the walk over
// to a synthetic generator so downstream consumers keep receiving clearly
// labelled data instead of stalling.
type Stream struct {
	url      string
	markets  map[string]string // asset -> market id
	byMarket map[string]string // market id -> asset
	delay    time.Duration
	budget   int
	fallback *Synthetic

	degraded atomic.Bool
	prices   map[string]float64
	store    store
}

type wsSubscribe struct {
	Type    string   `json:"type"`
	Markets []string `json:"markets"`
}

type wsPriceUpdate struct {
	Type   string `json:"type"`
	Market string `json:"market"`
	Price  string `json:"price"`
}

// NewStream builds a websocket feed. fallback supplies prices after the
// reconnect budget is exhausted; it must cover the same assets.
func NewStream(cfg config.FeedConfig, markets map[string]string, fallback *Synthetic) *Stream {
	byMarket := make(map[string]string, len(markets))
	ids := make(map[string]string, len(markets))
	for asset, id := range markets {
		byMarket[id] = asset
		ids[asset] = id
	}
	return &Stream{
		url:      cfg.WSURL,
		markets:  ids,
		byMarket: byMarket,
		delay:    cfg.RetryDelay.Duration,
		budget:   cfg.MaxRetries,
		fallback: fallback,
		prices:   make(map[string]float64, len(markets)),
	}
}

// Run maintains the subscription until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.consume(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		attempts++
		slog.Warn("stream disconnected", "attempt", attempts, "max", s.budget, "error", err)
		if attempts >= s.budget {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}
	}

	// Budget spent: degrade rather than halt the core.
	s.degraded.Store(true)
	metrics.FeedHealthy.Set(0)
	slog.Error("stream feed degraded: reconnect budget exhausted, switching to synthetic generator")
	return s.fallback.Run(ctx)
}

// consume runs one websocket session to completion.
func (s *Stream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Drop the connection promptly on shutdown so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	ids := make([]string, 0, len(s.markets))
	for _, id := range s.markets {
		ids = append(ids, id)
	}
	if err := conn.WriteJSON(wsSubscribe{Type: "subscribe", Markets: ids}); err != nil {
		return err
	}
	slog.Info("stream connected", "url", s.url, "markets", len(ids))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handle(msg)
	}
}

func (s *Stream) handle(msg []byte) {
	var update wsPriceUpdate
	if err := json.Unmarshal(msg, &update); err != nil {
		slog.Warn("stream message unparseable", "error", err)
		return
	}
	if update.Type != "price_update" {
		return
	}
	asset, ok := s.byMarket[update.Market]
	if !ok {
		return
	}
	price, err := strconv.ParseFloat(update.Price, 64)
	if err != nil || price < 0 || price > 1 {
		slog.Warn("stream price rejected", "asset", asset, "raw", update.Price)
		return
	}

	// Republish a full copy; the stored snapshot is never mutated.
	s.prices[asset] = price
	out := make(map[string]float64, len(s.prices))
	for a, p := range s.prices {
		out[a] = p
	}
	s.store.put(Snapshot{Prices: out, At: time.Now().UTC(), Source: SourceStream})
	metrics.SnapshotsTotal.WithLabelValues(SourceStream).Inc()
}

func (s *Stream) Latest(assets []string) Snapshot {
	if s.degraded.Load() {
		return s.fallback.Latest(assets)
	}
	return s.store.get(assets)
}

func (s *Stream) Health() Health {
	if s.degraded.Load() {
		return HealthDegraded
	}
	return HealthOK
}

func (s *Stream) Close() error {
	return nil
}
