// Package live runs the trading engine against a realtime feed.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"laggard/internal/collector"
	"laggard/internal/engine"
	"laggard/internal/feed"
	"laggard/internal/metrics"
)

// Trader ticks the engine on a fixed interval until its context is
// cancelled, then force-settles whatever is still open.
type Trader struct {
	feed      feed.Feed
	eng       *engine.Engine
	collector *collector.Collector
	assets    []string
	interval  time.Duration
}

func NewTrader(f feed.Feed, eng *engine.Engine, coll *collector.Collector, assets []string, interval time.Duration) *Trader {
	return &Trader{
		feed:      f,
		eng:       eng,
		collector: coll,
		assets:    assets,
		interval:  interval,
	}
}

// Run blocks until ctx is cancelled. The feed's own loop, if any, must
// already be running.
func (t *Trader) Run(ctx context.Context) error {
	slog.Info("live trading starting",
		"assets", strings.Join(t.assets, ","),
		"tick_interval", t.interval,
	)

	t.tick()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	priceLog := time.NewTicker(time.Minute)
	defer priceLog.Stop()

	for {
		select {
		case <-ctx.Done():
			return t.shutdown()
		case <-ticker.C:
			t.tick()
		case <-priceLog.C:
			t.logPrices()
		}
	}
}

func (t *Trader) tick() {
	snap := t.feed.Latest(t.assets)
	// A bare "default" source means the feed has published nothing yet.
	if snap.Source == "default" {
		slog.Warn("no prices yet, skipping tick")
		return
	}

	now := time.Now().UTC()
	if err := t.eng.RunTick(now, snap.Prices); err != nil {
		slog.Error("tick failed", "error", err)
	}

	if t.collector != nil {
		if err := t.collector.Collect(snap); err != nil {
			slog.Error("snapshot collection failed", "error", err)
		}
	}

	if t.feed.Health() == feed.HealthDegraded {
		metrics.FeedHealthy.Set(0)
	} else {
		metrics.FeedHealthy.Set(1)
	}
}

func (t *Trader) logPrices() {
	snap := t.feed.Latest(t.assets)
	if snap.Source == "default" {
		return
	}

	assets := make([]string, 0, len(snap.Prices))
	for a := range snap.Prices {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	parts := make([]string, 0, len(assets))
	for _, a := range assets {
		parts = append(parts, fmt.Sprintf("%s=%.3f", a, snap.Prices[a]))
	}

	slog.Info("prices",
		"snapshot", strings.Join(parts, " "),
		"source", snap.Source,
		"health", string(t.feed.Health()),
	)
}

func (t *Trader) shutdown() error {
	slog.Info("live trading shutting down")

	if err := t.eng.ForceSettle(time.Now().UTC()); err != nil {
		return fmt.Errorf("settling on shutdown: %w", err)
	}

	stats := t.eng.Stats()
	slog.Info("session summary",
		"total_trades", stats.TotalTrades,
		"cumulative_pnl", stats.CumulativePnL,
	)
	return nil
}
