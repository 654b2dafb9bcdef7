// Package feed delivers per-asset price snapshots to the trading core.
//
// Adapters differ in where prices come from (historical replay, REST
// polling, websocket stream, synthetic generator) but share one rule:
// a snapshot is swapped in whole, never mutated field by field, so the
// tick loop can never observe a half-updated set of prices.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Health is the advisory state of a feed.
type Health string

const (
	HealthOK       Health = "OK"
	HealthDegraded Health = "DEGRADED"
)

// NeutralPrice fills in for assets the feed has never priced. 0.5 is the
// midpoint of a binary market: no information either way.
const NeutralPrice = 0.5

// Snapshot is one immutable set of per-asset prices. Source identifies
// where the prices came from so synthetic or defaulted data is never
// mistaken for the real thing.
type Snapshot struct {
	Prices map[string]float64
	At     time.Time
	Source string
}

// Feed is the read side every driver consumes.
type Feed interface {
	// Latest returns the most recent snapshot restricted to the given
	// assets. Assets the feed cannot price are filled with NeutralPrice
	// and logged; Latest never fails.
	Latest(assets []string) Snapshot
	// Health reports whether the feed is serving fresh data.
	Health() Health
	Close() error
}

// Streamer is a Feed that refreshes itself from a background loop.
type Streamer interface {
	Feed
	// Run blocks until ctx is cancelled, continuously refreshing the
	// latest snapshot.
	Run(ctx context.Context) error
}

// store holds the current snapshot behind a lock. Writers replace the
// snapshot wholesale.
type store struct {
	mu   sync.RWMutex
	snap Snapshot
}

func (s *store) put(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// get builds a snapshot for the requested assets from the stored one,
// filling gaps with NeutralPrice.
func (s *store) get(assets []string) Snapshot {
	s.mu.RLock()
	cur := s.snap
	s.mu.RUnlock()

	out := Snapshot{
		Prices: make(map[string]float64, len(assets)),
		At:     cur.At,
		Source: cur.Source,
	}
	if out.At.IsZero() {
		out.At = time.Now().UTC()
	}
	for _, asset := range assets {
		p, ok := cur.Prices[asset]
		if !ok {
			slog.Warn("no price for asset, using neutral default",
				"asset", asset, "default", NeutralPrice)
			p = NeutralPrice
			out.Source = sourceDefaulted(cur.Source)
		}
		out.Prices[asset] = p
	}
	return out
}

func sourceDefaulted(src string) string {
	if src == "" {
		return "default"
	}
	return src + "+default"
}
