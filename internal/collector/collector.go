// Package collector persists live price snapshots so later backtests
// can replay them.
package collector

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"laggard/internal/feed"
	"laggard/internal/metrics"
)

// Collector writes feed snapshots into the price_snapshots table.
type Collector struct {
	db     *sql.DB
	assets []string

	lastAt time.Time
}

func New(db *sql.DB, assets []string) *Collector {
	return &Collector{db: db, assets: assets}
}

// Collect stores the snapshot unless it repeats the previous timestamp.
// One row per asset, all sharing the snapshot's recorded_at, so replay
// can reassemble complete snapshots by grouping on the timestamp.
func (c *Collector) Collect(snap feed.Snapshot) error {
	if !snap.At.After(c.lastAt) {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning snapshot tx: %w", err)
	}
	defer tx.Rollback()

	recordedAt := snap.At.UTC().Format(time.RFC3339)
	stored := 0
	for _, asset := range c.assets {
		price, ok := snap.Prices[asset]
		if !ok {
			slog.Warn("snapshot missing asset, not stored", "asset", asset)
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO price_snapshots (asset, price, source, recorded_at)
			VALUES (?, ?, ?, ?)`,
			asset, price, snap.Source, recordedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting price snapshot for %s: %w", asset, err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot tx: %w", err)
	}

	c.lastAt = snap.At
	metrics.SnapshotsTotal.WithLabelValues(snap.Source).Inc()
	slog.Debug("snapshot stored", "assets", stored, "recorded_at", recordedAt)
	return nil
}
