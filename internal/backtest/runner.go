// Package backtest replays historical price snapshots through the
// trading engine and reports the results.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"laggard/internal/engine"
	"laggard/internal/feed"
	"laggard/internal/journal"
	"laggard/internal/report"
)

// Capture is a journal sink that keeps closed trades in memory so the
// runner can build a report at the end.
type Capture struct {
	Trades []journal.ClosedTrade
}

func (c *Capture) Append(t journal.ClosedTrade) error {
	c.Trades = append(c.Trades, t)
	return nil
}

// Runner drives the engine over a replay feed.
type Runner struct {
	replay  *feed.Replay
	eng     *engine.Engine
	assets  []string
	capture *Capture
}

func NewRunner(replay *feed.Replay, eng *engine.Engine, assets []string, capture *Capture) *Runner {
	return &Runner{replay: replay, eng: eng, assets: assets, capture: capture}
}

// Run walks every replay timestamp in order, force-settles any position
// left open at the end, and returns the performance report.
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	total := r.replay.Len()
	slog.Info("backtest starting", "timestamps", total)

	processed := 0
	var last time.Time
	for r.replay.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snap := r.replay.Latest(r.assets)
		last = r.replay.Now()
		if err := r.eng.RunTick(last, snap.Prices); err != nil {
			return nil, fmt.Errorf("tick at %s: %w", last.Format(time.RFC3339), err)
		}

		processed++
		if processed%1000 == 0 {
			slog.Info("backtest progress", "processed", processed, "total", total)
		}
	}

	if err := r.eng.ForceSettle(last); err != nil {
		return nil, fmt.Errorf("final settlement: %w", err)
	}

	stats := r.eng.Stats()
	slog.Info("backtest complete",
		"timestamps_processed", processed,
		"trades", stats.TotalTrades,
		"pnl", stats.CumulativePnL,
	)

	return report.Build(r.capture.Trades), nil
}

// ExportCSV writes the captured trades to a results file.
func (r *Runner) ExportCSV(path string) error {
	if len(r.capture.Trades) == 0 {
		return nil
	}
	w, err := journal.NewCSVWriter(path)
	if err != nil {
		return err
	}
	defer w.Close()
	for _, t := range r.capture.Trades {
		if err := w.Append(t); err != nil {
			return fmt.Errorf("exporting trade %d: %w", t.TradeNumber, err)
		}
	}
	slog.Info("results exported", "path", path, "trades", len(r.capture.Trades))
	return nil
}

// ParseDateRange parses a from/to date pair, defaulting to the last 30
// days when either end is empty.
func ParseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from := time.Now().UTC().AddDate(0, 0, -30)
	to := time.Now().UTC()

	var err error
	if fromStr != "" {
		if from, err = time.Parse("2006-01-02", fromStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing from date: %w", err)
		}
	}
	if toStr != "" {
		if to, err = time.Parse("2006-01-02", toStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing to date: %w", err)
		}
		// Make the range end-inclusive for whole days.
		to = to.AddDate(0, 0, 1)
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from date %s is not before to date %s", fromStr, toStr)
	}
	return from, to, nil
}
