// Package sample generates synthetic historical price files that the
// backtester can replay.
package sample

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"laggard/internal/feed"
)

// Generate writes one-minute synthetic price records for [from, to) to
// path, shaped timestamp,asset,price. The walk injects periodic signal
// scenarios so a backtest over the file produces trades.
func Generate(path string, reference, tradeable []string, from, to time.Time, seed int64) (int, error) {
	if !from.Before(to) {
		return 0, fmt.Errorf("start %s is not before end %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating sample file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "asset", "price"}); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}

	gen := feed.NewSynthetic(reference, tradeable, time.Minute, seed)
	assets := make([]string, 0, len(reference)+len(tradeable))
	assets = append(assets, reference...)
	assets = append(assets, tradeable...)

	records := 0
	for ts := from; ts.Before(to); ts = ts.Add(time.Minute) {
		gen.Step(ts)
		snap := gen.Latest(assets)
		for _, asset := range assets {
			rec := []string{
				ts.UTC().Format(time.RFC3339),
				asset,
				strconv.FormatFloat(snap.Prices[asset], 'f', 4, 64),
			}
			if err := w.Write(rec); err != nil {
				return 0, fmt.Errorf("writing record: %w", err)
			}
			records++
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flushing sample file: %w", err)
	}

	slog.Info("sample data generated",
		"path", path,
		"records", records,
		"from", from.Format("2006-01-02"),
		"to", to.Format("2006-01-02"),
	)
	return records, nil
}
