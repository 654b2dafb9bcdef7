package backtest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"laggard/internal/config"
	"laggard/internal/engine"
	"laggard/internal/feed"
	"laggard/internal/strategy"
	"laggard/internal/window"
)

func writeCSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.csv")
	if err := os.WriteFile(path, []byte("timestamp,asset,price\n"+rows), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newRunner(t *testing.T, csvRows string) (*Runner, *Capture) {
	t.Helper()
	cfg := config.DefaultConfig()
	assets := cfg.Assets.All()

	replay, err := feed.NewReplayFromCSV(writeCSV(t, csvRows), assets)
	if err != nil {
		t.Fatal(err)
	}
	clock, err := window.NewClock(cfg.Window.Duration.Duration)
	if err != nil {
		t.Fatal(err)
	}
	capture := &Capture{}
	eng := engine.New(cfg, clock, strategy.NewEngine(cfg.Assets, cfg.Strategy), capture)
	return NewRunner(replay, eng, assets, capture), capture
}

func TestRun_EntryAndTargetHit(t *testing.T) {
	// 10:41 is inside the entry band of the 10:30 window; the second
	// tick carries the laggard to its target.
	rows := `2024-09-01T10:41:00Z,BTC,0.85
2024-09-01T10:41:00Z,ETH,0.82
2024-09-01T10:41:00Z,SOL,0.79
2024-09-01T10:41:00Z,XRP,0.40
2024-09-01T10:41:30Z,BTC,0.85
2024-09-01T10:41:30Z,ETH,0.82
2024-09-01T10:41:30Z,SOL,0.79
2024-09-01T10:41:30Z,XRP,0.90
`
	runner, capture := newRunner(t, rows)

	rep, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if rep.TotalTrades != 1 || rep.Wins != 1 {
		t.Fatalf("expected 1 winning trade, got %+v", rep)
	}
	if math.Abs(rep.TotalPnL-0.50) > 1e-9 {
		t.Errorf("expected pnl +0.50, got %f", rep.TotalPnL)
	}
	if capture.Trades[0].ExitReason != engine.ReasonTargetHit {
		t.Errorf("expected TARGET_HIT, got %s", capture.Trades[0].ExitReason)
	}
}

func TestRun_ForceSettlesAtEnd(t *testing.T) {
	// The position never reaches target or stop and the data ends.
	rows := `2024-09-01T10:41:00Z,BTC,0.85
2024-09-01T10:41:00Z,ETH,0.82
2024-09-01T10:41:00Z,SOL,0.79
2024-09-01T10:41:00Z,XRP,0.40
2024-09-01T10:41:30Z,BTC,0.85
2024-09-01T10:41:30Z,ETH,0.82
2024-09-01T10:41:30Z,SOL,0.79
2024-09-01T10:41:30Z,XRP,0.55
`
	runner, capture := newRunner(t, rows)

	rep, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", rep.TotalTrades)
	}
	trade := capture.Trades[0]
	if trade.ExitReason != engine.ReasonForcedClose {
		t.Errorf("expected FORCED_CLOSE, got %s", trade.ExitReason)
	}
	if trade.ExitPrice != 0.55 {
		t.Errorf("expected settlement at last price 0.55, got %f", trade.ExitPrice)
	}
}

func TestRun_NoSignalsNoTrades(t *testing.T) {
	rows := `2024-09-01T10:41:00Z,BTC,0.50
2024-09-01T10:41:00Z,ETH,0.50
2024-09-01T10:41:00Z,SOL,0.50
2024-09-01T10:41:00Z,XRP,0.50
`
	runner, _ := newRunner(t, rows)

	rep, err := runner.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.TotalTrades != 0 {
		t.Errorf("expected no trades, got %d", rep.TotalTrades)
	}
}

func TestExportCSV(t *testing.T) {
	rows := `2024-09-01T10:41:00Z,BTC,0.85
2024-09-01T10:41:00Z,ETH,0.82
2024-09-01T10:41:00Z,SOL,0.79
2024-09-01T10:41:00Z,XRP,0.40
2024-09-01T10:41:30Z,BTC,0.85
2024-09-01T10:41:30Z,ETH,0.82
2024-09-01T10:41:30Z,SOL,0.79
2024-09-01T10:41:30Z,XRP,0.90
`
	runner, _ := newRunner(t, rows)
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "results.csv")
	if err := runner.ExportCSV(out); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("export produced an empty file")
	}
}

func TestParseDateRange(t *testing.T) {
	from, to, err := ParseDateRange("2024-09-01", "2024-09-07")
	if err != nil {
		t.Fatal(err)
	}
	if !from.Before(to) {
		t.Error("from should precede to")
	}
	// End-inclusive: snapshots on the 7th are covered.
	if to.Day() != 8 {
		t.Errorf("expected to extend past the named day, got %v", to)
	}

	if _, _, err := ParseDateRange("2024-09-07", "2024-09-01"); err == nil {
		t.Error("inverted range should be rejected")
	}
	if _, _, err := ParseDateRange("bogus", ""); err == nil {
		t.Error("bad from date should be rejected")
	}
}
