package engine

import (
	"math"
	"testing"
	"time"

	"laggard/internal/config"
	"laggard/internal/journal"
	"laggard/internal/strategy"
	"laggard/internal/window"
)

// captureSink collects closed trades in memory.
type captureSink struct {
	trades []journal.ClosedTrade
}

func (c *captureSink) Append(t journal.ClosedTrade) error {
	c.trades = append(c.trades, t)
	return nil
}

func newTestEngine(t *testing.T, mutate func(*config.Config)) (*Engine, *captureSink) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	clock, err := window.NewClock(cfg.Window.Duration.Duration)
	if err != nil {
		t.Fatal(err)
	}
	sink := &captureSink{}
	strat := strategy.NewEngine(cfg.Assets, cfg.Strategy)
	return New(cfg, clock, strat, sink), sink
}

// eligibleTime is inside the entry band of its 15-minute window:
// window 10:30-10:45, 240s remaining (band is 90s-300s).
var eligibleTime = time.Date(2024, 9, 1, 10, 41, 0, 0, time.UTC)

func upSignalPrices() map[string]float64 {
	return map[string]float64{"BTC": 0.85, "ETH": 0.82, "SOL": 0.79, "XRP": 0.40}
}

func downSignalPrices() map[string]float64 {
	return map[string]float64{"BTC": 0.10, "ETH": 0.12, "SOL": 0.15, "XRP": 0.80}
}

func TestRunTick_UpEntryAndTargetExit(t *testing.T) {
	eng, sink := newTestEngine(t, nil)

	if err := eng.RunTick(eligibleTime, upSignalPrices()); err != nil {
		t.Fatal(err)
	}
	if !eng.HasOpenPosition() {
		t.Fatal("expected an open position after signal tick")
	}

	next := eligibleTime.Add(30 * time.Second)
	prices := upSignalPrices()
	prices["XRP"] = 0.90
	if err := eng.RunTick(next, prices); err != nil {
		t.Fatal(err)
	}

	if len(sink.trades) != 1 {
		t.Fatalf("expected 1 closed trade, got %d", len(sink.trades))
	}
	trade := sink.trades[0]
	if trade.ExitReason != ReasonTargetHit {
		t.Errorf("expected TARGET_HIT, got %s", trade.ExitReason)
	}
	if trade.Asset != "XRP" || trade.Direction != "UP" {
		t.Errorf("unexpected trade: %s %s", trade.Asset, trade.Direction)
	}
	if math.Abs(trade.PnL-0.50) > 1e-9 {
		t.Errorf("expected pnl +0.50, got %f", trade.PnL)
	}
	if trade.Outcome != "WIN" {
		t.Errorf("expected WIN, got %s", trade.Outcome)
	}
}

func TestRunTick_DownStopLoss(t *testing.T) {
	eng, sink := newTestEngine(t, func(cfg *config.Config) {
		cfg.Trading.StopLossPct = 0.15
	})

	if err := eng.RunTick(eligibleTime, downSignalPrices()); err != nil {
		t.Fatal(err)
	}
	if !eng.HasOpenPosition() {
		t.Fatal("expected an open position after signal tick")
	}

	// Entry at 0.80 with a 15% stop puts the stop at 0.95.
	prices := downSignalPrices()
	prices["XRP"] = 0.96
	if err := eng.RunTick(eligibleTime.Add(30*time.Second), prices); err != nil {
		t.Fatal(err)
	}

	if len(sink.trades) != 1 {
		t.Fatalf("expected 1 closed trade, got %d", len(sink.trades))
	}
	trade := sink.trades[0]
	if trade.ExitReason != ReasonStopLoss {
		t.Errorf("expected STOP_LOSS, got %s", trade.ExitReason)
	}
	if math.Abs(trade.PnL-(-0.16)) > 1e-9 {
		t.Errorf("expected pnl -0.16, got %f", trade.PnL)
	}
	if trade.Outcome != "LOSS" {
		t.Errorf("expected LOSS, got %s", trade.Outcome)
	}
}

func TestRunTick_AtMostOneTradePerWindow(t *testing.T) {
	eng, sink := newTestEngine(t, nil)

	if err := eng.RunTick(eligibleTime, upSignalPrices()); err != nil {
		t.Fatal(err)
	}
	prices := upSignalPrices()
	prices["XRP"] = 0.90
	if err := eng.RunTick(eligibleTime.Add(10*time.Second), prices); err != nil {
		t.Fatal(err)
	}

	// Still in the same window with a fresh signal: the budget is spent.
	if err := eng.RunTick(eligibleTime.Add(20*time.Second), upSignalPrices()); err != nil {
		t.Fatal(err)
	}
	if eng.HasOpenPosition() {
		t.Error("second entry in the same window should be refused")
	}
	if len(sink.trades) != 1 {
		t.Errorf("expected 1 trade, got %d", len(sink.trades))
	}
}

func TestRunTick_NewWindowResetsBudget(t *testing.T) {
	eng, sink := newTestEngine(t, nil)

	if err := eng.RunTick(eligibleTime, upSignalPrices()); err != nil {
		t.Fatal(err)
	}
	prices := upSignalPrices()
	prices["XRP"] = 0.90
	if err := eng.RunTick(eligibleTime.Add(10*time.Second), prices); err != nil {
		t.Fatal(err)
	}

	// Next window, inside its entry band again.
	nextWindow := time.Date(2024, 9, 1, 10, 56, 0, 0, time.UTC)
	if err := eng.RunTick(nextWindow, upSignalPrices()); err != nil {
		t.Fatal(err)
	}
	if !eng.HasOpenPosition() {
		t.Error("expected the new window to allow a fresh entry")
	}
	if len(sink.trades) != 1 {
		t.Errorf("expected 1 closed trade so far, got %d", len(sink.trades))
	}
}

func TestRunTick_WindowExpirySettlesAtLastObservedPrice(t *testing.T) {
	eng, sink := newTestEngine(t, nil)

	if err := eng.RunTick(eligibleTime, upSignalPrices()); err != nil {
		t.Fatal(err)
	}

	// Position rides to the boundary at 0.55, below target and above stop.
	prices := upSignalPrices()
	prices["XRP"] = 0.55
	if err := eng.RunTick(eligibleTime.Add(time.Minute), prices); err != nil {
		t.Fatal(err)
	}
	if !eng.HasOpenPosition() {
		t.Fatal("position should still be open")
	}

	// First tick of the next window settles the carryover position.
	boundary := time.Date(2024, 9, 1, 10, 45, 1, 0, time.UTC)
	if err := eng.RunTick(boundary, upSignalPrices()); err != nil {
		t.Fatal(err)
	}

	if len(sink.trades) != 1 {
		t.Fatalf("expected 1 closed trade, got %d", len(sink.trades))
	}
	trade := sink.trades[0]
	if trade.ExitReason != ReasonWindowExpiry {
		t.Errorf("expected WINDOW_EXPIRY, got %s", trade.ExitReason)
	}
	if trade.ExitPrice != 0.55 {
		t.Errorf("expected settlement at last observed 0.55, got %f", trade.ExitPrice)
	}
	if math.Abs(trade.PnL-0.15) > 1e-9 {
		t.Errorf("expected pnl +0.15, got %f", trade.PnL)
	}
}

func TestRunTick_NotEligibleOutsideEntryBand(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	// 10:31: 840s remaining, above the 300s ceiling.
	early := time.Date(2024, 9, 1, 10, 31, 0, 0, time.UTC)
	if err := eng.RunTick(early, upSignalPrices()); err != nil {
		t.Fatal(err)
	}
	if eng.HasOpenPosition() {
		t.Error("entry should be refused outside the eligibility band")
	}

	// 10:44: 60s remaining, below the 90s floor.
	late := time.Date(2024, 9, 1, 10, 44, 0, 0, time.UTC)
	if err := eng.RunTick(late, upSignalPrices()); err != nil {
		t.Fatal(err)
	}
	if eng.HasOpenPosition() {
		t.Error("entry should be refused too close to the boundary")
	}
}

func TestForceSettle(t *testing.T) {
	eng, sink := newTestEngine(t, nil)

	if err := eng.RunTick(eligibleTime, upSignalPrices()); err != nil {
		t.Fatal(err)
	}
	if err := eng.ForceSettle(eligibleTime.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	if eng.HasOpenPosition() {
		t.Error("force settle should clear the position")
	}
	if len(sink.trades) != 1 {
		t.Fatalf("expected 1 closed trade, got %d", len(sink.trades))
	}
	if sink.trades[0].ExitReason != ReasonForcedClose {
		t.Errorf("expected FORCED_CLOSE, got %s", sink.trades[0].ExitReason)
	}
	// No price moves after entry: exit at the entry price, flat pnl.
	if sink.trades[0].PnL != 0 {
		t.Errorf("expected flat pnl, got %f", sink.trades[0].PnL)
	}
	if sink.trades[0].Outcome != "LOSS" {
		t.Errorf("flat trades are not wins, got %s", sink.trades[0].Outcome)
	}
}

func TestForceSettle_NoPositionIsNoop(t *testing.T) {
	eng, sink := newTestEngine(t, nil)
	if err := eng.ForceSettle(eligibleTime); err != nil {
		t.Fatal(err)
	}
	if len(sink.trades) != 0 {
		t.Errorf("expected no trades, got %d", len(sink.trades))
	}
}

func TestStats_Accumulate(t *testing.T) {
	eng, _ := newTestEngine(t, nil)

	if err := eng.RunTick(eligibleTime, upSignalPrices()); err != nil {
		t.Fatal(err)
	}
	prices := upSignalPrices()
	prices["XRP"] = 0.90
	if err := eng.RunTick(eligibleTime.Add(10*time.Second), prices); err != nil {
		t.Fatal(err)
	}

	stats := eng.Stats()
	if stats.TotalTrades != 1 {
		t.Errorf("expected 1 trade, got %d", stats.TotalTrades)
	}
	if math.Abs(stats.CumulativePnL-0.50) > 1e-9 {
		t.Errorf("expected cumulative pnl +0.50, got %f", stats.CumulativePnL)
	}
}
