// Package engine runs the tick-by-tick trading loop: one simulated
// position at a time, opened on a strategy signal inside the entry
// window and closed on stop loss, target, or window expiry. The same
// engine drives both backtests and live trading.
package engine

import (
	"log/slog"
	"time"

	"laggard/internal/config"
	"laggard/internal/feed"
	"laggard/internal/journal"
	"laggard/internal/metrics"
	"laggard/internal/strategy"
	"laggard/internal/window"
)

// Exit reasons, in trigger priority order.
const (
	ReasonStopLoss     = "STOP_LOSS"
	ReasonTargetHit    = "TARGET_HIT"
	ReasonWindowExpiry = "WINDOW_EXPIRY"
	ReasonForcedClose  = "FORCED_CLOSE"
)

// position is an open simulated trade.
type position struct {
	windowID     string
	asset        string
	direction    strategy.Direction
	entryTime    time.Time
	entryPrice   float64
	stopLoss     float64
	groupLabel   string
	groupAssets  []string
	groupPrices  map[string]float64
	stake        float64
}

// Stats summarizes the engine's session so far.
type Stats struct {
	TotalTrades   int
	CumulativePnL float64
}

// Engine holds the per-window trading state.
type Engine struct {
	clock    window.Clock
	strat    *strategy.Engine
	recorder journal.Sink

	trading  config.TradingConfig
	entryMin time.Duration
	entryMax time.Duration

	currentWindowID  string
	tradesThisWindow int
	pos              *position

	totalTrades   int
	cumulativePnL float64

	// last observed price per asset, used to settle at window expiry
	// when the closing snapshot is missing the asset
	lastPrices map[string]float64
}

func New(cfg *config.Config, clock window.Clock, strat *strategy.Engine, recorder journal.Sink) *Engine {
	return &Engine{
		clock:      clock,
		strat:      strat,
		recorder:   recorder,
		trading:    cfg.Trading,
		entryMin:   cfg.Window.EntryMinRemaining.Duration,
		entryMax:   cfg.Window.EntryMaxRemaining.Duration,
		lastPrices: make(map[string]float64),
	}
}

// RunTick processes a single snapshot of prices at time now. Window
// transitions settle any open position first, then exits are checked
// before entries. Re-processing a tick for an already-current window
// does not reset the per-window trade budget.
func (e *Engine) RunTick(now time.Time, prices map[string]float64) error {
	metrics.TicksTotal.Inc()

	win := e.clock.WindowOf(now)
	if win.ID != e.currentWindowID {
		if err := e.transitionWindow(now, win.ID); err != nil {
			return err
		}
	}

	for asset, price := range prices {
		e.lastPrices[asset] = price
	}

	if e.pos != nil {
		return e.checkExit(now, prices)
	}
	return e.checkEntry(now, prices)
}

func (e *Engine) transitionWindow(now time.Time, windowID string) error {
	if e.pos != nil {
		price, ok := e.lastPrices[e.pos.asset]
		if !ok {
			price = feed.NeutralPrice
			slog.Warn("settling without any observed price, using neutral",
				"asset", e.pos.asset, "price", price)
		}
		if err := e.closePosition(now, price, ReasonWindowExpiry); err != nil {
			return err
		}
	}

	slog.Info("new window", "window_id", windowID)
	e.currentWindowID = windowID
	e.tradesThisWindow = 0
	return nil
}

func (e *Engine) checkEntry(now time.Time, prices map[string]float64) error {
	if e.tradesThisWindow >= e.trading.MaxTradesPerWindow {
		return nil
	}
	if !e.clock.EntryEligible(now, e.entryMin, e.entryMax) {
		return nil
	}

	sig := e.strat.Evaluate(prices)
	if !sig.Fired {
		return nil
	}

	e.pos = &position{
		windowID:    e.currentWindowID,
		asset:       sig.Asset,
		direction:   sig.Direction,
		entryTime:   now,
		entryPrice:  sig.TriggerPrice,
		stopLoss:    stopLossPrice(sig.Direction, sig.TriggerPrice, e.trading.StopLossPct),
		groupLabel:  sig.GroupLabel,
		groupAssets: sig.GroupAssets,
		groupPrices: sig.GroupPrices,
		stake:       e.trading.Stake,
	}
	e.tradesThisWindow++

	slog.Info("position opened",
		"window_id", e.currentWindowID,
		"asset", sig.Asset,
		"direction", string(sig.Direction),
		"group", sig.GroupLabel,
		"entry_price", sig.TriggerPrice,
		"stop_loss", e.pos.stopLoss,
		"stake", e.trading.Stake,
	)
	return nil
}

func (e *Engine) checkExit(now time.Time, prices map[string]float64) error {
	price, ok := prices[e.pos.asset]
	if !ok {
		slog.Warn("no price for open position asset", "asset", e.pos.asset)
		return nil
	}

	if stopLossTriggered(e.pos.direction, price, e.pos.stopLoss) {
		return e.closePosition(now, price, ReasonStopLoss)
	}
	if e.strat.CheckExit(e.pos.direction, price) {
		return e.closePosition(now, price, ReasonTargetHit)
	}
	return nil
}

// ForceSettle closes any open position at the last observed price. It
// is called on shutdown and at the end of a backtest.
func (e *Engine) ForceSettle(now time.Time) error {
	if e.pos == nil {
		return nil
	}
	price, ok := e.lastPrices[e.pos.asset]
	if !ok {
		price = feed.NeutralPrice
	}
	return e.closePosition(now, price, ReasonForcedClose)
}

func (e *Engine) closePosition(now time.Time, exitPrice float64, reason string) error {
	pos := e.pos
	e.pos = nil

	var pnlPct float64
	if pos.direction == strategy.DirectionUp {
		pnlPct = exitPrice - pos.entryPrice
	} else {
		pnlPct = pos.entryPrice - exitPrice
	}
	pnl := pnlPct * pos.stake

	outcome := "LOSS"
	if pnl > 0 {
		outcome = "WIN"
	}

	e.totalTrades++
	e.cumulativePnL += pnl

	trade := journal.ClosedTrade{
		TradeNumber:      e.totalTrades,
		WindowID:         pos.windowID,
		Asset:            pos.asset,
		Direction:        string(pos.direction),
		GroupLabel:       pos.groupLabel,
		GroupAssets:      pos.groupAssets,
		GroupPricesEntry: pos.groupPrices,
		EntryTime:        pos.entryTime,
		ExitTime:         now,
		EntryPrice:       pos.entryPrice,
		ExitPrice:        exitPrice,
		ExitReason:       reason,
		PnLPct:           pnlPct,
		PnL:              pnl,
		Stake:            pos.stake,
		Outcome:          outcome,
		CumulativePnL:    e.cumulativePnL,
	}

	metrics.TradesTotal.WithLabelValues(string(pos.direction), reason, outcome).Inc()
	metrics.CumulativePnL.Set(e.cumulativePnL)

	slog.Info("position closed",
		"window_id", pos.windowID,
		"asset", pos.asset,
		"direction", string(pos.direction),
		"reason", reason,
		"entry_price", pos.entryPrice,
		"exit_price", exitPrice,
		"pnl", pnl,
		"outcome", outcome,
		"cumulative_pnl", e.cumulativePnL,
		"trade_number", e.totalTrades,
	)

	if e.recorder != nil {
		return e.recorder.Append(trade)
	}
	return nil
}

// HasOpenPosition reports whether a position is currently held.
func (e *Engine) HasOpenPosition() bool {
	return e.pos != nil
}

func (e *Engine) Stats() Stats {
	return Stats{TotalTrades: e.totalTrades, CumulativePnL: e.cumulativePnL}
}

func stopLossPrice(dir strategy.Direction, entry, pct float64) float64 {
	if dir == strategy.DirectionUp {
		return max(0, entry-pct)
	}
	return min(1, entry+pct)
}

func stopLossTriggered(dir strategy.Direction, price, stopLoss float64) bool {
	if dir == strategy.DirectionUp {
		return price <= stopLoss
	}
	return price >= stopLoss
}
