// Package report aggregates closed trades into a performance summary.
package report

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"laggard/internal/journal"
)

// Report contains the session's performance metrics.
type Report struct {
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64

	TotalPnL     float64
	AvgWin       float64
	AvgLoss      float64
	MaxWin       float64
	MaxLoss      float64
	MaxDrawdown  float64 // peak-to-trough on the cumulative pnl curve, <= 0
	ProfitFactor float64 // gross profit / gross loss; 0 when no losses

	UpTrades   int
	DownTrades int
	G1Trades   int
	G2Trades   int

	AssetStats map[string]AssetStats
}

// AssetStats is per-asset performance.
type AssetStats struct {
	Trades int
	PnL    float64
	AvgPnL float64
}

// Build aggregates trades in close order.
func Build(trades []journal.ClosedTrade) *Report {
	r := &Report{AssetStats: make(map[string]AssetStats)}

	var grossProfit, grossLoss float64
	var cumulative, peak float64

	for _, t := range trades {
		r.TotalTrades++
		r.TotalPnL += t.PnL

		if t.PnL > 0 {
			r.Wins++
			grossProfit += t.PnL
			if t.PnL > r.MaxWin {
				r.MaxWin = t.PnL
			}
		} else {
			r.Losses++
			grossLoss += -t.PnL
			if t.PnL < r.MaxLoss {
				r.MaxLoss = t.PnL
			}
		}

		switch t.Direction {
		case "UP":
			r.UpTrades++
		case "DOWN":
			r.DownTrades++
		}
		switch t.GroupLabel {
		case "G1":
			r.G1Trades++
		case "G2":
			r.G2Trades++
		}

		stats := r.AssetStats[t.Asset]
		stats.Trades++
		stats.PnL += t.PnL
		r.AssetStats[t.Asset] = stats

		cumulative += t.PnL
		peak = math.Max(peak, cumulative)
		r.MaxDrawdown = math.Min(r.MaxDrawdown, cumulative-peak)
	}

	if r.TotalTrades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.TotalTrades)
	}
	if r.Wins > 0 {
		r.AvgWin = grossProfit / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AvgLoss = -grossLoss / float64(r.Losses)
	}
	if grossLoss > 0 {
		r.ProfitFactor = grossProfit / grossLoss
	}
	for asset, stats := range r.AssetStats {
		stats.AvgPnL = stats.PnL / float64(stats.Trades)
		r.AssetStats[asset] = stats
	}

	return r
}

// Load reads closed trades back from the trades table in close order.
func Load(db *sql.DB) ([]journal.ClosedTrade, error) {
	rows, err := db.Query(`
		SELECT trade_number, window_id, asset, direction, group_label,
		       group_assets, group_prices_entry, entry_time, exit_time,
		       entry_price, exit_price, exit_reason, pnl_pct, pnl, stake, outcome, cumulative_pnl
		FROM trades ORDER BY trade_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []journal.ClosedTrade
	for rows.Next() {
		var t journal.ClosedTrade
		var groupAssets, groupPrices, entryTime, exitTime string
		if err := rows.Scan(&t.TradeNumber, &t.WindowID, &t.Asset, &t.Direction, &t.GroupLabel,
			&groupAssets, &groupPrices, &entryTime, &exitTime,
			&t.EntryPrice, &t.ExitPrice, &t.ExitReason, &t.PnLPct, &t.PnL, &t.Stake, &t.Outcome, &t.CumulativePnL); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		if err := json.Unmarshal([]byte(groupAssets), &t.GroupAssets); err != nil {
			return nil, fmt.Errorf("decoding group assets: %w", err)
		}
		if err := json.Unmarshal([]byte(groupPrices), &t.GroupPricesEntry); err != nil {
			return nil, fmt.Errorf("decoding group prices: %w", err)
		}
		if t.EntryTime, err = time.Parse(time.RFC3339, entryTime); err != nil {
			return nil, fmt.Errorf("parsing entry time: %w", err)
		}
		if t.ExitTime, err = time.Parse(time.RFC3339, exitTime); err != nil {
			return nil, fmt.Errorf("parsing exit time: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Log emits the report as structured JSON.
func Log(r *Report) {
	if r.TotalTrades == 0 {
		slog.Warn("no trades to report")
		return
	}

	slog.Info("=== PERFORMANCE REPORT ===",
		"total_trades", r.TotalTrades,
		"wins", r.Wins,
		"losses", r.Losses,
		"win_rate", r.WinRate,
		"total_pnl", r.TotalPnL,
		"avg_win", r.AvgWin,
		"avg_loss", r.AvgLoss,
		"max_win", r.MaxWin,
		"max_loss", r.MaxLoss,
		"max_drawdown", r.MaxDrawdown,
		"profit_factor", r.ProfitFactor,
		"up_trades", r.UpTrades,
		"down_trades", r.DownTrades,
		"g1_trades", r.G1Trades,
		"g2_trades", r.G2Trades,
	)

	for asset, stats := range r.AssetStats {
		slog.Info("asset performance",
			"asset", asset,
			"trades", stats.Trades,
			"pnl", stats.PnL,
			"avg_pnl", stats.AvgPnL,
		)
	}
}

// Format renders the report as a plain-text table for the console.
func Format(r *Report) string {
	var b strings.Builder
	line := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "%s\nBACKTEST RESULTS\n%s\n\n", line, line)
	fmt.Fprintf(&b, "TRADE STATISTICS\n")
	fmt.Fprintf(&b, "  Total Trades:   %d\n", r.TotalTrades)
	fmt.Fprintf(&b, "  Winning Trades: %d (%.1f%%)\n", r.Wins, r.WinRate*100)
	fmt.Fprintf(&b, "  Losing Trades:  %d (%.1f%%)\n", r.Losses, (1-r.WinRate)*100)
	fmt.Fprintf(&b, "  UP Trades:      %d\n", r.UpTrades)
	fmt.Fprintf(&b, "  DOWN Trades:    %d\n", r.DownTrades)
	fmt.Fprintf(&b, "  Group G1:       %d\n", r.G1Trades)
	fmt.Fprintf(&b, "  Group G2:       %d\n\n", r.G2Trades)

	fmt.Fprintf(&b, "P&L STATISTICS\n")
	fmt.Fprintf(&b, "  Total P&L:      $%.2f\n", r.TotalPnL)
	fmt.Fprintf(&b, "  Average Win:    $%.2f\n", r.AvgWin)
	fmt.Fprintf(&b, "  Average Loss:   $%.2f\n", r.AvgLoss)
	fmt.Fprintf(&b, "  Max Win:        $%.2f\n", r.MaxWin)
	fmt.Fprintf(&b, "  Max Loss:       $%.2f\n", r.MaxLoss)
	fmt.Fprintf(&b, "  Max Drawdown:   $%.2f\n", r.MaxDrawdown)
	if r.ProfitFactor > 0 {
		fmt.Fprintf(&b, "  Profit Factor:  %.2f\n", r.ProfitFactor)
	}

	fmt.Fprintf(&b, "\nPER-ASSET PERFORMANCE\n")
	for asset, stats := range r.AssetStats {
		fmt.Fprintf(&b, "  %s: %d trades | Total: $%.2f | Avg: $%.2f\n",
			asset, stats.Trades, stats.PnL, stats.AvgPnL)
	}
	fmt.Fprintf(&b, "%s\n", line)

	return b.String()
}
