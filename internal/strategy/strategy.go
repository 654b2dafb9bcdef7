// Package strategy implements the group/laggard entry signal and the
// target-exit check shared by the backtest and live drivers.
package strategy

import (
	"fmt"
	"log/slog"

	"laggard/internal/config"
)

// Direction is the side of a trade on a probability-priced market.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Signal is the outcome of one evaluation. Fired is false when no group
// configuration matched; the remaining fields are then zero.
type Signal struct {
	Fired        bool
	Direction    Direction
	Asset        string             // the laggard to trade
	GroupLabel   string             // "G1" or "G2"
	GroupAssets  []string           // ordered: references first, then the grouped tradeable
	GroupPrices  map[string]float64 // group subset of the snapshot at evaluation time
	TriggerPrice float64            // laggard price at evaluation time
	Reason       string
}

// Engine evaluates the two group configurations against price snapshots.
// It is stateless apart from its immutable configuration.
type Engine struct {
	reference []string
	tradeable []string
	cfg       config.StrategyConfig
}

func NewEngine(assets config.AssetConfig, cfg config.StrategyConfig) *Engine {
	return &Engine{
		reference: assets.Reference,
		tradeable: assets.Tradeable,
		cfg:       cfg,
	}
}

// Evaluate returns at most one signal for the given prices. Group 1
// (references + tradeable[0], laggard tradeable[1]) is checked before
// Group 2 and wins outright when both would fire. Missing assets yield
// no signal, never an error.
func (e *Engine) Evaluate(prices map[string]float64) Signal {
	if sig := e.evaluateGroup(prices, "G1", e.tradeable[0], e.tradeable[1]); sig.Fired {
		return sig
	}
	return e.evaluateGroup(prices, "G2", e.tradeable[1], e.tradeable[0])
}

func (e *Engine) evaluateGroup(prices map[string]float64, label, grouped, laggard string) Signal {
	groupAssets := make([]string, 0, len(e.reference)+1)
	groupAssets = append(groupAssets, e.reference...)
	groupAssets = append(groupAssets, grouped)

	groupPrices := make(map[string]float64, len(groupAssets))
	for _, asset := range groupAssets {
		p, ok := prices[asset]
		if !ok {
			slog.Debug("signal skipped: missing group price", "group", label, "asset", asset)
			return Signal{}
		}
		groupPrices[asset] = p
	}

	laggardPrice, ok := prices[laggard]
	if !ok {
		slog.Debug("signal skipped: missing laggard price", "group", label, "asset", laggard)
		return Signal{}
	}

	if allIn(groupPrices, e.cfg.HighZone) && e.cfg.LaggardUpZone.Contains(laggardPrice) {
		return Signal{
			Fired:        true,
			Direction:    DirectionUp,
			Asset:        laggard,
			GroupLabel:   label,
			GroupAssets:  groupAssets,
			GroupPrices:  groupPrices,
			TriggerPrice: laggardPrice,
			Reason:       fmt.Sprintf("%s group high, laggard %s low at %.3f", label, laggard, laggardPrice),
		}
	}

	if allIn(groupPrices, e.cfg.LowZone) && e.cfg.LaggardDownZone.Contains(laggardPrice) {
		return Signal{
			Fired:        true,
			Direction:    DirectionDown,
			Asset:        laggard,
			GroupLabel:   label,
			GroupAssets:  groupAssets,
			GroupPrices:  groupPrices,
			TriggerPrice: laggardPrice,
			Reason:       fmt.Sprintf("%s group low, laggard %s high at %.3f", label, laggard, laggardPrice),
		}
	}

	return Signal{}
}

// CheckExit reports whether an open position has reached its target. It
// looks only at the traded asset's current price, not the group.
func (e *Engine) CheckExit(dir Direction, price float64) bool {
	switch dir {
	case DirectionUp:
		return price >= e.cfg.ExitUp
	case DirectionDown:
		return price <= e.cfg.ExitDown
	}
	return false
}

func allIn(prices map[string]float64, zone config.Zone) bool {
	for _, p := range prices {
		if !zone.Contains(p) {
			return false
		}
	}
	return true
}
