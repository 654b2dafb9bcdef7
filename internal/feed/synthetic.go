package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"laggard/internal/metrics"
)

// SourceSynthetic labels generated prices so they are never confused
// with market data.
const SourceSynthetic = "synthetic"

// ticks between scenario injections in the synthetic walk
const scenarioEvery = 30

// Synthetic generates a random-walk price stream with periodic engineered
// signal scenarios, for demos and offline testing. A fixed seed makes the
// stream reproducible.
type Synthetic struct {
	assets    []string
	reference []string
	tradeable []string
	interval  time.Duration
	rng       *rand.Rand

	prices    map[string]float64
	iteration int
	store     store
}

// NewSynthetic builds a generator over the given assets. reference and
// tradeable control which assets the injected scenarios move together;
// tradeable must hold two symbols.
func NewSynthetic(reference, tradeable []string, interval time.Duration, seed int64) *Synthetic {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	assets := make([]string, 0, len(reference)+len(tradeable))
	assets = append(assets, reference...)
	assets = append(assets, tradeable...)

	prices := make(map[string]float64, len(assets))
	for _, a := range assets {
		prices[a] = 0.45 + rng.Float64()*0.10
	}

	return &Synthetic{
		assets:    assets,
		reference: reference,
		tradeable: tradeable,
		interval:  interval,
		rng:       rng,
		prices:    prices,
	}
}

// Run advances the walk on a fixed cadence until ctx is cancelled.
func (s *Synthetic) Run(ctx context.Context) error {
	slog.Info("synthetic feed running", "assets", s.assets, "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Step(time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Step(now.UTC())
		}
	}
}

// Step advances the walk by one emission and publishes the new snapshot.
func (s *Synthetic) Step(now time.Time) {
	s.iteration++

	if s.iteration%scenarioEvery == 0 {
		s.injectScenario()
	} else {
		for _, a := range s.assets {
			p := s.prices[a] + (s.rng.Float64()*0.06 - 0.03)
			s.prices[a] = clamp(p, 0.01, 0.99)
		}
	}

	out := make(map[string]float64, len(s.prices))
	for a, p := range s.prices {
		out[a] = p
	}
	s.store.put(Snapshot{Prices: out, At: now, Source: SourceSynthetic})
	metrics.SnapshotsTotal.WithLabelValues(SourceSynthetic).Inc()
}

// injectScenario occasionally shapes prices into a group/laggard setup so
// demo runs actually produce entries.
func (s *Synthetic) injectScenario() {
	switch s.rng.Intn(4) {
	case 0: // group high with first tradeable, second tradeable lagging low
		for _, a := range s.reference {
			s.prices[a] = 0.76 + s.rng.Float64()*0.16
		}
		s.prices[s.tradeable[0]] = 0.76 + s.rng.Float64()*0.16
		s.prices[s.tradeable[1]] = 0.15 + s.rng.Float64()*0.30
		slog.Info("synthetic feed injecting up-signal scenario")
	case 1: // group low with second tradeable, first tradeable lagging high
		for _, a := range s.reference {
			s.prices[a] = 0.08 + s.rng.Float64()*0.16
		}
		s.prices[s.tradeable[1]] = 0.08 + s.rng.Float64()*0.16
		s.prices[s.tradeable[0]] = 0.55 + s.rng.Float64()*0.30
		slog.Info("synthetic feed injecting down-signal scenario")
	default: // neutral drift
		for _, a := range s.assets {
			s.prices[a] = 0.35 + s.rng.Float64()*0.30
		}
	}
}

func (s *Synthetic) Latest(assets []string) Snapshot {
	return s.store.get(assets)
}

// Health is always OK: a generator cannot lose its source.
func (s *Synthetic) Health() Health {
	return HealthOK
}

func (s *Synthetic) Close() error {
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
