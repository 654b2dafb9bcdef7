package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"laggard/internal/config"
	"laggard/internal/metrics"
)

// SourcePoll labels prices fetched from the REST endpoint.
const SourcePoll = "poll"

// Poll fetches midpoint prices from a CLOB-style REST API on a fixed
// cadence. Transport failures are retried with a fixed delay up to the
// configured budget; exhausting the budget degrades the feed but never
// stops it — the last fully-formed snapshot keeps serving reads.
type Poll struct {
	client   *resty.Client
	markets  map[string]string // asset -> outcome token id
	interval time.Duration
	delay    time.Duration
	budget   int

	degraded atomic.Bool
	store    store
}

type midpointResponse struct {
	Mid string `json:"mid"`
}

// NewPoll builds a polling feed. markets maps each asset symbol to the
// outcome token id queried on the price endpoint.
func NewPoll(cfg config.FeedConfig, markets map[string]string) *Poll {
	client := resty.New()
	client.SetBaseURL(cfg.RESTURL)
	client.SetTimeout(10 * time.Second)

	return &Poll{
		client:   client,
		markets:  markets,
		interval: cfg.PollInterval.Duration,
		delay:    cfg.RetryDelay.Duration,
		budget:   cfg.MaxRetries,
	}
}

// Run polls until ctx is cancelled.
func (p *Poll) Run(ctx context.Context) error {
	slog.Info("poll feed running",
		"base_url", p.client.BaseURL,
		"interval", p.interval,
		"retry_budget", p.budget,
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll fetches every asset once, retrying the whole pass on failure. A
// pass only publishes when every asset resolved, so readers never see a
// snapshot mixing two polling rounds.
func (p *Poll) poll(ctx context.Context) {
	for attempt := 0; attempt <= p.budget; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.delay):
			}
		}

		prices, err := p.fetchAll(ctx)
		if err != nil {
			slog.Warn("poll pass failed", "attempt", attempt+1, "max", p.budget+1, "error", err)
			continue
		}

		p.store.put(Snapshot{Prices: prices, At: time.Now().UTC(), Source: SourcePoll})
		metrics.SnapshotsTotal.WithLabelValues(SourcePoll).Inc()
		if p.degraded.CompareAndSwap(true, false) {
			slog.Info("poll feed recovered")
			metrics.FeedHealthy.Set(1)
		}
		return
	}

	if p.degraded.CompareAndSwap(false, true) {
		slog.Error("poll feed degraded: retry budget exhausted, serving last known prices")
		metrics.FeedHealthy.Set(0)
	}
}

func (p *Poll) fetchAll(ctx context.Context) (map[string]float64, error) {
	prices := make(map[string]float64, len(p.markets))
	for asset, tokenID := range p.markets {
		mid, err := p.fetchMidpoint(ctx, tokenID)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", asset, err)
		}
		prices[asset] = mid
	}
	return prices, nil
}

func (p *Poll) fetchMidpoint(ctx context.Context, tokenID string) (float64, error) {
	var out midpointResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&out).
		Get("/midpoint")
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("midpoint request returned %s", resp.Status())
	}

	mid, err := strconv.ParseFloat(out.Mid, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing midpoint %q: %w", out.Mid, err)
	}
	if mid < 0 || mid > 1 {
		return 0, fmt.Errorf("midpoint %.4f outside [0, 1]", mid)
	}
	return mid, nil
}

func (p *Poll) Latest(assets []string) Snapshot {
	return p.store.get(assets)
}

func (p *Poll) Health() Health {
	if p.degraded.Load() {
		return HealthDegraded
	}
	return HealthOK
}

func (p *Poll) Close() error {
	return nil
}
