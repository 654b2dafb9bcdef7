package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "laggard_ticks_total", Help: "Trading ticks processed"},
	)
	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "laggard_snapshots_total", Help: "Price snapshots produced"},
		[]string{"source"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "laggard_trades_total", Help: "Closed trades"},
		[]string{"direction", "reason", "outcome"},
	)
	CumulativePnL = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "laggard_cumulative_pnl", Help: "Running PnL over all closed trades"},
	)
	FeedHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "laggard_feed_healthy", Help: "1 when the feed is OK, 0 when degraded"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, SnapshotsTotal, TradesTotal, CumulativePnL, FeedHealthy)
}

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
