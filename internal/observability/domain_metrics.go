package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queryRouteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buster_query_route_total",
			Help: "Total number of routed statements by dialect, safety mode and outcome.",
		},
		[]string{"dialect", "mode", "outcome"},
	)
	queryRouteDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buster_query_route_duration_seconds",
			Help:    "End-to-end latency of routed statements, including tunnel and connect time.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"dialect", "mode"},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "buster_query_rows_returned",
			Help:    "Rows returned per successful statement.",
			Buckets: []float64{0, 1, 10, 25, 100, 500, 1000, 2500, 5000},
		},
	)
	queryRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buster_query_rejections_total",
			Help: "Statements refused by the safety filter.",
		},
		[]string{"mode", "operation"},
	)
	tunnelActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "buster_tunnel_active",
			Help: "SSH tunnels currently open.",
		},
	)
	tunnelFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buster_tunnel_failures_total",
			Help: "SSH tunnels that could not be established, by stage.",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(
		queryRouteTotal,
		queryRouteDurationSeconds,
		queryRowsReturned,
		queryRejectionsTotal,
		tunnelActive,
		tunnelFailuresTotal,
	)
}

func ObserveQueryRoute(dialect, mode, outcome string, rows int, elapsed time.Duration) {
	queryRouteTotal.WithLabelValues(dialect, mode, outcome).Inc()
	queryRouteDurationSeconds.WithLabelValues(dialect, mode).Observe(elapsed.Seconds())
	if outcome == "ok" {
		queryRowsReturned.Observe(float64(rows))
	}
}

func IncrementQueryRejection(mode, operation string) {
	queryRejectionsTotal.WithLabelValues(mode, operation).Inc()
}

func TunnelOpened() {
	tunnelActive.Inc()
}

func TunnelClosed() {
	tunnelActive.Dec()
}

func IncrementTunnelFailure(stage string) {
	tunnelFailuresTotal.WithLabelValues(stage).Inc()
}
