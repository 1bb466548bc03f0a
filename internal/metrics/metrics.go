// Package metrics exposes the gateway's Prometheus surface (SPEC_FULL.md
// §4.14): PLC read/write outcome counters, cache hit/promotion counters,
// active-session and active-monitor-task gauges, and an operation
// duration histogram, all served at /metrics. Grounded on
// Generativebots-ocx-backend-go-svc/internal/escrow/metrics.go's
// promauto-registered CounterVec/GaugeVec/HistogramVec pattern — the
// teacher repo has no metrics package of its own.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	plcReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s7gateway_plc_reads_total",
			Help: "Total PLC wire reads, by outcome.",
		},
		[]string{"result"},
	)

	plcWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "s7gateway_plc_writes_total",
			Help: "Total PLC wire writes, by outcome.",
		},
		[]string{"result"},
	)

	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "s7gateway_cache_hits_total",
			Help: "Total reads served from the session debounce cache without touching the wire.",
		},
	)

	cachePromotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "s7gateway_cache_promotions_total",
			Help: "Total times a candidate value reached the consecutive-reads threshold and replaced the reported value.",
		},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "s7gateway_sessions_active",
			Help: "Number of live PLC sessions currently registered.",
		},
	)

	monitorTasksActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "s7gateway_monitor_tasks_active",
			Help: "Number of running monitor workers, by mode.",
		},
		[]string{"mode"},
	)

	plcOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "s7gateway_plc_op_duration_seconds",
			Help:    "Duration of a PLC wire read or write, by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// RecordRead accounts for one wire-level read of op ("read_bool",
// "read_int", ...), outcome "success" or "error", and its duration.
func RecordRead(op, result string, duration time.Duration) {
	plcReadsTotal.WithLabelValues(result).Inc()
	plcOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordWrite accounts for one wire-level write of op, outcome
// "success" or "error", and its duration.
func RecordWrite(op, result string, duration time.Duration) {
	plcWritesTotal.WithLabelValues(result).Inc()
	plcOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordCacheHit accounts for one read answered from the debounce
// cache without a wire round trip.
func RecordCacheHit() {
	cacheHitsTotal.Inc()
}

// RecordCachePromotion accounts for one candidate value reaching the
// consecutive-reads confirmation threshold.
func RecordCachePromotion() {
	cachePromotionsTotal.Inc()
}

// SetSessionsActive reports the current number of live PLC sessions.
func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

// SetMonitorTasksActive reports the current number of running monitor
// workers for mode.
func SetMonitorTasksActive(mode string, n int) {
	monitorTasksActive.WithLabelValues(mode).Set(float64(n))
}

// Handler serves the Prometheus exposition format for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
