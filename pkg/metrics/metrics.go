package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Node registry metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "attachctl_nodes_total",
			Help: "Total number of registered page servers by availability and scheduling policy",
		},
		[]string{"availability", "scheduling"},
	)

	// Shard state metrics
	ShardsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "attachctl_shards_total",
			Help: "Total number of tenant shards by placement policy",
		},
		[]string{"policy"},
	)

	ShardsReconciling = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "attachctl_shards_reconciling",
			Help: "Number of tenant shards with a reconcile currently in flight",
		},
	)

	ShardGenerationTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attachctl_shard_generation_bumps_total",
			Help: "Total number of generation increments issued across all shards",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachctl_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attachctl_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Scheduler metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attachctl_scheduling_latency_seconds",
			Help:    "Time taken to compute a placement decision",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulingDeficitTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attachctl_scheduling_deficit_total",
			Help: "Total number of placement requests the scheduler could not fully satisfy",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attachctl_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle, by outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	ReconciliationCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachctl_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed, by outcome",
		},
		[]string{"outcome"},
	)

	LocationConfigPutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachctl_location_config_puts_total",
			Help: "Total number of location_config PUT calls issued to page servers, by mode and result",
		},
		[]string{"mode", "result"},
	)

	LiveMigrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachctl_live_migrations_total",
			Help: "Total number of live migrations attempted, by outcome",
		},
		[]string{"outcome"},
	)

	LiveMigrationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attachctl_live_migration_duration_seconds",
			Help:    "Time taken for a live migration to complete",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// Compute hook metrics
	ComputeNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachctl_compute_notifications_total",
			Help: "Total number of compute hook notifications, by outcome",
		},
		[]string{"outcome"},
	)

	ComputeNotificationsCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attachctl_compute_notifications_coalesced_total",
			Help: "Total number of compute hook notifications superseded before being sent",
		},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(ShardsTotal)
	prometheus.MustRegister(ShardsReconciling)
	prometheus.MustRegister(ShardGenerationTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(SchedulingDeficitTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(LocationConfigPutsTotal)
	prometheus.MustRegister(LiveMigrationsTotal)
	prometheus.MustRegister(LiveMigrationDuration)
	prometheus.MustRegister(ComputeNotificationsTotal)
	prometheus.MustRegister(ComputeNotificationsCoalescedTotal)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
