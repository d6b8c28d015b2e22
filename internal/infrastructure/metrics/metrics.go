package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync outcomes used as the result label
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultUpToDate = "up_to_date"
	ResultSkipped  = "skipped"
)

// Metrics holds the indexer's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	syncRuns             *prometheus.CounterVec
	syncRunDuration      prometheus.Histogram
	syncWindows          *prometheus.CounterVec
	transactionsInserted prometheus.Counter
	lastSyncedBlock      prometheus.Gauge
	chainHead            prometheus.Gauge
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		syncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "bridge_sync_runs_total", Help: "Sync runs by result"},
			[]string{"result"},
		),
		syncRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "bridge_sync_run_duration_seconds", Help: "Sync run latency", Buckets: prometheus.DefBuckets},
		),
		syncWindows: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "bridge_sync_windows_total", Help: "Block windows processed by result"},
			[]string{"result"},
		),
		transactionsInserted: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "bridge_transactions_inserted_total", Help: "Bridge transactions stored for the first time"},
		),
		lastSyncedBlock: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "bridge_last_synced_block", Help: "Sync checkpoint"},
		),
		chainHead: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "bridge_chain_head_block", Help: "Latest block seen on the ledger"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests"},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "Request latency", Buckets: prometheus.DefBuckets},
			[]string{"method", "path"},
		),
	}

	m.registry.MustRegister(
		m.syncRuns,
		m.syncRunDuration,
		m.syncWindows,
		m.transactionsInserted,
		m.lastSyncedBlock,
		m.chainHead,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records one finished sync run
func (m *Metrics) ObserveRun(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(result).Inc()
	m.syncRunDuration.Observe(elapsed.Seconds())
}

// ObserveSkippedRun counts a run request turned away because another run held the lock
func (m *Metrics) ObserveSkippedRun() {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(ResultSkipped).Inc()
}

// ObserveWindow records one processed block window
func (m *Metrics) ObserveWindow(result string, inserted int) {
	if m == nil {
		return
	}
	m.syncWindows.WithLabelValues(result).Inc()
	m.transactionsInserted.Add(float64(inserted))
}

// SetCheckpoint publishes the current checkpoint
func (m *Metrics) SetCheckpoint(block uint64) {
	if m == nil {
		return
	}
	m.lastSyncedBlock.Set(float64(block))
}

// SetChainHead publishes the latest ledger block
func (m *Metrics) SetChainHead(block uint64) {
	if m == nil {
		return
	}
	m.chainHead.Set(float64(block))
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, statusLabel(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return strconv.Itoa(code)
	}
}
