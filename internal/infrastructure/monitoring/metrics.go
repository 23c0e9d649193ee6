package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// several bridges (and tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Bridge metrics
	RunsTotal        prometheus.Counter
	RunDuration      prometheus.Histogram
	EnvelopesTotal   *prometheus.CounterVec
	EnvelopesDropped *prometheus.CounterVec
	Recycles         *prometheus.CounterVec
	WatchdogExpired  prometheus.Counter
	TimersActive     prometheus.Gauge
	DialogsPending   prometheus.Gauge
	RealmFailures    prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON stats endpoint
type Snapshot struct {
	Runs            int64            `json:"runs"`
	Recycles        int64            `json:"recycles"`
	WatchdogExpired int64            `json:"watchdog_expired"`
	Dropped         map[string]int64 `json:"dropped"`
	RequestsTotal   int64            `json:"http_requests"`
	RequestErrors   int64            `json:"http_errors"`
	WSConnections   int64            `json:"ws_connections"`
	UptimeSeconds   float64          `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
		snapshot:  Snapshot{Dropped: make(map[string]int64)},

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Bridge metrics
		RunsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_runs_total",
				Help: "Total number of runs started",
			},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sandbox_run_duration_seconds",
				Help:    "Time from run start to execution-finished",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10},
			},
		),
		EnvelopesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_envelopes_total",
				Help: "Envelopes crossing the realm boundary",
			},
			[]string{"direction", "type"},
		),
		EnvelopesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_envelopes_dropped_total",
				Help: "Inbound envelopes discarded by the router",
			},
			[]string{"reason"},
		),
		Recycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_realm_recycles_total",
				Help: "Realm replacements",
			},
			[]string{"reason"},
		),
		WatchdogExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_watchdog_expired_total",
				Help: "Runs terminated by the watchdog",
			},
		),
		TimersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_timers_active",
				Help: "Host timers backing realm timers",
			},
		),
		DialogsPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_dialogs_pending",
				Help: "Dialogs waiting for an answer",
			},
		),
		RealmFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_realm_acquire_failures_total",
				Help: "Failed attempts to bind a replacement realm",
			},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandbox_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sandbox_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.RequestsTotal++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.RequestErrors++
	}
	m.mu.Unlock()
}

// RecordRunStarted counts a RunCode call
func (m *Metrics) RecordRunStarted() {
	m.RunsTotal.Inc()
	m.mu.Lock()
	m.snapshot.Runs++
	m.mu.Unlock()
}

// RecordRunFinished observes how long a run held the realm
func (m *Metrics) RecordRunFinished(duration time.Duration) {
	m.RunDuration.Observe(duration.Seconds())
}

// RecordEnvelope counts one envelope; direction is "in" or "out"
func (m *Metrics) RecordEnvelope(direction, envType string) {
	m.EnvelopesTotal.WithLabelValues(direction, envType).Inc()
}

// RecordDrop counts a discarded inbound envelope
func (m *Metrics) RecordDrop(reason string) {
	m.EnvelopesDropped.WithLabelValues(reason).Inc()
	m.mu.Lock()
	m.snapshot.Dropped[reason]++
	m.mu.Unlock()
}

// RecordRecycle counts a realm replacement
func (m *Metrics) RecordRecycle(reason string) {
	m.Recycles.WithLabelValues(reason).Inc()
	m.mu.Lock()
	m.snapshot.Recycles++
	m.mu.Unlock()
}

// RecordWatchdogExpired counts a timed-out run
func (m *Metrics) RecordWatchdogExpired() {
	m.WatchdogExpired.Inc()
	m.mu.Lock()
	m.snapshot.WatchdogExpired++
	m.mu.Unlock()
}

// RecordRealmFailure counts a failed realm acquisition
func (m *Metrics) RecordRealmFailure() {
	m.RealmFailures.Inc()
}

// SetTimersActive sets the live timer gauge
func (m *Metrics) SetTimersActive(count int) {
	m.TimersActive.Set(float64(count))
}

// SetDialogsPending sets the pending dialog gauge
func (m *Metrics) SetDialogsPending(count int) {
	m.DialogsPending.Set(float64(count))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.WSConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.WSConnections--
	m.mu.Unlock()
}

// Snapshot returns a copy of the tracked values
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.Dropped = make(map[string]int64, len(m.snapshot.Dropped))
	for k, v := range m.snapshot.Dropped {
		s.Dropped[k] = v
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
