package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeFail    = "fail"
	OutcomeTimeout = "timeout"
	OutcomeClosed  = "closed"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	SpawnFailures   prometheus.Counter

	// Command metrics
	Commands        *prometheus.CounterVec
	CommandDuration prometheus.Histogram
	SignalsSent     *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveSessions    int64   `json:"active_sessions"`
	CommandsRun       int64   `json:"commands_run"`
	CommandsTimedOut  int64   `json:"commands_timed_out"`
	ActiveConnections int64   `json:"active_connections"`
	TotalDuration     float64 `json:"-"` // sum of all request durations
	RequestCount      int64   `json:"-"` // count for averaging
}

// NewMetrics creates a metrics collector on its own registry, so several
// collectors can coexist in one process.
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

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bashautom_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bashautom_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bashautom_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bashautom_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Session metrics
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bashautom_sessions_active",
				Help: "Number of registered shell sessions",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bashautom_sessions_created_total",
				Help: "Total number of shell sessions spawned",
			},
		),
		SessionsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bashautom_sessions_ended_total",
				Help: "Total number of shell sessions that ended",
			},
			[]string{"reason"},
		),
		SpawnFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bashautom_spawn_failures_total",
				Help: "Total number of failed shell spawns",
			},
		),

		// Command metrics
		Commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bashautom_commands_total",
				Help: "Total number of executed commands by outcome",
			},
			[]string{"outcome"},
		),
		CommandDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bashautom_command_duration_seconds",
				Help:    "Command wall-clock duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 60, 300},
			},
		),
		SignalsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bashautom_signals_sent_total",
				Help: "Total number of signals delivered to foreground jobs",
			},
			[]string{"signal"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bashautom_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bashautom_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bashautom_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Run updates the uptime gauge until ctx is done.
func (m *Metrics) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		}
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordCommand records one finished command.
func (m *Metrics) RecordCommand(outcome string, duration time.Duration) {
	m.Commands.WithLabelValues(outcome).Inc()
	m.CommandDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.CommandsRun++
	if outcome == OutcomeTimeout {
		m.snapshot.CommandsTimedOut++
	}
	m.mu.Unlock()
}

// RecordSignal records a signal delivered through the API.
func (m *Metrics) RecordSignal(signal string) {
	m.SignalsSent.WithLabelValues(signal).Inc()
}

// SessionCreated records a spawned session.
func (m *Metrics) SessionCreated() {
	m.SessionsCreated.Inc()
}

// SessionEnded records a session that was closed or whose shell exited.
func (m *Metrics) SessionEnded(reason string) {
	m.SessionsEnded.WithLabelValues(reason).Inc()
}

// SpawnFailed records a shell that could not be started.
func (m *Metrics) SpawnFailed() {
	m.SpawnFailures.Inc()
}

// SetSessionsActive sets the number of registered sessions
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns the current values for the JSON API.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// AverageRequestDuration returns the mean HTTP request duration.
func (m *Metrics) AverageRequestDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot.RequestCount == 0 {
		return 0
	}
	return time.Duration(m.snapshot.TotalDuration / float64(m.snapshot.RequestCount) * float64(time.Second))
}

// UptimeDuration returns how long the collector has existed.
func (m *Metrics) UptimeDuration() time.Duration {
	return time.Since(m.startTime)
}
