package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Oracle Sequencer Metrics
	oracleCyclesTotal      *prometheus.CounterVec
	oracleRejectionsTotal  *prometheus.CounterVec
	oracleStaleTimersTotal prometheus.Counter
	oracleState            *prometheus.GaugeVec
	ledgerEntries          prometheus.Gauge

	// Generative Backend Metrics
	genaiCallsTotal   *prometheus.CounterVec
	genaiCallDuration *prometheus.HistogramVec

	// Balance RPC Metrics
	balanceRPCCallsTotal   *prometheus.CounterVec
	balanceRPCCallDuration *prometheus.HistogramVec

	// Storage Metrics
	storageOperationDuration *prometheus.HistogramVec
	storageOperationsTotal   *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec

	// Temporal Metrics
	activityDuration *prometheus.HistogramVec
	ritualRunsTotal  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Oracle Sequencer Metrics
		oracleCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_cycles_total",
				Help: "Total number of oracle interaction cycles by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		oracleRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_rejections_total",
				Help: "Total number of rejected submissions and ritual triggers by reason",
			},
			[]string{"operation", "reason"},
		),
		oracleStaleTimersTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "oracle_stale_timers_total",
				Help: "Deferred actions that fired after a newer cycle superseded them",
			},
		),
		oracleState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oracle_state",
				Help: "1 for the current oracle state, 0 otherwise",
			},
			[]string{"state"},
		),
		ledgerEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_entries",
				Help: "Number of requests currently held in the ledger",
			},
		),

		// Generative Backend Metrics
		genaiCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "genai_calls_total",
				Help: "Total number of generative model calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		genaiCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "genai_call_duration_seconds",
				Help:    "Duration of generative model calls in seconds",
				Buckets: []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"operation"},
		),

		// Balance RPC Metrics
		balanceRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balance_rpc_calls_total",
				Help: "Total number of balance RPC calls by chain and status",
			},
			[]string{"chain", "status"},
		),
		balanceRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "balance_rpc_call_duration_seconds",
				Help:    "Duration of balance RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"chain"},
		),

		// Storage Metrics
		storageOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_operation_duration_seconds",
				Help:    "Duration of local storage operations in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"backend", "operation"},
		),
		storageOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_operations_total",
				Help: "Total number of local storage operations",
			},
			[]string{"backend", "operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of messages published to NATS",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"subject"},
		),

		// Temporal Metrics
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "temporal_activity_duration_seconds",
				Help:    "Duration of Temporal activities in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
			[]string{"activity"},
		),
		ritualRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ritual_runs_total",
				Help: "Total number of scheduled closing rituals by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Oracle metric helpers

// RecordCycle records the outcome of a submission or ritual cycle.
func (m *Metrics) RecordCycle(kind, outcome string) {
	m.oracleCyclesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordRejection records a submission or ritual trigger that was refused.
func (m *Metrics) RecordRejection(operation, reason string) {
	m.oracleRejectionsTotal.WithLabelValues(operation, reason).Inc()
}

// RecordStaleTimer records a deferred action that found its cycle superseded.
func (m *Metrics) RecordStaleTimer() {
	m.oracleStaleTimersTotal.Inc()
}

// SetState marks current as the active oracle state.
func (m *Metrics) SetState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1.0
		}
		m.oracleState.WithLabelValues(s).Set(v)
	}
}

// SetLedgerEntries records the current ledger size.
func (m *Metrics) SetLedgerEntries(n int) {
	m.ledgerEntries.Set(float64(n))
}

// Generative backend metric helpers

// RecordGenAICall records a generative model call.
func (m *Metrics) RecordGenAICall(operation, status string, duration float64) {
	m.genaiCallsTotal.WithLabelValues(operation, status).Inc()
	m.genaiCallDuration.WithLabelValues(operation).Observe(duration)
}

// Balance RPC metric helpers

// RecordBalanceRPCCall records a balance lookup against a chain RPC.
func (m *Metrics) RecordBalanceRPCCall(chain, status string, duration float64) {
	m.balanceRPCCallsTotal.WithLabelValues(chain, status).Inc()
	m.balanceRPCCallDuration.WithLabelValues(chain).Observe(duration)
}

// Storage metric helpers

// RecordStorageOperation records a local storage operation.
func (m *Metrics) RecordStorageOperation(backend, operation, status string, duration float64) {
	m.storageOperationDuration.WithLabelValues(backend, operation).Observe(duration)
	m.storageOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Temporal metric helpers

// RecordActivityDuration records the duration of a Temporal activity.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.activityDuration.WithLabelValues(activity).Observe(duration)
}

// RecordRitualRun records the outcome of a scheduled closing ritual.
func (m *Metrics) RecordRitualRun(outcome string) {
	m.ritualRunsTotal.WithLabelValues(outcome).Inc()
}

// Helper functions

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
