package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus instrumentation for the dialogue runtime,
// grounded on dshills-langgraph-go's PrometheusMetrics: one struct wrapping
// a handful of labeled gauges/histograms/counters built through
// promauto.With(registry) so they self-register and so tests can use a
// private registry instead of the global default.
//
// All metric names are namespaced "soni_".
type Metrics struct {
	activeSessions prometheus.Gauge
	flowDepth      *prometheus.HistogramVec

	turnLatency  *prometheus.HistogramVec
	stepLatency  *prometheus.HistogramVec
	stepRetries  *prometheus.CounterVec
	stepFailures *prometheus.CounterVec

	flowPushes  *prometheus.CounterVec
	flowPops    *prometheus.CounterVec
	handoffs    *prometheus.CounterVec
	suspensions *prometheus.CounterVec
}

// NewMetrics registers and returns the runtime's metric set against
// registry. Pass prometheus.DefaultRegisterer for the global registry, or a
// prometheus.NewRegistry() for test isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "soni",
			Name:      "active_sessions",
			Help:      "Number of dialogue sessions currently held in memory by the runtime",
		}),
		flowDepth: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soni",
			Name:      "flow_stack_depth",
			Help:      "Flow stack depth observed at the end of each turn that leaves a flow active",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
		}, []string{"flow"}),

		turnLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soni",
			Name:      "turn_latency_ms",
			Help:      "Wall-clock duration of a single ProcessTurn call, in milliseconds",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"status"}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soni",
			Name:      "step_latency_ms",
			Help:      "Execution duration of a single node step, in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 500, 1000, 5000},
		}, []string{"flow", "step_kind", "status"}),
		stepRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soni",
			Name:      "step_retries_total",
			Help:      "Retry attempts made by action steps, by flow and reason",
		}, []string{"flow", "reason"}),
		stepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soni",
			Name:      "step_failures_total",
			Help:      "Steps that terminated in a Fail outcome, by flow and error kind",
		}, []string{"flow", "kind"}),

		flowPushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soni",
			Name:      "flow_pushes_total",
			Help:      "Flows pushed onto the flow stack, by flow name",
		}, []string{"flow"}),
		flowPops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soni",
			Name:      "flow_pops_total",
			Help:      "Flows popped off the flow stack, by flow name and reason (completed, cancelled, cancel_oldest)",
		}, []string{"flow", "reason"}),
		handoffs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soni",
			Name:      "handoffs_total",
			Help:      "Conversations handed off to a human queue, by queue name",
		}, []string{"queue"}),
		suspensions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soni",
			Name:      "suspensions_total",
			Help:      "Turns that suspended awaiting more input, by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) ObserveFlowDepth(flow string, depth int) {
	m.flowDepth.WithLabelValues(flow).Observe(float64(depth))
}

func (m *Metrics) ObserveTurnLatency(status string, d time.Duration) {
	m.turnLatency.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveStepLatency(flow, stepKind, status string, d time.Duration) {
	m.stepLatency.WithLabelValues(flow, stepKind, status).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) IncrementStepRetries(flow, reason string) {
	m.stepRetries.WithLabelValues(flow, reason).Inc()
}

func (m *Metrics) IncrementStepFailures(flow, kind string) {
	m.stepFailures.WithLabelValues(flow, kind).Inc()
}

func (m *Metrics) IncrementFlowPush(flow string) {
	m.flowPushes.WithLabelValues(flow).Inc()
}

func (m *Metrics) IncrementFlowPop(flow, reason string) {
	m.flowPops.WithLabelValues(flow, reason).Inc()
}

func (m *Metrics) IncrementHandoff(queue string) {
	m.handoffs.WithLabelValues(queue).Inc()
}

func (m *Metrics) IncrementSuspension(reason string) {
	m.suspensions.WithLabelValues(reason).Inc()
}
