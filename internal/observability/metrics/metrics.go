package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the orchestrator's Prometheus registry. It also implements the
// Telemetry outbound port so domain code can record samples without knowing
// about Prometheus.
type Metrics struct {
	registry *prometheus.Registry
	service  string

	eventsTotal      *prometheus.CounterVec
	ruleActionsTotal *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
	jobItemsTotal    *prometheus.CounterVec
	runbookSteps     *prometheus.CounterVec
	custom           *prometheus.GaugeVec
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "season",
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Domain events dispatched to the rule engine, by kind.",
		},
		[]string{"service", "kind"},
	)
	ruleActionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "season",
			Subsystem: "engine",
			Name:      "rule_actions_total",
			Help:      "Rule actions executed, by action kind and outcome.",
		},
		[]string{"service", "action", "status"},
	)
	sweepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "season",
			Subsystem: "orchestrator",
			Name:      "task_duration_seconds",
			Help:      "Periodic task duration in seconds by task name.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "task"},
	)
	jobItemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "season",
			Subsystem: "bulk",
			Name:      "job_items_total",
			Help:      "Bulk job items attempted, by job type and outcome.",
		},
		[]string{"service", "type", "status"},
	)
	runbookSteps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "season",
			Subsystem: "continuity",
			Name:      "runbook_steps_total",
			Help:      "Runbook steps executed, by runbook kind and outcome.",
		},
		[]string{"service", "kind", "status"},
	)
	custom := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "season",
			Subsystem: "telemetry",
			Name:      "sample",
			Help:      "Free-form samples recorded through the telemetry port.",
		},
		[]string{"service", "metric", "org"},
	)

	registry.MustRegister(eventsTotal, ruleActionsTotal, sweepDuration, jobItemsTotal, runbookSteps, custom)

	return &Metrics{
		registry:         registry,
		service:          service,
		eventsTotal:      eventsTotal,
		ruleActionsTotal: ruleActionsTotal,
		sweepDuration:    sweepDuration,
		jobItemsTotal:    jobItemsTotal,
		runbookSteps:     runbookSteps,
		custom:           custom,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveEvent(kind string) {
	m.eventsTotal.WithLabelValues(m.service, kind).Inc()
}

func (m *Metrics) ObserveRuleAction(action string, err error) {
	m.ruleActionsTotal.WithLabelValues(m.service, action, outcome(err)).Inc()
}

func (m *Metrics) ObserveTask(task string, duration time.Duration) {
	m.sweepDuration.WithLabelValues(m.service, task).Observe(duration.Seconds())
}

func (m *Metrics) ObserveJobItem(jobType string, err error) {
	m.jobItemsTotal.WithLabelValues(m.service, jobType, outcome(err)).Inc()
}

func (m *Metrics) ObserveRunbookStep(kind string, err error) {
	m.runbookSteps.WithLabelValues(m.service, kind, outcome(err)).Inc()
}

// Record implements the Telemetry port. Only the org tag becomes a label;
// anything else would blow up cardinality.
func (m *Metrics) Record(metric string, value float64, tags map[string]string) {
	m.custom.WithLabelValues(m.service, metric, tags["org"]).Set(value)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
