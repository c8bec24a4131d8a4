package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's Prometheus instruments on a private
// registry, exposed through Handler.
type Collector struct {
	registry *prometheus.Registry

	workflowsStarted   prometheus.Counter
	workflowsCompleted *prometheus.CounterVec
	decisions          *prometheus.CounterVec
	overdueStages      prometheus.Gauge
}

// NewCollector creates and registers the engine instruments.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		workflowsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docuflow_workflows_started_total",
			Help: "Workflow instances started.",
		}),
		workflowsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docuflow_workflows_completed_total",
			Help: "Workflow instances reaching a terminal status.",
		}, []string{"status"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docuflow_decisions_total",
			Help: "Stage decisions recorded.",
		}, []string{"outcome"}),
		overdueStages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docuflow_overdue_stages",
			Help: "Pending stage executions past their advisory delay, as of the last scan.",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.workflowsStarted,
		c.workflowsCompleted,
		c.decisions,
		c.overdueStages,
	)

	return c
}

// WorkflowStarted counts a new instance.
func (c *Collector) WorkflowStarted() {
	c.workflowsStarted.Inc()
}

// WorkflowCompleted counts a terminal transition by status.
func (c *Collector) WorkflowCompleted(status string) {
	c.workflowsCompleted.WithLabelValues(status).Inc()
}

// DecisionRecorded counts a decision by outcome.
func (c *Collector) DecisionRecorded(outcome string) {
	c.decisions.WithLabelValues(outcome).Inc()
}

// OverdueStages records the size of the last overdue scan.
func (c *Collector) OverdueStages(n int) {
	c.overdueStages.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
