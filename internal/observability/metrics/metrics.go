// Package metrics exposes prometheus instrumentation for the period closer.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics captures period-close health signals.
type SchedulerMetrics struct {
	jobRuns         *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	invoicesClosed  prometheus.Counter
	invoicesSeeded  prometheus.Counter
	runLoopLag      prometheus.Observer
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest rebinds the singleton to a fresh registry and
// returns it so tests can gather counter values in isolation.
func ResetSchedulerMetricsForTest() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	schedulerMetrics = newSchedulerMetrics(registry)
	schedulerMetricsOnce = sync.Once{}
	schedulerMetricsOnce.Do(func() {})
	return registry
}

func newSchedulerMetrics(registerer prometheus.Registerer) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudbill_scheduler_job_runs_total",
		Help: "Period closer job runs by name.",
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudbill_scheduler_job_errors_total",
		Help: "Period closer job errors by name.",
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cloudbill_scheduler_job_duration_seconds",
		Help:    "Period closer job latency.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"job"})
	invoicesClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloudbill_invoices_closed_total",
		Help: "Invoices moved out of pending by the period closer.",
	})
	invoicesSeeded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloudbill_invoices_seeded_total",
		Help: "Invoices created by the period closer seeding pass.",
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cloudbill_scheduler_runloop_lag_seconds",
		Help:    "Run loop lag beyond the configured interval.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	registerer.MustRegister(jobRuns, jobErrors, jobDuration, invoicesClosed, invoicesSeeded, runLoopLag)

	return &SchedulerMetrics{
		jobRuns:        jobRuns,
		jobErrors:      jobErrors,
		jobDuration:    jobDuration,
		invoicesClosed: invoicesClosed,
		invoicesSeeded: invoicesSeeded,
		runLoopLag:     runLoopLag,
	}
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string) {
	if m == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *SchedulerMetrics) IncInvoiceClosed() {
	if m == nil || m.invoicesClosed == nil {
		return
	}
	m.invoicesClosed.Inc()
}

func (m *SchedulerMetrics) IncInvoiceSeeded() {
	if m == nil || m.invoicesSeeded == nil {
		return
	}
	m.invoicesSeeded.Inc()
}

func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}
