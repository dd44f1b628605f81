// Package metrics records per-run counters and pushes them to an optional
// Prometheus Pushgateway, the batch-job equivalent of the /metrics
// endpoint the long-running exporters expose.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Run struct {
	registry *prometheus.Registry

	fetched        *prometheus.CounterVec
	pages          prometheus.Gauge
	duration       prometheus.Gauge
	lastSuccess    prometheus.Gauge
	notifyFailures prometheus.Counter
}

func NewRun() *Run {
	r := &Run{registry: prometheus.NewRegistry()}
	r.fetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "railreport",
		Name:      "records_fetched_total",
		Help:      "Normalized records fetched per source",
	}, []string{"source"})
	r.pages = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "railreport",
		Name:      "report_pages",
		Help:      "Pages in the rendered report",
	})
	r.duration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "railreport",
		Name:      "run_duration_seconds",
		Help:      "Wall time of the full pipeline run",
	})
	r.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "railreport",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful run",
	})
	r.notifyFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "railreport",
		Name:      "notify_failures_total",
		Help:      "Chat notification failures (non-fatal)",
	})
	r.registry.MustRegister(r.fetched, r.pages, r.duration, r.lastSuccess, r.notifyFailures)
	return r
}

func (r *Run) ObserveFetch(source string, n int) {
	r.fetched.WithLabelValues(source).Add(float64(n))
}

func (r *Run) ObserveRender(pages int) {
	r.pages.Set(float64(pages))
}

func (r *Run) NotifyFailed() {
	r.notifyFailures.Inc()
}

func (r *Run) Finish(took time.Duration) {
	r.duration.Set(took.Seconds())
	r.lastSuccess.Set(float64(time.Now().Unix()))
}

// Push sends the run's metrics to the gateway. Callers treat errors as
// non-fatal.
func (r *Run) Push(url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(r.registry).Push()
}
