// Package metrics collects per-run Prometheus metrics on a private registry.
// A run is a short-lived batch job, so metrics are written once at the end
// in the node-exporter textfile format instead of being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "prospectsync"

// Recorder holds the metrics of one run.
type Recorder struct {
	registry *prometheus.Registry

	apiRequests      *prometheus.CounterVec
	apiDuration      *prometheus.HistogramVec
	prospectsUpdated prometheus.Counter
	prospectsCleared prometheus.Counter
	batchesSubmitted prometheus.Counter
	batchSize        prometheus.Histogram
	emailsSent       prometheus.Counter
	fieldsCreated    prometheus.Counter
	fieldsDeleted    prometheus.Counter
	runDuration      *prometheus.GaugeVec
	lastRunTime      *prometheus.GaugeVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		apiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Pardot API requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		apiDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Pardot API request latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"operation"}),
		prospectsUpdated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prospects_updated_total",
			Help:      "Prospects written with listing fields.",
		}),
		prospectsCleared: factory.NewCounter(counterOpts("prospects_cleared_total", "Prospects whose listing fields were cleared after the send.")),
		batchesSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_submitted_total",
			Help:      "Batch updates submitted.",
		}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Prospects per submitted batch.",
			Buckets:   []float64{1, 5, 10, 25, 50},
		}),
		emailsSent:    factory.NewCounter(counterOpts("emails_sent_total", "Email send calls that succeeded.")),
		fieldsCreated: factory.NewCounter(counterOpts("custom_fields_created_total", "Custom fields created.")),
		fieldsDeleted: factory.NewCounter(counterOpts("custom_fields_deleted_total", "Custom fields deleted.")),
		runDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}, []string{"command", "status"}),
		lastRunTime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}, []string{"command", "status"}),
	}
}

func counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}
}

// Registry exposes the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRequest implements pardot.Observer.
func (r *Recorder) ObserveRequest(operation, outcome string, d time.Duration) {
	r.apiRequests.WithLabelValues(operation, outcome).Inc()
	if d > 0 {
		r.apiDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// ProspectsUpdated adds n updated prospects.
func (r *Recorder) ProspectsUpdated(n int) {
	r.prospectsUpdated.Add(float64(n))
}

// ProspectsCleared adds n cleared prospects.
func (r *Recorder) ProspectsCleared(n int) {
	r.prospectsCleared.Add(float64(n))
}

// BatchSubmitted records one submitted batch of size n.
func (r *Recorder) BatchSubmitted(n int) {
	r.batchesSubmitted.Inc()
	r.batchSize.Observe(float64(n))
}

// EmailSent records one successful send call.
func (r *Recorder) EmailSent() {
	r.emailsSent.Inc()
}

// FieldCreated records one created custom field.
func (r *Recorder) FieldCreated() {
	r.fieldsCreated.Inc()
}

// FieldDeleted records one deleted custom field.
func (r *Recorder) FieldDeleted() {
	r.fieldsDeleted.Inc()
}

// RunFinished records the duration and completion time of a run.
func (r *Recorder) RunFinished(command, status string, d time.Duration, at time.Time) {
	r.runDuration.WithLabelValues(command, status).Set(d.Seconds())
	r.lastRunTime.WithLabelValues(command, status).Set(float64(at.Unix()))
}

// WriteTextfile writes every metric to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
