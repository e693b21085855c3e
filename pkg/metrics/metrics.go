package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe names used as label values
const (
	ProbeLocation = "location"
	ProbeGPU      = "gpu"
	ProbeCPU      = "cpu"
	ProbeMemory   = "memory"
)

// Job outcomes used as label values
const (
	OutcomeSuccess     = "success"
	OutcomeFailed      = "failed"
	OutcomeUnavailable = "unavailable"
)

// Recorder tracks job and probe activity for the worker
type Recorder struct {
	registry *prometheus.Registry

	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	probeFailures *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	placements    *prometheus.CounterVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_jobs_total",
				Help: "Jobs handled by the worker by outcome",
			},
			[]string{"handler", "outcome"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "worker_job_duration_seconds",
				Help:    "Time spent in the downstream handler",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"handler"},
		),
		probeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_metadata_probe_failures_total",
				Help: "Metadata probes that degraded to a default value",
			},
			[]string{"probe"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "worker_metadata_probe_duration_seconds",
				Help:    "Metadata probe latency",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"probe"},
		),
		placements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_metadata_placements_total",
				Help: "Where metadata was attached in job results",
			},
			[]string{"placement"},
		),
	}

	r.registry.MustRegister(
		r.jobsTotal,
		r.jobDuration,
		r.probeFailures,
		r.probeDuration,
		r.placements,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// RecordJob records a finished downstream invocation
func (r *Recorder) RecordJob(handler, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.jobsTotal.WithLabelValues(handler, outcome).Inc()
	if outcome != OutcomeUnavailable {
		r.jobDuration.WithLabelValues(handler).Observe(d.Seconds())
	}
}

// RecordProbe records a probe's latency and whether it degraded
func (r *Recorder) RecordProbe(probe string, d time.Duration, failed bool) {
	if r == nil {
		return
	}
	r.probeDuration.WithLabelValues(probe).Observe(d.Seconds())
	if failed {
		r.probeFailures.WithLabelValues(probe).Inc()
	}
}

// RecordPlacement counts where metadata landed in a result
func (r *Recorder) RecordPlacement(placement string) {
	if r == nil {
		return
	}
	r.placements.WithLabelValues(placement).Inc()
}

// Handler returns an HTTP handler serving the registry in Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
