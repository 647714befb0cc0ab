// Package metrics exposes Prometheus instrumentation for the transcode
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	JobsStarted   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter

	CascadeAttempts *prometheus.CounterVec
	AttemptSeconds  *prometheus.HistogramVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	UploadsTotal prometheus.Counter
}

// New registers the pipeline collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ambientd_jobs_started_total",
			Help: "Transcode jobs started.",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ambientd_jobs_completed_total",
			Help: "Transcode jobs that produced a derivative.",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ambientd_jobs_failed_total",
			Help: "Transcode jobs that exhausted every encoder.",
		}),
		CascadeAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ambientd_cascade_attempts_total",
			Help: "Encoder attempts by encoder name and outcome.",
		}, []string{"encoder", "outcome"}),
		AttemptSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ambientd_attempt_duration_seconds",
			Help:    "Wall time per encoder attempt.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"encoder"}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "ambientd_cache_hits_total",
			Help: "Requests satisfied by an existing derivative.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "ambientd_cache_misses_total",
			Help: "Requests that required a new transcode.",
		}),
		UploadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ambientd_uploads_total",
			Help: "Media files accepted at ingress.",
		}),
	}
}
