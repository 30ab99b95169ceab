// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ChunksUploaded         prometheus.Counter
	ChunkBytes             prometheus.Histogram
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	ExportsRendered        *prometheus.CounterVec
	GapReports             prometheus.Counter
	AudioAssemblies        prometheus.Counter
	ActiveSessions         prometheus.Gauge
}

// New creates and registers all metrics on the given registerer.
// Tests pass a fresh prometheus.NewRegistry to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChunksUploaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunks_uploaded_total",
			Help: "Total number of chunk uploads accepted",
		}),
		ChunkBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_chunk_bytes",
			Help:    "Size of accepted chunk payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_successes_total",
			Help: "Total number of successful chunk transcription results",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_failures_total",
			Help: "Total number of failed chunk transcription results",
		}),
		ExportsRendered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_exports_rendered_total",
			Help: "Total number of exports rendered, by format",
		}, []string{"format"}),
		GapReports: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_gap_reports_total",
			Help: "Total number of missing-chunk reports computed",
		}),
		AudioAssemblies: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_audio_assemblies_total",
			Help: "Total number of combined audio streams served",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_active_sessions",
			Help: "Sessions currently recording or paused",
		}),
	}
}
