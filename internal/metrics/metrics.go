// Package metrics counts analysis activity with Prometheus collectors and
// writes them to a node-exporter textfile after a run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one process. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Frames       *prometheus.CounterVec
	Evidence     *prometheus.CounterVec
	Files        *prometheus.CounterVec
	Chunks       prometheus.Counter
	FileDuration prometheus.Histogram
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Frames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posedetect_frames_total",
				Help: "Frames evaluated per analyzer by result status",
			},
			[]string{"analyzer", "status"}, // "success", "unknown", "skipped"
		),

		Evidence: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posedetect_evidence_items_total",
				Help: "Evidence images written per analyzer",
			},
			[]string{"analyzer"},
		),

		Files: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posedetect_files_total",
				Help: "Video files analyzed by outcome",
			},
			[]string{"outcome"}, // "ok", "failed"
		),

		Chunks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "posedetect_chunks_total",
				Help: "Chunks produced by splitting large videos",
			},
		),

		FileDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "posedetect_file_duration_seconds",
				Help:    "Wall time spent analyzing one video file or chunk",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34m
			},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFrame counts one analyzer result.
func (m *Metrics) ObserveFrame(analyzer, status string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(analyzer, status).Inc()
}

// ObserveEvidence counts one written evidence image.
func (m *Metrics) ObserveEvidence(analyzer string) {
	if m == nil {
		return
	}
	m.Evidence.WithLabelValues(analyzer).Inc()
}

// ObserveFile records a finished file or chunk.
func (m *Metrics) ObserveFile(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.Files.WithLabelValues(outcome).Inc()
	m.FileDuration.Observe(elapsed.Seconds())
}

// ObserveChunks counts produced chunks.
func (m *Metrics) ObserveChunks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Chunks.Add(float64(n))
}

// WriteTextfile writes every collector in the text exposition format to
// path, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
