// Package metrics exposes Prometheus collectors for the recognizer, the
// dataset loader and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "senas"

// Metrics groups every collector. All methods are safe on a nil receiver.
type Metrics struct {
	predictions    *prometheus.CounterVec
	noHandFrames   prometheus.Counter
	detectDuration prometheus.Histogram
	frameRate      prometheus.Gauge
	datasetSamples *prometheus.GaugeVec
	skippedImages  *prometheus.GaugeVec
	apiRequests    *prometheus.CounterVec
	apiDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Classified frames by smoothed label",
			},
			[]string{"label"},
		),
		noHandFrames: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "no_hand_frames_total",
				Help:      "Frames in which no hand was detected",
			},
		),
		detectDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "detect_duration_seconds",
				Help:      "Hand detection latency per frame",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 8),
			},
		),
		frameRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "frame_rate",
				Help:      "Averaged capture loop frame rate",
			},
		),
		datasetSamples: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dataset_samples",
				Help:      "Samples in the loaded dataset by class",
			},
			[]string{"label"},
		),
		skippedImages: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dataset_skipped_images",
				Help:      "Images of the last dataset load that produced no sample, by reason",
			},
			[]string{"reason"},
		),
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"path", "method", "status"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_duration_seconds",
				Help:      "API request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
	}

	reg.MustRegister(
		m.predictions, m.noHandFrames, m.detectDuration, m.frameRate,
		m.datasetSamples, m.skippedImages, m.apiRequests, m.apiDuration,
	)
	return m
}

// ObserveFrame records one classified frame. An empty label means no hand.
func (m *Metrics) ObserveFrame(label string, detect time.Duration, fps float64) {
	if m == nil {
		return
	}
	if label == "" {
		m.noHandFrames.Inc()
	} else {
		m.predictions.WithLabelValues(label).Inc()
	}
	m.detectDuration.Observe(detect.Seconds())
	m.frameRate.Set(fps)
}

// SetDataset replaces the per-class sample gauges.
func (m *Metrics) SetDataset(counts map[string]int) {
	if m == nil {
		return
	}
	m.datasetSamples.Reset()
	for label, n := range counts {
		m.datasetSamples.WithLabelValues(label).Set(float64(n))
	}
}

// SetSkipped replaces the skipped image gauges with the counts of the last
// dataset load.
func (m *Metrics) SetSkipped(byReason map[string]int) {
	if m == nil {
		return
	}
	m.skippedImages.Reset()
	for reason, n := range byReason {
		m.skippedImages.WithLabelValues(reason).Set(float64(n))
	}
}

// ObserveRequest records one API request.
func (m *Metrics) ObserveRequest(path, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(path, method, statusClass(status)).Inc()
	m.apiDuration.WithLabelValues(path, method).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
