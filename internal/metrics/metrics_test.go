package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// gather returns the value of the sample of family name whose labels
// include all of want.
func gather(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, want)
	return 0
}

func TestMetrics_ObserveFrame(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFrame("palm", 20*time.Millisecond, 30)
	m.ObserveFrame("palm", 20*time.Millisecond, 29)
	m.ObserveFrame("", 10*time.Millisecond, 28)

	if got := gather(t, reg, "senas_predictions_total", map[string]string{"label": "palm"}); got != 2 {
		t.Errorf("expected 2 palm predictions, got %g", got)
	}
	if got := gather(t, reg, "senas_no_hand_frames_total", nil); got != 1 {
		t.Errorf("expected 1 no-hand frame, got %g", got)
	}
	if got := gather(t, reg, "senas_detect_duration_seconds", nil); got != 3 {
		t.Errorf("expected 3 latency observations, got %g", got)
	}
	if got := gather(t, reg, "senas_frame_rate", nil); got != 28 {
		t.Errorf("expected frame rate 28, got %g", got)
	}
}

func TestMetrics_Dataset(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetDataset(map[string]int{"a": 3, "b": 5})
	m.SetDataset(map[string]int{"a": 4})
	// Every reload reports the same skipped images again.
	for i := 0; i < 3; i++ {
		m.SetSkipped(map[string]int{"no_hand": 4, "unreadable": 1})
	}
	m.SetSkipped(map[string]int{"no_hand": 3})

	if got := gather(t, reg, "senas_dataset_samples", map[string]string{"label": "a"}); got != 4 {
		t.Errorf("expected 4 samples for a, got %g", got)
	}
	if got := gather(t, reg, "senas_dataset_skipped_images", map[string]string{"reason": "no_hand"}); got != 3 {
		t.Errorf("expected 3 no-hand skips from the last load, got %g", got)
	}

	families, _ := reg.Gather()
	for _, mf := range families {
		switch mf.GetName() {
		case "senas_dataset_samples":
			if len(mf.GetMetric()) != 1 {
				t.Errorf("stale class b should be removed, got %d series", len(mf.GetMetric()))
			}
		case "senas_dataset_skipped_images":
			if len(mf.GetMetric()) != 1 {
				t.Errorf("stale reason should be removed, got %d series", len(mf.GetMetric()))
			}
		}
	}
}

func TestMetrics_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("/api/classify", "POST", 200, time.Millisecond)
	m.ObserveRequest("/api/classify", "POST", 422, time.Millisecond)

	if got := gather(t, reg, "senas_api_requests_total", map[string]string{"status": "4xx"}); got != 1 {
		t.Errorf("expected 1 client error, got %g", got)
	}
	if got := gather(t, reg, "senas_api_duration_seconds", map[string]string{"path": "/api/classify"}); got != 2 {
		t.Errorf("expected 2 latency observations, got %g", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFrame("x", 0, 0)
	m.SetDataset(map[string]int{"x": 1})
	m.SetSkipped(map[string]int{"x": 1})
	m.ObserveRequest("/", "GET", 200, 0)
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 204: "2xx", 301: "3xx", 404: "4xx", 503: "5xx"}
	for status, want := range tests {
		if got := statusClass(status); got != want {
			t.Errorf("statusClass(%d) = %s, want %s", status, got, want)
		}
	}
}
