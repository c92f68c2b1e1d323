package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"gocv.io/x/gocv"

	"github.com/senas-lab/senas/internal/app"
	"github.com/senas-lab/senas/internal/capture"
	"github.com/senas-lab/senas/internal/dataset"
	"github.com/senas-lab/senas/internal/detector"
	"github.com/senas-lab/senas/internal/knn"
	"github.com/senas-lab/senas/internal/metrics"
	"github.com/senas-lab/senas/internal/server"
	"github.com/senas-lab/senas/internal/store"
)

func encodePNG(t *testing.T, shade uint8) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 48, 36))
	for y := 0; y < 36; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 5), B: uint8(y * 7), A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// writeDataset creates root/palm/{a,b}.png and root/thumbs_up/{a,b}.png.
func writeDataset(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	for i, label := range []string{"palm", "thumbs_up"} {
		dir := filepath.Join(root, label)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create class dir: %v", err)
		}
		for j, name := range []string{"a.png", "b.png"} {
			data := encodePNG(t, uint8(40*i+10*j))
			if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
				t.Fatalf("failed to write image: %v", err)
			}
		}
	}
	return root
}

func hands(h detector.HandLandmarks) []detector.HandLandmarks {
	return []detector.HandLandmarks{h}
}

// signDetector answers the dataset images in scan order: palm, palm,
// thumbs_up, thumbs_up. Later calls see an open palm.
func signDetector() *detector.MockDetector {
	det := detector.NewMockDetector()
	palm, thumbs := detector.OpenPalmLandmarks(), detector.ThumbsUpLandmarks()
	det.QueueSequence(hands(palm), hands(palm), hands(thumbs), hands(thumbs))
	det.SetHands(hands(palm))
	return det
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "senas.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestE2E_DatasetToAPI(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	root := writeDataset(t)
	s := newStore(t)
	det := signDetector()

	var out bytes.Buffer
	loader := dataset.NewLoader(det, s.Samples())
	loader.Out = &out

	ds, report, err := loader.Load(context.Background(), root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, want := range []string{
		"Loading classes: [palm thumbs_up]",
		"  palm: 2 samples",
		"  thumbs_up: 2 samples",
		"Total samples: 4",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	if report.Total != 4 || det.Calls() != 4 {
		t.Fatalf("expected 4 samples from 4 detections, got %d from %d", report.Total, det.Calls())
	}

	rec := app.NewRecognizer(nil, nil, nil, ds, app.RecognizerConfig{K: 3, SmoothWindow: knn.DefaultSmoothWindow})
	reg := prometheus.NewRegistry()

	reload := func(ctx context.Context) (*dataset.Report, error) {
		ds, report, err := loader.Load(ctx, root)
		if err != nil {
			return report, err
		}
		rec.SetDataset(ds)
		return report, nil
	}

	ts := httptest.NewServer(server.New(server.Config{
		Store:    s,
		Model:    rec,
		Detector: det,
		Reload:   reload,
		Gatherer: reg,
		Metrics:  metrics.New(reg),
	}))
	defer ts.Close()
	client := ts.Client()

	t.Run("Classes", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/classes")
		if err != nil {
			t.Fatalf("GET /api/classes error = %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Classes []struct {
				Label   string `json:"label"`
				Samples int    `json:"samples"`
			} `json:"classes"`
			Total int `json:"total"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Total != 4 || len(body.Classes) != 2 || body.Classes[1].Label != "thumbs_up" {
			t.Errorf("unexpected classes %+v", body)
		}
	})

	t.Run("ClassifyVector", func(t *testing.T) {
		thumbs := detector.ThumbsUpLandmarks()
		payload, _ := json.Marshal(map[string]interface{}{"points": thumbs.Points})
		resp, err := client.Post(ts.URL+"/api/classify", "application/json", bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("POST /api/classify error = %v", err)
		}
		defer resp.Body.Close()

		var pred knn.Prediction
		json.NewDecoder(resp.Body).Decode(&pred)
		if pred.Label != "thumbs_up" || pred.Votes["thumbs_up"] != 2 {
			t.Errorf("unexpected prediction %+v", pred)
		}
	})

	t.Run("ClassifyImage", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/api/classify/image", "image/png", bytes.NewReader(encodePNG(t, 200)))
		if err != nil {
			t.Fatalf("POST /api/classify/image error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		var pred knn.Prediction
		json.NewDecoder(resp.Body).Decode(&pred)
		if pred.Label != "palm" {
			t.Errorf("expected palm, got %s", pred.Label)
		}
	})

	t.Run("ReloadUsesCache", func(t *testing.T) {
		before := det.Calls()

		resp, err := client.Post(ts.URL+"/api/dataset/reload", "application/json", nil)
		if err != nil {
			t.Fatalf("POST /api/dataset/reload error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		var report dataset.Report
		json.NewDecoder(resp.Body).Decode(&report)

		cached := 0
		for _, c := range report.PerClass {
			cached += c.Cached
		}
		if cached != 4 || det.Calls() != before {
			t.Errorf("expected 4 cached samples without detection, got %d cached and %d new calls", cached, det.Calls()-before)
		}
	})

	t.Run("Samples", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/samples?label=palm")
		if err != nil {
			t.Fatalf("GET /api/samples error = %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Samples []struct {
				Source string `json:"source"`
			} `json:"samples"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if len(body.Samples) != 2 || !strings.HasSuffix(body.Samples[0].Source, "a.png") {
			t.Errorf("unexpected samples %+v", body.Samples)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/metrics")
		if err != nil {
			t.Fatalf("GET /metrics error = %v", err)
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(data), `senas_api_requests_total{method="POST",path="/api/classify",status="2xx"} 1`) {
			t.Errorf("request metrics missing:\n%s", data)
		}
	})
}

func TestE2E_LiveRecognizerStream(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	ds := knn.NewDataset()
	palm, thumbs := detector.OpenPalmLandmarks(), detector.ThumbsUpLandmarks()
	for i := 0; i < 2; i++ {
		ds.Add(knn.Sample{Label: "palm", Vector: palm.Features()})
		ds.Add(knn.Sample{Label: "thumbs_up", Vector: thumbs.Features()})
	}

	frames := make([]*gocv.Mat, 5)
	for i := range frames {
		m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3)
		frames[i] = &m
	}
	defer func() {
		for _, f := range frames {
			f.Close()
		}
	}()

	live := detector.NewMockDetector()
	live.SetHands(hands(palm))

	rec := app.NewRecognizer(capture.NewMockCamera(frames, false), live, nil, ds, app.RecognizerConfig{
		Mirror:       true,
		K:            3,
		SmoothWindow: knn.DefaultSmoothWindow,
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	preds := server.NewPredictionsHandler(server.DefaultStreamFPS)
	defer preds.Close()
	buffer := server.NewFrameBuffer()

	rec.OnFrame(buffer.Put)
	rec.Subscribe(preds.Publish)
	rec.Subscribe(func(ev app.Event) {
		m.ObserveFrame(ev.Smoothed, ev.DetectLatency, ev.FPS)
	})

	ts := httptest.NewServer(server.New(server.Config{
		Model:       rec,
		Predictions: preds,
		Frames:      buffer,
		Gatherer:    reg,
	}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/predictions", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for preds.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := rec.Run(context.Background()); !errors.Is(err, capture.ErrNoMoreFrames) {
		t.Fatalf("expected ErrNoMoreFrames, got %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg server.PredictionMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if !msg.Hand || msg.Label != "palm" {
		t.Errorf("unexpected prediction message %+v", msg)
	}

	if _, seq := buffer.Latest(); seq != 5 {
		t.Errorf("expected 5 streamed frames, got %d", seq)
	}
	if last := rec.Last(); last.Smoothed != "palm" {
		t.Errorf("expected last smoothed palm, got %q", last.Smoothed)
	}

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), `senas_predictions_total{label="palm"} 5`) {
		t.Errorf("prediction metrics missing:\n%s", data)
	}
}
