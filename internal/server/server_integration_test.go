package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/senas-lab/senas/internal/app"
	"github.com/senas-lab/senas/internal/dataset"
	"github.com/senas-lab/senas/internal/detector"
	"github.com/senas-lab/senas/internal/knn"
	"github.com/senas-lab/senas/internal/store"
)

func dialPredictions(t *testing.T, ts *httptest.Server, h *PredictionsHandler) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/predictions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readPrediction(t *testing.T, conn *websocket.Conn) PredictionMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg PredictionMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func event(smoothed, raw string) app.Event {
	ev := app.Event{Time: time.Now(), Smoothed: smoothed, FPS: 30}
	if raw != "" {
		ev.Hand = true
		ev.Handedness = "Right"
		ev.Prediction = knn.Prediction{Label: raw, Vote: raw, MeanDistance: 0.12, Votes: map[string]int{raw: 3}}
	}
	return ev
}

func TestPredictionsHandler_Stream(t *testing.T) {
	h := NewPredictionsHandler(1)
	ts := httptest.NewServer(New(Config{Predictions: h}))
	defer ts.Close()
	defer h.Close()

	conn := dialPredictions(t, ts, h)

	h.Publish(event("palm", "palm"))
	msg := readPrediction(t, conn)
	if !msg.Hand || msg.Label != "palm" || msg.Raw != "palm" || msg.Distance != 0.12 || msg.Handedness != "Right" {
		t.Errorf("unexpected message %+v", msg)
	}

	// Same label inside the rate window is dropped; a label change is not.
	h.Publish(event("palm", "palm"))
	h.Publish(event("", ""))

	msg = readPrediction(t, conn)
	if msg.Hand || msg.Label != "" {
		t.Errorf("expected no-hand message, got %+v", msg)
	}
}

func TestPredictionsHandler_DisconnectUnregisters(t *testing.T) {
	h := NewPredictionsHandler(DefaultStreamFPS)
	ts := httptest.NewServer(h)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for h.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Publishing with no clients must not block.
	h.Publish(event("palm", "palm"))
}

func TestStreamHandler(t *testing.T) {
	frames := NewFrameBuffer()
	if _, seq := frames.Latest(); seq != 0 {
		t.Fatalf("expected empty buffer, got seq %d", seq)
	}
	frames.set([]byte("jpeg-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	NewStreamHandler(frames, 50).ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("unexpected Content-Type %s", ct)
	}
	body := rec.Body.String()
	if strings.Count(body, "--frame") != 1 {
		t.Errorf("expected the unchanged frame once, got %q", body)
	}
	if !strings.Contains(body, "Content-Length: 6\r\n\r\njpeg-1\r\n") {
		t.Errorf("unexpected part %q", body)
	}

	rec = httptest.NewRecorder()
	NewStreamHandler(frames, 50).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stream", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestAPI_ReloadWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	model := &swapModel{c: knn.NewClassifier(3, 0)}
	palm := detector.OpenPalmLandmarks()

	reload := func(ctx context.Context) (*dataset.Report, error) {
		ds := knn.NewDataset()
		for i, src := range []string{"/data/palm/a.jpg", "/data/palm/b.jpg"} {
			sample := &store.Sample{Label: "palm", Source: src, Vector: palm.Features(), Score: float64(i)}
			if err := s.Samples().Upsert(sample); err != nil {
				return nil, err
			}
			ds.Add(knn.Sample{ID: sample.ID, Label: "palm", Vector: sample.Vector})
		}
		c := knn.NewClassifier(3, 0)
		c.Fit(ds)
		model.set(c)
		return &dataset.Report{Classes: ds.Labels(), Total: ds.Len()}, nil
	}

	srv := New(Config{Store: s, Model: model, Reload: reload})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	// 1. Empty model answers Unknown
	body, _ := json.Marshal(map[string]interface{}{"features": palm.Features()})
	resp, err := client.Post(ts.URL+"/api/classify", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/classify error = %v", err)
	}
	var pred knn.Prediction
	json.NewDecoder(resp.Body).Decode(&pred)
	resp.Body.Close()
	if pred.Label != knn.Unknown {
		t.Errorf("expected %s before reload, got %s", knn.Unknown, pred.Label)
	}

	// 2. Reload
	resp, err = client.Post(ts.URL+"/api/dataset/reload", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/dataset/reload error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reload status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// 3. Classes and samples reflect the reload
	resp, _ = client.Get(ts.URL + "/api/classes")
	var classes struct {
		Total int `json:"total"`
	}
	json.NewDecoder(resp.Body).Decode(&classes)
	resp.Body.Close()
	if classes.Total != 2 {
		t.Errorf("classes total = %d, want 2", classes.Total)
	}

	resp, _ = client.Get(ts.URL + "/api/samples?label=palm")
	var samples struct {
		Samples []json.RawMessage `json:"samples"`
	}
	json.NewDecoder(resp.Body).Decode(&samples)
	resp.Body.Close()
	if len(samples.Samples) != 2 {
		t.Errorf("len(samples) = %d, want 2", len(samples.Samples))
	}

	// 4. Classification now succeeds
	resp, _ = client.Post(ts.URL+"/api/classify", "application/json", bytes.NewReader(body))
	json.NewDecoder(resp.Body).Decode(&pred)
	resp.Body.Close()
	if pred.Label != "palm" {
		t.Errorf("expected palm after reload, got %s", pred.Label)
	}
}

// swapModel lets the reload func replace the classifier.
type swapModel struct {
	mu sync.RWMutex
	c  *knn.Classifier
}

func (m *swapModel) Classifier() *knn.Classifier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.c
}

func (m *swapModel) set(c *knn.Classifier) {
	m.mu.Lock()
	m.c = c
	m.mu.Unlock()
}
