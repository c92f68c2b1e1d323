package app

import (
	"context"
	"fmt"
	"image/color"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/senas-lab/senas/internal/capture"
	"github.com/senas-lab/senas/internal/detector"
	"github.com/senas-lab/senas/internal/knn"
	"github.com/senas-lab/senas/internal/overlay"
)

// PausedText is drawn while classification is disabled.
const PausedText = "Paused"

// Event is published for every classified frame.
type Event struct {
	Time time.Time `json:"time"`
	// Hand is false when no hand was detected; Prediction is then empty.
	Hand       bool           `json:"hand"`
	Handedness string         `json:"handedness,omitempty"`
	Prediction knn.Prediction `json:"prediction"`
	// Smoothed is the majority label of the recent frames, "" without a hand.
	Smoothed      string        `json:"smoothed"`
	FPS           float64       `json:"fps"`
	DetectLatency time.Duration `json:"detect_latency"`
}

// Subscriber receives recognizer events. It runs on the capture loop and
// must not block.
type Subscriber func(Event)

// RecognizerConfig holds the options of the live classifier.
type RecognizerConfig struct {
	Mirror           bool
	K                int
	UnknownThreshold float64
	SmoothWindow     int
	FPSWindow        int
}

// Recognizer classifies the first detected hand of every frame.
type Recognizer struct {
	camera   capture.Camera
	detector detector.Detector
	display  Display
	config   RecognizerConfig
	fps      *capture.FPSMeter

	mu         sync.RWMutex
	classifier *knn.Classifier
	smoother   *knn.Smoother
	colors     map[string]color.RGBA
	enabled    bool
	subs       []Subscriber
	sinks      []func(*gocv.Mat)
	last       Event
}

// NewRecognizer creates an enabled recognizer over ds. display may be nil
// for headless use.
func NewRecognizer(cam capture.Camera, det detector.Detector, display Display, ds *knn.Dataset, config RecognizerConfig) *Recognizer {
	r := &Recognizer{
		camera:   cam,
		detector: det,
		display:  display,
		config:   config,
		fps:      capture.NewFPSMeter(config.FPSWindow),
		smoother: knn.NewSmoother(config.SmoothWindow),
		enabled:  true,
	}
	r.SetDataset(ds)
	return r
}

// SetDataset swaps the classifier's dataset and clears the smoothing window.
func (r *Recognizer) SetDataset(ds *knn.Dataset) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := knn.NewClassifier(r.config.K, r.config.UnknownThreshold)
	c.Fit(ds)
	r.classifier = c
	r.colors = overlay.ClassColors(c.Dataset().Labels())
	r.smoother.Reset()
}

// Dataset returns the current dataset.
func (r *Recognizer) Dataset() *knn.Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classifier.Dataset()
}

// Classifier returns the classifier used for live frames.
func (r *Recognizer) Classifier() *knn.Classifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classifier
}

// SetEnabled pauses or resumes classification.
func (r *Recognizer) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
	if !enabled {
		r.smoother.Reset()
	}
}

// IsEnabled returns whether classification is running.
func (r *Recognizer) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Subscribe registers fn for every published event.
func (r *Recognizer) Subscribe(fn Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// OnFrame registers fn to receive every annotated frame in Run. The frame
// is only valid during the call.
func (r *Recognizer) OnFrame(fn func(*gocv.Mat)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, fn)
}

// Last returns the most recent event.
func (r *Recognizer) Last() Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Step processes one frame: mirror, detect, classify the first hand, smooth,
// draw and publish. Nothing is published while paused.
func (r *Recognizer) Step(frame *gocv.Mat) (Event, error) {
	if r.config.Mirror {
		mirror(frame)
	}
	fps := r.fps.Tick()

	r.mu.RLock()
	enabled := r.enabled
	classifier := r.classifier
	r.mu.RUnlock()

	ds := classifier.Dataset()
	overlay.DrawStatusBar(frame, overlay.ClassifierStatus(len(ds.Labels()), ds.Len(), classifier.K, fps))

	if !enabled {
		overlay.DrawPrediction(frame, PausedText, overlay.White)
		return Event{}, nil
	}

	start := time.Now()
	hands, err := r.detector.Detect(frame)
	latency := time.Since(start)
	if err != nil {
		return Event{}, fmt.Errorf("detect hands: %w", err)
	}

	ev := Event{
		Time:          time.Now(),
		FPS:           fps,
		DetectLatency: latency,
	}

	if len(hands) == 0 {
		r.smoother.Reset()
		overlay.DrawPrediction(frame, overlay.NoHandText, overlay.White)
		r.publish(ev)
		return ev, nil
	}

	hand := &hands[0]
	overlay.DrawHand(frame, hand)

	pred, err := classifier.PredictHand(hand)
	if err != nil {
		return Event{}, fmt.Errorf("classify hand: %w", err)
	}

	ev.Hand = true
	ev.Handedness = hand.Handedness
	ev.Prediction = pred
	ev.Smoothed = r.smoother.Push(pred.Label)

	r.mu.RLock()
	c := overlay.ColorFor(r.colors, ev.Smoothed)
	r.mu.RUnlock()
	overlay.DrawPrediction(frame, overlay.PredictionText(ev.Smoothed, pred.MeanDistance), c)

	r.publish(ev)
	return ev, nil
}

func (r *Recognizer) publish(ev Event) {
	r.mu.Lock()
	r.last = ev
	subs := append([]Subscriber(nil), r.subs...)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Run opens the camera and loops until a quit key, ctx cancellation or a
// frame read failure.
func (r *Recognizer) Run(ctx context.Context) error {
	if err := r.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	defer r.camera.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := r.camera.ReadFrame()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		if _, err := r.Step(frame); err != nil {
			log.Printf("Error processing frame: %v", err)
		}

		r.mu.RLock()
		sinks := r.sinks
		r.mu.RUnlock()
		for _, fn := range sinks {
			fn(frame)
		}

		quit := false
		if r.display != nil {
			r.display.Show(frame)
			quit = IsQuitKey(r.display.WaitKey(1))
		}
		frame.Close()

		if quit {
			return nil
		}
	}
}
