package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/senas-lab/senas/internal/app"
	"github.com/senas-lab/senas/internal/dataset"
)

// runView is the live landmark viewer.
func runView(args []string) {
	f := newFlags("view")
	cfg := f.load(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	det := newDetector(cfg, cfg.Detector.MaxHands, false)
	defer det.Close()

	win := app.NewWindow("MediaPipe Hands")
	defer win.Close()

	viewer := app.NewViewer(newCamera(cfg), det, win, app.ViewerConfig{
		Mirror:    cfg.Camera.Mirror,
		MaxHands:  cfg.Detector.MaxHands,
		DetConf:   cfg.Detector.MinDetectionConfidence,
		TrkConf:   cfg.Detector.MinTrackingConfidence,
		FPSWindow: cfg.Overlay.FPSWindow,
	})
	if err := viewer.Run(ctx); err != nil {
		log.Fatalf("Viewer stopped: %v", err)
	}
}

// runClassify builds the dataset and classifies the first hand of every
// camera frame.
func runClassify(args []string) {
	f := newFlags("classify")
	cfg := f.load(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStore(cfg)
	defer st.Close()

	static := newDetector(cfg, 1, true)
	ds, _, err := loadDataset(ctx, cfg, static, st, os.Stdout)
	static.Close()
	if err != nil {
		fatalDataset(cfg, err)
	}

	det := newDetector(cfg, cfg.Classifier.MaxHands, false)
	defer det.Close()

	win := app.NewWindow("Hand Sign Classifier")
	defer win.Close()

	rec := app.NewRecognizer(newCamera(cfg), det, win, ds, app.RecognizerConfig{
		Mirror:           cfg.Camera.Mirror,
		K:                cfg.Classifier.K,
		UnknownThreshold: cfg.Classifier.UnknownThreshold,
		SmoothWindow:     cfg.Classifier.SmoothWindow,
		FPSWindow:        cfg.Overlay.FPSWindow,
	})
	if err := rec.Run(ctx); err != nil {
		log.Fatalf("Classifier stopped: %v", err)
	}
}

// runIndex extracts the dataset into the store and prints the report.
func runIndex(args []string) {
	f := newFlags("index")
	asJSON := f.set.Bool("json", false, "print the report as JSON")
	cfg := f.load(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStore(cfg)
	defer st.Close()

	det := newDetector(cfg, 1, true)
	defer det.Close()

	var out io.Writer = os.Stdout
	if *asJSON {
		out = nil
	}
	_, report, err := loadDataset(ctx, cfg, det, st, out)
	if err != nil {
		fatalDataset(cfg, err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("Failed to encode report: %v", err)
		}
		return
	}

	for _, c := range report.PerClass {
		fmt.Printf("%-20s images=%d samples=%d cached=%d\n", c.Label, c.Images, c.Samples, c.Cached)
	}
	skipped := report.Skipped()
	reasons := make([]string, 0, len(skipped))
	for reason := range skipped {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Printf("skipped %s: %d\n", reason, skipped[dataset.SkipReason(reason)])
	}
	fmt.Printf("Pruned %d stale samples in %s\n", report.Pruned, report.Duration.Round(time.Millisecond))
}
