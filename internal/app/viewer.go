package app

import (
	"context"
	"fmt"
	"log"

	"gocv.io/x/gocv"

	"github.com/senas-lab/senas/internal/capture"
	"github.com/senas-lab/senas/internal/detector"
	"github.com/senas-lab/senas/internal/overlay"
)

// ViewerConfig holds the options of the landmark viewer.
type ViewerConfig struct {
	Mirror    bool
	MaxHands  int
	DetConf   float64
	TrkConf   float64
	FPSWindow int
}

// Viewer shows the camera feed with every detected hand drawn on it.
type Viewer struct {
	camera   capture.Camera
	detector detector.Detector
	display  Display
	config   ViewerConfig
	fps      *capture.FPSMeter
}

// NewViewer creates a viewer. display may be nil for headless use.
func NewViewer(cam capture.Camera, det detector.Detector, display Display, config ViewerConfig) *Viewer {
	return &Viewer{
		camera:   cam,
		detector: det,
		display:  display,
		config:   config,
		fps:      capture.NewFPSMeter(config.FPSWindow),
	}
}

// Step mirrors frame, draws the detected hands with their handedness
// label and the status bar, and returns the hands.
func (v *Viewer) Step(frame *gocv.Mat) ([]detector.HandLandmarks, error) {
	if v.config.Mirror {
		mirror(frame)
	}

	hands, err := v.detector.Detect(frame)
	for i := range hands {
		overlay.DrawHand(frame, &hands[i])
		overlay.DrawHandLabel(frame, &hands[i])
	}

	fps := v.fps.Tick()
	overlay.DrawStatusBar(frame, overlay.ViewerStatus(v.config.MaxHands, v.config.DetConf, v.config.TrkConf, fps))

	return hands, err
}

// Run opens the camera and loops until a quit key, ctx cancellation or a
// frame read failure. Detection errors are logged and the frame is still shown.
func (v *Viewer) Run(ctx context.Context) error {
	if err := v.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	defer v.camera.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := v.camera.ReadFrame()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		if _, err := v.Step(frame); err != nil {
			log.Printf("Error detecting hands: %v", err)
		}

		quit := false
		if v.display != nil {
			v.display.Show(frame)
			quit = IsQuitKey(v.display.WaitKey(1))
		}
		frame.Close()

		if quit {
			return nil
		}
	}
}
