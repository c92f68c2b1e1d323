package detector

import (
	"strconv"

	"gocv.io/x/gocv"
)

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect.
	MaxHands int

	// MinDetectionConf is the minimum detection confidence threshold (0.0-1.0).
	MinDetectionConf float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	// Ignored in static image mode.
	MinTrackingConf float64

	// ModelComplexity selects the landmark model: 0 fast, 1 balanced, 2 accurate.
	ModelComplexity int

	// StaticImageMode treats every frame as unrelated (dataset images).
	StaticImageMode bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:         2,
		MinDetectionConf: 0.6,
		MinTrackingConf:  0.6,
		ModelComplexity:  1,
	}
}

// Args renders the config as command line flags for the tracker service.
func (c Config) Args() []string {
	args := []string{
		"--max-hands", strconv.Itoa(c.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(c.MinDetectionConf, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(c.MinTrackingConf, 'f', -1, 64),
		"--model-complexity", strconv.Itoa(c.ModelComplexity),
	}
	if c.StaticImageMode {
		args = append(args, "--static-image-mode")
	}
	return args
}
