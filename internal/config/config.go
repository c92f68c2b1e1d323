// Package config loads the YAML configuration shared by every senas command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Camera     CameraConfig     `yaml:"camera"`
	Detector   DetectorConfig   `yaml:"detector"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Overlay    OverlayConfig    `yaml:"overlay"`
	Store      StoreConfig      `yaml:"store"`
	Server     ServerConfig     `yaml:"server"`
	Plugins    PluginsConfig    `yaml:"plugins"`
}

// CameraConfig selects and sizes the capture device.
type CameraConfig struct {
	Index  int  `yaml:"index"`
	Width  int  `yaml:"width"`
	Height int  `yaml:"height"`
	Mirror bool `yaml:"mirror"`
}

// DetectorConfig configures the hand tracker.
type DetectorConfig struct {
	MaxHands               int     `yaml:"max_hands"`
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`
	ModelComplexity        int     `yaml:"model_complexity"`
}

// DatasetConfig describes the training image folders.
type DatasetConfig struct {
	Dir           string   `yaml:"dir"`
	Extensions    []string `yaml:"extensions"`
	AugmentMirror bool     `yaml:"augment_mirror"`
	MaxImageSide  int      `yaml:"max_image_side"`
	// Rescan is a cron expression; empty disables periodic rescans.
	Rescan string `yaml:"rescan"`
}

// ClassifierConfig configures k-NN prediction.
type ClassifierConfig struct {
	K                int     `yaml:"k"`
	UnknownThreshold float64 `yaml:"unknown_threshold"`
	SmoothWindow     int     `yaml:"smooth_window"`
	MaxHands         int     `yaml:"max_hands"`
}

// OverlayConfig configures on-frame drawing.
type OverlayConfig struct {
	FPSWindow int `yaml:"fps_window"`
}

// StoreConfig locates the sample database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StreamFPS int    `yaml:"stream_fps"`
	// StaticDir, when set, is served at "/".
	StaticDir string `yaml:"static_dir"`
}

// PluginsConfig configures sign-triggered plugins.
type PluginsConfig struct {
	Dir       string `yaml:"dir"`
	TimeoutMS int    `yaml:"timeout_ms"`
	// Bindings maps a class label to the plugin run when that sign appears.
	Bindings map[string]string `yaml:"bindings"`
}

// Timeout returns the plugin execution timeout.
func (p PluginsConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// DefaultExtensions are the image types accepted in dataset folders.
var DefaultExtensions = []string{"jpg", "jpeg", "png", "bmp", "webp"}

// Default returns the configuration used when no file is given.
func Default() *Config {
	home := homeDir()

	return &Config{
		Camera: CameraConfig{
			Index:  0,
			Width:  640,
			Height: 480,
			Mirror: true,
		},
		Detector: DetectorConfig{
			MaxHands:               2,
			MinDetectionConfidence: 0.6,
			MinTrackingConfidence:  0.6,
			ModelComplexity:        1,
		},
		Dataset: DatasetConfig{
			Dir:          "./senas",
			Extensions:   append([]string(nil), DefaultExtensions...),
			MaxImageSide: 1280,
		},
		Classifier: ClassifierConfig{
			K:            5,
			SmoothWindow: 15,
			MaxHands:     1,
		},
		Overlay: OverlayConfig{
			FPSWindow: 30,
		},
		Store: StoreConfig{
			Path: filepath.Join(home, ".senas", "senas.db"),
		},
		Server: ServerConfig{
			Addr:      ":8080",
			StreamFPS: 15,
		},
		Plugins: PluginsConfig{
			Dir:       filepath.Join(home, ".senas", "plugins"),
			TimeoutMS: 5000,
			Bindings:  map[string]string{},
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Plugins.Dir = expandHome(cfg.Plugins.Dir)
	cfg.Dataset.Dir = expandHome(cfg.Dataset.Dir)
	if cfg.Plugins.Bindings == nil {
		cfg.Plugins.Bindings = map[string]string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error

	if c.Camera.Index < 0 {
		errs = append(errs, fmt.Errorf("camera.index must be >= 0, got %d", c.Camera.Index))
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 {
		errs = append(errs, fmt.Errorf("camera size must be >= 0, got %dx%d", c.Camera.Width, c.Camera.Height))
	}
	if c.Detector.MaxHands < 1 {
		errs = append(errs, fmt.Errorf("detector.max_hands must be >= 1, got %d", c.Detector.MaxHands))
	}
	if !unit(c.Detector.MinDetectionConfidence) {
		errs = append(errs, fmt.Errorf("detector.min_detection_confidence must be in [0,1], got %g", c.Detector.MinDetectionConfidence))
	}
	if !unit(c.Detector.MinTrackingConfidence) {
		errs = append(errs, fmt.Errorf("detector.min_tracking_confidence must be in [0,1], got %g", c.Detector.MinTrackingConfidence))
	}
	if c.Detector.ModelComplexity < 0 || c.Detector.ModelComplexity > 2 {
		errs = append(errs, fmt.Errorf("detector.model_complexity must be 0, 1 or 2, got %d", c.Detector.ModelComplexity))
	}
	if c.Dataset.Dir == "" {
		errs = append(errs, errors.New("dataset.dir is required"))
	}
	if len(c.Dataset.Extensions) == 0 {
		errs = append(errs, errors.New("dataset.extensions must not be empty"))
	}
	if c.Dataset.MaxImageSide < 0 {
		errs = append(errs, fmt.Errorf("dataset.max_image_side must be >= 0, got %d", c.Dataset.MaxImageSide))
	}
	if c.Classifier.K < 1 {
		errs = append(errs, fmt.Errorf("classifier.k must be >= 1, got %d", c.Classifier.K))
	}
	if c.Classifier.UnknownThreshold < 0 {
		errs = append(errs, fmt.Errorf("classifier.unknown_threshold must be >= 0, got %g", c.Classifier.UnknownThreshold))
	}
	if c.Classifier.SmoothWindow < 1 {
		errs = append(errs, fmt.Errorf("classifier.smooth_window must be >= 1, got %d", c.Classifier.SmoothWindow))
	}
	if c.Classifier.MaxHands < 1 {
		errs = append(errs, fmt.Errorf("classifier.max_hands must be >= 1, got %d", c.Classifier.MaxHands))
	}
	if c.Overlay.FPSWindow < 1 {
		errs = append(errs, fmt.Errorf("overlay.fps_window must be >= 1, got %d", c.Overlay.FPSWindow))
	}
	if c.Server.StreamFPS < 1 {
		errs = append(errs, fmt.Errorf("server.stream_fps must be >= 1, got %d", c.Server.StreamFPS))
	}
	if c.Plugins.TimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("plugins.timeout_ms must be >= 0, got %d", c.Plugins.TimeoutMS))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func expandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
