// Command senas shows live hand landmarks and classifies hand signs with
// k-nearest-neighbour over a folder of example images.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/senas-lab/senas/internal/capture"
	"github.com/senas-lab/senas/internal/config"
	"github.com/senas-lab/senas/internal/dataset"
	"github.com/senas-lab/senas/internal/detector"
	"github.com/senas-lab/senas/internal/knn"
	"github.com/senas-lab/senas/internal/store"
)

const usage = `senas - hand landmark viewer and hand-sign classifier

Usage:
  senas view     [-config file] [-camera n]
  senas classify [-config file] [-camera n] [-data dir] [-k n]
  senas index    [-config file] [-data dir] [-json]
  senas serve    [-config file] [-data dir] [-k n] [-camera n] [-tray]

serve runs the live recognizer only when -camera is given.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "view":
		runView(args)
	case "classify":
		runClassify(args)
	case "index":
		runIndex(args)
	case "serve":
		runServe(args)
	case "help", "-h", "-help", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

// flags are the options shared by every command.
type flags struct {
	set        *flag.FlagSet
	configPath string
	dataDir    string
	camera     int
	k          int
}

func newFlags(name string) *flags {
	f := &flags{set: flag.NewFlagSet(name, flag.ExitOnError)}
	f.set.StringVar(&f.configPath, "config", "", "YAML configuration file")
	f.set.StringVar(&f.dataDir, "data", "", "dataset folder with one subfolder per class")
	f.set.IntVar(&f.camera, "camera", 0, "camera device index")
	f.set.IntVar(&f.k, "k", 0, "number of neighbours")
	return f
}

// passed reports whether the named flag was given on the command line.
func (f *flags) passed(name string) bool {
	found := false
	f.set.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

// load parses args and returns the configuration with flag overrides applied.
func (f *flags) load(args []string) *config.Config {
	f.set.Parse(args)

	cfg, err := config.Load(f.configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if f.passed("data") {
		cfg.Dataset.Dir = f.dataDir
	}
	if f.passed("camera") {
		cfg.Camera.Index = f.camera
	}
	if f.passed("k") {
		cfg.Classifier.K = f.k
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func newCamera(cfg *config.Config) capture.Camera {
	return capture.NewCamera(capture.Options{
		DeviceID: cfg.Camera.Index,
		Width:    cfg.Camera.Width,
		Height:   cfg.Camera.Height,
		FPS:      capture.DefaultFPS,
	})
}

// newDetector starts the MediaPipe tracker. Still images get static image
// mode, a single hand and a result cache.
func newDetector(cfg *config.Config, maxHands int, static bool) detector.Detector {
	det, err := detector.NewMediaPipeDetector(detectorConfig(cfg, maxHands, static))
	if err != nil {
		log.Fatalf("Failed to start hand detector: %v", err)
	}
	log.Printf("Using MediaPipe hand detection (static=%v, max hands=%d)", static, maxHands)

	if static {
		return detector.NewCachedDetector(det, detector.DefaultCacheTTL)
	}
	return det
}

func detectorConfig(cfg *config.Config, maxHands int, static bool) detector.Config {
	return detector.Config{
		MaxHands:         maxHands,
		MinDetectionConf: cfg.Detector.MinDetectionConfidence,
		MinTrackingConf:  cfg.Detector.MinTrackingConfidence,
		ModelComplexity:  cfg.Detector.ModelComplexity,
		StaticImageMode:  static,
	}
}

func openStore(cfg *config.Config) *store.Store {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	return st
}

// loadDataset extracts the dataset with the store as feature cache and
// records the indexed root.
func loadDataset(ctx context.Context, cfg *config.Config, det detector.Detector, st *store.Store, out io.Writer) (*knn.Dataset, *dataset.Report, error) {
	loader := dataset.NewLoader(det, st.Samples())
	loader.Extensions = cfg.Dataset.Extensions
	loader.AugmentMirror = cfg.Dataset.AugmentMirror
	loader.MaxImageSide = cfg.Dataset.MaxImageSide
	loader.DetectorConfig = detectorConfig(cfg, 1, true)
	loader.Settings = st.Settings()
	loader.Out = out

	ds, report, err := loader.Load(ctx, cfg.Dataset.Dir)
	if err != nil {
		return nil, report, err
	}

	settings := st.Settings()
	if err := settings.Set(store.SettingDatasetRoot, cfg.Dataset.Dir); err != nil {
		log.Printf("Failed to record dataset root: %v", err)
	}
	if err := settings.Set(store.SettingLastIndexed, time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Printf("Failed to record index time: %v", err)
	}
	return ds, report, nil
}

func fatalDataset(cfg *config.Config, err error) {
	if errors.Is(err, dataset.ErrNoClasses) {
		log.Fatalf("No valid classes in %s. Check the folder layout: one subfolder of images per class.", cfg.Dataset.Dir)
	}
	log.Fatalf("Failed to load dataset: %v", err)
}
