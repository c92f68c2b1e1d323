package dataset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"time"

	"github.com/anthonynsimon/bild/transform"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/webp"

	"github.com/senas-lab/senas/internal/detector"
	"github.com/senas-lab/senas/internal/knn"
	"github.com/senas-lab/senas/internal/store"
)

// MirrorSuffix marks the source of a sample extracted from a flipped image.
const MirrorSuffix = "#mirror"

// SkipReason explains why an image produced no sample.
type SkipReason string

const (
	SkipUnreadable SkipReason = "unreadable"
	SkipNoHand     SkipReason = "no_hand"
	SkipDetect     SkipReason = "detect_error"
)

// SampleCache persists extracted samples between runs.
// *store.SampleRepository implements it.
type SampleCache interface {
	GetBySource(source string) (*store.Sample, error)
	Upsert(s *store.Sample) error
	Prune(keep map[string]bool) (int, error)
}

// SettingStore keeps the extraction fingerprint of the cached samples.
// *store.SettingsRepository implements it.
type SettingStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// ClassReport summarizes one class folder.
type ClassReport struct {
	Label   string             `json:"label"`
	Images  int                `json:"images"`
	Samples int                `json:"samples"`
	Cached  int                `json:"cached"`
	Skipped map[SkipReason]int `json:"skipped,omitempty"`
}

// Report summarizes a dataset load.
type Report struct {
	Root string `json:"root"`
	// Classes lists the labels that produced at least one sample.
	Classes  []string      `json:"classes"`
	PerClass []ClassReport `json:"per_class"`
	Total    int           `json:"total"`
	Pruned   int           `json:"pruned"`
	Duration time.Duration `json:"duration"`
}

// Skipped returns the skip counts summed over all classes.
func (r *Report) Skipped() map[SkipReason]int {
	out := make(map[SkipReason]int)
	for _, c := range r.PerClass {
		for reason, n := range c.Skipped {
			out[reason] += n
		}
	}
	return out
}

// Loader turns a dataset directory into a knn.Dataset.
type Loader struct {
	// Detector should run in static image mode.
	Detector detector.Detector
	// Cache is optional. When set, vectors of unchanged images are reused
	// and samples of removed images are pruned.
	Cache SampleCache
	// Extensions accepted in class folders.
	Extensions []string
	// AugmentMirror adds a sample from the horizontally flipped image.
	AugmentMirror bool
	// MaxImageSide downsizes larger images before detection. Zero keeps
	// the original size.
	MaxImageSide int
	// DetectorConfig is the configuration Detector was started with.
	DetectorConfig detector.Config
	// Settings is optional. When set, cached vectors are only reused while
	// the fingerprint recorded with them matches Fingerprint().
	Settings SettingStore
	// Out receives progress lines. Nil discards them.
	Out io.Writer
}

// NewLoader creates a loader with the default extensions.
func NewLoader(det detector.Detector, cache SampleCache) *Loader {
	return &Loader{
		Detector:   det,
		Cache:      cache,
		Extensions: []string{"jpg", "jpeg", "png", "bmp", "webp"},
	}
}

// Load scans root and extracts one sample per image with a detected hand.
// Unreadable images and images without a hand are skipped and counted in
// the report. It returns ErrNoClasses when no class yields a sample.
func (l *Loader) Load(ctx context.Context, root string) (*knn.Dataset, *Report, error) {
	start := time.Now()
	out := l.Out
	if out == nil {
		out = io.Discard
	}

	classes, err := Scan(root, l.Extensions)
	if err != nil {
		return nil, nil, err
	}

	fmt.Fprintf(out, "Loading classes: %v\n", Labels(classes))

	fingerprint := l.Fingerprint()
	reuse := l.reusable(fingerprint)

	ds := knn.NewDataset()
	report := &Report{Root: root}
	seen := make(map[string]bool)

	for _, class := range classes {
		cr := ClassReport{
			Label:   class.Label,
			Images:  len(class.Images),
			Skipped: make(map[SkipReason]int),
		}

		for _, path := range class.Images {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}

			samples, cached, reason := l.extract(class.Label, path, reuse)
			if reason != "" {
				cr.Skipped[reason]++
			}
			for _, s := range samples {
				seen[s.Source] = true
				if err := ds.Add(s); err != nil {
					log.Printf("Skipping %s: %v", s.Source, err)
					continue
				}
				cr.Samples++
			}
			cr.Cached += cached
		}

		fmt.Fprintf(out, "  %s: %d samples\n", class.Label, cr.Samples)
		if cr.Samples > 0 {
			report.Classes = append(report.Classes, class.Label)
		}
		report.PerClass = append(report.PerClass, cr)
	}

	report.Total = ds.Len()
	if len(report.Classes) == 0 {
		return nil, report, fmt.Errorf("%w in %s", ErrNoClasses, root)
	}
	fmt.Fprintf(out, "Total samples: %d\n", report.Total)

	if l.Cache != nil {
		pruned, err := l.Cache.Prune(seen)
		if err != nil {
			log.Printf("Failed to prune sample cache: %v", err)
		}
		report.Pruned = pruned
	}
	if l.Settings != nil {
		if err := l.Settings.Set(store.SettingExtraction, fingerprint); err != nil {
			log.Printf("Failed to record extraction settings: %v", err)
		}
	}

	report.Duration = time.Since(start)
	return ds, report, nil
}

// Fingerprint describes the settings that shape an extracted vector.
func (l *Loader) Fingerprint() string {
	c := l.DetectorConfig
	return fmt.Sprintf("max_hands=%d detection=%g tracking=%g complexity=%d static=%t max_side=%d",
		c.MaxHands, c.MinDetectionConf, c.MinTrackingConf, c.ModelComplexity, c.StaticImageMode, l.MaxImageSide)
}

// reusable reports whether cached vectors were extracted with fingerprint.
func (l *Loader) reusable(fingerprint string) bool {
	if l.Cache == nil {
		return false
	}
	if l.Settings == nil {
		return true
	}

	stored, err := l.Settings.Get(store.SettingExtraction)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("Failed to read extraction settings: %v", err)
		}
		return false
	}
	if stored != fingerprint {
		log.Printf("Extraction settings changed, re-extracting all images")
		return false
	}
	return true
}

// extract returns the samples for one image and how many came from the
// cache. A non-empty reason means the image produced no sample.
func (l *Loader) extract(label, path string, reuse bool) ([]knn.Sample, int, SkipReason) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, SkipUnreadable
	}

	sources := []string{path}
	if l.AugmentMirror {
		sources = append(sources, path+MirrorSuffix)
	}

	var samples []knn.Sample
	var missing []string
	cached := 0
	for _, src := range sources {
		if reuse {
			if s, ok := l.lookup(src, info); ok {
				s.Label = label
				samples = append(samples, s)
				cached++
				continue
			}
		}
		missing = append(missing, src)
	}
	if len(missing) == 0 {
		return samples, cached, ""
	}

	img, err := l.decode(path)
	if err != nil {
		log.Printf("Skipping unreadable image %s: %v", path, err)
		return samples, cached, skipped(samples, SkipUnreadable)
	}

	var reason SkipReason
	var original *detector.HandLandmarks
	for _, src := range missing {
		mirrored := src != path
		frame := img
		if mirrored {
			frame = transform.FlipH(img)
		}

		hand, r := l.detect(frame)
		if r != "" && mirrored && original != nil {
			// The tracker missed the flipped image; reflect the original.
			m := original.Mirror()
			hand, r = &m, ""
		}
		if r != "" {
			if !mirrored {
				reason = r
			}
			continue
		}
		if !mirrored {
			original = hand
		}

		s := knn.Sample{
			ID:     uuid.NewString(),
			Label:  label,
			Vector: hand.Features(),
			Source: src,
		}
		l.save(s, info, mirrored, hand)
		samples = append(samples, s)
	}

	return samples, cached, skipped(samples, reason)
}

// skipped drops the reason of an image that still produced a sample.
func skipped(samples []knn.Sample, reason SkipReason) SkipReason {
	if len(samples) > 0 {
		return ""
	}
	return reason
}

func (l *Loader) save(s knn.Sample, info os.FileInfo, mirrored bool, hand *detector.HandLandmarks) {
	if l.Cache == nil {
		return
	}

	err := l.Cache.Upsert(&store.Sample{
		ID:         s.ID,
		Label:      s.Label,
		Source:     s.Source,
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		Mirrored:   mirrored,
		Handedness: hand.Handedness,
		Score:      hand.Score,
		Vector:     s.Vector,
	})
	if err != nil {
		log.Printf("Failed to cache sample %s: %v", s.Source, err)
	}
}

func (l *Loader) decode(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	if side := l.MaxImageSide; side > 0 {
		b := img.Bounds()
		if b.Dx() > side || b.Dy() > side {
			img = imaging.Fit(img, side, side, imaging.Lanczos)
		}
	}
	return img, nil
}

// detect runs the detector on img and returns the first hand.
func (l *Loader) detect(img image.Image) (*detector.HandLandmarks, SkipReason) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, SkipUnreadable
	}
	defer mat.Close()

	hands, err := l.Detector.Detect(&mat)
	if err != nil {
		log.Printf("Hand detection failed: %v", err)
		return nil, SkipDetect
	}
	if len(hands) == 0 {
		return nil, SkipNoHand
	}
	return &hands[0], ""
}
