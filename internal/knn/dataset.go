// Package knn implements the nearest-neighbour hand-sign classifier: the
// labeled landmark dataset, the k-NN vote and the temporal smoother.
package knn

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/senas-lab/senas/internal/detector"
)

// Dim is the length of every feature vector.
const Dim = detector.FeatureDim

// ErrDimension is returned when a vector does not have Dim components.
var ErrDimension = errors.New("feature vector has wrong dimension")

// Sample is a labeled landmark feature vector.
type Sample struct {
	ID     string    `json:"id,omitempty"`
	Label  string    `json:"label"`
	Vector []float64 `json:"vector"`
	Source string    `json:"source,omitempty"` // image path the sample came from
}

// Features returns the normalized feature vector for a detected hand.
func Features(h *detector.HandLandmarks) []float64 {
	return h.Features()
}

// Dataset is an in-memory collection of samples kept in insertion order.
type Dataset struct {
	mu      sync.RWMutex
	samples []Sample
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{}
}

// Add appends a sample. The vector is copied.
func (d *Dataset) Add(s Sample) error {
	if len(s.Vector) != Dim {
		return fmt.Errorf("sample %q: %w: got %d, want %d", s.Label, ErrDimension, len(s.Vector), Dim)
	}
	if s.Label == "" {
		return errors.New("sample label is empty")
	}

	s.Vector = append([]float64(nil), s.Vector...)

	d.mu.Lock()
	d.samples = append(d.samples, s)
	d.mu.Unlock()
	return nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.samples)
}

// Samples returns a copy of the samples in insertion order.
func (d *Dataset) Samples() []Sample {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Sample(nil), d.samples...)
}

// Counts returns the number of samples per label.
func (d *Dataset) Counts() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := make(map[string]int)
	for _, s := range d.samples {
		counts[s.Label]++
	}
	return counts
}

// Labels returns the distinct labels in sorted order.
func (d *Dataset) Labels() []string {
	counts := d.Counts()
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
