package knn

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/senas-lab/senas/internal/detector"
)

// Unknown is the label reported when nothing can be predicted.
const Unknown = "Unknown"

// EmptyDistance is the mean distance reported for an empty dataset.
const EmptyDistance = 1e9

// DefaultK is the number of neighbours consulted by default.
const DefaultK = 5

// Neighbor is one of the k closest samples.
type Neighbor struct {
	Index    int     `json:"index"`
	ID       string  `json:"id,omitempty"`
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

// Prediction is the result of classifying one feature vector.
type Prediction struct {
	// Label is the reported class; Unknown when the dataset is empty or the
	// mean distance is above the rejection threshold.
	Label string `json:"label"`
	// Vote is the majority label before threshold rejection.
	Vote         string         `json:"vote"`
	MeanDistance float64        `json:"mean_distance"`
	Neighbors    []Neighbor     `json:"neighbors"`
	Votes        map[string]int `json:"votes"`
}

// Known reports whether the prediction names a class.
func (p Prediction) Known() bool {
	return p.Label != Unknown
}

// Classifier is a linear-scan k-nearest-neighbour classifier over a Dataset.
type Classifier struct {
	// K is the number of neighbours that vote.
	K int
	// UnknownThreshold rejects predictions whose mean neighbour distance is
	// larger. Zero disables rejection.
	UnknownThreshold float64

	data *Dataset
}

// NewClassifier creates a classifier with k neighbours and an optional
// rejection threshold. k below 1 falls back to DefaultK.
func NewClassifier(k int, unknownThreshold float64) *Classifier {
	if k < 1 {
		k = DefaultK
	}
	return &Classifier{
		K:                k,
		UnknownThreshold: unknownThreshold,
		data:             NewDataset(),
	}
}

// Fit stores the dataset. Training is lazy: nothing is precomputed.
func (c *Classifier) Fit(d *Dataset) {
	if d == nil {
		d = NewDataset()
	}
	c.data = d
}

// Dataset returns the fitted dataset.
func (c *Classifier) Dataset() *Dataset {
	return c.data
}

// PredictHand normalizes a detected hand and classifies it.
func (c *Classifier) PredictHand(h *detector.HandLandmarks) (Prediction, error) {
	if h == nil {
		return Prediction{}, fmt.Errorf("nil hand")
	}
	return c.Predict(h.Features())
}

// Predict classifies a feature vector.
//
// Every sample is scored by Euclidean distance. The k closest samples are
// taken in distance order, equal distances keeping dataset insertion order.
// The label with the most votes wins; a tie goes to the tied label that
// appears first among the neighbours.
func (c *Classifier) Predict(x []float64) (Prediction, error) {
	if len(x) != Dim {
		return Prediction{}, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(x), Dim)
	}

	samples := c.data.Samples()
	if len(samples) == 0 {
		return Prediction{
			Label:        Unknown,
			Vote:         Unknown,
			MeanDistance: EmptyDistance,
			Votes:        map[string]int{},
		}, nil
	}

	dists := make([]float64, len(samples))
	order := make([]int, len(samples))
	for i, s := range samples {
		dists[i] = floats.Distance(x, s.Vector, 2)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dists[order[a]] < dists[order[b]]
	})

	k := c.K
	if k > len(order) {
		k = len(order)
	}

	neighbors := make([]Neighbor, k)
	top := make([]float64, k)
	votes := make(map[string]int)
	var firstSeen []string
	for i := 0; i < k; i++ {
		idx := order[i]
		s := samples[idx]
		neighbors[i] = Neighbor{Index: idx, ID: s.ID, Label: s.Label, Distance: dists[idx]}
		top[i] = dists[idx]
		if votes[s.Label] == 0 {
			firstSeen = append(firstSeen, s.Label)
		}
		votes[s.Label]++
	}

	vote := firstSeen[0]
	for _, label := range firstSeen[1:] {
		if votes[label] > votes[vote] {
			vote = label
		}
	}

	p := Prediction{
		Label:        vote,
		Vote:         vote,
		MeanDistance: stat.Mean(top, nil),
		Neighbors:    neighbors,
		Votes:        votes,
	}
	if c.UnknownThreshold > 0 && p.MeanDistance > c.UnknownThreshold {
		p.Label = Unknown
	}
	return p, nil
}
