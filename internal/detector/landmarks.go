// Package detector provides hand detection interfaces and landmark types for sign recognition.
package detector

import "math"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// FeatureDim is the length of a flattened landmark vector (21 points x 3 coordinates).
const FeatureDim = NumLandmarks * 3

// scaleEpsilon keeps the scale divisor positive when every point sits on the wrist.
const scaleEpsilon = 1e-6

// Connection is an edge of the hand skeleton between two landmark indices.
type Connection struct {
	From, To int
}

// Connections lists the hand skeleton edges drawn between landmarks.
var Connections = []Connection{
	{Wrist, ThumbCMC}, {ThumbCMC, ThumbMCP}, {ThumbMCP, ThumbIP}, {ThumbIP, ThumbTip},
	{Wrist, IndexMCP}, {IndexMCP, IndexPIP}, {IndexPIP, IndexDIP}, {IndexDIP, IndexTip},
	{IndexMCP, MiddleMCP}, {MiddleMCP, MiddlePIP}, {MiddlePIP, MiddleDIP}, {MiddleDIP, MiddleTip},
	{MiddleMCP, RingMCP}, {RingMCP, RingPIP}, {RingPIP, RingDIP}, {RingDIP, RingTip},
	{RingMCP, PinkyMCP}, {Wrist, PinkyMCP}, {PinkyMCP, PinkyPIP}, {PinkyPIP, PinkyDIP}, {PinkyDIP, PinkyTip},
}

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
// X and Y are normalized to [0,1] by image width and height.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Normalize translates the landmarks so the wrist is the origin and divides
// every coordinate by the largest absolute X or Y value (plus a small epsilon).
// Z is divided by the same factor. Returns a new HandLandmarks instance.
func (h *HandLandmarks) Normalize() *HandLandmarks {
	if h == nil {
		return nil
	}

	normalized := &HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	wrist := h.Points[Wrist]

	var scale float64
	for i := 0; i < NumLandmarks; i++ {
		p := Point3D{
			X: h.Points[i].X - wrist.X,
			Y: h.Points[i].Y - wrist.Y,
			Z: h.Points[i].Z - wrist.Z,
		}
		normalized.Points[i] = p
		scale = math.Max(scale, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	}
	scale += scaleEpsilon

	for i := 0; i < NumLandmarks; i++ {
		normalized.Points[i].X /= scale
		normalized.Points[i].Y /= scale
		normalized.Points[i].Z /= scale
	}

	return normalized
}

// Flatten returns the points as x0,y0,z0,x1,y1,z1,... without normalizing.
func (h *HandLandmarks) Flatten() []float64 {
	out := make([]float64, 0, FeatureDim)
	for _, p := range h.Points {
		out = append(out, p.X, p.Y, p.Z)
	}
	return out
}

// Features returns the normalized, flattened feature vector used for classification.
func (h *HandLandmarks) Features() []float64 {
	if h == nil {
		return nil
	}
	return h.Normalize().Flatten()
}

// Mirror returns a copy with X reflected around 0.5 and handedness swapped,
// matching what the tracker reports for a horizontally flipped image.
func (h HandLandmarks) Mirror() HandLandmarks {
	m := h
	for i := range m.Points {
		m.Points[i].X = 1 - m.Points[i].X
	}
	switch h.Handedness {
	case "Left":
		m.Handedness = "Right"
	case "Right":
		m.Handedness = "Left"
	}
	return m
}
