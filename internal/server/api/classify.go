package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/webp"

	"github.com/senas-lab/senas/internal/detector"
	"github.com/senas-lab/senas/internal/knn"
)

// MaxImageBytes bounds uploaded image bodies.
const MaxImageBytes = 10 << 20

// ClassifyHandler serves POST /api/classify and POST /api/classify/image.
type ClassifyHandler struct {
	model    Model
	detector detector.Detector
}

// NewClassifyHandler creates a ClassifyHandler. det may be nil, in which
// case image classification answers 503.
func NewClassifyHandler(m Model, det detector.Detector) *ClassifyHandler {
	return &ClassifyHandler{model: m, detector: det}
}

// classifyRequest carries either a normalized feature vector or the 21 raw
// landmarks of a hand.
type classifyRequest struct {
	Features []float64          `json:"features"`
	Points   []detector.Point3D `json:"points"`
}

type classifyResponse struct {
	knn.Prediction
	Hand *detector.HandLandmarks `json:"hand,omitempty"`
}

// ServeHTTP routes between vector and image classification.
func (h *ClassifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case "/api/classify":
		h.classifyVector(w, r)
	case "/api/classify/image":
		h.classifyImage(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *ClassifyHandler) classifyVector(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	features := req.Features
	switch {
	case len(req.Points) > 0 && len(req.Features) > 0:
		writeError(w, http.StatusBadRequest, "Send either features or points")
		return
	case len(req.Points) > 0:
		if len(req.Points) != detector.NumLandmarks {
			writeError(w, http.StatusBadRequest, "Exactly 21 points are required")
			return
		}
		var hand detector.HandLandmarks
		copy(hand.Points[:], req.Points)
		features = hand.Features()
	}

	pred, err := h.model.Classifier().Predict(features)
	if err != nil {
		if errors.Is(err, knn.ErrDimension) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to classify")
		return
	}

	writeJSON(w, http.StatusOK, classifyResponse{Prediction: pred})
}

func (h *ClassifyHandler) classifyImage(w http.ResponseWriter, r *http.Request) {
	if h.detector == nil {
		writeError(w, http.StatusServiceUnavailable, "No hand detector available")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, MaxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	if len(data) > MaxImageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "Image too large")
		return
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported or corrupt image")
		return
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported image layout")
		return
	}
	defer mat.Close()

	hands, err := h.detector.Detect(&mat)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Hand detection failed")
		return
	}
	if len(hands) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no hand")
		return
	}

	hand := hands[0]
	pred, err := h.model.Classifier().PredictHand(&hand)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to classify")
		return
	}

	writeJSON(w, http.StatusOK, classifyResponse{Prediction: pred, Hand: &hand})
}
