package api

import (
	"net/http"
	"time"

	"github.com/senas-lab/senas/internal/store"
)

// SamplesHandler serves GET /api/samples from the sample cache.
type SamplesHandler struct {
	store *store.Store
}

// NewSamplesHandler creates a new SamplesHandler with the given store.
func NewSamplesHandler(s *store.Store) *SamplesHandler {
	return &SamplesHandler{store: s}
}

type sampleResponse struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Source     string    `json:"source"`
	Mirrored   bool      `json:"mirrored"`
	Handedness string    `json:"handedness,omitempty"`
	Score      float64   `json:"score"`
	Vector     []float64 `json:"vector,omitempty"`
	UpdatedAt  string    `json:"updated_at"`
}

type listSamplesResponse struct {
	Samples []sampleResponse `json:"samples"`
}

// ServeHTTP lists stored samples. ?label= filters by class and
// ?vector=true includes the feature vectors.
func (h *SamplesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		samples []*store.Sample
		err     error
	)
	if label := r.URL.Query().Get("label"); label != "" {
		samples, err = h.store.Samples().ListByLabel(label)
	} else {
		samples, err = h.store.Samples().List()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}

	withVector := r.URL.Query().Get("vector") == "true"

	response := listSamplesResponse{
		Samples: make([]sampleResponse, 0, len(samples)),
	}
	for _, s := range samples {
		sr := sampleResponse{
			ID:         s.ID,
			Label:      s.Label,
			Source:     s.Source,
			Mirrored:   s.Mirrored,
			Handedness: s.Handedness,
			Score:      s.Score,
			UpdatedAt:  s.UpdatedAt.Format(time.RFC3339),
		}
		if withVector {
			sr.Vector = s.Vector
		}
		response.Samples = append(response.Samples, sr)
	}

	writeJSON(w, http.StatusOK, response)
}
