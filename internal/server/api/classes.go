package api

import (
	"net/http"
)

// ClassesHandler serves GET /api/classes.
type ClassesHandler struct {
	model Model
}

// NewClassesHandler creates a ClassesHandler.
func NewClassesHandler(m Model) *ClassesHandler {
	return &ClassesHandler{model: m}
}

type classResponse struct {
	Label   string `json:"label"`
	Samples int    `json:"samples"`
}

type listClassesResponse struct {
	Classes []classResponse `json:"classes"`
	Total   int             `json:"total"`
	K       int             `json:"k"`
}

// ServeHTTP lists the loaded classes with their sample counts.
func (h *ClassesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c := h.model.Classifier()
	ds := c.Dataset()
	counts := ds.Counts()

	response := listClassesResponse{
		Classes: make([]classResponse, 0, len(counts)),
		Total:   ds.Len(),
		K:       c.K,
	}
	for _, label := range ds.Labels() {
		response.Classes = append(response.Classes, classResponse{Label: label, Samples: counts[label]})
	}

	writeJSON(w, http.StatusOK, response)
}
