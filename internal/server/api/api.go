// Package api provides the JSON HTTP handlers of the senas server.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/senas-lab/senas/internal/knn"
)

// Model exposes the classifier currently serving predictions.
type Model interface {
	Classifier() *knn.Classifier
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
