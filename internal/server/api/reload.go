package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/senas-lab/senas/internal/dataset"
)

// ReloadFunc rebuilds the dataset and swaps it into the running model.
type ReloadFunc func(ctx context.Context) (*dataset.Report, error)

// ReloadHandler serves POST /api/dataset/reload.
type ReloadHandler struct {
	reload ReloadFunc
	mu     sync.Mutex
}

// NewReloadHandler creates a ReloadHandler.
func NewReloadHandler(fn ReloadFunc) *ReloadHandler {
	return &ReloadHandler{reload: fn}
}

// ServeHTTP runs one reload at a time and returns its report. A reload
// already in progress answers 409.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.mu.TryLock() {
		writeError(w, http.StatusConflict, "Reload already in progress")
		return
	}
	defer h.mu.Unlock()

	report, err := h.reload(r.Context())
	if err != nil {
		if errors.Is(err, dataset.ErrNoClasses) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to reload dataset")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
