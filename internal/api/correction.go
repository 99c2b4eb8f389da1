package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"racepulse/pkg/model"
	"racepulse/pkg/pipeline"
)

// CorrectionHandler serves the correction endpoint.
type CorrectionHandler struct {
	pipeline *pipeline.Pipeline
}

func NewCorrectionHandler(p *pipeline.Pipeline) *CorrectionHandler {
	return &CorrectionHandler{pipeline: p}
}

// HandleCorrect runs one correction call. Validation failures are the
// caller's problem; everything downstream degrades rather than fails.
func (h *CorrectionHandler) HandleCorrect(w http.ResponseWriter, r *http.Request) {
	var req model.CorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", model.ErrInvalidInput, err))
		return
	}
	if req.UserID <= 0 || req.EventID <= 0 || req.EventDetailID <= 0 {
		writeError(w, fmt.Errorf("%w: userId, eventId and eventDetailId are required", model.ErrInvalidInput))
		return
	}

	resp, err := h.pipeline.Correct(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
