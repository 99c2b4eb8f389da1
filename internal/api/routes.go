package api

import (
	"fmt"
	"io"
	"net/http"

	"racepulse/pkg/gpx"
	"racepulse/pkg/model"
	"racepulse/pkg/route"
)

// RouteHandler manages course uploads and lookups.
type RouteHandler struct {
	routes *route.Store
}

func NewRouteHandler(s *route.Store) *RouteHandler {
	return &RouteHandler{routes: s}
}

// HandleUpload accepts raw GPX bytes in the request body and publishes the
// prepared course.
func (h *RouteHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	detailID, ok := pathID(w, r, "detailID")
	if !ok {
		return
	}

	// One byte over the limit is enough to reject
	body, err := io.ReadAll(io.LimitReader(r.Body, gpx.MaxFileSize+1))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", model.ErrInvalidInput, err))
		return
	}

	summary, err := h.routes.Load(r.Context(), eventID, detailID, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// HandleGet returns the course summary.
func (h *RouteHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	detailID, ok := pathID(w, r, "detailID")
	if !ok {
		return
	}

	courseRoute, err := h.routes.Get(r.Context(), eventID, detailID)
	if err != nil {
		writeError(w, err)
		return
	}
	if courseRoute == nil {
		writeError(w, fmt.Errorf("%w: no route for event %d detail %d", model.ErrNotFound, eventID, detailID))
		return
	}

	if r.URL.Query().Get("full") == "true" {
		writeJSON(w, http.StatusOK, courseRoute)
		return
	}
	writeJSON(w, http.StatusOK, courseRoute.Summary())
}

// HandleGetByEvent resolves the course through the event index.
func (h *RouteHandler) HandleGetByEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}

	courseRoute, err := h.routes.GetByEventID(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	if courseRoute == nil {
		writeError(w, fmt.Errorf("%w: no route for event %d", model.ErrNotFound, eventID))
		return
	}
	writeJSON(w, http.StatusOK, courseRoute.Summary())
}

// HandleDelete removes the course everywhere.
func (h *RouteHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	detailID, ok := pathID(w, r, "detailID")
	if !ok {
		return
	}

	if err := h.routes.Delete(r.Context(), eventID, detailID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
