package api

import (
	"fmt"
	"net/http"
	"strconv"

	"racepulse/pkg/leaderboard"
	"racepulse/pkg/location"
	"racepulse/pkg/model"
)

// DefaultTopN caps a leaderboard page when the caller does not say.
const DefaultTopN = 50

// LeaderboardHandler serves rankings and participant state.
type LeaderboardHandler struct {
	board     *leaderboard.Engine
	locations *location.Store
}

func NewLeaderboardHandler(board *leaderboard.Engine, locations *location.Store) *LeaderboardHandler {
	return &LeaderboardHandler{board: board, locations: locations}
}

// HandleTopN returns the best entries, rank 1 first. ?n= caps the page.
func (h *LeaderboardHandler) HandleTopN(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	detailID, ok := pathID(w, r, "detailID")
	if !ok {
		return
	}

	n := DefaultTopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, fmt.Errorf("%w: invalid n", model.ErrInvalidInput))
			return
		}
		n = v
	}

	entries, err := h.board.TopN(r.Context(), eventID, detailID, n)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"eventId":       eventID,
		"eventDetailId": detailID,
		"entries":       entries,
	})
}

// HandleRank returns one participant's position.
func (h *LeaderboardHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	detailID, ok := pathID(w, r, "detailID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	rank, found, err := h.board.Rank(r.Context(), eventID, detailID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, fmt.Errorf("%w: user %d has no score", model.ErrNotFound, userID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "rank": rank})
}

// HandleLocation returns the participant's last-known state.
func (h *LeaderboardHandler) HandleLocation(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	detailID, ok := pathID(w, r, "detailID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	loc, err := h.locations.Location(r.Context(), eventID, detailID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if loc == nil {
		writeError(w, fmt.Errorf("%w: no location for user %d", model.ErrNotFound, userID))
		return
	}
	writeJSON(w, http.StatusOK, loc)
}
