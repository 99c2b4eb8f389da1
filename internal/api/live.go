package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"racepulse/pkg/leaderboard"
	"racepulse/pkg/model"
)

// DefaultPushInterval is how often a live subscriber receives a fresh board.
const DefaultPushInterval = 2 * time.Second

// LiveHandler streams leaderboard snapshots over a WebSocket.
type LiveHandler struct {
	board    *leaderboard.Engine
	interval time.Duration
	upgrader websocket.Upgrader
}

// NewLiveHandler creates the handler; interval <= 0 selects the default.
func NewLiveHandler(board *leaderboard.Engine, interval time.Duration) *LiveHandler {
	if interval <= 0 {
		interval = DefaultPushInterval
	}
	return &LiveHandler{
		board:    board,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Spectator dashboards live on other origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type liveFrame struct {
	EventID       int64                    `json:"eventId"`
	EventDetailID int64                    `json:"eventDetailId"`
	SentAt        int64                    `json:"sentAt"`
	Entries       []model.LeaderboardEntry `json:"entries"`
}

// HandleLive upgrades the connection and pushes the top of the board until
// the client goes away.
func (h *LiveHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}
	detailID, ok := pathID(w, r, "detailID")
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Reader goroutine notices the peer closing
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		entries, err := h.board.TopN(r.Context(), eventID, detailID, DefaultTopN)
		if err != nil {
			slog.Warn("live board fetch failed", "event", eventID, "detail", detailID, "error", err)
		} else {
			if entries == nil {
				entries = []model.LeaderboardEntry{}
			}
			frame := liveFrame{
				EventID:       eventID,
				EventDetailID: detailID,
				SentAt:        time.Now().Unix(),
				Entries:       entries,
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}

		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
