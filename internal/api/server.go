// Package api exposes the tracking core over HTTP: correction calls, route
// management, leaderboards and operational endpoints.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"racepulse/pkg/logging"
	"racepulse/pkg/version"
)

// NewServer creates and configures the HTTP server.
// It accepts handlers for all API endpoints and a shutdownFunc for graceful shutdown.
func NewServer(addr string, corr *CorrectionHandler, routes *RouteHandler, board *LeaderboardHandler, live *LiveHandler, stats *StatsHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 2. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 3. Correction Endpoint
	mux.HandleFunc("POST /api/corrections", corr.HandleCorrect)

	// 4. Route Endpoints
	mux.HandleFunc("POST /api/events/{eventID}/details/{detailID}/route", routes.HandleUpload)
	mux.HandleFunc("GET /api/events/{eventID}/details/{detailID}/route", routes.HandleGet)
	mux.HandleFunc("DELETE /api/events/{eventID}/details/{detailID}/route", routes.HandleDelete)
	mux.HandleFunc("GET /api/events/{eventID}/route", routes.HandleGetByEvent)

	// 5. Leaderboard Endpoints
	mux.HandleFunc("GET /api/events/{eventID}/details/{detailID}/leaderboard", board.HandleTopN)
	mux.HandleFunc("GET /api/events/{eventID}/details/{detailID}/leaderboard/{userID}", board.HandleRank)
	mux.HandleFunc("GET /api/events/{eventID}/details/{detailID}/participants/{userID}/location", board.HandleLocation)

	// 6. Live Leaderboard (WebSocket)
	if live != nil {
		mux.HandleFunc("GET /api/events/{eventID}/details/{detailID}/live", live.HandleLive)
	}

	// 7. Stats Endpoints
	mux.Handle("GET /api/stats", stats)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	// 8. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Call shutdown in a goroutine to allow response to flush
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      logRequests(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// logRequests writes one line per request to the request log.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if logging.RequestLogger != nil {
			logging.RequestLogger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"duration_ms", time.Since(start).Milliseconds())
		}
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
