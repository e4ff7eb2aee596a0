// Package monitor exposes a small HTTP server over a running viewer
// session: JSON stats, the latest rendered frame as PNG, and event-rate
// charts (interactive ECharts HTML and a static PNG plot).
package monitor

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/eventcam/internal/monitoring"
	"github.com/banshee-data/eventcam/internal/stats"
	"github.com/banshee-data/eventcam/internal/statsdb"
)

// WebServerConfig contains configuration options for the monitor server.
type WebServerConfig struct {
	Address string
	Stats   *stats.Aggregator
	Frames  *FrameBuffer

	// DB enables the session listing endpoints when set.
	DB        *statsdb.DB
	SessionID string

	// OnReset is invoked by POST /api/reset. Optional.
	OnReset func()
}

// WebServer serves the monitor endpoints for one viewer process.
type WebServer struct {
	address   string
	stats     *stats.Aggregator
	frames    *FrameBuffer
	db        *statsdb.DB
	sessionID string
	onReset   func()
	server    *http.Server
}

// NewWebServer creates a monitor server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   config.Address,
		stats:     config.Stats,
		frames:    config.Frames,
		db:        config.DB,
		sessionID: config.SessionID,
		onReset:   config.OnReset,
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}
	return ws
}

// Start begins the HTTP server in a goroutine and shuts it down
// gracefully when ctx is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		monitoring.Logf("Starting monitor server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("Monitor server failed: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("Shutting down monitor server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("Monitor server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("Monitor server force close error: %v", err)
		}
	}
	return nil
}

// Handler returns the route mux, mainly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/api/sessions", ws.handleSessions)
	mux.HandleFunc("/api/reset", ws.handleReset)
	mux.HandleFunc("/frame.png", ws.handleFramePNG)
	mux.HandleFunc("/chart", ws.handleRateChart)
	mux.HandleFunc("/chart/rates.png", ws.handleRatePlot)

	return mux
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("Failed to encode JSON response: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	ws.writeJSON(w, status, map[string]string{"error": msg})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	SessionID           string    `json:"session_id,omitempty"`
	TotalFrames         int64     `json:"total_frames"`
	TotalEvents         int64     `json:"total_events"`
	EventsPerSecond     float64   `json:"events_per_sec"`
	FramesPerSecond     float64   `json:"frames_per_sec"`
	CurrentSecondEvents int64     `json:"current_second_events"`
	History             []float64 `json:"history"`
	StartTime           time.Time `json:"start_time"`
	FramesRendered      uint64    `json:"frames_rendered"`
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}
	if ws.stats == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "stats not configured")
		return
	}
	s := ws.stats.Snapshot()
	resp := statsResponse{
		SessionID:           ws.sessionID,
		TotalFrames:         s.TotalFrames,
		TotalEvents:         s.TotalEvents,
		EventsPerSecond:     s.EventsPerSecond,
		FramesPerSecond:     s.FramesPerSecond,
		CurrentSecondEvents: s.CurrentSecondEvents,
		History:             s.History,
		StartTime:           s.StartTime,
	}
	if ws.frames != nil {
		resp.FramesRendered = ws.frames.Published()
	}
	ws.writeJSON(w, http.StatusOK, resp)
}

func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "stats database not configured")
		return
	}
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	sessions, err := ws.db.RecentSessions(limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "failed to list sessions: "+err.Error())
		return
	}
	ws.writeJSON(w, http.StatusOK, sessions)
}

func (ws *WebServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}
	if ws.onReset == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "reset not configured")
		return
	}
	ws.onReset()
	ws.writeJSON(w, http.StatusOK, map[string]string{"status": "reset requested"})
}

func (ws *WebServer) handleFramePNG(w http.ResponseWriter, r *http.Request) {
	if ws.frames == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "frame buffer not configured")
		return
	}
	img, ok := ws.frames.Latest()
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, "no frame rendered yet")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		monitoring.Logf("Failed to encode frame PNG: %v", err)
	}
}
