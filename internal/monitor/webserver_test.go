package monitor

import (
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/eventcam/internal/stats"
)

// activeAggregator builds an aggregator with one completed one-second
// window so rates and history are populated.
func activeAggregator() *stats.Aggregator {
	now := time.Unix(1000, 0)
	agg := stats.NewWithClock(func() time.Time { return now })
	agg.Update(500)
	now = now.Add(time.Second)
	agg.Update(500)
	return agg
}

func get(t *testing.T, ws *WebServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	ws := NewWebServer(WebServerConfig{})
	rec := get(t, ws, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestHandleStats(t *testing.T) {
	t.Parallel()

	fb := &FrameBuffer{}
	fb.Publish(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	ws := NewWebServer(WebServerConfig{
		Stats:     activeAggregator(),
		Frames:    fb,
		SessionID: "abc-123",
	})

	rec := get(t, ws, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		SessionID       string    `json:"session_id"`
		TotalFrames     int64     `json:"total_frames"`
		TotalEvents     int64     `json:"total_events"`
		EventsPerSecond float64   `json:"events_per_sec"`
		History         []float64 `json:"history"`
		FramesRendered  uint64    `json:"frames_rendered"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc-123", resp.SessionID)
	assert.Equal(t, int64(2), resp.TotalFrames)
	assert.Equal(t, int64(1000), resp.TotalEvents)
	assert.InDelta(t, 1000.0, resp.EventsPerSecond, 0.1)
	assert.Len(t, resp.History, 1)
	assert.Equal(t, uint64(1), resp.FramesRendered)
}

func TestHandleStatsMethodNotAllowed(t *testing.T) {
	t.Parallel()

	ws := NewWebServer(WebServerConfig{Stats: stats.New()})
	req := httptest.NewRequest(http.MethodPost, "/api/stats", nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleFramePNG(t *testing.T) {
	t.Parallel()

	fb := &FrameBuffer{}
	ws := NewWebServer(WebServerConfig{Frames: fb})

	rec := get(t, ws, "/frame.png")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	fb.Publish(image.NewRGBA(image.Rect(0, 0, 16, 9)))
	rec = get(t, ws, "/frame.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 9, img.Bounds().Dy())
}

func TestHandleRateChart(t *testing.T) {
	t.Parallel()

	ws := NewWebServer(WebServerConfig{Stats: activeAggregator()})
	rec := get(t, ws, "/chart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, rec.Body.String(), "events/sec")
}

func TestHandleRateChartEmptyHistory(t *testing.T) {
	t.Parallel()

	ws := NewWebServer(WebServerConfig{Stats: stats.New()})
	rec := get(t, ws, "/chart")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRatePlot(t *testing.T) {
	t.Parallel()

	ws := NewWebServer(WebServerConfig{Stats: activeAggregator()})
	rec := get(t, ws, "/chart/rates.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(rec.Body)
	assert.NoError(t, err)
}

func TestHandleReset(t *testing.T) {
	t.Parallel()

	var calls int
	ws := NewWebServer(WebServerConfig{OnReset: func() { calls++ }})

	req := httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)

	// GET is rejected.
	rec = get(t, ws, "/api/reset")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleSessionsWithoutDB(t *testing.T) {
	t.Parallel()

	ws := NewWebServer(WebServerConfig{})
	rec := get(t, ws, "/api/sessions")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFrameBufferPublish(t *testing.T) {
	t.Parallel()

	fb := &FrameBuffer{}
	_, ok := fb.Latest()
	assert.False(t, ok)

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	fb.Publish(img)
	got, ok := fb.Latest()
	assert.True(t, ok)
	assert.Same(t, img, got)
	assert.Equal(t, uint64(1), fb.Published())
}
