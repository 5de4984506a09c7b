package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undercity/undercity/pkg/events"
	"github.com/undercity/undercity/pkg/metrics"
	"github.com/undercity/undercity/pkg/taskboard"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	board := taskboard.Load(filepath.Join(dir, "tasks.json"), nil)
	board.Enqueue("t1", "fix the bug")

	return NewServer(board, metrics.New(), events.NewHub(), filepath.Join(dir, "grind-events.jsonl"), filepath.Join(dir, "live-metrics.json"))
}

func TestHealthReportsOK(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListTasksReturnsBoardContents(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var entries []taskboard.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "t1", entries[0].ID)
}

func TestGetTaskReturns404ForUnknownID(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/missing", nil)
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTaskReturnsEntry(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/t1", nil)
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var entry taskboard.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, "fix the bug", entry.Objective)
}

func TestMetricsEndpointExposesPrometheusFormat(t *testing.T) {
	s := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
