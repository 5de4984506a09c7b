// Package api exposes the terminal-dashboard HTTP surface: /healthz,
// /tasks, /metrics, /live-metrics, and an SSE tail of
// grind-events.jsonl, all served off a gin.Engine-plus-Server shape
// wrapping the task board, the Prometheus collector, and the events
// Hub.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/undercity/undercity/pkg/events"
	"github.com/undercity/undercity/pkg/metrics"
	"github.com/undercity/undercity/pkg/taskboard"
)

// Server represents the HTTP server backing the dashboard.
type Server struct {
	board           *taskboard.Board
	collector       *metrics.Collector
	hub             *events.Hub
	eventsPath      string
	liveMetricsPath string
}

// NewServer creates a new API server. eventsPath is grind-events.jsonl;
// liveMetricsPath is live-metrics.json.
func NewServer(board *taskboard.Board, collector *metrics.Collector, hub *events.Hub, eventsPath, liveMetricsPath string) *Server {
	return &Server{board: board, collector: collector, hub: hub, eventsPath: eventsPath, liveMetricsPath: liveMetricsPath}
}

// Router builds the gin.Engine with every route wired.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.Health)
	r.GET("/tasks", s.ListTasks)
	r.GET("/tasks/:id", s.GetTask)
	r.GET("/live-metrics", s.LiveMetrics)
	r.GET("/events", s.StreamEvents)

	if s.collector != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.collector.Registry, promhttp.HandlerOpts{})))
	}

	return r
}

// Health handles GET /healthz.
func (s *Server) Health(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if s.hub != nil {
		status["subscribers"] = s.hub.SubscriberCount()
	}
	c.JSON(http.StatusOK, status)
}

// ListTasks handles GET /tasks.
func (s *Server) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, s.board.List())
}

// GetTask handles GET /tasks/:id.
func (s *Server) GetTask(c *gin.Context) {
	id := c.Param("id")
	entry, ok := s.board.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// LiveMetrics handles GET /live-metrics, serving the last-written
// live-metrics.json snapshot rather than scraping the collector live:
// a terminal dashboard polling a plain file doesn't need to speak the
// Prometheus exposition format.
func (s *Server) LiveMetrics(c *gin.Context) {
	c.File(s.liveMetricsPath)
}

// StreamEvents handles GET /events, an SSE tail of grind-events.jsonl:
// replay recent history (bounded by events.Tail's catchup limit) then
// switch to live broadcasts.
func (s *Server) StreamEvents(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	history, err := events.Tail(s.eventsPath)
	if err == nil {
		for _, ev := range history {
			writeSSEEvent(c, ev)
		}
		c.Writer.Flush()
	}

	if s.hub == nil {
		return
	}
	sub, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	ctx := c.Request.Context()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			writeSSEEvent(c, ev)
			c.Writer.Flush()
		case <-ticker.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}
