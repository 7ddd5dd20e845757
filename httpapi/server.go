// Package httpapi exposes the extraction service over HTTP: synchronous and
// queued extraction, job status and result lookup, and an SSE stream of each
// job's event log.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prodsnap/prodsnap/eventlog"
	"github.com/prodsnap/prodsnap/eventstream"
	"github.com/prodsnap/prodsnap/jobqueue"
	"github.com/prodsnap/prodsnap/scraper"
)

// Server holds the handlers' dependencies.
type Server struct {
	task        *scraper.Task
	events      eventlog.Store
	queue       jobqueue.Queue
	results     jobqueue.ResultStore
	coordinator *eventstream.Coordinator
	logger      *zap.Logger
}

// NewServer creates a Server over the shared stores and the extraction task.
func NewServer(task *scraper.Task, events eventlog.Store, queue jobqueue.Queue, results jobqueue.ResultStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		task:        task,
		events:      events,
		queue:       queue,
		results:     results,
		coordinator: eventstream.NewCoordinator(events, queue, logger),
		logger:      logger,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(s.logger), gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.POST("/scrape", s.handleScrape)
	router.POST("/scrape/stream", s.handleScrapeStream)
	router.POST("/scrape/async", s.handleScrapeAsync)

	jobs := router.Group("/jobs")
	jobs.GET("/:id/stream", s.handleStream)
	jobs.GET("/:id/status", s.handleStatus)
	jobs.GET("/:id/result", s.handleResult)

	return router
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// ScrapeRequest is the body of POST /scrape and /scrape/async.
type ScrapeRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func validateURL(url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return errors.New("url must start with http:// or https://")
	}
	return nil
}

// handleScrape runs the extraction inline and returns the snapshot. Events
// still flow to the shared log under the returned job_id, so the run can be
// replayed from GET /jobs/:id/stream afterwards.
func (s *Server) handleScrape(c *gin.Context) {
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := validateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	jobID := fmt.Sprintf("sync-%d", time.Now().UnixNano())
	emitter := eventlog.NewEmitter(s.events, jobID, s.logger)
	defer emitter.Close()

	snap, err := s.task.Run(c.Request.Context(), jobID, req.URL, emitter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "job_id": jobID, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job_id": jobID, "data": snap})
}

// handleScrapeStream runs the extraction inline and streams its events over
// SSE as they happen, ending with the terminal complete or error event. The
// emitter's live subscriber channel feeds the response directly, so events
// arrive without a log poll in between.
func (s *Server) handleScrapeStream(c *gin.Context) {
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := validateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	jobID := fmt.Sprintf("sync-%d", time.Now().UnixNano())
	emitter := eventlog.NewEmitter(s.events, jobID, s.logger)
	// One event per model turn plus one per tool call; 64 is ample headroom.
	sub := emitter.Subscribe(64)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Job-ID", jobID)
	c.Writer.WriteHeader(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer emitter.Close()
		// A failure already reached the stream as the terminal error event.
		if _, err := s.task.Run(c.Request.Context(), jobID, req.URL, emitter); err != nil {
			s.logger.Warn("streamed scrape failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}()

	for ev := range sub {
		if _, err := fmt.Fprintf(c.Writer, "id: %d\ndata: %s\n\n", ev.Seq, ev.Body); err != nil {
			// Client gone; the task notices via the request context.
			break
		}
		if canFlush {
			flusher.Flush()
		}
	}
	<-done
}

// handleScrapeAsync enqueues the extraction and points the client at the
// stream.
func (s *Server) handleScrapeAsync(c *gin.Context) {
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := validateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	payload, err := json.Marshal(scraper.JobPayload{URL: req.URL})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	jobID, err := s.queue.Enqueue(c.Request.Context(), "", payload)
	if err != nil {
		s.logger.Error("enqueue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to enqueue job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":     jobID,
		"status":     string(jobqueue.StatusQueued),
		"stream_url": fmt.Sprintf("/jobs/%s/stream", jobID),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	jobID := c.Param("id")
	status, err := s.queue.Status(c.Request.Context(), jobID)
	if errors.Is(err, jobqueue.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		s.logger.Error("status lookup failed", zap.String("job_id", jobID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleResult(c *gin.Context) {
	jobID := c.Param("id")
	status, err := s.queue.Status(c.Request.Context(), jobID)
	if errors.Is(err, jobqueue.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job status"})
		return
	}

	switch status.Status {
	case jobqueue.StatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{
			"job_id":  jobID,
			"success": false,
			"error":   status.Error,
		})
	case jobqueue.StatusFinished:
		data, err := s.results.GetResult(c.Request.Context(), jobID)
		if errors.Is(err, jobqueue.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "result expired"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"job_id": jobID, "success": true, "data": json.RawMessage(data)})
	default:
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": string(status.Status)})
	}
}

// handleStream serves the job's event log as Server-Sent Events. The id field
// is the event's sequence index, so clients can tell where they are.
func (s *Server) handleStream(c *gin.Context) {
	jobID := c.Param("id")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)

	err := s.coordinator.Stream(c.Request.Context(), jobID, func(ev eventlog.Event) error {
		if _, err := fmt.Fprintf(c.Writer, "id: %d\ndata: %s\n\n", ev.Seq, ev.Body); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("stream ended with error", zap.String("job_id", jobID), zap.Error(err))
	}
}
