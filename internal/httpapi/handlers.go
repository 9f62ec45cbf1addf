package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/roach88/narrator/internal/domain"
	"github.com/roach88/narrator/internal/pipeline"
)

// Process modes for the enqueue endpoint.
const (
	processInline = "inline"
	processAsync  = "async"
)

type enqueueRequest struct {
	Type    string          `json:"type" binding:"required"`
	Key     string          `json:"key" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

type enqueueResponse struct {
	pipeline.EnqueueResult
	Processed *pipeline.Stats `json:"processed,omitempty"`
	Scheduled bool            `json:"scheduled,omitempty"`
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.svc.Healthy(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) enqueue(c *gin.Context) {
	mode := c.Query("process")
	if mode != "" && mode != processInline && mode != processAsync {
		c.JSON(http.StatusBadRequest, gin.H{"error": "process must be inline or async"})
		return
	}

	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input: type and key are required"})
		return
	}

	ctx := c.Request.Context()
	lobbyID := c.Param("lobbyId")
	res, err := s.svc.Enqueue(ctx, lobbyID, domain.EventType(req.Type), req.Key, req.Payload)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := enqueueResponse{EnqueueResult: res}
	opts := pipeline.Options{LobbyID: lobbyID}
	switch mode {
	case processInline:
		// Commentary is best effort: the event is already durable, so a
		// processing failure does not fail the request.
		stats, err := s.svc.ProcessQueue(ctx, opts)
		if err != nil {
			s.logger.Warn("inline process failed", zap.String("lobby_id", lobbyID), zap.Error(err))
		} else {
			resp.Processed = &stats
		}
	case processAsync:
		s.svc.ProcessQueueAsync(ctx, opts)
		resp.Scheduled = true
	}

	status := http.StatusAccepted
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (s *Server) process(c *gin.Context) {
	// An empty body, sized or chunked, means default options.
	var opts pipeline.Options
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}
	stats, err := s.svc.ProcessQueue(c.Request.Context(), opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) listEvents(c *gin.Context) {
	f := domain.ListFilter{
		LobbyID: c.Query("lobbyId"),
		Status:  domain.Status(strings.ToLower(c.Query("status"))),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		f.Limit = n
	}

	events, err := s.svc.ListEvents(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) inspect(c *gin.Context) {
	got, err := s.svc.Inspect(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, got)
}

func (s *Server) requeue(c *gin.Context) {
	id := c.Param("id")
	if err := s.svc.Requeue(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requeued": true, "eventId": id})
}

// fail maps pipeline errors to status codes.
func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case pipeline.IsQueueUnavailable(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"degraded": true, "error": "queue_unavailable"})
	case errors.Is(err, domain.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
