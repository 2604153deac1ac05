package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/q4ZAr/boost-market/internal/application"
	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/pkg/logger"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	engine  *application.Engine
	journal Pinger
	logger  *logger.Logger
}

func NewHandler(engine *application.Engine, journal Pinger, logger *logger.Logger) *Handler {
	return &Handler{
		engine:  engine,
		journal: journal,
		logger:  logger,
	}
}

// fail writes err with the status matching its kind.
func (h *Handler) fail(c *gin.Context, err error) {
	var bad *badRequest
	switch {
	case errors.As(err, &bad):
		c.JSON(http.StatusBadRequest, gin.H{"error": bad.msg})
	case domain.IsRevert(err):
		c.JSON(http.StatusConflict, gin.H{"error": domain.ReasonOf(err)})
	case errors.Is(err, application.ErrJournalDisabled):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Event journal not available"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Request timed out"})
	default:
		h.logger.Errorw("Request failed",
			"path", c.FullPath(),
			"method", c.Request.Method,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// bind decodes the JSON body into req, reporting malformed input as 400.
func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) GetHealth(c *gin.Context) {
	stats := h.engine.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"offers": stats.Offers,
		"paused": stats.Paused,
	})
}

func (h *Handler) GetReadiness(c *gin.Context) {
	if h.journal != nil {
		if err := h.journal.Ping(c.Request.Context()); err != nil {
			h.logger.Errorw("Readiness check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats())
}

// GetEvents lists journaled events, oldest first. Supports name, after and
// limit query parameters.
func (h *Handler) GetEvents(c *gin.Context) {
	filter := domain.EventFilter{Name: c.Query("name"), Limit: 100}

	if raw := c.Query("after"); raw != "" {
		after, err := parseUint("after", raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		filter.AfterSeq = after
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Limit must be between 1 and 1000",
			})
			return
		}
		filter.Limit = limit
	}

	events, err := h.engine.Events(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	response := EventsResponse{Data: events}
	if response.Data == nil {
		response.Data = []domain.Event{}
	}
	c.JSON(http.StatusOK, response)
}
