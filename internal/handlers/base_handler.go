package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ErrorResponse struct {
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Path      string      `json:"path"`
}

type SuccessResponse struct {
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// BaseHandler carries the request-scoped logging every handler shares.
type BaseHandler struct {
	logger *slog.Logger
}

func NewBaseHandler(logger *slog.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) requestLogger(c *gin.Context) *slog.Logger {
	if requestID, ok := c.Get("request_id"); ok {
		return h.logger.With("request_id", requestID)
	}
	return h.logger
}

func (h *BaseHandler) LogRequest(c *gin.Context, message string, args ...interface{}) {
	args = append(args, "method", c.Request.Method, "path", c.FullPath())
	h.requestLogger(c).InfoContext(c.Request.Context(), message, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, message string, args ...interface{}) {
	args = append(args, "error", err, "path", c.FullPath())
	h.requestLogger(c).ErrorContext(c.Request.Context(), message, args...)
}

func (h *BaseHandler) respondError(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		Path:      c.Request.URL.Path,
	})
}

func (h *BaseHandler) respondSuccess(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, SuccessResponse{
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// parseUUIDParam writes a 400 and returns false when the path parameter is not a uuid.
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid "+name, err.Error())
		return uuid.Nil, false
	}
	return id, true
}
