package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rage/secret-project-331-sub001/internal/services"
)

// handleServiceError maps service error kinds to HTTP responses.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	// Handle custom error types first
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		h.respondError(c, http.StatusBadRequest, "Validation failed", validationErrors)
		return
	}

	var ruleErr *services.BusinessRuleError
	if errors.As(err, &ruleErr) {
		h.respondError(c, statusForKind(ruleErr.Kind), ruleErr.Message, map[string]interface{}{
			"rule":    ruleErr.Rule,
			"context": ruleErr.Context,
		})
		return
	}

	status := statusForKind(err)
	if status == http.StatusInternalServerError {
		h.LogError(c, err, "Unexpected service error")
		h.respondError(c, status, "Internal server error", nil)
		return
	}
	h.respondError(c, status, http.StatusText(status), err.Error())
}

func statusForKind(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, services.ErrTryLimitExceeded), errors.Is(err, services.ErrTooMany):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrGraderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
