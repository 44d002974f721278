package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rage/secret-project-331-sub001/internal/services"
)

type GradingHandler struct {
	BaseHandler
	regradingService      services.RegradingService
	teacherGradingService services.TeacherGradingService
}

func NewGradingHandler(regradingService services.RegradingService, teacherGradingService services.TeacherGradingService, logger *slog.Logger) *GradingHandler {
	return &GradingHandler{
		BaseHandler:           NewBaseHandler(logger),
		regradingService:      regradingService,
		teacherGradingService: teacherGradingService,
	}
}

// CreateRegrading queues task submissions for regrading. The worker picks it up on its next tick.
// @Router /regradings [post]
func (h *GradingHandler) CreateRegrading(c *gin.Context) {
	h.LogRequest(c, "Creating regrading")

	var req services.CreateRegradingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	regrading, err := h.regradingService.CreateRegrading(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respondSuccess(c, http.StatusCreated, "Regrading created", regrading)
}

// GetRegradingInfo returns a regrading with the progress of each regraded submission.
// @Router /regradings/{id} [get]
func (h *GradingHandler) GetRegradingInfo(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	info, err := h.regradingService.GetRegradingInfo(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// CreateTeacherGradingDecision overrides the score of one user exercise state.
// @Router /teacher-grading-decisions [post]
func (h *GradingHandler) CreateTeacherGradingDecision(c *gin.Context) {
	h.LogRequest(c, "Creating teacher grading decision")

	var req services.TeacherGradingDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	state, err := h.teacherGradingService.CreateDecision(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respondSuccess(c, http.StatusCreated, "Teacher grading decision created", state)
}

// RefreshExerciseServices drops cached grader descriptors after a grader is redeployed.
// @Router /exercise-services/refresh [post]
func (h *GradingHandler) RefreshExerciseServices(c *gin.Context) {
	h.LogRequest(c, "Refreshing exercise service registry")

	registered, err := h.regradingService.RefreshExerciseServices(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respondSuccess(c, http.StatusOK, "Exercise service registry refreshed", registered)
}
