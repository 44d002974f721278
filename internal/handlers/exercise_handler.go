package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rage/secret-project-331-sub001/internal/services"
)

// ExerciseHandler serves the student side of an exercise: answering and reviewing.
type ExerciseHandler struct {
	BaseHandler
	submissionService services.SubmissionService
	peerReviewService services.PeerReviewService
}

func NewExerciseHandler(submissionService services.SubmissionService, peerReviewService services.PeerReviewService, logger *slog.Logger) *ExerciseHandler {
	return &ExerciseHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
		peerReviewService: peerReviewService,
	}
}

// SubmitSlide grades an answer to one slide and returns the updated exercise state.
// @Router /exercises/{exercise_id}/submissions [post]
func (h *ExerciseHandler) SubmitSlide(c *gin.Context) {
	exerciseID, ok := h.parseUUIDParam(c, "exercise_id")
	if !ok {
		return
	}

	var req services.SubmitSlideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	req.ExerciseID = exerciseID

	h.LogRequest(c, "Submitting slide", "exercise_id", exerciseID, "user_id", req.UserID)

	result, err := h.submissionService.SubmitSlide(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respondSuccess(c, http.StatusOK, "Slide submitted", result)
}

// StartReview moves a state from answering to peer or self review.
// @Router /user-exercise-states/{id}/start-review [post]
func (h *ExerciseHandler) StartReview(c *gin.Context) {
	stateID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	h.LogRequest(c, "Starting peer or self review", "user_exercise_state_id", stateID)

	state, err := h.peerReviewService.StartPeerOrSelfReview(c.Request.Context(), stateID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respondSuccess(c, http.StatusOK, "Review started", state)
}

// GetPeerReviewData selects an answer for the reviewer and returns it with the review form.
// @Router /exercises/{exercise_id}/user-exercise-states/{state_id}/peer-review [get]
func (h *ExerciseHandler) GetPeerReviewData(c *gin.Context) {
	exerciseID, ok := h.parseUUIDParam(c, "exercise_id")
	if !ok {
		return
	}
	stateID, ok := h.parseUUIDParam(c, "state_id")
	if !ok {
		return
	}

	data, err := h.peerReviewService.GetPeerReviewData(c.Request.Context(), exerciseID, stateID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, data)
}

// GetSelfReviewAnswer returns the reviewer's own latest answer.
// @Router /user-exercise-states/{id}/self-review [get]
func (h *ExerciseHandler) GetSelfReviewAnswer(c *gin.Context) {
	stateID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	answer, err := h.peerReviewService.GetSelfReviewAnswer(c.Request.Context(), stateID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// SubmitPeerReview stores a peer or self review and returns the reviewer's updated state.
// @Router /exercises/{exercise_id}/peer-reviews [post]
func (h *ExerciseHandler) SubmitPeerReview(c *gin.Context) {
	exerciseID, ok := h.parseUUIDParam(c, "exercise_id")
	if !ok {
		return
	}

	var req services.SubmitPeerReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	req.ExerciseID = exerciseID

	h.LogRequest(c, "Submitting peer review",
		"exercise_id", exerciseID,
		"exercise_slide_submission_id", req.ExerciseSlideSubmissionID)

	state, err := h.peerReviewService.SubmitPeerReview(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respondSuccess(c, http.StatusCreated, "Peer review submitted", state)
}
