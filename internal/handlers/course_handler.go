package handlers

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rage/secret-project-331-sub001/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type CourseHandler struct {
	BaseHandler
	peerReviewService  services.PeerReviewService
	exportService      services.ExportService
	progressionService services.ProgressionService
}

func NewCourseHandler(peerReviewService services.PeerReviewService, exportService services.ExportService, progressionService services.ProgressionService, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{
		BaseHandler:        NewBaseHandler(logger),
		peerReviewService:  peerReviewService,
		exportService:      exportService,
		progressionService: progressionService,
	}
}

type completeChapterRequest struct {
	UserID           uuid.UUID `json:"user_id"`
	CourseInstanceID uuid.UUID `json:"course_instance_id"`
}

// RefreshPeerReviewQueue re-checks every queue entry of the course that still needs reviews.
// @Router /courses/{course_id}/peer-review-queue/refresh [post]
func (h *CourseHandler) RefreshPeerReviewQueue(c *gin.Context) {
	courseID, ok := h.parseUUIDParam(c, "course_id")
	if !ok {
		return
	}

	h.LogRequest(c, "Refreshing peer review queue", "course_id", courseID)

	updated, err := h.peerReviewService.UpdatePeerReviewQueueReviewsReceived(c.Request.Context(), courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respondSuccess(c, http.StatusOK, "Peer review queue refreshed", gin.H{"updated_entries": updated})
}

// ExportPoints downloads the points of a course instance as a workbook.
// @Router /course-instances/{course_instance_id}/points.xlsx [get]
func (h *CourseHandler) ExportPoints(c *gin.Context) {
	instanceID, ok := h.parseUUIDParam(c, "course_instance_id")
	if !ok {
		return
	}

	h.LogRequest(c, "Exporting course instance points", "course_instance_id", instanceID)

	// Buffered so a failed export still gets a proper error response.
	var buf bytes.Buffer
	if err := h.exportService.ExportCourseInstancePoints(c.Request.Context(), instanceID, &buf); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="points-%s.xlsx"`, instanceID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// UnlockFirstChapters opens the first chapter of every module for a user starting the course.
// @Router /courses/{course_id}/users/{user_id}/unlock-first-chapters [post]
func (h *CourseHandler) UnlockFirstChapters(c *gin.Context) {
	courseID, ok := h.parseUUIDParam(c, "course_id")
	if !ok {
		return
	}
	userID, ok := h.parseUUIDParam(c, "user_id")
	if !ok {
		return
	}

	h.LogRequest(c, "Unlocking first chapters", "course_id", courseID, "user_id", userID)

	unlocked, err := h.progressionService.UnlockFirstChaptersForUser(c.Request.Context(), userID, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respondSuccess(c, http.StatusOK, "Chapters unlocked", gin.H{"unlocked_chapter_ids": unlocked})
}

// CompleteChapter marks a chapter done for a user and unlocks what follows it.
// @Router /chapters/{chapter_id}/complete [post]
func (h *CourseHandler) CompleteChapter(c *gin.Context) {
	chapterID, ok := h.parseUUIDParam(c, "chapter_id")
	if !ok {
		return
	}

	var req completeChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}
	if req.UserID == uuid.Nil || req.CourseInstanceID == uuid.Nil {
		h.respondError(c, http.StatusBadRequest, "Invalid request payload", "user_id and course_instance_id are required")
		return
	}

	h.LogRequest(c, "Completing chapter", "chapter_id", chapterID, "user_id", req.UserID)

	unlocked, err := h.progressionService.CompleteChapter(c.Request.Context(), req.UserID, chapterID, req.CourseInstanceID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respondSuccess(c, http.StatusOK, "Chapter completed", gin.H{"unlocked_chapter_ids": unlocked})
}
