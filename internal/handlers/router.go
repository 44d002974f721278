package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rage/secret-project-331-sub001/internal/metrics"
	"github.com/rage/secret-project-331-sub001/internal/services"
)

// HealthChecker is implemented by the service manager.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HandlerManager struct {
	exerciseHandler *ExerciseHandler
	gradingHandler  *GradingHandler
	courseHandler   *CourseHandler
	health          HealthChecker
	logger          *slog.Logger
}

func NewHandlerManager(serviceManager services.ServiceManager, logger *slog.Logger) *HandlerManager {
	return &HandlerManager{
		exerciseHandler: NewExerciseHandler(serviceManager.Submission(), serviceManager.PeerReview(), logger),
		gradingHandler:  NewGradingHandler(serviceManager.Regrading(), serviceManager.TeacherGrading(), logger),
		courseHandler:   NewCourseHandler(serviceManager.PeerReview(), serviceManager.Export(), serviceManager.Progression(), logger),
		health:          serviceManager,
		logger:          logger,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		exercises := v1.Group("/exercises/:exercise_id")
		{
			exercises.POST("/submissions", hm.exerciseHandler.SubmitSlide)
			exercises.POST("/peer-reviews", hm.exerciseHandler.SubmitPeerReview)
			exercises.GET("/user-exercise-states/:state_id/peer-review", hm.exerciseHandler.GetPeerReviewData)
		}

		states := v1.Group("/user-exercise-states/:id")
		{
			states.POST("/start-review", hm.exerciseHandler.StartReview)
			states.GET("/self-review", hm.exerciseHandler.GetSelfReviewAnswer)
		}

		regradings := v1.Group("/regradings")
		{
			regradings.POST("", hm.gradingHandler.CreateRegrading)
			regradings.GET("/:id", hm.gradingHandler.GetRegradingInfo)
		}

		v1.POST("/teacher-grading-decisions", hm.gradingHandler.CreateTeacherGradingDecision)
		v1.POST("/exercise-services/refresh", hm.gradingHandler.RefreshExerciseServices)

		v1.POST("/courses/:course_id/peer-review-queue/refresh", hm.courseHandler.RefreshPeerReviewQueue)
		v1.POST("/courses/:course_id/users/:user_id/unlock-first-chapters", hm.courseHandler.UnlockFirstChapters)
		v1.POST("/chapters/:chapter_id/complete", hm.courseHandler.CompleteChapter)
		v1.GET("/course-instances/:course_instance_id/points.xlsx", hm.courseHandler.ExportPoints)
	}

	router.GET("/metrics", metrics.PrometheusHandler())
	router.GET("/health", hm.healthCheck)
}

func (hm *HandlerManager) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := hm.health.HealthCheck(ctx); err != nil {
		hm.logger.Warn("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "grading-engine",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "grading-engine",
	})
}
