package services

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
	"github.com/rage/secret-project-331-sub001/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type SubmitSlideRequest = validator.SlideSubmissionRequest
type SubmitPeerReviewRequest = validator.PeerReviewSubmissionRequest
type CreateRegradingRequest = validator.RegradingCreateRequest
type TeacherGradingDecisionRequest = validator.TeacherGradingDecisionRequest

// PeerReviewData is everything a reviewer needs to fill in a peer review.
type PeerReviewData struct {
	AnswerToReview      *models.ExerciseSlideSubmission `json:"answer_to_review"`
	Tasks               []*models.ExerciseTask          `json:"tasks"`
	Config              *models.PeerReviewConfig        `json:"peer_review_config"`
	Questions           []*models.PeerReviewQuestion    `json:"peer_review_questions"`
	NumPeerReviewsGiven int64                           `json:"num_peer_reviews_given"`
}

type RegradingSubmissionInfo struct {
	ExerciseTaskSubmissionID uuid.UUID               `json:"exercise_task_submission_id"`
	GradingBeforeRegrading   uuid.UUID               `json:"grading_before_regrading"`
	GradingAfterRegrading    *uuid.UUID              `json:"grading_after_regrading"`
	GradingProgress          *models.GradingProgress `json:"grading_progress"`
}

type RegradingInfo struct {
	Regrading   *models.Regrading         `json:"regrading"`
	Submissions []RegradingSubmissionInfo `json:"submissions"`
}

// ===== COLLABORATORS =====

// GraderClient sends task submissions to external exercise services.
type GraderClient interface {
	Grade(ctx context.Context, descriptor *models.ExerciseServiceDescriptor, task *models.ExerciseTask, submission *models.ExerciseTaskSubmission) (*models.ExerciseTaskGradingResult, error)
}

// ===== SERVICE INTERFACES =====

type SubmissionService interface {
	SubmitSlide(ctx context.Context, req *SubmitSlideRequest) (*models.StudentExerciseSlideSubmissionResult, error)

	// PropagateGradingResult stores one task grading result and re-derives the owning state.
	// repo must be bound to a transaction.
	PropagateGradingResult(ctx context.Context, repo repositories.Repository, exercise *models.Exercise, grading *models.ExerciseTaskGrading,
		result *models.ExerciseTaskGradingResult, slideState *models.UserExerciseSlideState, strategy models.UserPointsUpdateStrategy) (*StateUpdateResult, error)
}

type PeerReviewService interface {
	StartPeerOrSelfReview(ctx context.Context, stateID uuid.UUID) (*models.UserExerciseState, error)
	SelectAnswerToReview(ctx context.Context, exerciseID, reviewerStateID uuid.UUID) (*models.ExerciseSlideSubmission, error)
	GetSelfReviewAnswer(ctx context.Context, stateID uuid.UUID) (*models.ExerciseSlideSubmission, error)
	GetPeerReviewData(ctx context.Context, exerciseID, reviewerStateID uuid.UUID) (*PeerReviewData, error)
	SubmitPeerReview(ctx context.Context, req *SubmitPeerReviewRequest) (*models.UserExerciseState, error)

	// Batch operations
	UpdatePeerReviewQueueReviewsReceived(ctx context.Context, courseID uuid.UUID) (int, error)
}

type RegradingService interface {
	CreateRegrading(ctx context.Context, req *CreateRegradingRequest) (*models.Regrading, error)
	GetRegradingInfo(ctx context.Context, id uuid.UUID) (*RegradingInfo, error)

	// RegradeAll runs one tick and reports whether any regrading is still incomplete.
	RegradeAll(ctx context.Context) (bool, error)

	// RefreshExerciseServices drops cached grader descriptors and returns the registered services.
	RefreshExerciseServices(ctx context.Context) ([]*models.ExerciseService, error)
}

type ProgressionService interface {
	UnlockFirstChaptersForUser(ctx context.Context, userID, courseID uuid.UUID) ([]uuid.UUID, error)
	UnlockChaptersAfterCompletion(ctx context.Context, userID, completedChapterID uuid.UUID) ([]uuid.UUID, error)
	MoveChapterExercisesToManualReview(ctx context.Context, userID, chapterID, courseInstanceID uuid.UUID) error
	CompleteChapter(ctx context.Context, userID, chapterID, courseInstanceID uuid.UUID) ([]uuid.UUID, error)
	ChapterHasOpened(chapter *models.Chapter, now time.Time) bool

	ModuleCompletionChecker
}

type TeacherGradingService interface {
	CreateDecision(ctx context.Context, req *TeacherGradingDecisionRequest) (*models.UserExerciseState, error)
}

type ExportService interface {
	ExportCourseInstancePoints(ctx context.Context, courseInstanceID uuid.UUID, w io.Writer) error
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	// Core service getters
	Submission() SubmissionService
	PeerReview() PeerReviewService
	Regrading() RegradingService
	Progression() ProgressionService
	TeacherGrading() TeacherGradingService
	Export() ExportService
	StateUpdater() *UserExerciseStateUpdater

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
