package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rage/secret-project-331-sub001/internal/models"
)

// ===== FILTER STRUCTS =====

// PeerReviewCandidateFilter selects queue entries offered to a reviewer.
type PeerReviewCandidateFilter struct {
	ExerciseID            uuid.UUID
	ExcludedUserID        uuid.UUID
	ExcludedSubmissionIDs []uuid.UUID
	OnlyNeedingReviews    bool
	Limit                 int
}

// ===== EXERCISE CONTENT =====

type ExerciseRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Exercise, error)
	GetByChapterID(ctx context.Context, chapterID uuid.UUID) ([]*models.Exercise, error)
	GetByCourseID(ctx context.Context, courseID uuid.UUID) ([]*models.Exercise, error)
	CountByChapterIDs(ctx context.Context, chapterIDs []uuid.UUID) (map[uuid.UUID]int, error)

	GetSlideByID(ctx context.Context, id uuid.UUID) (*models.ExerciseSlide, error)
	GetTaskByID(ctx context.Context, id uuid.UUID) (*models.ExerciseTask, error)
	GetTasksBySlideID(ctx context.Context, slideID uuid.UUID) ([]*models.ExerciseTask, error)
}

// ExerciseServiceRepository is the read-mostly registry of external graders.
type ExerciseServiceRepository interface {
	List(ctx context.Context) ([]*models.ExerciseService, error)
	GetDescriptorBySlug(ctx context.Context, slug string) (*models.ExerciseServiceDescriptor, error)
	GetDescriptorsBySlugs(ctx context.Context, slugs []string) (map[string]*models.ExerciseServiceDescriptor, error)
	InvalidateCache(ctx context.Context, slug string) error
}

// ===== SUBMISSIONS =====

type SubmissionRepository interface {
	CreateSlideSubmission(ctx context.Context, submission *models.ExerciseSlideSubmission) error
	GetSlideSubmissionByID(ctx context.Context, id uuid.UUID) (*models.ExerciseSlideSubmission, error)
	CountSlideSubmissionsByUser(ctx context.Context, userID, slideID uuid.UUID) (int64, error)
	GetLatestSlideSubmission(ctx context.Context, userID, exerciseID uuid.UUID) (*models.ExerciseSlideSubmission, error)
	GetRandomSlideSubmissionForPeerReview(ctx context.Context, exerciseID, excludedUserID uuid.UUID, excludedSubmissionIDs []uuid.UUID) (*models.ExerciseSlideSubmission, error)

	CreateTaskSubmission(ctx context.Context, submission *models.ExerciseTaskSubmission) error
	GetTaskSubmissionByID(ctx context.Context, id uuid.UUID) (*models.ExerciseTaskSubmission, error)
	GetTaskSubmissionsByExerciseID(ctx context.Context, exerciseID uuid.UUID) ([]*models.ExerciseTaskSubmission, error)
	SetTaskSubmissionGradingID(ctx context.Context, taskSubmissionID, gradingID uuid.UUID) error
}

type GradingRepository interface {
	Create(ctx context.Context, grading *models.ExerciseTaskGrading) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExerciseTaskGrading, error)
	Update(ctx context.Context, grading *models.ExerciseTaskGrading) error
	SetGradingProgress(ctx context.Context, id uuid.UUID, progress models.GradingProgress) error
}

// ===== DERIVED STATE =====

type UserExerciseStateRepository interface {
	GetOrCreate(ctx context.Context, userID, exerciseID uuid.UUID, stateCtx models.ExerciseStateContext) (*models.UserExerciseState, error)
	Get(ctx context.Context, userID, exerciseID uuid.UUID, stateCtx models.ExerciseStateContext) (*models.UserExerciseState, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.UserExerciseState, error)
	// GetByIDForUpdate takes a row lock held until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.UserExerciseState, error)
	Update(ctx context.Context, state *models.UserExerciseState) error
	ListByCourseInstanceID(ctx context.Context, courseInstanceID uuid.UUID) ([]*models.UserExerciseState, error)
	ListByUserAndCourseInstance(ctx context.Context, userID, courseInstanceID uuid.UUID) ([]*models.UserExerciseState, error)

	GetOrCreateSlideState(ctx context.Context, stateID, slideID uuid.UUID) (*models.UserExerciseSlideState, error)
	GetSlideState(ctx context.Context, stateID, slideID uuid.UUID) (*models.UserExerciseSlideState, error)
	UpdateSlideState(ctx context.Context, id uuid.UUID, scoreGiven *float64, progress models.GradingProgress) error
	UpsertTaskStateWithGrading(ctx context.Context, slideStateID uuid.UUID, grading *models.ExerciseTaskGrading) (*models.UserExerciseTaskState, error)
	GetTaskStatesBySlideStateID(ctx context.Context, slideStateID uuid.UUID) ([]*models.UserExerciseTaskState, error)
}

type TeacherGradingDecisionRepository interface {
	Create(ctx context.Context, decision *models.TeacherGradingDecision) error
	// GetLatestByStateID returns nil without error when no decision exists.
	GetLatestByStateID(ctx context.Context, stateID uuid.UUID) (*models.TeacherGradingDecision, error)
}

// ===== PEER REVIEW =====

type PeerReviewRepository interface {
	// GetConfigForExercise returns the exercise config, or the course default when the
	// exercise uses it or has none of its own.
	GetConfigForExercise(ctx context.Context, exercise *models.Exercise) (*models.PeerReviewConfig, error)
	GetQuestionsByConfigID(ctx context.Context, configID uuid.UUID) ([]*models.PeerReviewQuestion, error)

	CreateSubmission(ctx context.Context, submission *models.PeerReviewSubmission) error
	CountGivenByUser(ctx context.Context, userID, exerciseID, courseInstanceID uuid.UUID) (int64, error)
	GetLastGivenAt(ctx context.Context, userID, exerciseID uuid.UUID) (*time.Time, error)
	GetGivenByUser(ctx context.Context, userID, exerciseID, courseInstanceID uuid.UUID) ([]*models.PeerReviewSubmission, error)
	GetReviewedSubmissionIDs(ctx context.Context, reviewerID, exerciseID uuid.UUID) ([]uuid.UUID, error)
	CountReceivedBySlideSubmissionID(ctx context.Context, slideSubmissionID uuid.UUID) (int64, error)
	GetReceivedQuestionSubmissions(ctx context.Context, slideSubmissionID uuid.UUID) ([]*models.PeerReviewQuestionSubmission, error)
	GetFlaggedSubmissionIDs(ctx context.Context, flaggedByUserID, exerciseID uuid.UUID) ([]uuid.UUID, error)
}

type PeerReviewQueueRepository interface {
	Get(ctx context.Context, userID, exerciseID, courseInstanceID uuid.UUID) (*models.PeerReviewQueueEntry, error)
	// GetBySlideSubmissionID includes soft-deleted entries so callers can inspect why an entry left the queue.
	GetBySlideSubmissionID(ctx context.Context, slideSubmissionID uuid.UUID) (*models.PeerReviewQueueEntry, error)
	// Upsert keeps the receiving submission of an existing entry and never clears ReceivedEnoughPeerReviews.
	Upsert(ctx context.Context, entry *models.PeerReviewQueueEntry) (*models.PeerReviewQueueEntry, error)
	MarkReceivedEnough(ctx context.Context, id uuid.UUID) error
	GetCandidates(ctx context.Context, filter PeerReviewCandidateFilter) ([]*models.PeerReviewQueueEntry, error)
	GetAllNeedingReviews(ctx context.Context, exerciseID uuid.UUID) ([]*models.PeerReviewQueueEntry, error)
	DeleteBySlideSubmissionID(ctx context.Context, slideSubmissionID uuid.UUID) error

	GetReservation(ctx context.Context, exerciseID, reviewerID uuid.UUID, notBefore time.Time) (*models.OfferedAnswerToPeerReview, error)
	SaveReservation(ctx context.Context, reservation *models.OfferedAnswerToPeerReview) error
	DeleteReservation(ctx context.Context, exerciseID, reviewerID uuid.UUID) error
}

// ===== REGRADING =====

type RegradingRepository interface {
	Create(ctx context.Context, regrading *models.Regrading) error
	AddSubmission(ctx context.Context, submission *models.ExerciseTaskRegradingSubmission) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Regrading, error)
	// GetUncompletedAndMarkAsStarted moves every unfinished regrading to pending and stamps its start time.
	GetUncompletedAndMarkAsStarted(ctx context.Context) ([]*models.Regrading, error)
	GetSubmissions(ctx context.Context, regradingID uuid.UUID) ([]*models.ExerciseTaskRegradingSubmission, error)
	SetGradingAfterRegrading(ctx context.Context, regradingSubmissionID, gradingID uuid.UUID) error
	SetErrorMessage(ctx context.Context, id uuid.UUID, message string) error
	SetTotalGradingProgress(ctx context.Context, id uuid.UUID, progress models.GradingProgress) error
	Complete(ctx context.Context, id uuid.UUID) error
}

// ===== COURSE STRUCTURE =====

type CourseRepository interface {
	GetCourseInstanceByID(ctx context.Context, id uuid.UUID) (*models.CourseInstance, error)
	GetExamByID(ctx context.Context, id uuid.UUID) (*models.Exam, error)
	GetChapterByID(ctx context.Context, id uuid.UUID) (*models.Chapter, error)
	// GetChaptersByCourseID orders by chapter number.
	GetChaptersByCourseID(ctx context.Context, courseID uuid.UUID) ([]*models.Chapter, error)
	// GetModulesByCourseID orders by module order number.
	GetModulesByCourseID(ctx context.Context, courseID uuid.UUID) ([]*models.CourseModule, error)
}

type ChapterLockingRepository interface {
	GetStatusesByCourse(ctx context.Context, userID, courseID uuid.UUID) ([]*models.UserChapterLockingStatus, error)
	// Unlock never downgrades a completed chapter.
	Unlock(ctx context.Context, userID, chapterID, courseID uuid.UUID) (*models.UserChapterLockingStatus, error)
	CompleteAndLock(ctx context.Context, userID, chapterID, courseID uuid.UUID) (*models.UserChapterLockingStatus, error)
}

type CourseModuleCompletionRepository interface {
	// Get returns nil without error when the module has not been completed.
	Get(ctx context.Context, moduleID, courseInstanceID, userID uuid.UUID) (*models.CourseModuleCompletion, error)
	Create(ctx context.Context, completion *models.CourseModuleCompletion) error
}
