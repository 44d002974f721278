package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

type SubmissionPostgreSQL struct {
	db *gorm.DB
}

func NewSubmissionPostgreSQL(db *gorm.DB) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{db: db}
}

// CreateSlideSubmission inserts the slide submission row only; task submissions are created separately.
func (s *SubmissionPostgreSQL) CreateSlideSubmission(ctx context.Context, submission *models.ExerciseSlideSubmission) error {
	if err := s.db.WithContext(ctx).Omit("TaskSubmissions").Create(submission).Error; err != nil {
		return fmt.Errorf("failed to create slide submission: %w", err)
	}
	return nil
}

func (s *SubmissionPostgreSQL) GetSlideSubmissionByID(ctx context.Context, id uuid.UUID) (*models.ExerciseSlideSubmission, error) {
	var submission models.ExerciseSlideSubmission
	if err := s.db.WithContext(ctx).First(&submission, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "exercise slide submission")
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) CountSlideSubmissionsByUser(ctx context.Context, userID, slideID uuid.UUID) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.ExerciseSlideSubmission{}).
		Where("user_id = ? AND exercise_slide_id = ?", userID, slideID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count slide submissions: %w", err)
	}
	return count, nil
}

func (s *SubmissionPostgreSQL) GetLatestSlideSubmission(ctx context.Context, userID, exerciseID uuid.UUID) (*models.ExerciseSlideSubmission, error) {
	var submission models.ExerciseSlideSubmission
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND exercise_id = ?", userID, exerciseID).
		Order("created_at DESC").
		First(&submission).Error; err != nil {
		return nil, notFoundOr(err, "latest exercise slide submission")
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetRandomSlideSubmissionForPeerReview(ctx context.Context, exerciseID, excludedUserID uuid.UUID, excludedSubmissionIDs []uuid.UUID) (*models.ExerciseSlideSubmission, error) {
	var submission models.ExerciseSlideSubmission
	if err := s.db.WithContext(ctx).
		Scopes(excludeIDs("id", excludedSubmissionIDs)).
		Where("exercise_id = ? AND user_id <> ?", exerciseID, excludedUserID).
		Where("course_instance_id IS NOT NULL").
		Order("random()").
		First(&submission).Error; err != nil {
		return nil, notFoundOr(err, "random exercise slide submission")
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) CreateTaskSubmission(ctx context.Context, submission *models.ExerciseTaskSubmission) error {
	if err := s.db.WithContext(ctx).Create(submission).Error; err != nil {
		return fmt.Errorf("failed to create task submission: %w", err)
	}
	return nil
}

func (s *SubmissionPostgreSQL) GetTaskSubmissionByID(ctx context.Context, id uuid.UUID) (*models.ExerciseTaskSubmission, error) {
	var submission models.ExerciseTaskSubmission
	if err := s.db.WithContext(ctx).First(&submission, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "exercise task submission")
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetTaskSubmissionsByExerciseID(ctx context.Context, exerciseID uuid.UUID) ([]*models.ExerciseTaskSubmission, error) {
	var submissions []*models.ExerciseTaskSubmission
	if err := s.db.WithContext(ctx).
		Joins("JOIN exercise_slide_submissions ess ON ess.id = exercise_task_submissions.exercise_slide_submission_id AND ess.deleted_at IS NULL").
		Where("ess.exercise_id = ?", exerciseID).
		Where("exercise_task_submissions.exercise_task_grading_id IS NOT NULL").
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to get task submissions by exercise: %w", err)
	}
	return submissions, nil
}

func (s *SubmissionPostgreSQL) SetTaskSubmissionGradingID(ctx context.Context, taskSubmissionID, gradingID uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Model(&models.ExerciseTaskSubmission{}).
		Where("id = ?", taskSubmissionID).
		Update("exercise_task_grading_id", gradingID)
	if result.Error != nil {
		return fmt.Errorf("failed to set grading id: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("exercise task submission %s: %w", taskSubmissionID, gorm.ErrRecordNotFound)
	}
	return nil
}
