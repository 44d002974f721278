package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

type PeerReviewPostgreSQL struct {
	db *gorm.DB
}

func NewPeerReviewPostgreSQL(db *gorm.DB) repositories.PeerReviewRepository {
	return &PeerReviewPostgreSQL{db: db}
}

func (p *PeerReviewPostgreSQL) GetConfigForExercise(ctx context.Context, exercise *models.Exercise) (*models.PeerReviewConfig, error) {
	if exercise.CourseID == nil {
		return nil, fmt.Errorf("peer review config for exam exercise %s: %w", exercise.ID, gorm.ErrRecordNotFound)
	}

	var config models.PeerReviewConfig
	if !exercise.UseCourseDefaultPeerReviewConfig {
		err := p.db.WithContext(ctx).
			Where("exercise_id = ?", exercise.ID).
			First(&config).Error
		if err == nil {
			return &config, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to get peer review config: %w", err)
		}
	}

	if err := p.db.WithContext(ctx).
		Where("course_id = ? AND exercise_id IS NULL", *exercise.CourseID).
		First(&config).Error; err != nil {
		return nil, notFoundOr(err, "course default peer review config")
	}
	return &config, nil
}

func (p *PeerReviewPostgreSQL) GetQuestionsByConfigID(ctx context.Context, configID uuid.UUID) ([]*models.PeerReviewQuestion, error) {
	var questions []*models.PeerReviewQuestion
	if err := p.db.WithContext(ctx).
		Where("peer_review_config_id = ?", configID).
		Order("order_number ASC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get peer review questions: %w", err)
	}
	return questions, nil
}

// CreateSubmission inserts the review together with its question answers.
func (p *PeerReviewPostgreSQL) CreateSubmission(ctx context.Context, submission *models.PeerReviewSubmission) error {
	if err := p.db.WithContext(ctx).Create(submission).Error; err != nil {
		return fmt.Errorf("failed to create peer review submission: %w", err)
	}
	return nil
}

func (p *PeerReviewPostgreSQL) CountGivenByUser(ctx context.Context, userID, exerciseID, courseInstanceID uuid.UUID) (int64, error) {
	var count int64
	if err := p.db.WithContext(ctx).
		Model(&models.PeerReviewSubmission{}).
		Where("user_id = ? AND exercise_id = ? AND course_instance_id = ?", userID, exerciseID, courseInstanceID).
		Where("is_self_review = ?", false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count given peer reviews: %w", err)
	}
	return count, nil
}

func (p *PeerReviewPostgreSQL) GetLastGivenAt(ctx context.Context, userID, exerciseID uuid.UUID) (*time.Time, error) {
	var submission models.PeerReviewSubmission
	err := p.db.WithContext(ctx).
		Where("user_id = ? AND exercise_id = ? AND is_self_review = ?", userID, exerciseID, false).
		Order("created_at DESC").
		First(&submission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last given peer review: %w", err)
	}
	return &submission.CreatedAt, nil
}

func (p *PeerReviewPostgreSQL) GetGivenByUser(ctx context.Context, userID, exerciseID, courseInstanceID uuid.UUID) ([]*models.PeerReviewSubmission, error) {
	var submissions []*models.PeerReviewSubmission
	if err := p.db.WithContext(ctx).
		Preload("QuestionSubmissions").
		Where("user_id = ? AND exercise_id = ? AND course_instance_id = ?", userID, exerciseID, courseInstanceID).
		Where("is_self_review = ?", false).
		Order("created_at ASC").
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to get given peer reviews: %w", err)
	}
	return submissions, nil
}

func (p *PeerReviewPostgreSQL) GetReviewedSubmissionIDs(ctx context.Context, reviewerID, exerciseID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := p.db.WithContext(ctx).
		Model(&models.PeerReviewSubmission{}).
		Where("user_id = ? AND exercise_id = ?", reviewerID, exerciseID).
		Pluck("exercise_slide_submission_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to get reviewed submission ids: %w", err)
	}
	return ids, nil
}

func (p *PeerReviewPostgreSQL) CountReceivedBySlideSubmissionID(ctx context.Context, slideSubmissionID uuid.UUID) (int64, error) {
	var count int64
	if err := p.db.WithContext(ctx).
		Model(&models.PeerReviewSubmission{}).
		Where("exercise_slide_submission_id = ? AND is_self_review = ?", slideSubmissionID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count received peer reviews: %w", err)
	}
	return count, nil
}

// GetReceivedQuestionSubmissions returns answers of non-deleted peer reviews about the submission.
func (p *PeerReviewPostgreSQL) GetReceivedQuestionSubmissions(ctx context.Context, slideSubmissionID uuid.UUID) ([]*models.PeerReviewQuestionSubmission, error) {
	var answers []*models.PeerReviewQuestionSubmission
	if err := p.db.WithContext(ctx).
		Joins("JOIN peer_review_submissions prs ON prs.id = peer_review_question_submissions.peer_review_submission_id AND prs.deleted_at IS NULL").
		Where("prs.exercise_slide_submission_id = ? AND prs.is_self_review = ?", slideSubmissionID, false).
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to get received peer review answers: %w", err)
	}
	return answers, nil
}

func (p *PeerReviewPostgreSQL) GetFlaggedSubmissionIDs(ctx context.Context, flaggedByUserID, exerciseID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := p.db.WithContext(ctx).
		Model(&models.FlaggedAnswer{}).
		Where("flagged_by_user_id = ? AND exercise_id = ?", flaggedByUserID, exerciseID).
		Pluck("exercise_slide_submission_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to get flagged submission ids: %w", err)
	}
	return ids, nil
}
