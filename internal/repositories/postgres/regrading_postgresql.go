package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

type RegradingPostgreSQL struct {
	db *gorm.DB
}

func NewRegradingPostgreSQL(db *gorm.DB) repositories.RegradingRepository {
	return &RegradingPostgreSQL{db: db}
}

func (r *RegradingPostgreSQL) Create(ctx context.Context, regrading *models.Regrading) error {
	if err := r.db.WithContext(ctx).Create(regrading).Error; err != nil {
		return fmt.Errorf("failed to create regrading: %w", err)
	}
	return nil
}

func (r *RegradingPostgreSQL) AddSubmission(ctx context.Context, submission *models.ExerciseTaskRegradingSubmission) error {
	if err := r.db.WithContext(ctx).Create(submission).Error; err != nil {
		return fmt.Errorf("failed to add regrading submission: %w", err)
	}
	return nil
}

func (r *RegradingPostgreSQL) GetByID(ctx context.Context, id uuid.UUID) (*models.Regrading, error) {
	var regrading models.Regrading
	if err := r.db.WithContext(ctx).First(&regrading, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "regrading")
	}
	return &regrading, nil
}

func (r *RegradingPostgreSQL) GetUncompletedAndMarkAsStarted(ctx context.Context) ([]*models.Regrading, error) {
	var regradings []*models.Regrading
	if err := r.db.WithContext(ctx).
		Model(&regradings).
		Clauses(clause.Returning{}).
		Where("regrading_completed_at IS NULL").
		Updates(map[string]interface{}{
			"regrading_started_at":   gorm.Expr("COALESCE(regrading_started_at, now())"),
			"total_grading_progress": models.GradingProgressPending,
			"updated_at":             time.Now().UTC(),
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to mark regradings as started: %w", err)
	}
	return regradings, nil
}

func (r *RegradingPostgreSQL) GetSubmissions(ctx context.Context, regradingID uuid.UUID) ([]*models.ExerciseTaskRegradingSubmission, error) {
	var submissions []*models.ExerciseTaskRegradingSubmission
	if err := r.db.WithContext(ctx).
		Where("regrading_id = ?", regradingID).
		Order("created_at ASC").
		Find(&submissions).Error; err != nil {
		return nil, fmt.Errorf("failed to get regrading submissions: %w", err)
	}
	return submissions, nil
}

func (r *RegradingPostgreSQL) SetGradingAfterRegrading(ctx context.Context, regradingSubmissionID, gradingID uuid.UUID) error {
	return r.update(ctx, &models.ExerciseTaskRegradingSubmission{}, regradingSubmissionID, map[string]interface{}{
		"grading_after_regrading": gradingID,
	})
}

func (r *RegradingPostgreSQL) SetErrorMessage(ctx context.Context, id uuid.UUID, message string) error {
	return r.update(ctx, &models.Regrading{}, id, map[string]interface{}{
		"error_message": message,
	})
}

func (r *RegradingPostgreSQL) SetTotalGradingProgress(ctx context.Context, id uuid.UUID, progress models.GradingProgress) error {
	return r.update(ctx, &models.Regrading{}, id, map[string]interface{}{
		"total_grading_progress": progress,
	})
}

func (r *RegradingPostgreSQL) Complete(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, &models.Regrading{}, id, map[string]interface{}{
		"regrading_completed_at": time.Now().UTC(),
		"total_grading_progress": models.GradingProgressFullyGraded,
	})
}

func (r *RegradingPostgreSQL) update(ctx context.Context, model interface{}, id uuid.UUID, values map[string]interface{}) error {
	values["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return fmt.Errorf("failed to update regrading: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("regrading row %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}
