package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

type TeacherGradingDecisionPostgreSQL struct {
	db *gorm.DB
}

func NewTeacherGradingDecisionPostgreSQL(db *gorm.DB) repositories.TeacherGradingDecisionRepository {
	return &TeacherGradingDecisionPostgreSQL{db: db}
}

func (t *TeacherGradingDecisionPostgreSQL) Create(ctx context.Context, decision *models.TeacherGradingDecision) error {
	if err := t.db.WithContext(ctx).Create(decision).Error; err != nil {
		return fmt.Errorf("failed to create teacher grading decision: %w", err)
	}
	return nil
}

func (t *TeacherGradingDecisionPostgreSQL) GetLatestByStateID(ctx context.Context, stateID uuid.UUID) (*models.TeacherGradingDecision, error) {
	var decision models.TeacherGradingDecision
	err := t.db.WithContext(ctx).
		Where("user_exercise_state_id = ?", stateID).
		Order("created_at DESC").
		First(&decision).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get teacher grading decision: %w", err)
	}
	return &decision, nil
}
