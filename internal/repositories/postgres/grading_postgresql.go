package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

type GradingPostgreSQL struct {
	db *gorm.DB
}

func NewGradingPostgreSQL(db *gorm.DB) repositories.GradingRepository {
	return &GradingPostgreSQL{db: db}
}

func (g *GradingPostgreSQL) Create(ctx context.Context, grading *models.ExerciseTaskGrading) error {
	if err := g.db.WithContext(ctx).Create(grading).Error; err != nil {
		return fmt.Errorf("failed to create grading: %w", err)
	}
	return nil
}

func (g *GradingPostgreSQL) GetByID(ctx context.Context, id uuid.UUID) (*models.ExerciseTaskGrading, error) {
	var grading models.ExerciseTaskGrading
	if err := g.db.WithContext(ctx).First(&grading, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "exercise task grading")
	}
	return &grading, nil
}

func (g *GradingPostgreSQL) Update(ctx context.Context, grading *models.ExerciseTaskGrading) error {
	if err := g.db.WithContext(ctx).Save(grading).Error; err != nil {
		return fmt.Errorf("failed to update grading: %w", err)
	}
	return nil
}

func (g *GradingPostgreSQL) SetGradingProgress(ctx context.Context, id uuid.UUID, progress models.GradingProgress) error {
	if err := g.db.WithContext(ctx).
		Model(&models.ExerciseTaskGrading{}).
		Where("id = ?", id).
		Update("grading_progress", progress).Error; err != nil {
		return fmt.Errorf("failed to set grading progress: %w", err)
	}
	return nil
}
