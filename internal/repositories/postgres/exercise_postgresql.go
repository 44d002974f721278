package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

type ExercisePostgreSQL struct {
	db *gorm.DB
}

func NewExercisePostgreSQL(db *gorm.DB) repositories.ExerciseRepository {
	return &ExercisePostgreSQL{db: db}
}

func (e *ExercisePostgreSQL) GetByID(ctx context.Context, id uuid.UUID) (*models.Exercise, error) {
	var exercise models.Exercise
	if err := e.db.WithContext(ctx).First(&exercise, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "exercise")
	}
	return &exercise, nil
}

func (e *ExercisePostgreSQL) GetByChapterID(ctx context.Context, chapterID uuid.UUID) ([]*models.Exercise, error) {
	var exercises []*models.Exercise
	if err := e.db.WithContext(ctx).
		Where("chapter_id = ?", chapterID).
		Order("order_number ASC").
		Find(&exercises).Error; err != nil {
		return nil, fmt.Errorf("failed to get exercises by chapter: %w", err)
	}
	return exercises, nil
}

func (e *ExercisePostgreSQL) GetByCourseID(ctx context.Context, courseID uuid.UUID) ([]*models.Exercise, error) {
	var exercises []*models.Exercise
	if err := e.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("order_number ASC").
		Find(&exercises).Error; err != nil {
		return nil, fmt.Errorf("failed to get exercises by course: %w", err)
	}
	return exercises, nil
}

func (e *ExercisePostgreSQL) CountByChapterIDs(ctx context.Context, chapterIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(chapterIDs))
	if len(chapterIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ChapterID uuid.UUID
		Count     int
	}
	if err := e.db.WithContext(ctx).
		Model(&models.Exercise{}).
		Select("chapter_id, COUNT(*) AS count").
		Where("chapter_id IN ?", chapterIDs).
		Group("chapter_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count exercises by chapter: %w", err)
	}

	for _, row := range rows {
		counts[row.ChapterID] = row.Count
	}
	return counts, nil
}

func (e *ExercisePostgreSQL) GetSlideByID(ctx context.Context, id uuid.UUID) (*models.ExerciseSlide, error) {
	var slide models.ExerciseSlide
	if err := e.db.WithContext(ctx).First(&slide, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "exercise slide")
	}
	return &slide, nil
}

func (e *ExercisePostgreSQL) GetTaskByID(ctx context.Context, id uuid.UUID) (*models.ExerciseTask, error) {
	var task models.ExerciseTask
	if err := e.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "exercise task")
	}
	return &task, nil
}

func (e *ExercisePostgreSQL) GetTasksBySlideID(ctx context.Context, slideID uuid.UUID) ([]*models.ExerciseTask, error) {
	var tasks []*models.ExerciseTask
	if err := e.db.WithContext(ctx).
		Where("exercise_slide_id = ?", slideID).
		Order("order_number ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to get exercise tasks: %w", err)
	}
	return tasks, nil
}
