package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rage/secret-project-331-sub001/internal/models"
	"github.com/rage/secret-project-331-sub001/internal/repositories"
)

type UserExerciseStatePostgreSQL struct {
	db *gorm.DB
}

func NewUserExerciseStatePostgreSQL(db *gorm.DB) repositories.UserExerciseStateRepository {
	return &UserExerciseStatePostgreSQL{db: db}
}

func (u *UserExerciseStatePostgreSQL) GetOrCreate(ctx context.Context, userID, exerciseID uuid.UUID, stateCtx models.ExerciseStateContext) (*models.UserExerciseState, error) {
	if !stateCtx.Valid() {
		return nil, fmt.Errorf("user exercise state needs exactly one of course instance or exam")
	}

	state, err := u.Get(ctx, userID, exerciseID, stateCtx)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	state = &models.UserExerciseState{
		UserID:           userID,
		ExerciseID:       exerciseID,
		CourseInstanceID: stateCtx.CourseInstanceID,
		ExamID:           stateCtx.ExamID,
		GradingProgress:  models.GradingProgressNotReady,
		ActivityProgress: models.ActivityProgressInitialized,
		ReviewingStage:   models.ReviewingStageNotStarted,
	}
	// a concurrent request may have inserted the row in between
	if err := u.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(state).Error; err != nil {
		return nil, fmt.Errorf("failed to create user exercise state: %w", err)
	}
	return u.Get(ctx, userID, exerciseID, stateCtx)
}

func (u *UserExerciseStatePostgreSQL) Get(ctx context.Context, userID, exerciseID uuid.UUID, stateCtx models.ExerciseStateContext) (*models.UserExerciseState, error) {
	var state models.UserExerciseState
	if err := u.db.WithContext(ctx).
		Scopes(stateContext(stateCtx)).
		Where("user_id = ? AND exercise_id = ?", userID, exerciseID).
		First(&state).Error; err != nil {
		return nil, notFoundOr(err, "user exercise state")
	}
	return &state, nil
}

func (u *UserExerciseStatePostgreSQL) GetByID(ctx context.Context, id uuid.UUID) (*models.UserExerciseState, error) {
	var state models.UserExerciseState
	if err := u.db.WithContext(ctx).First(&state, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "user exercise state")
	}
	return &state, nil
}

func (u *UserExerciseStatePostgreSQL) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.UserExerciseState, error) {
	var state models.UserExerciseState
	if err := u.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&state, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "user exercise state")
	}
	return &state, nil
}

func (u *UserExerciseStatePostgreSQL) Update(ctx context.Context, state *models.UserExerciseState) error {
	result := u.db.WithContext(ctx).
		Model(&models.UserExerciseState{}).
		Where("id = ?", state.ID).
		Updates(map[string]interface{}{
			"score_given":                state.ScoreGiven,
			"grading_progress":           state.GradingProgress,
			"activity_progress":          state.ActivityProgress,
			"reviewing_stage":            state.ReviewingStage,
			"selected_exercise_slide_id": state.SelectedExerciseSlideID,
			"updated_at":                 time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update user exercise state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("user exercise state %s: %w", state.ID, gorm.ErrRecordNotFound)
	}
	return nil
}

func (u *UserExerciseStatePostgreSQL) ListByCourseInstanceID(ctx context.Context, courseInstanceID uuid.UUID) ([]*models.UserExerciseState, error) {
	var states []*models.UserExerciseState
	if err := u.db.WithContext(ctx).
		Where("course_instance_id = ?", courseInstanceID).
		Order("user_id ASC").
		Find(&states).Error; err != nil {
		return nil, fmt.Errorf("failed to list user exercise states: %w", err)
	}
	return states, nil
}

func (u *UserExerciseStatePostgreSQL) ListByUserAndCourseInstance(ctx context.Context, userID, courseInstanceID uuid.UUID) ([]*models.UserExerciseState, error) {
	var states []*models.UserExerciseState
	if err := u.db.WithContext(ctx).
		Where("user_id = ? AND course_instance_id = ?", userID, courseInstanceID).
		Find(&states).Error; err != nil {
		return nil, fmt.Errorf("failed to list user exercise states for user: %w", err)
	}
	return states, nil
}

func (u *UserExerciseStatePostgreSQL) GetOrCreateSlideState(ctx context.Context, stateID, slideID uuid.UUID) (*models.UserExerciseSlideState, error) {
	slideState, err := u.GetSlideState(ctx, stateID, slideID)
	if err == nil {
		return slideState, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	slideState = &models.UserExerciseSlideState{
		UserExerciseStateID: stateID,
		ExerciseSlideID:     slideID,
		GradingProgress:     models.GradingProgressNotReady,
	}
	if err := u.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(slideState).Error; err != nil {
		return nil, fmt.Errorf("failed to create slide state: %w", err)
	}
	return u.GetSlideState(ctx, stateID, slideID)
}

func (u *UserExerciseStatePostgreSQL) GetSlideState(ctx context.Context, stateID, slideID uuid.UUID) (*models.UserExerciseSlideState, error) {
	var slideState models.UserExerciseSlideState
	if err := u.db.WithContext(ctx).
		Where("user_exercise_state_id = ? AND exercise_slide_id = ?", stateID, slideID).
		First(&slideState).Error; err != nil {
		return nil, notFoundOr(err, "user exercise slide state")
	}
	return &slideState, nil
}

func (u *UserExerciseStatePostgreSQL) UpdateSlideState(ctx context.Context, id uuid.UUID, scoreGiven *float64, progress models.GradingProgress) error {
	if err := u.db.WithContext(ctx).
		Model(&models.UserExerciseSlideState{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"score_given":      scoreGiven,
			"grading_progress": progress,
			"updated_at":       time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("failed to update slide state: %w", err)
	}
	return nil
}

func (u *UserExerciseStatePostgreSQL) UpsertTaskStateWithGrading(ctx context.Context, slideStateID uuid.UUID, grading *models.ExerciseTaskGrading) (*models.UserExerciseTaskState, error) {
	taskState := &models.UserExerciseTaskState{
		UserExerciseSlideStateID: slideStateID,
		ExerciseTaskID:           grading.ExerciseTaskID,
		ExerciseTaskGradingID:    &grading.ID,
		ScoreGiven:               grading.ScoreGiven,
		GradingProgress:          grading.GradingProgress,
	}
	if err := u.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_exercise_slide_state_id"}, {Name: "exercise_task_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"exercise_task_grading_id": grading.ID,
			"score_given":              grading.ScoreGiven,
			"grading_progress":         grading.GradingProgress,
			"deleted_at":               nil,
			"updated_at":               time.Now().UTC(),
		}),
	}).Create(taskState).Error; err != nil {
		return nil, fmt.Errorf("failed to upsert task state: %w", err)
	}

	var stored models.UserExerciseTaskState
	if err := u.db.WithContext(ctx).
		Where("user_exercise_slide_state_id = ? AND exercise_task_id = ?", slideStateID, grading.ExerciseTaskID).
		First(&stored).Error; err != nil {
		return nil, notFoundOr(err, "user exercise task state")
	}
	return &stored, nil
}

func (u *UserExerciseStatePostgreSQL) GetTaskStatesBySlideStateID(ctx context.Context, slideStateID uuid.UUID) ([]*models.UserExerciseTaskState, error) {
	var taskStates []*models.UserExerciseTaskState
	if err := u.db.WithContext(ctx).
		Where("user_exercise_slide_state_id = ?", slideStateID).
		Find(&taskStates).Error; err != nil {
		return nil, fmt.Errorf("failed to get task states: %w", err)
	}
	return taskStates, nil
}
