package models

import (
	"github.com/google/uuid"
)

// UserExerciseState is the single owner of the derived score for a
// (user, exercise, course instance or exam) triple.
type UserExerciseState struct {
	Base
	UserID                  uuid.UUID        `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_ues_course_instance;uniqueIndex:idx_ues_exam"`
	ExerciseID              uuid.UUID        `json:"exercise_id" gorm:"type:uuid;not null;uniqueIndex:idx_ues_course_instance;uniqueIndex:idx_ues_exam"`
	CourseInstanceID        *uuid.UUID       `json:"course_instance_id" gorm:"type:uuid;uniqueIndex:idx_ues_course_instance"`
	ExamID                  *uuid.UUID       `json:"exam_id" gorm:"type:uuid;uniqueIndex:idx_ues_exam"`
	ScoreGiven              *float64         `json:"score_given"`
	GradingProgress         GradingProgress  `json:"grading_progress" gorm:"not null;default:not_ready"`
	ActivityProgress        ActivityProgress `json:"activity_progress" gorm:"not null;default:initialized"`
	ReviewingStage          ReviewingStage   `json:"reviewing_stage" gorm:"not null;default:not_started"`
	SelectedExerciseSlideID *uuid.UUID       `json:"selected_exercise_slide_id" gorm:"type:uuid"`
}

func (UserExerciseState) TableName() string { return "user_exercise_states" }

// Apply copies a derived update onto the state.
func (s *UserExerciseState) Apply(update UserExerciseStateUpdate) {
	s.ScoreGiven = update.ScoreGiven
	s.ActivityProgress = update.ActivityProgress
	s.ReviewingStage = update.ReviewingStage
	s.GradingProgress = update.GradingProgress
}

// Matches reports whether the state already holds the derived values.
func (s *UserExerciseState) Matches(update UserExerciseStateUpdate) bool {
	return floatPtrEqual(s.ScoreGiven, update.ScoreGiven) &&
		s.ActivityProgress == update.ActivityProgress &&
		s.ReviewingStage == update.ReviewingStage &&
		s.GradingProgress == update.GradingProgress
}

// ExerciseStateContext identifies where a state lives: a course instance or an exam.
type ExerciseStateContext struct {
	CourseInstanceID *uuid.UUID
	ExamID           *uuid.UUID
}

func (c ExerciseStateContext) Valid() bool {
	return (c.CourseInstanceID == nil) != (c.ExamID == nil)
}

// UserExerciseStateUpdate is the output of the state deriver.
type UserExerciseStateUpdate struct {
	ScoreGiven       *float64         `json:"score_given"`
	ActivityProgress ActivityProgress `json:"activity_progress"`
	ReviewingStage   ReviewingStage   `json:"reviewing_stage"`
	GradingProgress  GradingProgress  `json:"grading_progress"`
}

// UserExerciseSlideState aggregates task states for the slide a user is bound to.
type UserExerciseSlideState struct {
	Base
	UserExerciseStateID uuid.UUID       `json:"user_exercise_state_id" gorm:"type:uuid;not null;uniqueIndex:idx_uess_state_slide"`
	ExerciseSlideID     uuid.UUID       `json:"exercise_slide_id" gorm:"type:uuid;not null;uniqueIndex:idx_uess_state_slide"`
	ScoreGiven          *float64        `json:"score_given"`
	GradingProgress     GradingProgress `json:"grading_progress" gorm:"not null;default:not_ready"`
}

func (UserExerciseSlideState) TableName() string { return "user_exercise_slide_states" }

// UserExerciseTaskState holds the latest grading of a task for a slide state.
type UserExerciseTaskState struct {
	Base
	UserExerciseSlideStateID uuid.UUID       `json:"user_exercise_slide_state_id" gorm:"type:uuid;not null;uniqueIndex:idx_uets_slide_task"`
	ExerciseTaskID           uuid.UUID       `json:"exercise_task_id" gorm:"type:uuid;not null;uniqueIndex:idx_uets_slide_task"`
	ExerciseTaskGradingID    *uuid.UUID      `json:"exercise_task_grading_id" gorm:"type:uuid"`
	ScoreGiven               *float64        `json:"score_given"`
	GradingProgress          GradingProgress `json:"grading_progress" gorm:"not null;default:not_ready"`
}

func (UserExerciseTaskState) TableName() string { return "user_exercise_task_states" }

// UserExerciseSlideStateGradingSummary is what a slide contributes to the state deriver.
type UserExerciseSlideStateGradingSummary struct {
	ScoreGiven      *float64        `json:"score_given"`
	GradingProgress GradingProgress `json:"grading_progress"`
}

// TeacherGradingDecision is a manual override that dominates every other score source.
type TeacherGradingDecision struct {
	Base
	UserExerciseStateID uuid.UUID           `json:"user_exercise_state_id" gorm:"type:uuid;not null;index"`
	TeacherDecision     TeacherDecisionType `json:"teacher_decision" gorm:"not null"`
	ScoreGiven          float64             `json:"score_given"`
	TeacherUserID       uuid.UUID           `json:"teacher_user_id" gorm:"type:uuid;not null"`
	JustificationText   *string             `json:"justification_text"`
}

func (TeacherGradingDecision) TableName() string { return "teacher_grading_decisions" }

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
