package models

import (
	"time"

	"github.com/google/uuid"
)

// Regrading is a batch replay of task submissions through their current graders.
type Regrading struct {
	Base
	RegradingStartedAt       *time.Time               `json:"regrading_started_at"`
	RegradingCompletedAt     *time.Time               `json:"regrading_completed_at"`
	TotalGradingProgress     GradingProgress          `json:"total_grading_progress" gorm:"not null;default:not_ready"`
	UserPointsUpdateStrategy UserPointsUpdateStrategy `json:"user_points_update_strategy" gorm:"not null"`
	InitiatorUserID          *uuid.UUID               `json:"initiator_user_id" gorm:"type:uuid"`
	ErrorMessage             *string                  `json:"error_message"`
}

func (Regrading) TableName() string { return "regradings" }

// ExerciseTaskRegradingSubmission links an original task submission to its regraded grading.
type ExerciseTaskRegradingSubmission struct {
	Base
	RegradingID              uuid.UUID  `json:"regrading_id" gorm:"type:uuid;not null;index"`
	ExerciseTaskSubmissionID uuid.UUID  `json:"exercise_task_submission_id" gorm:"type:uuid;not null"`
	GradingBeforeRegrading   uuid.UUID  `json:"grading_before_regrading" gorm:"type:uuid;not null"`
	GradingAfterRegrading    *uuid.UUID `json:"grading_after_regrading" gorm:"type:uuid"`
}

func (ExerciseTaskRegradingSubmission) TableName() string {
	return "exercise_task_regrading_submissions"
}
