package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExerciseSlideSubmission records one attempt on a slide.
type ExerciseSlideSubmission struct {
	Base
	ExerciseSlideID          uuid.UUID                `json:"exercise_slide_id" gorm:"type:uuid;not null;index"`
	ExerciseID               uuid.UUID                `json:"exercise_id" gorm:"type:uuid;not null;index"`
	UserID                   uuid.UUID                `json:"user_id" gorm:"type:uuid;not null;index"`
	CourseID                 *uuid.UUID               `json:"course_id" gorm:"type:uuid"`
	CourseInstanceID         *uuid.UUID               `json:"course_instance_id" gorm:"type:uuid;index"`
	ExamID                   *uuid.UUID               `json:"exam_id" gorm:"type:uuid;index"`
	UserPointsUpdateStrategy UserPointsUpdateStrategy `json:"user_points_update_strategy" gorm:"not null"`

	TaskSubmissions []ExerciseTaskSubmission `json:"task_submissions,omitempty" gorm:"foreignKey:ExerciseSlideSubmissionID"`
}

func (ExerciseSlideSubmission) TableName() string { return "exercise_slide_submissions" }

// HasCourseContext is required for a submission to take part in peer review.
func (s *ExerciseSlideSubmission) HasCourseContext() bool {
	return s.CourseID != nil && s.CourseInstanceID != nil
}

type ExerciseTaskSubmission struct {
	Base
	ExerciseSlideSubmissionID uuid.UUID      `json:"exercise_slide_submission_id" gorm:"type:uuid;not null;index"`
	ExerciseSlideID           uuid.UUID      `json:"exercise_slide_id" gorm:"type:uuid;not null"`
	ExerciseTaskID            uuid.UUID      `json:"exercise_task_id" gorm:"type:uuid;not null;index"`
	DataJSON                  datatypes.JSON `json:"data_json" gorm:"type:jsonb"`
	ExerciseTaskGradingID     *uuid.UUID     `json:"exercise_task_grading_id" gorm:"type:uuid"`
}

func (ExerciseTaskSubmission) TableName() string { return "exercise_task_submissions" }

// ExerciseTaskGrading is the result of grading one task submission. ScoreGiven is
// on the exercise scale, the unscaled values are what the grader reported.
type ExerciseTaskGrading struct {
	Base
	ExerciseTaskSubmissionID uuid.UUID       `json:"exercise_task_submission_id" gorm:"type:uuid;not null;index"`
	CourseID                 *uuid.UUID      `json:"course_id" gorm:"type:uuid"`
	ExamID                   *uuid.UUID      `json:"exam_id" gorm:"type:uuid"`
	ExerciseID               uuid.UUID       `json:"exercise_id" gorm:"type:uuid;not null"`
	ExerciseTaskID           uuid.UUID       `json:"exercise_task_id" gorm:"type:uuid;not null"`
	GradingPriority          int             `json:"grading_priority"`
	ScoreGiven               *float64        `json:"score_given"`
	GradingProgress          GradingProgress `json:"grading_progress" gorm:"not null;default:not_ready"`
	UnscaledScoreGiven       *float64        `json:"unscaled_score_given"`
	UnscaledScoreMaximum     *int            `json:"unscaled_score_maximum"`
	GradingStartedAt         *time.Time      `json:"grading_started_at"`
	GradingCompletedAt       *time.Time      `json:"grading_completed_at"`
	FeedbackJSON             datatypes.JSON  `json:"feedback_json" gorm:"type:jsonb"`
	FeedbackText             *string         `json:"feedback_text"`
}

func (ExerciseTaskGrading) TableName() string { return "exercise_task_gradings" }
