package validator

import (
	"github.com/google/uuid"

	"github.com/rage/secret-project-331-sub001/internal/models"
)

// SlideSubmissionRequest is a student's answer to a slide of an exercise.
type SlideSubmissionRequest struct {
	UserID     uuid.UUID                             `json:"user_id" validate:"required,uuid_not_nil"`
	ExerciseID uuid.UUID                             `json:"exercise_id" validate:"required,uuid_not_nil"`
	Submission models.StudentExerciseSlideSubmission `json:"submission" validate:"required"`
	// CourseInstanceID is required for course exercises and ignored for exam exercises.
	CourseInstanceID *uuid.UUID `json:"course_instance_id" validate:"omitempty,uuid_not_nil"`
	// FixedGrading replaces the grader call for every task when set.
	FixedGrading *models.ExerciseTaskGradingResult `json:"fixed_grading,omitempty" validate:"omitempty"`
}

// PeerReviewSubmissionRequest is a peer or self review of one slide submission.
type PeerReviewSubmissionRequest struct {
	ReviewerUserID            uuid.UUID                 `json:"reviewer_user_id" validate:"required,uuid_not_nil"`
	ExerciseID                uuid.UUID                 `json:"exercise_id" validate:"required,uuid_not_nil"`
	CourseInstanceID          uuid.UUID                 `json:"course_instance_id" validate:"required,uuid_not_nil"`
	ExerciseSlideSubmissionID uuid.UUID                 `json:"exercise_slide_submission_id" validate:"required,uuid_not_nil"`
	Answers                   []models.PeerReviewAnswer `json:"peer_review_question_answers" validate:"dive"`
}

// RegradingCreateRequest selects task submissions to regrade, either listed or by exercise.
type RegradingCreateRequest struct {
	ExerciseTaskSubmissionIDs []uuid.UUID                     `json:"exercise_task_submission_ids" validate:"required_without=ExerciseID,dive,uuid_not_nil"`
	ExerciseID                *uuid.UUID                      `json:"exercise_id" validate:"omitempty,uuid_not_nil"`
	UserPointsUpdateStrategy  models.UserPointsUpdateStrategy `json:"user_points_update_strategy" validate:"required,points_strategy"`
	InitiatorUserID           *uuid.UUID                      `json:"initiator_user_id"`
}

// TeacherGradingDecisionRequest is a manual grading override for one user exercise state.
type TeacherGradingDecisionRequest struct {
	UserExerciseStateID uuid.UUID                  `json:"user_exercise_state_id" validate:"required,uuid_not_nil"`
	ExerciseID          uuid.UUID                  `json:"exercise_id" validate:"required,uuid_not_nil"`
	Action              models.TeacherDecisionType `json:"action" validate:"required,teacher_decision"`
	ManualPoints        *float64                   `json:"manual_points" validate:"omitempty,gte=0"`
	TeacherUserID       uuid.UUID                  `json:"teacher_user_id" validate:"required,uuid_not_nil"`
	JustificationText   *string                    `json:"justification" validate:"omitempty,max=5000"`
}
