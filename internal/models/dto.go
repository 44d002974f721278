package models

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UnmarshalJSON accepts both snake_case and kebab-case spellings, graders use either.
func (g *GradingProgress) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = GradingProgress(strings.ReplaceAll(raw, "-", "_"))
	return nil
}

// StudentExerciseTaskSubmission is the answer to one task.
type StudentExerciseTaskSubmission struct {
	ExerciseTaskID uuid.UUID       `json:"exercise_task_id" validate:"required,uuid_not_nil"`
	DataJSON       json.RawMessage `json:"data_json"`
}

// StudentExerciseSlideSubmission is the answer to every task on a slide.
type StudentExerciseSlideSubmission struct {
	ExerciseSlideID         uuid.UUID                       `json:"exercise_slide_id" validate:"required,uuid_not_nil"`
	ExerciseTaskSubmissions []StudentExerciseTaskSubmission `json:"exercise_task_submissions" validate:"required,min=1,dive"`
}

// ExerciseTaskGradingResult is what an exercise service returns for a grading request.
type ExerciseTaskGradingResult struct {
	GradingProgress  GradingProgress            `json:"grading_progress" validate:"grading_progress"`
	ScoreGiven       float64                    `json:"score_given" validate:"gte=0"`
	ScoreMaximum     int                        `json:"score_maximum" validate:"gte=0"`
	FeedbackText     *string                    `json:"feedback_text,omitempty"`
	FeedbackJSON     json.RawMessage            `json:"feedback_json,omitempty"`
	SetUserVariables map[string]json.RawMessage `json:"set_user_variables,omitempty"`
}

// GradingRequest is the body sent to a grade endpoint.
type GradingRequest struct {
	ExerciseSpec   json.RawMessage `json:"exercise_spec"`
	SubmissionData json.RawMessage `json:"submission_data"`
}

type StudentExerciseTaskSubmissionResult struct {
	Submission                      ExerciseTaskSubmission `json:"submission"`
	Grading                         *ExerciseTaskGrading   `json:"grading"`
	ModelSolutionSpec               datatypes.JSON         `json:"model_solution_spec,omitempty"`
	ExerciseTaskExerciseServiceSlug string                 `json:"exercise_task_exercise_service_slug"`
}

type StudentExerciseSlideSubmissionResult struct {
	ExerciseSlideSubmission       ExerciseSlideSubmission               `json:"exercise_slide_submission"`
	ExerciseTaskSubmissionResults []StudentExerciseTaskSubmissionResult `json:"exercise_task_submission_results"`
	SlideGradingSummary           UserExerciseSlideStateGradingSummary  `json:"slide_grading_summary"`
	UserExerciseState             *UserExerciseState                    `json:"user_exercise_state"`
}

// PeerReviewAnswer is a reviewer's answer to one peer review question.
type PeerReviewAnswer struct {
	PeerReviewQuestionID uuid.UUID `json:"peer_review_question_id" validate:"required,uuid_not_nil"`
	TextData             *string   `json:"text_data,omitempty"`
	NumberData           *float64  `json:"number_data,omitempty"`
}

// PointsRow is one user's per-chapter points in a course instance.
type PointsRow struct {
	UserID           uuid.UUID       `json:"user_id"`
	PointsPerChapter map[int]float64 `json:"points_per_chapter"`
}
